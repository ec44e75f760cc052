// Package ols fragt Begriffe der Experimental Factor Ontology über EBI OLS ab.
package ols

// TermsResponse ist die HAL-Antwort von /api/ontologies/{onto}/terms.
type TermsResponse struct {
	Embedded struct {
		Terms []Term `json:"terms"`
	} `json:"_embedded"`
	Page struct {
		TotalElements int `json:"totalElements"`
	} `json:"page"`
}

// Term ist ein einzelner Ontologie-Begriff.
type Term struct {
	IRI                string   `json:"iri"`
	Label              string   `json:"label"`
	Description        []string `json:"description"`
	Synonyms           []string `json:"synonyms"`
	ShortForm          string   `json:"short_form"`
	OboID              string   `json:"obo_id"`
	IsDefiningOntology bool     `json:"is_defining_ontology"`
	OboXref            []struct {
		Database string `json:"database"`
		ID       string `json:"id"`
	} `json:"obo_xref"`
}
