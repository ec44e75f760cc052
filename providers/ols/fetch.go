package ols

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"pgs-curation/config"
	"pgs-curation/models"
	"pgs-curation/providers"
)

var httpClient = providers.NewHTTPClient(60 * time.Second)

var _ providers.OntologyProvider = (*Fetcher)(nil)

// Fetcher implementiert das OntologyProvider-Interface für EBI OLS.
type Fetcher struct {
	Config *config.Config
	Logger *zap.Logger
}

// NewFetcher erstellt einen neuen OLS-Fetcher.
func NewFetcher(cfg *config.Config, logger *zap.Logger) *Fetcher {
	return &Fetcher{Config: cfg, Logger: logger}
}

// LookupTerm holt Label, Beschreibung, Synonyme und Cross-References eines EFO-Begriffs.
// Bei mehreren Treffern zählen nur die der definierenden Ontologie.
func (f *Fetcher) LookupTerm(ctx context.Context, id string) (*models.EFOTrait, error) {
	shortForm := strings.ReplaceAll(strings.TrimSpace(id), ":", "_")
	reqURL := fmt.Sprintf("%s/api/ontologies/efo/terms?short_form=%s",
		strings.TrimRight(f.Config.OLSBaseURL, "/"), url.QueryEscape(shortForm))
	log := f.Logger.With(zap.String("efo_id", shortForm))
	log.Debug("Rufe OLS API auf", zap.String("url", reqURL))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%s: %w", shortForm, providers.ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ols request failed: status %d", resp.StatusCode)
	}

	var tr TermsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, err
	}

	terms := tr.Embedded.Terms
	if len(terms) > 1 {
		var defining []Term
		for _, t := range terms {
			if t.IsDefiningOntology {
				defining = append(defining, t)
			}
		}
		terms = defining
	}
	switch len(terms) {
	case 0:
		return nil, fmt.Errorf("%s: %w", shortForm, providers.ErrNotFound)
	case 1:
		log.Debug("Ontologie-Begriff gefunden", zap.String("label", terms[0].Label))
		return mapTermToModel(shortForm, &terms[0]), nil
	default:
		return nil, fmt.Errorf("%s: %d Begriffe: %w", shortForm, len(terms), providers.ErrAmbiguous)
	}
}

func mapTermToModel(shortForm string, t *Term) *models.EFOTrait {
	trait := &models.EFOTrait{
		EFOID:       shortForm,
		Label:       t.Label,
		Description: strings.Join(t.Description, " "),
		Synonyms:    append([]string(nil), t.Synonyms...),
		URL:         t.IRI,
	}
	if t.ShortForm != "" {
		trait.EFOID = t.ShortForm
	}
	for _, x := range t.OboXref {
		if x.Database != "" && x.ID != "" {
			trait.MappedTerms = append(trait.MappedTerms, x.Database+":"+x.ID)
		}
	}
	return trait
}
