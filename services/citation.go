package services

import (
	"fmt"
	"strings"

	"pgs-curation/models"
)

// Citation rendert eine Publication kurz, z.B. "Smith J et al. (2021) Nat Genet. doi:10.1/x".
func Citation(p *models.Publication) string {
	if p == nil {
		return ""
	}
	author := p.FirstAuthor
	if author == "" {
		author = "Unknown Author"
	}
	if strings.Contains(p.Authors, ",") {
		author += " et al."
	}
	year := "n.d."
	if p.PublicationDate != nil {
		year = fmt.Sprintf("%d", p.PublicationDate.Year())
	}
	out := fmt.Sprintf("%s (%s)", author, year)

	journal := p.Journal
	if p.IsPreprint && journal != "" {
		journal += " (preprint)"
	}
	if journal != "" {
		out += " " + journal + "."
	}

	var tail []string
	if p.DOI != "" {
		tail = append(tail, "doi:"+p.DOI)
	}
	if p.PMID != "" {
		tail = append(tail, "pmid:"+p.PMID)
	}
	if len(tail) > 0 {
		out += " " + strings.Join(tail, " ")
	}
	return out
}
