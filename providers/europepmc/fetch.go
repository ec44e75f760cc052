package europepmc

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

var _ providers.LiteratureProvider = (*Fetcher)(nil)

// Fetcher implementiert das LiteratureProvider-Interface für Europe PMC.
type Fetcher struct {
	Config *config.Config
	Logger *zap.Logger
}

// NewFetcher erstellt einen neuen Europe PMC Fetcher.
func NewFetcher(cfg *config.Config, logger *zap.Logger) *Fetcher {
	return &Fetcher{Config: cfg, Logger: logger}
}

// Name gibt den Namen des Providers zurück.
func (f *Fetcher) Name() string {
	return "europepmc"
}

// Lookup sucht eine Publikation über DOI (bevorzugt) oder PMID.
func (f *Fetcher) Lookup(ctx context.Context, q providers.Query) (*models.Publication, error) {
	var query string
	switch {
	case q.DOI != "":
		query = fmt.Sprintf("DOI:%q", q.DOI)
	case q.PMID != "":
		query = fmt.Sprintf("EXT_ID:%s AND SRC:MED", q.PMID)
	default:
		return nil, providers.ErrNotFound
	}
	log := f.Logger.With(zap.String("query", query))

	searchURL := fmt.Sprintf("%s/search?query=%s&format=json&resultType=core",
		strings.TrimRight(f.Config.EuropePMCBaseURL, "/"), url.QueryEscape(query))
	log.Debug("Rufe Europe PMC API auf", zap.String("url", searchURL))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("europepmc search failed: status %d", resp.StatusCode)
	}

	var searchResponse SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&searchResponse); err != nil {
		return nil, err
	}

	article := pick(searchResponse.ResultList.Result, q)
	if article == nil {
		log.Info("Keine Publikation auf Europe PMC gefunden")
		return nil, providers.ErrNotFound
	}
	return mapArticleToModel(article), nil
}

// pick wählt den Treffer mit passender DOI/PMID, sonst nil.
func pick(results []Article, q providers.Query) *Article {
	for i := range results {
		if q.DOI != "" && strings.EqualFold(results[i].DOI, q.DOI) {
			return &results[i]
		}
		if q.DOI == "" && results[i].PMID == q.PMID {
			return &results[i]
		}
	}
	return nil
}

// mapArticleToModel konvertiert ein Europe PMC Article-Objekt in unser Publication-Modell.
// Preprints haben kein Journal; stattdessen wird der Publisher (z.B. medRxiv) verwendet.
func mapArticleToModel(article *Article) *models.Publication {
	pub := &models.Publication{
		DOI:             article.DOI,
		PMID:            article.PMID,
		Title:           strings.TrimSuffix(strings.TrimSpace(article.Title), "."),
		Authors:         article.AuthorString,
		FirstAuthor:     firstAuthor(article.AuthorString),
		PublicationDate: parseEuroDate(article.FirstPublicationDate),
		Journal:         article.JournalInfo.Journal.Title,
	}

	for _, pubType := range article.PubTypeList.PubType {
		if strings.EqualFold(pubType, "preprint") {
			pub.IsPreprint = true
			break
		}
	}
	if article.Source == "PPR" {
		pub.IsPreprint = true
	}
	if pub.IsPreprint && article.BookOrReportDetails.Publisher != "" {
		pub.Journal = article.BookOrReportDetails.Publisher
	}
	return pub
}

func firstAuthor(authorString string) string {
	first, _, _ := strings.Cut(authorString, ",")
	return strings.TrimSuffix(strings.TrimSpace(first), ".")
}
