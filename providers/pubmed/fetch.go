package pubmed

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"pgs-curation/config"
	"pgs-curation/models"
	"pgs-curation/providers"
)

var httpClient = providers.NewHTTPClient(60 * time.Second)

var _ providers.LiteratureProvider = (*Fetcher)(nil)

// Fetcher ist eine Struktur, die die Logik zur Interaktion mit PubMed kapselt.
type Fetcher struct {
	Config *config.Config
	Logger *zap.Logger
}

// NewFetcher erstellt eine neue Instanz des PubMed-Fetchers.
func NewFetcher(cfg *config.Config, logger *zap.Logger) *Fetcher {
	return &Fetcher{Config: cfg, Logger: logger}
}

// Name gibt den Namen des Providers zurück.
func (f *Fetcher) Name() string {
	return "pubmed"
}

// Lookup holt die Metadaten per EFetch. Ohne PMID wird die DOI zuerst per ESearch aufgelöst.
func (f *Fetcher) Lookup(ctx context.Context, q providers.Query) (*models.Publication, error) {
	pmid := strings.TrimSpace(q.PMID)
	if pmid == "" {
		if q.DOI == "" {
			return nil, providers.ErrNotFound
		}
		var err error
		pmid, err = f.searchDOI(ctx, q.DOI)
		if err != nil {
			return nil, err
		}
	}
	return f.fetchMetadata(ctx, pmid)
}

// searchDOI führt eine ESearch-Abfrage für eine DOI durch und gibt die PMID zurück.
func (f *Fetcher) searchDOI(ctx context.Context, doi string) (string, error) {
	log := f.Logger.With(zap.String("doi", doi))
	searchURL := f.buildURL("esearch.fcgi", url.Values{
		"db":      {"pubmed"},
		"term":    {fmt.Sprintf("%q[DOI]", doi)},
		"retmode": {"json"},
	})
	log.Debug("Rufe ESearch-URL auf", zap.String("url", searchURL))

	body, err := f.get(ctx, searchURL)
	if err != nil {
		log.Error("ESearch-Anfrage fehlgeschlagen", zap.Error(err))
		return "", err
	}
	defer body.Close()

	var esearchResp ESearchResponse
	if err := json.NewDecoder(body).Decode(&esearchResp); err != nil {
		log.Error("Fehler beim Parsen der ESearch-JSON-Antwort", zap.Error(err))
		return "", err
	}
	ids := esearchResp.ESearchResult.IdList
	switch len(ids) {
	case 0:
		return "", providers.ErrNotFound
	case 1:
		return ids[0], nil
	default:
		return "", fmt.Errorf("doi %s liefert %d PMIDs: %w", doi, len(ids), providers.ErrAmbiguous)
	}
}

// fetchMetadata holt Metadaten für eine einzelne PMID via EFetch.
func (f *Fetcher) fetchMetadata(ctx context.Context, pmid string) (*models.Publication, error) {
	efetchURL := f.buildURL("efetch.fcgi", url.Values{
		"db":      {"pubmed"},
		"id":      {pmid},
		"retmode": {"xml"},
	})
	f.Logger.Debug("Rufe EFetch-URL für Metadaten auf", zap.String("url", efetchURL))

	body, err := f.get(ctx, efetchURL)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var articleSet PubmedArticleSet
	if err := xml.NewDecoder(body).Decode(&articleSet); err != nil {
		return nil, err
	}
	if len(articleSet.PubmedArticle) == 0 {
		return nil, fmt.Errorf("kein PubmedArticle in EFetch-Antwort für PMID %s: %w", pmid, providers.ErrNotFound)
	}
	return mapArticleToModel(&articleSet.PubmedArticle[0]), nil
}

func (f *Fetcher) get(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("pubmed request failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return resp.Body, nil
}

// buildURL baut die URL für eine E-Utilities-Anfrage.
func (f *Fetcher) buildURL(endpoint string, params url.Values) string {
	if f.Config.PubMedAPIKey != "" {
		params.Set("api_key", f.Config.PubMedAPIKey)
	}
	if f.Config.PubMedTool != "" {
		params.Set("tool", f.Config.PubMedTool)
	}
	return fmt.Sprintf("%s/%s?%s", strings.TrimRight(f.Config.PubMedBaseURL, "/"), endpoint, params.Encode())
}

// mapArticleToModel wandelt ein XML-Article-Objekt in unser Publication-Modell um.
func mapArticleToModel(article *PubmedArticle) *models.Publication {
	a := article.MedlineCitation.Article
	p := &models.Publication{
		PMID:    article.MedlineCitation.PMID,
		Title:   strings.TrimSuffix(strings.TrimSpace(a.Title), "."),
		Journal: a.Journal.Title,
	}

	var authors []string
	for _, author := range a.Authors {
		name := strings.TrimSpace(author.LastName + " " + author.Initials)
		if name == "" {
			name = author.CollectiveName
		}
		if name != "" {
			authors = append(authors, name)
		}
	}
	p.Authors = strings.Join(authors, ", ")
	if len(authors) > 0 {
		p.FirstAuthor = authors[0]
	}

	for _, id := range a.ELocationID {
		if id.IDType == "doi" && id.ValidYN == "Y" {
			p.DOI = id.Value
			break
		}
	}
	if p.DOI == "" {
		for _, id := range article.PubmedData.ArticleIDs {
			if id.IDType == "doi" {
				p.DOI = id.Value
				break
			}
		}
	}

	for _, pt := range a.PublicationTypes {
		if strings.EqualFold(pt, "Preprint") {
			p.IsPreprint = true
		}
	}

	pubDate := a.Journal.PubDate
	if pubDate.Year != "" {
		month := "01"
		if pubDate.Month != "" {
			parsedMonth, err := time.Parse("Jan", pubDate.Month)
			if err == nil {
				month = fmt.Sprintf("%02d", parsedMonth.Month())
			} else {
				// Fallback für numerische Monate
				tm, err := time.Parse("1", pubDate.Month)
				if err == nil {
					month = fmt.Sprintf("%02d", tm.Month())
				}
			}
		}
		day := "01"
		if d, err := strconv.Atoi(pubDate.Day); err == nil {
			day = fmt.Sprintf("%02d", d)
		}
		dateStr := fmt.Sprintf("%s-%s-%s", pubDate.Year, month, day)
		t, err := time.Parse("2006-01-02", dateStr)
		if err == nil {
			p.PublicationDate = &t
		}
	}

	return p
}
