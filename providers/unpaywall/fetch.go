package unpaywall

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

var httpClient = providers.NewHTTPClient(30 * time.Second)

var _ providers.LiteratureProvider = (*Fetcher)(nil)

// Response repräsentiert die JSON-Antwort der Unpaywall-API.
type Response struct {
	DOI           string `json:"doi"`
	Title         string `json:"title"`
	JournalName   string `json:"journal_name"`
	Publisher     string `json:"publisher"`
	PublishedDate string `json:"published_date"`
	Genre         string `json:"genre"`
	ZAuthors      []struct {
		Given  string `json:"given"`
		Family string `json:"family"`
	} `json:"z_authors"`
}

// Fetcher kapselt die Logik für Unpaywall.
type Fetcher struct {
	Config *config.Config
	Logger *zap.Logger
}

// NewFetcher erstellt einen neuen Unpaywall-Fetcher.
func NewFetcher(cfg *config.Config, logger *zap.Logger) *Fetcher {
	return &Fetcher{Config: cfg, Logger: logger}
}

// Name gibt den Namen des Providers zurück.
func (f *Fetcher) Name() string {
	return "unpaywall"
}

// Lookup holt Metadaten anhand der DOI. Unpaywall kennt keine PMIDs.
func (f *Fetcher) Lookup(ctx context.Context, q providers.Query) (*models.Publication, error) {
	if q.DOI == "" {
		return nil, providers.ErrNotFound
	}
	if f.Config.UnpaywallEmail == "" {
		return nil, fmt.Errorf("unpaywall email ist nicht konfiguriert")
	}

	reqURL := fmt.Sprintf("%s/%s?email=%s", strings.TrimRight(f.Config.UnpaywallBaseURL, "/"), q.DOI, url.QueryEscape(f.Config.UnpaywallEmail))
	log := f.Logger.With(zap.String("doi", q.DOI))
	log.Debug("Rufe Unpaywall API auf.")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, providers.ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unpaywall request failed with status: %d", resp.StatusCode)
	}

	var ur Response
	if err := json.NewDecoder(resp.Body).Decode(&ur); err != nil {
		return nil, err
	}
	log.Info("Metadaten über Unpaywall gefunden.")
	return mapResponseToModel(&ur), nil
}

func mapResponseToModel(ur *Response) *models.Publication {
	pub := &models.Publication{
		DOI:        ur.DOI,
		Title:      ur.Title,
		Journal:    ur.JournalName,
		IsPreprint: ur.Genre == "posted-content",
	}
	if pub.IsPreprint && pub.Journal == "" {
		pub.Journal = ur.Publisher
	}
	var authors []string
	for _, a := range ur.ZAuthors {
		name := strings.TrimSpace(a.Family + " " + initials(a.Given))
		if name != "" {
			authors = append(authors, name)
		}
	}
	pub.Authors = strings.Join(authors, ", ")
	if len(authors) > 0 {
		pub.FirstAuthor = authors[0]
	}
	if t, err := time.Parse("2006-01-02", ur.PublishedDate); err == nil {
		pub.PublicationDate = &t
	}
	return pub
}

// initials macht aus "John Paul" -> "JP".
func initials(given string) string {
	var b strings.Builder
	for _, part := range strings.FieldsFunc(given, func(r rune) bool { return r == ' ' || r == '-' || r == '.' }) {
		b.WriteString(strings.ToUpper(string([]rune(part)[0])))
	}
	return b.String()
}
