package europepmc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"pgs-curation/config"
	"pgs-curation/providers"
)

const journalHit = `{"hitCount":1,"resultList":{"result":[{
  "source":"MED","pmid":"33333333","doi":"10.1016/example",
  "title":"Polygenic risk for breast cancer.",
  "authorString":"Smith J, Doe A, Roe B.",
  "firstPublicationDate":"2021-03-04",
  "journalInfo":{"journal":{"title":"American Journal of Human Genetics"}},
  "pubTypeList":{"pubType":["research-article","Journal Article"]}
}]}}`

const preprintHit = `{"hitCount":1,"resultList":{"result":[{
  "source":"PPR","doi":"10.1101/2021.01.01.123",
  "title":"A preprint",
  "authorString":"Lee K.",
  "firstPublicationDate":"2021-01-02",
  "bookOrReportDetails":{"publisher":"medRxiv"},
  "pubTypeList":{"pubType":["Preprint"]}
}]}}`

func newFetcher(t *testing.T, handler http.HandlerFunc) *Fetcher {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewFetcher(&config.Config{EuropePMCBaseURL: srv.URL}, zaptest.NewLogger(t))
}

func TestLookup_ByDOI(t *testing.T) {
	var gotQuery string
	f := newFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "core", r.URL.Query().Get("resultType"))
		gotQuery = r.URL.Query().Get("query")
		_, _ = w.Write([]byte(journalHit))
	})

	pub, err := f.Lookup(context.Background(), providers.Query{DOI: "10.1016/example"})
	require.NoError(t, err)
	assert.Equal(t, `DOI:"10.1016/example"`, gotQuery)
	assert.Equal(t, "33333333", pub.PMID)
	assert.Equal(t, "Polygenic risk for breast cancer", pub.Title)
	assert.Equal(t, "Smith J", pub.FirstAuthor)
	assert.Equal(t, "American Journal of Human Genetics", pub.Journal)
	assert.False(t, pub.IsPreprint)
	require.NotNil(t, pub.PublicationDate)
	assert.Equal(t, 2021, pub.PublicationDate.Year())
}

func TestLookup_PreprintUsesPublisher(t *testing.T) {
	f := newFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(preprintHit))
	})
	pub, err := f.Lookup(context.Background(), providers.Query{DOI: "10.1101/2021.01.01.123"})
	require.NoError(t, err)
	assert.True(t, pub.IsPreprint)
	assert.Equal(t, "medRxiv", pub.Journal)
	assert.Equal(t, "Lee K", pub.FirstAuthor)
}

func TestLookup_ByPMIDAndNotFound(t *testing.T) {
	var gotQuery string
	f := newFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("query")
		_, _ = w.Write([]byte(`{"hitCount":0,"resultList":{"result":[]}}`))
	})
	_, err := f.Lookup(context.Background(), providers.Query{PMID: "42"})
	assert.ErrorIs(t, err, providers.ErrNotFound)
	assert.Equal(t, "EXT_ID:42 AND SRC:MED", gotQuery)
}

func TestLookup_ServerError(t *testing.T) {
	f := newFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	_, err := f.Lookup(context.Background(), providers.Query{DOI: "10.1/x"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, providers.ErrNotFound)
}

func TestLookup_IgnoresNonMatchingHit(t *testing.T) {
	f := newFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(journalHit))
	})
	// Die Suche liefert einen Treffer, aber mit anderer DOI bzw. PMID.
	_, err := f.Lookup(context.Background(), providers.Query{DOI: "10.9999/other"})
	assert.ErrorIs(t, err, providers.ErrNotFound)
	_, err = f.Lookup(context.Background(), providers.Query{PMID: "44444444"})
	assert.ErrorIs(t, err, providers.ErrNotFound)
}
