package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"pgs-curation/config"
)

// fakeS3 nimmt PUT/DELETE entgegen und beantwortet ListObjectsV2 mit festen Objekten.
type fakeS3 struct {
	mu      sync.Mutex
	puts    map[string]string
	deletes []string
	listing string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch r.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.puts[r.URL.Path] = string(body)
		w.WriteHeader(http.StatusOK)
	case http.MethodDelete:
		f.deletes = append(f.deletes, r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	case http.MethodGet:
		w.Header().Set("Content-Type", "application/xml")
		_, _ = io.WriteString(w, f.listing)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func testConfig(url string) *config.Config {
	return &config.Config{
		ArchiveS3Key:    "key",
		ArchiveS3Secret: "secret",
		ArchiveS3URL:    url,
		ArchiveS3Region: "eu-central-1",
		ArchiveS3Bucket: "archive",
	}
}

func TestArchiveStudy(t *testing.T) {
	fake := &fakeS3{puts: make(map[string]string)}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	a, err := NewArchive(context.Background(), testConfig(srv.URL), zaptest.NewLogger(t))
	require.NoError(t, err)

	link, err := a.ArchiveStudy(context.Background(), "batch-1", "Smith 2021", []byte("xlsx-bytes"), []byte(`{"error":{}}`))
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/archive/imports/batch-1/Smith_2021.xlsx", link)

	assert.Equal(t, "xlsx-bytes", fake.puts["/archive/imports/batch-1/Smith_2021.xlsx"])
	assert.Equal(t, `{"error":{}}`, fake.puts["/archive/imports/batch-1/Smith_2021.report.json"])
}

func TestRotate_KeepsNewest(t *testing.T) {
	fake := &fakeS3{puts: make(map[string]string), listing: `<?xml version="1.0" encoding="UTF-8"?>
<ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">
  <Name>archive</Name>
  <Prefix>backups/</Prefix>
  <KeyCount>3</KeyCount>
  <IsTruncated>false</IsTruncated>
  <Contents><Key>backups/a.sql.gz</Key><LastModified>2025-01-01T00:00:00.000Z</LastModified><Size>1</Size></Contents>
  <Contents><Key>backups/c.sql.gz</Key><LastModified>2025-03-01T00:00:00.000Z</LastModified><Size>1</Size></Contents>
  <Contents><Key>backups/b.sql.gz</Key><LastModified>2025-02-01T00:00:00.000Z</LastModified><Size>1</Size></Contents>
</ListBucketResult>`}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	client, err := NewS3Client(context.Background(), testConfig(srv.URL))
	require.NoError(t, err)

	deleted, err := Rotate(context.Background(), client, "archive", "backups/", 2, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)
	require.Len(t, fake.deletes, 1)
	assert.True(t, strings.HasSuffix(fake.deletes[0], "/backups/a.sql.gz"))

	deleted, err = Rotate(context.Background(), client, "archive", "backups/", 5, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestLink(t *testing.T) {
	assert.Equal(t, "s3://b/k", Link("", "b", "k"))
	assert.Equal(t, "https://s3.example/b/k", Link("https://s3.example/", "b", "k"))
}
