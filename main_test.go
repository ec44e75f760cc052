package main

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pgs-curation/catalog"
	"pgs-curation/config"
	"pgs-curation/models"
	"pgs-curation/services"
)

func setupTestRouter(t *testing.T, cfg *config.Config) (*gin.Engine, *catalog.MemoryStore, *importJob) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := catalog.NewMemoryStore()
	importer, err := services.NewStudyImporter(store, nil, nil, nil, "Awaiting Curation", zap.NewNop())
	require.NoError(t, err)
	job := &importJob{importer: importer, dir: t.TempDir(), log: zap.NewNop()}

	router := gin.New()
	router.Use(apiKeyAuthMiddleware(cfg))
	setupImportRoutes(router, job, store, zap.NewNop())
	return router, store, job
}

func TestAPIKeyMiddleware(t *testing.T) {
	router, _, _ := setupTestRouter(t, &config.Config{APISecretKey: "s3cret"})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stats", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	req.Header.Set("X-API-KEY", "s3cret")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestStatsAndImportRuns(t *testing.T) {
	router, store, _ := setupTestRouter(t, &config.Config{})
	ctx := context.Background()
	require.NoError(t, store.CreateCohort(ctx, &models.Cohort{NameShort: "UKB"}))
	require.NoError(t, store.RecordImportRun(ctx, &models.ImportRun{BatchID: "b1", Study: "first", Status: models.ImportStatusSucceeded, StartedAt: time.Now()}))
	require.NoError(t, store.RecordImportRun(ctx, &models.ImportRun{BatchID: "b1", Study: "second", Status: models.ImportStatusFailed, StartedAt: time.Now()}))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stats", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var stats catalog.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, int64(1), stats.Cohorts)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/imports?limit=1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var runs []models.ImportRun
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &runs))
	require.Len(t, runs, 1)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/imports?limit=abc", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPendingStudies(t *testing.T) {
	router, _, job := setupTestRouter(t, &config.Config{})
	require.NoError(t, os.WriteFile(filepath.Join(job.dir, "b.xlsx"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(job.dir, "a.xlsx"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(job.dir, "notes.txt"), []byte("x"), 0o644))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/imports/pending", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Studies []string `json:"studies"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, []string{"a.xlsx", "b.xlsx"}, body.Studies)
}

func TestUpload_Rejections(t *testing.T) {
	router, _, job := setupTestRouter(t, &config.Config{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/imports/upload", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "broken.xlsx")
	require.NoError(t, err)
	_, _ = fw.Write([]byte("not a workbook"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/imports/upload", bytes.NewReader(buf.Bytes()))
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "cannot read template")

	// Läuft bereits ein Import, wird /imports/run abgewiesen.
	job.mu.Lock()
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/imports/run", nil))
	job.mu.Unlock()
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRunDir_HoldsLockUntilFinished(t *testing.T) {
	router, _, job := setupTestRouter(t, &config.Config{})

	release := make(chan struct{})
	finished := make(chan struct{})
	require.True(t, job.startDir(context.Background(), func(services.BatchSummary, error) {
		<-release
		close(finished)
	}))

	// Solange der Hintergrundlauf nicht fertig ist, bleiben alle Einstiege gesperrt.
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/imports/run", nil))
	assert.Equal(t, http.StatusConflict, w.Code)
	_, err := job.runDir(context.Background())
	assert.ErrorIs(t, err, errImportRunning)

	close(release)
	<-finished
	unlocked := func() bool {
		if job.mu.TryLock() {
			job.mu.Unlock()
			return true
		}
		return false
	}
	require.Eventually(t, unlocked, time.Second, 5*time.Millisecond)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/imports/run", nil))
	assert.Equal(t, http.StatusAccepted, w.Code)
	require.Eventually(t, unlocked, time.Second, 5*time.Millisecond)
}

func TestLiteratureChain(t *testing.T) {
	_, err := literatureChain(&config.Config{LiteratureProviders: "crossref"}, zap.NewNop())
	assert.Error(t, err)

	chain, err := literatureChain(&config.Config{LiteratureProviders: "PubMed, europepmc"}, zap.NewNop())
	require.NoError(t, err)
	require.Len(t, chain.Providers, 2)
	assert.Equal(t, "pubmed", chain.Providers[0].Name())
}
