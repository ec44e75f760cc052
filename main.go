package main

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"pgs-curation/builders"
	"pgs-curation/catalog"
	"pgs-curation/config"
	"pgs-curation/providers"
	"pgs-curation/providers/europepmc"
	"pgs-curation/providers/ols"
	"pgs-curation/providers/pubmed"
	"pgs-curation/providers/unpaywall"
	"pgs-curation/schema"
	"pgs-curation/services"
	"pgs-curation/storage"
)

var _ services.Archiver = (*storage.Archive)(nil)

// maxUploadSize begrenzt hochgeladene Templates.
const maxUploadSize = 32 << 20

// errImportRunning: es läuft bereits ein Import.
var errImportRunning = errors.New("import already running")

// importJob serialisiert Importe aus Cron, /imports/run und /imports/upload.
type importJob struct {
	mu       sync.Mutex
	importer *services.StudyImporter
	dir      string
	log      *zap.Logger
}

// runDir importiert das Studienverzeichnis, sofern nicht schon ein Import läuft.
func (j *importJob) runDir(ctx context.Context) (services.BatchSummary, error) {
	if !j.mu.TryLock() {
		return services.BatchSummary{}, errImportRunning
	}
	defer j.mu.Unlock()
	return j.importer.ImportDir(ctx, j.dir)
}

// startDir startet den Verzeichnis-Import im Hintergrund. Das Lock bleibt bis
// nach done gehalten; false, wenn bereits ein Import läuft.
func (j *importJob) startDir(ctx context.Context, done func(services.BatchSummary, error)) bool {
	if !j.mu.TryLock() {
		return false
	}
	go func() {
		defer j.mu.Unlock()
		summary, err := j.importer.ImportDir(ctx, j.dir)
		done(summary, err)
	}()
	return true
}

// runStudy importiert eine einzelne, bereits gelesene Studie.
func (j *importJob) runStudy(ctx context.Context, st services.Study) (services.BatchSummary, error) {
	if !j.mu.TryLock() {
		return services.BatchSummary{}, errImportRunning
	}
	defer j.mu.Unlock()
	return j.importer.ImportAll(ctx, []services.Study{st}), nil
}

func apiKeyAuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.APISecretKey == "" {
			c.Next()
			return
		}
		apiKey := c.GetHeader("X-API-KEY")
		if apiKey != cfg.APISecretKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Invalid API Key"})
			return
		}
		c.Next()
	}
}

func main() {
	logging, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logging.Sync()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("Config load error", zap.Error(err))
	}

	// Datenbank
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		logging.Fatal("Failed to connect to catalog database", zap.Error(err))
	}
	logging.Info("Successfully connected to catalog database.")

	logging.Info("Running database auto-migration...")
	if err := catalog.Migrate(db); err != nil {
		logging.Fatal("Auto-migration failed", zap.Error(err))
	}
	store := catalog.NewGormStore(db, logging)

	// Provider
	literature, err := literatureChain(cfg, logging)
	if err != nil {
		logging.Fatal("Provider setup failed", zap.Error(err))
	}
	ontology := ols.NewFetcher(cfg, logging)

	// Schema
	var sch *schema.Schema
	if cfg.SchemaFile != "" {
		sch, err = schema.LoadFile(cfg.SchemaFile, builders.Fields)
		if err != nil {
			logging.Fatal("Schema load error", zap.String("file", cfg.SchemaFile), zap.Error(err))
		}
		logging.Info("Using schema file", zap.String("file", cfg.SchemaFile))
	}

	importer, err := services.NewStudyImporter(store, literature, ontology, sch, cfg.DefaultCurationStatus, logging)
	if err != nil {
		logging.Fatal("Importer setup failed", zap.Error(err))
	}
	importer.Metrics = services.NewMetrics(prometheus.DefaultRegisterer)

	if cfg.ArchiveEnabled() {
		archive, err := storage.NewArchive(context.Background(), cfg, logging)
		if err != nil {
			logging.Fatal("S3 client creation failed", zap.Error(err))
		}
		importer.Archiver = archive
		logging.Info("Archiving imported templates", zap.String("bucket", cfg.ArchiveS3Bucket))
	}

	job := &importJob{importer: importer, dir: cfg.StudyDir, log: logging}

	// Router
	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(apiKeyAuthMiddleware(cfg))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	setupImportRoutes(router, job, store, logging)

	// Cron
	if cfg.CronSchedule != "" {
		cronScheduler := cron.New()
		_, err := cronScheduler.AddFunc(cfg.CronSchedule, func() {
			logging.Info("Running scheduled import job...")
			summary, err := job.runDir(context.Background())
			if err != nil {
				logging.Error("Cron job failed", zap.Error(err))
				return
			}
			logging.Info("Cron job completed", zap.Int("succeeded", summary.Succeeded), zap.Int("failed", len(summary.Failed)))
		})
		if err != nil {
			logging.Fatal("Invalid CRON_SCHEDULE", zap.String("schedule", cfg.CronSchedule), zap.Error(err))
		}
		cronScheduler.Start()
		defer cronScheduler.Stop()
	}

	logging.Info("Starting server", zap.String("port", cfg.HTTPPort))
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      10 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		logging.Fatal("Failed to run server", zap.Error(err))
	}
}

// literatureChain baut die Provider-Kette in der konfigurierten Reihenfolge.
func literatureChain(cfg *config.Config, logging *zap.Logger) (*providers.Chain, error) {
	var enabled []providers.LiteratureProvider
	for _, name := range cfg.Providers() {
		switch name {
		case "europepmc":
			enabled = append(enabled, europepmc.NewFetcher(cfg, logging))
		case "pubmed":
			enabled = append(enabled, pubmed.NewFetcher(cfg, logging))
		case "unpaywall":
			enabled = append(enabled, unpaywall.NewFetcher(cfg, logging))
		default:
			logging.Warn("Unknown provider in config", zap.String("provider_name", name))
		}
	}
	if len(enabled) == 0 {
		return nil, errors.New("no valid literature providers enabled, check LITERATURE_PROVIDERS")
	}
	chain := providers.NewChain(logging, enabled...)
	logging.Info("Active providers loaded", zap.String("chain", chain.Name()))
	return chain, nil
}

func setupImportRoutes(router *gin.Engine, job *importJob, store catalog.Store, log *zap.Logger) {
	rg := router.Group("/imports")

	// Startet den Import des Studienverzeichnisses im Hintergrund.
	rg.POST("/run", func(c *gin.Context) {
		started := job.startDir(context.Background(), func(summary services.BatchSummary, err error) {
			if err != nil {
				log.Error("Directory import failed", zap.Error(err))
				return
			}
			log.Info("Directory import completed", zap.String("batch_id", summary.BatchID), zap.Int("succeeded", summary.Succeeded), zap.Int("failed", len(summary.Failed)))
		})
		if !started {
			c.JSON(http.StatusConflict, gin.H{"error": errImportRunning.Error()})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"status": "started", "dir": job.dir})
	})

	// Liste der Templates, die der nächste Lauf importieren würde.
	rg.GET("/pending", func(c *gin.Context) {
		paths, err := services.DiscoverStudies(job.dir)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		names := make([]string, 0, len(paths))
		for _, p := range paths {
			names = append(names, filepath.Base(p))
		}
		c.JSON(http.StatusOK, gin.H{"dir": job.dir, "studies": names})
	})

	// Importiert ein hochgeladenes Template synchron.
	rg.POST("/upload", func(c *gin.Context) {
		fh, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "multipart field 'file' is required"})
			return
		}
		if fh.Size > maxUploadSize {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "template too large"})
			return
		}
		f, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		name := c.PostForm("study")
		if name == "" {
			name = fh.Filename
		}
		st, err := services.ReadStudy(name, data)
		if err != nil {
			log.Warn("Uploaded template unreadable", zap.String("study", name), zap.Error(err))
			c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read template: " + err.Error()})
			return
		}

		summary, err := job.runStudy(c.Request.Context(), st)
		if err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		res := summary.Results[0]
		status := http.StatusOK
		if res.Failed {
			status = http.StatusUnprocessableEntity
		}
		c.JSON(status, gin.H{
			"batch_id": summary.BatchID,
			"citation": services.Citation(res.Publication),
			"result":   res,
		})
	})

	// Letzte Import-Läufe, neueste zuerst.
	rg.GET("", func(c *gin.Context) {
		limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
		if err != nil || limit <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		runs, err := store.ListImportRuns(c.Request.Context(), limit)
		if err != nil {
			log.Error("Database query for import runs failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, runs)
	})

	router.GET("/stats", func(c *gin.Context) {
		stats, err := store.Stats(c.Request.Context())
		if err != nil {
			log.Error("Database stats failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, stats)
	})
}
