package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config enthält alle Konfigurationsparameter aus Umgebungsvariablen.
type Config struct {
	DBHost     string `envconfig:"DB_HOST" required:"true"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" required:"true"`
	DBPassword string `envconfig:"DB_PASSWORD" required:"true"`
	DBName     string `envconfig:"DB_NAME" required:"true"`

	HTTPPort     string `envconfig:"HTTP_PORT" default:"4242"`
	APISecretKey string `envconfig:"API_SECRET_KEY"`

	// Literatur-Provider
	EuropePMCBaseURL    string `envconfig:"EUROPEPMC_BASE_URL" default:"https://www.ebi.ac.uk/europepmc/webservices/rest"`
	PubMedBaseURL       string `envconfig:"PUBMED_BASE_URL" default:"https://eutils.ncbi.nlm.nih.gov/entrez/eutils"`
	PubMedAPIKey        string `envconfig:"PUBMED_API_KEY"`
	PubMedTool          string `envconfig:"PUBMED_TOOL" default:"pgs-curation"`
	UnpaywallBaseURL    string `envconfig:"UNPAYWALL_BASE_URL" default:"https://api.unpaywall.org/v2"`
	UnpaywallEmail      string `envconfig:"UNPAYWALL_EMAIL"`
	LiteratureProviders string `envconfig:"LITERATURE_PROVIDERS" default:"europepmc,pubmed,unpaywall"`

	// Ontologie (EBI OLS)
	OLSBaseURL string `envconfig:"OLS_BASE_URL" default:"https://www.ebi.ac.uk/ols4"`

	// Import
	SchemaFile            string `envconfig:"SCHEMA_FILE"`
	StudyDir              string `envconfig:"STUDY_DIR" default:"./studies"`
	DefaultCurationStatus string `envconfig:"DEFAULT_CURATION_STATUS" default:"Awaiting Curation"`
	CronSchedule          string `envconfig:"CRON_SCHEDULE"`

	// Archiv für importierte Templates, leerer Bucket deaktiviert das Archiv
	ArchiveS3Key    string `envconfig:"ARCHIVE_S3_KEY"`
	ArchiveS3Secret string `envconfig:"ARCHIVE_S3_SECRET"`
	ArchiveS3URL    string `envconfig:"ARCHIVE_S3_URL"`
	ArchiveS3Region string `envconfig:"ARCHIVE_S3_REGION" default:"eu-central-1"`
	ArchiveS3Bucket string `envconfig:"ARCHIVE_S3_BUCKET"`

	BackupKeep int `envconfig:"BACKUP_KEEP" default:"7"`
}

// DSN gibt den Data Source Name für die PostgreSQL-Verbindung zurück.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

// Providers liefert die aktivierten Literatur-Provider in Reihenfolge.
func (c *Config) Providers() []string {
	var out []string
	for _, p := range strings.Split(c.LiteratureProviders, ",") {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ArchiveEnabled meldet, ob ein Archiv-Bucket konfiguriert ist.
func (c *Config) ArchiveEnabled() bool {
	return c.ArchiveS3Bucket != ""
}

// Load lädt die Konfiguration aus den Umgebungsvariablen.
func Load() (*Config, error) {
	_ = godotenv.Load()
	var c Config
	err := envconfig.Process("", &c)
	return &c, err
}
