// Package catalog ist die Persistenzschicht für kuratierte Studien.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"pgs-curation/models"
)

// ErrMissingDependency: ein referenzierter Datensatz ist nicht (mehr) gespeichert.
var ErrMissingDependency = errors.New("abhängiger Datensatz fehlt")

// ErrInUse: der Datensatz wird noch von anderen Datensätzen referenziert.
var ErrInUse = errors.New("Datensatz wird noch referenziert")

// CodeKind ist das Präfix der stabilen, lesbaren Codes.
type CodeKind string

const (
	CodePublication CodeKind = "PGP"
	CodeScore       CodeKind = "PGS"
	CodeSampleSet   CodeKind = "PSS"
	CodePerformance CodeKind = "PPM"
)

// Format erzeugt z.B. "PGS000123".
func (k CodeKind) Format(n int64) string {
	return fmt.Sprintf("%s%06d", k, n)
}

// Stats zählt die gespeicherten Datensätze je Art.
type Stats struct {
	Publications int64 `json:"publications"`
	Cohorts      int64 `json:"cohorts"`
	Traits       int64 `json:"traits"`
	Scores       int64 `json:"scores"`
	Samples      int64 `json:"samples"`
	Demographics int64 `json:"demographics"`
	SampleSets   int64 `json:"sample_sets"`
	Performances int64 `json:"performances"`
	Metrics      int64 `json:"metrics"`
}

// Store ist der persistente Katalog. Find* liefert (nil, nil), wenn nichts gefunden wurde.
// Jede Create*/Delete*-Operation ist für sich atomar. Create* vergibt ID und Code.
// Delete* schlägt mit ErrInUse fehl, solange noch Datensätze auf den Eintrag zeigen.
type Store interface {
	FindPublication(ctx context.Context, doi, pmid string) (*models.Publication, error)
	CreatePublication(ctx context.Context, p *models.Publication) error
	DeletePublication(ctx context.Context, id uint) error

	// FindCohorts sucht ohne Beachtung der Groß-/Kleinschreibung nach dem Kurznamen.
	FindCohorts(ctx context.Context, nameShort string) ([]models.Cohort, error)
	CreateCohort(ctx context.Context, c *models.Cohort) error

	FindTrait(ctx context.Context, efoID string) (*models.EFOTrait, error)
	CreateTrait(ctx context.Context, t *models.EFOTrait) error

	FindScoreByCode(ctx context.Context, code string) (*models.Score, error)
	FindScoreByName(ctx context.Context, publicationID uint, name string) (*models.Score, error)
	// CreateScore speichert den Score samt Trait-Verknüpfungen.
	CreateScore(ctx context.Context, s *models.Score) error
	// LinkScoreSamples verknüpft gespeicherte Samples in der Rolle role (variants/training).
	LinkScoreSamples(ctx context.Context, scoreID uint, role string, sampleIDs []uint) error
	DeleteScore(ctx context.Context, id uint) error

	// CreateSample speichert Demographics und Cohort-Verknüpfungen mit.
	CreateSample(ctx context.Context, s *models.Sample) error
	DeleteSample(ctx context.Context, id uint) error

	CreateSampleSet(ctx context.Context, s *models.SampleSet) error
	DeleteSampleSet(ctx context.Context, id uint) error

	// FindPerformances lädt Metrics und SampleSet.Samples mit.
	FindPerformances(ctx context.Context, publicationID, scoreID uint) ([]models.Performance, error)
	// CreatePerformance speichert die Performance samt Metrics.
	CreatePerformance(ctx context.Context, p *models.Performance) error
	DeletePerformance(ctx context.Context, id uint) error
	// SampleSetPerformances liefert die IDs aller Performances, die das SampleSet auswerten.
	SampleSetPerformances(ctx context.Context, sampleSetID uint) ([]uint, error)
	// RemoveEvaluations löscht die Performances (mit Metrics) und danach die SampleSets
	// samt ihrer Samples in einem Schritt. Wird ein SampleSet noch von einer Performance
	// außerhalb der Liste verwendet, wird nichts gelöscht (ErrInUse).
	RemoveEvaluations(ctx context.Context, performanceIDs, sampleSetIDs []uint) error

	// NextCode reserviert die nächste Nummer für kind.
	NextCode(ctx context.Context, kind CodeKind) (int64, error)

	RecordImportRun(ctx context.Context, run *models.ImportRun) error
	ListImportRuns(ctx context.Context, limit int) ([]models.ImportRun, error)

	Stats(ctx context.Context) (Stats, error)
}

func validRole(role string) bool {
	return role == models.SampleRoleVariants || role == models.SampleRoleTraining
}
