package builders

import (
	"context"
	"sort"

	"pgs-curation/catalog"
	"pgs-curation/models"
	"pgs-curation/parsers"
	"pgs-curation/report"
)

var performanceSetters = setters[PerformanceBuilder]{
	"score_name":           func(b *PerformanceBuilder, v parsers.Value) error { b.ScoreName = v.Text; return nil },
	"sample_set":           func(b *PerformanceBuilder, v parsers.Value) error { b.SampleSet = v.Text; return nil },
	"phenotyping_reported": func(b *PerformanceBuilder, v parsers.Value) error { b.PhenotypingReported = v.Text; return nil },
	"covariates":           func(b *PerformanceBuilder, v parsers.Value) error { b.Covariates = v.Text; return nil },
	"performance_comments": func(b *PerformanceBuilder, v parsers.Value) error { b.PerformanceComments = v.Text; return nil },
}

// PerformanceBuilder sammelt eine Zeile des Blatts "Performance Metrics".
// Kennzahl-Spalten (metric_<art>_<kürzel>) werden sofort geparst.
type PerformanceBuilder struct {
	base

	ScoreName           string
	SampleSet           string
	PhenotypingReported string
	Covariates          string
	PerformanceComments string

	Metrics []parsers.Metric
}

// NewPerformanceBuilder erstellt einen leeren PerformanceBuilder.
func NewPerformanceBuilder(rep *report.Report, sheet string, row int) *PerformanceBuilder {
	return &PerformanceBuilder{base: newBase(rep, sheet, row)}
}

// AddField übernimmt einen Zellwert.
func (b *PerformanceBuilder) AddField(field string, v parsers.Value) {
	kind, code, ok := parsers.ParseMetricField(field)
	if !ok {
		apply(performanceSetters, b, &b.base, field, v)
		return
	}
	if v.IsEmpty() {
		return
	}
	m, problems := parsers.ParseMetric(kind, code, v)
	b.problems(field, problems)
	if m.Valid() {
		b.Metrics = append(b.Metrics, m)
	}
}

// Create legt die Performance samt Kennzahlen an. Ohne gültige Kennzahl wird ein Fehler
// gemeldet, die Performance aber trotzdem angelegt.
func (b *PerformanceBuilder) Create(ctx context.Context, store catalog.Store, pub *models.Publication, score *models.Score, set *models.SampleSet) (*models.Performance, error) {
	if len(b.Metrics) == 0 {
		b.errorf("performance of %q on %q: no valid metric", b.ScoreName, b.SampleSet)
	}
	p := &models.Performance{
		PublicationID:       pub.ID,
		ScoreID:             score.ID,
		SampleSetID:         set.ID,
		PhenotypingReported: b.PhenotypingReported,
		Covariates:          b.Covariates,
		PerformanceComments: b.PerformanceComments,
		Metrics:             toMetrics(b.Metrics),
	}
	if err := store.CreatePerformance(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

var metricOrder = map[parsers.MetricKind]int{
	parsers.EffectSize:           0,
	parsers.ClassificationMetric: 1,
	parsers.OtherMetric:          2,
}

// toMetrics sortiert nach Art (Effektgröße, Klassifikation, Sonstige), innerhalb stabil.
func toMetrics(in []parsers.Metric) []models.Metric {
	sorted := append([]parsers.Metric(nil), in...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return metricOrder[sorted[i].Kind] < metricOrder[sorted[j].Kind]
	})
	out := make([]models.Metric, 0, len(sorted))
	for _, m := range sorted {
		mm := models.Metric{
			Type:      string(m.Kind),
			Name:      m.Name,
			NameShort: m.ShortName,
			Estimate:  m.Estimate,
			Unit:      m.Unit,
			SE:        m.SE,
		}
		if m.CI != nil {
			lower, upper := m.CI.Lower, m.CI.Upper
			mm.CILower, mm.CIUpper = &lower, &upper
		}
		out = append(out, mm)
	}
	return out
}
