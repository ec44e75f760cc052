package builders

import (
	"context"
	"strconv"
	"strings"

	"pgs-curation/catalog"
	"pgs-curation/models"
	"pgs-curation/parsers"
	"pgs-curation/report"
)

// Stage ist die Rolle einer Sample-Zeile.
type Stage int

const (
	StageTraining Stage = iota
	StageVariants
	StageTesting
)

func (s Stage) String() string {
	switch s {
	case StageVariants:
		return "variants"
	case StageTesting:
		return "testing"
	default:
		return "training"
	}
}

func textSetter(dst func(*SampleBuilder) *string) func(*SampleBuilder, parsers.Value) error {
	return func(b *SampleBuilder, v parsers.Value) error {
		*dst(b) = v.Text
		return nil
	}
}

func countSetter(dst func(*SampleBuilder) **int) func(*SampleBuilder, parsers.Value) error {
	return func(b *SampleBuilder, v parsers.Value) error {
		n, err := intValue(v)
		if err != nil {
			return err
		}
		*dst(b) = n
		return nil
	}
}

func demographicSetter(field string, dst func(*SampleBuilder) **parsers.Demographic) func(*SampleBuilder, parsers.Value) error {
	return func(b *SampleBuilder, v parsers.Value) error {
		d, problems := parsers.ParseDemographic(v)
		b.problems(field, problems)
		if !d.IsEmpty() {
			*dst(b) = &d
		}
		return nil
	}
}

var sampleSetters = setters[SampleBuilder]{
	"study_stage": textSetter(func(b *SampleBuilder) *string { return &b.StudyStage }),
	"score_names": func(b *SampleBuilder, v parsers.Value) error { b.ScoreNames = v.List(); return nil },
	"sample_set":  textSetter(func(b *SampleBuilder) *string { return &b.SampleSet }),

	"sample_number":   countSetter(func(b *SampleBuilder) **int { return &b.SampleNumber }),
	"sample_cases":    countSetter(func(b *SampleBuilder) **int { return &b.SampleCases }),
	"sample_controls": countSetter(func(b *SampleBuilder) **int { return &b.SampleControls }),
	"sample_percent_male": func(b *SampleBuilder, v parsers.Value) error {
		f, err := floatValue(v)
		if err != nil {
			return err
		}
		b.SamplePercentMale = f
		return nil
	},

	"sample_age":    demographicSetter("sample_age", func(b *SampleBuilder) **parsers.Demographic { return &b.SampleAge }),
	"followup_time": demographicSetter("followup_time", func(b *SampleBuilder) **parsers.Demographic { return &b.FollowupTime }),

	"phenotyping_free":    textSetter(func(b *SampleBuilder) *string { return &b.PhenotypingFree }),
	"ancestry_broad":      textSetter(func(b *SampleBuilder) *string { return &b.AncestryBroad }),
	"ancestry_free":       textSetter(func(b *SampleBuilder) *string { return &b.AncestryFree }),
	"ancestry_country":    textSetter(func(b *SampleBuilder) *string { return &b.AncestryCountry }),
	"ancestry_additional": textSetter(func(b *SampleBuilder) *string { return &b.AncestryAdditional }),

	"cohorts":            func(b *SampleBuilder, v parsers.Value) error { b.CohortNames = v.List(); return nil },
	"cohorts_additional": textSetter(func(b *SampleBuilder) *string { return &b.CohortsAdditional }),

	"source_GWAS_catalog": textSetter(func(b *SampleBuilder) *string { return &b.SourceGWASCatalog }),
	"source_PMID": func(b *SampleBuilder, v parsers.Value) error {
		if n, err := v.Int(); err == nil {
			b.SourcePMID = strconv.Itoa(n)
			return nil
		}
		b.SourcePMID = v.Text
		return nil
	},
	"source_DOI": textSetter(func(b *SampleBuilder) *string { return &b.SourceDOI }),
}

// SampleBuilder sammelt eine Zeile des Blatts "Sample Descriptions".
type SampleBuilder struct {
	base

	StudyStage string
	ScoreNames []string
	SampleSet  string

	SampleNumber      *int
	SampleCases       *int
	SampleControls    *int
	SamplePercentMale *float64

	SampleAge    *parsers.Demographic
	FollowupTime *parsers.Demographic

	PhenotypingFree    string
	AncestryBroad      string
	AncestryFree       string
	AncestryCountry    string
	AncestryAdditional string

	CohortNames       []string
	CohortsAdditional string

	SourceGWASCatalog string
	SourcePMID        string
	SourceDOI         string
}

// NewSampleBuilder erstellt einen leeren SampleBuilder.
func NewSampleBuilder(rep *report.Report, sheet string, row int) *SampleBuilder {
	return &SampleBuilder{base: newBase(rep, sheet, row)}
}

// AddField übernimmt einen Zellwert.
func (b *SampleBuilder) AddField(field string, v parsers.Value) {
	apply(sampleSetters, b, &b.base, field, v)
}

// Stage bestimmt die Rolle: "Test…" ist eine Test-Stichprobe, GWAS- bzw. Source-Angaben
// kennzeichnen Varianten-Stichproben, alles andere ist Training.
func (b *SampleBuilder) Stage() Stage {
	stage := strings.ToLower(strings.TrimSpace(b.StudyStage))
	switch {
	case strings.HasPrefix(stage, "test"):
		return StageTesting
	case strings.Contains(stage, "gwas"), strings.HasPrefix(stage, "source"):
		return StageVariants
	case stage == "" && b.SampleSet != "":
		return StageTesting
	}
	return StageTraining
}

// Create legt die Sample mit ihren Demographics an. Die Kohorten sind bereits aufgelöst.
func (b *SampleBuilder) Create(ctx context.Context, store catalog.Store, cohorts []models.Cohort) (*models.Sample, error) {
	if b.SampleCases != nil && b.SampleControls != nil && b.SampleNumber != nil &&
		*b.SampleCases+*b.SampleControls != *b.SampleNumber {
		b.warnf("the number of cases (%d) and controls (%d) does not add up to the number of individuals (%d)",
			*b.SampleCases, *b.SampleControls, *b.SampleNumber)
	}
	s := &models.Sample{
		SampleNumber:       b.SampleNumber,
		SampleCases:        b.SampleCases,
		SampleControls:     b.SampleControls,
		SamplePercentMale:  b.SamplePercentMale,
		SampleAge:          toDemographic(b.SampleAge),
		FollowupTime:       toDemographic(b.FollowupTime),
		PhenotypingFree:    b.PhenotypingFree,
		AncestryBroad:      b.AncestryBroad,
		AncestryFree:       b.AncestryFree,
		AncestryCountry:    b.AncestryCountry,
		AncestryAdditional: b.AncestryAdditional,
		Cohorts:            cohorts,
		CohortsAdditional:  b.CohortsAdditional,
		SourceGWASCatalog:  b.SourceGWASCatalog,
		SourcePMID:         b.SourcePMID,
		SourceDOI:          b.SourceDOI,
	}
	if s.SampleNumber == nil && s.SampleCases != nil {
		n := *s.SampleCases
		if s.SampleControls != nil {
			n += *s.SampleControls
		}
		s.SampleNumber = &n
	}
	if err := store.CreateSample(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// toDemographic liefert für jede Sample eine eigene Kopie.
func toDemographic(d *parsers.Demographic) *models.Demographic {
	if d == nil || d.IsEmpty() {
		return nil
	}
	out := &models.Demographic{
		Estimate:        d.Estimate,
		EstimateType:    d.EstimateType,
		RangeType:       d.RangeType,
		Variability:     d.Variability,
		VariabilityType: d.VariabilityType,
		Unit:            d.Unit,
	}
	if d.Range != nil {
		lower, upper := d.Range.Lower, d.Range.Upper
		out.RangeLower, out.RangeUpper = &lower, &upper
	}
	if out.Unit == "" {
		out.Unit = "years"
	}
	return out
}

// SampleSetBuilder gruppiert die Test-Samples mit gleichem Sample-Set-Namen.
type SampleSetBuilder struct {
	base

	Name    string
	Samples []*SampleBuilder
}

// NewSampleSetBuilder erstellt einen leeren SampleSetBuilder.
func NewSampleSetBuilder(rep *report.Report, sheet string, row int, name string) *SampleSetBuilder {
	return &SampleSetBuilder{base: newBase(rep, sheet, row), Name: strings.TrimSpace(name)}
}

// Create legt das SampleSet für bereits gespeicherte Samples an.
func (b *SampleSetBuilder) Create(ctx context.Context, store catalog.Store, samples []models.Sample) (*models.SampleSet, error) {
	if len(samples) == 0 {
		b.errorf("sample set %q has no samples", b.Name)
		return nil, nil
	}
	set := &models.SampleSet{Name: b.Name, Samples: samples}
	if err := store.CreateSampleSet(ctx, set); err != nil {
		return nil, err
	}
	return set, nil
}
