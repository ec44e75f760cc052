package builders

import (
	"context"
	"strings"

	"pgs-curation/catalog"
	"pgs-curation/models"
	"pgs-curation/parsers"
	"pgs-curation/report"
)

var cohortSetters = setters[CohortBuilder]{
	"name_short":  func(b *CohortBuilder, v parsers.Value) error { b.NameShort = v.Text; return nil },
	"name_full":   func(b *CohortBuilder, v parsers.Value) error { b.NameFull = v.Text; return nil },
	"name_others": func(b *CohortBuilder, v parsers.Value) error { b.NameOthers = v.List(); return nil },
}

// CohortBuilder beschreibt eine Kohorte, entweder aus "Cohort Refr." oder aus einer Sample-Zeile.
type CohortBuilder struct {
	base

	NameShort  string
	NameFull   string
	NameOthers []string
}

// NewCohortBuilder erstellt einen leeren CohortBuilder.
func NewCohortBuilder(rep *report.Report, sheet string, row int) *CohortBuilder {
	return &CohortBuilder{base: newBase(rep, sheet, row)}
}

// AddField übernimmt einen Zellwert.
func (b *CohortBuilder) AddField(field string, v parsers.Value) {
	apply(cohortSetters, b, &b.base, field, v)
}

func (b *CohortBuilder) fullName() string {
	if b.NameFull != "" {
		return b.NameFull
	}
	return b.NameShort
}

// Resolve sucht die Kohorte über den Kurznamen (ohne Groß-/Kleinschreibung) und den vollen Namen.
// Passt nur der Kurzname, wird die erste Kohorte mit einer Warnung wiederverwendet.
func (b *CohortBuilder) Resolve(ctx context.Context, store catalog.Store) (*models.Cohort, error) {
	candidates, err := store.FindCohorts(ctx, b.NameShort)
	if err != nil || len(candidates) == 0 {
		return nil, err
	}
	for i := range candidates {
		if b.NameFull == "" || strings.EqualFold(candidates[i].NameFull, b.NameFull) {
			return &candidates[i], nil
		}
	}
	b.warnf("cohort %q: the full name %q differs from the existing cohort %q, the existing cohort is used",
		b.NameShort, b.NameFull, candidates[0].NameFull)
	return &candidates[0], nil
}

// Create legt die Kohorte an; ohne vollen Namen wird der Kurzname verwendet.
func (b *CohortBuilder) Create(ctx context.Context, store catalog.Store) (*models.Cohort, error) {
	c := &models.Cohort{
		NameShort:  b.NameShort,
		NameFull:   b.fullName(),
		NameOthers: b.NameOthers,
	}
	if err := store.CreateCohort(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// CohortIndex sind die Kohorten aus "Cohort Refr.", nach Kurzname (klein geschrieben).
type CohortIndex map[string]*CohortBuilder

// Add nimmt eine Kohorte auf; doppelte Kurznamen werden gemeldet.
func (idx CohortIndex) Add(b *CohortBuilder) {
	key := strings.ToLower(b.NameShort)
	if key == "" {
		b.errorf("cohort without a short name")
		return
	}
	if _, dup := idx[key]; dup {
		b.warnf("cohort %q is listed more than once", b.NameShort)
		return
	}
	idx[key] = b
}

// Builder liefert den Builder für name oder einen neuen, dessen voller Name der Kurzname ist.
func (idx CohortIndex) Builder(rep *report.Report, sheet string, row int, name string) *CohortBuilder {
	if b, ok := idx[strings.ToLower(strings.TrimSpace(name))]; ok {
		return b
	}
	b := NewCohortBuilder(rep, sheet, row)
	b.NameShort = strings.TrimSpace(name)
	return b
}
