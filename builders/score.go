package builders

import (
	"context"
	"fmt"
	"strings"

	"pgs-curation/catalog"
	"pgs-curation/models"
	"pgs-curation/parsers"
	"pgs-curation/report"
)

var scoreSetters = setters[ScoreBuilder]{
	"name":             func(b *ScoreBuilder, v parsers.Value) error { b.Name = v.Text; return nil },
	"trait_reported":   func(b *ScoreBuilder, v parsers.Value) error { b.TraitReported = v.Text; return nil },
	"trait_additional": func(b *ScoreBuilder, v parsers.Value) error { b.TraitAdditional = v.Text; return nil },
	"trait_efo":        func(b *ScoreBuilder, v parsers.Value) error { b.TraitIDs = v.List(); return nil },
	"trait_efo_label": func(b *ScoreBuilder, v parsers.Value) error {
		b.TraitLabels = v.List()
		return nil
	},
	"method_name":   func(b *ScoreBuilder, v parsers.Value) error { b.MethodName = v.Text; return nil },
	"method_params": func(b *ScoreBuilder, v parsers.Value) error { b.MethodParams = v.Text; return nil },
	"variants_number": func(b *ScoreBuilder, v parsers.Value) error {
		n, err := v.Int()
		if err != nil {
			return err
		}
		b.VariantsNumber = n
		return nil
	},
	"variants_genomebuild": func(b *ScoreBuilder, v parsers.Value) error { b.VariantsGenomeBuild = v.Text; return nil },
	"weight_type":          func(b *ScoreBuilder, v parsers.Value) error { b.WeightType = v.Text; return nil },
	"license":              func(b *ScoreBuilder, v parsers.Value) error { b.License = v.Text; return nil },
}

// ScoreBuilder sammelt eine Zeile des Blatts "Score(s)".
type ScoreBuilder struct {
	base

	Name                string
	TraitReported       string
	TraitAdditional     string
	TraitIDs            []string
	TraitLabels         []string
	MethodName          string
	MethodParams        string
	VariantsNumber      int
	VariantsGenomeBuild string
	WeightType          string
	License             string
}

// NewScoreBuilder erstellt einen leeren ScoreBuilder.
func NewScoreBuilder(rep *report.Report, sheet string, row int) *ScoreBuilder {
	return &ScoreBuilder{base: newBase(rep, sheet, row)}
}

// AddField übernimmt einen Zellwert.
func (b *ScoreBuilder) AddField(field string, v parsers.Value) {
	apply(scoreSetters, b, &b.base, field, v)
}

// Traits liefert je referenzierter Ontologie-ID einen TraitBuilder; Labels werden positionsweise zugeordnet.
func (b *ScoreBuilder) Traits() []*TraitBuilder {
	if len(b.TraitLabels) > 0 && len(b.TraitLabels) != len(b.TraitIDs) {
		b.warnf("score %q: %d trait identifiers but %d trait labels", b.Name, len(b.TraitIDs), len(b.TraitLabels))
	}
	var out []*TraitBuilder
	for i, id := range b.TraitIDs {
		label := ""
		if i < len(b.TraitLabels) {
			label = b.TraitLabels[i]
		}
		if t := NewTraitBuilder(b.rep, b.sheet, b.row, id, label); t != nil {
			out = append(out, t)
		}
	}
	return out
}

// Resolve sucht einen bereits importierten Score derselben Publication mit gleichem Namen.
func (b *ScoreBuilder) Resolve(ctx context.Context, store catalog.Store, pub *models.Publication) (*models.Score, error) {
	if pub == nil || pub.ID == 0 || b.Name == "" {
		return nil, nil
	}
	return store.FindScoreByName(ctx, pub.ID, b.Name)
}

// Create legt den Score mit seinen Traits an. Fehlende Traits werden nur gemeldet.
func (b *ScoreBuilder) Create(ctx context.Context, store catalog.Store, pub *models.Publication, traits []models.EFOTrait) (*models.Score, error) {
	if strings.TrimSpace(b.Name) == "" {
		b.errorf("a score without a name can not be created")
		return nil, nil
	}
	if len(traits) == 0 {
		b.errorf("score %q: no mapped EFO trait", b.Name)
	}
	s := &models.Score{
		Name:                b.Name,
		PublicationID:       pub.ID,
		TraitReported:       b.TraitReported,
		TraitAdditional:     b.TraitAdditional,
		MethodName:          b.MethodName,
		MethodParams:        b.MethodParams,
		VariantsNumber:      b.VariantsNumber,
		VariantsGenomeBuild: b.VariantsGenomeBuild,
		WeightType:          b.WeightType,
		License:             b.License,
		Traits:              traits,
	}
	if err := store.CreateScore(ctx, s); err != nil {
		return nil, fmt.Errorf("score %q: %w", b.Name, err)
	}
	return s, nil
}

// ResolveScoreCode löst einen Score aus einer anderen Studie über seinen Code auf.
// Unbekannte Codes sind ein Import-Fehler.
func ResolveScoreCode(ctx context.Context, store catalog.Store, rep *report.Report, sheet, code string) (*models.Score, error) {
	s, err := store.FindScoreByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if s == nil {
		rep.ImportErrorf(sheet, "unknown score %q", strings.ToUpper(strings.TrimSpace(code)))
	}
	return s, nil
}
