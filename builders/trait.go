package builders

import (
	"context"
	"errors"
	"strings"

	"pgs-curation/catalog"
	"pgs-curation/models"
	"pgs-curation/providers"
	"pgs-curation/report"
)

// TraitBuilder beschreibt einen im Template referenzierten EFO-Begriff.
type TraitBuilder struct {
	base

	ID    string
	Label string
}

// NewTraitBuilder normalisiert die ID; ungültige IDs werden gemeldet (nil).
func NewTraitBuilder(rep *report.Report, sheet string, row int, id, label string) *TraitBuilder {
	b := &TraitBuilder{base: newBase(rep, sheet, row), Label: strings.TrimSpace(label)}
	normalized, ok := NormalizeTraitID(id)
	if !ok {
		b.errorf("%q is not a valid ontology term identifier", id)
		return nil
	}
	b.ID = normalized
	return b
}

// Resolve sucht den Begriff lokal über die Ontologie-ID.
func (b *TraitBuilder) Resolve(ctx context.Context, store catalog.Store) (*models.EFOTrait, error) {
	return store.FindTrait(ctx, b.ID)
}

// Create holt den Begriff vom Ontologie-Dienst und legt ihn an. Weicht das Label ab
// oder ist der Begriff unbekannt bzw. mehrdeutig, wird ein Fehler gemeldet und nichts angelegt.
func (b *TraitBuilder) Create(ctx context.Context, store catalog.Store, onto providers.OntologyProvider) (*models.EFOTrait, error) {
	term, err := onto.LookupTerm(ctx, b.ID)
	switch {
	case errors.Is(err, providers.ErrNotFound):
		b.errorf("EFO trait %s: the term can not be found in the ontology", b.ID)
		return nil, nil
	case errors.Is(err, providers.ErrAmbiguous):
		b.errorf("EFO trait %s: the term is ambiguous in the ontology", b.ID)
		return nil, nil
	case err != nil:
		b.errorf("EFO trait %s: unable to fetch the term: %v", b.ID, err)
		return nil, nil
	}

	if b.Label != "" && !strings.EqualFold(b.Label, term.Label) {
		b.errorf("EFO trait %s: the label %q does not match the ontology label %q", b.ID, b.Label, term.Label)
		return nil, nil
	}
	term.EFOID = b.ID
	if err := store.CreateTrait(ctx, term); err != nil {
		return nil, err
	}
	return term, nil
}
