package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"pgs-curation/models"
)

var (
	// ErrNotFound: die Anfrage ergab keinen Treffer.
	ErrNotFound = errors.New("nicht gefunden")
	// ErrAmbiguous: die Anfrage ergab mehr als einen Treffer.
	ErrAmbiguous = errors.New("mehrdeutig")
)

// Query identifiziert eine Publikation über DOI und/oder PMID.
type Query struct {
	DOI  string
	PMID string
}

// IsEmpty meldet, ob weder DOI noch PMID gesetzt sind.
func (q Query) IsEmpty() bool {
	return strings.TrimSpace(q.DOI) == "" && strings.TrimSpace(q.PMID) == ""
}

func (q Query) String() string {
	switch {
	case q.DOI != "" && q.PMID != "":
		return fmt.Sprintf("doi:%s pmid:%s", q.DOI, q.PMID)
	case q.DOI != "":
		return "doi:" + q.DOI
	default:
		return "pmid:" + q.PMID
	}
}

// LiteratureProvider ist das Interface, das jeder Literatur-Provider (z.B. PubMed, EuropePMC) implementieren muss.
type LiteratureProvider interface {
	// Lookup liefert die Metadaten einer Publikation oder ErrNotFound.
	Lookup(ctx context.Context, q Query) (*models.Publication, error)

	// Name gibt den eindeutigen Namen des Providers zurück (z.B. "pubmed").
	Name() string
}

// OntologyProvider liefert Ontologie-Begriffe (EFO) über ihre ID.
type OntologyProvider interface {
	// LookupTerm liefert ErrNotFound bzw. ErrAmbiguous bei null oder mehreren Treffern.
	LookupTerm(ctx context.Context, id string) (*models.EFOTrait, error)
}

// Chain fragt mehrere Provider nacheinander; die erste Antwort, die nicht ErrNotFound ist, gewinnt.
type Chain struct {
	Providers []LiteratureProvider
	Logger    *zap.Logger
}

// NewChain erstellt eine Provider-Kette.
func NewChain(logger *zap.Logger, providers ...LiteratureProvider) *Chain {
	return &Chain{Providers: providers, Logger: logger}
}

// Name gibt den Namen der Kette zurück.
func (c *Chain) Name() string {
	names := make([]string, 0, len(c.Providers))
	for _, p := range c.Providers {
		names = append(names, p.Name())
	}
	return strings.Join(names, ",")
}

// Lookup fragt die Provider der Reihe nach. Transportfehler werden protokolliert und der
// nächste Provider gefragt; schlagen alle fehl, wird der letzte Fehler zurückgegeben.
func (c *Chain) Lookup(ctx context.Context, q Query) (*models.Publication, error) {
	if q.IsEmpty() {
		return nil, fmt.Errorf("weder DOI noch PMID angegeben: %w", ErrNotFound)
	}
	var lastErr error
	for _, p := range c.Providers {
		pub, err := p.Lookup(ctx, q)
		if err == nil && pub != nil {
			if c.Logger != nil {
				c.Logger.Debug("Publikation gefunden", zap.String("provider", p.Name()), zap.String("query", q.String()))
			}
			return pub, nil
		}
		if err != nil && !errors.Is(err, ErrNotFound) {
			if c.Logger != nil {
				c.Logger.Warn("Provider-Abfrage fehlgeschlagen", zap.String("provider", p.Name()), zap.Error(err))
			}
			lastErr = fmt.Errorf("%s: %w", p.Name(), err)
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, fmt.Errorf("%s: %w", q, ErrNotFound)
}
