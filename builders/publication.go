package builders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"pgs-curation/catalog"
	"pgs-curation/models"
	"pgs-curation/parsers"
	"pgs-curation/providers"
	"pgs-curation/report"
)

var publicationSetters = setters[PublicationBuilder]{
	"doi": func(b *PublicationBuilder, v parsers.Value) error {
		b.DOI = strings.TrimPrefix(strings.TrimPrefix(v.Text, "https://doi.org/"), "doi:")
		return nil
	},
	"pmid": func(b *PublicationBuilder, v parsers.Value) error {
		n, err := v.Int()
		if err != nil {
			return err
		}
		b.PMID = fmt.Sprint(n)
		return nil
	},
	"journal":      func(b *PublicationBuilder, v parsers.Value) error { b.Journal = v.Text; return nil },
	"first_author": func(b *PublicationBuilder, v parsers.Value) error { b.FirstAuthor = v.Text; return nil },
	"authors":      func(b *PublicationBuilder, v parsers.Value) error { b.Authors = v.Text; return nil },
	"title":        func(b *PublicationBuilder, v parsers.Value) error { b.Title = v.Text; return nil },
	"publication_date": func(b *PublicationBuilder, v parsers.Value) error {
		t, err := parseDate(v)
		if err != nil {
			return err
		}
		b.PublicationDate = &t
		return nil
	},
	"curation_notes": func(b *PublicationBuilder, v parsers.Value) error { b.CurationNotes = v.Text; return nil },
}

// PublicationBuilder sammelt die Felder des Blatts "Publication Information".
type PublicationBuilder struct {
	base

	DOI             string
	PMID            string
	Journal         string
	FirstAuthor     string
	Authors         string
	Title           string
	PublicationDate *time.Time
	CurationNotes   string
}

// NewPublicationBuilder erstellt einen leeren PublicationBuilder.
func NewPublicationBuilder(rep *report.Report, sheet string, row int) *PublicationBuilder {
	return &PublicationBuilder{base: newBase(rep, sheet, row)}
}

// AddField übernimmt einen Zellwert.
func (b *PublicationBuilder) AddField(field string, v parsers.Value) {
	apply(publicationSetters, b, &b.base, field, v)
}

// Query ist der natürliche Schlüssel (DOI bevorzugt, sonst PMID).
func (b *PublicationBuilder) Query() providers.Query {
	return providers.Query{DOI: b.DOI, PMID: b.PMID}
}

// Resolve sucht eine vorhandene Publication über DOI, dann PMID. Legt nie etwas an.
func (b *PublicationBuilder) Resolve(ctx context.Context, store catalog.Store) (*models.Publication, error) {
	if b.Query().IsEmpty() {
		return nil, nil
	}
	return store.FindPublication(ctx, b.DOI, b.PMID)
}

// Create holt die Pflichtfelder vom Literatur-Provider und legt die Publication an.
// Schlägt die Abfrage fehl, wird ein Fehler gemeldet und nichts angelegt (nil, nil).
func (b *PublicationBuilder) Create(ctx context.Context, store catalog.Store, lit providers.LiteratureProvider, curationStatus string) (*models.Publication, error) {
	if b.Query().IsEmpty() {
		b.errorf("neither a DOI nor a PubMed ID is given")
		return nil, nil
	}
	found, err := lit.Lookup(ctx, b.Query())
	if err != nil {
		if errors.Is(err, providers.ErrNotFound) {
			b.errorf("no publication found for %s", b.Query())
		} else {
			b.errorf("unable to fetch the publication %s: %v", b.Query(), err)
		}
		return nil, nil
	}

	pub := b.merge(found)
	pub.CurationStatus = curationStatus
	pub.CurationNotes = b.CurationNotes
	if err := store.CreatePublication(ctx, pub); err != nil {
		return nil, err
	}
	return pub, nil
}

// merge ergänzt die Provider-Daten um Angaben aus dem Template, wo der Provider nichts liefert.
// Weicht die DOI ab, wird gewarnt.
func (b *PublicationBuilder) merge(found *models.Publication) *models.Publication {
	pub := *found
	if b.DOI != "" && pub.DOI != "" && !strings.EqualFold(b.DOI, pub.DOI) {
		b.warnf("the DOI %q differs from the one found for this publication (%q)", b.DOI, pub.DOI)
	}
	fill := func(dst *string, src string) {
		if *dst == "" {
			*dst = src
		}
	}
	fill(&pub.DOI, b.DOI)
	fill(&pub.PMID, b.PMID)
	fill(&pub.Journal, b.Journal)
	fill(&pub.FirstAuthor, b.FirstAuthor)
	fill(&pub.Authors, b.Authors)
	fill(&pub.Title, b.Title)
	if pub.PublicationDate == nil {
		pub.PublicationDate = b.PublicationDate
	}
	missing := []struct{ field, value string }{
		{"journal", pub.Journal},
		{"first author", pub.FirstAuthor},
		{"title", pub.Title},
	}
	for _, m := range missing {
		if m.value == "" {
			b.warnf("the publication has no %s", m.field)
		}
	}
	return &pub
}

var dateLayouts = []string{"2006-01-02", "2006/01/02", "02/01/2006", "2 January 2006", "2006-01", "2006"}

// parseDate akzeptiert Excel-Seriennummern und gängige Textformate.
func parseDate(v parsers.Value) (time.Time, error) {
	if v.Numeric {
		if v.Number > 3000 {
			return excelize.ExcelDateToTime(v.Number, false)
		}
		return time.Date(int(v.Number), time.January, 1, 0, 0, 0, 0, time.UTC), nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v.Text); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse the date %q", v.Text)
}
