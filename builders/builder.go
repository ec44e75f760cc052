// Package builders sammelt Zellwerte je Entität und löst sie gegen den Katalog auf
// bzw. legt sie neu an. Ob aufgelöst oder angelegt wird, entscheidet der Aufrufer.
package builders

import (
	"fmt"
	"regexp"
	"strings"

	"pgs-curation/parsers"
	"pgs-curation/report"
	"pgs-curation/schema"
)

// setters bildet Feldnamen auf Setter ab, einmal pro Entitätsart.
type setters[B any] map[string]func(b *B, v parsers.Value) error

// base hält Report und Herkunft (Blatt, Zeile) einer Builder-Instanz.
type base struct {
	rep   *report.Report
	sheet string
	row   int
}

func newBase(rep *report.Report, sheet string, row int) base {
	if rep == nil {
		rep = report.New()
	}
	return base{rep: rep, sheet: sheet, row: row}
}

// Sheet ist das Blatt, aus dem der Builder stammt.
func (b *base) Sheet() string { return b.sheet }

// Row ist die 1-basierte Tabellenzeile (0 = unbekannt).
func (b *base) Row() int { return b.row }

func (b *base) where() string {
	if b.row > 0 {
		return fmt.Sprintf("row %d: ", b.row)
	}
	return ""
}

func (b *base) errorf(format string, args ...any) {
	b.rep.Errorf(b.sheet, b.where()+format, args...)
}

func (b *base) warnf(format string, args ...any) {
	b.rep.Warnf(b.sheet, b.where()+format, args...)
}

func (b *base) problems(field string, msgs []string) {
	for _, msg := range msgs {
		b.errorf("%s: %s", field, msg)
	}
}

// apply ruft den Setter für field auf; leere Werte werden übersprungen.
func apply[B any](table setters[B], target *B, b *base, field string, v parsers.Value) {
	if v.IsEmpty() {
		return
	}
	set, ok := table[field]
	if !ok {
		b.errorf("unknown field %q", field)
		return
	}
	if err := set(target, v); err != nil {
		b.errorf("%s: %v", field, err)
	}
}

// Fields ist die Feld-Registry aller Builder, für die Prüfung beim Laden des Schemas.
var Fields schema.FieldRegistry = fieldRegistry{}

type fieldRegistry struct{}

func (fieldRegistry) Has(kind schema.Kind, field string) bool {
	switch kind {
	case schema.KindPublication:
		_, ok := publicationSetters[field]
		return ok
	case schema.KindCohort:
		_, ok := cohortSetters[field]
		return ok
	case schema.KindScore:
		_, ok := scoreSetters[field]
		return ok
	case schema.KindSample:
		_, ok := sampleSetters[field]
		return ok
	case schema.KindPerformance:
		if _, ok := performanceSetters[field]; ok {
			return true
		}
		_, _, ok := parsers.ParseMetricField(field)
		return ok
	}
	return false
}

var efoIDRE = regexp.MustCompile(`^([A-Za-z]+)[:_](\w+)$`)

// NormalizeTraitID macht aus "EFO:0000305" bzw. "efo_0000305" die Form "EFO_0000305".
func NormalizeTraitID(id string) (string, bool) {
	m := efoIDRE.FindStringSubmatch(strings.TrimSpace(id))
	if m == nil {
		return "", false
	}
	return strings.ToUpper(m[1]) + "_" + m[2], true
}

var scoreCodeRE = regexp.MustCompile(`^PGS\d{6}$`)

// IsScoreCode meldet, ob name ein stabiler Score-Code (PGS000123) ist.
func IsScoreCode(name string) bool {
	return scoreCodeRE.MatchString(strings.ToUpper(strings.TrimSpace(name)))
}

func intValue(v parsers.Value) (*int, error) {
	n, err := v.Int()
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func floatValue(v parsers.Value) (*float64, error) {
	f, err := v.Float()
	if err != nil {
		return nil, err
	}
	return &f, nil
}
