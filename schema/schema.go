// Package schema bildet Spaltenüberschriften der Curation-Templates auf Entitätsfelder ab.
package schema

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Kind ist die Ziel-Entität einer Spalte.
type Kind string

const (
	KindPublication Kind = "publication"
	KindScore       Kind = "score"
	KindSample      Kind = "sample"
	KindPerformance Kind = "performance"
	KindCohort      Kind = "cohort"
)

// Blattnamen des Standard-Templates.
const (
	SheetPublication = "Publication Information"
	SheetScores      = "Score(s)"
	SheetSamples     = "Sample Descriptions"
	SheetPerformance = "Performance Metrics"
	SheetCohorts     = "Cohort Refr."
)

var knownKinds = map[Kind]bool{
	KindPublication: true,
	KindScore:       true,
	KindSample:      true,
	KindPerformance: true,
	KindCohort:      true,
}

//go:embed default_schema.yaml
var defaultSchema []byte

// FieldRegistry prüft beim Laden, ob ein Builder das Feld kennt.
type FieldRegistry interface {
	Has(kind Kind, field string) bool
}

// Column ist eine Zeile der Schema-Tabelle.
type Column struct {
	Header  string `yaml:"header"`
	Primary string `yaml:"primary,omitempty"`
	Entity  Kind   `yaml:"entity"`
	Field   string `yaml:"field"`
}

// Sheet beschreibt ein Blatt des Templates.
type Sheet struct {
	Name       string   `yaml:"name"`
	HeaderRows int      `yaml:"header_rows"`
	Optional   bool     `yaml:"optional,omitempty"`
	Columns    []Column `yaml:"columns"`
}

// Target ist das Ergebnis einer Zuordnung.
type Target struct {
	Kind  Kind
	Field string
}

// Schema ist die geladene, indizierte Schema-Tabelle.
type Schema struct {
	Sheets []Sheet `yaml:"sheets"`

	index map[string]map[string]Target
}

// Load liest ein YAML-Schema und prüft alle Felder gegen registry (nil = keine Prüfung).
func Load(r io.Reader, registry FieldRegistry) (*Schema, error) {
	var s Schema
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("schema konnte nicht gelesen werden: %w", err)
	}
	if err := s.build(registry); err != nil {
		return nil, err
	}
	return &s, nil
}

// LoadFile lädt ein Schema von der Platte.
func LoadFile(path string, registry FieldRegistry) (*Schema, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f, registry)
}

// Default lädt das eingebettete Standard-Schema.
func Default(registry FieldRegistry) (*Schema, error) {
	return Load(bytes.NewReader(defaultSchema), registry)
}

func (s *Schema) build(registry FieldRegistry) error {
	if len(s.Sheets) == 0 {
		return fmt.Errorf("schema enthält keine Blätter")
	}
	s.index = make(map[string]map[string]Target, len(s.Sheets))
	for i := range s.Sheets {
		sh := &s.Sheets[i]
		name := normalize(sh.Name)
		if name == "" {
			return fmt.Errorf("blatt %d ohne Namen", i+1)
		}
		if _, dup := s.index[name]; dup {
			return fmt.Errorf("blatt %q ist doppelt definiert", sh.Name)
		}
		if sh.HeaderRows == 0 {
			sh.HeaderRows = 1
		}
		if sh.HeaderRows < 1 || sh.HeaderRows > 2 {
			return fmt.Errorf("blatt %q: header_rows muss 1 oder 2 sein", sh.Name)
		}
		cols := make(map[string]Target, len(sh.Columns))
		for _, c := range sh.Columns {
			if !knownKinds[c.Entity] {
				return fmt.Errorf("blatt %q, spalte %q: unbekannte Entität %q", sh.Name, c.Header, c.Entity)
			}
			if c.Field == "" {
				return fmt.Errorf("blatt %q, spalte %q: kein Feld angegeben", sh.Name, c.Header)
			}
			if registry != nil && !registry.Has(c.Entity, c.Field) {
				return fmt.Errorf("blatt %q, spalte %q: feld %s.%s ist unbekannt", sh.Name, c.Header, c.Entity, c.Field)
			}
			k := key(c.Primary, c.Header)
			if _, dup := cols[k]; dup {
				return fmt.Errorf("blatt %q: spalte %q ist doppelt definiert", sh.Name, c.Header)
			}
			cols[k] = Target{Kind: c.Entity, Field: c.Field}
		}
		s.index[name] = cols
	}
	return nil
}

// Sheet liefert die Blattbeschreibung.
func (s *Schema) Sheet(name string) (Sheet, bool) {
	for _, sh := range s.Sheets {
		if normalize(sh.Name) == normalize(name) {
			return sh, true
		}
	}
	return Sheet{}, false
}

// Lookup ordnet (Blatt, primäre Überschrift, sekundäre Überschrift) einem Feld zu.
// Reihenfolge: qualifizierte sekundäre, sekundäre, primäre Überschrift.
// Nicht zugeordnete Spalten sind kein Fehler.
func (s *Schema) Lookup(sheet, primary, secondary string) (Target, bool) {
	cols, ok := s.index[normalize(sheet)]
	if !ok {
		return Target{}, false
	}
	if normalize(secondary) != "" {
		if t, ok := cols[key(primary, secondary)]; ok {
			return t, true
		}
		if t, ok := cols[key("", secondary)]; ok {
			return t, true
		}
	}
	if normalize(primary) != "" {
		if t, ok := cols[key("", primary)]; ok {
			return t, true
		}
	}
	return Target{}, false
}

// MapHeader ordnet jede Spalte der Kopfzeilen einem Ziel zu. Bei zwei Kopfzeilen
// werden leere primäre Überschriften (verbundene Zellen) von links aufgefüllt.
// Nicht zugeordnete Spalten erhalten ein leeres Target.
func (s *Schema) MapHeader(sheet string, header [][]string) []Target {
	width := 0
	for _, row := range header {
		if len(row) > width {
			width = len(row)
		}
	}
	cell := func(r, c int) string {
		if r >= len(header) || c >= len(header[r]) {
			return ""
		}
		return header[r][c]
	}

	targets := make([]Target, width)
	lastPrimary := ""
	for c := 0; c < width; c++ {
		primary := cell(0, c)
		secondary := ""
		if len(header) > 1 {
			secondary = cell(1, c)
			if normalize(primary) == "" && normalize(secondary) != "" {
				primary = lastPrimary
			}
		}
		if normalize(cell(0, c)) != "" {
			lastPrimary = cell(0, c)
		}
		if t, ok := s.Lookup(sheet, primary, secondary); ok {
			targets[c] = t
		}
	}
	return targets
}

func key(primary, header string) string {
	if p := normalize(primary); p != "" {
		return p + "\x00" + normalize(header)
	}
	return normalize(header)
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
