// Package report sammelt Fehler, Warnungen und Import-Fehler eines Study-Imports, jeweils pro Tabellenblatt.
package report

import (
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Kind unterscheidet die drei Report-Kategorien.
type Kind int

const (
	// Error ist ein Parse- oder Auflösungsfehler, der den Import nicht blockiert.
	Error Kind = iota
	// Warning ist ein tolerierbares Problem in den Eingabedaten.
	Warning
	// ImportError entsteht beim Anlegen von Einträgen und lässt die ganze Studie scheitern.
	ImportError
)

var kinds = []Kind{Error, Warning, ImportError}

// String gibt den Schlüssel der Kategorie zurück, wie er auch im JSON verwendet wird.
func (k Kind) String() string {
	switch k {
	case Error:
		return "error"
	case Warning:
		return "warning"
	case ImportError:
		return "import-error"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// messageSet ist eine Menge von Meldungen, die die Einfügereihenfolge behält.
type messageSet struct {
	order []string
	seen  map[string]struct{}
}

func (m *messageSet) add(msg string) bool {
	if m.seen == nil {
		m.seen = make(map[string]struct{})
	}
	if _, ok := m.seen[msg]; ok {
		return false
	}
	m.seen[msg] = struct{}{}
	m.order = append(m.order, msg)
	return true
}

// sheetMessages bildet Blattname -> Meldungsmenge ab, Blätter in Reihenfolge des ersten Auftretens.
type sheetMessages struct {
	sheets []string
	bySet  map[string]*messageSet
}

func (s *sheetMessages) add(sheet, msg string) {
	if s.bySet == nil {
		s.bySet = make(map[string]*messageSet)
	}
	set, ok := s.bySet[sheet]
	if !ok {
		set = &messageSet{}
		s.bySet[sheet] = set
		s.sheets = append(s.sheets, sheet)
	}
	set.add(msg)
}

func (s *sheetMessages) empty() bool {
	return len(s.sheets) == 0
}

// Report ist der gemeinsame Sammelpunkt für alle Meldungen einer Studie.
// Der Nullwert ist nicht nutzbar, New verwenden.
type Report struct {
	byKind map[Kind]*sheetMessages
}

// New erstellt einen leeren Report.
func New() *Report {
	r := &Report{byKind: make(map[Kind]*sheetMessages, len(kinds))}
	for _, k := range kinds {
		r.byKind[k] = &sheetMessages{}
	}
	return r
}

// Add fügt eine Meldung hinzu. Identische Meldungen pro Blatt werden nur einmal gespeichert.
func (r *Report) Add(kind Kind, sheet, msg string) {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return
	}
	sm, ok := r.byKind[kind]
	if !ok {
		sm = &sheetMessages{}
		r.byKind[kind] = sm
	}
	sm.add(sheet, msg)
}

// Errorf meldet einen nicht-blockierenden Fehler.
func (r *Report) Errorf(sheet, format string, args ...any) {
	r.Add(Error, sheet, fmt.Sprintf(format, args...))
}

// Warnf meldet eine Warnung.
func (r *Report) Warnf(sheet, format string, args ...any) {
	r.Add(Warning, sheet, fmt.Sprintf(format, args...))
}

// ImportErrorf meldet einen Import-Fehler.
func (r *Report) ImportErrorf(sheet, format string, args ...any) {
	r.Add(ImportError, sheet, fmt.Sprintf(format, args...))
}

// Has meldet, ob es mindestens eine Meldung der Kategorie gibt.
func (r *Report) Has(kind Kind) bool {
	sm, ok := r.byKind[kind]
	return ok && !sm.empty()
}

// HasAny meldet, ob der Report überhaupt Meldungen enthält.
func (r *Report) HasAny() bool {
	for _, k := range kinds {
		if r.Has(k) {
			return true
		}
	}
	return false
}

// Sheets gibt die Blätter mit Meldungen der Kategorie zurück.
func (r *Report) Sheets(kind Kind) []string {
	sm, ok := r.byKind[kind]
	if !ok {
		return nil
	}
	return append([]string(nil), sm.sheets...)
}

// Messages gibt die Meldungen einer Kategorie für ein Blatt zurück.
func (r *Report) Messages(kind Kind, sheet string) []string {
	sm, ok := r.byKind[kind]
	if !ok || sm.bySet == nil {
		return nil
	}
	set, ok := sm.bySet[sheet]
	if !ok {
		return nil
	}
	return append([]string(nil), set.order...)
}

// Count gibt die Anzahl unterschiedlicher Meldungen einer Kategorie über alle Blätter zurück.
func (r *Report) Count(kind Kind) int {
	n := 0
	for _, sheet := range r.Sheets(kind) {
		n += len(r.Messages(kind, sheet))
	}
	return n
}

// Merge übernimmt alle Meldungen aus other, die Blattzuordnung bleibt erhalten.
func (r *Report) Merge(other *Report) {
	if other == nil {
		return
	}
	for _, k := range kinds {
		for _, sheet := range other.Sheets(k) {
			for _, msg := range other.Messages(k, sheet) {
				r.Add(k, sheet, msg)
			}
		}
	}
}

// FirstImportError liefert die erste Import-Fehlermeldung als "Blatt: Meldung".
func (r *Report) FirstImportError() string {
	for _, sheet := range r.Sheets(ImportError) {
		if msgs := r.Messages(ImportError, sheet); len(msgs) > 0 {
			return sheet + ": " + msgs[0]
		}
	}
	return ""
}

// MarshalJSON serialisiert als {"error": {"Blatt": ["…"]}, …}.
func (r *Report) MarshalJSON() ([]byte, error) {
	out := make(map[string]map[string][]string, len(kinds))
	for _, k := range kinds {
		sheets := r.Sheets(k)
		if len(sheets) == 0 {
			continue
		}
		bySheet := make(map[string][]string, len(sheets))
		for _, sheet := range sheets {
			bySheet[sheet] = r.Messages(k, sheet)
		}
		out[k.String()] = bySheet
	}
	return json.Marshal(out)
}

// Log schreibt alle Meldungen in den Logger, Import-Fehler und Fehler auf Error-Level.
func (r *Report) Log(logger *zap.Logger) {
	for _, k := range kinds {
		for _, sheet := range r.Sheets(k) {
			for _, msg := range r.Messages(k, sheet) {
				fields := []zap.Field{zap.String("kind", k.String()), zap.String("sheet", sheet), zap.String("message", msg)}
				if k == Warning {
					logger.Warn("Curation-Meldung", fields...)
				} else {
					logger.Error("Curation-Meldung", fields...)
				}
			}
		}
	}
}
