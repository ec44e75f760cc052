// Package parsers wandelt einzelne Tabellenzellen in typisierte Werte um.
package parsers

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Value ist eine bereinigte Zelle: entweder Text oder eine Zahl.
type Value struct {
	Text    string
	Number  float64
	Numeric bool
}

// Text bereinigt einen Zellentext (NFC-Normalisierung, Leerraum am Rand entfernen).
func Text(s string) Value {
	normalized, _, err := transform.String(norm.NFC, s)
	if err != nil {
		normalized = s
	}
	return Value{Text: strings.TrimSpace(strings.ReplaceAll(normalized, "\u00a0", " "))}
}

// Number erzeugt einen numerischen Wert; Zahlen werden unverändert durchgereicht.
func Number(f float64) Value {
	return Value{Number: f, Numeric: true, Text: strconv.FormatFloat(f, 'f', -1, 64)}
}

// IsEmpty meldet leere Textzellen.
func (v Value) IsEmpty() bool {
	return !v.Numeric && v.Text == ""
}

// String gibt die Textdarstellung zurück.
func (v Value) String() string {
	return v.Text
}

// Float liefert den Wert als Zahl, Text wird geparst.
func (v Value) Float() (float64, error) {
	if v.Numeric {
		return v.Number, nil
	}
	f, err := parseNumber(v.Text)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", v.Text)
	}
	return f, nil
}

// Int liefert den Wert als Ganzzahl; "1000.0" ist erlaubt, "10.5" nicht.
func (v Value) Int() (int, error) {
	f, err := v.Float()
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("%q is not an integer", v.Text)
	}
	return int(f), nil
}

// List trennt den Text an Kommas bzw. Semikolons und entfernt leere Einträge.
func (v Value) List() []string {
	parts := strings.FieldsFunc(v.Text, func(r rune) bool { return r == ',' || r == ';' })
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseNumber akzeptiert Zahlen mit Tausender-Trennzeichen nicht, nur reine Dezimalzahlen.
func parseNumber(s string) (float64, error) {
	s = strings.TrimSpace(normalizeDashes(s))
	return strconv.ParseFloat(s, 64)
}

var dashReplacer = strings.NewReplacer(
	"–", "-", // en dash
	"—", "-", // em dash
	"−", "-", // minus sign
	"‐", "-",
	"‑", "-",
)

// normalizeDashes ersetzt lange Striche durch ASCII-Bindestriche.
func normalizeDashes(s string) string {
	return dashReplacer.Replace(s)
}
