package parsers

import (
	"fmt"
	"regexp"
	"strings"
)

// Interval ist ein geschlossenes Intervall [Lower, Upper].
type Interval struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// Contains prüft, ob x im Intervall liegt (Grenzen eingeschlossen).
func (i Interval) Contains(x float64) bool {
	return x >= i.Lower && x <= i.Upper
}

func (i Interval) String() string {
	return fmt.Sprintf("[%g - %g]", i.Lower, i.Upper)
}

const numberPattern = `[-+]?(?:\d+\.?\d*|\.\d+)(?:[eE][-+]?\d+)?`

var (
	intervalRE    = regexp.MustCompile(`^\s*(` + numberPattern + `)\s+-\s+(` + numberPattern + `)\s*$`)
	intervalLaxRE = regexp.MustCompile(`^\s*(` + numberPattern + `)\s*-\s*(` + numberPattern + `)\s*$`)
)

// ParseInterval liest "a - b" (ohne Klammern). Lange Striche werden vorher normalisiert.
func ParseInterval(s string) (Interval, error) {
	s = normalizeDashes(s)
	m := intervalRE.FindStringSubmatch(s)
	if m == nil {
		m = intervalLaxRE.FindStringSubmatch(s)
	}
	if m == nil {
		return Interval{}, fmt.Errorf("interval %q does not match the format <number> - <number>", strings.TrimSpace(s))
	}
	lower, err := parseNumber(m[1])
	if err != nil {
		return Interval{}, fmt.Errorf("interval %q: invalid lower bound", s)
	}
	upper, err := parseNumber(m[2])
	if err != nil {
		return Interval{}, fmt.Errorf("interval %q: invalid upper bound", s)
	}
	return Interval{Lower: lower, Upper: upper}, nil
}

// splitEstimateUnit trennt "1.24 %" in Schätzwert und Einheit am ersten Leerzeichen.
func splitEstimateUnit(s string) (string, string) {
	s = strings.TrimSpace(s)
	if idx := strings.IndexAny(s, " \t"); idx >= 0 {
		return s[:idx], strings.TrimSpace(s[idx+1:])
	}
	return s, ""
}
