package parsers

import (
	"fmt"
	"regexp"
	"strings"
)

// Demographic beschreibt eine Altersangabe oder Follow-up-Zeit einer Stichprobe.
type Demographic struct {
	Estimate        *float64
	EstimateType    string
	Range           *Interval
	RangeType       string
	Variability     *float64
	VariabilityType string
	Unit            string
}

// IsEmpty meldet, ob gar kein Wert gelesen wurde.
func (d Demographic) IsEmpty() bool {
	return d.Estimate == nil && d.Range == nil && d.Variability == nil
}

var bracketValueRE = regexp.MustCompile(`^\[([^\]]*)\]\s*(.*)$`)

// ParseDemographic liest eine Zahl oder eine Liste "name=wert[ einheit]; …".
// Fehlerhafte Klauseln werden gemeldet und übersprungen.
func ParseDemographic(v Value) (Demographic, []string) {
	var d Demographic
	var problems []string
	report := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if v.Numeric {
		f := v.Number
		d.Estimate = &f
		return d, nil
	}
	if f, err := parseNumber(v.Text); err == nil {
		d.Estimate = &f
		return d, nil
	}

	for _, clause := range strings.Split(v.Text, ";") {
		clause = strings.TrimSpace(clause)
		if clause == "" {
			continue
		}
		parts := strings.Split(clause, "=")
		if len(parts) != 2 {
			report("%q: unable to parse the clause %q, expected <name> = <value>", v.Text, clause)
			continue
		}
		name := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		lname := strings.ToLower(name)

		if m := bracketValueRE.FindStringSubmatch(value); m != nil {
			interval, err := ParseInterval(m[1])
			if err != nil {
				report("%q: %v", v.Text, err)
				continue
			}
			d.Range = &interval
			d.RangeType = name
			if lname == "iqr" {
				d.RangeType = "IQR"
			}
			if unit := strings.TrimSpace(m[2]); unit != "" {
				d.Unit = unit
			}
			continue
		}

		est, unit := splitEstimateUnit(value)
		f, err := parseNumber(est)
		if err != nil {
			report("%q: unable to parse the value %q of %q", v.Text, est, name)
			continue
		}
		switch {
		case strings.HasPrefix(lname, "m"):
			d.Estimate = &f
			d.EstimateType = lname
		case strings.HasPrefix(lname, "s"):
			d.Variability = &f
			d.VariabilityType = lname
		default:
			report("%q: unknown value type %q", v.Text, name)
			continue
		}
		if unit != "" {
			d.Unit = unit
		}
	}
	return d, problems
}
