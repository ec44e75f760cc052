package parsers

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// MetricKind ist die Art einer Leistungskennzahl.
type MetricKind string

const (
	EffectSize           MetricKind = "Effect Size"
	ClassificationMetric MetricKind = "Classification Metric"
	OtherMetric          MetricKind = "Other Metric"
)

const metricFieldPrefix = "metric_"

var metricKindsByKey = map[string]MetricKind{
	"effect": EffectSize,
	"class":  ClassificationMetric,
	"other":  OtherMetric,
}

type metricName struct {
	long  string
	short string
}

// knownMetrics bildet gängige Kürzel auf (Name, Kurzname) ab.
var knownMetrics = map[string]metricName{
	"OR":      {"Odds Ratio", "OR"},
	"HR":      {"Hazard Ratio", "HR"},
	"AUROC":   {"Area Under the Receiver-Operating Characteristic Curve", "AUROC"},
	"AUC":     {"Area Under the Receiver-Operating Characteristic Curve", "AUROC"},
	"CINDEX":  {"Concordance Statistic", "C-index"},
	"C-INDEX": {"Concordance Statistic", "C-index"},
	"R2":      {"Proportion of the variance explained", "R²"},
	"R²":      {"Proportion of the variance explained", "R²"},
	"BETA":    {"Beta", "β"},
}

// maxShortNameLength: frei benannte Kennzahlen bis zu dieser Länge dienen als eigener Kurzname.
const maxShortNameLength = 10

// Metric ist das Ergebnis von ParseMetric. CI und SE sind nie gleichzeitig gesetzt.
type Metric struct {
	Kind      MetricKind
	Name      string
	ShortName string
	Estimate  float64
	Unit      string
	CI        *Interval
	SE        *float64

	estimated bool
}

// Valid meldet, ob ein Schätzwert gelesen werden konnte.
func (m Metric) Valid() bool {
	return m.estimated && m.Name != ""
}

// ParseMetricField zerlegt einen Feldnamen wie "metric_effect_OR" in Art und Kürzel.
func ParseMetricField(field string) (MetricKind, string, bool) {
	if !strings.HasPrefix(field, metricFieldPrefix) {
		return "", "", false
	}
	parts := strings.SplitN(strings.TrimPrefix(field, metricFieldPrefix), "_", 2)
	if len(parts) != 2 || parts[1] == "" {
		return "", "", false
	}
	kind, ok := metricKindsByKey[parts[0]]
	if !ok {
		return "", "", false
	}
	return kind, parts[1], true
}

// ParseMetric liest eine Kennzahl-Zelle. Probleme werden als Meldungen zurückgegeben,
// das (bestmögliche) Ergebnis wird trotzdem geliefert.
func ParseMetric(kind MetricKind, code string, v Value) (Metric, []string) {
	m := Metric{Kind: kind}
	var problems []string
	report := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	text := v.Text
	if known, ok := lookupMetricName(code); ok {
		m.Name, m.ShortName = known.long, known.short
	} else if !v.Numeric && strings.Contains(text, "=") {
		parts := strings.SplitN(text, "=", 2)
		m.Name = strings.TrimSpace(parts[0])
		text = strings.TrimSpace(parts[1])
	} else if !strings.EqualFold(code, "other") {
		m.Name = code
	} else {
		report("%q: unable to find the metric name, expected the form <name> = <value>", v.Text)
	}
	if m.ShortName == "" && m.Name != "" && utf8.RuneCountInString(m.Name) <= maxShortNameLength {
		m.ShortName = m.Name
	}

	if v.Numeric {
		m.Estimate = v.Number
		m.estimated = true
		return m, problems
	}

	setEstimate := func(raw string) {
		est, unit := splitEstimateUnit(raw)
		f, err := parseNumber(est)
		if err != nil {
			report("%q: unable to parse the estimate %q", v.Text, est)
			return
		}
		m.Estimate = f
		m.estimated = true
		m.Unit = unit
	}

	if open := strings.Index(text, "("); open >= 0 {
		closing := strings.Index(text[open:], ")")
		if closing < 0 {
			report("%q: missing closing parenthesis", v.Text)
			setEstimate(text[:open])
			return m, problems
		}
		inner := text[open+1 : open+closing]
		setEstimate(text[:open])
		se, err := parseNumber(inner)
		if err != nil {
			report("%q: unable to parse the standard error %q", v.Text, strings.TrimSpace(inner))
		} else {
			m.SE = &se
		}
		if extra := strings.TrimSpace(text[open+closing+1:]); extra != "" {
			report("%q: extra information detected after the standard error: %q", v.Text, extra)
		}
		return m, problems
	}

	if open := strings.Index(text, "["); open >= 0 {
		closing := strings.Index(text[open:], "]")
		if closing < 0 {
			report("%q: missing closing bracket", v.Text)
			setEstimate(text[:open])
			return m, problems
		}
		setEstimate(text[:open])
		ci, err := ParseInterval(text[open+1 : open+closing])
		if err != nil {
			report("%q: %v", v.Text, err)
		} else {
			m.CI = &ci
			if m.estimated && !ci.Contains(m.Estimate) {
				report("%q: the estimate %g is outside its confidence interval %s", v.Text, m.Estimate, ci)
			}
		}
		if extra := strings.TrimSpace(text[open+closing+1:]); extra != "" {
			report("%q: extra information detected after the confidence interval: %q", v.Text, extra)
		}
		return m, problems
	}

	setEstimate(text)
	return m, problems
}

func lookupMetricName(code string) (metricName, bool) {
	n, ok := knownMetrics[strings.ToUpper(strings.TrimSpace(code))]
	return n, ok
}
