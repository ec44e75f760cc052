package services

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics sind die Prometheus-Zähler des Imports.
type Metrics struct {
	Studies  *prometheus.CounterVec
	Entities *prometheus.CounterVec
}

// NewMetrics erstellt die Zähler und registriert sie bei reg (nil = nicht registrieren).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Studies: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pgs_studies_imported_total",
				Help: "Anzahl importierter Studien nach Ergebnis.",
			},
			[]string{"status"},
		),
		Entities: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pgs_entities_created_total",
				Help: "Anzahl angelegter Datensätze nach Art (nur erfolgreiche Studien).",
			},
			[]string{"kind"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.Studies, m.Entities)
	}
	return m
}

func (m *Metrics) observe(res *ImportResult) {
	if m == nil || res == nil {
		return
	}
	if res.Failed {
		m.Studies.WithLabelValues("failed").Inc()
		return
	}
	m.Studies.WithLabelValues("succeeded").Inc()
	c := res.Created
	if c.Publication != nil {
		m.Entities.WithLabelValues("publication").Inc()
	}
	m.Entities.WithLabelValues("score").Add(float64(len(c.Scores)))
	m.Entities.WithLabelValues("sample").Add(float64(len(c.Samples)))
	m.Entities.WithLabelValues("sample_set").Add(float64(len(c.SampleSets)))
	m.Entities.WithLabelValues("performance").Add(float64(len(c.Performances)))
	m.Entities.WithLabelValues("metric").Add(float64(len(c.Metrics)))
}
