// Package metrics exposes acquisition counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "adclogger"

// Metrics implements the acquire and csvlog recorder interfaces.
type Metrics struct {
	samples   *prometheus.CounterVec
	rows      *prometheus.CounterVec
	errors    *prometheus.CounterVec
	lastValue *prometheus.GaugeVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		samples: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_total",
			Help:      "Averaged readings persisted, by channel.",
		}, []string{"channel"}),
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_appended_total",
			Help:      "CSV rows appended, by schema.",
		}, []string{"schema"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Aborted acquisition runs, by error kind.",
		}, []string{"kind"}),
		lastValue: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_value",
			Help:      "Last persisted value, by channel.",
		}, []string{"channel"}),
	}
	reg.MustRegister(m.samples, m.rows, m.errors, m.lastValue)
	return m
}

func (m *Metrics) Sampled(channel string, value float64) {
	m.samples.WithLabelValues(channel).Inc()
	m.lastValue.WithLabelValues(channel).Set(value)
}

func (m *Metrics) Failed(kind string) { m.errors.WithLabelValues(kind).Inc() }

func (m *Metrics) RowsAppended(schema string, n int) {
	m.rows.WithLabelValues(schema).Add(float64(n))
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
