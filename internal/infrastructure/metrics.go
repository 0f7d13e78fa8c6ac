package infrastructure

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus instruments for the dataset lifecycle.
type Metrics struct {
	registry *prometheus.Registry

	IngestsTotal  *prometheus.CounterVec
	RowsIngested  prometheus.Counter
	RowsDropped   prometheus.Counter
	RowsAppended  prometheus.Counter
	SourceFetches *prometheus.CounterVec
	Exports       prometheus.Counter
}

// NewMetrics registers the application's instruments on a private registry so
// tests can create instances without collector name collisions.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		IngestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "nebula_ingests_total",
			Help: "Ingestion attempts by source kind and outcome.",
		}, []string{"kind", "outcome"}),
		RowsIngested: factory.NewCounter(prometheus.CounterOpts{
			Name: "nebula_rows_ingested_total",
			Help: "Rows that survived normalization.",
		}),
		RowsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "nebula_rows_dropped_total",
			Help: "Rows dropped for an unparseable date or primary metric.",
		}),
		RowsAppended: factory.NewCounter(prometheus.CounterOpts{
			Name: "nebula_rows_appended_total",
			Help: "Rows inserted through manual entry.",
		}),
		SourceFetches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "nebula_source_fetches_total",
			Help: "Remote source fetches by cache result.",
		}, []string{"cache"}),
		Exports: factory.NewCounter(prometheus.CounterOpts{
			Name: "nebula_exports_total",
			Help: "Dataset CSV exports served.",
		}),
	}
}

// Handler exposes the registry in Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
