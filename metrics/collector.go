package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/melkeydev/db-export/types"
)

const namespace = "dbexport"

// Collector holds the service metrics on its own registry. A nil
// *Collector is valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	connects       *prometheus.CounterVec
	activeSessions prometheus.Gauge
	exports        *prometheus.CounterVec
	tables         *prometheus.CounterVec
	rows           *prometheus.CounterVec
	tableDuration  *prometheus.HistogramVec
}

// NewCollector registers every metric on registry. A nil registry gets a
// fresh private one.
func NewCollector(registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	c := &Collector{
		registry: registry,
		connects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connect_total",
			Help:      "Connection attempts by database type and result.",
		}, []string{"type", "result"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Open database handles.",
		}),
		exports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exports_total",
			Help:      "Exports by database type and result.",
		}, []string{"type", "result"}),
		tables: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tables_exported_total",
			Help:      "Tables written into archives.",
		}, []string{"type"}),
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_exported_total",
			Help:      "Data rows written into archives.",
		}, []string{"type"}),
		tableDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "table_export_duration_seconds",
			Help:      "Time spent streaming one table.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		}, []string{"type"}),
	}

	registry.MustRegister(
		c.connects,
		c.activeSessions,
		c.exports,
		c.tables,
		c.rows,
		c.tableDuration,
	)
	return c
}

// RecordConnect counts one connection attempt.
func (c *Collector) RecordConnect(kind types.Kind, result string) {
	if c == nil {
		return
	}
	c.connects.WithLabelValues(string(kind), result).Inc()
}

func (c *Collector) SetActiveSessions(n int) {
	if c == nil {
		return
	}
	c.activeSessions.Set(float64(n))
}

// RecordTableExport counts one finished table.
func (c *Collector) RecordTableExport(kind types.Kind, rows int64, duration time.Duration) {
	if c == nil {
		return
	}
	c.tables.WithLabelValues(string(kind)).Inc()
	c.rows.WithLabelValues(string(kind)).Add(float64(rows))
	c.tableDuration.WithLabelValues(string(kind)).Observe(duration.Seconds())
}

// RecordExport counts one finished or aborted export.
func (c *Collector) RecordExport(kind types.Kind, result string) {
	if c == nil {
		return
	}
	c.exports.WithLabelValues(string(kind), result).Inc()
}

// Registry returns the registry the collector writes to.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}
