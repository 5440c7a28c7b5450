package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ontohub/internal/workers"
)

type PoolStats interface {
	Stats() workers.Stats
}

// Metrics owns the registry served at /metrics.
type Metrics struct {
	registry   *prometheus.Registry
	deliveries *prometheus.CounterVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	deliveries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ontohub_webhook_deliveries_total",
		Help: "Terminal webhook delivery outcomes by status and error kind",
	}, []string{"status", "kind"})
	registry.MustRegister(deliveries)

	return &Metrics{registry: registry, deliveries: deliveries}
}

// RecordDelivery counts one ledger row. kind is empty for successes.
func (m *Metrics) RecordDelivery(status, kind string) {
	m.deliveries.WithLabelValues(status, kind).Inc()
}

// RegisterPool exposes the delivery pool's gauges and counters.
func (m *Metrics) RegisterPool(pool PoolStats) {
	gauge := func(name, help string, value func(workers.Stats) float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help}, func() float64 {
			return value(pool.Stats())
		})
	}
	counter := func(name, help string, value func(workers.Stats) float64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{Name: name, Help: help}, func() float64 {
			return value(pool.Stats())
		})
	}

	m.registry.MustRegister(
		gauge("ontohub_delivery_workers", "Webhook delivery worker goroutines",
			func(s workers.Stats) float64 { return float64(s.Workers) }),
		gauge("ontohub_delivery_queue_depth", "Deliveries waiting for a worker",
			func(s workers.Stats) float64 { return float64(s.Queued) }),
		gauge("ontohub_delivery_queue_capacity", "Delivery queue capacity",
			func(s workers.Stats) float64 { return float64(s.Capacity) }),
		counter("ontohub_delivery_jobs_completed_total", "Delivery jobs finished",
			func(s workers.Stats) float64 { return float64(s.Completed) }),
		counter("ontohub_delivery_jobs_rejected_total", "Delivery jobs refused by a full or closed queue",
			func(s workers.Stats) float64 { return float64(s.Rejected) }),
		counter("ontohub_delivery_jobs_panicked_total", "Delivery jobs that panicked",
			func(s workers.Stats) float64 { return float64(s.Panicked) }),
	)
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
