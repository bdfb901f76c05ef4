package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry is the dedicated Prometheus registry for the service.
	Registry = prometheus.NewRegistry()

	// Dispatches counts dispatch calls by event and whether anyone matched.
	Dispatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "webhook_dispatches_total", Help: "Webhook dispatches by event and result."},
		[]string{"event", "result"},
	)
	// Deliveries counts attempt outcomes by event and outcome kind.
	Deliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Webhook delivery attempts by event and outcome."},
		[]string{"event", "outcome"},
	)
	// Retries counts scheduled retries by event.
	Retries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "webhook_retries_total", Help: "Webhook retries scheduled by event."},
		[]string{"event"},
	)
	// Latency tracks attempt latency in milliseconds.
	Latency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "webhook_delivery_latency_ms", Help: "Webhook delivery latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000, 10000}},
		[]string{"event", "outcome"},
	)
	// QueueDepth is the number of jobs waiting in the worker pool buffer.
	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "webhook_pool_queue_depth", Help: "Delivery jobs buffered in the worker pool."},
	)
)

var regOnce sync.Once

// Register adds all collectors to Registry. Safe to call more than once.
func Register() {
	regOnce.Do(func() {
		Registry.MustRegister(Dispatches, Deliveries, Retries, Latency, QueueDepth)
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

// Handler serves Registry in the Prometheus exposition format.
func Handler() http.Handler {
	Register()
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
