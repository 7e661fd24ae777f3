package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// Register adds the HTTP collectors to registry. Calling it twice on the
// same registry panics.
func Register(registry *prometheus.Registry) {
	registry.MustRegister(RequestCount, RequestDuration)
}

func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// Ledger holds the domain counters of the request ledger.
type Ledger struct {
	Created     prometheus.Counter
	Transitions *prometheus.CounterVec
	Cleared     prometheus.Counter
}

func NewLedger(registry *prometheus.Registry) *Ledger {
	m := &Ledger{
		Created: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "accessgate_requests_created_total",
				Help: "Access requests accepted by the ledger.",
			},
		),
		Transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "accessgate_status_transitions_total",
				Help: "Status change attempts by target status and result.",
			},
			[]string{"to", "result"},
		),
		Cleared: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "accessgate_requests_cleared_total",
				Help: "Access requests removed by a ledger clear.",
			},
		),
	}

	registry.MustRegister(m.Created, m.Transitions, m.Cleared)
	return m
}
