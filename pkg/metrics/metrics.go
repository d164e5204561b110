package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	InFlightGauge   prometheus.Gauge

	ServiceRequestsCreated prometheus.Counter
	AcceptAttemptsTotal    *prometheus.CounterVec
	TransitionsTotal       *prometheus.CounterVec
	ReviewsTotal           prometheus.Counter
	NearbyDoctors          prometheus.Histogram

	ActiveSubscriptions *prometheus.GaugeVec
	SubscriberOverflow  *prometheus.CounterVec

	DomainEventsTotal *prometheus.CounterVec

	AuditEntriesTotal  prometheus.Counter
	AuditBufferDropped prometheus.Counter

	gatherer prometheus.Gatherer
}

// NewCollector registers every metric on reg. Passing a fresh
// prometheus.NewRegistry() keeps tests isolated from the default registry.
func NewCollector(serviceName string, reg *prometheus.Registry) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method, path, and status code.",
		}, []string{"method", "path", "status"}),

		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: serviceName,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency distribution.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"method", "path", "status"}),

		InFlightGauge: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: serviceName,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),

		ServiceRequestsCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "dispatch",
			Name:      "service_requests_created_total",
			Help:      "Total number of service requests created by patients.",
		}),

		AcceptAttemptsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "dispatch",
			Name:      "accept_attempts_total",
			Help:      "Accept attempts by outcome (assigned, already_taken, unavailable, error).",
		}, []string{"outcome"}),

		TransitionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "dispatch",
			Name:      "transitions_total",
			Help:      "Applied service request transitions by target status.",
		}, []string{"status"}),

		ReviewsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "dispatch",
			Name:      "reviews_total",
			Help:      "Total reviews submitted.",
		}),

		NearbyDoctors: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: serviceName,
			Subsystem: "dispatch",
			Name:      "nearby_doctors",
			Help:      "Online doctors within radius when a request is created.",
			Buckets:   []float64{0, 1, 2, 5, 10, 25, 50},
		}),

		ActiveSubscriptions: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: serviceName,
			Subsystem: "fanout",
			Name:      "active_subscriptions",
			Help:      "Open subscriptions by kind (feed, request).",
		}, []string{"kind"}),

		SubscriberOverflow: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "fanout",
			Name:      "subscriber_overflow_total",
			Help:      "Subscriptions closed because their buffer was full. Alert if increasing.",
		}, []string{"kind"}),

		DomainEventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Domain events handed to the broker by result (ok, error, dropped, breaker_open).",
		}, []string{"result"}),

		AuditEntriesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "audit",
			Name:      "entries_total",
			Help:      "Total audit log entries written.",
		}),

		AuditBufferDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "audit",
			Name:      "buffer_dropped_total",
			Help:      "Audit entries dropped due to full buffer. Alert if non-zero.",
		}),

		gatherer: reg,
	}
}

// NewProcessRegistry returns a registry preloaded with the Go runtime and
// process collectors.
func NewProcessRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}
