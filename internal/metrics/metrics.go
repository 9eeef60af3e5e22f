// Package metrics provides Prometheus collectors for the gateway client,
// the action stores and the HTTP surface.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"marketanalytics/webclient/internal/store"
)

// Collector implements apiclient.Recorder and store.Observer.
type Collector struct {
	apiCalls     *prometheus.CounterVec
	apiLatency   *prometheus.HistogramVec
	transitions  *prometheus.CounterVec
	navigations  *prometheus.CounterVec
	httpRequests *prometheus.CounterVec
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		apiCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webclient_api_calls_total",
			Help: "Calls to the market analytics API by operation and outcome.",
		}, []string{"op", "outcome", "status"}),
		apiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "webclient_api_call_duration_seconds",
			Help:    "Latency of market analytics API calls.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webclient_slot_transitions_total",
			Help: "Applied slot transitions by slot and resulting status.",
		}, []string{"slot", "status"}),
		navigations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webclient_navigations_total",
			Help: "Screen changes by target screen.",
		}, []string{"screen"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webclient_http_requests_total",
			Help: "Requests served by route and status code.",
		}, []string{"method", "route", "status"}),
	}

	reg.MustRegister(c.apiCalls, c.apiLatency, c.transitions, c.navigations, c.httpRequests)
	return c
}

// ObserveCall records one API call.
func (c *Collector) ObserveCall(op string, status int, outcome string, elapsed time.Duration) {
	c.apiCalls.WithLabelValues(op, outcome, strconv.Itoa(status)).Inc()
	c.apiLatency.WithLabelValues(op).Observe(elapsed.Seconds())
}

// Observe records a store event.
func (c *Collector) Observe(e store.Event) {
	switch e.Kind {
	case store.KindTransition:
		c.transitions.WithLabelValues(e.Slot, e.Status.String()).Inc()
	case store.KindNavigation:
		c.navigations.WithLabelValues(string(e.Screen)).Inc()
	}
}

// RecordRequest records one served HTTP request.
func (c *Collector) RecordRequest(method, route string, status int) {
	if route == "" {
		route = "unmatched"
	}
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}

// RegisterGauge registers a gauge whose value is read from fn on scrape.
func RegisterGauge(reg prometheus.Registerer, name, help string, fn func() float64) {
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help}, fn))
}

// Handler returns the HTTP handler for Prometheus scrapes.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
