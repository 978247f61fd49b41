package utils

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Tracks client-side request and reconciliation metrics
type MetricsCollector struct {
	registry *prometheus.Registry

	requests  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	refreshes *prometheus.CounterVec
	votes     *prometheus.CounterVec
}

func NewMetricsCollector() *MetricsCollector {
	mc := &MetricsCollector{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "katha",
			Name:      "requests_total",
			Help:      "Requests sent to the Katha API by operation and status class.",
		}, []string{"operation", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "katha",
			Name:      "request_duration_seconds",
			Help:      "Latency of Katha API requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "katha",
			Name:      "token_refreshes_total",
			Help:      "Access token refresh attempts by outcome.",
		}, []string{"outcome"}),
		votes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "katha",
			Name:      "votes_total",
			Help:      "Vote reconciliations by target kind and outcome.",
		}, []string{"kind", "outcome"}),
	}
	mc.registry.MustRegister(mc.requests, mc.latency, mc.refreshes, mc.votes)
	return mc
}

// Registry exposes the collector's registry, e.g. for promhttp.HandlerFor.
func (mc *MetricsCollector) Registry() *prometheus.Registry {
	return mc.registry
}

// ObserveRequest records one round-trip. status 0 means the request never got a response.
func (mc *MetricsCollector) ObserveRequest(operation string, status int, duration time.Duration) {
	if mc == nil {
		return
	}
	mc.requests.WithLabelValues(operation, statusClass(status)).Inc()
	mc.latency.WithLabelValues(operation).Observe(duration.Seconds())
}

func (mc *MetricsCollector) IncrementRefresh(outcome string) {
	if mc == nil {
		return
	}
	mc.refreshes.WithLabelValues(outcome).Inc()
}

func (mc *MetricsCollector) IncrementVote(kind, outcome string) {
	if mc == nil {
		return
	}
	mc.votes.WithLabelValues(kind, outcome).Inc()
}

// RequestCount returns the number of requests seen for operation with the given status class.
func (mc *MetricsCollector) RequestCount(operation, class string) float64 {
	return counterValue(mc.requests.WithLabelValues(operation, class))
}

func (mc *MetricsCollector) RefreshCount(outcome string) float64 {
	return counterValue(mc.refreshes.WithLabelValues(outcome))
}

func (mc *MetricsCollector) VoteCount(kind, outcome string) float64 {
	return counterValue(mc.votes.WithLabelValues(kind, outcome))
}

func statusClass(status int) string {
	if status == 0 {
		return "error"
	}
	return strconv.Itoa(status/100) + "xx"
}

func counterValue(c prometheus.Counter) float64 {
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}
