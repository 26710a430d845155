// Package metrics exposes Prometheus collectors for the relay endpoints.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/n0madic/donachat/internal/limits"
)

// Metrics holds counters/histograms for chat relay and feedback flows.
type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	upstreamLatency *prometheus.HistogramVec
	feedbackTotal   *prometheus.CounterVec
	rateLimitLeft   *prometheus.GaugeVec
}

// New creates the collectors and registers them on reg, falling back to the
// default registerer when reg is nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "donachat",
			Subsystem: "relay",
			Name:      "requests_total",
			Help:      "Chat relay requests by detected variant and outcome",
		}, []string{"variant", "outcome"}),
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "donachat",
			Subsystem: "upstream",
			Name:      "request_duration_seconds",
			Help:      "Latency of chat-completion calls",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32, 64},
		}, []string{"status"}),
		feedbackTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "donachat",
			Subsystem: "feedback",
			Name:      "submissions_total",
			Help:      "Feedback form relays by outcome",
		}, []string{"outcome"}),
		rateLimitLeft: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "donachat",
			Subsystem: "upstream",
			Name:      "ratelimit_remaining",
			Help:      "Remaining upstream budget reported on the last reply",
		}, []string{"window"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.requestsTotal, m.upstreamLatency, m.feedbackTotal, m.rateLimitLeft)
	return m
}

func (m *Metrics) ObserveRequest(variant, outcome string) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(variant, outcome).Inc()
}

func (m *Metrics) ObserveUpstream(status string, seconds float64) {
	if m == nil {
		return
	}
	m.upstreamLatency.WithLabelValues(status).Observe(seconds)
}

func (m *Metrics) ObserveFeedback(outcome string) {
	if m == nil {
		return
	}
	m.feedbackTotal.WithLabelValues(outcome).Inc()
}

// ObserveRateLimits records the budgets from an upstream reply. Absent
// windows leave the previous value in place.
func (m *Metrics) ObserveRateLimits(s *limits.Snapshot) {
	if m == nil || s == nil {
		return
	}
	if s.Requests != nil {
		m.rateLimitLeft.WithLabelValues("requests").Set(float64(s.Requests.Remaining))
	}
	if s.Tokens != nil {
		m.rateLimitLeft.WithLabelValues("tokens").Set(float64(s.Tokens.Remaining))
	}
}
