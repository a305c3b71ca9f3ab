// Package metrics exposes Prometheus counters for the auth shell.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector records guard, controller and auth flow metrics.
type Collector struct {
	guardDecisions *prometheus.CounterVec
	transitions    *prometheus.CounterVec
	pollAttempts   *prometheus.HistogramVec
	authOperations *prometheus.CounterVec
}

// NewCollector creates a Collector and registers it with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		guardDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hoodgram_route_guard_decisions_total",
			Help: "Route guard decisions by action and target.",
		}, []string{"action", "target"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hoodgram_auth_state_transitions_total",
			Help: "Auth state controller transitions by resulting state.",
		}, []string{"state"}),
		pollAttempts: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hoodgram_profile_poll_attempts",
			Help:    "Profile lookups needed after sign-in, by outcome.",
			Buckets: []float64{1, 2, 3, 4, 5},
		}, []string{"outcome"}),
		authOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hoodgram_auth_operations_total",
			Help: "Auth form operations by operation and result.",
		}, []string{"operation", "result"}),
	}

	reg.MustRegister(c.guardDecisions, c.transitions, c.pollAttempts, c.authOperations)
	return c
}

// RecordGuardDecision counts one route guard outcome. target is the redirect
// path without query, or empty for allow.
func (c *Collector) RecordGuardDecision(action, target string) {
	c.guardDecisions.WithLabelValues(action, target).Inc()
}

// RecordTransition counts a settled controller state.
func (c *Collector) RecordTransition(state string) {
	c.transitions.WithLabelValues(state).Inc()
}

// RecordProfilePoll observes how many lookups a reconciliation took.
func (c *Collector) RecordProfilePoll(attempts int, outcome string) {
	c.pollAttempts.WithLabelValues(outcome).Observe(float64(attempts))
}

// RecordAuthOperation counts a sign-up, sign-in, sign-out or similar call.
func (c *Collector) RecordAuthOperation(operation string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.authOperations.WithLabelValues(operation, result).Inc()
}

// Handler returns the scrape endpoint for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop discards every measurement.
type Nop struct{}

func (Nop) RecordGuardDecision(string, string) {}
func (Nop) RecordTransition(string)            {}
func (Nop) RecordProfilePoll(int, string)      {}
func (Nop) RecordAuthOperation(string, error)  {}
