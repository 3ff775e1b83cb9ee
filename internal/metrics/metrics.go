// Package metrics exposes Prometheus instruments for the auth flows. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Login outcomes.
const (
	OutcomeSuccess     = "success"
	OutcomeInvalid     = "invalid_credentials"
	OutcomeRateLimited = "rate_limited"
	OutcomeError       = "error"
)

// Metrics holds the service's instruments.
type Metrics struct {
	logins        *prometheus.CounterVec
	rateLimited   *prometheus.CounterVec
	tokensIssued  *prometheus.CounterVec
	tokensRevoked *prometheus.CounterVec
	emails        *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
}

// New creates the instruments and registers them with reg.
// Panics if registration fails (following prometheus convention).
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gtd_auth_login_attempts_total",
			Help: "Login attempts by outcome",
		}, []string{"outcome"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gtd_auth_rate_limited_total",
			Help: "Requests rejected by the rate limiter",
		}, []string{"action"}),
		tokensIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gtd_auth_tokens_issued_total",
			Help: "Signed tokens issued by type",
		}, []string{"type"}),
		tokensRevoked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gtd_auth_tokens_revoked_total",
			Help: "Tokens revoked by reason",
		}, []string{"reason"}),
		emails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gtd_auth_emails_total",
			Help: "Email deliveries by template and status",
		}, []string{"template", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gtd_auth_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	reg.MustRegister(m.logins, m.rateLimited, m.tokensIssued, m.tokensRevoked, m.emails, m.httpDuration)
	return m
}

// Login counts a login attempt.
func (m *Metrics) Login(outcome string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(outcome).Inc()
}

// RateLimited counts a rejection for action.
func (m *Metrics) RateLimited(action string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(action).Inc()
}

// TokensIssued counts n tokens of type typ.
func (m *Metrics) TokensIssued(typ string, n int) {
	if m == nil {
		return
	}
	m.tokensIssued.WithLabelValues(typ).Add(float64(n))
}

// TokenRevoked counts a revocation.
func (m *Metrics) TokenRevoked(reason string) {
	if m == nil {
		return
	}
	m.tokensRevoked.WithLabelValues(reason).Inc()
}

// Email counts a delivery attempt result.
func (m *Metrics) Email(template, status string) {
	if m == nil {
		return
	}
	m.emails.WithLabelValues(template, status).Inc()
}

// ObserveHTTP records the latency of a request.
func (m *Metrics) ObserveHTTP(method, route, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.httpDuration.WithLabelValues(method, route, status).Observe(d.Seconds())
}
