// Package metrics provides Prometheus instrumentation for the authentication
// service: request counters, verification outcomes, store latencies and
// background sweep results.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace is the Prometheus namespace for all service metrics
	Namespace = "uniauth"

	// Label names
	LabelOperation  = "operation"
	LabelOutcome    = "outcome"
	LabelReason     = "reason"
	LabelMethod     = "method"
	LabelRoute      = "route"
	LabelStatusCode = "status_code"

	// Outcome values
	OutcomeVerified = "verified"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"

	// Operation names
	OpChallenge = "challenge"
	OpVerify    = "verify"
	OpBind      = "bind"
	OpRegister  = "register"
	OpLogin     = "login"
	OpRefresh   = "refresh"
	OpLogout    = "logout"
)

var (
	// VerificationsTotal counts wallet verifications by operation, outcome and
	// rejection reason ("none" on success)
	VerificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "verifications_total",
			Help:      "Total number of wallet signature verifications by operation, outcome and reason",
		},
		[]string{LabelOperation, LabelOutcome, LabelReason},
	)

	// ChallengesIssuedTotal counts issued sign-in challenges
	ChallengesIssuedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "challenges_issued_total",
			Help:      "Total number of sign-in challenges issued",
		},
	)

	// AccountsCreatedTotal counts accounts by provider
	AccountsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "accounts_created_total",
			Help:      "Total number of accounts created by provider",
		},
		[]string{"provider"},
	)

	// OperationDuration tracks service operation latency in seconds
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of authentication operations in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{LabelOperation},
	)

	// NoncesSweptTotal counts nonces removed by the background sweeper
	NoncesSweptTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "nonces_swept_total",
			Help:      "Total number of expired nonces removed by the sweeper",
		},
	)

	// HTTPRequestsTotal counts HTTP requests by method, route and status code
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{LabelMethod, LabelRoute, LabelStatusCode},
	)

	// HTTPRequestDuration tracks HTTP request latency in seconds
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{LabelMethod, LabelRoute},
	)

	// RateLimitedTotal counts requests rejected by the rate limiter
	RateLimitedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "rate_limited_total",
			Help:      "Total number of requests rejected by the rate limiter",
		},
	)
)

// RecordVerification records the result of a verify or bind attempt
func RecordVerification(operation, outcome, reason string) {
	if reason == "" {
		reason = "none"
	}
	VerificationsTotal.WithLabelValues(operation, outcome, reason).Inc()
}

// ObserveOperation records how long an operation took since start
func ObserveOperation(operation string, start time.Time) {
	OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// RecordHTTPRequest records a served HTTP request
func RecordHTTPRequest(method, route, statusCode string, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, route, statusCode).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
