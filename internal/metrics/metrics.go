// Package metrics provides Prometheus instrumentation for Truly.
//
// All collectors are registered on the Registerer passed to New, so tests can
// use an isolated registry. Methods on a nil *Metrics are no-ops.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "truly"

// Result label values.
const (
	ResultSuccess = "success"
	ResultInvalid = "invalid"
	ResultError   = "error"

	// Message intake.
	ResultNotFound  = "not_found"
	ResultForbidden = "forbidden"

	// Credential checks.
	ResultNoSuchUser     = "no_such_user"
	ResultNotVerified    = "not_verified"
	ResultBadCredentials = "bad_credentials"

	// Sign-ups.
	ResultCreated   = "created"
	ResultReissued  = "reissued"
	ResultDuplicate = "duplicate"
)

// Metrics holds the collectors for the HTTP API and the core operations.
type Metrics struct {
	// HTTPRequestsTotal counts requests by method, route pattern and status code.
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTPRequestDuration observes request latency by method and route pattern.
	HTTPRequestDuration *prometheus.HistogramVec

	// MessagesSentTotal counts message intake attempts by result
	// (success, not_found, forbidden, invalid, error).
	MessagesSentTotal *prometheus.CounterVec

	// AuthAttemptsTotal counts credential checks by result
	// (success, no_such_user, not_verified, bad_credentials, invalid, error).
	AuthAttemptsTotal *prometheus.CounterVec

	// SignUpsTotal counts sign-ups by result (created, reissued, duplicate, invalid, error).
	SignUpsTotal *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New creates and registers the collectors on reg.
// When reg is also a prometheus.Gatherer, Handler serves it.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	m := &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total HTTP requests by method, route and status",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		MessagesSentTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "messages_sent_total",
				Help:      "Anonymous message sends by result",
			},
			[]string{"result"},
		),
		AuthAttemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "auth_attempts_total",
				Help:      "Credential authentication attempts by result",
			},
			[]string{"result"},
		),
		SignUpsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "signups_total",
				Help:      "Sign-up attempts by result",
			},
			[]string{"result"},
		),
	}

	if g, ok := reg.(prometheus.Gatherer); ok {
		m.gatherer = g
	} else {
		m.gatherer = prometheus.DefaultGatherer
	}
	return m
}

// MessageSent records a message intake outcome.
func (m *Metrics) MessageSent(result string) {
	if m == nil {
		return
	}
	m.MessagesSentTotal.WithLabelValues(result).Inc()
}

// AuthAttempt records a credential authentication outcome.
func (m *Metrics) AuthAttempt(result string) {
	if m == nil {
		return
	}
	m.AuthAttemptsTotal.WithLabelValues(result).Inc()
}

// SignUp records a sign-up outcome.
func (m *Metrics) SignUp(result string) {
	if m == nil {
		return
	}
	m.SignUpsTotal.WithLabelValues(result).Inc()
}

// Handler serves the registered collectors in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Middleware records request count and latency per chi route pattern.
// Unmatched routes are labelled "unmatched" to keep cardinality bounded.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		m.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
