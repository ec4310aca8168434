// Package metrics provides Prometheus metrics for alertboard.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "alertboard"
)

// HTTP metrics
var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration tracks HTTP request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	// HTTPRequestsInFlight tracks concurrent HTTP requests.
	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "Number of HTTP requests currently being processed",
		},
	)
)

// Feed metrics
var (
	// FeedSubscriptionsActive tracks open live subscriptions by backend.
	FeedSubscriptionsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "subscriptions_active",
			Help:      "Number of open live alert subscriptions",
		},
		[]string{"backend"},
	)

	// FeedSnapshotsTotal counts snapshots handed to subscribers.
	FeedSnapshotsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "snapshots_total",
			Help:      "Total snapshots delivered to subscribers",
		},
		[]string{"backend"},
	)

	// FeedSnapshotsSuperseded counts snapshots replaced before a slow subscriber read them.
	FeedSnapshotsSuperseded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "snapshots_superseded_total",
			Help:      "Snapshots replaced by a newer one before delivery",
		},
		[]string{"backend"},
	)

	// FeedAppendsTotal counts append calls by backend and result.
	FeedAppendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "appends_total",
			Help:      "Total alert appends",
		},
		[]string{"backend", "result"}, // ok, error
	)

	// FeedSubscriptionErrors counts subscriptions that ended with an error.
	FeedSubscriptionErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "subscription_errors_total",
			Help:      "Live subscriptions terminated by an error",
		},
		[]string{"backend"},
	)

	// AlertsStored is the alert count last seen by the readiness probe.
	AlertsStored = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "alerts_stored",
			Help:      "Alerts in the local store at the last readiness check",
		},
	)
)

// Screen metrics
var (
	// ScreenSubmitsTotal counts submit actions by outcome.
	ScreenSubmitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "screen",
			Name:      "submits_total",
			Help:      "Alert form submissions",
		},
		[]string{"result"}, // ok, empty, no_session, error
	)

	// ScreensMounted tracks mounted alert screens.
	ScreensMounted = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "screen",
			Name:      "mounted",
			Help:      "Number of currently mounted alert screens",
		},
	)
)

// Stream metrics
var (
	// StreamsActive tracks open push connections by transport.
	StreamsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "connections_active",
			Help:      "Open snapshot streams",
		},
		[]string{"transport"}, // sse, websocket
	)
)

// Auth metrics
var (
	// AuthAttemptsTotal counts authentication attempts.
	AuthAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "attempts_total",
			Help:      "Total authentication attempts",
		},
		[]string{"result"}, // success, failure, locked
	)

	// AuthTokensIssued counts issued tokens.
	AuthTokensIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "tokens_issued_total",
			Help:      "Total tokens issued",
		},
		[]string{"type"}, // access, refresh
	)
)

// Info metric
var (
	// BuildInfo exposes build information.
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Build information",
		},
		[]string{"version", "commit", "build_time"},
	)
)

// SetBuildInfo sets the build info metric.
func SetBuildInfo(version, commit, buildTime string) {
	BuildInfo.WithLabelValues(version, commit, buildTime).Set(1)
}
