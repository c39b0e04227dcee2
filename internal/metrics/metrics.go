package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Ensure Metrics implements Recorder interface at compile time
var _ Recorder = (*Metrics)(nil)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	// Connection Flow Metrics
	ConnectAttemptsTotal *prometheus.CounterVec
	CallbacksTotal       *prometheus.CounterVec
	TokenRefreshesTotal  *prometheus.CounterVec
	RevocationsTotal     *prometheus.CounterVec
	ProviderAPIDuration  *prometheus.HistogramVec

	// Refresh Sweep Metrics
	RefreshSweepRunsTotal     prometheus.Counter
	RefreshSweepAccountsTotal *prometheus.CounterVec

	// Connected Account Metrics
	ConnectedAccountsActive *prometheus.GaugeVec

	// HTTP Request Metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Database Query Metrics
	DatabaseQueryErrorsTotal *prometheus.CounterVec
}

var (
	defaultMetrics *Metrics
	once           sync.Once
)

// Init initializes metrics based on enabled flag
// If enabled=true, returns Prometheus-based Metrics
// If enabled=false, returns NoopMetrics (zero overhead)
// Uses sync.Once to ensure Prometheus metrics are only registered once
func Init(enabled bool) Recorder {
	if !enabled {
		return NewNoopMetrics()
	}

	once.Do(func() {
		defaultMetrics = initMetrics()
	})
	return defaultMetrics
}

// initMetrics creates and registers all Prometheus metrics
func initMetrics() *Metrics {
	m := &Metrics{
		// Connection Flow Metrics
		ConnectAttemptsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth_connect_attempts_total",
				Help: "Total number of authorization URL generations",
			},
			[]string{"provider", "result"}, // result: success, error
		),
		CallbacksTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth_callbacks_total",
				Help: "Total number of OAuth callback completions",
			},
			[]string{"provider", "result"}, // result: success, error
		),
		TokenRefreshesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth_token_refreshes_total",
				Help: "Total number of access token refresh attempts",
			},
			[]string{"provider", "result"}, // result: success, error
		),
		RevocationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth_revocations_total",
				Help: "Total number of access revocations",
			},
			[]string{
				"provider",
				"remote_result",
			}, // remote_result: success, error, unsupported
		),
		ProviderAPIDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "provider_api_duration_seconds",
				Help:    "Time taken for external provider API calls",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider", "operation"}, // exchange, refresh, account_info, revoke
		),

		// Refresh Sweep Metrics
		RefreshSweepRunsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "refresh_sweep_runs_total",
				Help: "Total number of background refresh sweep runs",
			},
		),
		RefreshSweepAccountsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "refresh_sweep_accounts_total",
				Help: "Total number of accounts processed by the refresh sweep",
			},
			[]string{"result"}, // refreshed, failed
		),

		// Connected Account Metrics
		ConnectedAccountsActive: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "connected_accounts_active",
				Help: "Current number of active connected accounts",
			},
			[]string{"provider"},
		),

		// HTTP Request Metrics
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "http_request_duration_seconds",
				Help: "HTTP request latency in seconds",
				Buckets: []float64{
					0.001,
					0.005,
					0.010,
					0.025,
					0.050,
					0.100,
					0.250,
					0.500,
					1.0,
					2.5,
					5.0,
					10.0,
				},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Current number of HTTP requests being served",
			},
		),

		// Database Query Metrics
		DatabaseQueryErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "database_query_errors_total",
				Help: "Total number of database query errors during metric collection",
			},
			[]string{"operation"}, // count_connected_accounts, list_refresh_candidates
		),
	}

	return m
}

// RecordConnectAttempt records an authorization URL generation
func (m *Metrics) RecordConnectAttempt(provider string, success bool) {
	result := resultSuccess
	if !success {
		result = resultError
	}
	m.ConnectAttemptsTotal.WithLabelValues(provider, result).Inc()
}

// RecordCallback records an OAuth callback completion
func (m *Metrics) RecordCallback(provider string, success bool) {
	result := resultSuccess
	if !success {
		result = resultError
	}
	m.CallbacksTotal.WithLabelValues(provider, result).Inc()
}

// RecordTokenRefresh records an access token refresh attempt
func (m *Metrics) RecordTokenRefresh(provider string, success bool) {
	result := resultSuccess
	if !success {
		result = resultError
	}
	m.TokenRefreshesTotal.WithLabelValues(provider, result).Inc()
}

// RecordRevocation records an access revocation. remoteSuccess reflects
// the provider-side revoke call only; the local deactivation always
// happens regardless.
func (m *Metrics) RecordRevocation(provider string, remoteSuccess bool) {
	result := resultSuccess
	if !remoteSuccess {
		result = resultError
	}
	m.RevocationsTotal.WithLabelValues(provider, result).Inc()
}

// RecordProviderAPICall records external provider API call duration
func (m *Metrics) RecordProviderAPICall(provider, operation string, duration time.Duration) {
	m.ProviderAPIDuration.WithLabelValues(provider, operation).Observe(duration.Seconds())
}

// RecordRefreshSweep records the outcome of one background sweep run
func (m *Metrics) RecordRefreshSweep(refreshed, failed int) {
	m.RefreshSweepRunsTotal.Inc()
	m.RefreshSweepAccountsTotal.WithLabelValues("refreshed").Add(float64(refreshed))
	m.RefreshSweepAccountsTotal.WithLabelValues("failed").Add(float64(failed))
}

// SetConnectedAccountsCount sets the current count of active connected
// accounts for a provider (for periodic updates)
func (m *Metrics) SetConnectedAccountsCount(provider string, count int64) {
	m.ConnectedAccountsActive.WithLabelValues(provider).Set(float64(count))
}

// RecordDatabaseQueryError records a database query error during metric collection
func (m *Metrics) RecordDatabaseQueryError(operation string) {
	m.DatabaseQueryErrorsTotal.WithLabelValues(operation).Inc()
}
