package metrics

import "time"

// Recorder defines the interface for recording application metrics.
// Implementations include Metrics (Prometheus-based) and NoopMetrics (no-op).
type Recorder interface {
	// Connection Flow
	RecordConnectAttempt(provider string, success bool)
	RecordCallback(provider string, success bool)
	RecordTokenRefresh(provider string, success bool)
	RecordRevocation(provider string, remoteSuccess bool)
	RecordProviderAPICall(provider, operation string, duration time.Duration)

	// Refresh Sweep
	RecordRefreshSweep(refreshed, failed int)

	// Gauge Setters (for periodic updates)
	SetConnectedAccountsCount(provider string, count int64)

	// Database Operations
	RecordDatabaseQueryError(operation string)
}
