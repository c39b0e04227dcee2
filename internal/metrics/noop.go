package metrics

import "time"

// NoopMetrics is a no-operation implementation of Recorder
// All methods are empty and do nothing, providing zero overhead when metrics are disabled
type NoopMetrics struct{}

// Ensure NoopMetrics implements Recorder interface at compile time
var _ Recorder = (*NoopMetrics)(nil)

// NewNoopMetrics creates a new no-operation metrics recorder
func NewNoopMetrics() Recorder {
	return &NoopMetrics{}
}

// Connection Flow - noop implementations
func (n *NoopMetrics) RecordConnectAttempt(provider string, success bool)      {}
func (n *NoopMetrics) RecordCallback(provider string, success bool)            {}
func (n *NoopMetrics) RecordTokenRefresh(provider string, success bool)        {}
func (n *NoopMetrics) RecordRevocation(provider string, remoteSuccess bool)    {}
func (n *NoopMetrics) RecordProviderAPICall(provider, operation string, duration time.Duration) {
}

// Refresh Sweep - noop implementations
func (n *NoopMetrics) RecordRefreshSweep(refreshed, failed int) {}

// Gauge Setters - noop implementations
func (n *NoopMetrics) SetConnectedAccountsCount(provider string, count int64) {}

// Database Operations - noop implementations
func (n *NoopMetrics) RecordDatabaseQueryError(operation string) {}
