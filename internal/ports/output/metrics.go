package output

import "time"

// MetricsCollector defines the secondary port for metrics collection.
type MetricsCollector interface {
	// IncAttempts counts a request/store attempt by strategy and outcome.
	IncAttempts(strategy string, outcome string)

	// IncNegotiations counts finished negotiations by final strategy and status.
	IncNegotiations(strategy string, success bool)

	// ObserveNegotiationDuration records the duration of a negotiation.
	ObserveNegotiationDuration(duration time.Duration)

	// AddBytesMaterialized adds to the bytes written to final artifacts.
	AddBytesMaterialized(source string, n int64)

	// IncStorageOperations increments storage operation counter.
	IncStorageOperations(operation string, success bool)

	// ObserveStorageDuration records storage operation duration.
	ObserveStorageDuration(operation string, duration time.Duration)
}

// NoOpMetrics is a no-op implementation of MetricsCollector.
type NoOpMetrics struct{}

// IncAttempts implements MetricsCollector.
func (n *NoOpMetrics) IncAttempts(_ string, _ string) {}

// IncNegotiations implements MetricsCollector.
func (n *NoOpMetrics) IncNegotiations(_ string, _ bool) {}

// ObserveNegotiationDuration implements MetricsCollector.
func (n *NoOpMetrics) ObserveNegotiationDuration(_ time.Duration) {}

// AddBytesMaterialized implements MetricsCollector.
func (n *NoOpMetrics) AddBytesMaterialized(_ string, _ int64) {}

// IncStorageOperations implements MetricsCollector.
func (n *NoOpMetrics) IncStorageOperations(_ string, _ bool) {}

// ObserveStorageDuration implements MetricsCollector.
func (n *NoOpMetrics) ObserveStorageDuration(_ string, _ time.Duration) {}
