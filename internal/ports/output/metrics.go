package output

import "time"

// MetricsCollector defines the secondary port for metrics collection.
type MetricsCollector interface {
	// IncDownloadsStarted increments the started downloads counter.
	IncDownloadsStarted()

	// IncDownloadsFinished increments the finished downloads counter.
	IncDownloadsFinished(success bool)

	// SetActiveDownloads sets the number of registered downloads.
	SetActiveDownloads(count int)

	// AddDownloadedBytes adds to the downloaded bytes counter.
	AddDownloadedBytes(n int64)

	// IncEngineOperations increments the engine operation counter.
	IncEngineOperations(operation string, success bool)

	// ObserveEngineDuration records engine operation duration.
	ObserveEngineDuration(operation string, duration time.Duration)
}

// NoOpMetrics is a no-op implementation of MetricsCollector.
type NoOpMetrics struct{}

// IncDownloadsStarted implements MetricsCollector.
func (n *NoOpMetrics) IncDownloadsStarted() {}

// IncDownloadsFinished implements MetricsCollector.
func (n *NoOpMetrics) IncDownloadsFinished(_ bool) {}

// SetActiveDownloads implements MetricsCollector.
func (n *NoOpMetrics) SetActiveDownloads(_ int) {}

// AddDownloadedBytes implements MetricsCollector.
func (n *NoOpMetrics) AddDownloadedBytes(_ int64) {}

// IncEngineOperations implements MetricsCollector.
func (n *NoOpMetrics) IncEngineOperations(_ string, _ bool) {}

// ObserveEngineDuration implements MetricsCollector.
func (n *NoOpMetrics) ObserveEngineDuration(_ string, _ time.Duration) {}
