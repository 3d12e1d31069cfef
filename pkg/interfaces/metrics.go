package interfaces

import "time"

// MetricsExporter exports metrics to a monitoring backend.
type MetricsExporter interface {
	// Counter increments a counter metric.
	Counter(name string, value int64, tags map[string]string)

	// Gauge sets a gauge metric to the specified value.
	Gauge(name string, value float64, tags map[string]string)

	// Timer records a duration.
	Timer(name string, duration time.Duration, tags map[string]string)

	// Flush sends any buffered metrics to the backend.
	Flush() error

	// Close releases resources.
	Close() error
}

// Common metric names used throughout the system.
const (
	// Extraction metrics
	MetricSessionsTotal      = "behaviorflow.extract.sessions.total"
	MetricExecutionsTotal    = "behaviorflow.extract.executions.total"
	MetricVerticesTotal      = "behaviorflow.extract.vertices.total"
	MetricTransitionsTotal   = "behaviorflow.extract.transitions.total"
	MetricNegativeTimeRanges = "behaviorflow.extract.negative_time_ranges"
	MetricExtractDuration    = "behaviorflow.extract.duration"
	MetricExtractErrors      = "behaviorflow.extract.errors"

	// Output metrics
	MetricModelsWritten = "behaviorflow.output.models"
	MetricWriteDuration = "behaviorflow.output.duration"
)

// Common tag names.
const (
	TagFormat  = "format"
	TagBackend = "backend"
	TagStatus  = "status"
)
