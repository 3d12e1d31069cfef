// Package interfaces defines the pluggable collaborators of behaviorflow:
// diagnostic sinks, metrics exporters and tracers.
package interfaces

import (
	"context"
)

// Tracer provides tracing capabilities.
type Tracer interface {
	// StartSpan creates a new span with the given name.
	// The span should be ended by calling Span.End().
	StartSpan(ctx context.Context, name string) (context.Context, Span)

	// Close releases resources.
	Close() error
}

// Span represents a unit of work in a trace.
type Span interface {
	// End completes the span and records its duration.
	End()

	// SetStatus sets the span's status.
	SetStatus(code SpanStatus, message string)

	// SetAttribute adds a key-value attribute to the span.
	SetAttribute(key string, value interface{})

	// RecordError records an error on the span.
	RecordError(err error)
}

// SpanStatus represents the status of a span.
type SpanStatus int

const (
	SpanStatusUnset SpanStatus = iota
	SpanStatusOK
	SpanStatusError
)

// Common span names.
const (
	SpanExtractRun     = "behaviorflow.extract.run"
	SpanExtractSession = "behaviorflow.extract.session"
	SpanReadSessions   = "behaviorflow.sessions.read"
	SpanWriteModels    = "behaviorflow.output.write"
	SpanStoreSave      = "behaviorflow.store.save"
)
