// Package tracer provides default tracing implementations.
package tracer

import (
	"context"

	"github.com/behaviorflow/behaviorflow/pkg/interfaces"
)

// NoopTracer discards all tracing data.
// Use this when tracing is not needed.
type NoopTracer struct{}

// NewNoopTracer creates a new noop tracer.
func NewNoopTracer() *NoopTracer {
	return &NoopTracer{}
}

// StartSpan returns a context with a noop span.
func (t *NoopTracer) StartSpan(ctx context.Context, name string) (context.Context, interfaces.Span) {
	return ctx, noopSpan{}
}

// Close does nothing.
func (t *NoopTracer) Close() error {
	return nil
}

// noopSpan is a span that does nothing.
type noopSpan struct{}

func (noopSpan) End()                                             {}
func (noopSpan) SetStatus(code interfaces.SpanStatus, msg string) {}
func (noopSpan) SetAttribute(key string, value interface{})       {}
func (noopSpan) RecordError(err error)                            {}

// Verify interface compliance.
var (
	_ interfaces.Tracer = (*NoopTracer)(nil)
	_ interfaces.Span   = noopSpan{}
)
