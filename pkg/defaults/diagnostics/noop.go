// Package diagnostics provides default diagnostic sink implementations.
package diagnostics

import (
	"context"

	"github.com/behaviorflow/behaviorflow/pkg/interfaces"
)

// NoopSink discards all diagnostics.
// Use this when diagnostics are not needed.
type NoopSink struct{}

// NewNoopSink creates a new noop sink.
func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

// Report does nothing.
func (n *NoopSink) Report(ctx context.Context, d interfaces.Diagnostic) error {
	return nil
}

// Close does nothing.
func (n *NoopSink) Close() error {
	return nil
}

// Verify interface compliance.
var _ interfaces.DiagnosticSink = (*NoopSink)(nil)
