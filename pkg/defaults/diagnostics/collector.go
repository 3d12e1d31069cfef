package diagnostics

import (
	"context"
	"sync"

	"github.com/behaviorflow/behaviorflow/pkg/interfaces"
)

// Collector keeps diagnostics in memory and optionally forwards them.
type Collector struct {
	mu          sync.Mutex
	diagnostics []interfaces.Diagnostic
	next        interfaces.DiagnosticSink
}

// NewCollector creates a collector. next may be nil.
func NewCollector(next interfaces.DiagnosticSink) *Collector {
	return &Collector{next: next}
}

// Report records the diagnostic and forwards it.
func (c *Collector) Report(ctx context.Context, d interfaces.Diagnostic) error {
	c.mu.Lock()
	c.diagnostics = append(c.diagnostics, d)
	c.mu.Unlock()

	if c.next != nil {
		return c.next.Report(ctx, d)
	}
	return nil
}

// Diagnostics returns a copy of everything reported so far.
func (c *Collector) Diagnostics() []interfaces.Diagnostic {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]interfaces.Diagnostic, len(c.diagnostics))
	copy(out, c.diagnostics)
	return out
}

// Len returns the number of collected diagnostics.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.diagnostics)
}

// CountBySession groups the collected diagnostics by session ID.
func (c *Collector) CountBySession() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	counts := make(map[string]int)
	for _, d := range c.diagnostics {
		counts[d.SessionID]++
	}
	return counts
}

// Close closes the forwarded sink.
func (c *Collector) Close() error {
	if c.next != nil {
		return c.next.Close()
	}
	return nil
}

// Verify interface compliance.
var _ interfaces.DiagnosticSink = (*Collector)(nil)
