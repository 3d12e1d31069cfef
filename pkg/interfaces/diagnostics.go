package interfaces

import (
	"context"
	"fmt"
	"time"
)

// DiagnosticSink receives data-quality diagnostics raised during extraction.
// Diagnostics are advisory; a sink must never be able to stop processing.
// Implementations must be safe for concurrent use.
type DiagnosticSink interface {
	// Report hands a diagnostic to the sink.
	Report(ctx context.Context, d Diagnostic) error

	// Close releases resources.
	Close() error
}

// Diagnostic describes one anomaly observed in a session trace.
type Diagnostic struct {
	// Severity of the diagnostic.
	Severity Severity

	// Kind identifies the anomaly.
	Kind DiagnosticKind

	// SessionID of the session the anomaly was found in.
	SessionID string

	// Source and target use cases of the affected transition.
	SourceUseCaseID   string
	SourceUseCaseName string
	TargetUseCaseID   string
	TargetUseCaseName string

	// Delta is the computed time distance (negative for KindNegativeTimeRange).
	Delta int64

	// Index of the execution record that closed the transition.
	Index int

	// Timestamp when the diagnostic was raised.
	Timestamp time.Time
}

// DiagnosticKind classifies diagnostics.
type DiagnosticKind string

const (
	KindNegativeTimeRange DiagnosticKind = "negative_time_range"
)

// Severity represents the severity of a diagnostic.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// NewNegativeTimeRange creates the diagnostic raised when two consecutive
// executions of a session are out of temporal order.
func NewNegativeTimeRange(sessionID, srcID, srcName, dstID, dstName string, delta int64, index int) Diagnostic {
	return Diagnostic{
		Severity:          SeverityWarning,
		Kind:              KindNegativeTimeRange,
		SessionID:         sessionID,
		SourceUseCaseID:   srcID,
		SourceUseCaseName: srcName,
		TargetUseCaseID:   dstID,
		TargetUseCaseName: dstName,
		Delta:             delta,
		Index:             index,
		Timestamp:         time.Now(),
	}
}

// Message renders the human-readable form of the diagnostic.
func (d Diagnostic) Message() string {
	switch d.Kind {
	case KindNegativeTimeRange:
		return fmt.Sprintf(
			`negative time range detected in transition from state "%s" to state "%s" in session "%s"; range will be ignored`,
			d.SourceUseCaseName, d.TargetUseCaseName, d.SessionID)
	default:
		return fmt.Sprintf(`%s in session "%s"`, d.Kind, d.SessionID)
	}
}
