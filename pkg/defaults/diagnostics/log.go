package diagnostics

import (
	"context"
	"log/slog"

	"github.com/behaviorflow/behaviorflow/pkg/interfaces"
)

// LogSink writes diagnostics to a structured logger.
type LogSink struct {
	logger      *slog.Logger
	minSeverity interfaces.Severity
}

// LogSinkOption configures LogSink.
type LogSinkOption func(*LogSink)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) LogSinkOption {
	return func(s *LogSink) {
		s.logger = logger
	}
}

// WithMinSeverity sets the minimum severity to log.
func WithMinSeverity(severity interfaces.Severity) LogSinkOption {
	return func(s *LogSink) {
		s.minSeverity = severity
	}
}

// NewLogSink creates a new log-based diagnostic sink.
func NewLogSink(opts ...LogSinkOption) *LogSink {
	s := &LogSink{
		logger:      slog.Default(),
		minSeverity: interfaces.SeverityInfo,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Report logs the diagnostic.
func (s *LogSink) Report(ctx context.Context, d interfaces.Diagnostic) error {
	if d.Severity < s.minSeverity {
		return nil
	}

	level := slog.LevelInfo
	switch d.Severity {
	case interfaces.SeverityError:
		level = slog.LevelError
	case interfaces.SeverityWarning:
		level = slog.LevelWarn
	}

	s.logger.LogAttrs(ctx, level, d.Message(),
		slog.String("kind", string(d.Kind)),
		slog.String("session", d.SessionID),
		slog.String("source", d.SourceUseCaseID),
		slog.String("target", d.TargetUseCaseID),
		slog.Int64("delta", d.Delta),
		slog.Int("index", d.Index),
	)
	return nil
}

// Close does nothing.
func (s *LogSink) Close() error {
	return nil
}

// Verify interface compliance.
var _ interfaces.DiagnosticSink = (*LogSink)(nil)
