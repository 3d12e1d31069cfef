package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/behaviorflow/behaviorflow/pkg/config"
	"github.com/behaviorflow/behaviorflow/pkg/defaults/tracer"
	"github.com/behaviorflow/behaviorflow/pkg/interfaces"
)

// Tracer adapts an OpenTelemetry tracer to interfaces.Tracer.
type Tracer struct {
	tracer   trace.Tracer
	shutdown func(context.Context) error
}

// NewTracer wraps t. shutdown is called by Close and may be nil.
func NewTracer(t trace.Tracer, shutdown func(context.Context) error) *Tracer {
	return &Tracer{tracer: t, shutdown: shutdown}
}

// Setup returns an OTLP-backed tracer when telemetry is enabled and a
// no-op tracer otherwise.
func Setup(ctx context.Context, cfg config.TelemetryConfig, version string) (interfaces.Tracer, error) {
	if !cfg.Enabled {
		return tracer.NewNoopTracer(), nil
	}

	exporter := NewOTLPExporter(FromConfig(cfg, version))
	shutdown, err := exporter.Init(ctx)
	if err != nil {
		return nil, err
	}
	return NewTracer(exporter.Tracer(), shutdown), nil
}

// StartSpan implements interfaces.Tracer.
func (t *Tracer) StartSpan(ctx context.Context, name string) (context.Context, interfaces.Span) {
	ctx, s := t.tracer.Start(ctx, name)
	return ctx, &span{span: s}
}

// Close flushes pending spans.
func (t *Tracer) Close() error {
	if t.shutdown == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return t.shutdown(ctx)
}

type span struct {
	span trace.Span
}

func (s *span) End() {
	s.span.End()
}

func (s *span) SetStatus(code interfaces.SpanStatus, message string) {
	switch code {
	case interfaces.SpanStatusOK:
		s.span.SetStatus(codes.Ok, "")
	case interfaces.SpanStatusError:
		s.span.SetStatus(codes.Error, message)
	default:
		s.span.SetStatus(codes.Unset, "")
	}
}

func (s *span) SetAttribute(key string, value interface{}) {
	s.span.SetAttributes(toAttribute(key, value))
}

func (s *span) RecordError(err error) {
	if err != nil {
		s.span.RecordError(err)
	}
}

// toAttribute converts a key-value pair to an OpenTelemetry attribute.
func toAttribute(key string, value interface{}) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float64:
		return attribute.Float64(key, v)
	case bool:
		return attribute.Bool(key, v)
	case time.Duration:
		return attribute.Int64(key, v.Milliseconds())
	case []string:
		return attribute.StringSlice(key, v)
	default:
		return attribute.String(key, fmt.Sprintf("%v", v))
	}
}

// Verify interface compliance.
var (
	_ interfaces.Tracer = (*Tracer)(nil)
	_ interfaces.Span   = (*span)(nil)
)
