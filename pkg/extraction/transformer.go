package extraction

import (
	"context"
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/behaviorflow/behaviorflow/internal/model"
	"github.com/behaviorflow/behaviorflow/pkg/defaults/metrics"
	"github.com/behaviorflow/behaviorflow/pkg/defaults/tracer"
	"github.com/behaviorflow/behaviorflow/pkg/errors"
	"github.com/behaviorflow/behaviorflow/pkg/interfaces"
)

// Transformer turns sessions into absolute behavior models, one per session.
type Transformer struct {
	builder *GraphBuilder
	sink    interfaces.DiagnosticSink
	logger  *slog.Logger
	tracer  interfaces.Tracer
	metrics interfaces.MetricsExporter
	newID   func() string
}

// Option configures a Transformer.
type Option func(*Transformer)

// WithDiagnosticSink sets the sink that receives data-quality diagnostics.
func WithDiagnosticSink(sink interfaces.DiagnosticSink) Option {
	return func(t *Transformer) {
		t.sink = sink
	}
}

// WithLogger sets the logger for non-fatal failures such as a diagnostic
// sink that rejects reports. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(t *Transformer) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithTracer sets the tracer used for run and session spans.
func WithTracer(tr interfaces.Tracer) Option {
	return func(t *Transformer) {
		if tr != nil {
			t.tracer = tr
		}
	}
}

// WithMetrics sets the metrics exporter.
func WithMetrics(m interfaces.MetricsExporter) Option {
	return func(t *Transformer) {
		if m != nil {
			t.metrics = m
		}
	}
}

// WithIDGenerator overrides how model IDs are generated.
func WithIDGenerator(fn func() string) Option {
	return func(t *Transformer) {
		if fn != nil {
			t.newID = fn
		}
	}
}

// NewTransformer creates a Transformer. Without options, diagnostics,
// spans and metrics are discarded and model IDs are random UUIDs.
func NewTransformer(opts ...Option) *Transformer {
	t := &Transformer{
		logger:  slog.Default(),
		tracer:  tracer.NewNoopTracer(),
		metrics: metrics.NewNoopMetrics(),
		newID:   func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(t)
	}
	t.builder = NewGraphBuilder(t.sink).WithLogger(t.logger)
	return t
}

// Transform builds one model per session, in input order. defaults are
// seeded into every model and never modified; each model gets its own
// vertex and transition instances.
//
// The first malformed session aborts the run with an error naming it;
// no partial result is returned.
func (t *Transformer) Transform(ctx context.Context, sessions []*model.Session, defaults []*model.UseCase) ([]*model.AbsoluteBehaviorModel, error) {
	ctx, span := t.tracer.StartSpan(ctx, interfaces.SpanExtractRun)
	defer span.End()
	span.SetAttribute("sessions", len(sessions))

	start := time.Now()
	models := make([]*model.AbsoluteBehaviorModel, 0, len(sessions))

	for i, session := range sessions {
		if err := ctx.Err(); err != nil {
			return nil, t.fail(span, errors.Wrap(err, errors.CodeContextCanceled, "transform canceled").
				WithContext("index", i))
		}

		m, err := t.TransformSession(ctx, session, defaults)
		if err != nil {
			return nil, t.fail(span, withIndex(err, i))
		}
		models = append(models, m)
	}

	t.metrics.Timer(interfaces.MetricExtractDuration, time.Since(start), nil)
	span.SetStatus(interfaces.SpanStatusOK, "")
	return models, nil
}

// TransformParallel behaves like Transform but builds up to workers sessions
// concurrently. Output order matches input order. workers <= 0 means one
// worker per session.
func (t *Transformer) TransformParallel(ctx context.Context, sessions []*model.Session, defaults []*model.UseCase, workers int) ([]*model.AbsoluteBehaviorModel, error) {
	ctx, span := t.tracer.StartSpan(ctx, interfaces.SpanExtractRun)
	defer span.End()
	span.SetAttribute("sessions", len(sessions))
	span.SetAttribute("workers", workers)

	start := time.Now()
	models := make([]*model.AbsoluteBehaviorModel, len(sessions))

	g, gctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}

	for i, session := range sessions {
		i, session := i, session
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return errors.Wrap(err, errors.CodeContextCanceled, "transform canceled").
					WithContext("index", i)
			}
			m, err := t.TransformSession(gctx, session, defaults)
			if err != nil {
				return withIndex(err, i)
			}
			models[i] = m
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, t.fail(span, err)
	}

	t.metrics.Timer(interfaces.MetricExtractDuration, time.Since(start), nil)
	span.SetStatus(interfaces.SpanStatusOK, "")
	return models, nil
}

// TransformSession builds the model of a single session.
func (t *Transformer) TransformSession(ctx context.Context, session *model.Session, defaults []*model.UseCase) (*model.AbsoluteBehaviorModel, error) {
	ctx, span := t.tracer.StartSpan(ctx, interfaces.SpanExtractSession)
	defer span.End()

	vertices, stats, err := t.builder.build(ctx, session, defaults)
	if err != nil {
		t.metrics.Counter(interfaces.MetricExtractErrors, 1, nil)
		span.RecordError(err)
		span.SetStatus(interfaces.SpanStatusError, err.Error())
		return nil, err
	}

	span.SetAttribute("session.id", session.ID)
	span.SetAttribute("executions", stats.Executions)
	span.SetAttribute("vertices", stats.Vertices)
	span.SetAttribute("transitions", stats.Transitions)
	span.SetAttribute("negative_time_ranges", stats.NegativeTimeRanges)

	t.metrics.Counter(interfaces.MetricSessionsTotal, 1, nil)
	t.metrics.Counter(interfaces.MetricExecutionsTotal, int64(stats.Executions), nil)
	t.metrics.Counter(interfaces.MetricVerticesTotal, int64(stats.Vertices), nil)
	t.metrics.Counter(interfaces.MetricTransitionsTotal, int64(stats.Transitions), nil)
	if stats.NegativeTimeRanges > 0 {
		t.metrics.Counter(interfaces.MetricNegativeTimeRanges, int64(stats.NegativeTimeRanges), nil)
	}

	return model.NewAbsoluteBehaviorModel(t.newID(), session.ID, vertices), nil
}

func (t *Transformer) fail(span interfaces.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(interfaces.SpanStatusError, err.Error())
	return err
}

// withIndex attaches the input position of the failing session.
func withIndex(err error, index int) error {
	if errors.IsCode(err, errors.CodeInvalidSession) {
		var bfErr *errors.BehaviorFlowError
		if stderrors.As(err, &bfErr) {
			return bfErr.WithContext("index", index)
		}
	}
	return err
}
