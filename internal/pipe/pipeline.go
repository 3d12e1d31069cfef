// Package pipe runs the Read -> Extract -> Write/Store flow behind the CLI.
package pipe

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/behaviorflow/behaviorflow/internal/model"
	"github.com/behaviorflow/behaviorflow/pkg/config"
	"github.com/behaviorflow/behaviorflow/pkg/defaults/diagnostics"
	"github.com/behaviorflow/behaviorflow/pkg/defaults/metrics"
	"github.com/behaviorflow/behaviorflow/pkg/defaults/tracer"
	"github.com/behaviorflow/behaviorflow/pkg/extraction"
	"github.com/behaviorflow/behaviorflow/pkg/interfaces"
	"github.com/behaviorflow/behaviorflow/pkg/modelstore"
	"github.com/behaviorflow/behaviorflow/pkg/sessions"
	"github.com/behaviorflow/behaviorflow/pkg/writer"
)

// Config holds pipeline configuration.
type Config struct {
	// Sessions configures how input rows map onto sessions.
	Sessions sessions.Config

	// InputFormat overrides format detection from the input file name.
	InputFormat sessions.Format

	// Writer configures the model output.
	Writer writer.Config

	// OutputFormat overrides format detection from the output file name.
	OutputFormat writer.Format

	// DefaultsPath names a YAML catalog of use cases seeded into every model.
	DefaultsPath string

	// Workers bounds concurrent session builds. 1 builds sequentially.
	Workers int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Sessions: sessions.DefaultConfig(),
		Writer:   writer.DefaultConfig(),
		Workers:  1,
	}
}

// FromConfig builds a pipeline Config from the loaded configuration.
func FromConfig(c *config.Config) Config {
	cfg := DefaultConfig()

	cfg.Sessions.SessionColumn = c.Input.SessionColumn
	cfg.Sessions.UseCaseColumn = c.Input.UseCaseColumn
	cfg.Sessions.NameColumn = c.Input.NameColumn
	cfg.Sessions.StartColumn = c.Input.StartColumn
	cfg.Sessions.EndColumn = c.Input.EndColumn
	cfg.Sessions.TimestampLayout = c.Input.TimestampLayout
	cfg.Sessions.TimeUnit = c.Extraction.TimeUnit
	cfg.Sessions.Sheet = c.Input.Sheet
	if d := []rune(c.Input.Delimiter); len(d) == 1 {
		cfg.Sessions.Delimiter = d[0]
	}
	cfg.InputFormat = sessions.ParseFormat(c.Input.Format)

	if c.Output.BatchSize > 0 {
		cfg.Writer.BatchSize = c.Output.BatchSize
	}
	if c.Output.Compression != "" {
		cfg.Writer.Compression = writer.ParseCompression(c.Output.Compression)
	}
	cfg.OutputFormat = writer.ParseFormat(c.Output.Format)

	cfg.DefaultsPath = c.Extraction.Defaults
	cfg.Workers = c.Extraction.Workers
	if cfg.Workers == 0 {
		cfg.Workers = runtime.NumCPU()
	}
	return cfg
}

// Pipeline extracts absolute behavior models from session files.
type Pipeline struct {
	cfg     Config
	logger  *slog.Logger
	tracer  interfaces.Tracer
	metrics interfaces.MetricsExporter
	store   modelstore.Backend
	newID   func() string

	// progress callback
	progressFn func(stats ProgressStats)
}

// ProgressStats reports pipeline stage completion.
type ProgressStats struct {
	Stage   string
	Done    int
	Total   int
	Elapsed time.Duration
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithTracer sets the tracer handed to the transformer.
func WithTracer(t interfaces.Tracer) Option {
	return func(p *Pipeline) {
		if t != nil {
			p.tracer = t
		}
	}
}

// WithMetrics sets the metrics exporter handed to the transformer.
func WithMetrics(m interfaces.MetricsExporter) Option {
	return func(p *Pipeline) {
		if m != nil {
			p.metrics = m
		}
	}
}

// WithStore saves every extracted model to b.
func WithStore(b modelstore.Backend) Option {
	return func(p *Pipeline) {
		p.store = b
	}
}

// WithIDGenerator overrides model ID generation.
func WithIDGenerator(fn func() string) Option {
	return func(p *Pipeline) {
		p.newID = fn
	}
}

// WithProgress sets a callback invoked after each stage.
func WithProgress(fn func(stats ProgressStats)) Option {
	return func(p *Pipeline) {
		p.progressFn = fn
	}
}

// NewPipeline creates a new pipeline with the given configuration.
func NewPipeline(cfg Config, opts ...Option) *Pipeline {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	p := &Pipeline{
		cfg:     cfg,
		logger:  slog.Default(),
		tracer:  tracer.NewNoopTracer(),
		metrics: metrics.NewNoopMetrics(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Result contains the outcome of one run.
type Result struct {
	Sessions    int
	Models      []*model.AbsoluteBehaviorModel
	Vertices    int
	Transitions int
	Diagnostics []interfaces.Diagnostic
	Stored      int
	Duration    time.Duration
}

// Run reads sessions from inputPath, extracts one model per session and
// writes them to outputPath. An empty outputPath skips writing.
func (p *Pipeline) Run(ctx context.Context, inputPath, outputPath string) (*Result, error) {
	start := time.Now()

	defaults, sessionList, err := p.read(ctx, inputPath)
	if err != nil {
		return nil, err
	}
	p.report("read", len(sessionList), len(sessionList), start)

	collector := diagnostics.NewCollector(diagnostics.NewLogSink(
		diagnostics.WithLogger(p.logger),
		diagnostics.WithMinSeverity(interfaces.SeverityWarning),
	))

	opts := []extraction.Option{
		extraction.WithDiagnosticSink(collector),
		extraction.WithLogger(p.logger),
		extraction.WithTracer(p.tracer),
		extraction.WithMetrics(p.metrics),
	}
	if p.newID != nil {
		opts = append(opts, extraction.WithIDGenerator(p.newID))
	}
	transformer := extraction.NewTransformer(opts...)

	var models []*model.AbsoluteBehaviorModel
	if p.cfg.Workers > 1 {
		models, err = transformer.TransformParallel(ctx, sessionList, defaults, p.cfg.Workers)
	} else {
		models, err = transformer.Transform(ctx, sessionList, defaults)
	}
	if err != nil {
		return nil, err
	}
	p.report("extract", len(models), len(sessionList), start)

	result := &Result{
		Sessions:    len(sessionList),
		Models:      models,
		Diagnostics: collector.Diagnostics(),
	}
	for _, m := range models {
		result.Vertices += len(m.Vertices)
		result.Transitions += m.TransitionCount()
	}

	if err := p.emit(ctx, outputPath, models, result); err != nil {
		return nil, err
	}

	result.Duration = time.Since(start)
	p.logger.Info("extraction finished",
		"input", inputPath,
		"output", outputPath,
		"sessions", result.Sessions,
		"transitions", result.Transitions,
		"diagnostics", len(result.Diagnostics),
		"duration", result.Duration)
	return result, nil
}

// read loads the default catalog and the sessions. Defaults are snapshotted
// before reading so that use cases first seen in the trace are not seeded.
func (p *Pipeline) read(ctx context.Context, inputPath string) ([]*model.UseCase, []*model.Session, error) {
	ctx, span := p.tracer.StartSpan(ctx, interfaces.SpanReadSessions)
	defer span.End()
	span.SetAttribute("path", inputPath)

	catalog := sessions.NewCatalog()
	if p.cfg.DefaultsPath != "" {
		var err error
		if catalog, err = sessions.LoadCatalog(p.cfg.DefaultsPath); err != nil {
			span.RecordError(err)
			return nil, nil, err
		}
	}
	defaults := catalog.UseCases()

	sessionList, err := sessions.ReadFile(ctx, inputPath, p.cfg.InputFormat, p.cfg.Sessions, catalog)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(interfaces.SpanStatusError, err.Error())
		return nil, nil, err
	}

	span.SetAttribute("sessions", len(sessionList))
	p.logger.Debug("sessions read", "path", inputPath, "sessions", len(sessionList), "defaults", len(defaults))
	return defaults, sessionList, nil
}

// emit writes and stores the models concurrently.
func (p *Pipeline) emit(ctx context.Context, outputPath string, models []*model.AbsoluteBehaviorModel, result *Result) error {
	g, gctx := errgroup.WithContext(ctx)

	if outputPath != "" {
		g.Go(func() error {
			gctx, span := p.tracer.StartSpan(gctx, interfaces.SpanWriteModels)
			defer span.End()
			span.SetAttribute("path", outputPath)

			format := p.cfg.OutputFormat
			if format == writer.FormatUnknown {
				format = writer.DetectFormat(outputPath)
			}
			w, err := writer.NewFileWriter(outputPath, format, p.cfg.Writer)
			if err != nil {
				span.RecordError(err)
				return err
			}

			start := time.Now()
			if err := writer.WriteAll(gctx, w, models); err != nil {
				span.RecordError(err)
				return fmt.Errorf("failed to write %s: %w", outputPath, err)
			}
			tags := map[string]string{interfaces.TagFormat: format.String()}
			p.metrics.Counter(interfaces.MetricModelsWritten, int64(len(models)), tags)
			p.metrics.Timer(interfaces.MetricWriteDuration, time.Since(start), tags)
			return nil
		})
	}

	if p.store != nil {
		g.Go(func() error {
			gctx, span := p.tracer.StartSpan(gctx, interfaces.SpanStoreSave)
			defer span.End()
			span.SetAttribute("backend", p.store.Name())

			records, err := modelstore.SaveAll(gctx, p.store, models)
			result.Stored = len(records)
			if err != nil {
				span.RecordError(err)
				return err
			}
			return nil
		})
	}

	return g.Wait()
}

func (p *Pipeline) report(stage string, done, total int, start time.Time) {
	if p.progressFn != nil {
		p.progressFn(ProgressStats{
			Stage:   stage,
			Done:    done,
			Total:   total,
			Elapsed: time.Since(start),
		})
	}
}
