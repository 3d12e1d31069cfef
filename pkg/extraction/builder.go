// Package extraction transforms session traces into absolute behavior models.
//
// An absolute behavior model is a directed graph with one vertex per use case
// observed in (or pre-seeded for) a session, plus a single final-state vertex.
// Each transition carries the number of times its (source, target) pair was
// traversed and the non-negative time distances between the start times of
// the two executions. Counts and samples are raw; turning them into
// probabilities and think-time distributions happens downstream.
package extraction

import (
	"context"
	"log/slog"

	"github.com/behaviorflow/behaviorflow/internal/model"
	"github.com/behaviorflow/behaviorflow/pkg/defaults/diagnostics"
	"github.com/behaviorflow/behaviorflow/pkg/interfaces"
)

// GraphBuilder builds the vertices and transitions of a single session.
// A GraphBuilder holds no per-session state and is safe for concurrent use
// as long as its diagnostic sink is.
type GraphBuilder struct {
	sink   interfaces.DiagnosticSink
	logger *slog.Logger
}

// NewGraphBuilder creates a builder reporting anomalies to sink.
// A nil sink discards diagnostics.
func NewGraphBuilder(sink interfaces.DiagnosticSink) *GraphBuilder {
	if sink == nil {
		sink = diagnostics.NewNoopSink()
	}
	return &GraphBuilder{sink: sink, logger: slog.Default()}
}

// WithLogger sets the logger that records sink failures and returns b.
func (b *GraphBuilder) WithLogger(logger *slog.Logger) *GraphBuilder {
	if logger != nil {
		b.logger = logger
	}
	return b
}

// Stats summarizes one build.
type Stats struct {
	Executions         int
	Vertices           int
	Transitions        int
	NegativeTimeRanges int
}

// graph accumulates the vertices of one session.
type graph struct {
	vertices  []*model.Vertex
	byUseCase map[string]*model.Vertex
}

func newGraph(capacity int) *graph {
	return &graph{
		vertices:  make([]*model.Vertex, 0, capacity),
		byUseCase: make(map[string]*model.Vertex, capacity),
	}
}

func (g *graph) lookup(useCaseID string) *model.Vertex {
	return g.byUseCase[useCaseID]
}

func (g *graph) addUseCase(uc *model.UseCase) *model.Vertex {
	v := model.NewUseCaseVertex(model.VertexID(len(g.vertices)), uc)
	g.vertices = append(g.vertices, v)
	g.byUseCase[uc.ID] = v
	return v
}

func (g *graph) addFinal() *model.Vertex {
	v := model.NewFinalVertex(model.VertexID(len(g.vertices)))
	g.vertices = append(g.vertices, v)
	return v
}

// Build returns the vertex list of session, including outgoing transitions.
//
// Vertices for defaults are created first, in input order, even if the
// trace never visits them. The trace is then walked in order: every record
// resolves (or creates) the vertex of its use case, and every consecutive
// pair of records is counted on the transition between their vertices.
// A non-negative start-time distance is appended to the transition's
// samples; a negative one is reported to the diagnostic sink and dropped
// while the traversal still counts. A non-empty trace ends with a transition
// from the last visited vertex to a newly appended final vertex.
//
// Malformed input (nil session, record without use case, use case without
// ID) is rejected before any vertex is built.
func (b *GraphBuilder) Build(ctx context.Context, session *model.Session, defaults []*model.UseCase) ([]*model.Vertex, error) {
	vertices, _, err := b.build(ctx, session, defaults)
	return vertices, err
}

func (b *GraphBuilder) build(ctx context.Context, session *model.Session, defaults []*model.UseCase) ([]*model.Vertex, Stats, error) {
	var stats Stats

	if err := ValidateSession(session, defaults); err != nil {
		return nil, stats, err
	}

	g := newGraph(len(defaults) + 1)
	for _, uc := range defaults {
		// first occurrence wins so that vertices stay unique per use case
		if g.lookup(uc.ID) != nil {
			continue
		}
		g.addUseCase(uc)
	}

	var (
		prev    *model.ObservedUseCaseExecution
		prevVtx *model.Vertex
		dst     *model.Vertex
	)

	for i := range session.Executions {
		exec := &session.Executions[i]

		dst = g.lookup(exec.UseCase.ID)
		if dst == nil {
			dst = g.addUseCase(exec.UseCase)
		}

		// the first record only establishes its vertex
		if prev != nil {
			transition, created := prevVtx.Observe(dst.ID)
			if created {
				stats.Transitions++
			}

			// start times only; use case duration is part of the think time
			delta := exec.StartTime - prev.StartTime
			if delta < 0 {
				stats.NegativeTimeRanges++
				b.report(ctx, session, prev.UseCase, exec.UseCase, delta, i)
			} else {
				transition.AddTime(delta)
			}
		}

		prev = exec
		prevVtx = dst
	}

	if dst != nil {
		final := g.addFinal()
		dst.Observe(final.ID)
		stats.Transitions++
	}

	stats.Executions = len(session.Executions)
	stats.Vertices = len(g.vertices)
	return g.vertices, stats, nil
}

func (b *GraphBuilder) report(ctx context.Context, session *model.Session, src, dst *model.UseCase, delta int64, index int) {
	d := interfaces.NewNegativeTimeRange(session.ID, src.ID, src.Name, dst.ID, dst.Name, delta, index)
	// diagnostics are advisory, a failing sink must not abort the build
	if err := b.sink.Report(ctx, d); err != nil {
		b.logger.Debug("diagnostic sink failed",
			"session", session.ID,
			"source", src.ID,
			"target", dst.ID,
			"error", err,
		)
	}
}
