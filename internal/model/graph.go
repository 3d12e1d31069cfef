package model

// VertexID identifies a vertex within one behavior model.
// It is the vertex's position in the model's vertex list.
type VertexID int

// VertexKind tags a vertex as a use-case vertex or the final state.
type VertexKind uint8

const (
	VertexKindUseCase VertexKind = iota
	VertexKindFinal
)

// String returns the kind name.
func (k VertexKind) String() string {
	switch k {
	case VertexKindUseCase:
		return "use_case"
	case VertexKindFinal:
		return "final"
	default:
		return "unknown"
	}
}

// FinalStateLabel is the label used for the final vertex in exports.
const FinalStateLabel = "$"

// Vertex is a node of an absolute behavior model.
// A use-case vertex carries exactly one UseCase; the final vertex carries none.
type Vertex struct {
	ID      VertexID
	Kind    VertexKind
	UseCase *UseCase

	// Outgoing holds the vertex's transitions in discovery order.
	Outgoing []*Transition

	// targetIndex maps a target vertex to its position in Outgoing.
	targetIndex map[VertexID]int
}

// NewUseCaseVertex creates a vertex associated with the given use case.
func NewUseCaseVertex(id VertexID, useCase *UseCase) *Vertex {
	return &Vertex{
		ID:          id,
		Kind:        VertexKindUseCase,
		UseCase:     useCase,
		targetIndex: make(map[VertexID]int),
	}
}

// NewFinalVertex creates the final-state vertex.
func NewFinalVertex(id VertexID) *Vertex {
	return &Vertex{
		ID:          id,
		Kind:        VertexKindFinal,
		targetIndex: make(map[VertexID]int),
	}
}

// IsFinal reports whether v is the final-state vertex.
func (v *Vertex) IsFinal() bool {
	return v.Kind == VertexKindFinal
}

// UseCaseID returns the associated use case ID, or "" for the final vertex.
func (v *Vertex) UseCaseID() string {
	if v.Kind != VertexKindUseCase || v.UseCase == nil {
		return ""
	}
	return v.UseCase.ID
}

// Label returns the use case name (falling back to its ID) or the
// final-state label.
func (v *Vertex) Label() string {
	if v.Kind == VertexKindFinal {
		return FinalStateLabel
	}
	if v.UseCase == nil {
		return ""
	}
	if v.UseCase.Name != "" {
		return v.UseCase.Name
	}
	return v.UseCase.ID
}

// TransitionTo returns the outgoing transition to target, or nil.
func (v *Vertex) TransitionTo(target VertexID) *Transition {
	if idx, ok := v.targetIndex[target]; ok {
		return v.Outgoing[idx]
	}
	return nil
}

// Observe records one traversal from v to target. A missing transition is
// installed with Value 1; an existing one is incremented. The returned bool
// is true when the transition was newly installed.
func (v *Vertex) Observe(target VertexID) (*Transition, bool) {
	if t := v.TransitionTo(target); t != nil {
		t.Increment()
		return t, false
	}
	return v.install(target), true
}

func (v *Vertex) install(target VertexID) *Transition {
	if v.targetIndex == nil {
		v.targetIndex = make(map[VertexID]int)
	}
	t := &Transition{Target: target, Value: 1}
	v.targetIndex[target] = len(v.Outgoing)
	v.Outgoing = append(v.Outgoing, t)
	return t
}

// Transition is a directed edge carrying an occurrence count and
// the observed non-negative time distances.
type Transition struct {
	Target VertexID

	// Value counts traversals of this (source, target) pair, including
	// traversals whose time distance was rejected.
	Value int64

	// Times holds time distances in discovery order.
	Times []int64
}

// Increment records one more traversal.
func (t *Transition) Increment() {
	t.Value++
}

// AddTime appends a time distance sample.
func (t *Transition) AddTime(d int64) {
	t.Times = append(t.Times, d)
}

// AbsoluteBehaviorModel is the per-session graph of raw counts and samples.
type AbsoluteBehaviorModel struct {
	ID        string
	SessionID string
	Vertices  []*Vertex
}

// NewAbsoluteBehaviorModel wraps a vertex list into a model.
func NewAbsoluteBehaviorModel(id, sessionID string, vertices []*Vertex) *AbsoluteBehaviorModel {
	return &AbsoluteBehaviorModel{
		ID:        id,
		SessionID: sessionID,
		Vertices:  vertices,
	}
}

// Vertex returns the vertex with the given ID, or nil.
func (m *AbsoluteBehaviorModel) Vertex(id VertexID) *Vertex {
	if id < 0 || int(id) >= len(m.Vertices) {
		return nil
	}
	return m.Vertices[id]
}

// VertexByUseCase returns the vertex associated with useCaseID, or nil.
func (m *AbsoluteBehaviorModel) VertexByUseCase(useCaseID string) *Vertex {
	for _, v := range m.Vertices {
		if v.Kind == VertexKindUseCase && v.UseCaseID() == useCaseID {
			return v
		}
	}
	return nil
}

// FinalVertex returns the final-state vertex, or nil for empty sessions.
func (m *AbsoluteBehaviorModel) FinalVertex() *Vertex {
	for _, v := range m.Vertices {
		if v.IsFinal() {
			return v
		}
	}
	return nil
}

// Transition returns the transition between two use cases, or nil.
// An empty dstUseCaseID addresses the final vertex.
func (m *AbsoluteBehaviorModel) Transition(srcUseCaseID, dstUseCaseID string) *Transition {
	src := m.VertexByUseCase(srcUseCaseID)
	if src == nil {
		return nil
	}
	var dst *Vertex
	if dstUseCaseID == "" {
		dst = m.FinalVertex()
	} else {
		dst = m.VertexByUseCase(dstUseCaseID)
	}
	if dst == nil {
		return nil
	}
	return src.TransitionTo(dst.ID)
}

// TransitionCount returns the number of transitions in the model.
func (m *AbsoluteBehaviorModel) TransitionCount() int {
	n := 0
	for _, v := range m.Vertices {
		n += len(v.Outgoing)
	}
	return n
}

// Edge is a flattened transition with both endpoints resolved.
type Edge struct {
	Source     *Vertex
	Target     *Vertex
	Transition *Transition
}

// Edges returns every transition of the model in vertex order.
func (m *AbsoluteBehaviorModel) Edges() []Edge {
	edges := make([]Edge, 0, m.TransitionCount())
	for _, v := range m.Vertices {
		for _, t := range v.Outgoing {
			edges = append(edges, Edge{Source: v, Target: m.Vertex(t.Target), Transition: t})
		}
	}
	return edges
}
