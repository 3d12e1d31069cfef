package model

import (
	"testing"
)

func TestVertex_Observe(t *testing.T) {
	v := NewUseCaseVertex(0, &UseCase{ID: "a", Name: "A"})

	tr, created := v.Observe(1)
	if !created {
		t.Fatal("expected first observation to install a transition")
	}
	if tr.Value != 1 {
		t.Errorf("Value = %d, want 1", tr.Value)
	}

	again, created := v.Observe(1)
	if created {
		t.Error("expected second observation to reuse the transition")
	}
	if again != tr {
		t.Error("expected the same transition instance")
	}
	if tr.Value != 2 {
		t.Errorf("Value = %d, want 2", tr.Value)
	}
	if len(v.Outgoing) != 1 {
		t.Errorf("len(Outgoing) = %d, want 1", len(v.Outgoing))
	}
}

func TestVertex_Label(t *testing.T) {
	tests := []struct {
		vertex   *Vertex
		expected string
	}{
		{NewUseCaseVertex(0, &UseCase{ID: "login", Name: "Login"}), "Login"},
		{NewUseCaseVertex(0, &UseCase{ID: "login"}), "login"},
		{NewFinalVertex(1), FinalStateLabel},
	}

	for _, tt := range tests {
		if got := tt.vertex.Label(); got != tt.expected {
			t.Errorf("Label() = %q, want %q", got, tt.expected)
		}
	}
}

func TestVertexKind_String(t *testing.T) {
	if VertexKindUseCase.String() != "use_case" {
		t.Errorf("got %q", VertexKindUseCase.String())
	}
	if VertexKindFinal.String() != "final" {
		t.Errorf("got %q", VertexKindFinal.String())
	}
	if VertexKind(42).String() != "unknown" {
		t.Errorf("got %q", VertexKind(42).String())
	}
}

func buildSampleModel() *AbsoluteBehaviorModel {
	a := NewUseCaseVertex(0, &UseCase{ID: "a", Name: "A"})
	b := NewUseCaseVertex(1, &UseCase{ID: "b", Name: "B"})
	final := NewFinalVertex(2)

	ab, _ := a.Observe(b.ID)
	ab.AddTime(5)
	b.Observe(a.ID)
	ab, _ = a.Observe(b.ID)
	ab.AddTime(17)
	b.Observe(final.ID)

	return NewAbsoluteBehaviorModel("m1", "S1", []*Vertex{a, b, final})
}

func TestAbsoluteBehaviorModel_Lookups(t *testing.T) {
	m := buildSampleModel()

	if m.VertexByUseCase("a") == nil || m.VertexByUseCase("b") == nil {
		t.Fatal("expected vertices for a and b")
	}
	if m.VertexByUseCase("missing") != nil {
		t.Error("expected nil for unknown use case")
	}
	if f := m.FinalVertex(); f == nil || !f.IsFinal() {
		t.Fatal("expected a final vertex")
	}
	if m.Vertex(-1) != nil || m.Vertex(3) != nil {
		t.Error("expected nil for out of range IDs")
	}

	ab := m.Transition("a", "b")
	if ab == nil || ab.Value != 2 {
		t.Fatalf("a->b = %+v, want value 2", ab)
	}
	if bf := m.Transition("b", ""); bf == nil || bf.Value != 1 {
		t.Errorf("b->final = %+v, want value 1", bf)
	}
	if m.TransitionCount() != 3 {
		t.Errorf("TransitionCount() = %d, want 3", m.TransitionCount())
	}
	if edges := m.Edges(); len(edges) != 3 || edges[0].Target.UseCaseID() != "b" {
		t.Errorf("unexpected edges: %+v", edges)
	}
}

func TestDocument_RoundTrip(t *testing.T) {
	m := buildSampleModel()

	restored, err := FromDocument(m.ToDocument())
	if err != nil {
		t.Fatalf("FromDocument failed: %v", err)
	}

	if restored.ID != "m1" || restored.SessionID != "S1" {
		t.Errorf("identity lost: %s/%s", restored.ID, restored.SessionID)
	}
	ab := restored.Transition("a", "b")
	if ab == nil || ab.Value != 2 || len(ab.Times) != 2 || ab.Times[1] != 17 {
		t.Errorf("a->b = %+v", ab)
	}
	if restored.FinalVertex() == nil {
		t.Error("final vertex lost")
	}
}

func TestFromDocument_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  Document
	}{
		{"misplaced vertex", Document{Vertices: []VertexDocument{{ID: 3, UseCaseID: "a"}}}},
		{"missing use case", Document{Vertices: []VertexDocument{{ID: 0}}}},
		{"target out of range", Document{Vertices: []VertexDocument{
			{ID: 0, UseCaseID: "a", Transitions: []TransitionDocument{{Target: 7, Value: 1}}},
		}}},
		{"duplicate transition", Document{Vertices: []VertexDocument{
			{ID: 0, UseCaseID: "a", Transitions: []TransitionDocument{{Target: 0, Value: 1}, {Target: 0, Value: 1}}},
		}}},
	}

	for _, tt := range tests {
		if _, err := FromDocument(tt.doc); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}
}

func TestSession_Append(t *testing.T) {
	s := &Session{ID: "s"}
	uc := &UseCase{ID: "a"}
	s.Append(uc, 10, 12)
	s.Append(uc, 20, 25)

	if s.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", s.Len())
	}
	if s.StartTime != 10 || s.EndTime != 25 {
		t.Errorf("bounds = [%d, %d], want [10, 25]", s.StartTime, s.EndTime)
	}
}
