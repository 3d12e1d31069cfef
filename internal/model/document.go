package model

import (
	"fmt"
	"time"
)

// Document is the serializable form of an AbsoluteBehaviorModel.
// Transitions reference their targets by vertex ID.
type Document struct {
	ID        string           `json:"id"`
	SessionID string           `json:"session_id"`
	CreatedAt time.Time        `json:"created_at,omitempty"`
	Vertices  []VertexDocument `json:"vertices"`
}

// VertexDocument is the serializable form of a Vertex.
type VertexDocument struct {
	ID          VertexID             `json:"id"`
	Final       bool                 `json:"final,omitempty"`
	UseCaseID   string               `json:"use_case_id,omitempty"`
	UseCaseName string               `json:"use_case_name,omitempty"`
	Transitions []TransitionDocument `json:"transitions"`
}

// TransitionDocument is the serializable form of a Transition.
type TransitionDocument struct {
	Target VertexID `json:"target"`
	Value  int64    `json:"value"`
	Times  []int64  `json:"times"`
}

// ToDocument converts the model into its serializable form.
func (m *AbsoluteBehaviorModel) ToDocument() Document {
	doc := Document{
		ID:        m.ID,
		SessionID: m.SessionID,
		Vertices:  make([]VertexDocument, 0, len(m.Vertices)),
	}
	for _, v := range m.Vertices {
		vd := VertexDocument{
			ID:          v.ID,
			Final:       v.IsFinal(),
			Transitions: make([]TransitionDocument, 0, len(v.Outgoing)),
		}
		if v.UseCase != nil {
			vd.UseCaseID = v.UseCase.ID
			vd.UseCaseName = v.UseCase.Name
		}
		for _, t := range v.Outgoing {
			times := make([]int64, len(t.Times))
			copy(times, t.Times)
			vd.Transitions = append(vd.Transitions, TransitionDocument{
				Target: t.Target,
				Value:  t.Value,
				Times:  times,
			})
		}
		doc.Vertices = append(doc.Vertices, vd)
	}
	return doc
}

// FromDocument rebuilds a model from its serializable form.
// Use cases are recreated from the stored ID and name.
func FromDocument(doc Document) (*AbsoluteBehaviorModel, error) {
	vertices := make([]*Vertex, len(doc.Vertices))
	for i, vd := range doc.Vertices {
		if vd.ID != VertexID(i) {
			return nil, fmt.Errorf("vertex %d stored at position %d", vd.ID, i)
		}
		if vd.Final {
			vertices[i] = NewFinalVertex(vd.ID)
		} else {
			if vd.UseCaseID == "" {
				return nil, fmt.Errorf("vertex %d has no use case", vd.ID)
			}
			vertices[i] = NewUseCaseVertex(vd.ID, &UseCase{ID: vd.UseCaseID, Name: vd.UseCaseName})
		}
	}

	for i, vd := range doc.Vertices {
		v := vertices[i]
		for _, td := range vd.Transitions {
			if td.Target < 0 || int(td.Target) >= len(vertices) {
				return nil, fmt.Errorf("vertex %d: transition target %d out of range", vd.ID, td.Target)
			}
			if v.TransitionTo(td.Target) != nil {
				return nil, fmt.Errorf("vertex %d: duplicate transition to %d", vd.ID, td.Target)
			}
			t := v.install(td.Target)
			t.Value = td.Value
			t.Times = append([]int64(nil), td.Times...)
		}
	}

	return NewAbsoluteBehaviorModel(doc.ID, doc.SessionID, vertices), nil
}
