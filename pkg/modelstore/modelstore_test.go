package modelstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/behaviorflow/behaviorflow/internal/model"
	"github.com/behaviorflow/behaviorflow/pkg/config"
	"github.com/behaviorflow/behaviorflow/pkg/errors"
)

func sampleModel(id, sessionID string) *model.AbsoluteBehaviorModel {
	a := model.NewUseCaseVertex(0, &model.UseCase{ID: "a", Name: "A"})
	b := model.NewUseCaseVertex(1, &model.UseCase{ID: "b", Name: "B"})
	final := model.NewFinalVertex(2)

	tr, _ := a.Observe(b.ID)
	tr.AddTime(5)
	b.Observe(final.ID)

	return model.NewAbsoluteBehaviorModel(id, sessionID, []*model.Vertex{a, b, final})
}

func TestLocalBackend_SaveLoad(t *testing.T) {
	ctx := context.Background()
	b, err := NewLocalBackend(filepath.Join(t.TempDir(), "models"))
	if err != nil {
		t.Fatalf("NewLocalBackend failed: %v", err)
	}

	rec := NewRecord(sampleModel("m1", "S1"))
	if err := b.Save(ctx, rec); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := b.Load(ctx, "m1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got.SessionID != "S1" || !got.CreatedAt.Equal(rec.CreatedAt) {
		t.Errorf("unexpected record %+v", got)
	}

	m, err := got.ToModel()
	if err != nil {
		t.Fatalf("ToModel failed: %v", err)
	}
	tr := m.Transition("a", "b")
	if tr == nil || tr.Value != 1 || len(tr.Times) != 1 || tr.Times[0] != 5 {
		t.Errorf("unexpected a->b transition %+v", tr)
	}
	if m.Transition("b", "") == nil {
		t.Error("missing transition into the final state")
	}

	// no temp files left behind
	entries, _ := os.ReadDir(b.Dir())
	if len(entries) != 1 {
		t.Errorf("store dir has %d entries, want 1", len(entries))
	}
}

func TestLocalBackend_NotFound(t *testing.T) {
	b, err := NewLocalBackend(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	for _, id := range []string{"missing", "../escape", ""} {
		_, err := b.Load(context.Background(), id)
		if !errors.IsCode(err, errors.CodeModelNotFound) {
			t.Errorf("Load(%q) error = %v, want CodeModelNotFound", id, err)
		}
	}

	if err := b.Delete(context.Background(), "missing"); err != nil {
		t.Errorf("Delete of a missing record failed: %v", err)
	}
}

func TestLocalBackend_RejectsInvalidID(t *testing.T) {
	b, err := NewLocalBackend(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	err = b.Save(context.Background(), NewRecord(sampleModel("a/b", "S1")))
	if !errors.IsCode(err, errors.CodeStoreWrite) {
		t.Errorf("expected CodeStoreWrite, got %v", err)
	}
}

func TestLocalBackend_ListAndDelete(t *testing.T) {
	ctx := context.Background()
	b, err := NewLocalBackend(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, ids := range [][2]string{{"m3", "S2"}, {"m1", "S1"}, {"m2", "S1"}} {
		rec := NewRecord(sampleModel(ids[0], ids[1]))
		rec.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if err := b.Save(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}
	// unrelated files are ignored
	os.WriteFile(filepath.Join(b.Dir(), "notes.txt"), []byte("x"), 0644)

	tests := []struct {
		session string
		want    []string
	}{
		{"", []string{"m3", "m1", "m2"}},
		{"S1", []string{"m1", "m2"}},
		{"S9", nil},
	}
	for _, tt := range tests {
		records, err := b.List(ctx, tt.session)
		if err != nil {
			t.Fatalf("List(%q) failed: %v", tt.session, err)
		}
		if len(records) != len(tt.want) {
			t.Errorf("List(%q) returned %d records, want %d", tt.session, len(records), len(tt.want))
			continue
		}
		for i, id := range tt.want {
			if records[i].ID != id {
				t.Errorf("List(%q)[%d] = %s, want %s", tt.session, i, records[i].ID, id)
			}
		}
	}

	if err := b.Delete(ctx, "m1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	records, _ := b.List(ctx, "S1")
	if len(records) != 1 || records[0].ID != "m2" {
		t.Errorf("unexpected records after delete: %v", records)
	}
}

func TestSaveAll(t *testing.T) {
	b, err := NewLocalBackend(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	models := []*model.AbsoluteBehaviorModel{sampleModel("m1", "S1"), sampleModel("m2", "S2")}
	records, err := SaveAll(context.Background(), b, models)
	if err != nil {
		t.Fatalf("SaveAll failed: %v", err)
	}
	if len(records) != 2 || records[1].ID != "m2" {
		t.Errorf("unexpected records %v", records)
	}
}

func TestMultiBackend(t *testing.T) {
	ctx := context.Background()
	primary, _ := NewLocalBackend(filepath.Join(t.TempDir(), "primary"))
	secondary, _ := NewLocalBackend(filepath.Join(t.TempDir(), "secondary"))
	b := NewMultiBackend(primary, secondary)

	if b.Name() != "local+local" {
		t.Errorf("Name() = %q", b.Name())
	}

	if err := b.Save(ctx, NewRecord(sampleModel("m1", "S1"))); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := secondary.Load(ctx, "m1"); err != nil {
		t.Errorf("secondary not written: %v", err)
	}

	// primary miss falls back to secondary
	if err := primary.Delete(ctx, "m1"); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Load(ctx, "m1"); err != nil {
		t.Errorf("fallback load failed: %v", err)
	}

	if err := b.Delete(ctx, "m1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := b.Load(ctx, "m1"); !errors.IsCode(err, errors.CodeModelNotFound) {
		t.Errorf("expected CodeModelNotFound, got %v", err)
	}
	if err := b.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestOpen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "store")

	b, err := Open(context.Background(), config.StoreConfig{
		Backend: "local",
		Local:   config.LocalConfig{Dir: dir},
	})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if b.Name() != "local" {
		t.Errorf("Name() = %q", b.Name())
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("store directory not created: %v", err)
	}

	_, err = Open(context.Background(), config.StoreConfig{Backend: "ftp"})
	if !errors.IsCode(err, errors.CodeStoreInit) {
		t.Errorf("expected CodeStoreInit, got %v", err)
	}

	_, err = Open(context.Background(), config.StoreConfig{Backend: "s3"})
	if !errors.IsCode(err, errors.CodeStoreInit) {
		t.Errorf("expected CodeStoreInit for missing bucket, got %v", err)
	}
}

func TestOpen_SecondaryStore(t *testing.T) {
	ctx := context.Background()
	primaryDir := filepath.Join(t.TempDir(), "primary")
	secondaryDir := filepath.Join(t.TempDir(), "secondary")

	b, err := Open(ctx, config.StoreConfig{
		Backend: "local",
		Local:   config.LocalConfig{Dir: primaryDir},
		Secondary: &config.StoreConfig{
			Backend: "local",
			Local:   config.LocalConfig{Dir: secondaryDir},
		},
	})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer b.Close()

	if _, ok := b.(*MultiBackend); !ok || b.Name() != "local+local" {
		t.Fatalf("got %T %q, want a local+local MultiBackend", b, b.Name())
	}
	if err := b.Save(ctx, NewRecord(sampleModel("m1", "S1"))); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	secondary, err := NewLocalBackend(secondaryDir)
	if err != nil {
		t.Fatal(err)
	}
	rec, err := secondary.Load(ctx, "m1")
	if err != nil || rec.SessionID != "S1" {
		t.Errorf("secondary copy = %+v, %v", rec, err)
	}

	_, err = Open(ctx, config.StoreConfig{
		Backend:   "local",
		Local:     config.LocalConfig{Dir: primaryDir},
		Secondary: &config.StoreConfig{Backend: "s3"},
	})
	if !errors.IsCode(err, errors.CodeStoreInit) {
		t.Errorf("expected CodeStoreInit for broken secondary, got %v", err)
	}
}
