package writer

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/xuri/excelize/v2"

	"github.com/behaviorflow/behaviorflow/internal/model"
	"github.com/behaviorflow/behaviorflow/pkg/errors"
	"github.com/behaviorflow/behaviorflow/pkg/extraction"
)

// sampleModels returns the models of two sessions:
// S1 = A@0 B@5 A@3 B@20 and S2 = B@0 B@4.
func sampleModels(t *testing.T) []*model.AbsoluteBehaviorModel {
	t.Helper()

	a := &model.UseCase{ID: "a", Name: "A"}
	b := &model.UseCase{ID: "b", Name: "B"}

	s1 := &model.Session{ID: "S1"}
	s1.Append(a, 0, 0)
	s1.Append(b, 5, 5)
	s1.Append(a, 3, 3)
	s1.Append(b, 20, 20)

	s2 := &model.Session{ID: "S2"}
	s2.Append(b, 0, 0)
	s2.Append(b, 4, 4)

	n := 0
	ids := func() string {
		n++
		return []string{"", "m1", "m2"}[n]
	}

	models, err := extraction.NewTransformer(extraction.WithIDGenerator(ids)).
		Transform(context.Background(), []*model.Session{s1, s2}, nil)
	if err != nil {
		t.Fatalf("Transform failed: %v", err)
	}
	return models
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		path string
		want Format
	}{
		{"out.json", FormatJSON},
		{"out.json.gz", FormatJSON},
		{"out.parquet", FormatParquet},
		{"out.duckdb", FormatDuckDB},
		{"out.xlsx", FormatXLSX},
		{"out.csv", FormatUnknown},
	}
	for _, tt := range tests {
		if got := DetectFormat(tt.path); got != tt.want {
			t.Errorf("DetectFormat(%q) = %s, want %s", tt.path, got, tt.want)
		}
	}
	if FormatParquet.Extension() != ".parquet" {
		t.Errorf("Extension() = %q", FormatParquet.Extension())
	}
}

func TestNewFileWriter_Unsupported(t *testing.T) {
	_, err := NewFileWriter(filepath.Join(t.TempDir(), "out.csv"), FormatUnknown, DefaultConfig())
	if !errors.IsCode(err, errors.CodeInvalidFormat) {
		t.Errorf("expected CodeInvalidFormat, got %v", err)
	}
}

func TestJSONWriter_RoundTrip(t *testing.T) {
	for _, name := range []string{"models.json", "models.json.gz"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			models := sampleModels(t)

			w, err := NewFileWriter(path, FormatUnknown, DefaultConfig())
			if err != nil {
				t.Fatalf("NewFileWriter failed: %v", err)
			}
			if err := WriteAll(context.Background(), w, models); err != nil {
				t.Fatalf("WriteAll failed: %v", err)
			}

			docs, err := ReadJSON(path)
			if err != nil {
				t.Fatalf("ReadJSON failed: %v", err)
			}
			if len(docs) != 2 {
				t.Fatalf("got %d documents, want 2", len(docs))
			}

			m, err := model.FromDocument(docs[0])
			if err != nil {
				t.Fatalf("FromDocument failed: %v", err)
			}
			if m.ID != "m1" || m.SessionID != "S1" {
				t.Errorf("unexpected identity %s/%s", m.ID, m.SessionID)
			}
			tr := m.Transition("a", "b")
			if tr == nil || tr.Value != 2 || len(tr.Times) != 2 || tr.Times[0] != 5 || tr.Times[1] != 17 {
				t.Errorf("unexpected a->b transition %+v", tr)
			}
			if docs[0].CreatedAt.IsZero() {
				t.Error("CreatedAt not set")
			}
		})
	}
}

func TestJSONWriter_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.json")
	w, err := NewJSONFileWriter(path, Config{})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	docs, err := ReadJSON(path)
	if err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	if len(docs) != 0 {
		t.Errorf("got %d documents, want 0", len(docs))
	}
}

func TestParquetWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.parquet")
	models := sampleModels(t)

	cfg := DefaultConfig()
	cfg.BatchSize = 2 // force several record batches
	w, err := NewParquetFileWriter(path, cfg)
	if err != nil {
		t.Fatalf("NewParquetFileWriter failed: %v", err)
	}
	if err := WriteAll(context.Background(), w, models); err != nil {
		t.Fatalf("WriteAll failed: %v", err)
	}

	// S1: a->b, b->a, b->$; S2: b->b, b->$
	if w.RowsWritten() != 5 {
		t.Errorf("RowsWritten() = %d, want 5", w.RowsWritten())
	}
	rows, err := CountParquetRows(path)
	if err != nil {
		t.Fatalf("CountParquetRows failed: %v", err)
	}
	if rows != 5 {
		t.Errorf("file has %d rows, want 5", rows)
	}

	table, err := ReadParquetTable(context.Background(), path)
	if err != nil {
		t.Fatalf("ReadParquetTable failed: %v", err)
	}
	defer table.Release()

	reader := array.NewTableReader(table, -1)
	defer reader.Release()

	var (
		values  []int64
		targets []string
		samples []int
	)
	for reader.Next() {
		rec := reader.Record()
		valueCol := rec.Column(6).(*array.Int64)
		targetCol := rec.Column(5).(*array.String)
		timesCol := rec.Column(7).(*array.List)
		offsets := timesCol.Offsets()
		for i := 0; i < int(rec.NumRows()); i++ {
			values = append(values, valueCol.Value(i))
			if targetCol.IsNull(i) {
				targets = append(targets, model.FinalStateLabel)
			} else {
				targets = append(targets, targetCol.Value(i))
			}
			samples = append(samples, int(offsets[i+1]-offsets[i]))
		}
	}

	wantValues := []int64{2, 1, 1, 1, 1}
	wantTargets := []string{"b", "a", "$", "b", "$"}
	wantSamples := []int{2, 0, 0, 1, 0}
	for i := range wantValues {
		if values[i] != wantValues[i] || targets[i] != wantTargets[i] || samples[i] != wantSamples[i] {
			t.Errorf("row %d = (%d, %s, %d), want (%d, %s, %d)", i,
				values[i], targets[i], samples[i], wantValues[i], wantTargets[i], wantSamples[i])
		}
	}
}

func TestDuckDBWriter_Summarize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.duckdb")

	w, err := NewFileWriter(path, FormatUnknown, DefaultConfig())
	if err != nil {
		t.Fatalf("NewFileWriter failed: %v", err)
	}
	if err := WriteAll(context.Background(), w, sampleModels(t)); err != nil {
		t.Fatalf("WriteAll failed: %v", err)
	}

	s, err := Summarize(context.Background(), path, 10)
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}

	if s.Models != 2 || s.Vertices != 5 || s.Transitions != 5 {
		t.Errorf("unexpected totals %+v", s)
	}
	if s.Traversals != 6 || s.Samples != 3 {
		t.Errorf("traversals = %d, samples = %d, want 6 and 3", s.Traversals, s.Samples)
	}

	if len(s.Top) == 0 {
		t.Fatal("no transitions summarized")
	}
	first := s.Top[0]
	if first.Source != "a" || first.Target != "b" || first.Traversals != 2 {
		t.Errorf("unexpected top transition %+v", first)
	}
	if first.MeanDelta != 11 {
		t.Errorf("MeanDelta = %v, want 11", first.MeanDelta)
	}

	var final *TransitionStat
	for i := range s.Top {
		if s.Top[i].Source == "b" && s.Top[i].Target == model.FinalStateLabel {
			final = &s.Top[i]
		}
	}
	if final == nil || final.Traversals != 2 || final.Models != 2 || final.Samples != 0 {
		t.Errorf("unexpected b->$ aggregate %+v", final)
	}
}

func TestDuckDBWriter_Replaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.duckdb")
	models := sampleModels(t)

	for i := 0; i < 2; i++ {
		w, err := NewDuckDBWriter(path, DefaultConfig())
		if err != nil {
			t.Fatalf("NewDuckDBWriter failed: %v", err)
		}
		if err := WriteAll(context.Background(), w, models[:1]); err != nil {
			t.Fatalf("WriteAll failed: %v", err)
		}
	}

	s, err := Summarize(context.Background(), path, 0)
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if s.Models != 1 {
		t.Errorf("Models = %d, want 1", s.Models)
	}
}

func TestXLSXWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.xlsx")

	w := NewXLSXWriter(path, DefaultConfig())
	if err := WriteAll(context.Background(), w, sampleModels(t)); err != nil {
		t.Fatalf("WriteAll failed: %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) != 3 || sheets[0] != "Models" {
		t.Fatalf("unexpected sheets %v", sheets)
	}

	rows, err := f.GetRows("S1")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 4 {
		t.Fatalf("S1 has %d rows, want 4", len(rows))
	}
	want := []string{"A", "B", "2", "2", "5 17"}
	for i, v := range want {
		if rows[1][i] != v {
			t.Errorf("S1 row 2 column %d = %q, want %q", i, rows[1][i], v)
		}
	}
	if rows[3][1] != "$" {
		t.Errorf("final transition target = %q", rows[3][1])
	}

	index, err := f.GetRows("Models")
	if err != nil {
		t.Fatal(err)
	}
	if len(index) != 3 || index[2][1] != "m2" {
		t.Errorf("unexpected index %v", index)
	}
}

func TestXLSXWriter_SheetNames(t *testing.T) {
	w := NewXLSXWriter("unused.xlsx", DefaultConfig())
	defer w.file.Close()

	long := "session/with:illegal*characters-and-a-long-tail"
	first := w.sheetName(long)
	second := w.sheetName(long)
	models := w.sheetName("models")

	if len([]rune(first)) > 31 || len([]rune(second)) > 31 {
		t.Errorf("sheet names too long: %q, %q", first, second)
	}
	if first == second {
		t.Error("sheet names must be unique")
	}
	if models == "models" {
		t.Error("sheet names must not collide with the index sheet")
	}
}

func TestWriter_WriteAfterClose(t *testing.T) {
	models := sampleModels(t)

	tests := []struct {
		name   string
		file   string
		format Format
	}{
		{"json", "models.json", FormatJSON},
		{"parquet", "models.parquet", FormatParquet},
		{"duckdb", "models.duckdb", FormatDuckDB},
		{"xlsx", "models.xlsx", FormatXLSX},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := NewFileWriter(filepath.Join(t.TempDir(), tt.file), tt.format, DefaultConfig())
			if err != nil {
				t.Fatalf("NewFileWriter failed: %v", err)
			}
			if err := w.Write(context.Background(), models[0]); err != nil {
				t.Fatalf("Write failed: %v", err)
			}
			if err := w.Close(); err != nil {
				t.Fatalf("Close failed: %v", err)
			}

			err = w.Write(context.Background(), models[1])
			if !errors.IsCode(err, errors.CodeWriteFailed) {
				t.Errorf("expected CodeWriteFailed after Close, got %v", err)
			}
			if err := w.Close(); err != nil {
				t.Errorf("second Close failed: %v", err)
			}
		})
	}
}
