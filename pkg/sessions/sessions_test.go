package sessions

import (
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/behaviorflow/behaviorflow/internal/model"
	"github.com/behaviorflow/behaviorflow/pkg/errors"
)

const sampleCSV = `session_id,use_case_id,use_case_name,start_time,end_time
S1,a,A,0,1
S2,c,C,100,110
S1,b,B,5,6
S1,a,A,3,4

S1,b,B,20,21
`

func trace(s *model.Session) string {
	ids := make([]string, len(s.Executions))
	for i, e := range s.Executions {
		ids[i] = e.UseCase.ID
	}
	return strings.Join(ids, ",")
}

func TestCSVReader_GroupsInFirstSeenOrder(t *testing.T) {
	catalog := NewCatalog()
	sessions, err := NewCSVReader(DefaultConfig(), catalog).Read(context.Background(), strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	if len(sessions) != 2 {
		t.Fatalf("got %d sessions, want 2", len(sessions))
	}
	if sessions[0].ID != "S1" || sessions[1].ID != "S2" {
		t.Errorf("unexpected session order %s, %s", sessions[0].ID, sessions[1].ID)
	}
	if got := trace(sessions[0]); got != "a,b,a,b" {
		t.Errorf("S1 trace = %s, want a,b,a,b", got)
	}

	s1 := sessions[0]
	starts := []int64{0, 5, 3, 20}
	for i, e := range s1.Executions {
		if e.StartTime != starts[i] {
			t.Errorf("record %d start = %d, want %d", i, e.StartTime, starts[i])
		}
	}
	if s1.StartTime != 0 || s1.EndTime != 21 {
		t.Errorf("S1 bounds = [%d, %d], want [0, 21]", s1.StartTime, s1.EndTime)
	}

	// interned use cases
	if s1.Executions[0].UseCase != s1.Executions[2].UseCase {
		t.Error("equal use case IDs must share one instance")
	}
	if catalog.Len() != 3 {
		t.Errorf("catalog has %d use cases, want 3", catalog.Len())
	}
	if catalog.Lookup("b").Name != "B" {
		t.Errorf("use case b has name %q", catalog.Lookup("b").Name)
	}
}

func TestCSVReader_CustomColumns(t *testing.T) {
	input := "user;step;ts\nu1;login;2024-01-01T00:00:00Z\nu1;search;2024-01-01T00:00:01.5Z\n"

	cfg := DefaultConfig()
	cfg.SessionColumn = "user"
	cfg.UseCaseColumn = "step"
	cfg.StartColumn = "ts"
	cfg.Delimiter = ';'

	sessions, err := NewCSVReader(cfg, NewCatalog()).Read(context.Background(), strings.NewReader(input))
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(sessions) != 1 || sessions[0].Len() != 2 {
		t.Fatalf("unexpected sessions %+v", sessions)
	}

	e := sessions[0].Executions
	if delta := e[1].StartTime - e[0].StartTime; delta != 1500 {
		t.Errorf("delta = %d ms, want 1500", delta)
	}
	if e[0].EndTime != e[0].StartTime {
		t.Error("missing end column should default end to start")
	}
	if e[0].UseCase.Name != "" {
		t.Errorf("unexpected name %q", e[0].UseCase.Name)
	}
}

func TestCSVReader_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		code  errors.Code
	}{
		{"missing column", "session_id,use_case_id\nS1,a\n", errors.CodeMissingColumn},
		{"bad timestamp", "session_id,use_case_id,start_time\nS1,a,yesterday\n", errors.CodeInvalidTimestamp},
		{"empty use case", "session_id,use_case_id,start_time\nS1,,1\n", errors.CodeParseFailed},
		{"empty session", "session_id,use_case_id,start_time\n,a,1\n", errors.CodeParseFailed},
		{"broken quoting", "session_id,use_case_id,start_time\n\"S1,a,1\n", errors.CodeParseFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCSVReader(DefaultConfig(), NewCatalog()).Read(context.Background(), strings.NewReader(tt.input))
			if !errors.IsCode(err, tt.code) {
				t.Errorf("expected %s, got %v", tt.code, err)
			}
		})
	}
}

func TestCSVReader_Empty(t *testing.T) {
	sessions, err := NewCSVReader(DefaultConfig(), NewCatalog()).Read(context.Background(), strings.NewReader(""))
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(sessions) != 0 {
		t.Errorf("got %d sessions, want 0", len(sessions))
	}
}

func TestJSONLReader(t *testing.T) {
	input := `{"session_id":"S1","use_case_id":"a","use_case_name":"A","start_time":0}
{"session_id":"S1","use_case_id":"b","start_time":1.7e3,"extra":true}

{"session_id":"S2","use_case_id":"a","use_case_name":null,"start_time":"2024-01-01T00:00:00Z"}
`
	cfg := DefaultConfig()
	cfg.TimeUnit = "s"

	sessions, err := NewJSONLReader(cfg, NewCatalog()).Read(context.Background(), strings.NewReader(input))
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("got %d sessions, want 2", len(sessions))
	}
	if got := sessions[0].Executions[1].StartTime; got != 1700 {
		t.Errorf("start = %d, want 1700", got)
	}
	if got := sessions[1].Executions[0].StartTime; got != 1704067200 {
		t.Errorf("start = %d, want 1704067200", got)
	}
	if sessions[1].Executions[0].UseCase != sessions[0].Executions[0].UseCase {
		t.Error("use case a should be shared across sessions")
	}
}

func TestJSONLReader_Malformed(t *testing.T) {
	_, err := NewJSONLReader(DefaultConfig(), NewCatalog()).Read(context.Background(), strings.NewReader("{not json}\n"))
	if !errors.IsCode(err, errors.CodeParseFailed) {
		t.Errorf("expected CodeParseFailed, got %v", err)
	}
}

func TestXLSXReader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.xlsx")

	f := excelize.NewFile()
	rows := [][]interface{}{
		{"session_id", "use_case_id", "use_case_name", "start_time"},
		{"S1", "a", "A", 10},
		{"S1", "b", "B", 15},
		{"S2", "b", "B", 1},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow("Sheet1", cell, &row); err != nil {
			t.Fatal(err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatal(err)
	}
	f.Close()

	sessions, err := ReadFile(context.Background(), path, FormatUnknown, DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("got %d sessions, want 2", len(sessions))
	}
	if got := trace(sessions[0]); got != "a,b" {
		t.Errorf("S1 trace = %s", got)
	}
	if sessions[0].Executions[1].StartTime != 15 {
		t.Errorf("start = %d, want 15", sessions[0].Executions[1].StartTime)
	}
}

func TestReadFile_Gzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.csv.gz")
	file, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	gz := gzip.NewWriter(file)
	gz.Write([]byte(sampleCSV))
	gz.Close()
	file.Close()

	catalog := NewCatalog()
	sessions, err := ReadFile(context.Background(), path, FormatUnknown, DefaultConfig(), catalog)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if len(sessions) != 2 {
		t.Errorf("got %d sessions, want 2", len(sessions))
	}
}

func TestReadFile_Errors(t *testing.T) {
	dir := t.TempDir()

	if _, err := ReadFile(context.Background(), filepath.Join(dir, "none.csv"), FormatUnknown, DefaultConfig(), nil); !errors.IsCode(err, errors.CodeFileNotFound) {
		t.Errorf("expected CodeFileNotFound, got %v", err)
	}
	if _, err := ReadFile(context.Background(), filepath.Join(dir, "x.xes"), FormatUnknown, DefaultConfig(), nil); !errors.IsCode(err, errors.CodeInvalidFormat) {
		t.Errorf("expected CodeInvalidFormat, got %v", err)
	}
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		path string
		want Format
	}{
		{"a.csv", FormatCSV},
		{"a.CSV.gz", FormatCSV},
		{"a.jsonl", FormatJSONL},
		{"a.ndjson.gz", FormatJSONL},
		{"a.xlsx", FormatXLSX},
		{"a.parquet", FormatUnknown},
	}
	for _, tt := range tests {
		if got := DetectFormat(tt.path); got != tt.want {
			t.Errorf("DetectFormat(%q) = %s, want %s", tt.path, got, tt.want)
		}
	}
}

func TestReadCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewCSVReader(DefaultConfig(), NewCatalog()).Read(ctx, strings.NewReader(sampleCSV))
	if !errors.IsCode(err, errors.CodeContextCanceled) {
		t.Errorf("expected CodeContextCanceled, got %v", err)
	}
}
