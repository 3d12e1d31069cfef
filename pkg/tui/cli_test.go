package tui

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/behaviorflow/behaviorflow/internal/model"
	"github.com/behaviorflow/behaviorflow/pkg/interfaces"
	"github.com/behaviorflow/behaviorflow/pkg/modelstore"
	"github.com/behaviorflow/behaviorflow/pkg/writer"
)

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1500, "1.5K"},
		{2500000, "2.5M"},
	}
	for _, tt := range tests {
		if got := formatNumber(tt.n); got != tt.want {
			t.Errorf("formatNumber(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{250 * time.Millisecond, "250ms"},
		{1500 * time.Millisecond, "1.5s"},
		{90 * time.Second, "1m30s"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestPrintExtractReport(t *testing.T) {
	var buf bytes.Buffer
	PrintExtractReport(&buf, &ExtractReport{
		Input:       "/data/sessions.csv",
		Output:      "models.json",
		Sessions:    2,
		Models:      2,
		Transitions: 5,
		Diagnostics: 1,
	})

	out := buf.String()
	for _, want := range []string{"EXTRACTION COMPLETE", "sessions.csv", "models.json", "Diagnostics:"} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Stored:") {
		t.Error("report shows Stored without stored models")
	}
}

func TestPrintDiagnostics(t *testing.T) {
	diags := []interfaces.Diagnostic{
		interfaces.NewNegativeTimeRange("S1", "b", "B", "a", "A", -2, 2),
		interfaces.NewNegativeTimeRange("S1", "c", "C", "a", "A", -1, 4),
		interfaces.NewNegativeTimeRange("S2", "b", "B", "a", "A", -7, 1),
	}

	var buf bytes.Buffer
	PrintDiagnostics(&buf, diags, 2)

	out := buf.String()
	if !strings.Contains(out, "3 in 2 sessions") {
		t.Errorf("missing counts:\n%s", out)
	}
	if !strings.Contains(out, diags[0].Message()) {
		t.Errorf("missing first message:\n%s", out)
	}
	if strings.Contains(out, `session "S2"`) {
		t.Errorf("limit not applied:\n%s", out)
	}
	if !strings.Contains(out, "1 more") {
		t.Errorf("missing remainder:\n%s", out)
	}

	buf.Reset()
	PrintDiagnostics(&buf, nil, 0)
	if buf.Len() != 0 {
		t.Errorf("expected no output, got %q", buf.String())
	}
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	PrintSummary(&buf, "models.duckdb", &writer.Summary{
		Models:      2,
		Transitions: 5,
		Top: []writer.TransitionStat{
			{Source: "login", Target: "search", Traversals: 12, Models: 2, Samples: 10, MeanDelta: 4.5},
			{Source: "search", Target: model.FinalStateLabel, Traversals: 2, Models: 2},
		},
	})

	out := buf.String()
	for _, want := range []string{"TOP TRANSITIONS", "login", "search", "12", "4.5"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestPrintRecords(t *testing.T) {
	var buf bytes.Buffer
	PrintRecords(&buf, nil)
	if !strings.Contains(buf.String(), "No models stored") {
		t.Errorf("unexpected output %q", buf.String())
	}

	buf.Reset()
	PrintRecords(&buf, []*modelstore.Record{{
		ID:        "m1",
		SessionID: "S1",
		CreatedAt: time.Now(),
		Model:     model.Document{Vertices: make([]model.VertexDocument, 3)},
	}})
	out := buf.String()
	if !strings.Contains(out, "m1") || !strings.Contains(out, "S1") {
		t.Errorf("record missing:\n%s", out)
	}
}
