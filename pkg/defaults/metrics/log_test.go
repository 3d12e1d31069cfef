package metrics

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestLogMetrics_Counters(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	m := NewLogMetrics(WithLogger(logger))

	m.Counter("sessions", 2, nil)
	m.Counter("sessions", 3, nil)
	m.Counter("writes", 1, map[string]string{"format": "json"})

	if got := m.Value("sessions"); got != 5 {
		t.Errorf("Value(sessions) = %d, want 5", got)
	}

	if err := m.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "name=sessions value=5") {
		t.Errorf("missing sessions counter in %q", out)
	}
	if !strings.Contains(out, "writes{format=json}") {
		t.Errorf("missing tagged counter in %q", out)
	}
}
