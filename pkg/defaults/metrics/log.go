package metrics

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/behaviorflow/behaviorflow/pkg/interfaces"
)

// LogMetrics writes metrics to a structured logger at debug level.
// Counters are accumulated and emitted on Flush.
type LogMetrics struct {
	mu       sync.Mutex
	logger   *slog.Logger
	counters map[string]int64
}

// LogMetricsOption configures LogMetrics.
type LogMetricsOption func(*LogMetrics)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) LogMetricsOption {
	return func(m *LogMetrics) {
		m.logger = logger
	}
}

// NewLogMetrics creates a new log-based metrics exporter.
func NewLogMetrics(opts ...LogMetricsOption) *LogMetrics {
	m := &LogMetrics{
		logger:   slog.Default(),
		counters: make(map[string]int64),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Counter accumulates a counter metric.
func (m *LogMetrics) Counter(name string, value int64, tags map[string]string) {
	m.mu.Lock()
	m.counters[name+formatTags(tags)] += value
	m.mu.Unlock()
}

// Gauge logs a gauge metric.
func (m *LogMetrics) Gauge(name string, value float64, tags map[string]string) {
	m.logger.Debug("gauge", "name", name+formatTags(tags), "value", value)
}

// Timer logs a timer metric.
func (m *LogMetrics) Timer(name string, duration time.Duration, tags map[string]string) {
	m.logger.Debug("timer", "name", name+formatTags(tags), "duration", duration)
}

// Value returns the accumulated value of a counter without tags.
func (m *LogMetrics) Value(name string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[name]
}

// Flush outputs the accumulated counters.
func (m *LogMetrics) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0, len(m.counters))
	for k := range m.counters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		m.logger.Debug("counter", "name", k, "value", m.counters[k])
	}
	return nil
}

// Close flushes the exporter.
func (m *LogMetrics) Close() error {
	return m.Flush()
}

func formatTags(tags map[string]string) string {
	if len(tags) == 0 {
		return ""
	}

	// Sort keys for consistent output
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%s", k, tags[k])
	}
	return "{" + strings.Join(parts, ",") + "}"
}

// Verify interface compliance.
var _ interfaces.MetricsExporter = (*LogMetrics)(nil)
