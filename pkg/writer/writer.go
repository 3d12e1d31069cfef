// Package writer exports absolute behavior models to JSON, Parquet, DuckDB
// and Excel files.
package writer

import (
	"context"
	"strings"

	"github.com/behaviorflow/behaviorflow/internal/model"
	"github.com/behaviorflow/behaviorflow/pkg/errors"
	"github.com/behaviorflow/behaviorflow/pkg/util"
)

// errClosed is returned by Write after Close.
func errClosed(format Format) error {
	return errors.New(errors.CodeWriteFailed, "write after close").
		WithContext("format", format.String())
}

// Writer defines the interface for writing models to an output format.
type Writer interface {
	// Write appends one model.
	Write(ctx context.Context, m *model.AbsoluteBehaviorModel) error

	// Flush flushes any buffered data.
	Flush() error

	// Close finalizes the output and releases resources.
	Close() error
}

// Config holds writer configuration.
type Config struct {
	// BatchSize is the number of rows per record batch or insert transaction.
	BatchSize int

	// Compression type for Parquet output.
	Compression CompressionType

	// Indent pretty-prints JSON output.
	Indent bool
}

// CompressionType represents Parquet compression options.
type CompressionType uint8

const (
	CompressionNone CompressionType = iota
	CompressionSnappy
	CompressionGzip
	CompressionZstd
)

// String returns the compression type name.
func (c CompressionType) String() string {
	switch c {
	case CompressionSnappy:
		return "snappy"
	case CompressionGzip:
		return "gzip"
	case CompressionZstd:
		return "zstd"
	default:
		return "none"
	}
}

// ParseCompression parses a compression type string.
func ParseCompression(s string) CompressionType {
	switch strings.ToLower(s) {
	case "snappy":
		return CompressionSnappy
	case "gzip":
		return CompressionGzip
	case "zstd":
		return CompressionZstd
	default:
		return CompressionNone
	}
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:   8192,
		Compression: CompressionSnappy,
		Indent:      true,
	}
}

// Format is an output format.
type Format uint8

const (
	FormatUnknown Format = iota
	FormatJSON
	FormatParquet
	FormatDuckDB
	FormatXLSX
)

// String returns the format name.
func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatParquet:
		return "parquet"
	case FormatDuckDB:
		return "duckdb"
	case FormatXLSX:
		return "xlsx"
	default:
		return "unknown"
	}
}

// ParseFormat parses a format name.
func ParseFormat(s string) Format {
	switch strings.ToLower(s) {
	case "json":
		return FormatJSON
	case "parquet", "pq":
		return FormatParquet
	case "duckdb", "db":
		return FormatDuckDB
	case "xlsx", "excel":
		return FormatXLSX
	default:
		return FormatUnknown
	}
}

// DetectFormat infers the output format from a file name.
func DetectFormat(path string) Format {
	return ParseFormat(strings.TrimPrefix(util.BaseFormat(path), "."))
}

// Extension returns the canonical file extension, including the dot.
func (f Format) Extension() string {
	if f == FormatUnknown {
		return ""
	}
	return "." + f.String()
}

// NewFileWriter creates a writer for path. FormatUnknown detects the
// format from the file name.
func NewFileWriter(path string, format Format, cfg Config) (Writer, error) {
	if format == FormatUnknown {
		format = DetectFormat(path)
	}
	switch format {
	case FormatJSON:
		return NewJSONFileWriter(path, cfg)
	case FormatParquet:
		return NewParquetFileWriter(path, cfg)
	case FormatDuckDB:
		return NewDuckDBWriter(path, cfg)
	case FormatXLSX:
		return NewXLSXWriter(path, cfg), nil
	default:
		return nil, errors.New(errors.CodeInvalidFormat, "unsupported output format").
			WithContext("path", path)
	}
}

// WriteAll writes models in order and closes w.
func WriteAll(ctx context.Context, w Writer, models []*model.AbsoluteBehaviorModel) error {
	for _, m := range models {
		if err := w.Write(ctx, m); err != nil {
			w.Close()
			return err
		}
	}
	if err := w.Close(); err != nil {
		return errors.Wrap(err, errors.CodeWriteFailed, "close output")
	}
	return nil
}

// transitionRow is the flat form shared by the tabular writers.
type transitionRow struct {
	modelID       string
	sessionID     string
	source        model.VertexID
	sourceUseCase string
	target        model.VertexID
	targetUseCase string // empty for the final state
	targetFinal   bool
	value         int64
	times         []int64
}

func transitionRows(m *model.AbsoluteBehaviorModel) []transitionRow {
	edges := m.Edges()
	rows := make([]transitionRow, 0, len(edges))
	for _, e := range edges {
		rows = append(rows, transitionRow{
			modelID:       m.ID,
			sessionID:     m.SessionID,
			source:        e.Source.ID,
			sourceUseCase: e.Source.UseCaseID(),
			target:        e.Target.ID,
			targetUseCase: e.Target.UseCaseID(),
			targetFinal:   e.Target.IsFinal(),
			value:         e.Transition.Value,
			times:         e.Transition.Times,
		})
	}
	return rows
}
