// Package sessions reads recorded session traces from monitoring exports.
//
// Every input format describes the same flat record:
// (session_id, use_case_id, use_case_name, start_time[, end_time]).
// Records are grouped into sessions by session ID in first-seen order and
// kept in file order within a session. Use cases are interned through a
// Catalog so that equal IDs share one *model.UseCase.
package sessions

import (
	"context"
	"io"
	"strings"

	"github.com/behaviorflow/behaviorflow/internal/model"
	"github.com/behaviorflow/behaviorflow/pkg/errors"
	"github.com/behaviorflow/behaviorflow/pkg/util"
)

// Reader reads all sessions contained in r.
type Reader interface {
	Read(ctx context.Context, r io.Reader) ([]*model.Session, error)
}

// Format represents a supported input format.
type Format uint8

const (
	FormatUnknown Format = iota
	FormatCSV
	FormatJSONL
	FormatXLSX
)

// String returns the format name.
func (f Format) String() string {
	switch f {
	case FormatCSV:
		return "csv"
	case FormatJSONL:
		return "jsonl"
	case FormatXLSX:
		return "xlsx"
	default:
		return "unknown"
	}
}

// ParseFormat parses a format name.
func ParseFormat(s string) Format {
	switch strings.ToLower(s) {
	case "csv":
		return FormatCSV
	case "jsonl", "ndjson", "json":
		return FormatJSONL
	case "xlsx", "excel":
		return FormatXLSX
	default:
		return FormatUnknown
	}
}

// DetectFormat infers the format from a file name, ignoring a .gz suffix.
func DetectFormat(path string) Format {
	return ParseFormat(strings.TrimPrefix(util.BaseFormat(path), "."))
}

// Config controls how records are mapped onto sessions.
type Config struct {
	SessionColumn string
	UseCaseColumn string
	NameColumn    string // optional
	StartColumn   string
	EndColumn     string // optional

	// TimestampLayout is tried before RFC3339 for non-numeric timestamps.
	TimestampLayout string

	// TimeUnit of the resulting int64 timestamps: ns, us, ms or s.
	// Numeric input values are taken as already being in this unit.
	TimeUnit string

	// Delimiter for CSV input.
	Delimiter rune

	// Sheet for XLSX input. Empty selects the first sheet.
	Sheet string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		SessionColumn: "session_id",
		UseCaseColumn: "use_case_id",
		NameColumn:    "use_case_name",
		StartColumn:   "start_time",
		EndColumn:     "end_time",
		TimeUnit:      "ms",
		Delimiter:     ',',
	}
}

// NewReader creates a reader for the given format. Use cases are interned
// into catalog; a nil catalog gets a fresh one.
func NewReader(format Format, cfg Config, catalog *Catalog) (Reader, error) {
	if catalog == nil {
		catalog = NewCatalog()
	}
	switch format {
	case FormatCSV:
		return NewCSVReader(cfg, catalog), nil
	case FormatJSONL:
		return NewJSONLReader(cfg, catalog), nil
	case FormatXLSX:
		return NewXLSXReader(cfg, catalog), nil
	default:
		return nil, errors.New(errors.CodeInvalidFormat, "unsupported session format").
			WithContext("format", format.String())
	}
}

// ReadFile reads sessions from path. The format is detected from the file
// name unless format is given; gzip input is decompressed transparently.
func ReadFile(ctx context.Context, path string, format Format, cfg Config, catalog *Catalog) ([]*model.Session, error) {
	if format == FormatUnknown {
		format = DetectFormat(path)
	}
	reader, err := NewReader(format, cfg, catalog)
	if err != nil {
		return nil, err
	}

	r, cleanup, err := util.OpenFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeFileNotFound, "open session file").
			WithContext("path", path)
	}
	defer cleanup()

	return reader.Read(ctx, r)
}
