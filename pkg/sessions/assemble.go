package sessions

import (
	"strconv"
	"strings"
	"time"

	"github.com/behaviorflow/behaviorflow/internal/model"
	"github.com/behaviorflow/behaviorflow/pkg/errors"
)

// columns holds the positions of the configured columns in a header row.
// Optional columns that are absent are -1.
type columns struct {
	session, useCase, name, start, end int
}

// resolveColumns maps the configured column names onto header.
func resolveColumns(cfg Config, header []string) (columns, error) {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if _, dup := idx[h]; !dup {
			idx[h] = i
		}
	}

	required := func(name string) (int, error) {
		i, ok := idx[name]
		if !ok {
			return -1, errors.MissingColumn(name, header)
		}
		return i, nil
	}
	optional := func(name string) int {
		if i, ok := idx[name]; ok && name != "" {
			return i
		}
		return -1
	}

	var (
		cols columns
		err  error
	)
	if cols.session, err = required(cfg.SessionColumn); err != nil {
		return cols, err
	}
	if cols.useCase, err = required(cfg.UseCaseColumn); err != nil {
		return cols, err
	}
	if cols.start, err = required(cfg.StartColumn); err != nil {
		return cols, err
	}
	cols.name = optional(cfg.NameColumn)
	cols.end = optional(cfg.EndColumn)
	return cols, nil
}

// record is one flat trace row before conversion.
type record struct {
	sessionID string
	useCaseID string
	name      string
	start     string
	end       string
}

func (c columns) record(fields []string) record {
	get := func(i int) string {
		if i < 0 || i >= len(fields) {
			return ""
		}
		return strings.TrimSpace(fields[i])
	}
	return record{
		sessionID: get(c.session),
		useCaseID: get(c.useCase),
		name:      get(c.name),
		start:     get(c.start),
		end:       get(c.end),
	}
}

// assembler groups records into sessions.
type assembler struct {
	cfg      Config
	catalog  *Catalog
	sessions []*model.Session
	byID     map[string]*model.Session
}

func newAssembler(cfg Config, catalog *Catalog) *assembler {
	return &assembler{
		cfg:     cfg,
		catalog: catalog,
		byID:    make(map[string]*model.Session),
	}
}

// add converts and appends one record. row is the 1-based input position
// used in error messages.
func (a *assembler) add(rec record, row int) error {
	if rec.sessionID == "" {
		return errors.New(errors.CodeParseFailed, "record has no session id").
			WithContext("row", row)
	}
	if rec.useCaseID == "" {
		return errors.New(errors.CodeParseFailed, "record has no use case id").
			WithContext("row", row).
			WithContext("session", rec.sessionID)
	}

	start, err := parseTimestamp(rec.start, a.cfg.TimestampLayout, a.cfg.TimeUnit)
	if err != nil {
		return errors.InvalidTimestamp(rec.start, row)
	}
	end := start
	if rec.end != "" {
		if end, err = parseTimestamp(rec.end, a.cfg.TimestampLayout, a.cfg.TimeUnit); err != nil {
			return errors.InvalidTimestamp(rec.end, row)
		}
	}

	s, ok := a.byID[rec.sessionID]
	if !ok {
		s = &model.Session{ID: rec.sessionID}
		a.byID[rec.sessionID] = s
		a.sessions = append(a.sessions, s)
	}
	s.Append(a.catalog.Intern(rec.useCaseID, rec.name), start, end)
	return nil
}

func (a *assembler) result() []*model.Session {
	return a.sessions
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04:05",
}

// parseTimestamp converts a raw value to an int64 in unit. Integers are
// taken verbatim; anything else is parsed as a date.
func parseTimestamp(s, layout, unit string) (int64, error) {
	if s == "" {
		return 0, errors.New(errors.CodeInvalidTimestamp, "empty timestamp")
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}

	if layout != "" {
		if t, err := time.Parse(layout, s); err == nil {
			return toUnit(t, unit), nil
		}
	}
	for _, l := range timestampLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return toUnit(t, unit), nil
		}
	}
	return 0, errors.New(errors.CodeInvalidTimestamp, "unrecognized timestamp").
		WithContext("value", s)
}

func toUnit(t time.Time, unit string) int64 {
	switch unit {
	case "ns":
		return t.UnixNano()
	case "us":
		return t.UnixMicro()
	case "s":
		return t.Unix()
	default:
		return t.UnixMilli()
	}
}
