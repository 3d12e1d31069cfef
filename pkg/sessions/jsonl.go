package sessions

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/behaviorflow/behaviorflow/internal/model"
	"github.com/behaviorflow/behaviorflow/pkg/errors"
)

// JSONLReader reads sessions from newline-delimited JSON. Each line is one
// record object keyed by the configured column names; values may be
// strings or numbers.
type JSONLReader struct {
	cfg     Config
	catalog *Catalog
}

// NewJSONLReader creates a JSONL reader.
func NewJSONLReader(cfg Config, catalog *Catalog) *JSONLReader {
	return &JSONLReader{cfg: cfg, catalog: catalog}
}

// Read implements Reader.
func (r *JSONLReader) Read(ctx context.Context, in io.Reader) ([]*model.Session, error) {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	header := []string{r.cfg.SessionColumn, r.cfg.UseCaseColumn, r.cfg.NameColumn, r.cfg.StartColumn, r.cfg.EndColumn}
	cols := columns{session: 0, useCase: 1, name: 2, start: 3, end: 4}

	asm := newAssembler(r.cfg, r.catalog)
	row := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, errors.CodeContextCanceled, "read canceled").
				WithContext("row", row)
		}
		row++

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var obj map[string]json.RawMessage
		if err := json.Unmarshal(line, &obj); err != nil {
			return nil, errors.ParseError("jsonl", row, err)
		}

		fields := make([]string, len(header))
		for i, key := range header {
			raw, ok := obj[key]
			if !ok || key == "" {
				continue
			}
			v, err := scalar(raw)
			if err != nil {
				return nil, errors.ParseError("jsonl", row, err).WithContext("field", key)
			}
			fields[i] = v
		}

		if err := asm.add(cols.record(fields), row); err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.ParseError("jsonl", row, err)
	}

	return asm.result(), nil
}

// scalar renders a JSON string, number or null as text.
func scalar(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", err
	}
	// exporters sometimes write integral timestamps as 1.7e12
	s := n.String()
	if strings.ContainsAny(s, ".eE") {
		if f, err := n.Float64(); err == nil && f == math.Trunc(f) {
			return strconv.FormatInt(int64(f), 10), nil
		}
	}
	return s, nil
}

// Verify interface compliance.
var _ Reader = (*JSONLReader)(nil)
