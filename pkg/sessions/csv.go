package sessions

import (
	"context"
	"encoding/csv"
	"io"

	"github.com/behaviorflow/behaviorflow/internal/model"
	"github.com/behaviorflow/behaviorflow/pkg/errors"
)

// CSVReader reads sessions from delimited text with a header row.
type CSVReader struct {
	cfg     Config
	catalog *Catalog
}

// NewCSVReader creates a CSV reader.
func NewCSVReader(cfg Config, catalog *Catalog) *CSVReader {
	return &CSVReader{cfg: cfg, catalog: catalog}
}

// Read implements Reader.
func (r *CSVReader) Read(ctx context.Context, in io.Reader) ([]*model.Session, error) {
	cr := csv.NewReader(in)
	if r.cfg.Delimiter != 0 {
		cr.Comma = r.cfg.Delimiter
	}
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, errors.ParseError("csv", 1, err)
	}
	// header is reused by the next Read
	header = append([]string(nil), header...)

	cols, err := resolveColumns(r.cfg, header)
	if err != nil {
		return nil, err
	}

	asm := newAssembler(r.cfg, r.catalog)
	row := 1
	for {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, errors.CodeContextCanceled, "read canceled").
				WithContext("row", row)
		}

		fields, err := cr.Read()
		if err == io.EOF {
			break
		}
		row++
		if err != nil {
			return nil, errors.ParseError("csv", row, err)
		}
		if isBlank(fields) {
			continue
		}

		if err := asm.add(cols.record(fields), row); err != nil {
			return nil, err
		}
	}

	return asm.result(), nil
}

func isBlank(fields []string) bool {
	for _, f := range fields {
		if f != "" {
			return false
		}
	}
	return true
}

// Verify interface compliance.
var _ Reader = (*CSVReader)(nil)
