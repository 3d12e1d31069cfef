package sessions

import (
	"context"
	"io"
	"os"

	"github.com/xuri/excelize/v2"

	"github.com/behaviorflow/behaviorflow/internal/model"
	"github.com/behaviorflow/behaviorflow/pkg/errors"
)

// XLSXReader reads sessions from one sheet of an Excel workbook. The first
// row is the header.
type XLSXReader struct {
	cfg     Config
	catalog *Catalog
}

// NewXLSXReader creates an XLSX reader.
func NewXLSXReader(cfg Config, catalog *Catalog) *XLSXReader {
	return &XLSXReader{cfg: cfg, catalog: catalog}
}

// Read implements Reader. excelize needs random access, so non-file readers
// are buffered in memory.
func (r *XLSXReader) Read(ctx context.Context, in io.Reader) ([]*model.Session, error) {
	var (
		xl  *excelize.File
		err error
	)
	if f, ok := in.(*os.File); ok {
		xl, err = excelize.OpenFile(f.Name())
	} else {
		xl, err = excelize.OpenReader(in)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidFormat, "open xlsx")
	}
	defer xl.Close()

	sheet := r.cfg.Sheet
	if sheet == "" {
		sheet = xl.GetSheetName(0)
	}
	if sheet == "" {
		sheets := xl.GetSheetList()
		if len(sheets) == 0 {
			return nil, errors.New(errors.CodeInvalidFormat, "no sheets found in xlsx file")
		}
		sheet = sheets[0]
	}

	rows, err := xl.Rows(sheet)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidFormat, "read rows").
			WithContext("sheet", sheet)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, nil
	}
	header, err := rows.Columns()
	if err != nil {
		return nil, errors.ParseError("xlsx", 1, err)
	}

	cols, err := resolveColumns(r.cfg, header)
	if err != nil {
		return nil, err
	}

	asm := newAssembler(r.cfg, r.catalog)
	row := 1
	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, errors.CodeContextCanceled, "read canceled").
				WithContext("row", row)
		}
		row++

		fields, err := rows.Columns()
		if err != nil {
			return nil, errors.ParseError("xlsx", row, err)
		}
		if isBlank(fields) {
			continue
		}

		if err := asm.add(cols.record(fields), row); err != nil {
			return nil, err
		}
	}
	if err := rows.Error(); err != nil {
		return nil, errors.ParseError("xlsx", row, err)
	}

	return asm.result(), nil
}

// Verify interface compliance.
var _ Reader = (*XLSXReader)(nil)
