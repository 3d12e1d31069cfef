package writer

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/xuri/excelize/v2"

	"github.com/behaviorflow/behaviorflow/internal/model"
)

const (
	xlsxIndexSheet   = "Models"
	xlsxMaxSheetName = 31
)

var xlsxTransitionHeader = []interface{}{"Source", "Target", "Value", "Samples", "Times"}

// XLSXWriter writes an index sheet plus one sheet per model listing its
// transitions. The workbook is saved on Close.
type XLSXWriter struct {
	cfg  Config
	path string
	file *excelize.File

	mu      sync.Mutex
	written int
	names   map[string]bool
	closed  bool
}

// NewXLSXWriter creates an XLSX writer on path.
func NewXLSXWriter(path string, cfg Config) *XLSXWriter {
	f := excelize.NewFile()
	f.SetSheetName(f.GetSheetName(0), xlsxIndexSheet)
	f.SetSheetRow(xlsxIndexSheet, "A1", &[]interface{}{"Sheet", "Model", "Session", "Vertices", "Transitions"})

	return &XLSXWriter{
		cfg:   cfg,
		path:  path,
		file:  f,
		names: map[string]bool{strings.ToLower(xlsxIndexSheet): true},
	}
}

// Write implements Writer.
func (w *XLSXWriter) Write(ctx context.Context, m *model.AbsoluteBehaviorModel) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return errClosed(FormatXLSX)
	}
	sheet := w.sheetName(m.SessionID)
	if _, err := w.file.NewSheet(sheet); err != nil {
		return fmt.Errorf("failed to add sheet for %s: %w", m.SessionID, err)
	}
	if err := w.file.SetSheetRow(sheet, "A1", &xlsxTransitionHeader); err != nil {
		return err
	}

	for i, e := range m.Edges() {
		times := make([]string, len(e.Transition.Times))
		for j, d := range e.Transition.Times {
			times[j] = fmt.Sprint(d)
		}
		row := []interface{}{
			e.Source.Label(),
			e.Target.Label(),
			e.Transition.Value,
			len(e.Transition.Times),
			strings.Join(times, " "),
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := w.file.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write transition: %w", err)
		}
	}

	w.written++
	cell, _ := excelize.CoordinatesToCellName(1, w.written+1)
	index := []interface{}{sheet, m.ID, m.SessionID, len(m.Vertices), m.TransitionCount()}
	return w.file.SetSheetRow(xlsxIndexSheet, cell, &index)
}

// sheetName derives a unique sheet name within Excel's limits. Sheet
// names compare case-insensitively.
func (w *XLSXWriter) sheetName(sessionID string) string {
	base := []rune(strings.Map(func(r rune) rune {
		if strings.ContainsRune(`[]:*?/\`, r) {
			return '_'
		}
		return r
	}, sessionID))
	if len(base) == 0 {
		base = []rune("session")
	}
	if len(base) > xlsxMaxSheetName {
		base = base[:xlsxMaxSheetName]
	}

	name := string(base)
	for n := 2; w.names[strings.ToLower(name)]; n++ {
		suffix := fmt.Sprintf("~%d", n)
		trimmed := base
		if len(trimmed)+len(suffix) > xlsxMaxSheetName {
			trimmed = trimmed[:xlsxMaxSheetName-len(suffix)]
		}
		name = string(trimmed) + suffix
	}
	w.names[strings.ToLower(name)] = true
	return name
}

// Flush does nothing; the workbook is written on Close.
func (w *XLSXWriter) Flush() error {
	return nil
}

// Close saves the workbook.
func (w *XLSXWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.file.SaveAs(w.path); err != nil {
		w.file.Close()
		return fmt.Errorf("failed to save %s: %w", w.path, err)
	}
	return w.file.Close()
}

// Verify interface compliance.
var _ Writer = (*XLSXWriter)(nil)
