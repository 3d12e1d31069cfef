package writer

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/behaviorflow/behaviorflow/internal/model"
	"github.com/behaviorflow/behaviorflow/pkg/util"
)

// JSONWriter streams models as a JSON array of model documents.
type JSONWriter struct {
	cfg    Config
	out    *bufio.Writer
	closer io.Closer

	mu      sync.Mutex
	written int64
	closed  bool
}

// NewJSONWriter creates a JSON writer on w. closer may be nil.
func NewJSONWriter(w io.Writer, closer io.Closer, cfg Config) *JSONWriter {
	return &JSONWriter{
		cfg:    cfg,
		out:    bufio.NewWriter(w),
		closer: closer,
	}
}

// NewJSONFileWriter creates a JSON writer on path. A ".gz" suffix compresses
// the output.
func NewJSONFileWriter(path string, cfg Config) (*JSONWriter, error) {
	f, err := util.CreateFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create output: %w", err)
	}
	return NewJSONWriter(f, f, cfg), nil
}

// Write implements Writer.
func (w *JSONWriter) Write(ctx context.Context, m *model.AbsoluteBehaviorModel) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	doc := m.ToDocument()
	doc.CreatedAt = time.Now().UTC()

	var (
		data []byte
		err  error
	)
	if w.cfg.Indent {
		data, err = json.MarshalIndent(doc, "  ", "  ")
	} else {
		data, err = json.Marshal(doc)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal model %s: %w", m.ID, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return errClosed(FormatJSON)
	}
	sep := ",\n  "
	if w.written == 0 {
		sep = "[\n  "
	}
	if _, err := w.out.WriteString(sep); err != nil {
		return err
	}
	if _, err := w.out.Write(data); err != nil {
		return err
	}
	w.written++
	return nil
}

// Flush implements Writer.
func (w *JSONWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.out.Flush()
}

// Close terminates the array and closes the underlying file.
func (w *JSONWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	tail := "\n]\n"
	if w.written == 0 {
		tail = "[]\n"
	}
	if _, err := w.out.WriteString(tail); err != nil {
		return err
	}
	if err := w.out.Flush(); err != nil {
		return err
	}
	if w.closer != nil {
		return w.closer.Close()
	}
	return nil
}

// ModelsWritten returns the number of models written.
func (w *JSONWriter) ModelsWritten() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written
}

// ReadJSON reads model documents written by JSONWriter.
func ReadJSON(path string) ([]model.Document, error) {
	r, cleanup, err := util.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	var docs []model.Document
	if err := json.NewDecoder(r).Decode(&docs); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return docs, nil
}

// Verify interface compliance.
var _ Writer = (*JSONWriter)(nil)
