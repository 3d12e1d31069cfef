package writer

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/compress"
	"github.com/apache/arrow/go/v14/parquet/file"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"

	"github.com/behaviorflow/behaviorflow/internal/model"
)

// ParquetWriter writes one row per transition using Apache Arrow.
type ParquetWriter struct {
	cfg    Config
	closer io.Closer

	allocator memory.Allocator
	schema    *arrow.Schema
	writer    *pqarrow.FileWriter

	modelIDBuilder       *array.StringBuilder
	sessionIDBuilder     *array.StringBuilder
	sourceBuilder        *array.Int32Builder
	sourceUseCaseBuilder *array.StringBuilder
	targetBuilder        *array.Int32Builder
	targetUseCaseBuilder *array.StringBuilder
	valueBuilder         *array.Int64Builder
	timesBuilder         *array.ListBuilder

	mu               sync.Mutex
	rowCount         int
	totalRowsWritten int64
	closed           bool
}

// transitionSchema returns the Arrow schema for transition rows.
// target_use_case is null for transitions into the final state.
func transitionSchema() *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: "model_id", Type: arrow.BinaryTypes.String, Nullable: false},
		{Name: "session_id", Type: arrow.BinaryTypes.String, Nullable: false},
		{Name: "source", Type: arrow.PrimitiveTypes.Int32, Nullable: false},
		{Name: "source_use_case", Type: arrow.BinaryTypes.String, Nullable: false},
		{Name: "target", Type: arrow.PrimitiveTypes.Int32, Nullable: false},
		{Name: "target_use_case", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "value", Type: arrow.PrimitiveTypes.Int64, Nullable: false},
		{Name: "times", Type: arrow.ListOf(arrow.PrimitiveTypes.Int64), Nullable: false},
	}, nil)
}

// NewParquetWriter creates a Parquet writer on output. closer may be nil.
func NewParquetWriter(output io.Writer, closer io.Closer, cfg Config) (*ParquetWriter, error) {
	allocator := memory.NewGoAllocator()
	schema := transitionSchema()

	var codec compress.Compression
	switch cfg.Compression {
	case CompressionSnappy:
		codec = compress.Codecs.Snappy
	case CompressionGzip:
		codec = compress.Codecs.Gzip
	case CompressionZstd:
		codec = compress.Codecs.Zstd
	default:
		codec = compress.Codecs.Uncompressed
	}

	writerProps := parquet.NewWriterProperties(
		parquet.WithCompression(codec),
		parquet.WithDictionaryDefault(true),
		parquet.WithAllocator(allocator),
	)
	arrowProps := pqarrow.NewArrowWriterProperties(
		pqarrow.WithStoreSchema(),
	)

	writer, err := pqarrow.NewFileWriter(schema, output, writerProps, arrowProps)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet writer: %w", err)
	}

	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}

	return &ParquetWriter{
		cfg:                  cfg,
		closer:               closer,
		allocator:            allocator,
		schema:               schema,
		writer:               writer,
		modelIDBuilder:       array.NewStringBuilder(allocator),
		sessionIDBuilder:     array.NewStringBuilder(allocator),
		sourceBuilder:        array.NewInt32Builder(allocator),
		sourceUseCaseBuilder: array.NewStringBuilder(allocator),
		targetBuilder:        array.NewInt32Builder(allocator),
		targetUseCaseBuilder: array.NewStringBuilder(allocator),
		valueBuilder:         array.NewInt64Builder(allocator),
		timesBuilder:         array.NewListBuilder(allocator, arrow.PrimitiveTypes.Int64),
	}, nil
}

// NewParquetFileWriter creates a Parquet writer on path.
func NewParquetFileWriter(path string, cfg Config) (*ParquetWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create output: %w", err)
	}
	w, err := NewParquetWriter(f, f, cfg)
	if err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}

// Write implements Writer.
func (w *ParquetWriter) Write(ctx context.Context, m *model.AbsoluteBehaviorModel) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return errClosed(FormatParquet)
	}
	for _, row := range transitionRows(m) {
		w.appendRow(row)
		w.rowCount++

		if w.rowCount >= w.cfg.BatchSize {
			if err := w.flushBatch(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *ParquetWriter) appendRow(row transitionRow) {
	w.modelIDBuilder.Append(row.modelID)
	w.sessionIDBuilder.Append(row.sessionID)
	w.sourceBuilder.Append(int32(row.source))
	w.sourceUseCaseBuilder.Append(row.sourceUseCase)
	w.targetBuilder.Append(int32(row.target))
	if row.targetFinal {
		w.targetUseCaseBuilder.AppendNull()
	} else {
		w.targetUseCaseBuilder.Append(row.targetUseCase)
	}
	w.valueBuilder.Append(row.value)

	w.timesBuilder.Append(true)
	values := w.timesBuilder.ValueBuilder().(*array.Int64Builder)
	values.AppendValues(row.times, nil)
}

// flushBatch writes the current batch to Parquet.
func (w *ParquetWriter) flushBatch() error {
	if w.rowCount == 0 {
		return nil
	}

	cols := []arrow.Array{
		w.modelIDBuilder.NewArray(),
		w.sessionIDBuilder.NewArray(),
		w.sourceBuilder.NewArray(),
		w.sourceUseCaseBuilder.NewArray(),
		w.targetBuilder.NewArray(),
		w.targetUseCaseBuilder.NewArray(),
		w.valueBuilder.NewArray(),
		w.timesBuilder.NewArray(),
	}
	defer func() {
		for _, c := range cols {
			c.Release()
		}
	}()

	batch := array.NewRecord(w.schema, cols, int64(w.rowCount))
	defer batch.Release()

	if err := w.writer.Write(batch); err != nil {
		return fmt.Errorf("failed to write record batch: %w", err)
	}

	w.totalRowsWritten += int64(w.rowCount)
	w.rowCount = 0
	return nil
}

// Flush flushes any buffered rows.
func (w *ParquetWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushBatch()
}

// Close closes the writer and releases resources.
func (w *ParquetWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.flushBatch(); err != nil {
		return err
	}
	if err := w.writer.Close(); err != nil {
		return fmt.Errorf("failed to close parquet writer: %w", err)
	}
	// the parquet writer may already have closed the sink
	if w.closer != nil {
		if err := w.closer.Close(); err != nil && !stderrors.Is(err, os.ErrClosed) {
			return err
		}
	}

	w.modelIDBuilder.Release()
	w.sessionIDBuilder.Release()
	w.sourceBuilder.Release()
	w.sourceUseCaseBuilder.Release()
	w.targetBuilder.Release()
	w.targetUseCaseBuilder.Release()
	w.valueBuilder.Release()
	w.timesBuilder.Release()
	return nil
}

// RowsWritten returns the total number of rows written.
func (w *ParquetWriter) RowsWritten() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.totalRowsWritten
}

// CountParquetRows returns the number of transition rows in a Parquet file.
func CountParquetRows(path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	reader, err := file.NewParquetReader(f)
	if err != nil {
		return 0, err
	}
	defer reader.Close()

	return reader.NumRows(), nil
}

// ReadParquetTable loads a Parquet file written by ParquetWriter.
// The caller must release the table.
func ReadParquetTable(ctx context.Context, path string) (arrow.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader, err := file.NewParquetReader(f)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	arrowReader, err := pqarrow.NewFileReader(reader, pqarrow.ArrowReadProperties{BatchSize: 8192}, memory.DefaultAllocator)
	if err != nil {
		return nil, err
	}
	return arrowReader.ReadTable(ctx)
}

// Verify interface compliance.
var _ Writer = (*ParquetWriter)(nil)
