package writer

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/behaviorflow/behaviorflow/internal/model"
)

var duckDBSchema = []string{
	`CREATE TABLE models (
		model_id VARCHAR PRIMARY KEY,
		session_id VARCHAR NOT NULL,
		vertices INTEGER NOT NULL,
		transitions INTEGER NOT NULL
	)`,
	`CREATE TABLE vertices (
		model_id VARCHAR NOT NULL,
		vertex_id INTEGER NOT NULL,
		kind VARCHAR NOT NULL,
		use_case_id VARCHAR,
		use_case_name VARCHAR
	)`,
	`CREATE TABLE transitions (
		model_id VARCHAR NOT NULL,
		source INTEGER NOT NULL,
		target INTEGER NOT NULL,
		value BIGINT NOT NULL
	)`,
	`CREATE TABLE transition_times (
		model_id VARCHAR NOT NULL,
		source INTEGER NOT NULL,
		target INTEGER NOT NULL,
		seq INTEGER NOT NULL,
		delta BIGINT NOT NULL
	)`,
}

// DuckDBWriter stores models in a DuckDB database file, one table per
// entity, so they can be queried with SQL afterwards.
type DuckDBWriter struct {
	cfg  Config
	path string
	db   *sql.DB

	mu               sync.Mutex
	batch            []*model.AbsoluteBehaviorModel
	totalRowsWritten int64
	closed           bool
}

// NewDuckDBWriter creates a DuckDB writer. An existing file at path is
// replaced.
func NewDuckDBWriter(path string, cfg Config) (*DuckDBWriter, error) {
	for _, p := range []string{path, path + ".wal"} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to replace %s: %w", p, err)
		}
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb: %w", err)
	}
	for _, ddl := range duckDBSchema {
		if _, err := db.Exec(ddl); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create tables: %w", err)
		}
	}

	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	return &DuckDBWriter{
		cfg:  cfg,
		path: path,
		db:   db,
	}, nil
}

// Write implements Writer. Models are inserted in batches of
// cfg.BatchSize transitions.
func (w *DuckDBWriter) Write(ctx context.Context, m *model.AbsoluteBehaviorModel) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return errClosed(FormatDuckDB)
	}
	w.batch = append(w.batch, m)
	pending := 0
	for _, b := range w.batch {
		pending += b.TransitionCount()
	}
	if pending >= w.cfg.BatchSize {
		return w.flushBatch(ctx)
	}
	return nil
}

// flushBatch inserts the buffered models in one transaction.
func (w *DuckDBWriter) flushBatch(ctx context.Context) error {
	if len(w.batch) == 0 {
		return nil
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	stmts := []string{
		`INSERT INTO models (model_id, session_id, vertices, transitions) VALUES (?, ?, ?, ?)`,
		`INSERT INTO vertices (model_id, vertex_id, kind, use_case_id, use_case_name) VALUES (?, ?, ?, ?, ?)`,
		`INSERT INTO transitions (model_id, source, target, value) VALUES (?, ?, ?, ?)`,
		`INSERT INTO transition_times (model_id, source, target, seq, delta) VALUES (?, ?, ?, ?, ?)`,
	}
	prepared := make([]*sql.Stmt, len(stmts))
	for i, q := range stmts {
		if prepared[i], err = tx.PrepareContext(ctx, q); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to prepare insert: %w", err)
		}
		defer prepared[i].Close()
	}
	insModel, insVertex, insTransition, insTime := prepared[0], prepared[1], prepared[2], prepared[3]

	var rows int64
	for _, m := range w.batch {
		if _, err := insModel.ExecContext(ctx, m.ID, m.SessionID, len(m.Vertices), m.TransitionCount()); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert model %s: %w", m.ID, err)
		}

		for _, v := range m.Vertices {
			var ucID, ucName interface{}
			if v.UseCase != nil {
				ucID, ucName = v.UseCase.ID, v.UseCase.Name
			}
			if _, err := insVertex.ExecContext(ctx, m.ID, int32(v.ID), v.Kind.String(), ucID, ucName); err != nil {
				tx.Rollback()
				return fmt.Errorf("failed to insert vertex: %w", err)
			}
		}

		for _, row := range transitionRows(m) {
			if _, err := insTransition.ExecContext(ctx, m.ID, int32(row.source), int32(row.target), row.value); err != nil {
				tx.Rollback()
				return fmt.Errorf("failed to insert transition: %w", err)
			}
			for seq, d := range row.times {
				if _, err := insTime.ExecContext(ctx, m.ID, int32(row.source), int32(row.target), int32(seq), d); err != nil {
					tx.Rollback()
					return fmt.Errorf("failed to insert time sample: %w", err)
				}
			}
			rows++
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	w.totalRowsWritten += rows
	w.batch = w.batch[:0]
	return nil
}

// Flush inserts any buffered models.
func (w *DuckDBWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushBatch(context.Background())
}

// Close flushes and closes the database.
func (w *DuckDBWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.flushBatch(context.Background()); err != nil {
		w.db.Close()
		return err
	}
	return w.db.Close()
}

// RowsWritten returns the number of transitions written.
func (w *DuckDBWriter) RowsWritten() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.totalRowsWritten
}

// Summary describes the content of a models database.
type Summary struct {
	Models      int64
	Vertices    int64
	Transitions int64
	Traversals  int64
	Samples     int64
	Top         []TransitionStat
}

// TransitionStat aggregates one use case pair over all models.
// Target is "$" for the final state.
type TransitionStat struct {
	Source     string
	Target     string
	Traversals int64
	Models     int64
	Samples    int64
	MeanDelta  float64
}

// Summarize reads totals and the top transitions by traversal count from a
// database written by DuckDBWriter.
func Summarize(ctx context.Context, path string, top int) (*Summary, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}

	db, err := sql.Open("duckdb", path+"?access_mode=READ_ONLY")
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb: %w", err)
	}
	defer db.Close()

	var s Summary
	err = db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM models),
			(SELECT COUNT(*) FROM vertices),
			(SELECT COUNT(*) FROM transitions),
			(SELECT CAST(COALESCE(SUM(value), 0) AS BIGINT) FROM transitions),
			(SELECT COUNT(*) FROM transition_times)
	`).Scan(&s.Models, &s.Vertices, &s.Transitions, &s.Traversals, &s.Samples)
	if err != nil {
		return nil, fmt.Errorf("failed to query totals: %w", err)
	}

	if top <= 0 {
		return &s, nil
	}

	rows, err := db.QueryContext(ctx, fmt.Sprintf(`
		WITH samples AS (
			SELECT model_id, source, target, SUM(delta) AS total, COUNT(*) AS n
			FROM transition_times
			GROUP BY model_id, source, target
		)
		SELECT
			s.use_case_id,
			CASE WHEN d.kind = 'final' THEN '%s' ELSE d.use_case_id END,
			CAST(SUM(t.value) AS BIGINT),
			COUNT(*),
			CAST(COALESCE(SUM(x.n), 0) AS BIGINT),
			CAST(COALESCE(SUM(x.total), 0) AS DOUBLE)
		FROM transitions t
		JOIN vertices s ON s.model_id = t.model_id AND s.vertex_id = t.source
		JOIN vertices d ON d.model_id = t.model_id AND d.vertex_id = t.target
		LEFT JOIN samples x ON x.model_id = t.model_id AND x.source = t.source AND x.target = t.target
		GROUP BY 1, 2
		ORDER BY 3 DESC, 1, 2
		LIMIT %d
	`, model.FinalStateLabel, top))
	if err != nil {
		return nil, fmt.Errorf("failed to query transitions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			ts    TransitionStat
			total float64
		)
		if err := rows.Scan(&ts.Source, &ts.Target, &ts.Traversals, &ts.Models, &ts.Samples, &total); err != nil {
			return nil, fmt.Errorf("failed to scan transition: %w", err)
		}
		if ts.Samples > 0 {
			ts.MeanDelta = total / float64(ts.Samples)
		}
		s.Top = append(s.Top, ts)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &s, nil
}

// Verify interface compliance.
var _ Writer = (*DuckDBWriter)(nil)
