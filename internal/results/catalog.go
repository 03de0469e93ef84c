package results

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/golang/snappy"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/arkilian/enginebench/internal/errors"
)

// Catalog records benchmark runs.
type Catalog interface {
	// StartRun creates a run and returns its id.
	StartRun(ctx context.Context, info RunInfo) (string, error)

	// RecordCase stores the outcome of one case with its measured latencies.
	RecordCase(ctx context.Context, runID string, rec *CaseRecord) error

	// FinishRun stamps the run's end time.
	FinishRun(ctx context.Context, runID string, finishedAt time.Time) error

	// Close closes the catalog database connection.
	Close() error
}

// RunInfo describes a run being started.
type RunInfo struct {
	Libraries []string
	Config    interface{}
	StartedAt time.Time
}

// RunRecord represents a stored run.
type RunRecord struct {
	RunID      string
	Libraries  []string
	ConfigJSON string
	StartedAt  time.Time
	FinishedAt *time.Time
}

// CaseRecord is the stored outcome of a case.
type CaseRecord struct {
	Name             string
	Dataset          string
	Size             int
	Param            float64
	State            string
	Failed           bool
	WarmupIterations int
	ErrorPayload     string
	Iterations       []time.Duration
	RecordedAt       time.Time
}

// SQLiteCatalog implements Catalog using SQLite.
type SQLiteCatalog struct {
	db     *sql.DB
	dbPath string
	mu     sync.Mutex
}

// NewCatalog opens (creating if needed) the catalog at dbPath.
func NewCatalog(dbPath string) (*SQLiteCatalog, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, errors.NewResultsError(errors.CodeCatalogOpen, "failed to open database", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	c := &SQLiteCatalog{db: db, dbPath: dbPath}
	if err := c.initSchema(); err != nil {
		db.Close()
		return nil, errors.NewResultsError(errors.CodeCatalogOpen, "failed to initialize schema", err)
	}
	return c, nil
}

func (c *SQLiteCatalog) initSchema() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, stmt := range AllSchemaSQL() {
		if _, err := c.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

// Path returns the database file path.
func (c *SQLiteCatalog) Path() string {
	return c.dbPath
}

// StartRun creates a run with a fresh UUID.
func (c *SQLiteCatalog) StartRun(ctx context.Context, info RunInfo) (string, error) {
	libs, err := json.Marshal(info.Libraries)
	if err != nil {
		return "", errors.NewResultsError(errors.CodeCatalogWrite, "failed to encode libraries", err)
	}
	var cfg sql.NullString
	if info.Config != nil {
		data, err := json.Marshal(info.Config)
		if err != nil {
			return "", errors.NewResultsError(errors.CodeCatalogWrite, "failed to encode config", err)
		}
		cfg = sql.NullString{String: string(data), Valid: true}
	}
	started := info.StartedAt
	if started.IsZero() {
		started = time.Now()
	}

	runID := uuid.New().String()

	c.mu.Lock()
	defer c.mu.Unlock()
	_, err = c.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, libraries, config_json, started_at) VALUES (?, ?, ?, ?)`,
		runID, string(libs), cfg, started.UnixNano())
	if err != nil {
		return "", errors.NewResultsError(errors.CodeCatalogWrite, "failed to insert run", err)
	}
	return runID, nil
}

// RecordCase stores a case and its iterations in one transaction.
// Recording the same case twice replaces the earlier record.
func (c *SQLiteCatalog) RecordCase(ctx context.Context, runID string, rec *CaseRecord) error {
	recorded := rec.RecordedAt
	if recorded.IsZero() {
		recorded = time.Now()
	}
	var payload []byte
	if rec.ErrorPayload != "" {
		payload = snappy.Encode(nil, []byte(rec.ErrorPayload))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewResultsError(errors.CodeCatalogWrite, "failed to begin transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM iterations WHERE run_id = ? AND case_name = ?`, runID, rec.Name); err != nil {
		return errors.NewResultsError(errors.CodeCatalogWrite, "failed to clear iterations", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO cases (
			run_id, case_name, dataset, size, param, state, failed,
			warmup_iterations, error_payload, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, rec.Name, rec.Dataset, rec.Size, rec.Param, rec.State, rec.Failed,
		rec.WarmupIterations, payload, recorded.UnixNano())
	if err != nil {
		return errors.NewResultsError(errors.CodeCatalogWrite, "failed to insert case "+rec.Name, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO iterations (run_id, case_name, seq, duration_ns) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return errors.NewResultsError(errors.CodeCatalogWrite, "failed to prepare iteration insert", err)
	}
	defer stmt.Close()
	for i, d := range rec.Iterations {
		if _, err := stmt.ExecContext(ctx, runID, rec.Name, i, d.Nanoseconds()); err != nil {
			return errors.NewResultsError(errors.CodeCatalogWrite, "failed to insert iteration", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.NewResultsError(errors.CodeCatalogWrite, "failed to commit case "+rec.Name, err)
	}
	return nil
}

// FinishRun stamps the run's end time.
func (c *SQLiteCatalog) FinishRun(ctx context.Context, runID string, finishedAt time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	res, err := c.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ? WHERE run_id = ?`, finishedAt.UnixNano(), runID)
	if err != nil {
		return errors.NewResultsError(errors.CodeCatalogWrite, "failed to finish run", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NewResultsError(errors.CodeCatalogWrite, "unknown run "+runID, nil)
	}
	return nil
}

// GetRun retrieves a run by id.
func (c *SQLiteCatalog) GetRun(ctx context.Context, runID string) (*RunRecord, error) {
	var (
		libs     string
		cfg      sql.NullString
		started  int64
		finished sql.NullInt64
	)
	err := c.db.QueryRowContext(ctx,
		`SELECT libraries, config_json, started_at, finished_at FROM runs WHERE run_id = ?`, runID).
		Scan(&libs, &cfg, &started, &finished)
	if err != nil {
		return nil, fmt.Errorf("results: failed to get run %s: %w", runID, err)
	}

	rec := &RunRecord{
		RunID:      runID,
		ConfigJSON: cfg.String,
		StartedAt:  time.Unix(0, started),
	}
	if err := json.Unmarshal([]byte(libs), &rec.Libraries); err != nil {
		return nil, fmt.Errorf("results: corrupt libraries of run %s: %w", runID, err)
	}
	if finished.Valid {
		t := time.Unix(0, finished.Int64)
		rec.FinishedAt = &t
	}
	return rec, nil
}

// ListCases returns the cases of a run ordered by name, with iterations.
func (c *SQLiteCatalog) ListCases(ctx context.Context, runID string) ([]*CaseRecord, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT case_name, dataset, size, param, state, failed, warmup_iterations, error_payload, recorded_at
		FROM cases WHERE run_id = ? ORDER BY case_name`, runID)
	if err != nil {
		return nil, fmt.Errorf("results: failed to list cases: %w", err)
	}
	defer rows.Close()

	var out []*CaseRecord
	for rows.Next() {
		var (
			rec      CaseRecord
			payload  []byte
			recorded int64
		)
		if err := rows.Scan(&rec.Name, &rec.Dataset, &rec.Size, &rec.Param, &rec.State,
			&rec.Failed, &rec.WarmupIterations, &payload, &recorded); err != nil {
			return nil, fmt.Errorf("results: failed to scan case: %w", err)
		}
		if len(payload) > 0 {
			decoded, err := snappy.Decode(nil, payload)
			if err != nil {
				return nil, fmt.Errorf("results: corrupt error payload of %s: %w", rec.Name, err)
			}
			rec.ErrorPayload = string(decoded)
		}
		rec.RecordedAt = time.Unix(0, recorded)
		out = append(out, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, rec := range out {
		if rec.Iterations, err = c.iterations(ctx, runID, rec.Name); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (c *SQLiteCatalog) iterations(ctx context.Context, runID, caseName string) ([]time.Duration, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT duration_ns FROM iterations WHERE run_id = ? AND case_name = ? ORDER BY seq`, runID, caseName)
	if err != nil {
		return nil, fmt.Errorf("results: failed to read iterations: %w", err)
	}
	defer rows.Close()

	var out []time.Duration
	for rows.Next() {
		var ns int64
		if err := rows.Scan(&ns); err != nil {
			return nil, err
		}
		out = append(out, time.Duration(ns))
	}
	return out, rows.Err()
}

// Close closes the catalog database connection.
func (c *SQLiteCatalog) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.db.Close()
}
