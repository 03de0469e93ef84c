// Package results persists benchmark runs in a SQLite catalog.
package results

// CreateRunsTableSQL creates the runs table. One row per harness invocation.
const CreateRunsTableSQL = `
CREATE TABLE IF NOT EXISTS runs (
    run_id TEXT PRIMARY KEY,
    libraries TEXT NOT NULL,
    config_json TEXT,
    started_at INTEGER NOT NULL,
    finished_at INTEGER
)`

// CreateCasesTableSQL creates the cases table. error_payload holds the
// snappy-compressed printed form of the first engine error.
const CreateCasesTableSQL = `
CREATE TABLE IF NOT EXISTS cases (
    run_id TEXT NOT NULL,
    case_name TEXT NOT NULL,
    dataset TEXT NOT NULL,
    size INTEGER NOT NULL,
    param REAL NOT NULL DEFAULT 0,
    state TEXT NOT NULL,
    failed INTEGER NOT NULL DEFAULT 0,
    warmup_iterations INTEGER NOT NULL DEFAULT 0,
    error_payload BLOB,
    recorded_at INTEGER NOT NULL,
    PRIMARY KEY (run_id, case_name),
    FOREIGN KEY (run_id) REFERENCES runs(run_id)
)`

// CreateIterationsTableSQL creates the iterations table holding every
// measured latency.
const CreateIterationsTableSQL = `
CREATE TABLE IF NOT EXISTS iterations (
    run_id TEXT NOT NULL,
    case_name TEXT NOT NULL,
    seq INTEGER NOT NULL,
    duration_ns INTEGER NOT NULL,
    PRIMARY KEY (run_id, case_name, seq),
    FOREIGN KEY (run_id, case_name) REFERENCES cases(run_id, case_name)
)`

// CreateIndexesSQL creates secondary indexes.
var CreateIndexesSQL = []string{
	`CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at)`,
	`CREATE INDEX IF NOT EXISTS idx_cases_name ON cases(case_name)`,
}

// AllSchemaSQL returns the statements creating the catalog, in order.
func AllSchemaSQL() []string {
	stmts := []string{
		CreateRunsTableSQL,
		CreateCasesTableSQL,
		CreateIterationsTableSQL,
	}
	return append(stmts, CreateIndexesSQL...)
}
