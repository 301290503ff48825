// Package store is the cross-run results warehouse: a SQLite database
// that JSONL result files are imported into for ad-hoc querying and
// later recomputation of concordance tables.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"concord/internal/resultstore"
)

// DefaultDBPath is where the warehouse lives unless overridden.
const DefaultDBPath = ".concord/results.db"

const schemaVersion = 1

// Store wraps the SQLite database.
type Store struct {
	db *sql.DB
}

// RunMeta describes one imported run.
type RunMeta struct {
	ID         int64
	ImportedAt string
	SourceFile string
	Seed       int64
	Tools      []string
	Records    int
}

// Open opens or creates the database at path and runs migrations.
// Creates the parent directory if it does not exist.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: create dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ping sqlite: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS runs (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		imported_at TEXT NOT NULL,
		source_file TEXT NOT NULL,
		seed        INTEGER NOT NULL,
		tools       TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS results (
		id        INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id    INTEGER NOT NULL REFERENCES runs(id),
		origin    TEXT NOT NULL,
		rank      INTEGER NOT NULL,
		status    TEXT NOT NULL CHECK (status IN ('ok','error')),
		error     TEXT,
		timestamp TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS tool_results (
		result_id  INTEGER NOT NULL REFERENCES results(id),
		tool       TEXT NOT NULL,
		time_ms    INTEGER NOT NULL,
		status     TEXT NOT NULL CHECK (status IN ('ok','error')),
		error      TEXT,
		categories TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_results_run ON results(run_id);
	CREATE INDEX IF NOT EXISTS idx_tool_results_result ON tool_results(result_id);
	`)
	if err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM schema_version`).Scan(&count); err != nil {
		return fmt.Errorf("store: read schema version: %w", err)
	}
	if count == 0 {
		if _, err := s.db.Exec(`INSERT INTO schema_version (version) VALUES (?)`, schemaVersion); err != nil {
			return fmt.Errorf("store: init schema version: %w", err)
		}
		return nil
	}
	var v int
	if err := s.db.QueryRow(`SELECT version FROM schema_version`).Scan(&v); err != nil {
		return fmt.Errorf("store: read schema version: %w", err)
	}
	if v != schemaVersion {
		return fmt.Errorf("store: schema version %d not supported (want %d)", v, schemaVersion)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// ImportRun inserts a whole result set as one run, atomically.
func (s *Store) ImportRun(sourceFile string, seed int64, tools []string, records []resultstore.Record) (int64, error) {
	toolsJSON, err := json.Marshal(tools)
	if err != nil {
		return 0, fmt.Errorf("store: marshal tools: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`INSERT INTO runs (imported_at, source_file, seed, tools) VALUES (?, ?, ?, ?)`,
		time.Now().UTC().Format(time.RFC3339), sourceFile, seed, string(toolsJSON),
	)
	if err != nil {
		return 0, fmt.Errorf("store: insert run: %w", err)
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("store: run id: %w", err)
	}

	for _, rec := range records {
		r, err := tx.Exec(
			`INSERT INTO results (run_id, origin, rank, status, error, timestamp) VALUES (?, ?, ?, ?, ?, ?)`,
			runID, rec.Origin, rec.Rank, string(rec.Status), rec.Error,
			rec.Timestamp.UTC().Format(time.RFC3339),
		)
		if err != nil {
			return 0, fmt.Errorf("store: insert result %s: %w", rec.Origin, err)
		}
		resultID, err := r.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("store: result id: %w", err)
		}
		for tool, tr := range rec.Tools {
			cats, err := json.Marshal(tr.CategoriesFound)
			if err != nil {
				return 0, fmt.Errorf("store: marshal categories: %w", err)
			}
			if _, err := tx.Exec(
				`INSERT INTO tool_results (result_id, tool, time_ms, status, error, categories) VALUES (?, ?, ?, ?, ?, ?)`,
				resultID, tool, tr.TimeMs, string(tr.Status), tr.Error, string(cats),
			); err != nil {
				return 0, fmt.Errorf("store: insert tool result %s/%s: %w", rec.Origin, tool, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("store: commit: %w", err)
	}
	return runID, nil
}

// ListRuns returns all imported runs, newest first.
func (s *Store) ListRuns() ([]RunMeta, error) {
	rows, err := s.db.Query(`
		SELECT r.id, r.imported_at, r.source_file, r.seed, r.tools,
		       (SELECT COUNT(*) FROM results WHERE run_id = r.id)
		FROM runs r ORDER BY r.id DESC`)
	if err != nil {
		return nil, fmt.Errorf("store: list runs: %w", err)
	}
	defer rows.Close()

	var runs []RunMeta
	for rows.Next() {
		var m RunMeta
		var toolsJSON string
		if err := rows.Scan(&m.ID, &m.ImportedAt, &m.SourceFile, &m.Seed, &toolsJSON, &m.Records); err != nil {
			return nil, fmt.Errorf("store: scan run: %w", err)
		}
		if err := json.Unmarshal([]byte(toolsJSON), &m.Tools); err != nil {
			return nil, fmt.Errorf("store: run %d tools: %w", m.ID, err)
		}
		runs = append(runs, m)
	}
	return runs, rows.Err()
}

// ResultsForRun reloads a run's records, ready for a concordance pass.
func (s *Store) ResultsForRun(runID int64) ([]resultstore.Record, error) {
	rows, err := s.db.Query(
		`SELECT id, origin, rank, status, error, timestamp FROM results WHERE run_id = ? ORDER BY id`,
		runID)
	if err != nil {
		return nil, fmt.Errorf("store: results for run %d: %w", runID, err)
	}
	defer rows.Close()

	var records []resultstore.Record
	var ids []int64
	for rows.Next() {
		var id int64
		var rec resultstore.Record
		var errStr sql.NullString
		var ts string
		if err := rows.Scan(&id, &rec.Origin, &rec.Rank, &rec.Status, &errStr, &ts); err != nil {
			return nil, fmt.Errorf("store: scan result: %w", err)
		}
		rec.SchemaVersion = resultstore.SchemaVersion
		rec.Error = errStr.String
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			rec.Timestamp = t
		}
		rec.Tools = make(map[string]resultstore.ToolRecord)
		records = append(records, rec)
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, id := range ids {
		trs, err := s.toolResults(id)
		if err != nil {
			return nil, err
		}
		records[i].Tools = trs
	}
	return records, nil
}

func (s *Store) toolResults(resultID int64) (map[string]resultstore.ToolRecord, error) {
	rows, err := s.db.Query(
		`SELECT tool, time_ms, status, error, categories FROM tool_results WHERE result_id = ?`,
		resultID)
	if err != nil {
		return nil, fmt.Errorf("store: tool results for %d: %w", resultID, err)
	}
	defer rows.Close()

	out := make(map[string]resultstore.ToolRecord)
	for rows.Next() {
		var tool, cats string
		var tr resultstore.ToolRecord
		var errStr sql.NullString
		if err := rows.Scan(&tool, &tr.TimeMs, &tr.Status, &errStr, &cats); err != nil {
			return nil, fmt.Errorf("store: scan tool result: %w", err)
		}
		tr.Error = errStr.String
		if err := json.Unmarshal([]byte(cats), &tr.CategoriesFound); err != nil {
			return nil, fmt.Errorf("store: tool %s categories: %w", tool, err)
		}
		out[tool] = tr
	}
	return out, rows.Err()
}
