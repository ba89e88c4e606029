package report

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const createResultsTable = `CREATE TABLE IF NOT EXISTS results (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      TEXT NOT NULL,
	recorded_at TEXT NOT NULL,
	command     TEXT NOT NULL,
	name        TEXT NOT NULL,
	passed      INTEGER NOT NULL,
	status      TEXT,
	description TEXT NOT NULL,
	value       TEXT NOT NULL,
	reasons     TEXT NOT NULL
)`

// SQLiteLog appends results to a `results` table.
type SQLiteLog struct {
	db *sql.DB
}

// OpenSQLite opens path and creates the results table if needed.
func OpenSQLite(ctx context.Context, path string) (*SQLiteLog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("report: open sqlite %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, createResultsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("report: create results table: %w", err)
	}
	return &SQLiteLog{db: db}, nil
}

// Append inserts every result of one run in a single transaction.
func (l *SQLiteLog) Append(ctx context.Context, runID string, at time.Time, results []TestResult) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO results
		(run_id, recorded_at, command, name, passed, status, description, value, reasons)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	stamp := at.UTC().Format(time.RFC3339)
	for _, rec := range Records(results) {
		var status sql.NullString
		if rec.Status != nil {
			status = sql.NullString{String: *rec.Status, Valid: true}
		}
		passed := 0
		if rec.Passed {
			passed = 1
		}
		if _, err := stmt.ExecContext(ctx, runID, stamp, rec.Command, rec.Name, passed, status,
			rec.Description, valueText(rec.Value), strings.Join(rec.Reasons, "; ")); err != nil {
			tx.Rollback()
			return fmt.Errorf("report: insert %s: %w", rec.Command, err)
		}
	}
	return tx.Commit()
}

// Row is one stored result.
type Row struct {
	RunID       string
	RecordedAt  string
	Command     string
	Name        string
	Passed      bool
	Status      sql.NullString
	Description string
	Value       string
	Reasons     string
}

// Run returns the rows stored for runID in insertion order.
func (l *SQLiteLog) Run(ctx context.Context, runID string) ([]Row, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT run_id, recorded_at, command, name, passed, status, description, value, reasons
		FROM results WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var (
			r      Row
			passed int
		)
		if err := rows.Scan(&r.RunID, &r.RecordedAt, &r.Command, &r.Name, &passed, &r.Status, &r.Description, &r.Value, &r.Reasons); err != nil {
			return nil, err
		}
		r.Passed = passed != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

func (l *SQLiteLog) Close() error {
	return l.db.Close()
}
