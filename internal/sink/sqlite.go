package sink

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"jobharvest/internal/jobs"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS job_postings (
	job_id           TEXT NOT NULL,
	title            TEXT NOT NULL,
	display_title    TEXT NOT NULL,
	location         TEXT,
	workload_percent INTEGER,
	salary_min       REAL,
	salary_max       REAL,
	salary_currency  TEXT,
	salary_period    TEXT,
	contract_type    TEXT,
	posted_date      TEXT,
	source_url       TEXT NOT NULL,
	html_ref         TEXT,
	PRIMARY KEY (job_id, title)
);`

const sqliteInsert = `
INSERT OR IGNORE INTO job_postings (
	job_id, title, display_title, location, workload_percent,
	salary_min, salary_max, salary_currency, salary_period,
	contract_type, posted_date, source_url, html_ref
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`

// SQLiteWriter commits batches to a local SQLite database. The primary
// key doubles as a persisted duplicate index: a re-run over the same
// file silently ignores identities it already holds.
type SQLiteWriter struct {
	db *sql.DB
}

// NewSQLiteWriter opens the database file and ensures the schema.
func NewSQLiteWriter(path string) (*SQLiteWriter, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create job_postings table: %w", err)
	}
	return &SQLiteWriter{db: db}, nil
}

func (s *SQLiteWriter) Name() string { return "sqlite" }

// WriteBatch inserts the batch inside one transaction.
func (s *SQLiteWriter) WriteBatch(ctx context.Context, batch []jobs.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch transaction: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, sqliteInsert)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range batch {
		var salMin, salMax *float64
		var salCur, salPeriod *string
		if rec.Salary != nil {
			salMin, salMax = &rec.Salary.Min, &rec.Salary.Max
			salCur = &rec.Salary.Currency
			p := string(rec.Salary.Period)
			salPeriod = &p
		}
		// The key column carries the normalized identity title; a re-run
		// that only changed the display casing must still hit the index.
		_, err := stmt.ExecContext(ctx,
			rec.Identity.JobID, rec.Identity.Title, rec.Title,
			rec.Location, rec.WorkloadPercent,
			salMin, salMax, salCur, salPeriod,
			rec.ContractType, rec.PostedDate,
			rec.SourceURL, rec.HTMLRef,
		)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert posting %s: %w", rec.Identity.JobID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

func (s *SQLiteWriter) Close() error { return s.db.Close() }
