package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/geobatch/internal/geocoding"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS jobs (
	id          TEXT PRIMARY KEY,
	provider    TEXT NOT NULL,
	status      TEXT NOT NULL,
	message     TEXT NOT NULL DEFAULT '',
	summary     TEXT NOT NULL DEFAULT '',
	progress    TEXT NOT NULL,
	failures    TEXT,
	row_count   INTEGER NOT NULL DEFAULT 0,
	created_at  DATETIME NOT NULL,
	finished_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs(created_at);
`

// Migrate creates the history tables.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveJob inserts or replaces the history entry for job.ID.
func (s *SQLiteStore) SaveJob(ctx context.Context, job JobRecord) error {
	progressJSON, err := json.Marshal(job.Progress)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal progress")
	}
	var failuresJSON sql.NullString
	if len(job.Failures) > 0 {
		b, err := json.Marshal(job.Failures)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal failures")
		}
		failuresJSON = sql.NullString{String: string(b), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, provider, status, message, summary, progress, failures, row_count, created_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			provider = excluded.provider,
			status = excluded.status,
			message = excluded.message,
			summary = excluded.summary,
			progress = excluded.progress,
			failures = excluded.failures,
			row_count = excluded.row_count,
			finished_at = excluded.finished_at`,
		job.ID, job.Provider, string(job.Status), job.Message, job.Summary,
		string(progressJSON), failuresJSON, job.RowCount,
		job.CreatedAt.UTC(), job.FinishedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: save job %s", job.ID)
}

// GetJob returns the history entry for id, or ErrNotFound.
func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*JobRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	return scanJob(row)
}

// ListJobs returns history entries, newest first.
func (s *SQLiteStore) ListJobs(ctx context.Context, filter JobFilter) ([]JobRecord, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list jobs")
	}
	defer rows.Close() //nolint:errcheck

	var jobs []JobRecord
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, eris.Wrap(rows.Err(), "sqlite: list jobs iterate")
}

const jobColumns = `id, provider, status, message, summary, progress, failures, row_count, created_at, finished_at`

type scannable interface {
	Scan(dest ...any) error
}

func scanJob(row scannable) (*JobRecord, error) {
	var j JobRecord
	var status, progressJSON string
	var failuresJSON sql.NullString

	err := row.Scan(&j.ID, &j.Provider, &status, &j.Message, &j.Summary,
		&progressJSON, &failuresJSON, &j.RowCount, &j.CreatedAt, &j.FinishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan job")
	}
	j.Status = geocoding.Status(status)

	if err := json.Unmarshal([]byte(progressJSON), &j.Progress); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal progress")
	}
	if failuresJSON.Valid {
		if err := json.Unmarshal([]byte(failuresJSON.String), &j.Failures); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal failures")
		}
	}
	return &j, nil
}
