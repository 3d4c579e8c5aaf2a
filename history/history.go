// Package history keeps a local record of successful submissions so
// past jobs can be found again (`slurmpool jobs`) after the submitting
// process is gone.
package history

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Record is one successful submission.
type Record struct {
	JobID       int
	Name        string
	Slots       int
	Tasks       int
	RunDir      string
	SubmittedAt time.Time
}

type Store struct {
	db *sql.DB
}

// DefaultPath places the history database under the user's config
// directory.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "slurmpool-history.db"
	}
	return filepath.Join(home, ".config", "slurmpool", "history.db")
}

// Open opens (and if necessary creates) the history database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS slurmpool_jobs (
        job_id INTEGER NOT NULL,
        name TEXT NOT NULL,
        slots INTEGER NOT NULL,
        tasks INTEGER NOT NULL,
        run_dir TEXT NOT NULL,
        submitted_at INTEGER NOT NULL
    )`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_slurmpool_jobs_submitted
        ON slurmpool_jobs(submitted_at)`)
	return err
}

func (s *Store) Close() error { return s.db.Close() }

// Append records one submission.
func (s *Store) Append(ctx context.Context, r Record) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO slurmpool_jobs (job_id, name, slots, tasks, run_dir, submitted_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		r.JobID, r.Name, r.Slots, r.Tasks, r.RunDir, r.SubmittedAt.Unix())
	return err
}

// List returns up to limit submissions, most recent first.
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT job_id, name, slots, tasks, run_dir, submitted_at
         FROM slurmpool_jobs ORDER BY submitted_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var ts int64
		if err := rows.Scan(&r.JobID, &r.Name, &r.Slots, &r.Tasks, &r.RunDir, &ts); err != nil {
			return nil, err
		}
		r.SubmittedAt = time.Unix(ts, 0)
		out = append(out, r)
	}
	return out, rows.Err()
}
