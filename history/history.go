// Package history archives probe sweeps in a SQLite database.
package history

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/mastercactapus/bedmesh/coord"
)

// schema.sql creates the run and sample tables.
//
//go:embed schema.sql
var schemaSQL string

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("history: run not found")

// Run describes one archived sweep.
type Run struct {
	RunID  string `json:"run_id"`
	Name   string `json:"name"`
	Source string `json:"source"`

	NX   int     `json:"nx"`
	NY   int     `json:"ny"`
	XMax float64 `json:"x_max"`
	YMax float64 `json:"y_max"`

	// Samples is the number of stored samples.
	Samples   int   `json:"samples"`
	CreatedAt int64 `json:"created_at"`
}

// Store is a probe run archive.
type Store struct {
	db *sql.DB
}

// Open opens or creates the archive at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(schemaSQL)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("history: init schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Record stores a run and its samples in sweep order. If RunID is empty, a
// UUID is generated; a zero CreatedAt is set to now.
func (s *Store) Record(run *Run, samples []coord.Point) (err error) {
	if run.RunID == "" {
		run.RunID = uuid.NewString()
	}
	if run.CreatedAt == 0 {
		run.CreatedAt = time.Now().UnixNano()
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	_, err = tx.Exec(`
		INSERT INTO probe_runs (run_id, name, source, nx, ny, x_max, y_max, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.Name, run.Source, run.NX, run.NY, run.XMax, run.YMax, run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("history: insert run: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO probe_samples (run_id, seq, x, y, z) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, p := range samples {
		_, err = stmt.Exec(run.RunID, i, p.X, p.Y, p.Z)
		if err != nil {
			return fmt.Errorf("history: insert sample %d: %w", i, err)
		}
	}

	err = tx.Commit()
	if err != nil {
		return err
	}
	run.Samples = len(samples)
	return nil
}

const runColumns = `
	SELECT r.run_id, r.name, r.source, r.nx, r.ny, r.x_max, r.y_max, r.created_at,
	       (SELECT COUNT(*) FROM probe_samples s WHERE s.run_id = r.run_id)
	FROM probe_runs r`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var r Run
	err := row.Scan(&r.RunID, &r.Name, &r.Source, &r.NX, &r.NY, &r.XMax, &r.YMax, &r.CreatedAt, &r.Samples)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// Runs returns every run, newest first.
func (s *Store) Runs() ([]*Run, error) {
	rows, err := s.db.Query(runColumns + ` ORDER BY r.created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("history: query runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Get returns a single run by ID.
func (s *Store) Get(runID string) (*Run, error) {
	return scanRun(s.db.QueryRow(runColumns+` WHERE r.run_id = ?`, runID))
}

// Latest returns the most recent run.
func (s *Store) Latest() (*Run, error) {
	return scanRun(s.db.QueryRow(runColumns + ` ORDER BY r.created_at DESC LIMIT 1`))
}

// Load returns the samples of a run in sweep order.
func (s *Store) Load(runID string) ([]coord.Point, error) {
	_, err := s.Get(runID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(`SELECT x, y, z FROM probe_samples WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("history: query samples: %w", err)
	}
	defer rows.Close()

	var pts []coord.Point
	for rows.Next() {
		var p coord.Point
		err = rows.Scan(&p.X, &p.Y, &p.Z)
		if err != nil {
			return nil, err
		}
		pts = append(pts, p)
	}
	return pts, rows.Err()
}

// Delete removes a run and its samples.
func (s *Store) Delete(runID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`DELETE FROM probe_samples WHERE run_id = ?`, runID)
	if err != nil {
		return err
	}
	res, err := tx.Exec(`DELETE FROM probe_runs WHERE run_id = ?`, runID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}
