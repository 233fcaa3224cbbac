package snapshotdb

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/febid/internal/febid/process"
)

// Run is one simulation run.
type Run struct {
	ID          string
	CreatedAt   time.Time
	Nx, Ny, Nz  int
	CellSize    float64
	ConfigJSON  string
	ParentRunID string // run whose snapshot seeded this one, if any
	FinishedAt  time.Time
	Steps       int
	SimTime     float64
	Yield       float64
	StopReason  string
}

// Finished reports whether FinishRun has been recorded.
func (r Run) Finished() bool { return !r.FinishedAt.IsZero() }

// CreateRun records a new run and returns its ID.
func (db *DB) CreateRun(cfg process.Config, configJSON []byte, parentRunID string) (string, error) {
	id := uuid.NewString()
	var parent sql.NullString
	if parentRunID != "" {
		parent = sql.NullString{String: parentRunID, Valid: true}
	}
	_, err := db.Exec(`INSERT INTO febid_run (run_id, created_unix_nanos, nx, ny, nz, cell_size, config_json, parent_run_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, time.Now().UnixNano(), cfg.Nx, cfg.Ny, cfg.Nz, cfg.CellSize, string(configJSON), parent)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return id, nil
}

// FinishRun stores the outcome of a run.
func (db *DB) FinishRun(runID string, res process.Result) error {
	out, err := db.Exec(`UPDATE febid_run SET finished_unix_nanos = ?, steps = ?, sim_time = ?, yield = ?, stop_reason = ?
		WHERE run_id = ?`,
		time.Now().UnixNano(), res.Steps, res.Time, res.Yield, string(res.Reason), runID)
	if err != nil {
		return fmt.Errorf("update run %s: %w", runID, err)
	}
	if n, _ := out.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	return nil
}

const runColumns = `run_id, created_unix_nanos, nx, ny, nz, cell_size, config_json,
	parent_run_id, finished_unix_nanos, steps, sim_time, yield, stop_reason`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var (
		r        Run
		created  int64
		parent   sql.NullString
		finished sql.NullInt64
	)
	if err := row.Scan(&r.ID, &created, &r.Nx, &r.Ny, &r.Nz, &r.CellSize, &r.ConfigJSON,
		&parent, &finished, &r.Steps, &r.SimTime, &r.Yield, &r.StopReason); err != nil {
		return Run{}, err
	}
	r.CreatedAt = time.Unix(0, created)
	r.ParentRunID = parent.String
	if finished.Valid {
		r.FinishedAt = time.Unix(0, finished.Int64)
	}
	return r, nil
}

// GetRun loads a run by ID.
func (db *DB) GetRun(runID string) (Run, error) {
	r, err := scanRun(db.QueryRow(`SELECT `+runColumns+` FROM febid_run WHERE run_id = ?`, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	return r, err
}

// ListRuns returns all runs, newest first.
func (db *DB) ListRuns() ([]Run, error) {
	rows, err := db.Query(`SELECT ` + runColumns + ` FROM febid_run ORDER BY created_unix_nanos DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// LatestRun returns the most recently created run.
func (db *DB) LatestRun() (Run, error) {
	r, err := scanRun(db.QueryRow(`SELECT ` + runColumns + ` FROM febid_run ORDER BY created_unix_nanos DESC LIMIT 1`))
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("latest run: %w", ErrNotFound)
	}
	return r, err
}
