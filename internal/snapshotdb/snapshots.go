package snapshotdb

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/banshee-data/febid/internal/febid/process"
)

// SnapshotInfo describes a stored snapshot without its state blob.
type SnapshotInfo struct {
	ID    int64
	RunID string
	Step  int
	Time  float64
	ZTop  int
	Yield float64
	Bytes int
}

// InsertSnapshot persists a snapshot for a run and returns its ID.
func (db *DB) InsertSnapshot(runID string, s *process.Snapshot) (int64, error) {
	if s == nil {
		return 0, nil
	}
	blob, err := encodeSnapshot(s)
	if err != nil {
		return 0, fmt.Errorf("encode snapshot at step %d: %w", s.Step, err)
	}
	res, err := db.Exec(`INSERT INTO febid_snapshot (run_id, step, sim_time, z_top, yield, state_blob)
		VALUES (?, ?, ?, ?, ?, ?)`, runID, s.Step, s.Time, s.ZTop, s.Yield, blob)
	if err != nil {
		return 0, fmt.Errorf("insert snapshot: %w", err)
	}
	return res.LastInsertId()
}

// LatestSnapshot loads the snapshot with the highest step of a run.
func (db *DB) LatestSnapshot(runID string) (*process.Snapshot, error) {
	var blob []byte
	err := db.QueryRow(`SELECT state_blob FROM febid_snapshot WHERE run_id = ?
		ORDER BY step DESC, snapshot_id DESC LIMIT 1`, runID).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("snapshot for run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return decodeSnapshot(blob)
}

// GetSnapshot loads a snapshot by ID.
func (db *DB) GetSnapshot(id int64) (*process.Snapshot, error) {
	var blob []byte
	err := db.QueryRow(`SELECT state_blob FROM febid_snapshot WHERE snapshot_id = ?`, id).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("snapshot %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return decodeSnapshot(blob)
}

// ListSnapshots returns the snapshots of a run in step order.
func (db *DB) ListSnapshots(runID string) ([]SnapshotInfo, error) {
	rows, err := db.Query(`SELECT snapshot_id, run_id, step, sim_time, z_top, yield, length(state_blob)
		FROM febid_snapshot WHERE run_id = ? ORDER BY step, snapshot_id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SnapshotInfo
	for rows.Next() {
		var si SnapshotInfo
		if err := rows.Scan(&si.ID, &si.RunID, &si.Step, &si.Time, &si.ZTop, &si.Yield, &si.Bytes); err != nil {
			return nil, err
		}
		out = append(out, si)
	}
	return out, rows.Err()
}
