package snapshotdb

import (
	"fmt"

	"github.com/banshee-data/febid/internal/febid/process"
)

// InsertStats stores a statistics record. A second record for the same step
// replaces the first.
func (db *DB) InsertStats(runID string, s process.Stats) error {
	_, err := db.Exec(`INSERT OR REPLACE INTO febid_stats (run_id, step, sim_time, filled_cells, volume, growth_rate,
		min_precursor, mean_precursor, std_precursor, active_cells, z_top)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, s.Step, s.Time, s.FilledCells, s.Volume, s.GrowthRate,
		s.MinPrecursor, s.MeanPrecursor, s.StdPrecursor, s.ActiveCells, s.ZTop)
	if err != nil {
		return fmt.Errorf("insert stats at step %d: %w", s.Step, err)
	}
	return nil
}

// ListStats returns the statistics of a run in step order.
func (db *DB) ListStats(runID string) ([]process.Stats, error) {
	rows, err := db.Query(`SELECT step, sim_time, filled_cells, volume, growth_rate,
		min_precursor, mean_precursor, std_precursor, active_cells, z_top
		FROM febid_stats WHERE run_id = ? ORDER BY step`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []process.Stats
	for rows.Next() {
		var s process.Stats
		if err := rows.Scan(&s.Step, &s.Time, &s.FilledCells, &s.Volume, &s.GrowthRate,
			&s.MinPrecursor, &s.MeanPrecursor, &s.StdPrecursor, &s.ActiveCells, &s.ZTop); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
