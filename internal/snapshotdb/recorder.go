package snapshotdb

import (
	"sync/atomic"

	"github.com/banshee-data/febid/internal/febid/process"
)

// Recorder drains a process.Publisher into the database for one run.
type Recorder struct {
	db    *DB
	runID string

	snapshots atomic.Uint64
	stats     atomic.Uint64
	errors    atomic.Uint64
}

// NewRecorder creates a recorder writing to runID.
func NewRecorder(db *DB, runID string) *Recorder {
	return &Recorder{db: db, runID: runID}
}

// Drain consumes both publisher channels until they are closed. Write
// errors are logged and counted; the loop keeps going.
func (r *Recorder) Drain(pub *process.Publisher) {
	snaps, stats := pub.Snapshots(), pub.Stats()
	for snaps != nil || stats != nil {
		select {
		case s, ok := <-snaps:
			if !ok {
				snaps = nil
				continue
			}
			if _, err := r.db.InsertSnapshot(r.runID, s); err != nil {
				r.errors.Add(1)
				logf("run %s: %v", r.runID, err)
				continue
			}
			r.snapshots.Add(1)
		case s, ok := <-stats:
			if !ok {
				stats = nil
				continue
			}
			if err := r.db.InsertStats(r.runID, s); err != nil {
				r.errors.Add(1)
				logf("run %s: %v", r.runID, err)
				continue
			}
			r.stats.Add(1)
		}
	}
}

// Snapshots returns the number of snapshots written.
func (r *Recorder) Snapshots() uint64 { return r.snapshots.Load() }

// StatsWritten returns the number of statistics records written.
func (r *Recorder) StatsWritten() uint64 { return r.stats.Load() }

// RunID returns the run the recorder writes to.
func (r *Recorder) RunID() string { return r.runID }

// Errors returns the number of failed writes.
func (r *Recorder) Errors() uint64 { return r.errors.Load() }
