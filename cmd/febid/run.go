package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"sync"

	"github.com/banshee-data/febid/internal/config"
	"github.com/banshee-data/febid/internal/febid"
	"github.com/banshee-data/febid/internal/febid/process"
	"github.com/banshee-data/febid/internal/monitoring"
	"github.com/banshee-data/febid/internal/snapshotdb"
)

// summary is the JSON printed at the end of a run.
type summary struct {
	RunID       string  `json:"run_id,omitempty"`
	Reason      string  `json:"stop_reason"`
	Error       string  `json:"error,omitempty"`
	Steps       int     `json:"steps"`
	Time        float64 `json:"sim_time"`
	DT          float64 `json:"dt"`
	Yield       float64 `json:"yield_nm3"`
	FilledCells int     `json:"filled_cells"`
	ZTop        int     `json:"z_top"`
	Dropped     uint64  `json:"dropped"`
	WriteErrors uint64  `json:"write_errors,omitempty"`
}

func runCommand(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configPath := fs.String("config", config.DefaultConfigPath, "Path to the simulation config JSON")
	dbPath := fs.String("db", "", "SQLite database to record the run in (optional)")
	outDir := fs.String("out", "", "Directory for plots and the HTML report (optional)")
	seedRun := fs.String("seed-run", "", "Start from the latest snapshot of this run ID (requires -db)")
	equilibrate := fs.Int("equilibrate", 0, "Iterate the precursor field to steady state for up to N steps before the run")
	buffer := fs.Int("buffer", 16, "Snapshot channel buffer depth")
	debug := fs.Bool("debug", false, "Enable per-step debug logging (overrides the config)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	sc, err := config.LoadSimConfig(*configPath)
	if err != nil {
		return err
	}
	monitoring.SetDebug(sc.GetDebug() || *debug)
	cfg, err := process.ConfigFromSim(sc)
	if err != nil {
		return err
	}
	if *seedRun != "" && *dbPath == "" {
		return errors.New("-seed-run requires -db")
	}

	var db *snapshotdb.DB
	if *dbPath != "" {
		if db, err = snapshotdb.Open(*dbPath); err != nil {
			return err
		}
		defer db.Close()
	}

	var seed *process.InitialState
	if *seedRun != "" {
		snap, err := db.LatestSnapshot(*seedRun)
		if err != nil {
			return fmt.Errorf("seed run: %w", err)
		}
		if snap.Nx != cfg.Nx || snap.Ny != cfg.Ny || snap.Nz != cfg.Nz {
			return febid.NewConfigurationError("seed-run", "snapshot grid %dx%dx%d does not match %dx%dx%d",
				snap.Nx, snap.Ny, snap.Nz, cfg.Nx, cfg.Ny, cfg.Nz)
		}
		seed = snap.InitialState()
		log.Printf("[febid] seeding from run %s at step %d", *seedRun, snap.Step)
	}

	p, err := process.New(cfg, seed)
	if err != nil {
		return err
	}
	if *equilibrate > 0 {
		n, err := p.Equilibrate(*equilibrate, 1e-6)
		if err != nil && !errors.Is(err, process.ErrNotConverged) {
			return err
		}
		log.Printf("[febid] precursor equilibrated in %d iteration(s)", n)
	}

	pub := process.NewPublisher(*buffer)
	p.SetPublisher(pub)

	var (
		runID     string
		collected []process.Stats
		rec       *snapshotdb.Recorder
		wg        sync.WaitGroup
	)
	if db != nil {
		raw, err := json.Marshal(sc)
		if err != nil {
			return err
		}
		if runID, err = db.CreateRun(cfg, raw, *seedRun); err != nil {
			return err
		}
		rec = snapshotdb.NewRecorder(db, runID)
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec.Drain(pub)
		}()
	} else {
		wg.Add(1)
		go func() {
			defer wg.Done()
			collected = drainStats(pub)
		}()
	}

	res, runErr := p.Run(ctx)
	pub.Close()
	wg.Wait()

	if db != nil {
		if _, err := db.InsertSnapshot(runID, res.Final); err != nil {
			return err
		}
		if err := db.FinishRun(runID, res); err != nil {
			return err
		}
		if collected, err = db.ListStats(runID); err != nil {
			return err
		}
	}

	if *outDir != "" {
		if err := writeReport(*outDir, runID, collected, res.Final); err != nil {
			return err
		}
	}

	sum := summary{
		RunID:       runID,
		Reason:      string(res.Reason),
		Steps:       res.Steps,
		Time:        res.Time,
		DT:          res.DT,
		Yield:       res.Yield,
		FilledCells: res.FilledCells,
		ZTop:        res.ZTop,
		Dropped:     res.Dropped,
	}
	if rec != nil {
		sum.WriteErrors = rec.Errors()
	}
	if runErr != nil {
		sum.Error = runErr.Error()
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(sum); err != nil {
		return err
	}

	// Reaching z_max is a normal end of growth for the CLI.
	if runErr != nil && !errors.Is(runErr, febid.ErrInvalidGeometry) {
		return runErr
	}
	return recorderError(rec)
}

// recorderError reports database writes the recorder could not complete.
func recorderError(rec *snapshotdb.Recorder) error {
	if rec == nil {
		return nil
	}
	if n := rec.Errors(); n > 0 {
		return fmt.Errorf("run %s: %d snapshot/stats write(s) failed", rec.RunID(), n)
	}
	return nil
}

// drainStats consumes the publisher when no database is attached, keeping
// the statistics for the report and discarding snapshots.
func drainStats(pub *process.Publisher) []process.Stats {
	var out []process.Stats
	snaps, stats := pub.Snapshots(), pub.Stats()
	for snaps != nil || stats != nil {
		select {
		case _, ok := <-snaps:
			if !ok {
				snaps = nil
			}
		case s, ok := <-stats:
			if !ok {
				stats = nil
				continue
			}
			out = append(out, s)
		}
	}
	return out
}

func ensureDir(dir string) error {
	return os.MkdirAll(dir, 0o755)
}
