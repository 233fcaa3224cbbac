package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/banshee-data/febid/internal/febid/process"
	"github.com/banshee-data/febid/internal/report"
	"github.com/banshee-data/febid/internal/snapshotdb"
)

// writeReport renders every available artefact into dir. Missing inputs
// skip the artefacts that need them.
func writeReport(dir, runID string, stats []process.Stats, final *process.Snapshot) error {
	if err := ensureDir(dir); err != nil {
		return err
	}
	if len(stats) > 0 {
		paths, err := report.PlotStats(stats, dir)
		if err != nil {
			return err
		}
		log.Printf("[febid] wrote %d statistics plot(s) to %s", len(paths), dir)
	}
	if final != nil {
		if err := report.PlotHeightMap(final, filepath.Join(dir, "heightmap.png")); err != nil {
			return err
		}
		if err := report.PlotProfile(final, filepath.Join(dir, "profile.png")); err != nil {
			return err
		}
	}
	err := report.WriteHTML(report.Page{RunID: runID, Stats: stats, Final: final}, filepath.Join(dir, "report.html"))
	if errors.Is(err, report.ErrNoData) {
		return nil
	}
	return err
}

func reportCommand(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	dbPath := fs.String("db", "febid.db", "SQLite database holding recorded runs")
	runID := fs.String("run", "", "Run ID (default: the latest run)")
	outDir := fs.String("out", "report", "Output directory")
	if err := fs.Parse(args); err != nil {
		return err
	}

	db, err := snapshotdb.Open(*dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	var run snapshotdb.Run
	if *runID == "" {
		run, err = db.LatestRun()
	} else {
		run, err = db.GetRun(*runID)
	}
	if err != nil {
		return err
	}

	stats, err := db.ListStats(run.ID)
	if err != nil {
		return err
	}
	final, err := db.LatestSnapshot(run.ID)
	if err != nil && !errors.Is(err, snapshotdb.ErrNotFound) {
		return err
	}
	if err := writeReport(*outDir, run.ID, stats, final); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "report for run %s written to %s\n", run.ID, *outDir)
	return nil
}

func runsCommand(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	dbPath := fs.String("db", "febid.db", "SQLite database holding recorded runs")
	if err := fs.Parse(args); err != nil {
		return err
	}

	db, err := snapshotdb.Open(*dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	runs, err := db.ListRuns()
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tCREATED\tGRID\tSTEPS\tSIM TIME\tYIELD (nm³)\tSTOP")
	for _, r := range runs {
		stop := r.StopReason
		if !r.Finished() {
			stop = "unfinished"
		}
		fmt.Fprintf(tw, "%s\t%s\t%dx%dx%d\t%d\t%.4g\t%.4g\t%s\n",
			r.ID, r.CreatedAt.Format(time.RFC3339), r.Nx, r.Ny, r.Nz, r.Steps, r.SimTime, r.Yield, stop)
	}
	return tw.Flush()
}
