// Command febid runs focused electron beam induced deposition simulations,
// records them in a SQLite database and renders reports.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/banshee-data/febid/internal/version"
)

const usage = `Usage: febid <command> [flags]

Commands:
  run      run a simulation
  report   render plots and an HTML page for a recorded run
  runs     list recorded runs
  version  print build information

Run "febid <command> -h" for command flags.
`

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := dispatch(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		log.Printf("febid: %v", err)
		stop()
		os.Exit(1)
	}
}

func dispatch(ctx context.Context, args []string, stdout io.Writer) error {
	if len(args) < 1 {
		fmt.Fprint(os.Stderr, usage)
		return errors.New("missing command")
	}
	switch args[0] {
	case "run":
		return runCommand(ctx, args[1:], stdout)
	case "report":
		return reportCommand(args[1:], stdout)
	case "runs":
		return runsCommand(args[1:], stdout)
	case "version":
		fmt.Fprintln(stdout, version.String())
		return nil
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return nil
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", args[0])
	}
}
