// Command ledger reads a fill log and prints position, P&L, and activity
// reports.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
)

// exitWarnings is the exit status used by --fail-on-warning.
const exitWarnings = 3

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newApp(os.Stdout, os.Stderr).RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		var ec cli.ExitCoder
		if errors.As(err, &ec) {
			os.Exit(ec.ExitCode())
		}
		os.Exit(1)
	}
}

func newApp(stdout, stderr io.Writer) *cli.App {
	app := cli.NewApp()
	app.Name = "ledger"
	app.Usage = "reconstruct positions and P&L from a fill log"
	app.Writer = stdout
	app.ErrWriter = stderr
	app.EnableBashCompletion = true
	// Exit codes are decided in main so the app stays usable from tests.
	app.ExitErrHandler = func(*cli.Context, error) {}
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "path to YAML config",
			EnvVars: []string{"LEDGER_CONFIG"},
		},
		&cli.StringFlag{
			Name:  "csv",
			Usage: "fill log CSV path (overrides store.csv_path)",
		},
		&cli.StringFlag{
			Name:  "store",
			Usage: "store backend: file, memory, postgres or sqlite",
		},
		&cli.StringFlag{
			Name:  "now",
			Usage: "evaluation time for ages, e.g. \"2025-06-01 12:00:00\"",
		},
		&cli.BoolFlag{
			Name:  "json",
			Usage: "print JSON instead of tables",
		},
		&cli.BoolFlag{
			Name:  "fail-on-warning",
			Usage: fmt.Sprintf("exit with status %d when the reconciliation has warnings", exitWarnings),
		},
		&cli.StringFlag{
			Name:  "log-level",
			Value: "warn",
			Usage: "log level for diagnostics on stderr",
		},
	}
	app.Commands = []*cli.Command{
		positionsCommand,
		pnlCommand,
		largeCommand,
		staleCommand,
		activityCommand,
		statsCommand,
		ingestCommand,
	}
	return app
}
