package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/atmx/fill-ledger/internal/fillparse"
	"github.com/atmx/fill-ledger/internal/model"
	"github.com/atmx/fill-ledger/internal/report"
)

var positionsCommand = &cli.Command{
	Name:  "positions",
	Usage: "list positions by descending current value",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "all",
			Usage: "include closed positions",
		},
	},
	Action: withEnv("positions", func(c *cli.Context, e *env) error {
		_, snap, err := e.load(c)
		if err != nil {
			return err
		}
		if err := e.render(c, e.builder.Positions(snap, c.Bool("all"))); err != nil {
			return err
		}
		return e.checkSnapshot(c, snap)
	}),
}

var pnlCommand = &cli.Command{
	Name:  "pnl",
	Usage: "reconcile realized and unrealized P&L and report data-quality warnings",
	Action: withEnv("pnl", func(c *cli.Context, e *env) error {
		_, snap, err := e.load(c)
		if err != nil {
			return err
		}
		v := e.builder.PnL(snap)
		if err := e.render(c, v); err != nil {
			return err
		}
		return e.check(c, v.Result)
	}),
}

var largeCommand = &cli.Command{
	Name:  "large",
	Usage: "list open positions at or above the large position threshold",
	Action: withEnv("large", func(c *cli.Context, e *env) error {
		_, snap, err := e.load(c)
		if err != nil {
			return err
		}
		if err := e.render(c, e.builder.Large(snap)); err != nil {
			return err
		}
		return e.checkSnapshot(c, snap)
	}),
}

var staleCommand = &cli.Command{
	Name:  "stale",
	Usage: "list open positions with no fill for the stale period, oldest first",
	Action: withEnv("stale", func(c *cli.Context, e *env) error {
		_, snap, err := e.load(c)
		if err != nil {
			return err
		}
		if err := e.render(c, e.builder.Stale(snap)); err != nil {
			return err
		}
		return e.checkSnapshot(c, snap)
	}),
}

var activityCommand = &cli.Command{
	Name:  "activity",
	Usage: "show the most recent fills, newest first",
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:  "limit",
			Usage: "number of fills to show (default from report.activity_limit)",
		},
	},
	Action: withEnv("activity", func(c *cli.Context, e *env) error {
		limit := c.Int("limit")
		if limit < 0 {
			return fmt.Errorf("--limit must be positive, got %d", limit)
		}
		if limit == 0 {
			limit = e.cfg.Report.ActivityLimit
		}
		log, snap, err := e.load(c)
		if err != nil {
			return err
		}
		if err := e.render(c, e.builder.Activity(log, limit)); err != nil {
			return err
		}
		return e.checkSnapshot(c, snap)
	}),
}

var statsCommand = &cli.Command{
	Name:  "stats",
	Usage: "summarize trade counts, success rate and volume",
	Action: withEnv("stats", func(c *cli.Context, e *env) error {
		log, snap, err := e.load(c)
		if err != nil {
			return err
		}
		if err := e.render(c, e.builder.Stats(log, snap)); err != nil {
			return err
		}
		return e.checkSnapshot(c, snap)
	}),
}

// ingestSummary is printed by the ingest command.
type ingestSummary struct {
	BatchID string              `json:"batch_id"`
	Records int                 `json:"records"`
	Defects []model.ParseDefect `json:"defects"`
}

var ingestCommand = &cli.Command{
	Name:  "ingest",
	Usage: "append the fills of a CSV file to the configured store",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "from",
			Usage:    "CSV file to read",
			Required: true,
		},
	},
	Action: withEnv("ingest", func(c *cli.Context, e *env) error {
		f, err := os.Open(c.String("from"))
		if err != nil {
			return err
		}
		defer f.Close()

		batch, err := fillparse.Parse(f, fillparse.WithWorkers(e.cfg.Store.ParseWorkers))
		if err != nil {
			return err
		}
		if len(batch.Records) == 0 && len(batch.Defects) == 0 {
			return fmt.Errorf("%s: no fills", c.String("from"))
		}
		id, err := e.store.Append(c.Context, batch)
		if err != nil {
			return err
		}
		e.log.Info("fills ingested",
			zap.String("batch_id", id),
			zap.Int("records", len(batch.Records)),
			zap.Int("defects", len(batch.Defects)),
		)

		out := ingestSummary{BatchID: id, Records: len(batch.Records), Defects: batch.Defects}
		if out.Defects == nil {
			out.Defects = []model.ParseDefect{}
		}
		if c.Bool("json") {
			return report.WriteJSON(c.App.Writer, out)
		}
		fmt.Fprintf(c.App.Writer, "batch %s: %d fills, %d unreadable lines\n", id, out.Records, len(out.Defects))
		for _, d := range out.Defects {
			fmt.Fprintf(c.App.Writer, "  line %d: %s\n", d.Line, d.Reason)
		}
		return nil
	}),
}
