package main

import (
	"context"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/atmx/fill-ledger/internal/classify"
	"github.com/atmx/fill-ledger/internal/config"
	"github.com/atmx/fill-ledger/internal/fillparse"
	"github.com/atmx/fill-ledger/internal/ledger"
	"github.com/atmx/fill-ledger/internal/logger"
	"github.com/atmx/fill-ledger/internal/model"
	"github.com/atmx/fill-ledger/internal/reconcile"
	"github.com/atmx/fill-ledger/internal/report"
	"github.com/atmx/fill-ledger/internal/store"
	"github.com/atmx/fill-ledger/internal/tracing"
)

// env is what every command needs: the opened store and a report builder
// sharing one policy and clock.
type env struct {
	cfg       *config.Config
	log       *zap.Logger
	store     *store.Opened
	th        classify.Thresholds
	now       func() time.Time
	builder   *report.Builder
	ledgerOpt []ledger.Option
}

type action func(c *cli.Context, e *env) error

// withEnv wraps a command action with configuration, logging, tracing and
// store setup.
func withEnv(name string, fn action) cli.ActionFunc {
	return func(c *cli.Context) error {
		_ = godotenv.Load()

		cfg, err := config.Load(c.String("config"))
		if err != nil {
			return err
		}
		if v := c.String("csv"); v != "" {
			cfg.Store.CSVPath = v
		}
		if v := c.String("store"); v != "" {
			cfg.Store.Backend = v
		}

		log, err := logger.New(c.String("log-level"), "console")
		if err != nil {
			return err
		}
		defer log.Sync()

		now := time.Now
		if raw := c.String("now"); raw != "" {
			t, ok := fillparse.ParseTimestamp(raw)
			if !ok {
				return fmt.Errorf("--now: cannot parse %q", raw)
			}
			now = func() time.Time { return t }
		}

		th, err := cfg.ClassifyThresholds()
		if err != nil {
			return err
		}

		shutdown, err := tracing.Init(c.Context, tracing.Options{
			Enabled:     cfg.Tracing.Enabled,
			ServiceName: cfg.Tracing.ServiceName,
		})
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		defer shutdown(context.Background())

		ctx, span := tracing.Start(c.Context, "ledger."+name)
		defer span.End()
		c.Context = ctx

		st, err := store.Open(ctx, cfg.StoreOptions(), log)
		if err != nil {
			return err
		}
		defer st.Close()

		return fn(c, &env{
			cfg:       cfg,
			log:       log,
			store:     st,
			th:        th,
			now:       now,
			builder:   report.NewBuilder(th, report.WithClock(now)),
			ledgerOpt: []ledger.Option{ledger.WithExcludeFailed(cfg.Ledger.ExcludeFailedFills)},
		})
	}
}

// load reads and folds the stored log.
func (e *env) load(c *cli.Context) (model.FillLog, *ledger.Snapshot, error) {
	log, err := e.store.Load(c.Context)
	if err != nil {
		return model.FillLog{}, nil, err
	}
	if n := len(log.Defects); n > 0 {
		e.log.Warn("fill log has unreadable lines", zap.Int("defects", n))
	}
	return log, ledger.FoldLog(log, e.ledgerOpt...), nil
}

// render prints v as a table or, with --json, as JSON.
func (e *env) render(c *cli.Context, v report.View) error {
	if c.Bool("json") {
		return report.WriteJSON(c.App.Writer, v)
	}
	return report.WriteText(c.App.Writer, v)
}

// check applies --fail-on-warning to a reconciliation.
func (e *env) check(c *cli.Context, r reconcile.Result) error {
	if !c.Bool("fail-on-warning") || !r.HasWarnings() {
		return nil
	}
	codes := make([]string, len(r.Warnings))
	for i, w := range r.Warnings {
		codes[i] = string(w.Code)
	}
	return cli.Exit(fmt.Sprintf("reconciliation has %d warning(s): %v", len(codes), codes), exitWarnings)
}

// checkSnapshot reconciles snap for --fail-on-warning.
func (e *env) checkSnapshot(c *cli.Context, snap *ledger.Snapshot) error {
	if !c.Bool("fail-on-warning") {
		return nil
	}
	return e.check(c, reconcile.Reconcile(snap, snap.Outcomes(), e.th, e.now()))
}
