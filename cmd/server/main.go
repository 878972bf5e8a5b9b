package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/atmx/fill-ledger/internal/config"
	"github.com/atmx/fill-ledger/internal/logger"
	"github.com/atmx/fill-ledger/internal/report"
	"github.com/atmx/fill-ledger/internal/server"
	"github.com/atmx/fill-ledger/internal/store"
	"github.com/atmx/fill-ledger/internal/tracing"
)

func main() {
	configPath := flag.String("config", os.Getenv("LEDGER_CONFIG"), "path to YAML config")
	flag.Parse()

	// A missing .env is normal outside development.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Error("fill-ledger exited", zap.Error(err))
		os.Exit(1)
	}
	fmt.Println("fill-ledger stopped")
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Tracing ---
	shutdownTracing, err := tracing.Init(ctx, tracing.Options{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer shutdownTracing(context.Background())

	// --- Initialize store ---
	st, err := store.Open(ctx, cfg.StoreOptions(), log)
	if err != nil {
		return err
	}
	defer st.Close()

	th, err := cfg.ClassifyThresholds()
	if err != nil {
		return err
	}

	// --- WebSocket hub ---
	wsHub := server.NewWSHub(log)
	go wsHub.Run(ctx)

	// --- Ledger service ---
	svc := server.NewService(st, report.NewBuilder(th), wsHub, log,
		server.WithExcludeFailed(cfg.Ledger.ExcludeFailedFills),
		server.WithParseWorkers(cfg.Store.ParseWorkers),
		server.WithMaxIngestBytes(cfg.Server.MaxIngestBytes),
	)

	// --- Server ---
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      server.NewRouter(svc, log, cfg.Server.RequestTimeout),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("fill-ledger listening",
			zap.String("port", cfg.Server.Port),
			zap.String("store", cfg.Store.Backend),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Graceful shutdown.
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	log.Info("shutting down fill-ledger...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", zap.Error(err))
	}
	return nil
}
