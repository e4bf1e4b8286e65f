package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"agora/internal/config"
	"agora/internal/db"
	"agora/internal/engine"
	"agora/internal/history"
	"agora/internal/ledger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadWorkerFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	pool, err := db.Connect(ctx, cfg.DatabaseURL, db.Limits{MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns})
	if err != nil {
		logger.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := db.EnsureSchema(ctx, pool); err != nil {
		logger.Error("schema init failed", "err", err)
		os.Exit(1)
	}

	recorder := history.NewRecorder(pool)
	ledgerSvc := ledger.NewService(pool, logger)
	exec := engine.NewExecutor(pool, recorder, logger)

	runOnce := strings.EqualFold(strings.TrimSpace(os.Getenv("AGORA_WORKER_RUN_ONCE")), "true")
	if runOnce {
		if err := runJobs(ctx, logger, exec, ledgerSvc, recorder); err != nil {
			logger.Error("jobs failed", "err", err)
			os.Exit(1)
		}
		logger.Info("worker run-once completed")
		return
	}

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	logger.Info("worker started", "interval", cfg.Interval.String())
	for {
		select {
		case <-ctx.Done():
			logger.Info("worker shutdown")
			return
		case <-ticker.C:
			if err := runJobs(ctx, logger, exec, ledgerSvc, recorder); err != nil {
				logger.Error("jobs failed", "err", err)
				continue
			}
		}
	}
}

// runJobs fans the periodic maintenance out: today's price-history buckets
// are seeded from current sell prices, and drained regional currency
// accounts are collected.
func runJobs(ctx context.Context, logger *slog.Logger, exec *engine.Executor, ledgerSvc *ledger.Service, recorder *history.Recorder) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		prices, err := exec.CurrentSellPrices(ctx)
		if err != nil {
			return err
		}
		seeded, err := recorder.SeedDay(ctx, history.Day(time.Now()), prices)
		if err != nil {
			return err
		}
		if seeded > 0 {
			logger.Info("seeded history buckets", "count", seeded)
		}
		return nil
	})

	g.Go(func() error {
		collected, err := ledgerSvc.CollectZeroBalances(ctx)
		if err != nil {
			return err
		}
		if collected > 0 {
			logger.Info("collected zero-balance accounts", "count", collected)
		}
		return nil
	})

	return g.Wait()
}
