package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"agora/internal/api"
	"agora/internal/config"
	"agora/internal/db"
	"agora/internal/engine"
	"agora/internal/history"
	"agora/internal/ledger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadAPIFromEnv()
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

	if cfg.SeedOnStartup {
		catalog, err := config.LoadCatalog(cfg.CatalogPath)
		if err != nil {
			logger.Error("load catalog failed", "err", err)
			os.Exit(1)
		}
		snaps, err := catalog.Expand()
		if err != nil {
			logger.Error("expand catalog failed", "err", err)
			os.Exit(1)
		}
		seeded, err := exec.SeedMarkets(ctx, snaps)
		if err != nil {
			logger.Error("seed markets failed", "err", err)
			os.Exit(1)
		}
		if seeded > 0 {
			logger.Info("seeded markets", "count", seeded)
		}
	}

	server := api.New(cfg, logger, exec, ledgerSvc, recorder)
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("agora api listening", "addr", cfg.Addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
}
