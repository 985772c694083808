// Snapdiff server - visual comparison API with live result streaming
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/snapdiff/snapdiff/internal/baseline"
	"github.com/snapdiff/snapdiff/internal/compare"
	"github.com/snapdiff/snapdiff/internal/config"
	"github.com/snapdiff/snapdiff/internal/history"
	"github.com/snapdiff/snapdiff/internal/resilience"
	"github.com/snapdiff/snapdiff/internal/server"
	"github.com/snapdiff/snapdiff/internal/snapshot"
)

func main() {
	// Setup structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)

	// Optional .env for local development
	_ = godotenv.Load()

	cfg := config.Load()

	store, err := snapshot.NewStore(cfg.ScreenshotDir)
	if err != nil {
		slog.Error("failed to initialize snapshot store", "dir", cfg.ScreenshotDir, "error", err)
		os.Exit(1)
	}
	store.WithFormats(cfg.DiffFormats)

	ledger, err := history.Open(cfg.HistoryDB)
	if err != nil {
		slog.Error("failed to open history db", "path", cfg.HistoryDB, "error", err)
		os.Exit(1)
	}
	defer func() { _ = ledger.Close() }()

	cmp := compare.New(compare.Options{HashSize: cfg.HashSize})

	// Create HTTP/WebSocket server
	srv := server.New(cmp, store, ledger, cfg)

	if cfg.BaselineURL != "" {
		retryCfg := resilience.FetchRetryConfig()
		retryCfg.MaxRetries = cfg.FetchMaxRetries
		fetcher := baseline.New(cfg.BaselineURL, time.Duration(cfg.FetchTimeout*float64(time.Second))).
			WithRetry(retryCfg)
		srv.WithFetcher(fetcher)
		slog.Info("remote baseline source enabled", "url", cfg.BaselineURL)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Prune expired artifacts on startup, then daily
	go pruneLoop(ctx, store, cfg.RetentionDays)

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		slog.Info("snapdiff server starting", "http", cfg.HTTPAddr, "screenshots", cfg.ScreenshotDir)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("http server error", "error", err)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	slog.Info("shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
}

func pruneLoop(ctx context.Context, store *snapshot.Store, retentionDays int) {
	if retentionDays <= 0 {
		return
	}

	prune := func() {
		deleted, freed, err := store.CleanOlderThan(retentionDays)
		if err != nil {
			slog.Error("artifact cleanup error", "error", err)
			return
		}
		if deleted > 0 {
			slog.Info("pruned expired artifacts", "deleted", deleted, "freed_bytes", freed)
		}
	}

	prune()
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune()
		}
	}
}
