package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gyaneshwarpardhi/ibhops/internal/api"
	"github.com/gyaneshwarpardhi/ibhops/internal/config"
	"github.com/gyaneshwarpardhi/ibhops/internal/engine"
	"github.com/gyaneshwarpardhi/ibhops/internal/fabric"
)

func main() {
	addr := flag.String("addr", ":8080", "HTTP listen address")
	cfgPath := flag.String("config", "configs/fabric.yaml", "Path to fabric YAML config")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	// ── Load config ──────────────────────────────────────────────────────────
	loader, err := config.NewLoader(*cfgPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	cfg := loader.Config()
	if err := config.Validate(cfg); err != nil {
		slog.Error("config validation failed", "err", err)
		os.Exit(1)
	}

	// ── Build initial fabric ─────────────────────────────────────────────────
	f, err := fabric.FromConfig(&cfg.Fabric)
	if err != nil {
		slog.Error("failed to build fabric", "err", err)
		os.Exit(1)
	}
	slog.Info("fabric built", "entities", f.EntityCount(), "connections", f.ConnectionCount())

	// ── Engine ────────────────────────────────────────────────────────────────
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eng, err := engine.New(ctx, f, cfg.Analysis)
	if err != nil {
		slog.Error("failed to start engine", "err", err)
		os.Exit(1)
	}

	// ── Hot-reload watcher ────────────────────────────────────────────────────
	// Watcher and POST /v1/fabric/reload both go through Loader.Reload, which
	// validates before calling this hook.
	loader.OnChange(func(newCfg *config.Config) error {
		if err := eng.Apply(newCfg); err != nil {
			return fmt.Errorf("fabric build failed: %w", err)
		}
		slog.Info("fabric hot-reloaded", "entities", eng.Fabric().EntityCount(), "generation", eng.Generation())
		return nil
	})
	stopWatch, err := loader.Watch()
	if err != nil {
		slog.Warn("config watcher unavailable (hot-reload disabled)", "err", err)
	} else {
		defer stopWatch()
	}

	// ── HTTP server ───────────────────────────────────────────────────────────
	srv := &http.Server{
		Addr:         *addr,
		Handler:      api.New(eng, loader),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", *addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down")

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutCancel()
	_ = srv.Shutdown(shutCtx)
	cancel() // stop worker pool
	eng.Shutdown()
	slog.Info("goodbye")
}
