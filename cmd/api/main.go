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

	"github.com/projectsamarth/samarth/internal/api"
	"github.com/projectsamarth/samarth/internal/app"
	"github.com/projectsamarth/samarth/internal/config"
	"github.com/projectsamarth/samarth/internal/queue"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to read .env", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	deps := api.Deps{
		Config:   cfg,
		Index:    a.Index,
		Expect:   a.Expect(),
		Pipeline: a.Pipeline,
		Sessions: a.Sessions,
	}
	if a.DB != nil {
		deps.DB = a.DB
	}
	if a.Cache != nil {
		deps.Redis = a.Cache
	}
	if cfg.Redis.Addr != "" {
		qc := queue.NewClient(cfg.Redis)
		defer qc.Close()
		deps.Queue = qc
	}

	go a.Sessions.Run(ctx)

	// A reply must be writable after the slowest possible turn.
	var writeTimeout time.Duration
	if budget := app.TurnBudget(cfg); budget > 0 {
		writeTimeout = budget + 15*time.Second
	}

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      api.NewRouter(deps).Setup(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("starting API server", "addr", cfg.Addr(), "write_timeout", writeTimeout)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()

	slog.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced shutdown", "error", err)
	}
	slog.Info("server stopped")
}
