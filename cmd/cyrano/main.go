package main

import (
	"context"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MikeSquared-Agency/cyrano/internal/almanac"
	"github.com/MikeSquared-Agency/cyrano/internal/api"
	"github.com/MikeSquared-Agency/cyrano/internal/config"
	"github.com/MikeSquared-Agency/cyrano/internal/experiment"
	"github.com/MikeSquared-Agency/cyrano/internal/hermes"
	"github.com/MikeSquared-Agency/cyrano/internal/processor"
	"github.com/MikeSquared-Agency/cyrano/internal/rehearsal"
	"github.com/MikeSquared-Agency/cyrano/internal/scheduler"
	"github.com/MikeSquared-Agency/cyrano/internal/store"
)

func main() {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	slog.Info("cyrano starting", "port", cfg.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	if cfg.DatabaseURL == "" {
		slog.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	db, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if cfg.Migrate {
		if err := db.Migrate(ctx); err != nil {
			slog.Error("failed to apply schema", "error", err)
			os.Exit(1)
		}
		slog.Info("schema applied")
	}
	slog.Info("database connected")

	// NATS/Hermes
	hermesClient, err := hermes.NewClient(ctx, cfg.NatsURL, cfg.NatsToken, slog.Default())
	if err != nil {
		slog.Error("failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer hermesClient.Close()
	slog.Info("NATS connected", "url", cfg.NatsURL)

	// Almanac snapshot provider
	snapshots := almanac.New(cfg.AlmanacURL)

	// Processor, the outreach pipeline
	ctrl := experiment.New(rand.NewSource(time.Now().UnixNano()))
	proc := processor.New(db, snapshots, hermesClient, ctrl, processor.Config{
		DefaultDeferDays: cfg.DefaultDeferDays,
		MaxAttempts:      cfg.MaxAttempts,
	}, slog.Default())

	if err := hermesClient.Subscribe(hermes.SubjectOutreachDelivered, proc.HandleDelivered); err != nil {
		slog.Error("failed to subscribe to delivery confirmations", "error", err)
		os.Exit(1)
	}
	if err := hermesClient.Subscribe(hermes.SubjectResponseClassified, proc.HandleResponseClassified); err != nil {
		slog.Error("failed to subscribe to classified responses", "error", err)
		os.Exit(1)
	}

	// Retry sweep
	sched := scheduler.New(db, proc, cfg.SweepInterval, slog.Default())
	go sched.Run(ctx)

	// Rehearsal sandbox + HTTP API
	sandbox := rehearsal.New(db, db, cfg.DefaultDeferDays)
	srv := api.NewServer(cfg.Port, cfg.APIToken, db, sandbox, slog.Default())
	go func() {
		if err := srv.Start(); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	// Announce registration
	if err := hermesClient.Publish(hermes.SubjectRegistered, map[string]any{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"port":      cfg.Port,
	}); err != nil {
		slog.Warn("failed to publish registration", "error", err)
	}

	slog.Info("cyrano ready", "port", cfg.Port, "sweep_interval", cfg.SweepInterval.String())

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	slog.Info("shutting down")
	cancel()
	slog.Info("cyrano stopped")
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
