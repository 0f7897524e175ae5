package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"polls-backend/config"
	"polls-backend/database"
	"polls-backend/middleware"
	"polls-backend/migrations"
	"polls-backend/mq"
	"polls-backend/repository"
	"polls-backend/routes"
	"polls-backend/service"
	"polls-backend/websocket"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg, os.Stdout)
	slog.SetDefault(logger)
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg, logger); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	db, err := database.Open(cfg)
	if err != nil {
		return err
	}
	defer database.Close(db)

	if err := migrations.Run(db); err != nil {
		return err
	}
	if cfg.IsDevelopment() {
		if err := database.SeedSampleData(db, time.Now()); err != nil {
			slog.Warn("sample data not created", "error", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	broker := mq.NewBroker(ctx, cfg)
	defer broker.Close()

	svc := service.NewPollService(repository.NewQuestionRepository(db), broker)
	hub := websocket.NewHub(svc.Results)
	defer hub.Close()
	if err := broker.Subscribe(hub.HandleVoteEvent); err != nil {
		slog.Warn("live results disabled", "broker", broker.Name(), "error", err)
	}

	limiter := middleware.NewVoteRateLimiter(cfg.VoteRateLimit, cfg.VoteRateBurst)

	router, err := routes.SetupRouter(routes.Dependencies{
		Config:  cfg,
		DB:      db,
		Service: svc,
		Broker:  broker,
		Hub:     hub,
		Limiter: limiter,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	srv, errCh := routes.StartServer(router, cfg.Port)
	slog.Info("polls server started",
		"mount", cfg.MountPath,
		"db", cfg.DBDriver,
		"broker", broker.Name(),
		"vote_rate_limit", cfg.VoteRateLimit)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	slog.Info("shutting down server", "timeout", cfg.ShutdownTimeout)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	slog.Info("server exited gracefully")
	return nil
}

func newLogger(cfg config.Config, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
