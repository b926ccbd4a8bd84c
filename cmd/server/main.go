// Masim - LLM Animation Generation Server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/masimlabs/masim/internal/api"
	"github.com/masimlabs/masim/internal/config"
	"github.com/masimlabs/masim/internal/middleware"
	"github.com/masimlabs/masim/internal/orchestrator"
	"github.com/masimlabs/masim/internal/reasoning"
	"github.com/masimlabs/masim/internal/sandbox"
	"github.com/masimlabs/masim/internal/service"
	"github.com/masimlabs/masim/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	runner, err := sandbox.NewDockerRunner(cfg.Sandbox)
	if err != nil {
		slog.Error("Failed to initialize sandbox runner", "error", err)
		os.Exit(1)
	}
	slog.Info("Sandbox runner initialized", "image", cfg.Sandbox.Image)

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		slog.Error("Failed to create output directory", "path", cfg.OutputDir, "error", err)
		os.Exit(1)
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sandbox.StartReaper(rootCtx, runner.Client(), cfg.Sandbox.ReapInterval, cfg.Sandbox.ReapAge)

	// Initialize services.
	reasoner := reasoning.NewOpenAIClient(cfg.Reasoning, logger)
	machine, err := orchestrator.New(repo, orchestrator.BuildStages(reasoner, runner, cfg.OutputDir))
	if err != nil {
		slog.Error("Failed to build orchestrator", "error", err)
		os.Exit(1)
	}

	svc := service.New(repo, machine, runner, cfg)
	svc.Start(rootCtx)

	// Initialize handlers.
	handler := api.NewHandler(svc)
	healthHandler := api.NewHealthHandler(repo, runner)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)

	allowedOrigins := []string{"*"}
	if cfg.FrontendURL != "" {
		allowedOrigins = []string{cfg.FrontendURL}
	}
	r.Use(middleware.CORS(allowedOrigins))

	healthHandler.RegisterHealth(r)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/animations/jobs", func(r chi.Router) {
			r.Post("/", handler.CreateJob)
			r.Get("/", handler.ListJobs)
			r.Get("/{jobID}", handler.GetJob)
			r.Get("/{jobID}/download", handler.DownloadJob)
			r.Delete("/{jobID}", handler.DeleteJob)
		})
		r.Route("/sessions", func(r chi.Router) {
			r.Get("/{sessionID}", handler.GetSession)
			r.Get("/{sessionID}/jobs", handler.ListSessionJobs)
			r.Post("/{sessionID}/resume", handler.ResumeSession)
			r.Delete("/{sessionID}", handler.DeleteSession)
		})
	})

	r.Get("/ws/jobs/{jobID}", handler.JobEvents)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		// No write timeout: downloads and WebSocket streams are long-lived.
		WriteTimeout: 0,
	}

	go func() {
		slog.Info("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server failed", "error", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	slog.Info("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown failed", "error", err)
	}
	slog.Info("Server stopped")
}
