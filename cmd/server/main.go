package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hls-catchup/internal/catchup"
	"hls-catchup/internal/orchestrator"
	"hls-catchup/internal/pipeline"
	"hls-catchup/internal/platform/config"
	"hls-catchup/internal/platform/logger"
	"hls-catchup/internal/platform/metrics"
	"hls-catchup/internal/platform/ratelimit"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func main() {
	_ = config.Load()
	cfg := config.FromEnv()

	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	client := &http.Client{Timeout: cfg.PipelineTimeout}
	newPipeline := func() catchup.Pipeline {
		return pipeline.NewHLS(client, log)
	}

	repo := orchestrator.NewInMemoryRepository()
	svc := orchestrator.NewService(repo, newPipeline, cfg.PlaylistWindowSize,
		orchestrator.WithServiceLogger(log))
	var met *metrics.Metrics
	if cfg.MetricsEnabled {
		met = metrics.New()
	}
	h := orchestrator.NewHandler(svc, log, met)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(logger.RequestLogger(log))
	if met != nil {
		r.Use(metrics.RequestMiddleware(met))
		r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
			met.Handler(func() { met.SetActiveSessions(svc.ActiveSessionCount()) }).ServeHTTP(w, r)
		})
	}
	r.Group(func(r chi.Router) {
		r.Use(ratelimit.PerIP(cfg.RateLimitPerMinute, time.Minute))
		h.Routes(r)
	})

	addr := ":" + cfg.Port
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", cfg.Port,
		"playlist_window_size", cfg.PlaylistWindowSize,
		"pipeline_timeout", cfg.PipelineTimeout.String(),
		"rate_limit_per_minute", cfg.RateLimitPerMinute,
		"metrics_enabled", cfg.MetricsEnabled,
		"log_level", cfg.LogLevel,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining connections")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	svc.CloseAll()
	log.Info("server stopped")
}
