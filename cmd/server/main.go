// Command server boots the gateway: it loads configuration, wires the
// tokenizer/engine client/blob store/scheduler/batch manager, and serves
// two HTTP listeners — the gin REST API and a chi admin mux for health and
// metrics — following the teacher's dual-server bootstrap.
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

	"github.com/gin-gonic/gin"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/b-snaas/vllm-gateway/internal/auth"
	"github.com/b-snaas/vllm-gateway/internal/batch"
	"github.com/b-snaas/vllm-gateway/internal/blobstore"
	"github.com/b-snaas/vllm-gateway/internal/config"
	"github.com/b-snaas/vllm-gateway/internal/engineclient"
	"github.com/b-snaas/vllm-gateway/internal/httpapi"
	"github.com/b-snaas/vllm-gateway/internal/logger"
	"github.com/b-snaas/vllm-gateway/internal/metrics"
	"github.com/b-snaas/vllm-gateway/internal/scheduler"
	"github.com/b-snaas/vllm-gateway/internal/stats"
	"github.com/b-snaas/vllm-gateway/internal/tokenizer"
)

func main() {
	cfg := config.Load()

	log := logger.New(logger.FromEnv(cfg.LogLevel, cfg.LogFormat))
	gin.SetMode(cfg.GinMode)

	tok, err := tokenizer.NewAdapter(cfg.TokenizerModel)
	if err != nil {
		log.Error("failed to initialize tokenizer", slog.String("error", err.Error()))
		os.Exit(1)
	}

	store, err := blobstore.NewStore(cfg.BlobDir)
	if err != nil {
		log.Error("failed to initialize blob store", slog.String("error", err.Error()))
		os.Exit(1)
	}

	engine := engineclient.New(engineclient.Config{
		BaseURL:             cfg.VLLMURL,
		Timeout:             cfg.EngineTimeout,
		MaxIdleConns:        cfg.EngineMaxIdleConns,
		MaxIdleConnsPerHost: cfg.EngineMaxIdleConnsPerHost,
		IdleConnTimeout:     time.Duration(cfg.EngineIdleConnTimeout) * time.Second,
	})

	tuning, err := config.NewTuningWatcher(cfg, cfg.SchedulerConfigFile, log)
	if err != nil {
		log.Error("failed to initialize scheduler tuning", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := tuning.Watch(); err != nil {
		log.Warn("scheduler tuning file watch disabled", slog.String("error", err.Error()))
	}
	defer tuning.Close()

	metricsCollectors := metrics.New()

	sched := scheduler.New(engine, log, tuning.Current, metricsCollectors)
	if err := sched.Start(); err != nil {
		log.Error("failed to start scheduler", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer sched.Stop()

	batches := batch.NewManager(store, sched, log, cfg, metricsCollectors)

	reporter := stats.NewReporter(sched, metricsCollectors, log)
	if err := reporter.Start(); err != nil {
		log.Error("failed to start stats reporter", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer reporter.Stop()

	authMiddleware := auth.NewMiddleware(cfg.APIToken)

	router := httpapi.NewRouter(&httpapi.Deps{
		Config:    cfg,
		Logger:    log,
		Auth:      authMiddleware,
		Store:     store,
		Scheduler: sched,
		Batches:   batches,
		Engine:    engine,
		Tokenizer: tok,
	})

	restServer := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	adminServer := &http.Server{
		Addr:    ":" + cfg.AdminPort,
		Handler: setupAdminMux(cfg, metricsCollectors),
	}

	go func() {
		log.Info("gateway listening", slog.String("port", cfg.Port))
		if err := restServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("REST server error", slog.String("error", err.Error()))
		}
	}()

	go func() {
		log.Info("admin server listening", slog.String("port", cfg.AdminPort))
		if err := adminServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("admin server error", slog.String("error", err.Error()))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ServerShutdownTimeoutSeconds)*time.Second)
	defer cancel()

	if err := restServer.Shutdown(ctx); err != nil {
		log.Error("REST server forced to shutdown", slog.String("error", err.Error()))
	}
	if err := adminServer.Shutdown(ctx); err != nil {
		log.Error("admin server forced to shutdown", slog.String("error", err.Error()))
	}

	log.Info("shutdown complete")
}

// setupAdminMux builds the secondary chi server exposing health and
// prometheus metrics, mirroring the teacher's second chi-based listener
// (there used for GraphQL) repurposed for operational endpoints.
func setupAdminMux(cfg *config.Config, m *metrics.Collectors) *chi.Mux {
	r := chi.NewRouter()
	r.Use(cors.New(cors.Options{
		AllowedOrigins: []string{cfg.CORSAllowedOrigins},
		AllowedMethods: []string{http.MethodGet},
	}).Handler)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`)) //nolint:errcheck
	})
	r.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))

	return r
}
