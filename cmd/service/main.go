package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/avelichko/waterline-monitor/internal/cache"
	"github.com/avelichko/waterline-monitor/internal/catalog"
	"github.com/avelichko/waterline-monitor/internal/circuitbreaker"
	"github.com/avelichko/waterline-monitor/internal/client"
	"github.com/avelichko/waterline-monitor/internal/config"
	"github.com/avelichko/waterline-monitor/internal/feedback"
	httphandler "github.com/avelichko/waterline-monitor/internal/http"
	"github.com/avelichko/waterline-monitor/internal/lifecycle"
	"github.com/avelichko/waterline-monitor/internal/observability"
	"github.com/avelichko/waterline-monitor/internal/service"
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	var backendClient client.BackendClient
	if cfg.BackendURL != "" {
		bc, err := client.NewBackendClient(cfg.BackendURL, cfg.BackendTimeout)
		if err != nil {
			logger.Fatal("backend client", zap.Error(err))
		}
		backendClient = bc
		logger.Info("live backend enabled", zap.String("url", cfg.BackendURL))
	} else {
		logger.Info("live backend disabled; serving from weather archive and synthesis")
	}

	archiveClient, err := client.NewOpenMeteoClient(cfg.OpenMeteoArchiveURL, "openmeteo_archive", cfg.OpenMeteoTimeout)
	if err != nil {
		logger.Fatal("open-meteo archive client", zap.Error(err))
	}
	forecastClient, err := client.NewOpenMeteoClient(cfg.OpenMeteoForecastURL, "openmeteo_forecast", cfg.OpenMeteoTimeout)
	if err != nil {
		logger.Fatal("open-meteo forecast client", zap.Error(err))
	}
	weatherClients := []client.WeatherClient{archiveClient, forecastClient}

	opts := service.Options{}
	if cfg.CircuitBreakerEnabled {
		opts.BackendCB = newBreaker("backend", cfg)
		opts.WeatherCB = newBreaker("open_meteo", cfg)
		logger.Info("circuit breakers enabled",
			zap.Int("failure_threshold", cfg.CircuitBreakerFailureThreshold),
			zap.Duration("timeout", cfg.CircuitBreakerTimeout))
	}

	var cacheSvc cache.Cache
	var memcacheCloser *cache.MemcachedCache
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			logger.Fatal("memcached cache", zap.Error(err))
		}
		memcacheCloser = mc
		cacheSvc = mc
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	default:
		cacheSvc = cache.NewInMemoryCache()
		logger.Info("cache backend: in_memory")
	}

	nodes := catalog.Nodes(cfg.NodeCatalog)
	bundleService := service.NewBundleService(backendClient, weatherClients, cacheSvc, cfg.CacheTTL, nodes, opts)

	reviews := feedback.NewRegistry(cfg.FeedbackPath, nil, logger)

	healthConfig := &httphandler.HealthConfig{
		Window:                     cfg.HealthWindow,
		RateLimitRPS:               cfg.RateLimitRPS,
		OverloadThresholdPct:       cfg.OverloadThresholdPct,
		SyntheticShareThresholdPct: cfg.SyntheticShareThresholdPct,
		StartTime:                  time.Now(),
	}
	if memcacheCloser != nil {
		healthConfig.CachePing = memcacheCloser.Ping
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	handler := httphandler.NewHandler(bundleService, reviews, healthConfig, logger, cfg.YearFrom, cfg.YearTo)

	observability.RegisterWindowGauges(cfg.HealthWindow)
	if len(cfg.TrackedCells) > 0 {
		observability.SetTrackedCells(cfg.TrackedCells)
		go warmTrackedCells(bundleService, cfg.TrackedCells, cfg.YearTo, logger)
	}

	router := mux.NewRouter()
	router.Use(httphandler.CorrelationIDMiddleware(logger))
	router.Use(httphandler.MetricsMiddleware)
	router.HandleFunc("/health", handler.GetHealth).Methods("GET")
	router.Handle("/metrics", observability.MetricsHandler())

	api := router.PathPrefix("/api").Subrouter()
	api.Use(httphandler.RateLimitMiddleware(limiter))
	api.Use(httphandler.TimeoutMiddleware(cfg.RequestTimeout))
	api.HandleFunc("/years", handler.GetYears).Methods("GET")
	api.HandleFunc("/districts", handler.GetDistricts).Methods("GET")
	api.HandleFunc("/risk-bands", handler.GetRiskBands).Methods("GET")
	api.HandleFunc("/polygons", handler.PostPolygons).Methods("POST")
	api.HandleFunc("/polygons/{cellId}", handler.GetPolygon).Methods("GET")
	api.HandleFunc("/polygons/{cellId}/report", handler.GetReport).Methods("GET")
	api.HandleFunc("/anomalies/export", handler.GetAnomaliesExport).Methods("GET")
	api.HandleFunc("/anomalies/{anomalyId}/feedback", handler.PostFeedback).Methods("POST")

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", ":"+cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	inFlight := httphandler.InFlightCount()
	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownInFlightTimeout)
	defer waitCancel()
	if err := httphandler.WaitForInFlight(waitCtx, cfg.ShutdownInFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}

	if memcacheCloser != nil {
		if err := memcacheCloser.Close(); err != nil {
			logger.Error("memcached close", zap.Error(err))
		}
	}
	logger.Info("shutdown complete")
}

// warmTrackedCells primes the bundle cache for the dashboard's default
// selections so the first paint after a restart does not wait on upstreams.
func warmTrackedCells(bundles *service.BundleService, cells []string, year int, logger *zap.Logger) {
	start := time.Now().UTC()
	for _, id := range cells {
		if _, err := bundles.GetBundle(context.Background(), id, year, start); err != nil {
			logger.Warn("cache warm failed", zap.String("cell", id), zap.Error(err))
		}
	}
	logger.Info("tracked cells warmed", zap.Int("count", len(cells)))
}

func newBreaker(component string, cfg *config.Config) *circuitbreaker.CircuitBreaker {
	return circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: cfg.CircuitBreakerFailureThreshold,
		SuccessThreshold: cfg.CircuitBreakerSuccessThreshold,
		Timeout:          cfg.CircuitBreakerTimeout,
		OnStateChange: func(from, to circuitbreaker.State) {
			observability.RecordCircuitBreakerTransition(component, from.String(), to.String())
		},
	})
}
