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
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"weatherhub/internal/cache"
	"weatherhub/internal/client"
	"weatherhub/internal/config"
	"weatherhub/internal/geocode"
	"weatherhub/internal/health"
	httphandler "weatherhub/internal/http"
	"weatherhub/internal/observability"
	"weatherhub/internal/service"
	"weatherhub/internal/store"
)

const version = "dev"

func main() {
	// Missing .env is fine; real deployments set env directly.
	_ = godotenv.Load()

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

	var responseCache cache.Cache
	var memcacheCloser *cache.MemcachedCache
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			logger.Fatal("memcached cache", zap.Error(err))
		}
		memcacheCloser = mc
		responseCache = mc
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	default:
		lru := cache.NewLRUCache(cfg.CacheCapacity)
		lru.OnEvict(func(string) { observability.CacheEvictionsTotal.Inc() })
		responseCache = lru
		logger.Info("cache backend: in_memory", zap.Int("capacity", cfg.CacheCapacity))
	}

	db, err := store.Open(cfg.DatabasePath)
	if err != nil {
		logger.Fatal("open store", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("store close", zap.Error(err))
		}
	}()
	logger.Info("store opened", zap.String("path", cfg.DatabasePath))

	weatherClient, err := client.NewOpenWeatherClient(client.Config{
		APIKey:      cfg.WeatherAPIKey,
		CurrentURL:  cfg.WeatherCurrentURL,
		ForecastURL: cfg.WeatherForecastURL,
		IconBaseURL: cfg.IconBaseURL,
		Timeout:     cfg.WeatherAPITimeout,
		CurrentTTL:  cfg.CurrentTTL,
		ForecastTTL: cfg.ForecastTTL,
	}, responseCache)
	if err != nil {
		logger.Fatal("weather client", zap.Error(err))
	}

	geocoder, err := geocode.NewClient(geocode.Config{
		APIKey:     cfg.WeatherAPIKey,
		DirectURL:  cfg.GeoDirectURL,
		ZipURL:     cfg.GeoZipURL,
		ReverseURL: cfg.GeoReverseURL,
		Timeout:    cfg.WeatherAPITimeout,
		DirectTTL:  cfg.GeoDirectTTL,
		ReverseTTL: cfg.GeoReverseTTL,
	}, responseCache)
	if err != nil {
		logger.Fatal("geocoding client", zap.Error(err))
	}

	weatherService := service.NewWeatherService(weatherClient, geocoder, db, cfg.CoalesceTimeout)

	checker := &health.Checker{
		Service:           "weatherhub",
		Version:           version,
		Window:            cfg.HealthWindow,
		ErrorThresholdPct: cfg.HealthErrorPct,
		DBPing:            db.Ping,
	}
	if memcacheCloser != nil {
		checker.CachePing = memcacheCloser.Ping
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	handler := httphandler.NewHandler(weatherService, db, checker, logger)

	router := mux.NewRouter()
	router.Use(httphandler.CorrelationIDMiddleware(logger))
	router.Use(httphandler.MetricsMiddleware)
	router.HandleFunc("/health", handler.GetHealth).Methods("GET")
	router.Handle("/metrics", observability.MetricsHandler())

	api := router.PathPrefix("/").Subrouter()
	api.Use(httphandler.RateLimitMiddleware(limiter))
	api.Use(httphandler.TimeoutMiddleware(cfg.RequestTimeout))
	handler.Register(api)

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
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	inFlight := httphandler.InFlightCount()
	if inFlight > 0 {
		logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight))
		waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := httphandler.WaitForInFlight(waitCtx, 100*time.Millisecond); err != nil {
			logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
		}
		waitCancel()
	}

	observability.FlushTelemetry(logger)

	if memcacheCloser != nil {
		if err := memcacheCloser.Close(); err != nil {
			logger.Error("memcached close", zap.Error(err))
		}
	}
	logger.Info("shutdown complete")
}
