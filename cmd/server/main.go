package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"marketanalytics/webclient/internal/api"
	"marketanalytics/webclient/internal/apiclient"
	"marketanalytics/webclient/internal/config"
	"marketanalytics/webclient/internal/logger"
	"marketanalytics/webclient/internal/metrics"
	"marketanalytics/webclient/internal/services"
	"marketanalytics/webclient/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logg, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logg.Sync() }()

	// --- Metrics ---
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(reg)

	// --- Redis ---
	redisSvc, err := services.NewRedisClient(cfg.RedisURL, cfg.RedisPassword, cfg.WorkspaceTTL)
	if err != nil {
		logg.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisSvc.Close()
	logg.Info("Connected to Redis")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	checks := []api.HealthCheck{{Name: "redis", Check: redisSvc.Ping}}
	observers := []store.Observer{collector}

	// --- RabbitMQ (optional) ---
	if cfg.NotificationsEnabled() {
		queueSvc, err := services.NewQueueService(cfg.RabbitMQURL, cfg.NotifyQueue)
		if err != nil {
			logg.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
		}
		defer queueSvc.Close()
		logg.Info("Connected to RabbitMQ", zap.String("queue", cfg.NotifyQueue))

		notifier := services.NewNotifier(queueSvc, 256, logg.Named("notifier"))
		go notifier.Run(ctx)
		observers = append(observers, notifier)
		checks = append(checks, api.HealthCheck{Name: "rabbitmq", Check: func(context.Context) error {
			return queueSvc.Ping()
		}})
	} else {
		logg.Info("RABBITMQ_URL not set, notifications disabled")
	}

	// --- Workspaces ---
	storeLogger := logg.Named("store")
	clientOpts := []apiclient.Option{
		apiclient.WithRecorder(collector),
		apiclient.WithLogger(logg.Named("apiclient")),
	}
	newStore := func(token string, settings store.SettingsStore) *store.Store {
		provider := apiclient.NewProvider(apiclient.Config{
			BaseURL: cfg.DefaultAPIURL,
			Timeout: cfg.APITimeout,
		}, clientOpts...)
		opts := []store.Option{store.WithSettings(settings), store.WithLogger(storeLogger)}
		for _, o := range observers {
			opts = append(opts, store.WithObserver(o))
		}
		return store.New(token, provider, opts...)
	}
	workspaces := services.NewWorkspaceService(redisSvc, cfg.DefaultAPIURL, newStore, logg.Named("workspaces"))
	defer workspaces.Close()
	go workspaces.RunSweeper(ctx, 5*time.Minute)
	metrics.RegisterGauge(reg, "webclient_workspaces", "Workspaces with a live action store.", func() float64 {
		return float64(workspaces.Len())
	})

	// --- HTTP Server ---
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	if err := router.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		logg.Fatal("Invalid TRUSTED_PROXIES", zap.Error(err))
	}
	router.Use(gin.Recovery())
	api.SetupRoutes(router, api.Deps{
		Workspaces:      workspaces,
		Checks:          checks,
		Limiter:         redisSvc,
		RateLimitMax:    int64(cfg.RateLimitMax),
		RateLimitWindow: cfg.RateLimitWindow,
		Metrics:         collector,
		Gatherer:        reg,
		Logger:          logg.Named("http"),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logg.Info("Web client listening", zap.String("addr", srv.Addr), zap.String("api_url", cfg.DefaultAPIURL))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Fatal("Server failed", zap.Error(err))
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logg.Info("Shutting down...")

	// Close SSE streams first so Shutdown does not wait on them.
	workspaces.Close()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logg.Error("Graceful shutdown failed", zap.Error(err))
	}
	cancel()
}
