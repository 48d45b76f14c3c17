// Package main is the entry point for the gatehouse service.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/ferrovax/gatehouse/internal/api"
	"github.com/ferrovax/gatehouse/internal/attendance"
	"github.com/ferrovax/gatehouse/internal/auth"
	"github.com/ferrovax/gatehouse/internal/capture"
	"github.com/ferrovax/gatehouse/internal/config"
	"github.com/ferrovax/gatehouse/internal/gate"
	"github.com/ferrovax/gatehouse/internal/health"
	"github.com/ferrovax/gatehouse/internal/hw"
	"github.com/ferrovax/gatehouse/internal/jobs"
	"github.com/ferrovax/gatehouse/internal/middleware"
	"github.com/ferrovax/gatehouse/internal/mirror"
	"github.com/ferrovax/gatehouse/internal/outbox"
	"github.com/ferrovax/gatehouse/internal/registry"
	"github.com/ferrovax/gatehouse/internal/verify"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	help := flag.Bool("help", false, "display help message")
	flag.Parse()

	if *help {
		fmt.Println("Gatehouse")
		fmt.Println()
		fmt.Println("Usage: gatehouse [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configPath)
	if len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintln(os.Stderr, "config error:", err)
		}
		os.Exit(1)
	}

	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)
	logger.Info("configuration loaded", "summary", cfg.LogSummary())

	if !cfg.SimulateHardware {
		logger.Error("no physical hardware driver is built into this binary; set GATEHOUSE_SIMULATE_HARDWARE=true")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Metrics
	registryProm := prometheus.NewRegistry()
	gateMetrics := gate.NewMetrics()
	httpMetrics := middleware.NewMetrics()
	jobMetrics := jobs.NewMetrics()
	for _, reg := range []interface {
		Register(prometheus.Registerer) error
	}{gateMetrics, httpMetrics, jobMetrics} {
		if err := reg.Register(registryProm); err != nil {
			logger.Error("metrics registration failed", "error", err)
			os.Exit(1)
		}
	}

	// Local store: Postgres when configured, in-memory otherwise.
	var (
		db        *sql.DB
		students  registry.Repository
		records   attendance.Repository
		outboxes  outbox.Repository
		monitor   *health.StoreMonitor
		storeSig  api.StoreSignal
		healthSig attendance.HealthSignal
	)
	if cfg.DatabaseURL != "" {
		var err error
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		students = registry.NewPostgresRepository(db)
		records = attendance.NewPostgresRepository(db)
		outboxes = outbox.NewPostgresRepository(db)

		monitor = health.NewStoreMonitor(health.MonitorConfig{
			Logger:  logger,
			Metrics: jobMetrics,
		}, health.NewDBChecker(db))
		monitor.Probe(ctx)
		monitor.Start(ctx)
		defer monitor.Stop()
		storeSig = monitor
		healthSig = monitor
	} else {
		logger.Warn("no database configured, using in-memory repositories")
		students = registry.NewInMemoryRepository()
		records = attendance.NewInMemoryRepository()
		outboxes = outbox.NewInMemoryRepository()
	}

	// Redis: registry cache + shared rate-limit window.
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		defer redisClient.Close()
	}
	gateway := registry.NewGateway(students, redisClient, logger)

	// Remote mirror + replication worker.
	var (
		mirrorClient *mirror.Client
		worker       *outbox.Worker
		appender     attendance.OutboxAppender
		counter      api.OutboxCounter
	)
	if cfg.MirrorBaseURL != "" {
		mirrorClient = mirror.NewClient(mirror.Config{
			BaseURL: cfg.MirrorBaseURL,
			APIKey:  cfg.MirrorAPIKey,
		})
		worker = outbox.NewWorker(outbox.WorkerConfig{
			Interval:    time.Duration(cfg.OutboxIntervalSeconds) * time.Second,
			MaxAttempts: cfg.OutboxMaxAttempts,
			Logger:      logger,
			Metrics:     jobMetrics,
		}, outboxes, mirrorClient)
		worker.Start(ctx)
		defer worker.Stop()
		appender = outboxes
		counter = outboxes
	} else {
		logger.Warn("no mirror configured, attendance replication disabled")
	}

	ledger := attendance.NewLedger(records, appender, healthSig, logger)

	// Gate hardware and orchestrator.
	timings := gate.DefaultTimings()
	if cfg.HoldOpenSeconds > 0 {
		timings.HoldOpen = time.Duration(cfg.HoldOpenSeconds) * time.Second
	}
	if cfg.EntryTimeoutSeconds > 0 {
		timings.EntryTimeout = time.Duration(cfg.EntryTimeoutSeconds) * time.Second
	}

	sensor := hw.NewSimSensor()
	door := hw.NewSimActuator(timings.OpenTravel)
	alert := hw.NewSimAlert()

	broadcaster := api.NewEventBroadcaster()
	orchestrator := gate.New(sensor, door, alert, ledger, timings, gateMetrics, broadcaster, logger)
	go orchestrator.Run(ctx)

	// Verification pipeline and capture loop.
	pipeline := verify.NewPipeline(verify.PrefixDecoder{}, verify.AlwaysMatcher{}, gateway, 0, logger)
	source := capture.NewSimSource()
	loop := capture.NewLoop(source, pipeline, orchestrator, cfg.CaptureCadence(), logger)
	go loop.Run(ctx)

	// HTTP surface.
	jwtService := auth.NewJWTServiceWithRotation(cfg.JWTSecret, cfg.JWTPreviousSecret)

	var limitStore middleware.RateLimitStore
	if redisClient != nil {
		limitStore = middleware.NewRedisRateLimitStore(redisClient, httpMetrics)
	} else {
		limitStore = middleware.NewInMemoryRateLimitStore()
	}

	var mirrorChecker api.HealthChecker
	if mirrorClient != nil {
		mirrorChecker = mirrorClient
	}
	var cacheChecker api.HealthChecker
	if redisClient != nil {
		cacheChecker = health.NewRedisChecker(redisClient)
	}

	mux := api.NewRouter(api.RouterConfig{
		Status:     api.NewStatusHandlers(orchestrator, loop),
		Attendance: api.NewAttendanceHandlers(ledger, gateway, counter),
		Students:   api.NewStudentHandlers(gateway),
		Auth:       api.NewAuthHandlers(jwtService, cfg.AdminUsername, cfg.AdminPassword),
		Events:     api.NewEventHandlers(broadcaster),
		Health: api.NewHealthHandlers(api.HealthHandlersConfig{
			Store:  storeSig,
			Mirror: mirrorChecker,
			Cache:  cacheChecker,
			Camera: loop,
		}),
		JWT:             jwtService,
		RateLimitStore:  limitStore,
		LoginLimit:      middleware.DefaultLoginLimit(),
		MetricsRegistry: registryProm,
	})

	handler := middleware.RequestID(
		middleware.Logging(logger)(
			middleware.HTTPMetrics(httpMetrics)(
				middleware.RateLimiter(limitStore, middleware.DefaultGlobalLimit(), middleware.IPKeyFunc())(mux))))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting server", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
