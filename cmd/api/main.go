package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/citasalud/citasalud-api/internal/api/router"
	"github.com/citasalud/citasalud-api/internal/appointments"
	appconfig "github.com/citasalud/citasalud-api/internal/config"
	"github.com/citasalud/citasalud-api/internal/directory"
	"github.com/citasalud/citasalud-api/internal/observability/metrics"
	"github.com/citasalud/citasalud-api/internal/schedule"
	"github.com/citasalud/citasalud-api/internal/schedule/slotcache"
	"github.com/citasalud/citasalud-api/pkg/logging"
)

func main() {
	// Load .env in development; ignore absence in deployed environments.
	_ = godotenv.Load()

	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting citasalud API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	location, err := time.LoadLocation(cfg.ScheduleTimezone)
	if err != nil {
		logger.Error("invalid SCHEDULE_TIMEZONE", "error", err, "timezone", cfg.ScheduleTimezone)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		logger.Error("database unreachable", "error", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	bookingMetrics := metrics.NewBookingMetrics(registry)

	scheduleRepo := schedule.NewPostgresRepository(pool)
	directoryRepo := directory.NewPostgresRepository(pool)
	appointmentsRepo := appointments.NewPostgresRepository(pool)

	policy := appointments.Policy{
		MinLeadTime:        cfg.MinLeadTime,
		HorizonDays:        cfg.BookingHorizonDays,
		DefaultSlotMinutes: cfg.DefaultSlotMinutes,
		Location:           location,
	}
	service := appointments.NewService(appointmentsRepo, scheduleRepo, directoryRepo, policy, logger).
		WithMetrics(bookingMetrics)

	var cache *slotcache.Cache
	if cfg.RedisAddr != "" {
		redisOptions := &redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		}
		if cfg.RedisTLS {
			redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		redisClient := redis.NewClient(redisOptions)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable, slot cache disabled", "error", err)
		} else {
			cache = slotcache.New(redisClient, cfg.SlotCacheTTL, logger)
			service.WithCache(cache)
			logger.Info("slot cache enabled", "addr", cfg.RedisAddr, "ttl", cfg.SlotCacheTTL)
		}
	}

	appointmentsHandler := appointments.NewHandler(service, logger)

	// Calendar edits invalidate the affected doctor's cached slots.
	onCalendarChange := func(r *http.Request, doctorID uuid.UUID) {
		if cache != nil {
			cache.Invalidate(r.Context(), doctorID)
		}
	}
	scheduleHandler := schedule.NewHandler(scheduleRepo, directoryRepo, onCalendarChange, logger)

	routerCfg := &router.Config{
		Logger:              logger,
		AppointmentsHandler: appointmentsHandler,
		ScheduleHandler:     scheduleHandler,
		MetricsHandler:      promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		CORSAllowedOrigins:  cfg.CORSAllowedOrigins,
		BookingRateLimit:    5,
		BookingBurst:        10,
	}
	r := router.New(routerCfg)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}
