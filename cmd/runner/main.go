package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"edugb/notifications-engine/internal/repository"
	"edugb/notifications-engine/internal/resolver"
	"edugb/notifications-engine/internal/service"
	"edugb/notifications-engine/pkg/logger"
	"edugb/notifications-engine/pkg/metrics"
)

func main() {
	// Load environment variables from config.env
	configPaths := []string{
		"config.env",
		"./config.env",
		"../config.env",
		"../../config.env",
	}
	var configLoaded bool
	for _, configPath := range configPaths {
		if err := godotenv.Load(configPath); err == nil {
			configLoaded = true
			log.Printf("Loaded config from: %s", configPath)
			break
		}
	}
	if !configLoaded {
		// Fallback to .env if config.env not found
		if err := godotenv.Load(); err != nil {
			log.Printf("Warning: config.env and .env files not found, using environment variables only")
		}
	}

	appLog := logger.NewLogger("notifications-engine")
	appMetrics := metrics.NewMetrics("engine")

	db, err := setupDatabase()
	if err != nil {
		appLog.Fatalf("Failed to prepare database connection: %v", err)
	}
	defer db.Close()

	if err := pingDatabase(db); err != nil {
		appLog.Fatalf("Failed to ping database: %v", err)
	}
	appLog.Info("Successfully connected to database")

	eventQueueRepo := repository.NewEventQueueRepository(db)
	notificationQueueRepo := repository.NewNotificationQueueRepository(db)
	preferenceRepo := repository.NewPreferenceRepository(db)
	userRepo := repository.NewUserRepository(db)
	logRepo := repository.NewLogRepository(db)
	watermarkRepo := repository.NewSweepWatermarkRepository(db)

	registry := resolver.NewRegistry()
	bookingFactory := resolver.NewBookingFactory(db)
	registry.RegisterEvent("booking", bookingFactory)
	registry.RegisterScheduled("booking", bookingFactory)

	processors := service.NewStaticProcessorProvider(
		service.NewEmailProcessor(),
		service.NewSMSProcessor(),
	)
	defaultChannels := []string{service.ChannelEmail}

	notificationManager := service.NewNotificationQueueManager(
		db, notificationQueueRepo, preferenceRepo, userRepo, logRepo,
		registry, processors, defaultChannels, appLog, appMetrics,
	)
	eventManager := service.NewEventQueueManager(
		db, eventQueueRepo, preferenceRepo, registry, notificationManager, appLog, appMetrics,
	)
	scheduledManager := service.NewScheduledEventManager(
		preferenceRepo, watermarkRepo, registry, notificationManager, appLog, appMetrics,
	)

	metricsPort := getEnv("METRICS_PORT", "9108")
	go func() {
		http.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(":"+metricsPort, nil); err != nil {
			appLog.WithError(err).Error("Metrics endpoint stopped")
		}
	}()
	appLog.Infof("Metrics endpoint listening on port %s", metricsPort)

	interval := getEnvAsDuration("POLL_INTERVAL", time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		runLoop(ctx, interval, db, appLog, appMetrics, eventManager, notificationManager, scheduledManager, eventQueueRepo, notificationQueueRepo)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLog.Info("Shutting down...")
	cancel()
	<-done
	appLog.Info("Engine stopped")
}

// runLoop invokes the three managers synchronously and sequentially; the
// engine has no internal parallelism and a hung transport blocks the batch.
func runLoop(
	ctx context.Context,
	interval time.Duration,
	db *sql.DB,
	appLog *logger.Logger,
	appMetrics *metrics.Metrics,
	eventManager *service.EventQueueManager,
	notificationManager *service.NotificationQueueManager,
	scheduledManager *service.ScheduledEventManager,
	eventQueueRepo repository.EventQueueRepository,
	notificationQueueRepo repository.NotificationQueueRepository,
) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	appLog.Infof("Engine loop started (interval: %v)", interval)

	for {
		select {
		case <-ticker.C:
			now := time.Now()

			if err := eventManager.ProcessQueues(ctx); err != nil {
				appLog.WithError(err).Error("Event queue run failed")
			}
			if err := notificationManager.DispatchQueues(ctx, now); err != nil {
				appLog.WithError(err).Error("Notification queue run failed")
			}
			// The sweep window resumes from the persisted watermark, so a
			// restart never re-covers an already-swept window.
			if err := scheduledManager.Execute(ctx, now, time.Time{}); err != nil {
				appLog.WithError(err).Error("Scheduled sweep failed")
			}

			recordGauges(ctx, appLog, appMetrics, db, eventQueueRepo, notificationQueueRepo)

		case <-ctx.Done():
			appLog.Info("Engine loop stopped")
			return
		}
	}
}

func recordGauges(
	ctx context.Context,
	appLog *logger.Logger,
	appMetrics *metrics.Metrics,
	db *sql.DB,
	eventQueueRepo repository.EventQueueRepository,
	notificationQueueRepo repository.NotificationQueueRepository,
) {
	if backlog, err := eventQueueRepo.CountPending(ctx); err == nil {
		appMetrics.QueueBacklog.WithLabelValues("event_queue").Set(float64(backlog))
	} else {
		appLog.WithError(err).Warn("Failed to count event queue backlog")
	}
	if backlog, err := notificationQueueRepo.CountPending(ctx); err == nil {
		appMetrics.QueueBacklog.WithLabelValues("notification_queue").Set(float64(backlog))
	} else {
		appLog.WithError(err).Warn("Failed to count notification queue backlog")
	}

	stats := db.Stats()
	appMetrics.RecordDBPoolStats(stats.OpenConnections, stats.InUse, stats.Idle, stats.WaitCount, stats.WaitDuration)
}

func setupDatabase() (*sql.DB, error) {
	port, err := strconv.Atoi(getEnv("DB_PORT", "3306"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT value: %w", err)
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&collation=utf8mb4_unicode_ci",
		getEnv("DB_USER", "root"),
		getEnv("DB_PASSWORD", ""),
		getEnv("DB_HOST", "localhost"),
		port,
		getEnv("DB_DATABASE", "edugb_db"),
	)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(getEnvAsInt("DB_MAX_OPEN_CONNS", 25))
	db.SetMaxIdleConns(getEnvAsInt("DB_MAX_IDLE_CONNS", 5))
	db.SetConnMaxLifetime(getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute))

	return db, nil
}

func pingDatabase(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid value for %s: %v, falling back to default %d", key, err, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Printf("Invalid duration for %s: %v, falling back to default %s", key, err, defaultValue)
		return defaultValue
	}
	return value
}
