package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"farm-health-service/internal/alerts"
	"farm-health-service/internal/anomaly"
	"farm-health-service/internal/config"
	miniodb "farm-health-service/internal/database/minio"
	mongodb "farm-health-service/internal/database/mongo"
	"farm-health-service/internal/database/postgres"
	redisdb "farm-health-service/internal/database/redis"
	"farm-health-service/internal/features"
	"farm-health-service/internal/forecast"
	"farm-health-service/internal/handlers"
	"farm-health-service/internal/inference"
	"farm-health-service/internal/repository"
	"farm-health-service/internal/risk"
	"farm-health-service/internal/services"
	"farm-health-service/internal/worker"

	"github.com/gofiber/fiber/v3"
)

func setupLogging() (*os.File, error) {
	logDir := filepath.Join("/agrisa", "log", "farm_health_service")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %v", err)
	}

	logFileName := fmt.Sprintf("log_%s.log", time.Now().Format("2006-01-02"))
	file, err := os.OpenFile(filepath.Join(logDir, logFileName), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %v", err)
	}

	handler := slog.NewTextHandler(io.MultiWriter(os.Stdout, file), &slog.HandlerOptions{Level: slog.LevelInfo})
	slog.SetDefault(slog.New(handler))
	return file, nil
}

func main() {
	logFile, err := setupLogging()
	if err != nil {
		fmt.Printf("Failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	defer logFile.Close()

	cfg := config.New()

	slog.Info("Connecting to PostgreSQL", "host", cfg.PostgresCfg.Host,
		"port", cfg.PostgresCfg.Port, "db", cfg.PostgresCfg.DBname)
	db, err := postgres.ConnectAndCreateDB(cfg.PostgresCfg)
	if err != nil {
		slog.Error("Failed to connect to PostgreSQL, retrying in background", "error", err)
		go postgres.RetryConnectOnFailed(30*time.Second, &db, cfg.PostgresCfg)
	}

	redisClient, err := redisdb.NewRedisClient(cfg.RedisCfg)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	minioClient, err := miniodb.NewMinioClient(cfg.MinioCfg)
	if err != nil {
		slog.Error("Failed to connect to MinIO", "error", err)
		os.Exit(1)
	}

	mongoClient, err := mongodb.NewMongoClient(cfg.MongoCfg)
	if err != nil {
		slog.Error("Failed to connect to MongoDB", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := mongoClient.Close(shutdownCtx); err != nil {
			slog.Warn("Failed to close MongoDB connection", "error", err)
		}
	}()

	// Wiring: repositories, inference, pipeline stages, orchestrator.
	observationRepo := repository.NewObservationRepository(db)
	farmStore := repository.NewFarmStore(mongoClient.Database())

	artifacts := inference.NewArtifactStore(minioClient, cfg.InferenceCfg)
	modelClient := inference.NewClient(cfg.InferenceCfg)

	healthService := services.NewFarmHealthService(
		cfg,
		observationRepo,
		farmStore,
		artifacts,
		features.NewBuilder(cfg.PipelineCfg.MinHistoryWeeks),
		anomaly.NewScorer(modelClient, artifacts),
		risk.NewClassifier(cfg.PipelineCfg),
		forecast.NewIntegrator(modelClient),
		alerts.NewEngine(cfg.AlertCfg),
	)

	pool := worker.NewWorkingPool(cfg.WorkerCfg.NumWorkers, cfg.WorkerCfg.QueueSize, cfg.WorkerCfg.JobTimeout)
	runLock := worker.NewRunLock(redisClient.GetClient(), cfg.WorkerCfg.RunLockTTL)
	scheduler := worker.NewScheduler(cfg.WorkerCfg.ScheduleInterval, healthService, healthService, pool, runLock)

	var managerWg sync.WaitGroup
	managerWg.Add(1)
	go pool.Start(ctx, &managerWg)
	go scheduler.Run(ctx)

	app := fiber.New()
	handlers.NewFarmHealthHandler(healthService, scheduler).Register(app)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			slog.Error("HTTP server stopped", "error", err)
			stop()
		}
	}()
	slog.Info("Farm health service started", "port", cfg.Port)

	<-ctx.Done()
	slog.Info("Shutdown signaled")

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		slog.Warn("HTTP server shutdown incomplete", "error", err)
	}
	managerWg.Wait()
	slog.Info("Farm health service stopped")
}
