package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/DarkSword404/CTF-Platform/internal/ai"
	"github.com/DarkSword404/CTF-Platform/internal/container"
	"github.com/DarkSword404/CTF-Platform/internal/data"
	"github.com/DarkSword404/CTF-Platform/internal/handler"
	"github.com/DarkSword404/CTF-Platform/internal/infrastructure"
	"github.com/DarkSword404/CTF-Platform/internal/repository"
	"github.com/DarkSword404/CTF-Platform/internal/service"
)

func main() {
	// Load configuration
	config := infrastructure.LoadConfig()

	// Initialize logger
	logger, err := infrastructure.NewLogger(config.Server.Environment)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer infrastructure.SyncLogger(logger)

	logger.Info("Starting CTF Platform API",
		zap.String("environment", config.Server.Environment),
		zap.Int("port", config.Server.Port),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize telemetry
	telemetry, err := infrastructure.NewTelemetry(ctx, &config.Telemetry, logger)
	if err != nil {
		logger.Error("Failed to initialize telemetry", zap.Error(err))
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		telemetry.Shutdown(shutdownCtx)
	}()

	metrics, err := telemetry.CreateMetrics()
	if err != nil {
		logger.Error("Failed to create metrics", zap.Error(err))
		os.Exit(1)
	}

	// Initialize database
	database, err := infrastructure.NewDatabase(&config.Database, logger)
	if err != nil {
		logger.Error("Failed to connect to database", zap.Error(err))
		os.Exit(1)
	}
	defer database.Close()

	if err := database.AutoMigrate(); err != nil {
		logger.Error("Failed to run migrations", zap.Error(err))
		os.Exit(1)
	}

	// Initialize repositories
	userRepo := repository.NewUserRepository(database.DB)
	roleRepo := repository.NewRoleRepository(database.DB)
	challengeRepo := repository.NewChallengeRepository(database.DB)
	solveRepo := repository.NewSolveRepository(database.DB)
	providerRepo := repository.NewAIProviderRepository(database.DB)
	callLogRepo := repository.NewAICallLogRepository(database.DB)
	generationRepo := repository.NewGenerationRepository(database.DB)

	// Seed roles and the bootstrap admin
	seeder := data.NewSeeder(userRepo, roleRepo, providerRepo, logger)
	if err := seeder.Seed(ctx, config.Bootstrap); err != nil {
		logger.Error("Failed to seed initial data", zap.Error(err))
		os.Exit(1)
	}

	// Scoreboard cache
	scoreboardCache := repository.NewNoopScoreboardCache()
	if config.Redis.Enabled {
		redisClient, err := infrastructure.NewRedisClient(ctx, &config.Redis, logger)
		if err != nil {
			logger.Warn("Redis unavailable, scoreboard served uncached", zap.Error(err))
		} else {
			defer redisClient.Close()
			scoreboardCache = repository.NewRedisScoreboardCache(redisClient, config.Redis.ScoreboardTTL, logger)
		}
	}

	// Container backend
	containers := container.NewManager(config.Docker, logger)
	defer containers.Close()
	containersAvailable := containers.Available(ctx)
	if !containersAvailable {
		logger.Warn("Container backend unavailable, challenge instances disabled")
	}

	// Initialize services
	registry := ai.NewRegistryHandle(nil)
	userService := service.NewUserService(userRepo, solveRepo, &config.JWT, telemetry.Tracer, logger)
	containerService := service.NewContainerService(challengeRepo, containers, config.Docker, metrics, telemetry.Tracer, logger)
	providerService := service.NewProviderService(providerRepo, callLogRepo, seeder, registry, config.AI, metrics, telemetry.Tracer, logger)
	services := handler.Services{
		Users:       userService,
		Challenges:  service.NewChallengeService(challengeRepo, solveRepo, telemetry.Tracer, logger),
		Submissions: service.NewSubmissionService(challengeRepo, solveRepo, scoreboardCache, metrics, telemetry.Tracer, logger),
		Containers:  containerService,
		AI:          service.NewAIService(registry, challengeRepo, generationRepo, callLogRepo, containers, config.Docker, metrics, telemetry.Tracer, logger),
		Providers:   providerService,
		Admin:       service.NewAdminService(userRepo, challengeRepo, solveRepo, callLogRepo, generationRepo, scoreboardCache, telemetry.Tracer, logger),
	}

	if containersAvailable {
		go containerService.RunReaper(ctx, config.Docker.ReapInterval)
	}

	if err := providerService.Rebuild(ctx); err != nil {
		logger.Warn("Failed to load AI providers", zap.Error(err))
	}
	if registry.Current().Len() == 0 {
		logger.Warn("No AI provider configured, generation endpoints will fail until one is added")
	}

	if config.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := handler.NewRouter(services, handler.RouterOptions{
		CORS:           config.CORS,
		Tracer:         telemetry.Tracer,
		Metrics:        metrics,
		MetricsHandler: promhttp.Handler(),
		HealthCheck:    database.HealthCheck,
		Version:        config.Telemetry.ServiceVersion,
	}, logger)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port),
		Handler:      router,
		ReadTimeout:  config.Server.ReadTimeout,
		WriteTimeout: config.Server.WriteTimeout,
	}

	go func() {
		logger.Info("HTTP server starting",
			zap.String("address", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
