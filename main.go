// Package main provides the main entry point for the campaign execution API
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aproductiontitle/capi-public/app/handlers"
	"github.com/aproductiontitle/capi-public/app/router"
	"github.com/aproductiontitle/capi-public/app/scheduler"
	"github.com/aproductiontitle/capi-public/app/services"
	businessflow "github.com/aproductiontitle/capi-public/business_flow"
	"github.com/aproductiontitle/capi-public/config"
	"github.com/aproductiontitle/capi-public/repository"
	"github.com/gofiber/fiber/v3"
	"github.com/redis/go-redis/v9"
	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Application represents the main application structure
type Application struct {
	router    *router.FiberRouter
	config    *config.ProductionConfig
	server    *fiber.App
	stopFuncs []func()
}

func main() {
	log.Println("Starting campaign execution API...")

	// Load production configuration
	cfg, err := config.LoadProductionConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize application
	app, err := initializeApplication(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	// Setup routes
	app.router.SetupRoutes()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start server in goroutine
	go func() {
		address := cfg.GetServerAddress()
		log.Printf("Server starting on %s", address)

		if err := app.server.Listen(address); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for shutdown signal
	<-sigChan
	log.Println("Shutting down gracefully...")

	// Stop background workers
	for _, fn := range app.stopFuncs {
		fn()
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := app.server.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}

	log.Println("Server stopped")
}

// initializeDatabase initializes the database connection with connection pooling
func initializeDatabase(cfg *config.ProductionConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.GetDatabaseURL()), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Get underlying sql.DB for connection pooling configuration
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	// Configure connection pooling
	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.Database.ConnMaxIdleTime)

	// Test the connection
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Printf("Database connection established with %d max open connections, %d max idle connections",
		cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)

	return db, nil
}

// initializeCache initializes the Redis client and verifies connectivity
func initializeCache(cfg config.CacheConfig) (*redis.Client, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	// Override DB if provided in config
	opt.DB = cfg.RedisDB

	rc := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Printf("Redis connection established to %s (db=%d)", cfg.RedisURL, cfg.RedisDB)
	return rc, nil
}

// newAppLogger builds the flow logger writing to stdout and a rotated file
// depending on the configured output
func newAppLogger(cfg config.LoggingConfig) *log.Logger {
	var w io.Writer = os.Stdout
	if cfg.Output == "file" || cfg.Output == "both" {
		rotated := &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}
		if cfg.Output == "file" {
			w = rotated
		} else {
			w = io.MultiWriter(os.Stdout, rotated)
		}
	}
	return log.New(w, "", log.LstdFlags|log.Lmicroseconds|log.LUTC)
}

// initializeApplication initializes the main application components
func initializeApplication(cfg *config.ProductionConfig) (*Application, error) {
	var stopFuncs []func()

	// Initialize database
	db, err := initializeDatabase(cfg)
	if err != nil {
		return nil, err
	}

	rc, err := initializeCache(cfg.Cache)
	if err != nil {
		return nil, err
	}

	appLogger := newAppLogger(cfg.Logging)

	// Initialize repositories
	campaignRepo := repository.NewCampaignRepository(db)
	contactRepo := repository.NewCampaignContactRepository(db)
	attemptRepo := repository.NewExecutionAttemptRepository(db)
	breakerRepo := repository.NewCircuitBreakerRepository(db)
	auditRepo := repository.NewAuditLogRepository(db)
	assistantRepo := repository.NewAssistantRepository(db)
	secretRepo := repository.NewSecretRepository(db)

	// Initialize services
	vapiClient := services.NewVapiClient(&cfg.Vapi)

	tokenService, err := services.NewWebhookTokenService(cfg.Webhook.TokenSecret, cfg.Webhook.TokenTTL, cfg.Webhook.TokenIssuer)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize webhook token service: %w", err)
	}

	var dedupService services.EventDedupService
	if rc != nil {
		dedupService = services.NewRedisEventDedup(rc, &cfg.Cache, cfg.Webhook.DedupTTL)
	} else {
		log.Println("Cache disabled, webhook event dedup falls back to process memory")
		dedupService = services.NewMemoryEventDedup(cfg.Webhook.DedupTTL)
	}

	importer := services.NewContactImporter()

	// Initialize flows
	stateManager := businessflow.NewStateManager(campaignRepo, appLogger)
	breaker := businessflow.NewCircuitBreaker(breakerRepo, auditRepo, &cfg.Execution, appLogger)
	validationFlow := businessflow.NewValidationFlow(
		campaignRepo,
		contactRepo,
		assistantRepo,
		secretRepo,
		auditRepo,
		vapiClient,
		&cfg.Webhook,
		&cfg.Execution,
		appLogger,
	)
	processor := businessflow.NewContactProcessor(
		contactRepo,
		auditRepo,
		vapiClient,
		tokenService,
		&cfg.Webhook,
		&cfg.Execution,
		appLogger,
	)
	errorHandler := businessflow.NewExecutionErrorHandler(campaignRepo, auditRepo, appLogger)
	executionFlow := businessflow.NewExecutionFlow(
		campaignRepo,
		contactRepo,
		attemptRepo,
		auditRepo,
		secretRepo,
		stateManager,
		breaker,
		validationFlow,
		processor,
		errorHandler,
		&cfg.Execution,
		appLogger,
	)
	monitor := businessflow.NewExecutionMonitor(campaignRepo, contactRepo, attemptRepo, breaker)
	webhookFlow := businessflow.NewWebhookFlow(contactRepo, auditRepo, tokenService, dedupService, appLogger)

	// Initialize handlers
	campaignHandler := handlers.NewCampaignHandler(campaignRepo, contactRepo, executionFlow, monitor, importer)
	webhookHandler := handlers.NewWebhookHandler(webhookFlow)

	// Initialize router
	appRouter := router.NewFiberRouter(cfg, campaignHandler, webhookHandler)

	if cfg.Scheduler.Enabled {
		sched := scheduler.NewCampaignScheduler(campaignRepo, executionFlow, cfg.Scheduler, cfg.Logging)
		stopScheduler := sched.Start(context.Background())
		stopFuncs = append(stopFuncs, stopScheduler)
	}

	if rc != nil {
		stopFuncs = append(stopFuncs, func() { _ = rc.Close() })
	}

	// Create application struct from FiberRouter
	fiberRouter := appRouter.(*router.FiberRouter)
	application := &Application{
		router:    fiberRouter,
		config:    cfg,
		server:    fiberRouter.GetApp(),
		stopFuncs: stopFuncs,
	}

	return application, nil
}
