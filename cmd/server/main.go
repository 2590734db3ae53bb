package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/postpilot/api/internal/config"
	"github.com/postpilot/api/internal/handler"
	"github.com/postpilot/api/internal/media"
	"github.com/postpilot/api/internal/middleware"
	"github.com/postpilot/api/internal/pipeline"
	"github.com/postpilot/api/internal/provider"
	"github.com/postpilot/api/internal/queue"
	"github.com/postpilot/api/internal/ratelimit"
	"github.com/postpilot/api/internal/scheduler"
	"github.com/postpilot/api/internal/service"
	"github.com/postpilot/api/internal/store"
	"github.com/postpilot/api/internal/worker"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("Warning: Redis not available: %v", err)
	}

	// Initialize Postgres pool (schedule state source of truth)
	dbPool, err := pgxpool.New(ctx, cfg.Postgres.DSN)
	if err != nil {
		log.Fatalf("Failed to create Postgres pool: %v", err)
	}
	defer dbPool.Close()
	if err := dbPool.Ping(ctx); err != nil {
		log.Printf("Warning: Postgres not available: %v", err)
	}

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}

	// Initialize validator
	validate := validator.New()

	// Initialize R2 client (optional - continues if not configured)
	var storage media.Storage
	if cfg.R2.AccessKeyID != "" && cfg.R2.SecretAccessKey != "" {
		r2Client, err := media.NewR2Client(&cfg.R2)
		if err != nil {
			log.Printf("Warning: R2 client not initialized: %v", err)
		} else {
			storage = r2Client
		}
	} else {
		log.Println("Info: R2 storage not configured, media library references will fail")
	}
	resolver := media.NewResolver(storage)

	// Initialize stores
	scheduleStore := store.NewScheduleStore(dbPool)
	channelStore := store.NewChannelStore(redisClient)
	postStore := store.NewPostStore(redisClient)
	resultStore := store.NewResultStore(redisClient)

	// Initialize publishing machinery
	registry := provider.NewRegistry(resolver)
	limiter := ratelimit.New(redisClient, time.Duration(cfg.RateLimit.WindowHours)*time.Hour, cfg.PlatformCaps())
	jobQueue := queue.New(redisOpt)

	publishService := service.NewPublishService(scheduleStore, channelStore, postStore, registry, limiter, resultStore)
	scheduleService := service.NewScheduleService(scheduleStore, channelStore, jobQueue, resultStore)

	publishWorker := worker.NewPublishWorker(scheduleStore, publishService, jobQueue)
	promoter := scheduler.NewPromoter(scheduleStore, jobQueue, cfg.Queue.DueBatchSize)

	pipe := pipeline.New(cfg, redisOpt, jobQueue, promoter, publishWorker)
	if err := pipe.Start(); err != nil {
		log.Fatalf("Failed to start publishing pipeline: %v", err)
	}

	// Initialize handlers
	scheduleHandler := handler.NewScheduleHandler(scheduleService, validate)
	queueHandler := handler.NewQueueHandler(jobQueue, pipe)

	// Initialize middleware
	var apiAuthMiddleware fiber.Handler
	if cfg.Gateway.Enabled {
		// Behind Traefik: auth is handled by ForwardAuth, read X-User-* headers
		log.Println("Info: Gateway mode enabled — using header-based auth")
		apiAuthMiddleware = middleware.GatewayAuthMiddleware()
	} else {
		apiAuthMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
	})

	// Global middleware
	app.Use(recover.New())
	isDebug := strings.EqualFold(cfg.Server.LogLevel, "debug")
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if isDebug {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${body} ${reqHeaders}\n"
		log.Println("Debug logging enabled")
	}
	app.Use(logger.New(logger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Base URL - timestamp
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"timestamp": time.Now().Unix(),
		})
	})

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		health := pipe.HealthCheck(c.Context())
		return c.JSON(fiber.Map{
			"status":   "ok",
			"pipeline": health,
			"services": fiber.Map{
				"redis":    redisClient.Ping(c.Context()).Err() == nil,
				"postgres": dbPool.Ping(c.Context()) == nil,
				"r2":       storage != nil,
			},
		})
	})

	// API routes
	api := app.Group("/api", apiAuthMiddleware)

	// Schedule routes
	schedules := api.Group("/schedules")
	schedules.Post("/", scheduleHandler.Create)
	schedules.Get("/:scheduleId", scheduleHandler.Get)
	schedules.Post("/:scheduleId/cancel", scheduleHandler.Cancel)
	schedules.Post("/:scheduleId/retry", scheduleHandler.Retry)

	// Queue observability routes
	queueGroup := api.Group("/queue")
	queueGroup.Get("/stats", queueHandler.Stats)
	queueGroup.Get("/failed", queueHandler.Failed)
	queueGroup.Get("/health", queueHandler.Health)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		pipe.Stop()
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "SERVICE_ERROR",
			"message": message,
		},
	})
}
