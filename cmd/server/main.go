package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/clipgen/api/internal/admission"
	"github.com/clipgen/api/internal/auth"
	"github.com/clipgen/api/internal/client"
	"github.com/clipgen/api/internal/config"
	"github.com/clipgen/api/internal/detector"
	"github.com/clipgen/api/internal/handler"
	"github.com/clipgen/api/internal/middleware"
	"github.com/clipgen/api/internal/notify"
	"github.com/clipgen/api/internal/registry"
	"github.com/clipgen/api/internal/service"
	"github.com/clipgen/api/internal/store"
	"github.com/clipgen/api/internal/ticket"
	"github.com/clipgen/api/internal/worker"
	ws "github.com/clipgen/api/internal/websocket"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("Warning: Redis not available: %v", err)
	}

	// Initialize Asynq client
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer asynqClient.Close()

	// Initialize validator
	validate := validator.New()

	// Shared queue state: counters, job records, connection registry
	counter := ticket.NewRedisCounter(redisClient, cfg.Queue.CounterRetries, cfg.Queue.CounterBackoff)
	jobStore := store.NewRedisStore(redisClient, cfg.Queue.JobRetention)
	connRegistry := registry.NewRedisRegistry(redisClient, cfg.Queue.ConnectionTTL)

	// WebSocket hub doubles as the delivery transport
	hub := ws.NewHub(connRegistry, cfg.Queue.ConnectionTTL)
	go hub.Run()

	dispatcher := notify.NewDispatcher(connRegistry, hub,
		cfg.Queue.FanoutBatchSize, cfg.Queue.FanoutConcurrency, cfg.Queue.DeliveryTimeout)

	// Status change detector fed by the job store's change feed
	guard := detector.NewRedisGuard(redisClient, cfg.Queue.GuardTTL)
	changeDetector := detector.NewDetector(counter, guard, dispatcher)

	feedCtx, stopFeed := context.WithCancel(ctx)
	defer stopFeed()
	feed, err := jobStore.SubscribeChanges(feedCtx)
	if err != nil {
		log.Fatalf("Failed to subscribe to change feed: %v", err)
	}
	go changeDetector.Run(feedCtx, feed)

	// External collaborators
	var mediaStore client.MediaStore
	if s3Store, err := client.NewS3MediaStore(&cfg.Media); err != nil {
		log.Printf("Media storage not configured, using mock URLs: %v", err)
	} else {
		mediaStore = s3Store
	}
	inferenceClient := client.NewInferenceClient(cfg.Inference.BaseURL, cfg.Inference.Timeout)

	// Initialize services
	enqueuer := worker.NewEnqueuer(asynqClient)
	admissionService := admission.NewService(counter, jobStore, enqueuer)
	videoService := service.NewVideoService(jobStore, counter, mediaStore, cfg.Media.SignedURLExpiry)

	// Initialize handlers
	videoHandler := handler.NewVideoHandler(admissionService, videoService, validate)

	// Token verification: JWKS when an OIDC issuer is configured, HMAC otherwise
	var verifier auth.TokenVerifier
	if cfg.OIDC.Issuer != "" {
		verifier, err = auth.NewJWKSVerifier(&cfg.OIDC)
		if err != nil {
			log.Fatalf("Failed to initialize JWKS verifier: %v", err)
		}
	} else {
		verifier = auth.NewHMACVerifier(cfg.JWT.Secret)
	}
	defer verifier.Close()

	authMiddleware := middleware.NewAuthMiddleware(verifier)
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// API routes
	api := app.Group("/api", authMiddleware.Authenticate())

	videos := api.Group("/videos")
	videos.Post("/generate", rateLimiter.GenerateLimit(cfg.RateLimit.GeneratePerHour), videoHandler.Generate)
	videos.Get("/status/:jobId", videoHandler.Status)
	videos.Get("/result/:jobId", videoHandler.Result)

	api.Get("/queue", videoHandler.Queue)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/jobs/:jobId", authMiddleware.AuthenticateQuery("token"), websocket.New(func(c *websocket.Conn) {
		jobID := c.Params("jobId")
		ownerID, _ := c.Locals("userId").(string)
		hub.HandleConnection(c, ownerID, jobID)
	}))

	// Start Asynq worker server
	go startWorkerServer(cfg, jobStore, inferenceClient, mediaStore)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		stopFeed()
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

func startWorkerServer(cfg *config.Config, jobStore store.Store, inferenceClient *client.InferenceClient, mediaStore client.MediaStore) {
	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: 4,
			Queues: map[string]int{
				worker.QueueVideo: 10,
			},
		},
	)

	generateWorker := worker.NewGenerateWorker(jobStore, inferenceClient, mediaStore)

	mux := asynq.NewServeMux()
	mux.HandleFunc(worker.TaskTypeGenerate, generateWorker.ProcessTask)

	if err := srv.Run(mux); err != nil {
		log.Printf("Asynq worker error: %v", err)
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
