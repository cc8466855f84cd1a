package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"climb-progression-system/config"
	"climb-progression-system/gamification"
	"climb-progression-system/handlers"
	"climb-progression-system/logger"
	"climb-progression-system/messaging"
	"climb-progression-system/middleware"
	"climb-progression-system/repository"
	"climb-progression-system/services"
	"climb-progression-system/utils"
	"climb-progression-system/workers"

	"github.com/go-co-op/gocron/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	zl, err := logger.New(logger.Config{Level: cfg.LogLevel, Encoding: cfg.LogEncoding})
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, profiles := openStore(cfg, zl)

	events := messaging.EventPublisher(messaging.NoopPublisher{})
	if cfg.RabbitMQURL != "" {
		conn, err := amqp.Dial(cfg.RabbitMQURL)
		if err != nil {
			zl.Fatal("failed to connect to RabbitMQ", zap.Error(err))
		}
		defer conn.Close()
		events, err = messaging.NewRabbitMQPublisher(conn, cfg.EventsExchange, zl)
		if err != nil {
			zl.Fatal("failed to set up event publisher", zap.Error(err))
		}
		zl.Info("✅ Publishing progression events", zap.String("exchange", cfg.EventsExchange))
	}

	advice := services.AdviceGenerator(services.NoopAdviceGenerator{})
	if cfg.OpenAIAPIKey != "" {
		advice = services.NewOpenAIAdviceGenerator(services.OpenAIConfig{
			APIKey:     cfg.OpenAIAPIKey,
			BaseURL:    cfg.OpenAIBaseURL,
			Model:      cfg.OpenAIModel,
			Timeout:    cfg.AdviceTimeout,
			HTTPClient: utils.HTTPClient,
		}, zl)
		zl.Info("✅ Quest advice enabled", zap.String("model", cfg.OpenAIModel))
	}

	achievements := services.NewAchievementService(store, gamification.NewAchievementCatalog(), events, zl)
	relics := services.NewRelicService(store, gamification.NewRelicCatalog(), nil, events, zl)
	progression := services.NewProgressionService(store, events, zl)
	quests := services.NewQuestService(store, gamification.NewQuestCatalog(), advice, achievements, events, nil, zl)
	sessions := services.NewSessionService(store, achievements, events, zl)
	engine := services.NewEngine(store, achievements, relics, events, zl)

	if cfg.SchedulerEnabled {
		opts := services.SchedulerOptions{DailyAt: cfg.DailyGenerationAt}
		if cfg.RedisURL != "" {
			opts.Locker = newRedisLocker(ctx, cfg.RedisURL, zl)
		}
		scheduler, err := quests.StartQuestScheduler(opts)
		if err != nil {
			zl.Fatal("failed to start quest scheduler", zap.Error(err))
		}
		defer func(s gocron.Scheduler) { _ = s.Shutdown() }(scheduler)
		zl.Info("✅ Quest scheduler running", zap.String("daily_at_utc", cfg.DailyGenerationAt))
	}

	if cfg.ProfileSyncURL != "" {
		workers.NewProfileSyncWorker(profiles, cfg.ProfileSyncURL, cfg.ProfileSyncPath, cfg.GameServiceToken, cfg.ProfileSyncInterval, zl).Start(ctx)
	}

	app := fiber.New(fiber.Config{
		BodyLimit:    1 * 1024 * 1024,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOriginsString(),
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, X-User-ID, X-User-Roles",
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// 🔐 GLOBAL: only Gateway requests allowed, probes excepted
	app.Use(middleware.GatewayAuthMiddleware(cfg.GameServiceToken, zl, "/healthz", "/metrics"))

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	app.Get("/healthz", func(c *fiber.Ctx) error {
		if p, ok := store.(repository.Pinger); ok {
			if err := p.Ping(c.UserContext()); err != nil {
				return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unhealthy", "cause": err.Error()})
			}
		}
		return c.JSON(fiber.Map{"status": "ok"})
	})

	handlers.SetupRoutes(app, handlers.Deps{
		Progression:  progression,
		Quests:       quests,
		Sessions:     sessions,
		Engine:       engine,
		Achievements: achievements,
		Relics:       relics,
		Logger:       zl,
	})

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			zl.Error("server error", zap.Error(err))
		}
	}()

	zl.Info("✅ Server running", zap.String("port", cfg.Port), zap.String("store", cfg.StoreDriver))
	zl.Info("✅ CORS configured", zap.Strings("origins", cfg.AllowedOrigins))

	<-ctx.Done()
	zl.Info("Shutting down server...")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		zl.Error("shutdown error", zap.Error(err))
	}
}

func openStore(cfg *config.Config, zl *zap.Logger) (repository.Store, repository.ProfileStore) {
	if cfg.StoreDriver == "memory" {
		zl.Warn("⚠️  Using in-memory store, progress is lost on restart")
		s := repository.NewMemoryStore()
		return s, s
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{TranslateError: true})
	if err != nil {
		zl.Fatal("failed to connect to database", zap.Error(err))
	}
	s := repository.NewGormStore(db)
	if err := s.AutoMigrate(); err != nil {
		zl.Fatal("failed to migrate database", zap.Error(err))
	}
	return s, s
}

func newRedisLocker(ctx context.Context, url string, zl *zap.Logger) gocron.Locker {
	opts, err := redis.ParseURL(url)
	if err != nil {
		zl.Fatal("invalid REDIS_URL", zap.Error(err))
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		zl.Fatal("failed to connect to Redis", zap.Error(err))
	}
	return repository.NewRedisLocker(client, "climb-progression:jobs:", time.Minute)
}
