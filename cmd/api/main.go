package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/social-go-api/internal/config"
	"github.com/noah-isme/social-go-api/internal/database"
	"github.com/noah-isme/social-go-api/internal/handler"
	"github.com/noah-isme/social-go-api/internal/middleware"
	"github.com/noah-isme/social-go-api/internal/models"
	"github.com/noah-isme/social-go-api/internal/repository"
	"github.com/noah-isme/social-go-api/internal/router"
	"github.com/noah-isme/social-go-api/internal/service"
	cloud "github.com/noah-isme/social-go-api/pkg/cloudinary"
)

func main() {
	bootLogger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	cfg, err := config.Load()
	if err != nil {
		bootLogger.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger := newLogger(os.Stdout, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mongoClient, mongoDB, err := database.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to mongo")
	}
	if err := database.EnsureMongoIndexes(ctx, mongoDB); err != nil {
		logger.Fatal().Err(err).Msg("failed to create mongo indexes")
	}

	db, err := database.ConnectPostgres(cfg.DatabaseURL, database.PostgresPool{
		MaxOpen:     cfg.DatabaseMaxOpenConns,
		MaxIdle:     cfg.DatabaseMaxIdleConns,
		MaxLifetime: cfg.DatabaseConnLifetime,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := db.AutoMigrate(&models.User{}); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}

	redisClient, err := database.ConnectRedis(ctx, cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()

	natsConn, err := database.ConnectNATS(cfg.NATSURL, cfg.AppName)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to nats")
	}
	if natsConn != nil {
		defer natsConn.Drain()
	}

	var storage service.FileStorage
	if cfg.CloudinaryEnabled() {
		uploader, err := cloud.New(cloud.Config{
			CloudName: cfg.CloudinaryCloudName,
			APIKey:    cfg.CloudinaryAPIKey,
			APISecret: cfg.CloudinaryAPISecret,
			Folder:    cfg.CloudinaryUploadFolder,
		}, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create cloudinary client")
		}
		storage = uploader
	} else {
		logger.Warn().Msg("cloudinary not configured; image uploads are disabled")
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	userRepo := repository.NewUserRepository(db)
	postRepo := repository.NewPostRepository(mongoDB)
	notificationRepo := repository.NewNotificationRepository(mongoDB)
	conversationRepo := repository.NewConversationRepository(mongoDB)
	groupRepo := repository.NewGroupRepository(mongoDB)

	userService := service.NewUserService(userRepo, redisClient, cfg.UserCacheTTL, validate, logger)
	notificationService := service.NewNotificationService(notificationRepo, userService, redisClient, cfg.RealtimeChannel, natsConn, cfg.NotificationDedup, validate, logger)
	realtimeService := service.NewRealtimeService(conversationRepo, groupRepo, redisClient, cfg.RealtimeChannel, natsConn, logger)
	mediaService := service.NewMediaService(storage, cfg.UploadMaxMB, logger)
	postService := service.NewPostService(postRepo, userService, notificationService, mediaService, validate, logger)
	conversationService := service.NewConversationService(conversationRepo, userService, notificationService, realtimeService, mediaService, validate, logger)
	groupService := service.NewGroupService(groupRepo, userService, notificationService, realtimeService, mediaService, validate, logger)

	notificationService.Start(ctx)
	realtimeService.Start(ctx)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    (cfg.UploadMaxMB + 1) * 1024 * 1024,
		ReadTimeout:  cfg.RequestTimeout,
	})

	middleware.Register(app, middleware.Config{Logger: &logger, AllowOrigins: cfg.CORSOrigins})
	router.Register(app, cfg, router.Dependencies{
		PostHandler:         handler.NewPostHandler(postService, logger),
		UserHandler:         handler.NewUserHandler(userService, logger),
		NotificationHandler: handler.NewNotificationHandler(notificationService, logger, cfg.SSEKeepAlive),
		ConversationHandler: handler.NewConversationHandler(conversationService, logger),
		GroupHandler:        handler.NewGroupHandler(groupService, logger),
		RealtimeHandler:     handler.NewRealtimeHandler(realtimeService, logger),
		JWTMiddleware:       middleware.JWTProtected(cfg.JWTSecret),
		HealthProbes:        []handler.HealthProbe{
			{Name: "mongo", Check: func(ctx context.Context) error { return mongoClient.Ping(ctx, nil) }},
			{Name: "redis", Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }},
		},
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	waitForShutdown(app, logger)
	cancel()

	disconnectCtx, disconnectCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer disconnectCancel()
	if err := mongoClient.Disconnect(disconnectCtx); err != nil {
		logger.Warn().Err(err).Msg("mongo disconnect failed")
	}
}

func waitForShutdown(app *fiber.App, logger zerolog.Logger) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	logger.Info().Msg("server stopped")
}

// newLogger falls back to info when the configured level does not parse.
func newLogger(w io.Writer, cfg config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(level).With().Timestamp().Str("service", cfg.AppName).Logger()
}
