package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/social-go-api/internal/config"
	"github.com/noah-isme/social-go-api/internal/handler"
	"github.com/noah-isme/social-go-api/internal/middleware"
	"github.com/noah-isme/social-go-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	PostHandler         *handler.PostHandler
	UserHandler         *handler.UserHandler
	NotificationHandler *handler.NotificationHandler
	ConversationHandler *handler.ConversationHandler
	GroupHandler        *handler.GroupHandler
	RealtimeHandler     *handler.RealtimeHandler
	JWTMiddleware       fiber.Handler
	HealthProbes        []handler.HealthProbe
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.HealthProbes...))

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}
	limit := middleware.RateLimit("api", cfg.RateLimitPerMinute, time.Minute)

	if deps.UserHandler != nil || deps.PostHandler != nil {
		users := api.Group("/users", jwtMiddleware, limit)
		if deps.PostHandler != nil {
			deps.PostHandler.RegisterUserRoutes(users)
		}
		if deps.UserHandler != nil {
			deps.UserHandler.Register(users)
		}
	}

	if deps.PostHandler != nil {
		posts := api.Group("/posts", jwtMiddleware, limit)
		deps.PostHandler.Register(posts)
	}

	if deps.NotificationHandler != nil {
		notifications := api.Group("/notifications", jwtMiddleware)
		deps.NotificationHandler.Register(notifications)
	}

	if deps.ConversationHandler != nil {
		conversations := api.Group("/conversations", jwtMiddleware, limit)
		deps.ConversationHandler.Register(conversations)
	}

	if deps.GroupHandler != nil {
		groups := api.Group("/groups", jwtMiddleware, limit)
		deps.GroupHandler.Register(groups)
	}

	// Realtime rooms
	if deps.RealtimeHandler != nil {
		realtime := api.Group("/realtime", jwtMiddleware)
		deps.RealtimeHandler.Register(realtime)
	}
}
