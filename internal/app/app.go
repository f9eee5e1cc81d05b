package app

import (
	"portalgate/internal/handlers"
	u "portalgate/internal/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/redis/go-redis/v9"
)

// SetupApp creates and configures a new Fiber app instance
func SetupApp(cfg u.Config, redis *redis.Client) *fiber.App {
	app := fiber.New(fiber.Config{
		Prefork:               cfg.Server.Prefork,
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			msg := "Internal Server Error"

			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
				msg = e.Message
			}

			u.Warn("Request failed", "path", c.Path(), "status", code, "message", msg)

			return c.Status(code).JSON(fiber.Map{
				"error": fiber.Map{
					"code":    code,
					"message": msg,
				},
			})
		},
	})

	RegisterMiddleware(app, cfg)
	RegisterRoutes(app, cfg, redis)

	// Ensure all responses, including 404s, return JSON
	app.Use(func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusNotFound, "Not Found")
	})

	return app
}

// RegisterRoutes mounts all route handlers to the app
func RegisterRoutes(app *fiber.App, cfg u.Config, redis *redis.Client) {
	v1 := app.Group("/v1")

	// One shared service instance so every open goes through the same
	// browser pool and counters.
	svc := handlers.NewPortalService(cfg, redis)

	v1.Post("/portal", svc.HandleOpen)
	v1.Get("/portal/stats", svc.HandleStats)

	v1.Get("/monitor", monitor.New())
}
