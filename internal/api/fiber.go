package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	fiberrecover "github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/gitrecap/backend/internal/config"
	"github.com/gitrecap/backend/restapi"
	"github.com/gitrecap/backend/session"
)

// NewFiberApp creates and configures a Fiber app with REST and websocket routes
func NewFiberApp(reg *session.Registry, cfg *config.Config) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:     "git-recap API v1.0",
		ReadTimeout: 60 * time.Second,
	})

	// Middleware
	app.Use(fiberrecover.New())
	app.Use(compress.New(compress.Config{Level: compress.LevelBestSpeed}))
	app.Use(cors.New(cors.Config{
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Requested-With",
		AllowMethods: "GET, POST, HEAD, OPTIONS",
	}))
	app.Use(logger.New())

	// Health check endpoint
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "healthy", "sessions": reg.Len()})
	})

	restapi.SetupRoutes(app, reg, cfg)

	return app
}
