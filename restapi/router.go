// Package restapi provides the main router for REST API and websocket endpoints.
package restapi

import (
	"github.com/gofiber/fiber/v2"

	"github.com/gitrecap/backend/internal/config"
	"github.com/gitrecap/backend/restapi/modules/activity"
	"github.com/gitrecap/backend/restapi/modules/sessions"
	"github.com/gitrecap/backend/restapi/modules/stream"
	"github.com/gitrecap/backend/session"
)

// SetupRoutes configures all REST API routes and the websocket relay.
func SetupRoutes(app *fiber.App, reg *session.Registry, cfg *config.Config) {
	// API Group /api/v1
	api := app.Group("/api/v1")

	api.Post("/llm", sessions.CreateLLMSession(reg))
	api.Post("/fetcher", sessions.BindFetcher(reg))

	api.Get("/activity", activity.GetActivity(reg, cfg))
	api.Get("/releases", activity.GetReleases(reg))

	// Websocket relay
	app.Use("/ws", stream.UpgradeRequired())
	app.Get("/ws/:session_id/:mode", stream.Handler(reg))
}
