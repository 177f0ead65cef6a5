// package main provides the entry point for the git-recap backend
// microservice: session lifecycle, provider activity aggregation, and the
// websocket relay to the completion engine.
package main

import (
	"github.com/gitrecap/backend/internal/api"
	"github.com/gitrecap/backend/internal/config"
	"github.com/gitrecap/backend/internal/llm"
	"github.com/gitrecap/backend/internal/logging"
	"github.com/gitrecap/backend/session"
)

func main() {
	logger := logging.InitLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Sugar().Fatalf("Failed to load configuration: %v", err)
	}

	reg := session.NewRegistry(cfg.SessionTTL, func(override config.LLMConfig) llm.Engine {
		merged := cfg.LLM
		if override.Model != "" {
			merged.Model = override.Model
		}
		if override.BaseURL != "" {
			merged.BaseURL = override.BaseURL
		}
		if override.APIKey != "" {
			merged.APIKey = override.APIKey
		}
		if override.Temperature > 0 {
			merged.Temperature = override.Temperature
		}
		if override.MaxTokens > 0 {
			merged.MaxTokens = override.MaxTokens
		}
		return llm.NewOpenAIEngine(merged)
	})

	app := api.NewFiberApp(reg, cfg)

	logger.Sugar().Infof("Starting server on port %s", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		logger.Sugar().Fatalf("Failed to start server: %v", err)
	}
}
