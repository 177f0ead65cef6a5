// Package sessions implements the REST API handlers for session lifecycle:
// creating a session and binding a provider fetcher to it.
package sessions

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/gitrecap/backend/model"
	"github.com/gitrecap/backend/providers"
	"github.com/gitrecap/backend/session"
	"github.com/gitrecap/backend/util"
)

// CreateLLMSession handles POST requests that open a new session. The body is
// optional; when present it overrides the default LLM configuration.
func CreateLLMSession(reg *session.Registry) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req CreateSessionRequest
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&req); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"success": false,
					"message": "Invalid request body: " + err.Error(),
				})
			}
		}

		id, err := reg.Create(req.LLM)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"success": false,
				"message": err.Error(),
			})
		}
		return c.JSON(fiber.Map{
			"success":    true,
			"session_id": id,
		})
	}
}

// BindFetcher handles POST requests that construct a provider fetcher and
// attach it to a session. The response lists the repositories reachable with
// the bound credential.
func BindFetcher(reg *session.Registry) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req BindFetcherRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"message": "Invalid request body: " + err.Error(),
			})
		}
		if req.SessionID == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"message": "session_id is required",
			})
		}

		window, err := windowFromRequest(req)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"message": err.Error(),
			})
		}

		ctx := c.UserContext()
		fetcher, err := providers.New(ctx, providers.Kind(req.Provider), providers.Options{
			PAT:    req.PAT,
			URL:    req.URL,
			Window: window,
		})
		if err != nil {
			var unavailable *model.RepositoryUnavailableError
			if errors.As(err, &unavailable) {
				return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
					"success": false,
					"message": err.Error(),
				})
			}
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"message": err.Error(),
			})
		}

		if err := reg.BindFetcher(req.SessionID, fetcher); err != nil {
			fetcher.Close()
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"success": false,
				"message": err.Error(),
			})
		}

		repos, err := fetcher.RepoNames(ctx)
		if err != nil {
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
				"success": false,
				"message": "Failed to list repositories: " + err.Error(),
			})
		}
		return c.JSON(fiber.Map{
			"success": true,
			"repos":   repos,
		})
	}
}

func windowFromRequest(req BindFetcherRequest) (model.FetchWindow, error) {
	start, err := util.ParseDate(req.StartDate)
	if err != nil {
		return model.FetchWindow{}, err
	}
	end, err := util.ParseDate(req.EndDate)
	if err != nil {
		return model.FetchWindow{}, err
	}
	return model.FetchWindow{
		StartDate:  start,
		EndDate:    end,
		RepoFilter: req.RepoFilter,
		Authors:    req.Authors,
	}, nil
}
