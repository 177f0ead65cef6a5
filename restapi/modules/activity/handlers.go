// Package activity implements the REST API handlers for the aggregated
// activity timeline and for release listings.
package activity

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/gitrecap/backend/internal/config"
	"github.com/gitrecap/backend/model"
	"github.com/gitrecap/backend/providers"
	"github.com/gitrecap/backend/session"
	"github.com/gitrecap/backend/util"
)

// GetActivity handles GET requests for the aggregated timeline. Query
// parameters update the fetch window before aggregation; the result is
// trimmed to the configured token budget using the session engine's counter.
func GetActivity(reg *session.Registry, cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sessionID := c.Query("session_id")
		if sessionID == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"message": "session_id is required",
			})
		}

		s, release, err := reg.Acquire(sessionID)
		if err != nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"success": false,
				"message": err.Error(),
			})
		}
		defer release()

		fetcher := s.Fetcher()
		if fetcher == nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"message": "no fetcher bound to this session",
			})
		}

		// The window mutation and the fetch below drive the fetcher in
		// place, so concurrent requests on the same session take turns.
		s.Lock()
		window := *fetcher.Window()
		if err := applyWindowQuery(c, &window); err != nil {
			s.Unlock()
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"message": err.Error(),
			})
		}
		fetcher.SetWindow(window)

		entries, err := providers.AuthoredMessages(c.UserContext(), fetcher)
		s.Unlock()
		if err != nil {
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
				"success": false,
				"message": "Failed to fetch activity: " + err.Error(),
			})
		}

		total := len(entries)
		kept, trimmed := util.TrimEntries(entries, s.Engine().CountTokens, cfg.MaxHistoryTokens)
		return c.JSON(fiber.Map{
			"success":       true,
			"entries":       kept,
			"actions_txt":   util.EntriesToText(kept),
			"total_count":   total,
			"trimmed_count": trimmed,
		})
	}
}

// GetReleases handles GET requests for the latest release of a repository
// plus its n predecessors.
func GetReleases(reg *session.Registry) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sessionID := c.Query("session_id")
		repo := c.Query("repo")
		if sessionID == "" || repo == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"message": "session_id and repo are required",
			})
		}
		n := c.QueryInt("n", 3)
		if n < 0 {
			n = 0
		}

		s, release, err := reg.Acquire(sessionID)
		if err != nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"success": false,
				"message": err.Error(),
			})
		}
		defer release()

		fetcher := s.Fetcher()
		if fetcher == nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"message": "no fetcher bound to this session",
			})
		}
		if !fetcher.Supports(providers.CapReleases) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"success": false,
				"message": "releases are not supported by this provider",
			})
		}

		s.Lock()
		releases, err := fetcher.FetchReleases(c.UserContext(), repo)
		s.Unlock()
		if err != nil {
			if errors.Is(err, model.ErrNotSupported) {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"success": false,
					"message": err.Error(),
				})
			}
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
				"success": false,
				"message": "Failed to fetch releases: " + err.Error(),
			})
		}

		current, previous := SplitReleases(releases, n)
		return c.JSON(fiber.Map{
			"success":           true,
			"repo":              repo,
			"current_release":   current,
			"previous_releases": previous,
		})
	}
}

func applyWindowQuery(c *fiber.Ctx, w *model.FetchWindow) error {
	start, err := util.ParseDate(c.Query("start"))
	if err != nil {
		return err
	}
	if start != nil {
		w.StartDate = start
	}
	end, err := util.ParseDate(c.Query("end"))
	if err != nil {
		return err
	}
	if end != nil {
		w.EndDate = end
	}
	if repos := c.Query("repos"); repos != "" {
		w.RepoFilter = splitList(repos)
	}
	if authors := c.Query("authors"); authors != "" {
		w.Authors = splitList(authors)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
