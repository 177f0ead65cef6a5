package activity

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitrecap/backend/internal/config"
	"github.com/gitrecap/backend/internal/llm"
	"github.com/gitrecap/backend/model"
	"github.com/gitrecap/backend/providers"
	"github.com/gitrecap/backend/session"
)

type stubEngine struct{}

func (stubEngine) Stream(context.Context, []string, []string) (<-chan llm.Chunk, error) {
	ch := make(chan llm.Chunk)
	close(ch)
	return ch, nil
}

func (stubEngine) CountTokens(text string) int { return len(text) }

func (stubEngine) Close() error { return nil }

// overlapFetcher records whether two fetches ever ran at the same time.
type overlapFetcher struct {
	providers.Fetcher

	window   model.FetchWindow
	inFlight int32
	overlaps int32
}

func (f *overlapFetcher) Window() *model.FetchWindow    { return &f.window }
func (f *overlapFetcher) SetWindow(w model.FetchWindow) { f.window = w }

func (f *overlapFetcher) Close() error { return nil }

func (f *overlapFetcher) FetchPullRequests(context.Context) ([]model.ActivityEntry, error) {
	return nil, nil
}

func (f *overlapFetcher) FetchCommits(context.Context) ([]model.ActivityEntry, error) {
	if atomic.AddInt32(&f.inFlight, 1) > 1 {
		atomic.AddInt32(&f.overlaps, 1)
	}
	time.Sleep(5 * time.Millisecond)
	atomic.AddInt32(&f.inFlight, -1)
	return nil, nil
}

func (f *overlapFetcher) FetchIssues(context.Context) ([]model.ActivityEntry, error) {
	return nil, nil
}

func activityApp(t *testing.T) (*fiber.App, *session.Registry, string, *overlapFetcher) {
	t.Helper()
	reg := session.NewRegistry(time.Minute, func(config.LLMConfig) llm.Engine { return stubEngine{} })
	id, err := reg.Create(config.LLMConfig{})
	require.NoError(t, err)

	fetcher := &overlapFetcher{}
	require.NoError(t, reg.BindFetcher(id, fetcher))

	cfg := &config.Config{MaxHistoryTokens: config.DefaultMaxHistoryTokens}
	app := fiber.New()
	app.Get("/activity", GetActivity(reg, cfg))
	return app, reg, id, fetcher
}

func TestGetActivitySerializesConcurrentRequests(t *testing.T) {
	app, _, id, fetcher := activityApp(t)

	// Each request moves the window while another may be mid-fetch. The
	// session lock must keep fetcher use mutually exclusive.
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			target := fmt.Sprintf("/activity?session_id=%s&start=2025-03-%02d", id, i+1)
			req := httptest.NewRequest(http.MethodGet, target, nil)
			resp, err := app.Test(req, 10000)
			if assert.NoError(t, err) {
				assert.Equal(t, http.StatusOK, resp.StatusCode)
				resp.Body.Close()
			}
		}(i)
	}
	wg.Wait()

	assert.Zero(t, atomic.LoadInt32(&fetcher.overlaps), "two requests drove the fetcher at once")
}

func TestGetActivityWithoutBoundFetcher(t *testing.T) {
	reg := session.NewRegistry(time.Minute, func(config.LLMConfig) llm.Engine { return stubEngine{} })
	id, err := reg.Create(config.LLMConfig{})
	require.NoError(t, err)

	cfg := &config.Config{MaxHistoryTokens: config.DefaultMaxHistoryTokens}
	app := fiber.New()
	app.Get("/activity", GetActivity(reg, cfg))

	req := httptest.NewRequest(http.MethodGet, "/activity?session_id="+id, nil)
	resp, err := app.Test(req, 5000)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
