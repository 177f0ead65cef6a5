package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitrecap/backend/internal/config"
	"github.com/gitrecap/backend/internal/llm"
	"github.com/gitrecap/backend/model"
	"github.com/gitrecap/backend/providers"
)

type fakeEngine struct {
	closed bool
}

func (e *fakeEngine) Stream(context.Context, []string, []string) (<-chan llm.Chunk, error) {
	ch := make(chan llm.Chunk)
	close(ch)
	return ch, nil
}

func (e *fakeEngine) CountTokens(text string) int { return len(text) }

func (e *fakeEngine) Close() error {
	e.closed = true
	return nil
}

type fakeFetcher struct {
	providers.Fetcher
	closed int
}

func (f *fakeFetcher) Close() error {
	f.closed++
	return nil
}

type fakeSocket struct {
	closed bool
}

func (s *fakeSocket) Close() error {
	s.closed = true
	return nil
}

func newTestRegistry(ttl time.Duration) (*Registry, *fakeEngine) {
	engine := &fakeEngine{}
	reg := NewRegistry(ttl, func(config.LLMConfig) llm.Engine { return engine })
	return reg, engine
}

func TestCreateAndAcquire(t *testing.T) {
	reg, _ := newTestRegistry(time.Minute)

	id, err := reg.Create(config.LLMConfig{})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	s, release, err := reg.Acquire(id)
	require.NoError(t, err)
	defer release()

	assert.Equal(t, id, s.ID)
	assert.NotNil(t, s.Engine())
	assert.Nil(t, s.Fetcher())
	assert.Equal(t, 1, reg.Len())
}

func TestAcquireUnknownSession(t *testing.T) {
	reg, _ := newTestRegistry(time.Minute)

	_, _, err := reg.Acquire("no-such-id")
	assert.True(t, errors.Is(err, model.ErrSessionNotFound))
}

func TestSessionExpiresAfterTTL(t *testing.T) {
	reg, engine := newTestRegistry(20 * time.Millisecond)

	id, err := reg.Create(config.LLMConfig{})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, _, err := reg.Acquire(id)
		return errors.Is(err, model.ErrSessionNotFound)
	}, time.Second, 5*time.Millisecond)

	assert.True(t, engine.closed)
	assert.Zero(t, reg.Len())
}

func TestSessionWithTinyTTLStillExpires(t *testing.T) {
	reg, _ := newTestRegistry(time.Nanosecond)

	id, err := reg.Create(config.LLMConfig{})
	require.NoError(t, err)

	// The TTL elapses before Create returns; the session must still be
	// found and removed rather than leaking.
	require.Eventually(t, func() bool {
		return reg.Len() == 0
	}, time.Second, time.Millisecond)

	_, _, err = reg.Acquire(id)
	assert.True(t, errors.Is(err, model.ErrSessionNotFound))
}

func TestExpireCascadesOverResources(t *testing.T) {
	reg, engine := newTestRegistry(time.Minute)

	id, err := reg.Create(config.LLMConfig{})
	require.NoError(t, err)

	fetcher := &fakeFetcher{}
	require.NoError(t, reg.BindFetcher(id, fetcher))
	socket := &fakeSocket{}
	require.NoError(t, reg.AttachSocket(id, socket))

	reg.Expire(id)

	assert.True(t, engine.closed)
	assert.True(t, socket.closed)
	assert.Equal(t, 1, fetcher.closed)
}

func TestExpireIsIdempotent(t *testing.T) {
	reg, _ := newTestRegistry(time.Minute)

	id, err := reg.Create(config.LLMConfig{})
	require.NoError(t, err)

	fetcher := &fakeFetcher{}
	require.NoError(t, reg.BindFetcher(id, fetcher))

	reg.Expire(id)
	reg.Expire(id)
	reg.Expire(id)

	assert.Equal(t, 1, fetcher.closed)
}

func TestFetcherCleanupDeferredWhileAcquired(t *testing.T) {
	reg, _ := newTestRegistry(time.Minute)

	id, err := reg.Create(config.LLMConfig{})
	require.NoError(t, err)

	fetcher := &fakeFetcher{}
	require.NoError(t, reg.BindFetcher(id, fetcher))

	_, release, err := reg.Acquire(id)
	require.NoError(t, err)

	reg.Expire(id)
	assert.Zero(t, fetcher.closed, "fetcher must stay open while a request holds the session")

	release()
	assert.Equal(t, 1, fetcher.closed)

	// A second release must not close again.
	release()
	assert.Equal(t, 1, fetcher.closed)
}

func TestBindFetcherReplacesAndClosesPrevious(t *testing.T) {
	reg, _ := newTestRegistry(time.Minute)

	id, err := reg.Create(config.LLMConfig{})
	require.NoError(t, err)

	first := &fakeFetcher{}
	second := &fakeFetcher{}
	require.NoError(t, reg.BindFetcher(id, first))
	require.NoError(t, reg.BindFetcher(id, second))

	assert.Equal(t, 1, first.closed)
	assert.Zero(t, second.closed)
}

func TestBindFetcherUnknownSession(t *testing.T) {
	reg, _ := newTestRegistry(time.Minute)

	err := reg.BindFetcher("no-such-id", &fakeFetcher{})
	assert.True(t, errors.Is(err, model.ErrSessionNotFound))
}
