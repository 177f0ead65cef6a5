package stream

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gitrecap/backend/internal/llm"
)

type recordingWriter struct {
	frames []map[string]string
	fail   bool
}

func (w *recordingWriter) WriteJSON(v interface{}) error {
	if w.fail {
		return fmt.Errorf("connection gone")
	}
	w.frames = append(w.frames, v.(map[string]string))
	return nil
}

func chunkChannel(chunks ...llm.Chunk) <-chan llm.Chunk {
	ch := make(chan llm.Chunk, len(chunks))
	for _, c := range chunks {
		ch <- c
	}
	close(ch)
	return ch
}

func TestRelayForwardsTextAndSentinelOnce(t *testing.T) {
	w := &recordingWriter{}
	err := relay(w, chunkChannel(
		llm.Chunk{Kind: llm.ChunkText, Text: "Hello"},
		llm.Chunk{Kind: llm.ChunkText, Text: " world"},
		llm.Chunk{Kind: llm.ChunkEnd, Text: llm.StreamEndToken},
	))
	require.NoError(t, err)

	require.Len(t, w.frames, 3)
	assert.Equal(t, "Hello", w.frames[0]["chunk"])
	assert.Equal(t, " world", w.frames[1]["chunk"])
	assert.Equal(t, llm.StreamEndToken, w.frames[2]["chunk"])
}

func TestRelayFiltersControlTokens(t *testing.T) {
	w := &recordingWriter{}
	err := relay(w, chunkChannel(
		llm.Chunk{Kind: llm.ChunkControl, Text: "<|im_start|>"},
		llm.Chunk{Kind: llm.ChunkText, Text: "visible"},
		llm.Chunk{Kind: llm.ChunkControl, Text: "<think>"},
		llm.Chunk{Kind: llm.ChunkEnd, Text: llm.StreamEndToken},
	))
	require.NoError(t, err)

	require.Len(t, w.frames, 2)
	assert.Equal(t, "visible", w.frames[0]["chunk"])
}

func TestRelayReportsStreamError(t *testing.T) {
	w := &recordingWriter{}
	err := relay(w, chunkChannel(
		llm.Chunk{Kind: llm.ChunkText, Text: "partial"},
		llm.Chunk{Kind: llm.ChunkError, Text: "upstream failed"},
	))
	require.NoError(t, err)

	require.Len(t, w.frames, 2)
	assert.Equal(t, "upstream failed", w.frames[1]["error"])
}

func TestRelayStopsOnWriteFailure(t *testing.T) {
	w := &recordingWriter{fail: true}
	err := relay(w, chunkChannel(llm.Chunk{Kind: llm.ChunkText, Text: "x"}))
	assert.Error(t, err)
}

func TestValidateRejectsOversizedN(t *testing.T) {
	req := StreamRequest{Actions: "did things", N: 16}
	assert.Error(t, req.validate(ModeRecap))

	req.N = 15
	assert.NoError(t, req.validate(ModeRecap))
}

func TestValidateRequiresContentPerMode(t *testing.T) {
	assert.Error(t, StreamRequest{N: 3}.validate(ModeRecap))
	assert.Error(t, StreamRequest{Actions: "x"}.validate(ModePullRequest))
	assert.NoError(t, StreamRequest{Commits: "x"}.validate(ModePullRequest))
	assert.NoError(t, StreamRequest{Actions: "x"}.validate(ModeRelease))
}

func TestValidateDefaultsN(t *testing.T) {
	req := StreamRequest{Actions: "x"}
	assert.NoError(t, req.validate(ModeRecap))
	assert.Equal(t, defaultN, req.n())
}

func TestValidMode(t *testing.T) {
	assert.True(t, ValidMode(ModeRecap))
	assert.True(t, ValidMode(ModeRelease))
	assert.True(t, ValidMode(ModePullRequest))
	assert.False(t, ValidMode("poetry"))
}

func TestBuildPromptUsesBranchesInPullRequestMode(t *testing.T) {
	messages, system := buildPrompt(ModePullRequest, StreamRequest{
		Commits: "abc fix things",
		Src:     "feature/x",
		Target:  "main",
	})
	require.Len(t, messages, 1)
	require.Len(t, system, 1)
	assert.Contains(t, messages[0], "feature/x")
	assert.Contains(t, messages[0], "main")
	assert.Contains(t, messages[0], "abc fix things")
}
