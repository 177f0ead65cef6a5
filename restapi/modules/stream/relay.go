package stream

import (
	"fmt"

	"github.com/gitrecap/backend/internal/llm"
)

// maxN caps how many bullet points or paragraphs a client may request.
const maxN = 15

const defaultN = 5

// StreamRequest is one inbound frame on the websocket. Recap and release
// modes consume Actions; pull request mode consumes Commits.
type StreamRequest struct {
	Actions string `json:"actions"`
	Commits string `json:"commits"`
	N       int    `json:"n"`
	Src     string `json:"src"`
	Target  string `json:"target"`
}

func (r StreamRequest) n() int {
	if r.N <= 0 {
		return defaultN
	}
	return r.N
}

func (r StreamRequest) content(mode string) string {
	if mode == ModePullRequest {
		return r.Commits
	}
	return r.Actions
}

// validate rejects a frame without terminating the connection; the caller
// reports the error and keeps reading.
func (r StreamRequest) validate(mode string) error {
	if r.N > maxN {
		return fmt.Errorf("n must be at most %d", maxN)
	}
	if r.content(mode) == "" {
		if mode == ModePullRequest {
			return fmt.Errorf("commits must not be empty")
		}
		return fmt.Errorf("actions must not be empty")
	}
	return nil
}

// frameWriter is the slice of the websocket connection the relay needs.
type frameWriter interface {
	WriteJSON(v interface{}) error
}

// relay forwards chunks from the engine to the client. Text chunks become
// {"chunk": ...} frames, control chunks are dropped, the end sentinel is
// forwarded exactly once, and a stream error becomes an {"error": ...} frame.
// The returned error is non-nil only when the connection write fails.
func relay(w frameWriter, ch <-chan llm.Chunk) error {
	for chunk := range ch {
		switch chunk.Kind {
		case llm.ChunkControl:
			continue
		case llm.ChunkError:
			return w.WriteJSON(map[string]string{"error": chunk.Text})
		case llm.ChunkEnd:
			return w.WriteJSON(map[string]string{"chunk": llm.StreamEndToken})
		default:
			if err := w.WriteJSON(map[string]string{"chunk": chunk.Text}); err != nil {
				return err
			}
		}
	}
	return nil
}
