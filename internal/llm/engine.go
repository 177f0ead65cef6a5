// Package llm wraps the completion engine behind the narrow interface the
// rest of the backend consumes: a streaming completion call and a token
// counter. Chunks travel over a bounded channel with explicit tags so the
// relay never has to compare raw strings to spot control tokens or the end
// of a stream.
package llm

import "context"

// StreamEndToken is the sentinel forwarded to clients exactly once when a
// stream completes.
const StreamEndToken = "<|stream_end|>"

// ChunkKind tags a chunk flowing from the engine to the relay.
type ChunkKind int

const (
	// ChunkText carries model output destined for the client.
	ChunkText ChunkKind = iota
	// ChunkControl carries a provider control token; never forwarded.
	ChunkControl
	// ChunkEnd marks the end of the stream. Text holds StreamEndToken.
	ChunkEnd
	// ChunkError carries a mid-stream failure. Text holds the message.
	ChunkError
)

// Chunk is one unit of streamed output.
type Chunk struct {
	Kind ChunkKind
	Text string
}

// Engine is the completion engine contract. Implementations must close the
// returned channel after emitting a ChunkEnd or ChunkError.
type Engine interface {
	// Stream drives a completion and delivers chunks over a bounded channel.
	Stream(ctx context.Context, messages []string, systemPrompt []string) (<-chan Chunk, error)

	// CountTokens estimates the token cost of text.
	CountTokens(text string) int

	// Close releases any resources held by the engine.
	Close() error
}

// control tokens some providers interleave with output; these are tagged
// ChunkControl and filtered before reaching clients.
var controlTokens = map[string]struct{}{
	"<|im_start|>": {},
	"<|im_end|>":   {},
	"<think>":      {},
	"</think>":     {},
}

// IsControlToken reports whether text is a designated control token.
func IsControlToken(text string) bool {
	_, ok := controlTokens[text]
	return ok
}
