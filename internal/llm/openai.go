package llm

import (
	"context"
	"errors"
	"io"

	openai "github.com/sashabaranov/go-openai"

	"github.com/gitrecap/backend/internal/config"
	"github.com/gitrecap/backend/internal/logging"
)

var logger = logging.InitLogger()

// chunkBuffer bounds the channel between the engine-driving task and the
// connection-writing task so a slow client applies backpressure instead of
// growing memory.
const chunkBuffer = 32

const defaultModel = openai.GPT4oMini

// OpenAIEngine implements Engine on any OpenAI-compatible completion API.
type OpenAIEngine struct {
	client *openai.Client
	model  string
	cfg    config.LLMConfig
}

// NewOpenAIEngine builds an engine from the given LLM configuration.
func NewOpenAIEngine(cfg config.LLMConfig) *OpenAIEngine {
	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	return &OpenAIEngine{
		client: openai.NewClientWithConfig(apiCfg),
		model:  model,
		cfg:    cfg,
	}
}

// Stream drives a streaming chat completion. The pump goroutine owns the
// returned channel and always closes it after a terminal chunk.
func (e *OpenAIEngine) Stream(ctx context.Context, messages []string, systemPrompt []string) (<-chan Chunk, error) {
	req := openai.ChatCompletionRequest{
		Model:  e.model,
		Stream: true,
	}
	if e.cfg.Temperature > 0 {
		req.Temperature = e.cfg.Temperature
	}
	if e.cfg.MaxTokens > 0 {
		req.MaxTokens = e.cfg.MaxTokens
	}
	for _, sys := range systemPrompt {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: sys,
		})
	}
	for _, msg := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: msg,
		})
	}

	stream, err := e.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, err
	}

	out := make(chan Chunk, chunkBuffer)
	go func() {
		defer close(out)
		defer stream.Close()
		// Every send races ctx so cancelling the stream always unblocks the
		// pump, even when the consumer stopped reading mid-stream.
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				select {
				case out <- Chunk{Kind: ChunkEnd, Text: StreamEndToken}:
				case <-ctx.Done():
				}
				return
			}
			if err != nil {
				logger.Sugar().Warnf("completion stream failed: %v", err)
				select {
				case out <- Chunk{Kind: ChunkError, Text: err.Error()}:
				case <-ctx.Done():
				}
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			delta := resp.Choices[0].Delta.Content
			if delta == "" {
				continue
			}
			kind := ChunkText
			if IsControlToken(delta) {
				kind = ChunkControl
			}
			select {
			case out <- Chunk{Kind: kind, Text: delta}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// CountTokens estimates token usage at roughly four characters per token,
// which tracks the tokenizers of the supported completion APIs closely
// enough for budget trimming.
func (e *OpenAIEngine) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	n := len(text) / 4
	if n < 1 {
		n = 1
	}
	return n
}

// Close releases engine resources. The underlying HTTP client needs no
// explicit teardown.
func (e *OpenAIEngine) Close() error {
	return nil
}
