package llm

import (
	"context"
	"strings"

	"github.com/m4xw311/parley/config"
	"github.com/m4xw311/parley/errors"
	"github.com/m4xw311/parley/session"
	"github.com/m4xw311/parley/tools"
)

// Chunk is one streamed fragment of a model response. Text deltas arrive
// as they are generated; structured tool calls are delivered on (or
// before) the final chunk, which has Done set. A successful stream emits
// exactly one Done chunk.
type Chunk struct {
	TextDelta string
	ToolCalls []session.ToolCall
	Done      bool
}

// Client is the interface for interacting with a Large Language Model.
// Implementations honor ctx cancellation at chunk boundaries and surface
// transport failures as the returned error, never through onChunk.
type Client interface {
	ChatStream(ctx context.Context, messages []session.Message, availableTools []tools.Tool, systemPrompt string, onChunk func(Chunk)) error
}

// New builds the client selected by the configuration.
func New(ctx context.Context, cfg *config.Config) (Client, error) {
	switch cfg.Provider {
	case "anthropic":
		return NewAnthropicClient(ctx, cfg.Model)
	case "openai":
		return NewOpenAIClient(ctx, cfg.Model)
	case "gemini":
		return NewGeminiClient(ctx, cfg.Model)
	case "bedrock":
		return NewBedrockClient(ctx, cfg.Model)
	case "":
		return nil, errors.Wrapf(errors.ErrNoProvider, "set 'provider' in config")
	default:
		return nil, errors.Wrapf(errors.ErrNoProvider, "unknown provider '%s'", cfg.Provider)
	}
}

// CompleteText runs a non-interactive completion over a client, collecting
// the streamed text into one string. Used where a whole response is needed
// at once, e.g. history summarization.
func CompleteText(ctx context.Context, c Client, messages []session.Message, systemPrompt string) (string, error) {
	var b strings.Builder
	err := c.ChatStream(ctx, messages, nil, systemPrompt, func(chunk Chunk) {
		b.WriteString(chunk.TextDelta)
	})
	if err != nil {
		return "", err
	}
	return b.String(), nil
}
