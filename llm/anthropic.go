package llm

import (
	"context"
	"encoding/json"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/m4xw311/parley/errors"
	"github.com/m4xw311/parley/session"
	"github.com/m4xw311/parley/tools"
)

// AnthropicClient is a streaming client for the Anthropic API.
type AnthropicClient struct {
	client *anthropic.Client
	model  string
}

// NewAnthropicClient creates a new AnthropicClient.
// It requires the ANTHROPIC_API_KEY environment variable to be set.
func NewAnthropicClient(ctx context.Context, modelName string) (*AnthropicClient, error) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return nil, errors.New("ANTHROPIC_API_KEY environment variable not set")
	}

	client := anthropic.NewClient(
		option.WithAPIKey(apiKey),
	)

	return &AnthropicClient{
		client: &client,
		model:  modelName,
	}, nil
}

// ChatStream streams a chat request to the Anthropic API, forwarding text
// deltas as they arrive and collecting tool-use blocks for the Done chunk.
func (a *AnthropicClient) ChatStream(ctx context.Context, messages []session.Message, availableTools []tools.Tool, systemPrompt string, onChunk func(Chunk)) error {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: 4096,
		Messages:  convertMessagesToAnthropicMessages(messages),
	}

	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: systemPrompt},
		}
	}
	for _, t := range availableTools {
		params.Tools = append(params.Tools, anthropic.ToolUnionParam{OfTool: &anthropic.ToolParam{
			Name:        t.Name(),
			Description: anthropic.String(t.Description()),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: t.Schema(),
			},
		}})
	}

	stream := a.client.Messages.NewStreaming(ctx, params)
	message := anthropic.Message{}
	for stream.Next() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		event := stream.Current()
		if err := message.Accumulate(event); err != nil {
			return errors.Wrapf(err, "failed to accumulate Anthropic stream event")
		}
		switch eventVariant := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			switch deltaVariant := eventVariant.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				if deltaVariant.Text != "" {
					onChunk(Chunk{TextDelta: deltaVariant.Text})
				}
			}
		}
	}
	if err := stream.Err(); err != nil {
		return errors.Wrapf(err, "Anthropic stream failed")
	}

	var toolCalls []session.ToolCall
	for _, content := range message.Content {
		if block, ok := content.AsAny().(anthropic.ToolUseBlock); ok {
			var args map[string]interface{}
			if err := json.Unmarshal(block.Input, &args); err != nil {
				return errors.Wrapf(err, "failed to unmarshal tool call input for '%s'", block.Name)
			}
			toolCalls = append(toolCalls, session.ToolCall{
				ToolCallID: block.ID,
				Name:       block.Name,
				Args:       args,
			})
		}
	}

	onChunk(Chunk{ToolCalls: toolCalls, Done: true})
	return nil
}

// convertMessagesToAnthropicMessages converts our internal message format
// to Anthropic's. Tool outcomes are already rendered as user-role prose by
// the loop, so history converts to plain text blocks.
func convertMessagesToAnthropicMessages(messages []session.Message) []anthropic.MessageParam {
	var out []anthropic.MessageParam
	for _, msg := range messages {
		text := msg.Text()
		if text == "" {
			continue
		}
		switch msg.Role {
		case session.RoleAssistant:
			out = append(out, anthropic.MessageParam{
				Role: anthropic.MessageParamRoleAssistant,
				Content: []anthropic.ContentBlockParamUnion{{
					OfText: &anthropic.TextBlockParam{Text: text},
				}},
			})
		case session.RoleSystem:
			// System context travels in the request's System field; a
			// stray system message in history is demoted to user text.
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(text)))
		default:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(text)))
		}
	}
	return out
}
