package llm

import (
	"context"
	"encoding/json"
	"os"

	"github.com/m4xw311/parley/errors"
	"github.com/m4xw311/parley/session"
	"github.com/m4xw311/parley/tools"
	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// OpenAIClient is a streaming client for the OpenAI Chat Completion API.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient creates a new OpenAIClient. It requires the
// OPENAI_API_KEY environment variable to be set and supports
// OPENAI_BASE_URL for custom API endpoints.
func NewOpenAIClient(ctx context.Context, modelName string) (*OpenAIClient, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, errors.New("OPENAI_API_KEY environment variable not set")
	}

	options := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}

	// The v2 SDK uses functional options for configuration.
	c := openai.NewClient(options...)
	return &OpenAIClient{client: &c, model: modelName}, nil
}

// ChatStream streams a chat request to OpenAI, forwarding content deltas
// and accumulating tool calls for the Done chunk.
func (o *OpenAIClient) ChatStream(ctx context.Context, messages []session.Message, availableTools []tools.Tool, systemPrompt string, onChunk func(Chunk)) error {
	chatMessages := convertMessagesToOpenAIContent(messages, systemPrompt)

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(o.model),
		Messages: chatMessages,
		Tools:    convertToolsToOpenAITools(availableTools),
	}

	stream := o.client.Chat.Completions.NewStreaming(ctx, params)
	acc := openai.ChatCompletionAccumulator{}
	for stream.Next() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		chunk := stream.Current()
		acc.AddChunk(chunk)
		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			onChunk(Chunk{TextDelta: chunk.Choices[0].Delta.Content})
		}
	}
	if err := stream.Err(); err != nil {
		return errors.Wrapf(err, "OpenAI stream failed")
	}

	var toolCalls []session.ToolCall
	if len(acc.Choices) > 0 {
		for _, tc := range acc.Choices[0].Message.ToolCalls {
			var args map[string]interface{}
			// Arguments are a JSON string; we expect a flat map.
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				return errors.Wrapf(err, "failed to unmarshal function call arguments from OpenAI")
			}
			toolCalls = append(toolCalls, session.ToolCall{
				ToolCallID: tc.ID,
				Name:       tc.Function.Name,
				Args:       args,
			})
		}
	}

	onChunk(Chunk{ToolCalls: toolCalls, Done: true})
	return nil
}

// convertMessagesToOpenAIContent converts our internal message format to
// OpenAI's. The system prompt leads the conversation as a system message.
func convertMessagesToOpenAIContent(messages []session.Message, systemPrompt string) []openai.ChatCompletionMessageParamUnion {
	var chatMessages []openai.ChatCompletionMessageParamUnion
	if systemPrompt != "" {
		chatMessages = append(chatMessages, openai.SystemMessage(systemPrompt))
	}
	for _, msg := range messages {
		text := msg.Text()
		if text == "" {
			continue
		}
		switch msg.Role {
		case session.RoleAssistant:
			chatMessages = append(chatMessages, openai.AssistantMessage(text))
		case session.RoleSystem:
			chatMessages = append(chatMessages, openai.SystemMessage(text))
		default:
			chatMessages = append(chatMessages, openai.UserMessage(text))
		}
	}
	return chatMessages
}

// convertToolsToOpenAITools converts our Tool interface to the OpenAI
// function-tool format.
func convertToolsToOpenAITools(ts []tools.Tool) []openai.ChatCompletionToolUnionParam {
	if len(ts) == 0 {
		return nil
	}
	var openAITools []openai.ChatCompletionToolUnionParam
	for _, t := range ts {
		params := openai.FunctionParameters{
			"type":       "object",
			"properties": t.Schema(),
		}
		openAITools = append(openAITools, openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        t.Name(),
			Description: openai.String(t.Description()),
			Parameters:  params,
		}))
	}
	return openAITools
}
