package llm

import (
	"context"
	"fmt"
	"os"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"github.com/m4xw311/parley/errors"
	"github.com/m4xw311/parley/session"
	"github.com/m4xw311/parley/tools"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GeminiClient is a streaming client for the Google Gemini API. It holds
// no per-request state, so one client may serve concurrent threads.
type GeminiClient struct {
	client    *genai.Client
	modelName string
}

// NewGeminiClient creates a new GeminiClient.
// It requires the GEMINI_API_KEY environment variable to be set.
func NewGeminiClient(ctx context.Context, modelName string) (*GeminiClient, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return nil, errors.New("GEMINI_API_KEY environment variable not set")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create genai client")
	}

	return &GeminiClient{
		client:    client,
		modelName: modelName,
	}, nil
}

// ChatStream streams a chat request to the Gemini API.
func (g *GeminiClient) ChatStream(ctx context.Context, messages []session.Message, availableTools []tools.Tool, systemPrompt string, onChunk func(Chunk)) error {
	history := convertMessagesToGeminiContent(messages)
	if len(history) == 0 {
		return errors.New("no messages to send to Gemini")
	}

	// Tools and the system instruction are request state; configure a
	// fresh model per call rather than mutating a shared one.
	model := g.client.GenerativeModel(g.modelName)
	model.Tools = convertToolsToGeminiTools(availableTools)
	if systemPrompt != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(systemPrompt)},
		}
	}

	// The last message is the new prompt.
	lastMessage := history[len(history)-1]
	chatSession := model.StartChat()
	chatSession.History = history[:len(history)-1]

	var toolCalls []session.ToolCall
	iter := chatSession.SendMessageStream(ctx, lastMessage.Parts...)
	for {
		resp, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return errors.Wrapf(err, "Gemini stream failed")
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
			continue
		}
		for _, part := range resp.Candidates[0].Content.Parts {
			switch v := part.(type) {
			case genai.Text:
				if v != "" {
					onChunk(Chunk{TextDelta: string(v)})
				}
			case genai.FunctionCall:
				// Arguments are nested under "args" per the declared
				// schema; tolerate models that pass them flat.
				args := v.Args
				if nested, ok := v.Args["args"].(map[string]interface{}); ok {
					args = nested
				}
				toolCalls = append(toolCalls, session.ToolCall{
					ToolCallID: fmt.Sprintf("gemini_%s", uuid.NewString()),
					Name:       v.Name,
					Args:       args,
				})
			}
		}
	}

	onChunk(Chunk{ToolCalls: toolCalls, Done: true})
	return nil
}

// convertMessagesToGeminiContent converts our internal message format to Gemini's.
func convertMessagesToGeminiContent(messages []session.Message) []*genai.Content {
	var contents []*genai.Content
	for _, msg := range messages {
		text := msg.Text()
		if text == "" {
			continue
		}
		role := "user"
		if msg.Role == session.RoleAssistant {
			role = "model"
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(text)},
		})
	}
	return contents
}

// convertToolsToGeminiTools converts our Tool interface to Gemini's
// FunctionDeclaration format. Gemini's schema type is a struct tree, not
// free-form JSON, so tool arguments are declared as a single nested
// object parameter and unwrapped when the call comes back.
func convertToolsToGeminiTools(ts []tools.Tool) []*genai.Tool {
	if len(ts) == 0 {
		return nil
	}
	var funcDecls []*genai.FunctionDeclaration
	for _, t := range ts {
		funcDecls = append(funcDecls, &genai.FunctionDeclaration{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"args": {
						Type:        genai.TypeObject,
						Description: "Arguments for the function call, as a map.",
					},
				},
				Required: []string{"args"},
			},
		})
	}
	return []*genai.Tool{{FunctionDeclarations: funcDecls}}
}
