package llm

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/m4xw311/parley/errors"
	"github.com/m4xw311/parley/session"
	"github.com/m4xw311/parley/tools"
	"github.com/tidwall/gjson"
)

// BedrockClient is a streaming client for Anthropic models on AWS Bedrock.
type BedrockClient struct {
	client  *bedrockruntime.Client
	modelID string
}

// NewBedrockClient creates a new BedrockClient.
// It requires AWS credentials to be configured in the environment.
func NewBedrockClient(ctx context.Context, modelID string) (*BedrockClient, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load AWS config")
	}

	return &BedrockClient{
		client:  bedrockruntime.NewFromConfig(cfg),
		modelID: modelID,
	}, nil
}

// ChatStream streams a chat request through Bedrock's response-stream API.
// The event payloads carry Anthropic's streaming event format; gjson pulls
// the handful of fields we need out of each chunk.
func (b *BedrockClient) ChatStream(ctx context.Context, messages []session.Message, availableTools []tools.Tool, systemPrompt string, onChunk func(Chunk)) error {
	body, err := buildBedrockRequest(messages, systemPrompt, availableTools)
	if err != nil {
		return errors.Wrapf(err, "failed to build Bedrock request")
	}

	output, err := b.client.InvokeModelWithResponseStream(ctx, &bedrockruntime.InvokeModelWithResponseStreamInput{
		ModelId:     aws.String(b.modelID),
		ContentType: aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return errors.Wrapf(err, "failed to invoke Bedrock model")
	}

	stream := output.GetStream()
	defer stream.Close()

	// Tool-use inputs stream as partial JSON per content block, keyed by
	// block index.
	type toolUse struct {
		id, name, inputJSON string
	}
	pending := map[int64]*toolUse{}
	var order []int64

	for event := range stream.Events() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		chunk, ok := event.(*types.ResponseStreamMemberChunk)
		if !ok {
			continue
		}
		payload := string(chunk.Value.Bytes)
		switch gjson.Get(payload, "type").String() {
		case "content_block_start":
			block := gjson.Get(payload, "content_block")
			if block.Get("type").String() == "tool_use" {
				idx := gjson.Get(payload, "index").Int()
				pending[idx] = &toolUse{
					id:   block.Get("id").String(),
					name: block.Get("name").String(),
				}
				order = append(order, idx)
			}
		case "content_block_delta":
			delta := gjson.Get(payload, "delta")
			switch delta.Get("type").String() {
			case "text_delta":
				if text := delta.Get("text").String(); text != "" {
					onChunk(Chunk{TextDelta: text})
				}
			case "input_json_delta":
				idx := gjson.Get(payload, "index").Int()
				if tu, found := pending[idx]; found {
					tu.inputJSON += delta.Get("partial_json").String()
				}
			}
		}
	}
	if err := stream.Err(); err != nil {
		return errors.Wrapf(err, "Bedrock stream failed")
	}

	var toolCalls []session.ToolCall
	for _, idx := range order {
		tu := pending[idx]
		args := map[string]interface{}{}
		if tu.inputJSON != "" {
			if err := json.Unmarshal([]byte(tu.inputJSON), &args); err != nil {
				return errors.Wrapf(err, "failed to unmarshal tool input for '%s'", tu.name)
			}
		}
		toolCalls = append(toolCalls, session.ToolCall{
			ToolCallID: tu.id,
			Name:       tu.name,
			Args:       args,
		})
	}

	onChunk(Chunk{ToolCalls: toolCalls, Done: true})
	return nil
}

// buildBedrockRequest creates the request body for Anthropic models on Bedrock.
func buildBedrockRequest(messages []session.Message, systemPrompt string, availableTools []tools.Tool) ([]byte, error) {
	var anthropicMessages []map[string]interface{}
	for _, msg := range messages {
		text := msg.Text()
		if text == "" {
			continue
		}
		role := "user"
		if msg.Role == session.RoleAssistant {
			role = "assistant"
		}
		anthropicMessages = append(anthropicMessages, map[string]interface{}{
			"role": role,
			"content": []map[string]interface{}{
				{"type": "text", "text": text},
			},
		})
	}

	request := map[string]interface{}{
		"anthropic_version": "bedrock-2023-05-31",
		"max_tokens":        4096,
		"messages":          anthropicMessages,
	}
	if systemPrompt != "" {
		request["system"] = systemPrompt
	}
	if len(availableTools) > 0 {
		var toolDefs []map[string]interface{}
		for _, t := range availableTools {
			toolDefs = append(toolDefs, map[string]interface{}{
				"name":        t.Name(),
				"description": t.Description(),
				"input_schema": map[string]interface{}{
					"type":       "object",
					"properties": t.Schema(),
				},
			})
		}
		request["tools"] = toolDefs
	}

	return json.Marshal(request)
}
