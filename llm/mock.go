package llm

import (
	"context"

	"github.com/m4xw311/parley/errors"
	"github.com/m4xw311/parley/session"
	"github.com/m4xw311/parley/tools"
)

// MockTurn scripts one streamed response for the MockClient: the text
// deltas in order, the tool calls delivered with the Done chunk, or an
// error surfaced instead of completing the stream.
type MockTurn struct {
	Deltas    []string
	ToolCalls []session.ToolCall
	Err       error
}

// MockClient replays scripted turns and records what it was asked to send.
// It is the test double for the agent loop and the compactor.
type MockClient struct {
	Turns []MockTurn

	// Recorded per call, in order.
	Calls         [][]session.Message
	SystemPrompts []string

	next int
}

func (m *MockClient) ChatStream(ctx context.Context, messages []session.Message, availableTools []tools.Tool, systemPrompt string, onChunk func(Chunk)) error {
	m.Calls = append(m.Calls, session.CloneMessages(messages))
	m.SystemPrompts = append(m.SystemPrompts, systemPrompt)

	if m.next >= len(m.Turns) {
		return errors.New("mock client exhausted after %d turns", len(m.Turns))
	}
	turn := m.Turns[m.next]
	m.next++

	if turn.Err != nil {
		return turn.Err
	}
	for _, delta := range turn.Deltas {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		onChunk(Chunk{TextDelta: delta})
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	onChunk(Chunk{ToolCalls: turn.ToolCalls, Done: true})
	return nil
}
