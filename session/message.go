package session

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Message roles. The agent loop only ever appends system, user and
// assistant messages; tool outcomes are recorded as user messages so the
// model can react to them on the next turn.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Part kinds for multi-part message content.
const (
	PartText  = "text"
	PartImage = "image"
	PartFile  = "file"
)

// Part is one element of a multi-part message body.
type Part struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	URI      string `json:"uri,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
}

// ToolCall records a model-issued request to invoke a named tool. It is
// kept on assistant messages for transcript replay; the loop itself works
// with the coordinator's request type.
type ToolCall struct {
	ToolCallID string                 `json:"tool_call_id,omitempty"`
	Name       string                 `json:"name"`
	Args       map[string]interface{} `json:"args,omitempty"`
}

// Message is one entry in a conversation transcript. Messages are
// immutable once appended: the loop builds new messages rather than
// editing old ones.
type Message struct {
	ID        string     `json:"id,omitempty"`
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	Parts     []Part     `json:"parts,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	Timestamp time.Time  `json:"timestamp,omitempty"`
}

// NewMessage builds a message with a fresh ID and a UTC timestamp.
func NewMessage(role, content string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
}

// Text returns the textual body of the message: Content when set,
// otherwise the concatenated text parts.
func (m Message) Text() string {
	if m.Content != "" || len(m.Parts) == 0 {
		return m.Content
	}
	var b strings.Builder
	for _, p := range m.Parts {
		if p.Type == PartText && p.Text != "" {
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// CloneMessages returns a deep copy so callers can hold history without
// sharing tool-call argument maps with the source slice.
func CloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = cloneMessage(m)
	}
	return out
}

func cloneMessage(m Message) Message {
	c := m
	if m.Parts != nil {
		c.Parts = append([]Part(nil), m.Parts...)
	}
	if m.ToolCalls != nil {
		c.ToolCalls = make([]ToolCall, len(m.ToolCalls))
		for i, tc := range m.ToolCalls {
			c.ToolCalls[i] = tc
			if tc.Args != nil {
				args := make(map[string]interface{}, len(tc.Args))
				for k, v := range tc.Args {
					args[k] = v
				}
				c.ToolCalls[i].Args = args
			}
		}
	}
	return c
}
