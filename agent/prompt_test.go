package agent

import (
	"context"
	"strings"
	"testing"

	"github.com/m4xw311/parley/llm"
	"github.com/m4xw311/parley/session"
)

// memStore is an in-memory Store for prompt and memory-protocol tests.
type memStore struct {
	workingMemory string
	history       []session.Message
}

func (s *memStore) GetWorkingMemory(ctx context.Context, threadID, resourceID string) (string, error) {
	return s.workingMemory, nil
}

func (s *memStore) SaveWorkingMemory(ctx context.Context, threadID, resourceID, text string) error {
	s.workingMemory = text
	return nil
}

func (s *memStore) GetConversationMessages(ctx context.Context, threadID string) ([]session.Message, error) {
	return s.history, nil
}

func (s *memStore) SaveMessages(ctx context.Context, threadID, resourceID string, msgs []session.Message) error {
	s.history = msgs
	return nil
}

func TestDetectLanguage(t *testing.T) {
	cases := []struct {
		text string
		want string
	}{
		{"hello world", ""},
		{"こんにちは", "Japanese"},
		{"カタカナ", "Japanese"},
		{"안녕하세요", "Korean"},
		{"你好世界", "Chinese"},
		// Kana wins over Han when both appear, as in normal Japanese text.
		{"日本語です", "Japanese"},
	}
	for _, c := range cases {
		if got := detectLanguage(c.text); got != c.want {
			t.Errorf("detectLanguage(%q) = %q, want %q", c.text, got, c.want)
		}
	}
}

func TestBuildSystemPrompt(t *testing.T) {
	a := newTestAgent(t, &llm.MockClient{})

	// Working memory disabled: no memory protocol section.
	prompt := a.buildSystemPrompt("irrelevant", "hello")
	if strings.Contains(prompt, "memory_update") {
		t.Error("memory protocol included while working memory is disabled")
	}
	if !strings.Contains(prompt, "run automatically") {
		t.Error("auto-mode instructions missing")
	}
	if !strings.Contains(prompt, "Respond in the same language") {
		t.Error("language directive missing")
	}

	a.Config.WorkingMemory = true
	a.Mode = ModePrompt
	a.ContextBlock = "Project: parley"
	prompt = a.buildSystemPrompt("user prefers tabs", "你好")
	if !strings.Contains(prompt, "memory_update") {
		t.Error("memory protocol missing")
	}
	if !strings.Contains(prompt, "user prefers tabs") {
		t.Error("current working memory missing")
	}
	if !strings.Contains(prompt, "confirmation") {
		t.Error("prompt-mode instructions missing")
	}
	if !strings.Contains(prompt, "Project: parley") {
		t.Error("context block missing")
	}
	if !strings.Contains(prompt, "Respond in Chinese.") {
		t.Error("detected-language directive missing")
	}
}

func TestApplyMemoryUpdates(t *testing.T) {
	store := &memStore{}
	a := newTestAgent(t, &llm.MockClient{})
	a.Store = store
	a.Config.WorkingMemory = true

	text := "Noted!\n<memory_update>old fact</memory_update>\nmore prose\n<memory_update>likes Go</memory_update>"
	visible := a.applyMemoryUpdates(context.Background(), "t1", text)

	if strings.Contains(visible, "memory_update") {
		t.Errorf("markers leaked into visible text: %q", visible)
	}
	if !strings.Contains(visible, "Noted!") || !strings.Contains(visible, "more prose") {
		t.Errorf("surrounding prose was lost: %q", visible)
	}
	// The last block wins.
	if store.workingMemory != "likes Go" {
		t.Errorf("working memory = %q, want %q", store.workingMemory, "likes Go")
	}
}

func TestApplyMemoryUpdatesDisabled(t *testing.T) {
	store := &memStore{}
	a := newTestAgent(t, &llm.MockClient{})
	a.Store = store

	// Markers are stripped even when the feature is off, but nothing is saved.
	visible := a.applyMemoryUpdates(context.Background(), "t1", "hi <memory_update>fact</memory_update>")
	if strings.Contains(visible, "memory_update") {
		t.Errorf("markers leaked: %q", visible)
	}
	if store.workingMemory != "" {
		t.Errorf("memory saved while disabled: %q", store.workingMemory)
	}
}

func TestMemoryUpdateThroughLoop(t *testing.T) {
	store := &memStore{}
	client := &llm.MockClient{Turns: []llm.MockTurn{
		{Deltas: []string{"Got it, I'll remember that.", "<memory_update>prefers dark mode</memory_update>"}},
	}}
	a := newTestAgent(t, client)
	a.Store = store
	a.assembler.Store = store
	a.Config.WorkingMemory = true

	var completed string
	cb := Callbacks{OnComplete: func(text string) { completed = text }}
	if err := a.ProcessUserInput(context.Background(), "I prefer dark mode", cb); err != nil {
		t.Fatalf("ProcessUserInput failed: %v", err)
	}

	if store.workingMemory != "prefers dark mode" {
		t.Errorf("working memory = %q", store.workingMemory)
	}
	if strings.Contains(completed, "memory_update") {
		t.Errorf("markers leaked into the final text: %q", completed)
	}

	// The next request's system prompt carries the saved memory.
	client.Turns = append(client.Turns, llm.MockTurn{Deltas: []string{"Dark mode it is."}})
	if err := a.ProcessUserInput(context.Background(), "thanks", Callbacks{}); err != nil {
		t.Fatalf("second ProcessUserInput failed: %v", err)
	}
	last := client.SystemPrompts[len(client.SystemPrompts)-1]
	if !strings.Contains(last, "prefers dark mode") {
		t.Errorf("system prompt missing working memory: %q", last)
	}
}
