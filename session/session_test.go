package session

import (
	"testing"
)

func TestNewMessage(t *testing.T) {
	m := NewMessage(RoleUser, "hello")
	if m.ID == "" {
		t.Error("expected a generated ID")
	}
	if m.Role != RoleUser || m.Content != "hello" {
		t.Errorf("unexpected message: %+v", m)
	}
	if m.Timestamp.IsZero() {
		t.Error("expected a timestamp")
	}
}

func TestMessageText(t *testing.T) {
	plain := Message{Role: RoleAssistant, Content: "body"}
	if plain.Text() != "body" {
		t.Errorf("Text() = %q, want %q", plain.Text(), "body")
	}

	parts := Message{Role: RoleUser, Parts: []Part{
		{Type: PartText, Text: "first"},
		{Type: PartImage, URI: "file:///x.png"},
		{Type: PartText, Text: "second"},
	}}
	if got := parts.Text(); got != "first\nsecond" {
		t.Errorf("Text() = %q, want %q", got, "first\nsecond")
	}
}

func TestCloneMessagesDeepCopiesArgs(t *testing.T) {
	src := []Message{{
		Role:    RoleAssistant,
		Content: "calling",
		ToolCalls: []ToolCall{{
			Name: "read_file",
			Args: map[string]interface{}{"path": "a.txt"},
		}},
	}}

	clone := CloneMessages(src)
	clone[0].ToolCalls[0].Args["path"] = "b.txt"

	if src[0].ToolCalls[0].Args["path"] != "a.txt" {
		t.Error("mutating the clone leaked into the source")
	}
}

func TestSessionSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()

	sess, err := New(dir, "trip")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	sess.Mode = "auto"
	sess.Toolset = "default"
	sess.AddMessage(NewMessage(RoleUser, "hi"))
	sess.AddMessage(NewMessage(RoleAssistant, "hello"))
	if err := sess.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(dir, "trip")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Name != "trip" || loaded.Mode != "auto" || loaded.Toolset != "default" {
		t.Errorf("unexpected session metadata: %+v", loaded)
	}
	if len(loaded.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(loaded.Messages))
	}
	if loaded.Messages[0].Content != "hi" || loaded.Messages[1].Content != "hello" {
		t.Errorf("unexpected messages: %+v", loaded.Messages)
	}
}

func TestLoadMissingSession(t *testing.T) {
	if _, err := Load(t.TempDir(), "nope"); err == nil {
		t.Fatal("expected an error loading a missing session")
	}
}
