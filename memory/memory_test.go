package memory

import (
	"context"
	"fmt"
	"testing"

	"github.com/m4xw311/parley/session"
)

// fakeStore lets tests script store contents and failures.
type fakeStore struct {
	workingMemory string
	history       []session.Message
	failReads     bool
	savedMemory   string
	savedMessages []session.Message
}

func (s *fakeStore) GetWorkingMemory(ctx context.Context, threadID, resourceID string) (string, error) {
	if s.failReads {
		return "", fmt.Errorf("store unavailable")
	}
	return s.workingMemory, nil
}

func (s *fakeStore) SaveWorkingMemory(ctx context.Context, threadID, resourceID, text string) error {
	s.savedMemory = text
	return nil
}

func (s *fakeStore) GetConversationMessages(ctx context.Context, threadID string) ([]session.Message, error) {
	if s.failReads {
		return nil, fmt.Errorf("store unavailable")
	}
	return s.history, nil
}

func (s *fakeStore) SaveMessages(ctx context.Context, threadID, resourceID string, msgs []session.Message) error {
	s.savedMessages = msgs
	return nil
}

func userMsgs(texts ...string) []session.Message {
	var out []session.Message
	for _, text := range texts {
		out = append(out, session.NewMessage(session.RoleUser, text))
	}
	return out
}

func TestAssemblePrefersStoreHistory(t *testing.T) {
	store := &fakeStore{
		workingMemory: "user likes short answers",
		history:       userMsgs("stored one", "stored two"),
	}
	a := Assembler{Store: store}

	snap := a.Assemble(context.Background(), "t1", "r1", userMsgs("local"))

	if snap.HistorySource != SourceStore {
		t.Fatalf("HistorySource = %q, want %q", snap.HistorySource, SourceStore)
	}
	if len(snap.History) != 2 || snap.History[0].Content != "stored one" {
		t.Errorf("unexpected history: %+v", snap.History)
	}
	if snap.WorkingMemory != "user likes short answers" {
		t.Errorf("WorkingMemory = %q", snap.WorkingMemory)
	}
}

func TestAssembleFallsBackToLocal(t *testing.T) {
	// Store present but empty: local history is used, never merged.
	a := Assembler{Store: &fakeStore{}}
	snap := a.Assemble(context.Background(), "t1", "r1", userMsgs("local one", "local two"))

	if snap.HistorySource != SourceSession {
		t.Fatalf("HistorySource = %q, want %q", snap.HistorySource, SourceSession)
	}
	if len(snap.History) != 2 {
		t.Errorf("expected 2 local messages, got %d", len(snap.History))
	}
}

func TestAssembleToleratesStoreErrors(t *testing.T) {
	a := Assembler{Store: &fakeStore{failReads: true}}
	snap := a.Assemble(context.Background(), "t1", "r1", userMsgs("local"))

	if snap.HistorySource != SourceSession {
		t.Fatalf("HistorySource = %q, want %q", snap.HistorySource, SourceSession)
	}
	if snap.WorkingMemory != "" {
		t.Errorf("expected empty working memory on store failure, got %q", snap.WorkingMemory)
	}
}

func TestAssembleEmpty(t *testing.T) {
	a := Assembler{}
	snap := a.Assemble(context.Background(), "t1", "r1", nil)

	if snap.HistorySource != SourceNone {
		t.Fatalf("HistorySource = %q, want %q", snap.HistorySource, SourceNone)
	}
	if len(snap.History) != 0 {
		t.Errorf("expected no history, got %d messages", len(snap.History))
	}
}

func TestAssembleTruncatesHistory(t *testing.T) {
	store := &fakeStore{history: userMsgs("a", "b", "c", "d", "e")}
	a := Assembler{Store: store, HistoryLimit: 2}

	snap := a.Assemble(context.Background(), "t1", "r1", nil)

	if len(snap.History) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(snap.History))
	}
	if snap.History[0].Content != "d" || snap.History[1].Content != "e" {
		t.Errorf("expected the most recent tail, got %+v", snap.History)
	}
}

func TestAssembleClonesLocalHistory(t *testing.T) {
	local := []session.Message{{
		Role: session.RoleAssistant,
		ToolCalls: []session.ToolCall{{
			Name: "read_file",
			Args: map[string]interface{}{"path": "a.txt"},
		}},
	}}
	a := Assembler{}
	snap := a.Assemble(context.Background(), "t1", "r1", local)

	snap.History[0].ToolCalls[0].Args["path"] = "b.txt"
	if local[0].ToolCalls[0].Args["path"] != "a.txt" {
		t.Error("assembled history shares state with the local session")
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	ctx := context.Background()

	// Missing data reads as zero values.
	wm, err := store.GetWorkingMemory(ctx, "t1", "r1")
	if err != nil || wm != "" {
		t.Fatalf("expected empty working memory, got %q, err %v", wm, err)
	}
	msgs, err := store.GetConversationMessages(ctx, "t1")
	if err != nil || msgs != nil {
		t.Fatalf("expected no messages, got %v, err %v", msgs, err)
	}

	if err := store.SaveWorkingMemory(ctx, "t1", "r1", "prefers metric units"); err != nil {
		t.Fatalf("SaveWorkingMemory failed: %v", err)
	}
	wm, err = store.GetWorkingMemory(ctx, "t1", "r1")
	if err != nil || wm != "prefers metric units" {
		t.Fatalf("GetWorkingMemory = %q, err %v", wm, err)
	}

	saved := userMsgs("one", "two")
	if err := store.SaveMessages(ctx, "t1", "r1", saved); err != nil {
		t.Fatalf("SaveMessages failed: %v", err)
	}
	msgs, err = store.GetConversationMessages(ctx, "t1")
	if err != nil {
		t.Fatalf("GetConversationMessages failed: %v", err)
	}
	if len(msgs) != 2 || msgs[1].Content != "two" {
		t.Errorf("unexpected messages: %+v", msgs)
	}
}

func TestFileStoreSanitizesIDs(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	ctx := context.Background()

	// IDs with path separators must not escape the data directory.
	if err := store.SaveWorkingMemory(ctx, "a/b:c", "../up", "text"); err != nil {
		t.Fatalf("SaveWorkingMemory failed: %v", err)
	}
	wm, err := store.GetWorkingMemory(ctx, "a/b:c", "../up")
	if err != nil || wm != "text" {
		t.Fatalf("GetWorkingMemory = %q, err %v", wm, err)
	}
}
