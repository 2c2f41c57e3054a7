package memory

import (
	"context"

	"github.com/m4xw311/parley/session"
)

// Source records which history source an assembled snapshot came from.
type Source string

const (
	SourceStore   Source = "store"
	SourceSession Source = "session"
	SourceNone    Source = "none"
)

// Snapshot is the per-request view of durable memory: the working-memory
// text and the conversation history the next turn should be built on.
// It is rebuilt once per user request and never mutated afterwards.
type Snapshot struct {
	WorkingMemory string
	History       []session.Message
	HistorySource Source
}

// Assembler resolves a snapshot for a thread. History may live in the
// managed store or only in the local session depending on which features
// are enabled; exactly one source is used per call so messages are never
// duplicated.
type Assembler struct {
	Store        Store
	HistoryLimit int
}

// Assemble builds the snapshot. Every step is failure-tolerant: a store
// error degrades to "no data" and the next source is consulted. The local
// slice passed in must exclude the message currently being composed.
func (a Assembler) Assemble(ctx context.Context, threadID, resourceID string, local []session.Message) Snapshot {
	snap := Snapshot{HistorySource: SourceNone}

	if a.Store != nil {
		if wm, err := a.Store.GetWorkingMemory(ctx, threadID, resourceID); err == nil {
			snap.WorkingMemory = wm
		}
		if msgs, err := a.Store.GetConversationMessages(ctx, threadID); err == nil && len(msgs) > 0 {
			snap.History = tail(msgs, a.HistoryLimit)
			snap.HistorySource = SourceStore
			return snap
		}
	}

	if len(local) > 0 {
		snap.History = tail(session.CloneMessages(local), a.HistoryLimit)
		snap.HistorySource = SourceSession
	}
	return snap
}

// tail keeps the most recent n messages. n <= 0 means no limit.
func tail(msgs []session.Message, n int) []session.Message {
	if n <= 0 || len(msgs) <= n {
		return msgs
	}
	return msgs[len(msgs)-n:]
}
