// Package compact shortens oversized conversation history. Older turns
// are condensed into a single synthetic message by a summarizer model;
// the most recent turns are preserved verbatim. Compaction runs only
// between requests, never in the middle of a turn loop.
package compact

import (
	"context"
	"fmt"
	"strings"

	"github.com/m4xw311/parley/llm"
	"github.com/m4xw311/parley/memory"
	"github.com/m4xw311/parley/session"
)

// Policy configures when and how history is compacted. Read-only during
// a run.
type Policy struct {
	TriggerTokens   int
	TargetTokens    int
	PreserveRecent  int
	SummarizerModel string
}

// Compactor condenses history through an LLM call and persists the
// shorter list so later requests do not re-summarize the same content.
type Compactor struct {
	Client llm.Client
	Store  memory.Store
	Policy Policy
}

const summarizerPrompt = `You condense conversation history. Produce a short narrative that preserves: the user's overall intent, decisions made and their rationale, names and identifiers mentioned (files, tools, people), and anything still pending. Write plain prose, no headings.`

// Compact summarizes all but the last PreserveRecent messages and
// prefixes the summary to the untouched tail. The caller invokes it only
// when the token estimate exceeds Policy.TriggerTokens.
//
// Compaction is best-effort: if summarization fails, the original slice
// is returned with compacted=false and a nil error, and the caller
// proceeds at the risk of exceeding the model's context window.
func (c *Compactor) Compact(ctx context.Context, threadID, resourceID string, msgs []session.Message) ([]session.Message, bool, error) {
	keep := c.Policy.PreserveRecent
	if keep < 0 {
		keep = 0
	}
	if len(msgs) <= keep || len(msgs)-keep < 2 {
		// Nothing worth summarizing.
		return msgs, false, nil
	}
	if c.Client == nil {
		return msgs, false, nil
	}

	toSummarize := msgs[:len(msgs)-keep]
	toKeep := msgs[len(msgs)-keep:]

	summary, err := c.summarize(ctx, toSummarize)
	if err != nil || strings.TrimSpace(summary) == "" {
		return msgs, false, nil
	}

	header := fmt.Sprintf("Summary of the earlier conversation (%d messages condensed):\n\n%s", len(toSummarize), summary)
	out := make([]session.Message, 0, len(toKeep)+1)
	out = append(out, session.NewMessage(session.RoleUser, header))
	out = append(out, toKeep...)

	// Persist so subsequent requests start from the shorter list.
	// Persistence failure does not undo the compaction.
	if c.Store != nil {
		_ = c.Store.SaveMessages(ctx, threadID, resourceID, out)
	}

	return out, true, nil
}

func (c *Compactor) summarize(ctx context.Context, msgs []session.Message) (string, error) {
	var transcript strings.Builder
	for _, m := range msgs {
		text := m.Text()
		if text == "" {
			continue
		}
		transcript.WriteString(m.Role)
		transcript.WriteString(": ")
		transcript.WriteString(text)
		transcript.WriteString("\n")
	}

	target := c.Policy.TargetTokens
	if target <= 0 {
		target = 2000
	}
	req := fmt.Sprintf("Condense the following conversation to roughly %d tokens:\n\n%s", target, transcript.String())

	return llm.CompleteText(ctx, c.Client, []session.Message{
		session.NewMessage(session.RoleUser, req),
	}, summarizerPrompt)
}
