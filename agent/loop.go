package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/m4xw311/parley/budget"
	"github.com/m4xw311/parley/errors"
	"github.com/m4xw311/parley/llm"
	"github.com/m4xw311/parley/session"
	"github.com/m4xw311/parley/toolcall"
)

// turnCeilingMarker is appended to the delivered text when the loop stops
// because the model kept requesting tools past the turn ceiling.
const turnCeilingMarker = "[Stopped early: the turn limit was reached while tools were still being requested.]"

// ProcessUserInput runs the full request lifecycle for one user message:
// memory assembly, optional compaction, then the bounded turn loop of
// streaming, tool confirmation, execution and result reinjection.
//
// Messages are committed to the session and the memory store only when
// the request terminates normally (including a turn-ceiling soft abort);
// provider failures and cancellation discard everything built so far.
func (a *Agent) ProcessUserInput(ctx context.Context, userInput string, cb Callbacks) error {
	if a.Client == nil {
		err := errors.Wrapf(errors.ErrNoProvider, "cannot process user input")
		if cb.OnError != nil {
			cb.OnError(err)
		}
		return err
	}

	threadID := a.Session.Name
	snapshot := a.assembler.Assemble(ctx, threadID, a.ResourceID, a.Session.Messages)
	userMsg := session.NewMessage(session.RoleUser, userInput)
	systemPrompt := a.buildSystemPrompt(snapshot.WorkingMemory, userInput)

	history := snapshot.History
	estimate := budget.EstimateTokens(append(session.CloneMessages(history), userMsg), systemPrompt, a.AvailableTools, a.Config.Model)
	if estimate > a.compactor.Policy.TriggerTokens {
		if cb.OnCompactionStart != nil {
			cb.OnCompactionStart()
		}
		shorter, compacted, _ := a.compactor.Compact(ctx, threadID, a.ResourceID, history)
		if cb.OnCompactionComplete != nil {
			cb.OnCompactionComplete(compacted)
		}
		if compacted {
			// The session transcript adopts the shorter list; otherwise
			// the end-of-request save would write the long history back
			// over the compacted row and the next request would
			// re-summarize the same content.
			a.Session.Messages = session.CloneMessages(shorter)
		}
		history = shorter
	}

	// working is the exact list sent to the provider; appended is the
	// suffix of new messages committed on success.
	working := make([]session.Message, 0, len(history)+1)
	working = append(working, history...)
	working = append(working, userMsg)
	appended := []session.Message{userMsg}

	var transcript []string

	for turn := 0; turn < a.Config.MaxTurns; turn++ {
		var text strings.Builder
		var structured []session.ToolCall

		err := a.Client.ChatStream(ctx, working, a.AvailableTools, systemPrompt, func(chunk llm.Chunk) {
			if chunk.TextDelta != "" {
				text.WriteString(chunk.TextDelta)
				if cb.OnStream != nil {
					cb.OnStream(chunk.TextDelta)
				}
			}
			if chunk.Done {
				structured = chunk.ToolCalls
			}
		})
		if err != nil {
			if ctx.Err() != nil {
				// Aborted: no success callback, nothing persisted.
				return ctx.Err()
			}
			if cb.OnError != nil {
				cb.OnError(err)
			}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		raw := text.String()
		requests := toolcall.Detect(raw, structured)
		visible := toolcall.StripEmbedded(raw)
		visible = a.applyMemoryUpdates(ctx, threadID, visible)

		if strings.TrimSpace(visible) == "" && len(requests) > 0 {
			// Never surface an empty assistant turn: synthesize a short
			// explanation and treat it as the turn's text.
			visible = placeholderText(requests)
			if cb.OnStream != nil {
				cb.OnStream(visible)
			}
		}
		if visible != "" {
			transcript = append(transcript, visible)
		}

		if len(requests) == 0 {
			if visible != "" {
				appended = append(appended, session.NewMessage(session.RoleAssistant, visible))
			}
			return a.finish(ctx, cb, threadID, appended, strings.Join(transcript, "\n\n"))
		}

		if cb.OnToolSuggested != nil {
			cb.OnToolSuggested(requests)
		}

		assistantMsg := session.NewMessage(session.RoleAssistant, visible)
		for _, req := range requests {
			assistantMsg.ToolCalls = append(assistantMsg.ToolCalls, session.ToolCall{
				ToolCallID: req.ID,
				Name:       req.Name,
				Args:       req.Args,
			})
		}
		working = append(working, assistantMsg)
		appended = append(appended, assistantMsg)

		// Tool calls run strictly sequentially in detection order: later
		// calls in the same turn may depend on earlier results, and the
		// confirmation gate is a serialized user interaction.
		for _, req := range requests {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			if !a.confirm(cb, req) {
				declineMsg := session.NewMessage(session.RoleUser, fmt.Sprintf(
					"The user declined to run tool %s. Do not retry it; adjust your plan accordingly.", req.Name))
				working = append(working, declineMsg)
				appended = append(appended, declineMsg)
				continue
			}

			outcomeMsg, err := a.executeWithRecovery(ctx, cb, req)
			if err != nil {
				return err
			}
			working = append(working, outcomeMsg)
			appended = append(appended, outcomeMsg)
		}
	}

	// Turn ceiling reached: soft abort. Whatever text was produced is
	// still delivered, with a marker explaining the early stop.
	text := strings.Join(transcript, "\n\n")
	if text != "" {
		text += "\n\n"
	}
	text += turnCeilingMarker
	return a.finish(ctx, cb, threadID, appended, text)
}

// executeWithRecovery runs one confirmed tool call, looping in place on
// retry resolutions. It returns the outcome message to reinject; the only
// error it returns is context cancellation.
func (a *Agent) executeWithRecovery(ctx context.Context, cb Callbacks, req toolcall.Request) (session.Message, error) {
	for {
		if ctx.Err() != nil {
			return session.Message{}, ctx.Err()
		}

		outcome := a.coordinator.Execute(ctx, req.Name, req.Args)
		if outcome.Success {
			if cb.OnToolExecuted != nil {
				cb.OnToolExecuted(req.Name, outcome.Result)
			}
			return session.NewMessage(session.RoleUser, fmt.Sprintf(
				"Tool %s returned:\n%s\n\nRespond in the same language as the user. State in one sentence what the tool call accomplished, then propose the next step.",
				req.Name, outcome.Result)), nil
		}

		resolution := ResolutionSkip
		if cb.OnToolError != nil {
			resolution = cb.OnToolError(req.Name, outcome.Err)
		}
		switch resolution {
		case ResolutionRetry:
			// Re-execute the same call in place without consuming a turn.
			continue
		case ResolutionRegenerate:
			return session.NewMessage(session.RoleUser, fmt.Sprintf(
				"Tool %s failed: %s. Disregard the failed attempt and produce a revised response.",
				req.Name, outcome.Err)), nil
		default:
			return session.NewMessage(session.RoleUser, fmt.Sprintf(
				"Tool %s failed: %s. The failure was skipped; continue without its result.",
				req.Name, outcome.Err)), nil
		}
	}
}

// confirm applies the confirmation gate: the callback when supplied,
// otherwise the agent's mode decides.
func (a *Agent) confirm(cb Callbacks, req toolcall.Request) bool {
	if cb.ConfirmToolCall != nil {
		return cb.ConfirmToolCall(req)
	}
	return a.Mode == ModeAuto
}

// finish commits the new messages and delivers the final text.
func (a *Agent) finish(ctx context.Context, cb Callbacks, threadID string, appended []session.Message, text string) error {
	for _, msg := range appended {
		a.Session.AddMessage(msg)
	}
	// Persistence is best effort; the response was already streamed.
	_ = a.Session.Save()
	if a.Store != nil {
		_ = a.Store.SaveMessages(ctx, threadID, a.ResourceID, a.Session.Messages)
	}
	if cb.OnComplete != nil {
		cb.OnComplete(text)
	}
	return nil
}

// Canned phrasing for the builtin tools; anything else gets the generic
// "using tools" line.
var toolPhrases = map[string]string{
	"read_file":       "Let me read that file.",
	"write_file":      "Let me write that file.",
	"execute_command": "Let me run that command.",
}

func placeholderText(requests []toolcall.Request) string {
	if len(requests) == 1 {
		if phrase, ok := toolPhrases[requests[0].Name]; ok {
			return phrase
		}
	}
	names := make([]string, 0, len(requests))
	for _, req := range requests {
		names = append(names, req.Name)
	}
	return fmt.Sprintf("Using tools: %s.", strings.Join(names, ", "))
}
