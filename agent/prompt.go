package agent

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

const memoryProtocol = `You have a persistent working memory of durable facts about the user. When you learn a new durable fact (preferences, recurring context, long-term goals), append a block of the form <memory_update>updated memory text</memory_update> at the end of your reply. The block is hidden from the user. Rewrite the full memory text, not a diff.`

const autoInstructions = `You are a capable assistant embedded in an application. You may call the available tools when they help answer the user; tool calls run automatically. Prefer acting over asking.`

const promptInstructions = `You are a capable assistant embedded in an application. You may call the available tools when they help answer the user; every tool call is shown to the user for confirmation first, so explain briefly why a tool is needed.`

// buildSystemPrompt assembles the outbound system message: the
// working-memory section (when the feature is enabled), mode-specific
// behavioral instructions, any externally supplied context block, and a
// language-consistency directive derived from the user's latest message.
func (a *Agent) buildSystemPrompt(workingMemory, userInput string) string {
	var sections []string

	if a.Config.WorkingMemory {
		section := memoryProtocol
		if strings.TrimSpace(workingMemory) != "" {
			section += "\n\nCurrent working memory:\n" + workingMemory
		}
		sections = append(sections, section)
	}

	if a.Mode == ModeAuto {
		sections = append(sections, autoInstructions)
	} else {
		sections = append(sections, promptInstructions)
	}

	if a.ContextBlock != "" {
		sections = append(sections, a.ContextBlock)
	}

	sections = append(sections, languageDirective(userInput))

	return strings.Join(sections, "\n\n")
}

// languageDirective keeps the model answering in the user's language. The
// heuristic is deliberately small: CJK scripts are recognized by rune
// range, everything else defaults to mirroring the user.
func languageDirective(userInput string) string {
	if lang := detectLanguage(userInput); lang != "" {
		return fmt.Sprintf("Respond in %s.", lang)
	}
	return "Respond in the same language the user writes in."
}

func detectLanguage(text string) string {
	var hasHan bool
	for _, r := range text {
		switch {
		case unicode.In(r, unicode.Hiragana, unicode.Katakana):
			return "Japanese"
		case unicode.In(r, unicode.Hangul):
			return "Korean"
		case unicode.In(r, unicode.Han):
			hasHan = true
		}
	}
	if hasHan {
		return "Chinese"
	}
	return ""
}

var memoryUpdateRe = regexp.MustCompile(`(?s)<memory_update>\s*(.*?)\s*</memory_update>`)

// applyMemoryUpdates strips hidden memory-update markers from the visible
// text and persists the last one (best effort) as the new working memory.
func (a *Agent) applyMemoryUpdates(ctx context.Context, threadID, text string) string {
	if !strings.Contains(text, "<memory_update>") {
		return text
	}
	matches := memoryUpdateRe.FindAllStringSubmatch(text, -1)
	if len(matches) > 0 && a.Config.WorkingMemory && a.Store != nil {
		_ = a.Store.SaveWorkingMemory(ctx, threadID, a.ResourceID, matches[len(matches)-1][1])
	}
	return strings.TrimSpace(memoryUpdateRe.ReplaceAllString(text, ""))
}
