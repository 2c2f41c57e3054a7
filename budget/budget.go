// Package budget estimates token counts for outbound requests so the
// agent can decide when conversation history must be compacted. The
// estimate is a deterministic heuristic (roughly four characters per
// token), not a real tokenizer: it only needs to be stable, monotonic
// and cheap, because it is compared against conservative thresholds.
package budget

import (
	"encoding/json"
	"strings"

	"github.com/m4xw311/parley/session"
	"github.com/m4xw311/parley/tools"
)

const (
	charsPerToken = 4

	// Fixed costs per message (role markers, separators) and per tool
	// schema (wrapping JSON), matching how chat APIs bill structure
	// around the raw text.
	perMessageOverhead = 4
	perToolOverhead    = 16

	// Non-text parts are billed by providers at a size unrelated to the
	// reference length we hold; charge flat amounts.
	imagePartTokens = 768
	filePartTokens  = 256

	// DefaultModelLimit is the context window assumed for models the
	// table does not know.
	DefaultModelLimit = 8192
)

// modelLimits maps model name prefixes to context window sizes. Longer
// prefixes win.
var modelLimits = map[string]int{
	"claude":           200000,
	"anthropic.claude": 200000,
	"gpt-3.5":          16385,
	"gpt-4":            128000,
	"o1":               200000,
	"o3":               200000,
	"gemini":           1048576,
}

// EstimateText estimates the token count of a raw string, rounding up.
func EstimateText(text string) int {
	if len(text) == 0 {
		return 0
	}
	return (len(text) + charsPerToken - 1) / charsPerToken
}

// EstimateMessage estimates one message including its per-message overhead.
func EstimateMessage(msg session.Message) int {
	total := perMessageOverhead + EstimateText(msg.Content)
	for _, p := range msg.Parts {
		switch p.Type {
		case session.PartText:
			total += EstimateText(p.Text)
		case session.PartImage:
			total += imagePartTokens
		case session.PartFile:
			total += filePartTokens
		}
	}
	return total
}

// EstimateTokens estimates the full cost of a request: every message, the
// system prompt, and the advertised tool schemas. Appending a message or
// a tool never decreases the result.
func EstimateTokens(messages []session.Message, systemPrompt string, availableTools []tools.Tool, model string) int {
	total := EstimateText(systemPrompt)
	for _, msg := range messages {
		total += EstimateMessage(msg)
	}
	for _, t := range availableTools {
		total += perToolOverhead
		total += EstimateText(t.Name())
		total += EstimateText(t.Description())
		// json.Marshal sorts map keys, so the schema contribution is
		// stable across calls.
		if schema, err := json.Marshal(t.Schema()); err == nil {
			total += EstimateText(string(schema))
		}
	}
	return total
}

// ModelLimit returns the context window for a model, falling back to a
// conservative default when the model is unrecognized.
func ModelLimit(model string) int {
	best := 0
	limit := DefaultModelLimit
	for prefix, l := range modelLimits {
		if strings.HasPrefix(model, prefix) && len(prefix) > best {
			best = len(prefix)
			limit = l
		}
	}
	return limit
}

// IsOverLimit reports whether the estimated request size exceeds the
// model's context window.
func IsOverLimit(messages []session.Message, systemPrompt string, availableTools []tools.Tool, model string) bool {
	return EstimateTokens(messages, systemPrompt, availableTools, model) > ModelLimit(model)
}
