// Package toolcall detects tool-call requests in model output and
// dispatches them against the tool catalog. Detection merges two
// channels: the provider's structured function-calling output and an
// embedded wrapper syntax some models emit inline in free text:
//
//	<tool_call>
//	  <tool_name>read_file</tool_name>
//	  <arguments>{"path": "main.go"}</arguments>
//	</tool_call>
//
// Requests keep a tag saying which channel produced them so logs can
// tell the two apart.
package toolcall

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/m4xw311/parley/session"
	"github.com/m4xw311/parley/tools"
	"github.com/tidwall/gjson"
)

// Source says which detection channel produced a request.
type Source string

const (
	SourceStructured Source = "structured"
	SourceEmbedded   Source = "embedded"
)

// Request is a model-issued tool invocation. It lives only within the
// turn that produced it.
type Request struct {
	ID     string
	Name   string
	Args   map[string]interface{}
	Source Source
}

// Outcome is the result of executing (or failing to execute) one request.
// It is always rendered into exactly one conversation message.
type Outcome struct {
	ToolName string
	Success  bool
	Result   string
	Err      string
}

var (
	wrapperRe = regexp.MustCompile(`(?s)<tool_call>\s*(.*?)\s*</tool_call>`)
	nameRe    = regexp.MustCompile(`(?s)<tool_name>\s*(.*?)\s*</tool_name>`)
	argsRe    = regexp.MustCompile(`(?s)<arguments>\s*(.*?)\s*</arguments>`)
)

// Detect merges the structured channel and the embedded channel into one
// ordered request list: structured calls first in provider order, then
// embedded calls in text order. Text with no wrapper markers and an empty
// structured list always yields nil.
func Detect(text string, structured []session.ToolCall) []Request {
	var out []Request
	for _, tc := range structured {
		id := tc.ToolCallID
		if id == "" {
			id = uuid.NewString()
		}
		out = append(out, Request{
			ID:     id,
			Name:   tc.Name,
			Args:   tc.Args,
			Source: SourceStructured,
		})
	}
	out = append(out, ParseEmbedded(text)...)
	return out
}

// ParseEmbedded extracts wrapper-syntax tool calls from free text.
// Arguments that are not a valid JSON object are wrapped as
// {"input": rawText}; blocks without a tool name are skipped.
func ParseEmbedded(text string) []Request {
	if !strings.Contains(text, "<tool_call>") {
		return nil
	}
	var out []Request
	for _, block := range wrapperRe.FindAllStringSubmatch(text, -1) {
		nameMatch := nameRe.FindStringSubmatch(block[1])
		if nameMatch == nil {
			continue
		}
		name := strings.TrimSpace(nameMatch[1])
		if name == "" {
			continue
		}

		args := map[string]interface{}{}
		if argsMatch := argsRe.FindStringSubmatch(block[1]); argsMatch != nil {
			args = parseArguments(argsMatch[1])
		}
		out = append(out, Request{
			ID:     uuid.NewString(),
			Name:   name,
			Args:   args,
			Source: SourceEmbedded,
		})
	}
	return out
}

// StripEmbedded removes wrapper blocks from text so the surfaced prose
// does not include the raw markers.
func StripEmbedded(text string) string {
	if !strings.Contains(text, "<tool_call>") {
		return text
	}
	return strings.TrimSpace(wrapperRe.ReplaceAllString(text, ""))
}

// parseArguments is deliberately lenient: models frequently emit raw text
// or truncated JSON where an object is expected.
func parseArguments(raw string) map[string]interface{} {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]interface{}{}
	}
	if gjson.Valid(raw) && gjson.Parse(raw).IsObject() {
		var args map[string]interface{}
		if err := json.Unmarshal([]byte(raw), &args); err == nil {
			return args
		}
	}
	return map[string]interface{}{"input": raw}
}

// Coordinator dispatches requests against the tool catalog.
type Coordinator struct {
	Registry *tools.Registry
}

// Execute runs one request. All failures come back as data: a catalog
// miss or a tool error produces a failed Outcome, never a Go error, so
// the loop can report it to the model instead of crashing the
// conversation.
func (c *Coordinator) Execute(ctx context.Context, name string, args map[string]interface{}) Outcome {
	tool, ok := c.Registry.Get(name)
	if !ok {
		return Outcome{
			ToolName: name,
			Err:      fmt.Sprintf("tool not found: '%s' is not in the catalog", name),
		}
	}
	result, err := tool.Execute(ctx, args)
	if err != nil {
		return Outcome{ToolName: name, Err: err.Error()}
	}
	return Outcome{ToolName: name, Success: true, Result: result}
}
