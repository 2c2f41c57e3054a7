package toolcall

import (
	"context"
	"fmt"
	"testing"

	"github.com/m4xw311/parley/config"
	"github.com/m4xw311/parley/session"
	"github.com/m4xw311/parley/tools"
)

const embedded = `I'll check that file for you.
<tool_call>
  <tool_name>read_file</tool_name>
  <arguments>{"path": "main.go"}</arguments>
</tool_call>
One moment.`

func TestParseEmbedded(t *testing.T) {
	reqs := ParseEmbedded(embedded)
	if len(reqs) != 1 {
		t.Fatalf("expected 1 request, got %d", len(reqs))
	}
	r := reqs[0]
	if r.Name != "read_file" {
		t.Errorf("Name = %q, want read_file", r.Name)
	}
	if r.Args["path"] != "main.go" {
		t.Errorf("Args = %v", r.Args)
	}
	if r.Source != SourceEmbedded {
		t.Errorf("Source = %q, want %q", r.Source, SourceEmbedded)
	}
	if r.ID == "" {
		t.Error("expected a generated ID")
	}
}

func TestParseEmbeddedMultipleBlocks(t *testing.T) {
	text := `<tool_call><tool_name>first</tool_name><arguments>{}</arguments></tool_call>
some prose
<tool_call><tool_name>second</tool_name><arguments>{}</arguments></tool_call>`

	reqs := ParseEmbedded(text)
	if len(reqs) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(reqs))
	}
	if reqs[0].Name != "first" || reqs[1].Name != "second" {
		t.Errorf("order not preserved: %q, %q", reqs[0].Name, reqs[1].Name)
	}
}

func TestParseEmbeddedLenientArguments(t *testing.T) {
	cases := []struct {
		name string
		args string
		want map[string]interface{}
	}{
		{"raw text", "just run it", map[string]interface{}{"input": "just run it"}},
		{"truncated json", `{"path": "ma`, map[string]interface{}{"input": `{"path": "ma`}},
		{"json array", `[1, 2]`, map[string]interface{}{"input": "[1, 2]"}},
		{"empty", "", map[string]interface{}{}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			text := fmt.Sprintf("<tool_call><tool_name>t</tool_name><arguments>%s</arguments></tool_call>", c.args)
			reqs := ParseEmbedded(text)
			if len(reqs) != 1 {
				t.Fatalf("expected 1 request, got %d", len(reqs))
			}
			if len(reqs[0].Args) != len(c.want) {
				t.Fatalf("Args = %v, want %v", reqs[0].Args, c.want)
			}
			for k, v := range c.want {
				if reqs[0].Args[k] != v {
					t.Errorf("Args[%q] = %v, want %v", k, reqs[0].Args[k], v)
				}
			}
		})
	}
}

func TestParseEmbeddedSkipsNamelessBlocks(t *testing.T) {
	text := `<tool_call><arguments>{"a": 1}</arguments></tool_call>`
	if reqs := ParseEmbedded(text); reqs != nil {
		t.Fatalf("expected nil, got %v", reqs)
	}
}

func TestDetectMergeOrder(t *testing.T) {
	structured := []session.ToolCall{
		{ToolCallID: "call_1", Name: "list_files", Args: map[string]interface{}{"path": "."}},
	}
	reqs := Detect(embedded, structured)
	if len(reqs) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(reqs))
	}
	if reqs[0].Name != "list_files" || reqs[0].Source != SourceStructured {
		t.Errorf("structured call should come first: %+v", reqs[0])
	}
	if reqs[0].ID != "call_1" {
		t.Errorf("structured IDs must be preserved, got %q", reqs[0].ID)
	}
	if reqs[1].Name != "read_file" || reqs[1].Source != SourceEmbedded {
		t.Errorf("embedded call should come second: %+v", reqs[1])
	}
}

func TestDetectPlainText(t *testing.T) {
	if reqs := Detect("no markers here, just an answer", nil); reqs != nil {
		t.Fatalf("expected nil, got %v", reqs)
	}
}

func TestStripEmbedded(t *testing.T) {
	got := StripEmbedded(embedded)
	want := "I'll check that file for you.\n\nOne moment."
	if got != want {
		t.Errorf("StripEmbedded = %q, want %q", got, want)
	}

	// Text without markers is returned unchanged.
	plain := "nothing to strip"
	if StripEmbedded(plain) != plain {
		t.Error("plain text was modified")
	}
}

type scriptedTool struct {
	name string
	fn   func(args map[string]interface{}) (string, error)
}

func (s *scriptedTool) Name() string                   { return s.name }
func (s *scriptedTool) Description() string            { return "scripted test tool" }
func (s *scriptedTool) Schema() map[string]interface{} { return map[string]interface{}{} }
func (s *scriptedTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	return s.fn(args)
}

func newTestRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	registry, err := tools.NewRegistry(&config.Config{})
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	return registry
}

func TestCoordinatorExecute(t *testing.T) {
	registry := newTestRegistry(t)
	registry.Register(&scriptedTool{name: "echo", fn: func(args map[string]interface{}) (string, error) {
		return fmt.Sprintf("%v", args["input"]), nil
	}})
	coord := &Coordinator{Registry: registry}

	out := coord.Execute(context.Background(), "echo", map[string]interface{}{"input": "hi"})
	if !out.Success || out.Result != "hi" || out.ToolName != "echo" {
		t.Errorf("unexpected outcome: %+v", out)
	}
}

func TestCoordinatorToolNotFound(t *testing.T) {
	coord := &Coordinator{Registry: newTestRegistry(t)}
	out := coord.Execute(context.Background(), "does_not_exist", nil)
	if out.Success {
		t.Fatal("expected failure for unknown tool")
	}
	if out.Err == "" || out.ToolName != "does_not_exist" {
		t.Errorf("unexpected outcome: %+v", out)
	}
}

func TestCoordinatorToolError(t *testing.T) {
	registry := newTestRegistry(t)
	registry.Register(&scriptedTool{name: "boom", fn: func(args map[string]interface{}) (string, error) {
		return "", fmt.Errorf("disk full")
	}})
	coord := &Coordinator{Registry: registry}

	out := coord.Execute(context.Background(), "boom", nil)
	if out.Success {
		t.Fatal("expected failure")
	}
	if out.Err != "disk full" {
		t.Errorf("Err = %q, want %q", out.Err, "disk full")
	}
}
