package tools

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/m4xw311/parley/config"
)

func TestRegistryRegisterAndGet(t *testing.T) {
	r, err := NewRegistry(&config.Config{})
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	defer r.Close()

	for _, name := range []string{"read_file", "write_file", "execute_command"} {
		if _, ok := r.Get(name); !ok {
			t.Errorf("builtin %q not registered", name)
		}
	}
	if _, ok := r.Get("nonexistent"); ok {
		t.Error("Get should miss on unknown names")
	}
}

func TestActiveTools(t *testing.T) {
	r, err := NewRegistry(&config.Config{})
	if err != nil {
		t.Fatalf("NewRegistry failed: %v", err)
	}
	defer r.Close()

	ts := &config.Toolset{Name: "default", Tools: []string{"read_file", "write_file"}}
	active, err := r.ActiveTools(ts)
	if err != nil {
		t.Fatalf("ActiveTools failed: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("expected 2 tools, got %d", len(active))
	}

	bad := &config.Toolset{Name: "bad", Tools: []string{"no_such_tool"}}
	if _, err := r.ActiveTools(bad); err == nil {
		t.Fatal("expected an error for an unregistered tool")
	}

	mcpRef := &config.Toolset{Name: "mcp", Tools: []string{"ghost:lookup"}}
	if _, err := r.ActiveTools(mcpRef); err == nil {
		t.Fatal("expected an error for an unknown MCP server")
	}
}

func TestIsPathRestricted(t *testing.T) {
	patterns := []string{".parley", ".parley/**", "**/*.pem"}

	cases := []struct {
		path string
		want bool
	}{
		{".parley", true},
		{".parley/config.yaml", true},
		{"certs/server.pem", true},
		{"main.go", false},
	}
	for _, c := range cases {
		got, err := isPathRestricted(c.path, patterns)
		if err != nil {
			t.Fatalf("isPathRestricted(%q) failed: %v", c.path, err)
		}
		if got != c.want {
			t.Errorf("isPathRestricted(%q) = %v, want %v", c.path, got, c.want)
		}
	}
}

func TestIsCommandAllowed(t *testing.T) {
	allowed := []string{"^ls( .*)?$", "^git status$"}

	cases := []struct {
		command string
		want    bool
	}{
		{"ls", true},
		{"ls -la", true},
		{"git status", true},
		{"git push", false},
		{"rm -rf /", false},
		{"", false},
	}
	for _, c := range cases {
		got, err := isCommandAllowed(c.command, allowed)
		if err != nil {
			t.Fatalf("isCommandAllowed(%q) failed: %v", c.command, err)
		}
		if got != c.want {
			t.Errorf("isCommandAllowed(%q) = %v, want %v", c.command, got, c.want)
		}
	}
}

func TestReadFileTool(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "note.txt")
	if err := os.WriteFile(path, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}

	tool := &ReadFileTool{fsAccess: &config.FilesystemAccess{}}
	out, err := tool.Execute(context.Background(), map[string]interface{}{"path": path})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if out != "hello" {
		t.Errorf("Execute = %q, want %q", out, "hello")
	}

	if _, err := tool.Execute(context.Background(), map[string]interface{}{}); err == nil {
		t.Error("expected an error for a missing path argument")
	}
}

func TestReadFileToolHiddenPath(t *testing.T) {
	dir := t.TempDir()
	secret := filepath.Join(dir, "secret.pem")
	if err := os.WriteFile(secret, []byte("key"), 0644); err != nil {
		t.Fatal(err)
	}

	tool := &ReadFileTool{fsAccess: &config.FilesystemAccess{Hidden: []string{"**/*.pem"}}}
	if _, err := tool.Execute(context.Background(), map[string]interface{}{"path": secret}); err == nil {
		t.Fatal("expected access to a hidden path to be denied")
	}
}

func TestWriteFileToolReadOnlyPath(t *testing.T) {
	dir := t.TempDir()
	locked := filepath.Join(dir, "locked.txt")

	tool := &WriteFileTool{fsAccess: &config.FilesystemAccess{ReadOnly: []string{"**/locked.txt"}}}
	args := map[string]interface{}{"path": locked, "content": "x"}
	if _, err := tool.Execute(context.Background(), args); err == nil {
		t.Fatal("expected a write to a read-only path to be denied")
	}

	// The same write succeeds without the restriction.
	open := &WriteFileTool{fsAccess: &config.FilesystemAccess{}}
	if _, err := open.Execute(context.Background(), args); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	data, err := os.ReadFile(locked)
	if err != nil || string(data) != "x" {
		t.Errorf("file content = %q, err %v", data, err)
	}
}
