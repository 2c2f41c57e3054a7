package tools

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/m4xw311/parley/config"
	"github.com/m4xw311/parley/errors"
	"github.com/m4xw311/parley/tools/mcp"
)

// Tool defines the interface for any action the agent can take. Schema
// returns JSON-schema property definitions so providers can advertise
// real parameter shapes instead of a generic object.
type Tool interface {
	Name() string
	Description() string
	Schema() map[string]interface{}
	Execute(ctx context.Context, args map[string]interface{}) (string, error)
}

// Registry holds all available tools. It is constructed explicitly and
// passed to whoever needs it; there is no package-level registry.
type Registry struct {
	tools      map[string]Tool
	mcpClients map[string]*mcp.Client
}

// NewRegistry builds the catalog from the configuration: the builtin
// tools plus one MCP client per configured server.
func NewRegistry(cfg *config.Config) (*Registry, error) {
	r := &Registry{
		tools:      make(map[string]Tool),
		mcpClients: make(map[string]*mcp.Client),
	}

	r.Register(&ReadFileTool{fsAccess: &cfg.FilesystemAccess})
	r.Register(&WriteFileTool{fsAccess: &cfg.FilesystemAccess})
	r.Register(&ExecuteCommandTool{allowedCommands: cfg.AllowedCommands})

	for _, server := range cfg.AdditionalMCPServers {
		client, err := mcp.NewClient(server.Name, server.Command, server.Args)
		if err != nil {
			r.Close()
			return nil, errors.Wrapf(err, "failed to start MCP server '%s'", server.Name)
		}
		r.mcpClients[server.Name] = client
	}

	return r, nil
}

// Register adds a tool to the catalog, replacing any tool of the same name.
func (r *Registry) Register(t Tool) {
	r.tools[t.Name()] = t
}

// Get returns a tool by name, checking builtins first and then every
// MCP server.
func (r *Registry) Get(name string) (Tool, bool) {
	if t, ok := r.tools[name]; ok {
		return t, true
	}
	for _, client := range r.mcpClients {
		if t, ok := client.GetTool(name); ok {
			return t, true
		}
	}
	return nil, false
}

// ActiveTools returns the tool instances for a given toolset. MCP tools
// are selected with "<server>:<tool>"; "<server>:*" selects every tool
// the server advertises.
func (r *Registry) ActiveTools(ts *config.Toolset) ([]Tool, error) {
	var active []Tool
	for _, toolName := range ts.Tools {
		if server, tool, ok := strings.Cut(toolName, ":"); ok {
			client, found := r.mcpClients[server]
			if !found {
				return nil, errors.New("toolset '%s' references unknown MCP server '%s'", ts.Name, server)
			}
			if tool == "*" {
				for _, t := range client.Tools() {
					active = append(active, t)
				}
				continue
			}
			t, found := client.GetTool(tool)
			if !found {
				return nil, errors.New("MCP server '%s' does not provide tool '%s'", server, tool)
			}
			active = append(active, t)
			continue
		}

		if t, ok := r.tools[toolName]; ok {
			active = append(active, t)
		} else {
			return nil, errors.New("tool '%s' from toolset '%s' is not registered", toolName, ts.Name)
		}
	}
	return active, nil
}

// Close terminates all MCP server subprocesses.
func (r *Registry) Close() {
	for _, client := range r.mcpClients {
		_ = client.Stop()
	}
}

// isPathRestricted checks if a path matches any of the glob patterns.
func isPathRestricted(path string, patterns []string) (bool, error) {
	for _, pattern := range patterns {
		match, err := doublestar.PathMatch(pattern, path)
		if err != nil {
			return false, fmt.Errorf("invalid glob pattern '%s': %w", pattern, err)
		}
		if match {
			return true, nil
		}
	}
	return false, nil
}

// isCommandAllowed checks if a command is in the allowlist (with regex support).
func isCommandAllowed(command string, allowed []string) (bool, error) {
	cmdParts := strings.Fields(command)
	if len(cmdParts) == 0 {
		return false, nil
	}

	for _, pattern := range allowed {
		re, err := regexp.Compile(pattern)
		if err != nil {
			// Fallback to simple string comparison if regex is invalid
			if command == pattern {
				return true, nil
			}
			continue
		}
		if re.MatchString(command) {
			return true, nil
		}
	}
	return false, nil
}
