// Package mcp connects the agent's tool catalog to external Model Context
// Protocol servers. Each configured server runs as a subprocess; its tools
// are surfaced through the same interface as the builtins.
package mcp

import (
	"context"
	"os"
	"os/exec"
	"sort"

	"github.com/m4xw311/parley/errors"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Client manages the connection to a single MCP server subprocess.
type Client struct {
	Name  string
	cmd   *exec.Cmd
	conn  *mcpsdk.ClientSession
	tools map[string]*Tool
}

// NewClient starts the MCP server subprocess, connects, and discovers the
// tools the server provides.
func NewClient(name, command string, args []string) (*Client, error) {
	cmd := exec.Command(command, args...)
	cmd.Stderr = os.Stderr
	mcpClient := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "parley", Version: "v1.0.0"}, nil)
	ctx := context.Background()
	conn, err := mcpClient.Connect(ctx, mcpsdk.NewCommandTransport(cmd))
	if err != nil {
		cmd.Process.Kill()
		return nil, errors.Wrapf(err, "failed to connect to MCP server '%s'", name)
	}
	client := &Client{
		Name:  name,
		cmd:   cmd,
		conn:  conn,
		tools: make(map[string]*Tool),
	}

	params := &mcpsdk.ListToolsParams{}
	for {
		list, err := conn.ListTools(ctx, params)
		if err != nil {
			cmd.Process.Kill()
			return nil, errors.Wrapf(err, "failed to list tools from MCP server '%s'", name)
		}
		for _, t := range list.Tools {
			client.tools[t.Name] = &Tool{
				serverName:  name,
				toolName:    t.Name,
				description: t.Description,
				client:      client,
			}
		}
		if list.NextCursor == "" {
			break
		}
		params.Cursor = list.NextCursor
	}

	return client, nil
}

// GetTool returns a specific tool provided by this server by its short name.
func (c *Client) GetTool(toolName string) (*Tool, bool) {
	t, ok := c.tools[toolName]
	return t, ok
}

// Tools returns every tool the server advertises, in name order.
func (c *Client) Tools() []*Tool {
	names := make([]string, 0, len(c.tools))
	for name := range c.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]*Tool, 0, len(names))
	for _, name := range names {
		out = append(out, c.tools[name])
	}
	return out
}

// Stop terminates the MCP server subprocess.
func (c *Client) Stop() error {
	if c.conn != nil {
		c.conn.Close()
	}
	if c.cmd != nil && c.cmd.Process != nil {
		return c.cmd.Process.Kill()
	}
	return nil
}

// Tool is a single tool exposed by an MCP server.
type Tool struct {
	serverName  string
	toolName    string
	description string
	client      *Client
}

// Name returns the tool's short name as the server advertises it. Some
// providers reject names containing ':' so the server prefix is not
// included here; toolset selectors carry the prefix instead.
func (t *Tool) Name() string {
	return t.toolName
}

// Description returns the tool's description, provided by the MCP server.
func (t *Tool) Description() string {
	return t.description
}

// Schema returns the parameter properties. MCP servers describe their own
// input schemas on the wire; exposing a generic object here lets the model
// pass arguments straight through.
func (t *Tool) Schema() map[string]interface{} {
	return map[string]interface{}{}
}

// Execute sends the call to the MCP server and concatenates the text
// content of the result.
func (t *Tool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	result, err := t.client.conn.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      t.toolName,
		Arguments: args,
	})
	if err != nil {
		return "", errors.Wrapf(err, "failed to call tool '%s'", t.Name())
	}
	out := ""
	for _, c := range result.Content {
		if text, ok := c.(*mcpsdk.TextContent); ok {
			out += text.Text
		}
	}
	return out, nil
}
