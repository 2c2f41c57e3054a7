package acp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/m4xw311/parley/agent"
	"github.com/m4xw311/parley/session"
	"github.com/m4xw311/parley/toolcall"
)

// Run starts the Agent Client Protocol server over stdio using JSON-RPC.
// It implements a minimal subset of ACP:
// - initialize
// - session/new
// - session/load
// - session/prompt (emits session/update notifications with agent_message_chunk, tool_call, and tool_result)
// Notes:
// - This implementation intentionally avoids writing anything to stdout except JSON-RPC messages.
// - Messages are newline-delimited JSON objects rather than Content-Length framed.
func Run(ctx context.Context, parleyAgent *agent.Agent, in *bufio.Reader, out *bufio.Writer, traceFlag *bool) error {
	var traceFile *os.File
	trace := func(msg string) {} // Do nothing by default
	if *traceFlag {
		traceFile, _ = os.OpenFile("acp.trace", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		defer traceFile.Close()
		trace = func(msg string) {
			if traceFile != nil {
				fmt.Fprintf(traceFile, "[%s] %s\n", time.Now().Format("15:04:05.000"), msg)
			}
		}
	}

	server := &acpServer{
		ctx:          ctx,
		agent:        parleyAgent,
		sessions:     make(map[string]*session.Session),
		stdinReader:  in,
		stdoutWriter: out,
		trace:        trace,
	}

	for {
		payload, err := server.readFramedMessage()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			// If framing is broken, there isn't a safe way to continue.
			return fmt.Errorf("ACP: read error: %w", err)
		}
		if len(payload) == 0 {
			continue
		}

		trace(fmt.Sprintf("recv: %s", string(payload)))
		var req jsonrpcRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			_ = server.writeResponseError(nil, -32700, "Parse error", nil)
			continue
		}

		switch req.Method {
		case "initialize":
			server.handleInitialize(&req)
		case "session/new":
			server.handleSessionNew(&req)
		case "session/load":
			server.handleSessionLoad(&req)
		case "session/prompt":
			server.handleSessionPrompt(&req)
		default:
			_ = server.writeResponseError(req.ID, -32601, "Method not found", nil)
		}
	}
}

// ---- Minimal ACP handling types ----

// jsonrpcRequest represents a JSON-RPC 2.0 request message
type jsonrpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      any    `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// jsonrpcResponse represents a JSON-RPC 2.0 response message
type jsonrpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonrpcError   `json:"error,omitempty"`
}

// jsonrpcError represents a JSON-RPC 2.0 error object
type jsonrpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// ---- acpServer ----

// acpServer manages sessions, handles requests, and communicates with the
// client over stdio.
type acpServer struct {
	ctx          context.Context
	agent        *agent.Agent
	sessions     map[string]*session.Session
	sessionsLock sync.Mutex
	sessionIDSeq int64

	stdinReader  *bufio.Reader
	stdoutWriter *bufio.Writer
	writeLock    sync.Mutex
	trace        func(string)
}

// readFramedMessage reads a single newline-delimited JSON-RPC payload.
func (s *acpServer) readFramedMessage() ([]byte, error) {
	line, _, err := s.stdinReader.ReadLine()
	if err != nil {
		return nil, err
	}
	return line, nil
}

// writeFramedJSON serializes and writes a JSON-RPC message to stdout,
// newline-delimited as the protocol requires.
func (s *acpServer) writeFramedJSON(obj any) error {
	data, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("failed to serialize JSON-RPC message: %w", err)
	}
	s.trace(fmt.Sprintf("send: %s", string(data)))

	s.writeLock.Lock()
	defer s.writeLock.Unlock()
	if _, err := s.stdoutWriter.Write(data); err != nil {
		return err
	}
	if _, err := s.stdoutWriter.WriteString("\n"); err != nil {
		return err
	}
	return s.stdoutWriter.Flush()
}

// writeResponseOK sends a successful JSON-RPC response with the given result
func (s *acpServer) writeResponseOK(id any, result json.RawMessage) error {
	return s.writeFramedJSON(jsonrpcResponse{
		JSONRPC: "2.0",
		ID:      id,
		Result:  result,
	})
}

// writeResponseError sends a JSON-RPC error response with the specified error code and message
func (s *acpServer) writeResponseError(id any, code int, msg string, data any) error {
	return s.writeFramedJSON(jsonrpcResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &jsonrpcError{
			Code:    code,
			Message: msg,
			Data:    data,
		},
	})
}

// writeNotification sends a JSON-RPC notification (request without an ID)
func (s *acpServer) writeNotification(method string, params any) error {
	return s.writeFramedJSON(map[string]any{
		"jsonrpc": "2.0",
		"method":  method,
		"params":  params,
	})
}

// ---- Handlers ----

// handleInitialize processes the initialize request from the ACP client.
// It returns the protocol version and agent capabilities.
func (s *acpServer) handleInitialize(req *jsonrpcRequest) {
	resp := map[string]any{
		"protocolVersion": 1,
		"agentCapabilities": map[string]any{
			"loadSession": true,
			"promptCapabilities": map[string]bool{
				"audio":           false,
				"embeddedContext": false,
				"image":           false,
			},
		},
		"authMethods": []any{},
	}
	respBytes, err := json.Marshal(resp)
	if err != nil {
		s.trace(fmt.Sprintf("handleInitialize: marshal error: %v", err))
		return
	}
	_ = s.writeResponseOK(req.ID, json.RawMessage(respBytes))
}

// handleSessionNew creates a new session with a unique ID, initializes it
// with the agent's configuration metadata, and returns the ID.
func (s *acpServer) handleSessionNew(req *jsonrpcRequest) {
	sid := s.nextSessionID()

	sess, err := session.New(s.agent.Config.DataDir, sid)
	if err != nil {
		_ = s.writeResponseError(req.ID, -32603, "Internal error", fmt.Sprintf("failed to create session: %v", err))
		return
	}

	sess.Mode = s.agent.Session.Mode
	sess.Toolset = s.agent.Session.Toolset
	sess.ToolVerbosity = s.agent.Session.ToolVerbosity
	sess.Acp = true

	s.sessionsLock.Lock()
	s.sessions[sid] = sess
	s.sessionsLock.Unlock()

	respBytes, err := json.Marshal(map[string]any{"sessionId": sid})
	if err != nil {
		s.trace(fmt.Sprintf("handleSessionNew: marshal error: %v", err))
		return
	}
	_ = s.writeResponseOK(req.ID, json.RawMessage(respBytes))
}

// handleSessionLoad loads an existing session from disk and replays the
// conversation history as session/update notifications.
func (s *acpServer) handleSessionLoad(req *jsonrpcRequest) {
	type sessionLoadParams struct {
		SessionID  string          `json:"sessionId"`
		Cwd        string          `json:"cwd"`
		McpServers json.RawMessage `json:"mcpServers"`
	}
	var p sessionLoadParams
	if err := reparse(req.Params, &p); err != nil {
		_ = s.writeResponseError(req.ID, -32603, "Internal error", err.Error())
		return
	}

	sess, err := session.Load(s.agent.Config.DataDir, p.SessionID)
	if err != nil {
		_ = s.writeResponseError(req.ID, -32602, "Invalid params", fmt.Sprintf("session not found: %v", err))
		return
	}

	s.sessionsLock.Lock()
	s.sessions[p.SessionID] = sess
	s.sessionsLock.Unlock()

	for _, msg := range sess.Messages {
		switch msg.Role {
		case session.RoleUser:
			_ = s.writeNotification("session/update", map[string]any{
				"sessionId": p.SessionID,
				"update": map[string]any{
					"sessionUpdate": "user_message_chunk",
					"content": map[string]any{
						"type": "text",
						"text": msg.Text(),
					},
				},
			})
		case session.RoleAssistant:
			if text := msg.Text(); text != "" {
				_ = s.sendAgentMessageChunk(p.SessionID, text)
			}
			for _, tc := range msg.ToolCalls {
				_ = s.sendToolCallNotification(p.SessionID, tc.ToolCallID, tc.Name, tc.Args)
			}
		}
	}

	_ = s.writeResponseOK(req.ID, json.RawMessage("null"))
}

// contentBlock represents a content block in ACP prompt requests.
// For this minimal implementation, we only handle text blocks and
// resource links.
type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	// ResourceLink fields
	URI         string `json:"uri,omitempty"`
	Name        string `json:"name,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Size        *int64 `json:"size,omitempty"`
}

// handleSessionPrompt processes a prompt request: it drives the agent's
// turn loop, streaming agent_message_chunk notifications per text delta
// and tool_call/tool_result notifications as tools run.
func (s *acpServer) handleSessionPrompt(req *jsonrpcRequest) {
	type promptParams struct {
		SessionID string         `json:"sessionId"`
		Prompt    []contentBlock `json:"prompt"`
	}
	var p promptParams
	if err := reparse(req.Params, &p); err != nil {
		_ = s.writeResponseError(req.ID, -32603, "Internal error", err.Error())
		return
	}

	s.sessionsLock.Lock()
	sess, ok := s.sessions[p.SessionID]
	s.sessionsLock.Unlock()
	if !ok {
		_ = s.writeResponseError(req.ID, -32602, "Invalid params", "unknown sessionId")
		return
	}

	userText := extractUserText(p.Prompt)

	// Call IDs queued in suggestion order for tool_result correlation.
	// Execution is strictly sequential and every suggested call resolves
	// exactly once (the gate below always confirms), so results pop in
	// the same order even when one tool is called several times.
	var pendingCallIDs []string
	nextCallID := func() string {
		if len(pendingCallIDs) == 0 {
			return ""
		}
		id := pendingCallIDs[0]
		pendingCallIDs = pendingCallIDs[1:]
		return id
	}

	callbacks := agent.Callbacks{
		OnStream: func(delta string) {
			_ = s.sendAgentMessageChunk(p.SessionID, delta)
		},
		OnToolSuggested: func(requests []toolcall.Request) {
			for _, r := range requests {
				pendingCallIDs = append(pendingCallIDs, r.ID)
				_ = s.sendToolCallNotification(p.SessionID, r.ID, r.Name, r.Args)
			}
		},
		ConfirmToolCall: func(req toolcall.Request) bool {
			// In ACP mode the client does not gate tool calls.
			return true
		},
		OnToolExecuted: func(name, result string) {
			_ = s.sendToolResultNotification(p.SessionID, nextCallID(), result)
		},
		OnToolError: func(name, errMsg string) agent.Resolution {
			_ = s.sendToolResultNotification(p.SessionID, nextCallID(), fmt.Sprintf("error: %s", errMsg))
			return agent.ResolutionSkip
		},
	}

	s.agent.Session = sess // route this prompt through the ACP session
	if err := s.agent.ProcessUserInput(s.ctx, userText, callbacks); err != nil {
		_ = s.writeResponseError(req.ID, -32603, "Internal error", fmt.Sprintf("error processing user input: %v", err))
		return
	}

	respBytes, err := json.Marshal(map[string]any{"stopReason": "end_turn"})
	if err != nil {
		s.trace(fmt.Sprintf("handleSessionPrompt: marshal error: %v", err))
		return
	}
	_ = s.writeResponseOK(req.ID, json.RawMessage(respBytes))
}

// sendToolCallNotification emits a session/update notification for a tool
// call the agent wants to execute.
func (s *acpServer) sendToolCallNotification(sessionID, callID, name string, args map[string]any) error {
	return s.writeNotification("session/update", map[string]any{
		"sessionId": sessionID,
		"update": map[string]any{
			"sessionUpdate": "tool_call",
			"toolCall": map[string]any{
				"id":   callID,
				"name": name,
				"args": args,
			},
		},
	})
}

// sendToolResultNotification emits a session/update notification for the
// result of an executed tool call.
func (s *acpServer) sendToolResultNotification(sessionID, toolCallID, result string) error {
	return s.writeNotification("session/update", map[string]any{
		"sessionId": sessionID,
		"update": map[string]any{
			"sessionUpdate": "tool_result",
			"toolResult": map[string]any{
				"toolCallId": toolCallID,
				"result":     result,
			},
		},
	})
}

// sendAgentMessageChunk streams one fragment of agent text to the client.
func (s *acpServer) sendAgentMessageChunk(sessionID, text string) error {
	return s.writeNotification("session/update", map[string]any{
		"sessionId": sessionID,
		"update": map[string]any{
			"sessionUpdate": "agent_message_chunk",
			"content": map[string]any{
				"type": "text",
				"text": text,
			},
		},
	})
}

// nextSessionID generates a unique session ID using a timestamp and sequence number
func (s *acpServer) nextSessionID() string {
	s.sessionIDSeq++
	return fmt.Sprintf("sess_%d_%d", time.Now().UnixNano(), s.sessionIDSeq)
}

// reparse round-trips loosely typed params into a concrete struct.
func reparse(params any, into any) error {
	b, err := json.Marshal(params)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, into)
}

// extractUserText creates a single string from all content blocks.
// Resource links with file:// URIs are inlined (size-capped) so the model
// can see the referenced content.
func extractUserText(blocks []contentBlock) string {
	var parts []string
	for _, b := range blocks {
		switch b.Type {
		case "text":
			if strings.TrimSpace(b.Text) != "" {
				parts = append(parts, b.Text)
			}
		case "resource_link":
			resourceInfo := fmt.Sprintf("=== Resource: %s ===\n", b.Name)
			if b.Title != "" {
				resourceInfo += fmt.Sprintf("Title: %s\n", b.Title)
			}
			if b.Description != "" {
				resourceInfo += fmt.Sprintf("Description: %s\n", b.Description)
			}
			resourceInfo += fmt.Sprintf("URI: %s\n", b.URI)
			if b.MimeType != "" {
				resourceInfo += fmt.Sprintf("Type: %s\n", b.MimeType)
			}
			if b.Size != nil {
				resourceInfo += fmt.Sprintf("Size: %d bytes\n", *b.Size)
			}

			if strings.HasPrefix(b.URI, "file://") {
				content, err := readFileFromURI(b.URI)
				if err != nil {
					resourceInfo += fmt.Sprintf("\n[Error reading file: %v]\n", err)
				} else {
					const maxContentSize = 50000 // 50KB limit for inline content
					if len(content) > maxContentSize {
						content = content[:maxContentSize] + "\n\n[... truncated to 50KB ...]"
					}
					resourceInfo += fmt.Sprintf("\n--- File Contents ---\n%s\n--- End of File ---\n", content)
				}
			} else {
				resourceInfo += "\n[External resource - content not available]\n"
			}

			resourceInfo += "=== End Resource ===\n"
			parts = append(parts, resourceInfo)
		}
	}
	return strings.Join(parts, "\n")
}

// readFileFromURI attempts to read file contents from a file:// URI.
func readFileFromURI(uri string) (string, error) {
	path := strings.TrimPrefix(uri, "file://")
	if path == "" || path == uri {
		return "", fmt.Errorf("unsupported URI: %s", uri)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %v", err)
	}
	return string(content), nil
}
