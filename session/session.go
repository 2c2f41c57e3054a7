package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Session is the locally persisted transcript of one conversation thread,
// plus the front-end settings the conversation was started with. The
// message list doubles as the fallback history source when no managed
// memory store holds the thread.
type Session struct {
	Name          string    `json:"name"`
	Messages      []Message `json:"messages"`
	Mode          string    `json:"mode,omitempty"`
	Toolset       string    `json:"toolset,omitempty"`
	ToolVerbosity string    `json:"tool_verbosity,omitempty"`
	Acp           bool      `json:"acp,omitempty"`
	path          string
}

// New creates a new session persisted under dir.
func New(dir, name string) (*Session, error) {
	path, err := sessionPath(dir, name)
	if err != nil {
		return nil, err
	}
	return &Session{
		Name:     name,
		Messages: []Message{},
		path:     path,
	}, nil
}

// Load loads an existing session from disk.
func Load(dir, name string) (*Session, error) {
	path, err := sessionPath(dir, name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read session file %s: %w", path, err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("could not parse session file %s: %w", path, err)
	}
	s.path = path
	return &s, nil
}

// Save writes the current session state to disk.
func (s *Session) Save() error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize session: %w", err)
	}
	return os.WriteFile(s.path, data, 0644)
}

// AddMessage appends a message to the session history.
func (s *Session) AddMessage(msg Message) {
	s.Messages = append(s.Messages, msg)
}

func sessionPath(dir, name string) (string, error) {
	sessionDir := filepath.Join(dir, "sessions")
	if err := os.MkdirAll(sessionDir, 0755); err != nil {
		return "", fmt.Errorf("could not create session directory: %w", err)
	}
	return filepath.Join(sessionDir, fmt.Sprintf("%s.json", name)), nil
}
