// Package memory holds the durable conversation state that outlives a
// single request: per-thread message history and the small working-memory
// blob of facts the model has learned about the user. The assembler in
// this package resolves which history source a request should see.
package memory

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/m4xw311/parley/errors"
	"github.com/m4xw311/parley/session"
)

// Store is the persistence collaborator for working memory and managed
// conversation history. Reads that find nothing return zero values, not
// errors.
type Store interface {
	GetWorkingMemory(ctx context.Context, threadID, resourceID string) (string, error)
	SaveWorkingMemory(ctx context.Context, threadID, resourceID, text string) error
	GetConversationMessages(ctx context.Context, threadID string) ([]session.Message, error)
	SaveMessages(ctx context.Context, threadID, resourceID string, msgs []session.Message) error
}

// FileStore persists memory as JSON and text files under a base
// directory. Writes are last-writer-wins per thread.
type FileStore struct {
	dir string
}

// NewFileStore creates the backing directories if needed.
func NewFileStore(dir string) (*FileStore, error) {
	for _, sub := range []string{"memory", "threads"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0755); err != nil {
			return nil, errors.Wrapf(err, "could not create memory directory")
		}
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) GetWorkingMemory(ctx context.Context, threadID, resourceID string) (string, error) {
	data, err := os.ReadFile(s.workingMemoryPath(threadID, resourceID))
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrapf(err, "failed to read working memory")
	}
	return string(data), nil
}

func (s *FileStore) SaveWorkingMemory(ctx context.Context, threadID, resourceID, text string) error {
	return os.WriteFile(s.workingMemoryPath(threadID, resourceID), []byte(text), 0644)
}

func (s *FileStore) GetConversationMessages(ctx context.Context, threadID string) ([]session.Message, error) {
	data, err := os.ReadFile(s.threadPath(threadID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read thread history")
	}
	var msgs []session.Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil, errors.Wrapf(err, "failed to parse thread history for '%s'", threadID)
	}
	return msgs, nil
}

func (s *FileStore) SaveMessages(ctx context.Context, threadID, resourceID string, msgs []session.Message) error {
	data, err := json.MarshalIndent(msgs, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "failed to serialize thread history")
	}
	return os.WriteFile(s.threadPath(threadID), data, 0644)
}

func (s *FileStore) workingMemoryPath(threadID, resourceID string) string {
	return filepath.Join(s.dir, "memory", sanitize(resourceID)+"_"+sanitize(threadID)+".txt")
}

func (s *FileStore) threadPath(threadID string) string {
	return filepath.Join(s.dir, "threads", sanitize(threadID)+".json")
}

// sanitize keeps thread and resource IDs usable as file names.
func sanitize(id string) string {
	if id == "" {
		return "default"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '.', ' ':
			return '-'
		}
		return r
	}, id)
}
