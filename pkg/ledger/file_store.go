package ledger

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/chainbridge-labs/spine/pkg/contracts"
)

// FileStore persists the chain as an append-only JSONL file, one
// self-describing ChainEntry per line. Every append is fsynced before it is
// acknowledged.
type FileStore struct {
	mu   sync.Mutex
	path string
	file *os.File
}

// NewFileStore opens (or creates) the chain file at path.
func NewFileStore(path string) (*FileStore, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("open chain file: %w", err)
	}
	return &FileStore{path: path, file: f}, nil
}

func (s *FileStore) Append(_ context.Context, entry *contracts.ChainEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal chain entry: %w", err)
	}
	if _, err := s.file.Write(append(raw, '\n')); err != nil {
		return fmt.Errorf("write chain entry: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("fsync chain entry: %w", err)
	}
	return nil
}

func (s *FileStore) Load(_ context.Context) ([]contracts.ChainEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open chain file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var entries []contracts.ChainEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var entry contracts.ChainEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			return nil, fmt.Errorf("chain file line %d: %w", line, err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read chain file: %w", err)
	}
	return entries, nil
}

// Close closes the underlying file.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
