package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// FileStore writes each report as a pretty-printed JSON file named after its
// interview identifier. Safe for concurrent use.
type FileStore struct {
	mu  sync.Mutex
	dir string
}

// NewFileStore creates the target directory if needed and returns a store
// writing into it.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		dir = "reports"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("report: create directory %s: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

// Save writes rep to <dir>/<interview_id>.json and returns the file path.
// If a file with that name already exists, a short random suffix is appended
// so concurrent sessions for the same candidate never clobber each other.
func (s *FileStore) Save(_ context.Context, rep *SessionReport) (string, error) {
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return "", fmt.Errorf("report: marshal: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, rep.InterviewID+".json")
	if _, err := os.Stat(path); err == nil {
		path = filepath.Join(s.dir, fmt.Sprintf("%s_%s.json", rep.InterviewID, uuid.NewString()[:8]))
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("report: stat %s: %w", path, err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("report: write %s: %w", path, err)
	}
	return path, nil
}
