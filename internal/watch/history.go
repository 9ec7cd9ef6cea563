package watch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// History remembers which archives a watch session has already converted so
// restarts do not reprocess them. Safe for concurrent use.
type History struct {
	path string

	mu   sync.Mutex
	done map[string]struct{}
}

type historyFile struct {
	ProcessedFiles []string `json:"processed_files"`
	LastUpdated    string   `json:"last_updated"`
}

// NewHistory returns an empty history that saves to path.
func NewHistory(path string) *History {
	return &History{path: path, done: make(map[string]struct{})}
}

// LoadHistory reads a history file. A missing file yields an empty history.
func LoadHistory(path string) (*History, error) {
	h := NewHistory(path)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return h, nil
		}
		return nil, fmt.Errorf("read history: %w", err)
	}
	var file historyFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse history %s: %w", path, err)
	}
	for _, p := range file.ProcessedFiles {
		h.done[p] = struct{}{}
	}
	return h, nil
}

// Contains reports whether path was already processed.
func (h *History) Contains(path string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.done[path]
	return ok
}

// Add marks path as processed.
func (h *History) Add(path string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.done[path] = struct{}{}
}

// Len returns the number of processed paths.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.done)
}

// Save writes the history file atomically via a temp file rename.
func (h *History) Save() error {
	h.mu.Lock()
	paths := make([]string, 0, len(h.done))
	for p := range h.done {
		paths = append(paths, p)
	}
	h.mu.Unlock()
	sort.Strings(paths)

	data, err := json.MarshalIndent(historyFile{
		ProcessedFiles: paths,
		LastUpdated:    time.Now().Format(time.RFC3339),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}

	if dir := filepath.Dir(h.path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create history directory: %w", err)
		}
	}
	tmp := h.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write history: %w", err)
	}
	if err := os.Rename(tmp, h.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace history: %w", err)
	}
	return nil
}
