package journal

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// File is an append-only text journal. Every Append opens the file, writes
// the whole line in one call and closes it again, so external rotation
// (logrotate, the archiver) never leaves us writing to an unlinked inode.
type File struct {
	path string
	mu   sync.Mutex
}

// New creates a journal at path. The parent directory is created on demand.
func New(path string) *File {
	return &File{path: path}
}

// Path returns the file location.
func (f *File) Path() string { return f.path }

// Append writes line followed by a newline. Embedded newlines are flattened
// so one call always produces exactly one line.
func (f *File) Append(line string) error {
	line = strings.ReplaceAll(line, "\r", " ")
	line = strings.ReplaceAll(line, "\n", " ")

	f.mu.Lock()
	defer f.mu.Unlock()

	if dir := filepath.Dir(f.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create journal directory: %w", err)
		}
	}

	file, err := os.OpenFile(f.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}

	if _, err := file.Write([]byte(line + "\n")); err != nil {
		file.Close()
		return fmt.Errorf("write journal: %w", err)
	}

	if err := file.Close(); err != nil {
		return fmt.Errorf("close journal: %w", err)
	}

	return nil
}

// Lines reads every line currently in the journal. A missing file is empty.
func (f *File) Lines() ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}

	text := strings.TrimSuffix(string(data), "\n")
	if text == "" {
		return nil, nil
	}
	return strings.Split(text, "\n"), nil
}

// Snapshot returns the current bytes of the journal, for archiving.
func (f *File) Snapshot() ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("snapshot journal: %w", err)
	}
	return data, nil
}
