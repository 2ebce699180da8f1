package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

// safeID limits session ids used as file names.
var safeID = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// FileStore keeps one JSON file per session in a directory.
type FileStore struct {
	dir    string
	config Config
}

// NewFileStore creates the directory if needed.
func NewFileStore(dir string, config Config) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating session directory: %w", err)
	}
	return &FileStore{dir: dir, config: config}, nil
}

// Path returns the file a session is stored in.
func (f *FileStore) Path(id string) (string, error) {
	if !safeID.MatchString(id) || id == "." || id == ".." {
		return "", fmt.Errorf("invalid session id %q", id)
	}
	return filepath.Join(f.dir, id+".json"), nil
}

// Load reads a session. A missing file yields a new empty session.
func (f *FileStore) Load(_ context.Context, id string) (*Context, error) {
	path, err := f.Path(id)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return New(id, f.config), nil
		}
		return nil, fmt.Errorf("reading session state: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshaling session state: %w", err)
	}
	snap.ID = id
	return Restore(snap, f.config), nil
}

// Save writes the session atomically via a temp file and rename.
func (f *FileStore) Save(_ context.Context, s *Context) error {
	path, err := f.Path(s.ID())
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(s.Snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling session state: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing session state temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("renaming session state file: %w", err)
	}
	return nil
}

// Reset removes the session file. A missing file is not an error.
func (f *FileStore) Reset(_ context.Context, id string) error {
	path, err := f.Path(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing session state: %w", err)
	}
	return nil
}
