package kvstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/adrg/xdg"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
)

// FileStore is a KV implementation persisted as a single JSON object in
// one file, so ledger entries survive process restarts. Every Get re-reads
// the file, which keeps independent processes reasonably fresh without a
// locking protocol (concurrent writers can still race; see the ledger
// documentation).
type FileStore struct {
	mu   sync.Mutex
	fs   billy.Filesystem
	path string
}

// NewFileStore creates a file store persisting to the given path on the
// OS filesystem. The file is created on first Set.
func NewFileStore(path string) *FileStore {
	return &FileStore{
		fs:   osfs.New(filepath.Dir(path)),
		path: filepath.Base(path),
	}
}

// NewFileStoreFS creates a file store on an arbitrary billy filesystem.
// This allows in-memory filesystems in tests.
func NewFileStoreFS(fsys billy.Filesystem, path string) *FileStore {
	return &FileStore{
		fs:   fsys,
		path: path,
	}
}

// DefaultFilePath returns the conventional location for the upload state
// file under the user's XDG state directory, creating parent directories
// as needed.
func DefaultFilePath() (string, error) {
	path, err := xdg.StateFile("vams/uploads.json")
	if err != nil {
		return "", fmt.Errorf("resolve state path: %w", err)
	}
	return path, nil
}

// Get returns the value stored under key, re-reading the backing file.
func (s *FileStore) Get(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.load()
	if err != nil {
		return "", false, err
	}

	value, ok := items[key]
	return value, ok, nil
}

// Set stores value under key and rewrites the backing file.
func (s *FileStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.load()
	if err != nil {
		return err
	}
	items[key] = value

	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("encode store: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create store directory: %w", err)
		}
	}

	if err := util.WriteFile(s.fs, s.path, data, 0o600); err != nil {
		return fmt.Errorf("write store: %w", err)
	}
	return nil
}

// load reads the whole backing file into a map. A missing file, an empty
// file, and an unparseable file all read as an empty map so a damaged
// store never blocks new uploads.
func (s *FileStore) load() (map[string]string, error) {
	data, err := util.ReadFile(s.fs, s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("read store: %w", err)
	}

	items := make(map[string]string)
	if len(data) == 0 {
		return items, nil
	}
	if err := json.Unmarshal(data, &items); err != nil {
		return map[string]string{}, nil
	}
	return items, nil
}

// Compile-time interface check.
var _ KV = (*FileStore)(nil)
