// Package storage holds raw message content. The core's message records
// carry only an opaque content reference; the bytes live here.
package storage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Storage errors
var (
	ErrPathTraversal   = errors.New("path traversal detected")
	ErrContentNotFound = errors.New("content not found")
	ErrContentTooLarge = errors.New("content exceeds size limit")
)

// MaxContentSize is the maximum accepted message size (25 MB).
const MaxContentSize = 25 * 1024 * 1024

// ContentStore persists raw message bytes under opaque references.
type ContentStore interface {
	// Save reads the content to its end and returns a fresh reference.
	Save(content io.Reader) (ref string, size int64, err error)
	// Get opens the content behind a reference.
	Get(ref string) (io.ReadCloser, error)
	// Delete removes the content behind a reference.
	Delete(ref string) error
}

// fileContentStore implements ContentStore on the local filesystem, sharded
// by the first two characters of the reference.
type fileContentStore struct {
	basePath string
}

// NewFileContentStore creates a filesystem-backed store rooted at basePath.
func NewFileContentStore(basePath string) (ContentStore, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create content directory: %w", err)
	}
	return &fileContentStore{basePath: basePath}, nil
}

// refPath validates a reference and maps it onto a path under basePath.
func (s *fileContentStore) refPath(ref string) (string, error) {
	cleaned := filepath.Clean(ref)
	if cleaned == "" || filepath.IsAbs(cleaned) || strings.Contains(cleaned, "..") {
		return "", ErrPathTraversal
	}
	if len(cleaned) < 2 {
		return "", ErrContentNotFound
	}
	return filepath.Join(s.basePath, cleaned[:2], cleaned), nil
}

// Save reads the content to its end and returns a fresh reference
func (s *fileContentStore) Save(content io.Reader) (string, int64, error) {
	ref := uuid.New().String()
	path, err := s.refPath(ref)
	if err != nil {
		return "", 0, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", 0, fmt.Errorf("failed to create shard directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create content file: %w", err)
	}

	size, err := io.Copy(f, io.LimitReader(content, MaxContentSize+1))
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		return "", 0, fmt.Errorf("failed to write content: %w", err)
	}
	if size > MaxContentSize {
		os.Remove(path)
		return "", 0, ErrContentTooLarge
	}
	return ref, size, nil
}

// Get opens the content behind a reference
func (s *fileContentStore) Get(ref string) (io.ReadCloser, error) {
	path, err := s.refPath(ref)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrContentNotFound
		}
		return nil, fmt.Errorf("failed to open content: %w", err)
	}
	return f, nil
}

// Delete removes the content behind a reference
func (s *fileContentStore) Delete(ref string) error {
	path, err := s.refPath(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return ErrContentNotFound
		}
		return fmt.Errorf("failed to delete content: %w", err)
	}
	return nil
}

// memoryContentStore implements ContentStore in memory, for the reference
// backend and tests.
type memoryContentStore struct {
	mu       sync.RWMutex
	contents map[string][]byte
}

// NewMemoryContentStore creates an in-memory content store.
func NewMemoryContentStore() ContentStore {
	return &memoryContentStore{contents: make(map[string][]byte)}
}

// Save reads the content to its end and returns a fresh reference
func (s *memoryContentStore) Save(content io.Reader) (string, int64, error) {
	data, err := io.ReadAll(io.LimitReader(content, MaxContentSize+1))
	if err != nil {
		return "", 0, fmt.Errorf("failed to read content: %w", err)
	}
	if int64(len(data)) > MaxContentSize {
		return "", 0, ErrContentTooLarge
	}

	ref := uuid.New().String()
	s.mu.Lock()
	s.contents[ref] = data
	s.mu.Unlock()
	return ref, int64(len(data)), nil
}

// Get opens the content behind a reference
func (s *memoryContentStore) Get(ref string) (io.ReadCloser, error) {
	s.mu.RLock()
	data, ok := s.contents[ref]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrContentNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Delete removes the content behind a reference
func (s *memoryContentStore) Delete(ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.contents[ref]; !ok {
		return ErrContentNotFound
	}
	delete(s.contents, ref)
	return nil
}
