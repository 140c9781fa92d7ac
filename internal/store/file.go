package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"clubsite/internal/lock"
	"clubsite/internal/models"
)

const documentLockKey = "newsletter-document"

// FileStore keeps the newsletter document in one JSON file.
//
// Writes go to a sibling temp file that is renamed over the target, so a
// reader never observes a half-written document. Update holds an in-process
// mutex and, when configured, a cross-process lock.
type FileStore struct {
	path   string
	mu     sync.Mutex
	locker lock.Locker
}

// FileOption customizes a FileStore.
type FileOption func(*FileStore)

// WithLocker adds a cross-process lock around Update, e.g. a Redis lock when
// several servers share the file over a network mount.
func WithLocker(locker lock.Locker) FileOption {
	return func(s *FileStore) {
		s.locker = locker
	}
}

// OpenFile returns a FileStore for path. The file is created lazily on first
// save; its directory is created now.
func OpenFile(path string, opts ...FileOption) (*FileStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("document path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create document dir: %w", err)
	}
	s := &FileStore{path: path}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Path returns the document file path.
func (s *FileStore) Path() string {
	return s.path
}

// Backend names the storage backend.
func (s *FileStore) Backend() string {
	return BackendFile
}

// Load reads the document. A missing or empty file is an empty document.
func (s *FileStore) Load(ctx context.Context) (*models.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return models.NewDocument(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return models.NewDocument(), nil
	}

	doc := models.NewDocument()
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("parse document %s: %w", s.path, err)
	}
	doc.Normalize()
	return doc, nil
}

// Save overwrites the document without taking the update lock.
func (s *FileStore) Save(ctx context.Context, doc *models.Document) error {
	if doc == nil {
		return fmt.Errorf("document is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	doc.Normalize()
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	return writeFileAtomic(s.path, append(data, '\n'))
}

// Update runs one serialized read-modify-write cycle.
func (s *FileStore) Update(ctx context.Context, fn func(doc *models.Document) error) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.locker != nil {
		unlock, lockErr := s.locker.Lock(ctx, documentLockKey)
		if lockErr != nil {
			return fmt.Errorf("lock document: %w", lockErr)
		}
		defer func() {
			if unlockErr := unlock(context.WithoutCancel(ctx)); unlockErr != nil && err == nil {
				err = fmt.Errorf("unlock document: %w", unlockErr)
			}
		}()
	}

	doc, err := s.Load(ctx)
	if err != nil {
		return err
	}
	if err := fn(doc); err != nil {
		return err
	}
	return s.Save(ctx, doc)
}

// Close is a no-op for files.
func (s *FileStore) Close() error {
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp document: %w", err)
	}
	tmpPath := tmp.Name()
	fail := func(err error) error {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}

	if _, err := tmp.Write(data); err != nil {
		return fail(fmt.Errorf("write temp document: %w", err))
	}
	if err := tmp.Sync(); err != nil {
		return fail(fmt.Errorf("sync temp document: %w", err))
	}
	if err := tmp.Chmod(0o644); err != nil {
		return fail(err)
	}
	if err := tmp.Close(); err != nil {
		return fail(err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("replace document: %w", err)
	}
	return nil
}
