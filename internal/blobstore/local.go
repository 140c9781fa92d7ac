package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const keyPrefix = "sha256"

// Local stores blobs under root/sha256/aa/bb/<digest>.
type Local struct {
	root    string
	maxSize int64
}

// NewLocal creates root (and its staging dir) if needed. maxSize <= 0 means
// unlimited.
func NewLocal(root string, maxSize int64) (*Local, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("blob root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Join(abs, "staging"), 0o755); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &Local{root: abs, maxSize: maxSize}, nil
}

// Root returns the absolute blob directory.
func (l *Local) Root() string {
	return l.root
}

// Put stages r to a temp file while hashing, then renames it to its digest
// path. Existing content is reused.
func (l *Local) Put(ctx context.Context, r io.Reader) (PutResult, error) {
	var zero PutResult
	if r == nil {
		return zero, fmt.Errorf("reader is required")
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	staged, err := os.CreateTemp(filepath.Join(l.root, "staging"), "blob-*")
	if err != nil {
		return zero, err
	}
	stagedPath := staged.Name()
	discard := func() {
		_ = staged.Close()
		_ = os.Remove(stagedPath)
	}

	src := r
	if l.maxSize > 0 {
		src = io.LimitReader(r, l.maxSize+1)
	}
	hash := sha256.New()
	size, err := io.Copy(io.MultiWriter(staged, hash), src)
	if err != nil {
		discard()
		return zero, err
	}
	if l.maxSize > 0 && size > l.maxSize {
		discard()
		return zero, fmt.Errorf("%w: exceeds %d bytes", ErrTooLarge, l.maxSize)
	}
	if err := staged.Sync(); err != nil {
		discard()
		return zero, err
	}
	if err := staged.Close(); err != nil {
		discard()
		return zero, err
	}

	digest := hex.EncodeToString(hash.Sum(nil))
	result := PutResult{Key: keyForDigest(digest), SHA256: digest, SizeBytes: size}
	dst := filepath.Join(l.root, filepath.FromSlash(result.Key))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		discard()
		return zero, err
	}

	if _, err := os.Stat(dst); err == nil {
		_ = os.Remove(stagedPath)
		return result, nil
	}
	if err := os.Rename(stagedPath, dst); err != nil {
		if _, statErr := os.Stat(dst); statErr == nil {
			_ = os.Remove(stagedPath)
			return result, nil
		}
		discard()
		return zero, err
	}
	return result, nil
}

// Open returns the content stored under key.
func (l *Local) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := l.resolve(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return f, err
}

// Delete removes key; missing content is not an error.
func (l *Local) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := l.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func keyForDigest(digest string) string {
	return keyPrefix + "/" + digest[0:2] + "/" + digest[2:4] + "/" + digest
}

func (l *Local) resolve(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("blob key is required")
	}
	if !strings.HasPrefix(key, keyPrefix+"/") {
		return "", fmt.Errorf("invalid blob key %q", key)
	}
	clean := filepath.Clean(filepath.FromSlash(key))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid blob key %q", key)
	}
	return filepath.Join(l.root, clean), nil
}
