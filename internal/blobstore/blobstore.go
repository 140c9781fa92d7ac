// Package blobstore keeps raw attachment bytes addressed by their SHA-256.
package blobstore

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned when a key has no stored content.
var ErrNotFound = errors.New("blob not found")

// ErrTooLarge is returned by Put when content exceeds the size limit.
var ErrTooLarge = errors.New("blob too large")

// PutResult describes stored content.
type PutResult struct {
	Key       string
	SHA256    string
	SizeBytes int64
}

// Store persists attachment bytes. Identical content shares one key.
type Store interface {
	Put(ctx context.Context, r io.Reader) (PutResult, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}
