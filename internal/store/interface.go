package store

import (
	"context"
	"errors"

	"clubsite/internal/models"
)

// Backend names accepted by config.
const (
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// ErrUnknownBackend is returned for an unsupported backend name.
var ErrUnknownBackend = errors.New("unknown storage backend")

// DocumentStore persists the newsletter document as a whole.
//
// Update is the only write path used by request handlers: it loads the
// current document, hands it to fn, and saves the result, holding the
// backend's exclusion boundary across all three steps. When fn returns an
// error nothing is written.
type DocumentStore interface {
	Load(ctx context.Context) (*models.Document, error)
	Save(ctx context.Context, doc *models.Document) error
	Update(ctx context.Context, fn func(doc *models.Document) error) error
	Backend() string
	Close() error
}

var (
	_ DocumentStore = (*FileStore)(nil)
	_ DocumentStore = (*Store)(nil)
	_ DocumentStore = (*PostgresStore)(nil)
)
