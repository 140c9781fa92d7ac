package store

import (
	"context"
	"fmt"
	"strings"

	"clubsite/internal/lock"
)

// Options selects and configures a document backend.
type Options struct {
	Backend      string
	DocumentPath string
	SQLitePath   string
	PostgresDSN  string
	Locker       lock.Locker
}

// OpenBackend opens the DocumentStore named by opts.Backend. The file backend
// is the default.
func OpenBackend(ctx context.Context, opts Options) (DocumentStore, error) {
	backend := strings.ToLower(strings.TrimSpace(opts.Backend))
	switch backend {
	case "", BackendFile:
		var fileOpts []FileOption
		if opts.Locker != nil {
			fileOpts = append(fileOpts, WithLocker(opts.Locker))
		}
		return OpenFile(opts.DocumentPath, fileOpts...)
	case BackendSQLite:
		return Open(opts.SQLitePath)
	case BackendPostgres:
		return OpenPostgres(ctx, opts.PostgresDSN)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, opts.Backend)
	}
}
