package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"clubsite/internal/models"
)

// documentAdvisoryLock is the pg_advisory_xact_lock key guarding Update.
const documentAdvisoryLock int64 = 0x636c7562 // "club"

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS posts (
		id TEXT PRIMARY KEY,
		position INTEGER NOT NULL,
		title TEXT NOT NULL,
		content TEXT NOT NULL,
		tags TEXT[] NOT NULL DEFAULT '{}',
		author_id TEXT NOT NULL,
		author_name TEXT NOT NULL,
		date TIMESTAMPTZ NOT NULL,
		files JSONB NOT NULL DEFAULT '[]'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_posts_position ON posts(position)`,
	`CREATE TABLE IF NOT EXISTS attachments (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		type TEXT NOT NULL,
		author_id TEXT NOT NULL,
		post_id TEXT NOT NULL,
		upload_date TIMESTAMPTZ NOT NULL,
		size BIGINT NOT NULL DEFAULT 0,
		sha256 TEXT NOT NULL DEFAULT '',
		blob_key TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_attachments_post ON attachments(post_id)`,
}

// PostgresStore keeps the newsletter document in PostgreSQL. Update takes a
// transaction-scoped advisory lock so writers on any number of server
// processes are serialized.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to dsn and creates the schema if needed.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	for _, q := range postgresSchema {
		if _, err := s.pool.Exec(ctx, q); err != nil {
			return fmt.Errorf("init postgres schema: %w", err)
		}
	}
	return nil
}

// Backend names the storage backend.
func (s *PostgresStore) Backend() string {
	return BackendPostgres
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// Load reads the document in a read-only snapshot.
func (s *PostgresStore) Load(ctx context.Context) (*models.Document, error) {
	var doc *models.Document
	err := pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{AccessMode: pgx.ReadOnly}, func(tx pgx.Tx) error {
		var err error
		doc, err = pgLoadDocument(ctx, tx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// Save replaces the stored document.
func (s *PostgresStore) Save(ctx context.Context, doc *models.Document) error {
	if doc == nil {
		return fmt.Errorf("document is required")
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return pgSaveDocument(ctx, tx, doc)
	})
}

// Update runs fn under the document advisory lock.
func (s *PostgresStore) Update(ctx context.Context, fn func(doc *models.Document) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", documentAdvisoryLock); err != nil {
			return fmt.Errorf("lock document: %w", err)
		}
		doc, err := pgLoadDocument(ctx, tx)
		if err != nil {
			return err
		}
		if err := fn(doc); err != nil {
			return err
		}
		return pgSaveDocument(ctx, tx, doc)
	})
}

func pgLoadDocument(ctx context.Context, tx pgx.Tx) (*models.Document, error) {
	doc := models.NewDocument()

	rows, err := tx.Query(ctx, `
		SELECT id, title, content, tags, author_id, author_name, date, files
		FROM posts
		ORDER BY position ASC
	`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var (
			post     models.Post
			filesRaw []byte
		)
		if err := rows.Scan(&post.ID, &post.Title, &post.Content, &post.Tags, &post.AuthorID, &post.AuthorName, &post.Date, &filesRaw); err != nil {
			rows.Close()
			return nil, err
		}
		if err := json.Unmarshal(filesRaw, &post.Files); err != nil {
			rows.Close()
			return nil, fmt.Errorf("post %s files: %w", post.ID, err)
		}
		post.Date = post.Date.UTC()
		doc.Posts = append(doc.Posts, post)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	attRows, err := tx.Query(ctx, `
		SELECT id, name, type, author_id, post_id, upload_date, size, sha256, blob_key
		FROM attachments
	`)
	if err != nil {
		return nil, err
	}
	defer attRows.Close()
	for attRows.Next() {
		var (
			id         string
			attachment models.Attachment
		)
		if err := attRows.Scan(&id, &attachment.Name, &attachment.Type, &attachment.AuthorID, &attachment.PostID, &attachment.UploadDate, &attachment.Size, &attachment.SHA256, &attachment.BlobKey); err != nil {
			return nil, err
		}
		attachment.UploadDate = attachment.UploadDate.UTC()
		doc.Files[id] = attachment
	}
	if err := attRows.Err(); err != nil {
		return nil, err
	}

	doc.Normalize()
	return doc, nil
}

func pgSaveDocument(ctx context.Context, tx pgx.Tx, doc *models.Document) error {
	doc.Normalize()

	batch := &pgx.Batch{}
	batch.Queue("DELETE FROM attachments")
	batch.Queue("DELETE FROM posts")
	for i, post := range doc.Posts {
		_, files, err := encodePostCollections(post)
		if err != nil {
			return err
		}
		tags := post.Tags
		if tags == nil {
			tags = []string{}
		}
		batch.Queue(`
			INSERT INTO posts (id, position, title, content, tags, author_id, author_name, date, files)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb)
		`, post.ID, i, post.Title, post.Content, tags, post.AuthorID, post.AuthorName, post.Date.UTC(), files)
	}
	for id, attachment := range doc.Files {
		batch.Queue(`
			INSERT INTO attachments (id, name, type, author_id, post_id, upload_date, size, sha256, blob_key)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, id, attachment.Name, attachment.Type, attachment.AuthorID, attachment.PostID, attachment.UploadDate.UTC(), attachment.Size, attachment.SHA256, attachment.BlobKey)
	}

	results := tx.SendBatch(ctx, batch)
	var errs []error
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			errs = append(errs, err)
			break
		}
	}
	if err := results.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("save document: %w", err)
	}
	return nil
}
