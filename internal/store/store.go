package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	_ "modernc.org/sqlite"

	"clubsite/internal/models"
)

const (
	busyTimeoutMS   = 5000
	maxOpenConns    = 1
	maxIdleConns    = 1
	connMaxLifetime = 5 * time.Minute
)

// Store keeps the newsletter document in SQLite. The single-connection pool
// plus one transaction per Update serializes writers.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens the SQLite database and applies migrations.
func Open(path string) (*Store, error) {
	dsn, err := sqliteDSN(path)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	if err := configureDB(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, path: path}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Backend names the storage backend.
func (s *Store) Backend() string {
	return BackendSQLite
}

// SchemaVersion returns the applied migration version.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	return version, err
}

// Load reads every post (newest first) and every attachment.
func (s *Store) Load(ctx context.Context) (*models.Document, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()
	return loadDocument(ctx, tx)
}

// Save replaces the stored document.
func (s *Store) Save(ctx context.Context, doc *models.Document) error {
	if doc == nil {
		return fmt.Errorf("document is required")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := saveDocument(ctx, tx, doc); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Update runs fn inside one transaction.
func (s *Store) Update(ctx context.Context, fn func(doc *models.Document) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	doc, err := loadDocument(ctx, tx)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := fn(doc); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := saveDocument(ctx, tx, doc); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func configureDB(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		"PRAGMA foreign_keys = ON;",
		fmt.Sprintf("PRAGMA busy_timeout = %d;", busyTimeoutMS),
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	return nil
}

func sqliteDSN(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("db path is required")
	}
	u := url.URL{Scheme: "file", Path: path}
	return u.String(), nil
}

func loadDocument(ctx context.Context, tx *sql.Tx) (*models.Document, error) {
	doc := models.NewDocument()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, title, content, tags, author_id, author_name, date, files
		FROM posts
		ORDER BY position ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			post             models.Post
			tagsRaw, fileRaw string
			dateRaw          string
		)
		if err := rows.Scan(&post.ID, &post.Title, &post.Content, &tagsRaw, &post.AuthorID, &post.AuthorName, &dateRaw, &fileRaw); err != nil {
			return nil, err
		}
		if post.Date, err = dbParseTime(dateRaw); err != nil {
			return nil, fmt.Errorf("post %s date: %w", post.ID, err)
		}
		if err := json.Unmarshal([]byte(tagsRaw), &post.Tags); err != nil {
			return nil, fmt.Errorf("post %s tags: %w", post.ID, err)
		}
		if err := json.Unmarshal([]byte(fileRaw), &post.Files); err != nil {
			return nil, fmt.Errorf("post %s files: %w", post.ID, err)
		}
		doc.Posts = append(doc.Posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	attRows, err := tx.QueryContext(ctx, `
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
			uploadRaw  string
		)
		if err := attRows.Scan(&id, &attachment.Name, &attachment.Type, &attachment.AuthorID, &attachment.PostID, &uploadRaw, &attachment.Size, &attachment.SHA256, &attachment.BlobKey); err != nil {
			return nil, err
		}
		if attachment.UploadDate, err = dbParseTime(uploadRaw); err != nil {
			return nil, fmt.Errorf("attachment %s upload date: %w", id, err)
		}
		doc.Files[id] = attachment
	}
	if err := attRows.Err(); err != nil {
		return nil, err
	}

	doc.Normalize()
	return doc, nil
}

func saveDocument(ctx context.Context, tx *sql.Tx, doc *models.Document) error {
	doc.Normalize()

	if _, err := tx.ExecContext(ctx, "DELETE FROM attachments"); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM posts"); err != nil {
		return err
	}

	postStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO posts (id, position, title, content, tags, author_id, author_name, date, files)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer postStmt.Close()

	for i, post := range doc.Posts {
		tags, files, err := encodePostCollections(post)
		if err != nil {
			return err
		}
		if _, err := postStmt.ExecContext(ctx, post.ID, i, post.Title, post.Content, tags, post.AuthorID, post.AuthorName, dbFormatTime(post.Date), files); err != nil {
			return fmt.Errorf("insert post %s: %w", post.ID, err)
		}
	}

	attStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO attachments (id, name, type, author_id, post_id, upload_date, size, sha256, blob_key)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer attStmt.Close()

	for id, attachment := range doc.Files {
		if _, err := attStmt.ExecContext(ctx, id, attachment.Name, attachment.Type, attachment.AuthorID, attachment.PostID, dbFormatTime(attachment.UploadDate), attachment.Size, attachment.SHA256, attachment.BlobKey); err != nil {
			return fmt.Errorf("insert attachment %s: %w", id, err)
		}
	}
	return nil
}

func encodePostCollections(post models.Post) (string, string, error) {
	tags := post.Tags
	if tags == nil {
		tags = []string{}
	}
	files := post.Files
	if files == nil {
		files = []models.FileRef{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return "", "", err
	}
	filesJSON, err := json.Marshal(files)
	if err != nil {
		return "", "", err
	}
	return string(tagsJSON), string(filesJSON), nil
}

func dbFormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func dbParseTime(value string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, value)
}
