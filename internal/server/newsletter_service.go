package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"strings"
	"time"

	"clubsite/internal/api"
	"clubsite/internal/blobstore"
	"clubsite/internal/identity"
	"clubsite/internal/models"
	"clubsite/internal/store"
)

const fallbackAttachmentMediaType = "application/octet-stream"

var (
	errNotPrivilegedPost = errors.New("Unauthorized: Only admin and lead roles can create newsletter posts")
	errAuthorMismatch    = errors.New("userId does not match the signed-in user")
	errMissingUserID     = errors.New("userId is required")
)

// NewsletterService owns the newsletter document workflows.
type NewsletterService struct {
	store             store.DocumentStore
	directory         identity.Directory
	blobs             blobstore.Store
	now               func() time.Time
	allowedMediaTypes map[string]struct{}
	logger            *slog.Logger
}

// AttachmentContent is an open attachment body plus its metadata.
type AttachmentContent struct {
	Reader     io.ReadCloser
	Attachment models.Attachment
}

// preparedUpload is one decoded file, already written to the blob store when
// persistence is enabled.
type preparedUpload struct {
	name      string
	mediaType string
	blob      blobstore.PutResult
}

// NewNewsletterService constructs a NewsletterService. blobs may be nil, in
// which case attachment bytes are decoded and validated but not kept.
func NewNewsletterService(docs store.DocumentStore, directory identity.Directory, blobs blobstore.Store) *NewsletterService {
	return &NewsletterService{
		store:     docs,
		directory: directory,
		blobs:     blobs,
		now:       time.Now,
		logger:    slog.Default(),
	}
}

// ConfigureMediaTypes restricts attachment media types. An empty list allows
// everything.
func (s *NewsletterService) ConfigureMediaTypes(allowed []string) {
	if len(allowed) == 0 {
		s.allowedMediaTypes = nil
		return
	}
	s.allowedMediaTypes = make(map[string]struct{}, len(allowed))
	for _, mediaType := range allowed {
		mediaType = strings.ToLower(strings.TrimSpace(mediaType))
		if mediaType != "" {
			s.allowedMediaTypes[mediaType] = struct{}{}
		}
	}
}

// CreatePost authorizes the author, validates the request, stores attachment
// bytes and prepends the post to the newsletter document in one serialized
// update. Authorization precedes validation.
func (s *NewsletterService) CreatePost(ctx context.Context, req api.CreatePostRequest) (models.Post, error) {
	author, err := s.resolveAuthor(ctx, req.UserID)
	if err != nil {
		return models.Post{}, err
	}
	if err := validateRequest(req); err != nil {
		return models.Post{}, err
	}

	uploads, err := s.prepareUploads(ctx, req.Files)
	if err != nil {
		return models.Post{}, err
	}

	now := s.now().UTC()
	base := models.Post{
		ID:         store.NewPostID(),
		Title:      req.Title,
		Content:    req.Content,
		Tags:       normalizeTags(req.Tags),
		AuthorID:   req.UserID,
		AuthorName: author.FirstName + " " + author.LastName,
		Date:       now,
	}

	var created models.Post
	err = s.store.Update(ctx, func(doc *models.Document) error {
		post := base
		post.Files = make([]models.FileRef, 0, len(uploads))
		attachments := make(map[string]models.Attachment, len(uploads))
		taken := func(id string) bool {
			if _, ok := doc.Files[id]; ok {
				return true
			}
			_, ok := attachments[id]
			return ok
		}

		for _, upload := range uploads {
			id, err := store.NewAttachmentID(now, upload.name, taken)
			if err != nil {
				return err
			}
			attachments[id] = models.Attachment{
				Name:       upload.name,
				Type:       upload.mediaType,
				AuthorID:   req.UserID,
				PostID:     post.ID,
				UploadDate: now,
				Size:       upload.blob.SizeBytes,
				SHA256:     upload.blob.SHA256,
				BlobKey:    upload.blob.Key,
			}
			post.Files = append(post.Files, models.FileRef{ID: id, Name: upload.name, Type: upload.mediaType})
		}

		doc.Prepend(post, attachments)
		created = post
		return nil
	})
	if err != nil {
		s.discardUploads(ctx, uploads)
		return models.Post{}, storeFailure(err)
	}
	return created, nil
}

// discardUploads deletes blobs written for a post that was never saved. Blobs
// are content addressed, so keys the stored document still references stay.
func (s *NewsletterService) discardUploads(ctx context.Context, uploads []preparedUpload) {
	if s.blobs == nil || len(uploads) == 0 {
		return
	}
	referenced := map[string]struct{}{}
	doc, err := s.store.Load(ctx)
	if err != nil {
		s.logger.Warn("keeping uploaded blobs; document unreadable", "error", err)
		return
	}
	for _, attachment := range doc.Files {
		if attachment.BlobKey != "" {
			referenced[attachment.BlobKey] = struct{}{}
		}
	}
	for _, upload := range uploads {
		key := upload.blob.Key
		if key == "" {
			continue
		}
		if _, ok := referenced[key]; ok {
			continue
		}
		referenced[key] = struct{}{}
		if err := s.blobs.Delete(ctx, key); err != nil && !errors.Is(err, blobstore.ErrNotFound) {
			s.logger.Warn("delete orphaned blob", "key", key, "error", err)
		}
	}
}

func (s *NewsletterService) resolveAuthor(ctx context.Context, userID string) (models.User, error) {
	author, err := s.directory.GetUser(ctx, userID)
	if errors.Is(err, identity.ErrUserNotFound) {
		return models.User{}, forbidden(errNotPrivilegedPost)
	}
	if err != nil {
		return models.User{}, directoryFailure(fmt.Errorf("lookup author %s: %w", userID, err))
	}
	if !models.Authorize(author.Role, models.ActionCreatePost) {
		return models.User{}, forbidden(errNotPrivilegedPost)
	}
	return author, nil
}

func (s *NewsletterService) prepareUploads(ctx context.Context, files []api.FileUpload) ([]preparedUpload, error) {
	uploads := make([]preparedUpload, 0, len(files))
	for i, file := range files {
		data, uriType, err := decodeDataURI(file.Content)
		if err != nil {
			return nil, badRequestCode(fmt.Errorf("files[%d]: %w", i, err), ErrCodeInvalidAttachment)
		}

		mediaType := normalizeMediaType(file.Type)
		if mediaType == "" {
			mediaType = uriType
		}
		if mediaType == "" {
			mediaType = fallbackAttachmentMediaType
		}
		if err := s.validateAllowedMediaType(mediaType); err != nil {
			return nil, err
		}

		upload := preparedUpload{
			name:      file.Name,
			mediaType: mediaType,
			blob:      blobstore.PutResult{SizeBytes: int64(len(data))},
		}
		if s.blobs != nil {
			result, err := s.blobs.Put(ctx, bytes.NewReader(data))
			if errors.Is(err, blobstore.ErrTooLarge) {
				return nil, badRequestCode(fmt.Errorf("files[%d]: %w", i, err), ErrCodeRequestTooLarge)
			}
			if err != nil {
				return nil, blobFailure(fmt.Errorf("store %s: %w", file.Name, err))
			}
			upload.blob = result
		}
		uploads = append(uploads, upload)
	}
	return uploads, nil
}

func (s *NewsletterService) validateAllowedMediaType(mediaType string) error {
	if len(s.allowedMediaTypes) == 0 {
		return nil
	}
	if _, ok := s.allowedMediaTypes[mediaType]; ok {
		return nil
	}
	return badRequestCode(fmt.Errorf("media type %s is not allowed", mediaType), ErrCodeInvalidMediaType)
}

// ListPosts returns posts newest first, optionally filtered by tag.
func (s *NewsletterService) ListPosts(ctx context.Context, tag string, limit int) ([]models.Post, error) {
	doc, err := s.store.Load(ctx)
	if err != nil {
		return nil, storeFailure(err)
	}
	tag = strings.TrimSpace(tag)
	posts := make([]models.Post, 0, len(doc.Posts))
	for _, post := range doc.Posts {
		if tag != "" && !post.HasTag(tag) {
			continue
		}
		posts = append(posts, post)
		if limit > 0 && len(posts) >= limit {
			break
		}
	}
	return posts, nil
}

// GetPost returns one post.
func (s *NewsletterService) GetPost(ctx context.Context, id string) (models.Post, error) {
	doc, err := s.store.Load(ctx)
	if err != nil {
		return models.Post{}, storeFailure(err)
	}
	post, ok := doc.FindPost(id)
	if !ok {
		return models.Post{}, notFoundCode(fmt.Errorf("post not found"), ErrCodePostNotFound)
	}
	return post, nil
}

// GetAttachment returns attachment metadata.
func (s *NewsletterService) GetAttachment(ctx context.Context, id string) (models.Attachment, error) {
	doc, err := s.store.Load(ctx)
	if err != nil {
		return models.Attachment{}, storeFailure(err)
	}
	attachment, ok := doc.Files[id]
	if !ok {
		return models.Attachment{}, notFoundCode(fmt.Errorf("attachment not found"), ErrCodeAttachmentNotFound)
	}
	return attachment, nil
}

// OpenAttachmentContent opens stored attachment bytes. Attachments recorded
// before content was persisted have no blob and report not found.
func (s *NewsletterService) OpenAttachmentContent(ctx context.Context, id string) (*AttachmentContent, error) {
	attachment, err := s.GetAttachment(ctx, id)
	if err != nil {
		return nil, err
	}
	errNoContent := notFoundCode(fmt.Errorf("attachment content not found"), ErrCodeContentNotFound)
	if s.blobs == nil || attachment.BlobKey == "" {
		return nil, errNoContent
	}
	reader, err := s.blobs.Open(ctx, attachment.BlobKey)
	if errors.Is(err, blobstore.ErrNotFound) {
		return nil, errNoContent
	}
	if err != nil {
		return nil, blobFailure(err)
	}
	return &AttachmentContent{Reader: reader, Attachment: attachment}, nil
}

// Counts reports the number of posts and attachments.
func (s *NewsletterService) Counts(ctx context.Context) (int, int, error) {
	doc, err := s.store.Load(ctx)
	if err != nil {
		return 0, 0, storeFailure(err)
	}
	return len(doc.Posts), len(doc.Files), nil
}

// normalizeTags trims tags, drops empties and repeats, and keeps order.
func normalizeTags(values []string) []string {
	tags := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		tags = append(tags, value)
	}
	return tags
}

// normalizeMediaType returns the bare lowercase media type, or "" when raw is
// empty or unparsable.
func normalizeMediaType(raw string) string {
	parsed, _, err := mime.ParseMediaType(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed)
}
