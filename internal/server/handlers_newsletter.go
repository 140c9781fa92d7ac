package server

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"clubsite/internal/api"
)

const (
	createPostPath          = "/api/v1/newsletter/createPost"
	createPostFailedMessage = "Failed to create newsletter post"
)

// handleCreatePost is registered without a method so that other methods get
// the JSON 405 body instead of the mux's plain-text one. The method check
// runs before rate limiting, and the author is authorized before the rest of
// the body is validated.
func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	if !s.requireMethod(w, r, http.MethodPost) || !s.allowRate(w, r) {
		return
	}

	var req api.CreatePostRequest
	if !s.decodeJSONReq(w, r, &req) {
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(errMissingUserID, ErrCodeMissingRequired))
		return
	}

	if p, ok := principalFromContext(r.Context()); ok && p.UserID != req.UserID {
		s.writeErrorReq(w, r, http.StatusForbidden, forbidden(errAuthorMismatch))
		return
	}

	post, err := s.newsletter.CreatePost(r.Context(), req)
	if err != nil {
		if httpStatusFromError(err) >= http.StatusInternalServerError {
			err = withPublicMessage(err, createPostFailedMessage)
		}
		s.writeServiceError(w, r, err)
		return
	}

	s.log().Info("newsletter post created", "post_id", post.ID, "author_id", post.AuthorID, "files", len(post.Files))
	s.writeJSON(w, http.StatusCreated, api.CreatePostResponse{Success: true, Post: post})
}

func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	limit, err := queryIntDefault(r, "limit", defaultListLimit)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	posts, err := s.newsletter.ListPosts(r.Context(), r.URL.Query().Get("tag"), limit)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.PostListResponse{Data: posts})
}

func (s *Server) handleGetPost(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if !validatePostID(id) {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("invalid post id"), ErrCodeInvalidID))
		return
	}

	post, err := s.newsletter.GetPost(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.PostResponse{Data: post})
}

func (s *Server) handleGetAttachment(w http.ResponseWriter, r *http.Request) {
	id, ok := s.attachmentIDParam(w, r)
	if !ok {
		return
	}

	attachment, err := s.newsletter.GetAttachment(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.AttachmentResponse{
		ID:         id,
		Attachment: attachment,
		HasContent: attachment.BlobKey != "",
	})
}

func (s *Server) handleGetAttachmentContent(w http.ResponseWriter, r *http.Request) {
	id, ok := s.attachmentIDParam(w, r)
	if !ok {
		return
	}

	content, err := s.newsletter.OpenAttachmentContent(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	defer content.Reader.Close()

	mediaType := content.Attachment.Type
	if mediaType == "" {
		mediaType = fallbackAttachmentMediaType
	}
	w.Header().Set("Content-Type", mediaType)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	if content.Attachment.Size > 0 {
		w.Header().Set("Content-Length", fmt.Sprintf("%d", content.Attachment.Size))
	}
	w.Header().Set("Content-Disposition", contentDisposition(content.Attachment.Name))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, content.Reader); err != nil {
		s.log().Error("stream attachment", "attachment_id", id, "error", err)
	}
}

// contentDisposition falls back to a bare attachment when the name cannot be
// encoded as a parameter.
func contentDisposition(name string) string {
	if value := mime.FormatMediaType("attachment", map[string]string{"filename": name}); value != "" {
		return value
	}
	return "attachment"
}

func (s *Server) attachmentIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.PathValue("id"))
	if !validateAttachmentID(id) {
		s.writeErrorReq(w, r, http.StatusBadRequest, badRequestCode(fmt.Errorf("invalid attachment id"), ErrCodeInvalidID))
		return "", false
	}
	return id, true
}
