package server

import (
	"context"
	"errors"
	"io/fs"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"clubsite/internal/api"
	"clubsite/internal/models"
	"clubsite/internal/store"
)

func TestCreatePostAsAdmin(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, createPostPath, api.CreatePostRequest{
		UserID:  "admin-1",
		Title:   "T",
		Content: "C",
		Tags:    []string{"x"},
		Files:   []api.FileUpload{},
	}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", w.Code, w.Body.String())
	}

	var resp api.CreatePostResponse
	decodeBody(t, w, &resp)
	if !resp.Success {
		t.Fatal("expected success=true")
	}
	post := resp.Post
	if post.Title != "T" || post.Content != "C" {
		t.Fatalf("unexpected post %#v", post)
	}
	if len(post.Tags) != 1 || post.Tags[0] != "x" {
		t.Fatalf("expected tags [x], got %#v", post.Tags)
	}
	if len(post.Files) != 0 {
		t.Fatalf("expected no files, got %#v", post.Files)
	}
	if post.AuthorID != "admin-1" || post.AuthorName != "Ada Admin" {
		t.Fatalf("unexpected author %q %q", post.AuthorID, post.AuthorName)
	}
	if !validatePostID(post.ID) {
		t.Fatalf("unexpected post id %q", post.ID)
	}
	if post.Date.IsZero() {
		t.Fatal("expected post date")
	}
	if !strings.Contains(w.Body.String(), `"files":[]`) {
		t.Fatalf("expected empty files array in body, got %s", w.Body.String())
	}

	doc := ts.document(t)
	if len(doc.Posts) != 1 || doc.Posts[0].ID != post.ID {
		t.Fatalf("expected stored post at head, got %#v", doc.Posts)
	}
}

func TestCreatePostPrependsNewest(t *testing.T) {
	ts := newTestServer(t)
	for _, title := range []string{"first", "second"} {
		w := ts.do(t, http.MethodPost, createPostPath, api.CreatePostRequest{UserID: "lead-1", Title: title, Content: "body"}, nil)
		if w.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d (%s)", w.Code, w.Body.String())
		}
	}
	doc := ts.document(t)
	if len(doc.Posts) != 2 || doc.Posts[0].Title != "second" || doc.Posts[1].Title != "first" {
		t.Fatalf("expected newest first, got %#v", doc.Posts)
	}
	if doc.Posts[0].AuthorName != "Lena Lead" {
		t.Fatalf("unexpected author name %q", doc.Posts[0].AuthorName)
	}
}

func TestCreatePostRejectsUnprivilegedAuthors(t *testing.T) {
	for _, userID := range []string{"member-1", "norole-1", "ghost"} {
		t.Run(userID, func(t *testing.T) {
			ts := newTestServer(t)
			w := ts.do(t, http.MethodPost, createPostPath, api.CreatePostRequest{
				UserID:  userID,
				Title:   "T",
				Content: "C",
				Files:   []api.FileUpload{{Name: "a.txt", Content: dataURI("text/plain", "hi")}},
			}, nil)
			if w.Code != http.StatusForbidden {
				t.Fatalf("expected 403, got %d (%s)", w.Code, w.Body.String())
			}
			resp := decodeErrorBody(t, w)
			if resp.Error != "Unauthorized: Only admin and lead roles can create newsletter posts" {
				t.Fatalf("unexpected error %q", resp.Error)
			}
			doc := ts.document(t)
			if len(doc.Posts) != 0 || len(doc.Files) != 0 {
				t.Fatalf("expected untouched document, got %#v", doc)
			}
		})
	}
}

func TestCreatePostMethodNotAllowed(t *testing.T) {
	ts := newTestServer(t)
	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
		w := ts.do(t, method, createPostPath, nil, nil)
		if w.Code != http.StatusMethodNotAllowed {
			t.Fatalf("%s: expected 405, got %d", method, w.Code)
		}
		if got := w.Header().Get("Allow"); got != http.MethodPost {
			t.Fatalf("%s: expected Allow POST, got %q", method, got)
		}
		resp := decodeErrorBody(t, w)
		if resp.Error != "Method not allowed" || resp.ErrorCode != ErrCodeMethodNotAllowed {
			t.Fatalf("%s: unexpected error %#v", method, resp)
		}
	}
	if doc := ts.document(t); len(doc.Posts) != 0 {
		t.Fatalf("expected untouched document, got %#v", doc.Posts)
	}
}

func TestCreatePostSanitizesAttachmentID(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, createPostPath, api.CreatePostRequest{
		UserID:  "admin-1",
		Title:   "With file",
		Content: "See attached",
		Files:   []api.FileUpload{{Name: "a b.txt", Type: "text/plain", Content: dataURI("text/plain", "hello")}},
	}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", w.Code, w.Body.String())
	}
	var resp api.CreatePostResponse
	decodeBody(t, w, &resp)
	if len(resp.Post.Files) != 1 {
		t.Fatalf("expected one file ref, got %#v", resp.Post.Files)
	}
	ref := resp.Post.Files[0]
	if strings.ContainsAny(ref.ID, " \t") || !strings.HasSuffix(ref.ID, "-ab.txt") {
		t.Fatalf("expected sanitized id ending in -ab.txt, got %q", ref.ID)
	}
	if ref.Name != "a b.txt" || ref.Type != "text/plain" {
		t.Fatalf("unexpected file ref %#v", ref)
	}

	doc := ts.document(t)
	attachment, ok := doc.Files[ref.ID]
	if !ok {
		t.Fatalf("expected attachment %q in document, got %#v", ref.ID, doc.Files)
	}
	if attachment.PostID != resp.Post.ID || attachment.AuthorID != "admin-1" || attachment.Name != "a b.txt" {
		t.Fatalf("unexpected attachment %#v", attachment)
	}
	if attachment.Size != 5 || attachment.BlobKey == "" {
		t.Fatalf("expected persisted content, got %#v", attachment)
	}

	content := ts.do(t, http.MethodGet, "/api/v1/newsletter/files/"+ref.ID+"/content", nil, nil)
	if content.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", content.Code, content.Body.String())
	}
	if content.Body.String() != "hello" {
		t.Fatalf("expected stored bytes, got %q", content.Body.String())
	}
	if got := content.Header().Get("Content-Type"); got != "text/plain" {
		t.Fatalf("expected text/plain, got %q", got)
	}
}

func TestCreatePostConcurrentSubmissionsBothPersist(t *testing.T) {
	ts := newTestServer(t)

	const n = 8
	var wg sync.WaitGroup
	codes := make([]int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			w := ts.do(t, http.MethodPost, createPostPath, api.CreatePostRequest{
				UserID:  "admin-1",
				Title:   "concurrent",
				Content: "body",
				Files:   []api.FileUpload{{Name: "f.txt", Content: dataURI("text/plain", "x")}},
			}, nil)
			codes[i] = w.Code
		}(i)
	}
	wg.Wait()

	for i, code := range codes {
		if code != http.StatusCreated {
			t.Fatalf("request %d: expected 201, got %d", i, code)
		}
	}
	doc := ts.document(t)
	if len(doc.Posts) != n {
		t.Fatalf("expected %d posts, got %d", n, len(doc.Posts))
	}
	if len(doc.Files) != n {
		t.Fatalf("expected %d attachments, got %d", n, len(doc.Files))
	}
}

func TestCreatePostValidation(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name     string
		body     any
		wantCode int
		wantMsg  string
	}{
		{
			name:     "missing title",
			body:     api.CreatePostRequest{UserID: "admin-1", Content: "C"},
			wantCode: ErrCodeMissingRequired,
			wantMsg:  "title is required",
		},
		{
			name:     "missing user",
			body:     api.CreatePostRequest{Title: "T", Content: "C"},
			wantCode: ErrCodeMissingRequired,
			wantMsg:  "userId is required",
		},
		{
			name:     "file without content",
			body:     api.CreatePostRequest{UserID: "admin-1", Title: "T", Content: "C", Files: []api.FileUpload{{Name: "a.txt"}}},
			wantCode: ErrCodeMissingRequired,
			wantMsg:  "files[0].content is required",
		},
		{
			name:     "bad base64",
			body:     api.CreatePostRequest{UserID: "admin-1", Title: "T", Content: "C", Files: []api.FileUpload{{Name: "a.txt", Content: "data:text/plain;base64,@@@"}}},
			wantCode: ErrCodeInvalidAttachment,
		},
		{
			name:     "malformed json",
			body:     `{"userId":`,
			wantCode: ErrCodeInvalidJSON,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, http.MethodPost, createPostPath, tt.body, nil)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d (%s)", w.Code, w.Body.String())
			}
			resp := decodeErrorBody(t, w)
			if resp.ErrorCode != tt.wantCode {
				t.Fatalf("expected error_code %d, got %d (%s)", tt.wantCode, resp.ErrorCode, resp.Error)
			}
			if tt.wantMsg != "" && resp.Error != tt.wantMsg {
				t.Fatalf("expected %q, got %q", tt.wantMsg, resp.Error)
			}
		})
	}

	if doc := ts.document(t); len(doc.Posts) != 0 {
		t.Fatalf("expected untouched document, got %#v", doc.Posts)
	}
}

func TestCreatePostAuthorizesBeforeValidating(t *testing.T) {
	tests := []struct {
		name string
		body api.CreatePostRequest
	}{
		{name: "empty title and content", body: api.CreatePostRequest{UserID: "member-1"}},
		{name: "file without name", body: api.CreatePostRequest{UserID: "member-1", Title: "T", Content: "C", Files: []api.FileUpload{{Content: dataURI("text/plain", "hi")}}}},
		{name: "bad base64 from role-less user", body: api.CreatePostRequest{UserID: "norole-1", Title: "T", Content: "C", Files: []api.FileUpload{{Name: "a.txt", Content: "data:text/plain;base64,@@@"}}}},
		{name: "unknown user with empty body", body: api.CreatePostRequest{UserID: "ghost"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			w := ts.do(t, http.MethodPost, createPostPath, tt.body, nil)
			if w.Code != http.StatusForbidden {
				t.Fatalf("expected 403, got %d (%s)", w.Code, w.Body.String())
			}
			if resp := decodeErrorBody(t, w); resp.ErrorCode != ErrCodeForbidden {
				t.Fatalf("expected error_code %d, got %d (%s)", ErrCodeForbidden, resp.ErrorCode, resp.Error)
			}
			doc := ts.document(t)
			if len(doc.Posts) != 0 || len(doc.Files) != 0 {
				t.Fatalf("expected untouched document, got %#v", doc)
			}
			if n := countBlobs(t, ts.blobs.Root()); n != 0 {
				t.Fatalf("expected no stored blobs, got %d", n)
			}
		})
	}
}

func TestCreatePostSessionMustMatchAuthor(t *testing.T) {
	ts := newTestServer(t, func(o *Options) { o.TrustUserHeader = false })
	body := api.CreatePostRequest{UserID: "admin-1", Title: "T", Content: "C"}

	w := ts.do(t, http.MethodPost, createPostPath, body, http.Header{"Authorization": []string{"Bearer " + sessionToken(t, "lead-1")}})
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d (%s)", w.Code, w.Body.String())
	}

	w = ts.do(t, http.MethodPost, createPostPath, body, http.Header{"Authorization": []string{"Bearer " + sessionToken(t, "admin-1")}})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", w.Code, w.Body.String())
	}

	w = ts.do(t, http.MethodPost, createPostPath, body, http.Header{"Authorization": []string{"Bearer expired.or.bogus"}})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (%s)", w.Code, w.Body.String())
	}
}

func TestCreatePostDirectoryFailureIsOpaque(t *testing.T) {
	ts := newTestServer(t)
	ts.dir.setErr(errors.New("dial tcp: identity service unreachable"))

	w := ts.do(t, http.MethodPost, createPostPath, api.CreatePostRequest{UserID: "admin-1", Title: "T", Content: "C"}, nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d (%s)", w.Code, w.Body.String())
	}
	resp := decodeErrorBody(t, w)
	if resp.Error != createPostFailedMessage {
		t.Fatalf("expected generic message, got %q", resp.Error)
	}
	if resp.ErrorCode != ErrCodeDirectoryFailure {
		t.Fatalf("expected error_code %d, got %d", ErrCodeDirectoryFailure, resp.ErrorCode)
	}
}

func TestCreatePostMediaTypes(t *testing.T) {
	ts := newTestServer(t, func(o *Options) { o.AllowedMediaTypes = []string{"text/plain", "image/png"} })

	w := ts.do(t, http.MethodPost, createPostPath, api.CreatePostRequest{
		UserID: "admin-1", Title: "T", Content: "C",
		Files: []api.FileUpload{{Name: "a.exe", Type: "application/x-msdownload", Content: dataURI("application/x-msdownload", "MZ")}},
	}, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d (%s)", w.Code, w.Body.String())
	}
	if resp := decodeErrorBody(t, w); resp.ErrorCode != ErrCodeInvalidMediaType {
		t.Fatalf("expected error_code %d, got %d", ErrCodeInvalidMediaType, resp.ErrorCode)
	}

	w = ts.do(t, http.MethodPost, createPostPath, api.CreatePostRequest{
		UserID: "admin-1", Title: "T", Content: "C",
		Files: []api.FileUpload{{Name: "pic.png", Content: dataURI("image/png", "png")}},
	}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", w.Code, w.Body.String())
	}
	var resp api.CreatePostResponse
	decodeBody(t, w, &resp)
	if resp.Post.Files[0].Type != "image/png" {
		t.Fatalf("expected type from data uri, got %q", resp.Post.Files[0].Type)
	}
}

func TestCreatePostWithoutBlobStore(t *testing.T) {
	ts := newTestServer(t, func(o *Options) { o.Blobs = nil })

	w := ts.do(t, http.MethodPost, createPostPath, api.CreatePostRequest{
		UserID: "admin-1", Title: "T", Content: "C",
		Files: []api.FileUpload{{Name: "notes.txt", Content: "aGVsbG8="}},
	}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", w.Code, w.Body.String())
	}
	var resp api.CreatePostResponse
	decodeBody(t, w, &resp)
	ref := resp.Post.Files[0]
	if ref.Type != fallbackAttachmentMediaType {
		t.Fatalf("expected fallback media type, got %q", ref.Type)
	}

	meta := ts.do(t, http.MethodGet, "/api/v1/newsletter/files/"+ref.ID, nil, nil)
	if meta.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", meta.Code, meta.Body.String())
	}
	var attachment api.AttachmentResponse
	decodeBody(t, meta, &attachment)
	if attachment.HasContent || attachment.Size != 5 {
		t.Fatalf("expected metadata without content, got %#v", attachment)
	}

	content := ts.do(t, http.MethodGet, "/api/v1/newsletter/files/"+ref.ID+"/content", nil, nil)
	if content.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", content.Code)
	}
	if resp := decodeErrorBody(t, content); resp.ErrorCode != ErrCodeContentNotFound {
		t.Fatalf("expected error_code %d, got %d", ErrCodeContentNotFound, resp.ErrorCode)
	}
}

func TestCreatePostBlobTooLarge(t *testing.T) {
	ts := newTestServer(t, func(o *Options) { o.MaxUploadBytes = 4 << 20 })
	large := strings.Repeat("x", (1<<20)+1)

	w := ts.do(t, http.MethodPost, createPostPath, api.CreatePostRequest{
		UserID: "admin-1", Title: "T", Content: "C",
		Files: []api.FileUpload{{Name: "big.txt", Content: dataURI("text/plain", large)}},
	}, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d (%s)", w.Code, w.Body.String())
	}
	if resp := decodeErrorBody(t, w); resp.ErrorCode != ErrCodeRequestTooLarge {
		t.Fatalf("expected error_code %d, got %d", ErrCodeRequestTooLarge, resp.ErrorCode)
	}
}

func seedPost(t *testing.T, ts *testServer, title string, tags ...string) models.Post {
	t.Helper()
	w := ts.do(t, http.MethodPost, createPostPath, api.CreatePostRequest{UserID: "admin-1", Title: title, Content: "body", Tags: tags}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("seed post: expected 201, got %d (%s)", w.Code, w.Body.String())
	}
	var resp api.CreatePostResponse
	decodeBody(t, w, &resp)
	return resp.Post
}

func TestListAndGetPosts(t *testing.T) {
	ts := newTestServer(t)
	first := seedPost(t, ts, "first", "events")
	seedPost(t, ts, "second", "service")
	third := seedPost(t, ts, "third", "Events", "service")

	w := ts.do(t, http.MethodGet, "/api/v1/newsletter/posts", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var list api.PostListResponse
	decodeBody(t, w, &list)
	if len(list.Data) != 3 || list.Data[0].ID != third.ID {
		t.Fatalf("expected newest first, got %#v", list.Data)
	}

	w = ts.do(t, http.MethodGet, "/api/v1/newsletter/posts?tag=events", nil, nil)
	decodeBody(t, w, &list)
	if len(list.Data) != 2 || list.Data[0].ID != third.ID || list.Data[1].ID != first.ID {
		t.Fatalf("unexpected tag filter result %#v", list.Data)
	}

	w = ts.do(t, http.MethodGet, "/api/v1/newsletter/posts?limit=1", nil, nil)
	decodeBody(t, w, &list)
	if len(list.Data) != 1 {
		t.Fatalf("expected limit 1, got %d", len(list.Data))
	}

	w = ts.do(t, http.MethodGet, "/api/v1/newsletter/posts?limit=abc", nil, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}

	w = ts.do(t, http.MethodGet, "/api/v1/newsletter/posts/"+first.ID, nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", w.Code, w.Body.String())
	}
	var one api.PostResponse
	decodeBody(t, w, &one)
	if one.Data.Title != "first" {
		t.Fatalf("unexpected post %#v", one.Data)
	}

	w = ts.do(t, http.MethodGet, "/api/v1/newsletter/posts/1700000000000", nil, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	if resp := decodeErrorBody(t, w); resp.ErrorCode != ErrCodePostNotFound {
		t.Fatalf("expected error_code %d, got %d", ErrCodePostNotFound, resp.ErrorCode)
	}

	w = ts.do(t, http.MethodGet, "/api/v1/newsletter/posts/not-an-id", nil, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestAttachmentLookups(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/api/v1/newsletter/files/1700000000000-missing.txt", nil, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	if resp := decodeErrorBody(t, w); resp.ErrorCode != ErrCodeAttachmentNotFound {
		t.Fatalf("expected error_code %d, got %d", ErrCodeAttachmentNotFound, resp.ErrorCode)
	}

	w = ts.do(t, http.MethodGet, "/api/v1/newsletter/files/bad%20id", nil, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestOpenAttachmentContentMissingBlob(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodPost, createPostPath, api.CreatePostRequest{
		UserID: "admin-1", Title: "T", Content: "C",
		Files: []api.FileUpload{{Name: "a.txt", Content: dataURI("text/plain", "abc")}},
	}, nil)
	var resp api.CreatePostResponse
	decodeBody(t, w, &resp)
	id := resp.Post.Files[0].ID

	attachment, err := ts.srv.newsletter.GetAttachment(t.Context(), id)
	if err != nil {
		t.Fatalf("get attachment: %v", err)
	}
	if err := ts.blobs.Delete(t.Context(), attachment.BlobKey); err != nil {
		t.Fatalf("delete blob: %v", err)
	}

	w = ts.do(t, http.MethodGet, "/api/v1/newsletter/files/"+id+"/content", nil, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d (%s)", w.Code, w.Body.String())
	}
	if resp := decodeErrorBody(t, w); resp.ErrorCode != ErrCodeContentNotFound {
		t.Fatalf("expected error_code %d, got %d", ErrCodeContentNotFound, resp.ErrorCode)
	}
}

// failingUpdateStore fails Update once err is set; reads reach the wrapped store.
type failingUpdateStore struct {
	store.DocumentStore
	err error
}

func (f *failingUpdateStore) Update(ctx context.Context, fn func(*models.Document) error) error {
	if f.err != nil {
		return f.err
	}
	return f.DocumentStore.Update(ctx, fn)
}

func countBlobs(t *testing.T, root string) int {
	t.Helper()
	n := 0
	err := filepath.WalkDir(filepath.Join(root, "sha256"), func(_ string, d fs.DirEntry, err error) error {
		if errors.Is(err, fs.ErrNotExist) {
			return filepath.SkipDir
		}
		if err != nil {
			return err
		}
		if !d.IsDir() {
			n++
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk blob root: %v", err)
	}
	return n
}

func TestCreatePostDiscardsBlobsWhenSaveFails(t *testing.T) {
	failing := &failingUpdateStore{}
	ts := newTestServer(t, func(o *Options) {
		failing.DocumentStore = o.Store
		o.Store = failing
	})

	kept := seedPostWithFile(t, ts, "shared.txt", "shared bytes")
	if n := countBlobs(t, ts.blobs.Root()); n != 1 {
		t.Fatalf("expected one blob after seeding, got %d", n)
	}

	failing.err = errors.New("disk full")
	w := ts.do(t, http.MethodPost, createPostPath, api.CreatePostRequest{
		UserID:  "admin-1",
		Title:   "T",
		Content: "C",
		Files: []api.FileUpload{
			{Name: "again.txt", Content: dataURI("text/plain", "shared bytes")},
			{Name: "new.txt", Content: dataURI("text/plain", "fresh bytes")},
		},
	}, nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d (%s)", w.Code, w.Body.String())
	}
	if resp := decodeErrorBody(t, w); resp.Error != createPostFailedMessage {
		t.Fatalf("expected generic message, got %q", resp.Error)
	}

	doc := ts.document(t)
	if len(doc.Posts) != 1 || len(doc.Files) != 1 {
		t.Fatalf("expected only the seeded post, got %d posts and %d files", len(doc.Posts), len(doc.Files))
	}
	if n := countBlobs(t, ts.blobs.Root()); n != 1 {
		t.Fatalf("expected only the referenced blob to remain, got %d", n)
	}
	content := ts.do(t, http.MethodGet, "/api/v1/newsletter/files/"+kept.Files[0].ID+"/content", nil, nil)
	if content.Code != http.StatusOK || content.Body.String() != "shared bytes" {
		t.Fatalf("expected seeded content to survive, got %d %q", content.Code, content.Body.String())
	}
}

func seedPostWithFile(t *testing.T, ts *testServer, name, body string) models.Post {
	t.Helper()
	w := ts.do(t, http.MethodPost, createPostPath, api.CreatePostRequest{
		UserID:  "admin-1",
		Title:   "seed",
		Content: "seed",
		Files:   []api.FileUpload{{Name: name, Content: dataURI("text/plain", body)}},
	}, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("seed post: expected 201, got %d (%s)", w.Code, w.Body.String())
	}
	var resp api.CreatePostResponse
	decodeBody(t, w, &resp)
	return resp.Post
}

func TestAttachmentContentDisposition(t *testing.T) {
	ts := newTestServer(t)
	post := seedPostWithFile(t, ts, "Grüße café.txt", "hallo")

	w := ts.do(t, http.MethodGet, "/api/v1/newsletter/files/"+post.Files[0].ID+"/content", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", w.Code, w.Body.String())
	}
	disposition := w.Header().Get("Content-Disposition")
	if strings.Contains(disposition, `\u`) {
		t.Fatalf("expected RFC 2231 encoding, got %q", disposition)
	}
	mediaType, params, err := mime.ParseMediaType(disposition)
	if err != nil {
		t.Fatalf("parse %q: %v", disposition, err)
	}
	if mediaType != "attachment" || params["filename"] != "Grüße café.txt" {
		t.Fatalf("unexpected disposition %q -> %q %#v", disposition, mediaType, params)
	}

	if got := contentDisposition("plain.txt"); got != "attachment; filename=plain.txt" {
		t.Fatalf("unexpected ascii disposition %q", got)
	}
}
