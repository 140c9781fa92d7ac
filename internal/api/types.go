package api

import "clubsite/internal/models"

// ErrorResponse is a generic JSON error wrapper.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	ErrorCode int    `json:"error_code,omitempty"`
}

// FileUpload is one attachment in a post submission. Content is a data URI,
// e.g. "data:text/plain;base64,SGVsbG8=".
type FileUpload struct {
	Name    string `json:"name" validate:"required"`
	Type    string `json:"type"`
	Content string `json:"content" validate:"required"`
}

// CreatePostRequest is the body of POST /api/v1/newsletter/createPost.
type CreatePostRequest struct {
	UserID  string       `json:"userId" validate:"required"`
	Title   string       `json:"title" validate:"required"`
	Content string       `json:"content" validate:"required"`
	Tags    []string     `json:"tags,omitempty"`
	Files   []FileUpload `json:"files,omitempty" validate:"dive"`
}

// CreatePostResponse is returned with 201 on success.
type CreatePostResponse struct {
	Success bool        `json:"success"`
	Post    models.Post `json:"post"`
}

// PostListResponse wraps GET /api/v1/newsletter/posts.
type PostListResponse struct {
	Data []models.Post `json:"data"`
}

// PostResponse wraps GET /api/v1/newsletter/posts/{id}.
type PostResponse struct {
	Data models.Post `json:"data"`
}

// AttachmentResponse describes a stored attachment.
type AttachmentResponse struct {
	ID string `json:"id"`
	models.Attachment
	HasContent bool `json:"hasContent"`
}

// UserListResponse wraps GET /api/v1/users/listUsers.
type UserListResponse struct {
	Data []models.User `json:"data"`
}

// EditHoursRequest is the body of POST /api/v1/users/editUserHours.
type EditHoursRequest struct {
	UserID string   `json:"userID" validate:"required"`
	Hours  *float64 `json:"hours" validate:"required"`
}

// EditHoursResponse returns the updated user.
type EditHoursResponse struct {
	Success bool        `json:"success"`
	Data    models.User `json:"data"`
}

// InfoResponse is the response from GET /api/v1/info.
type InfoResponse struct {
	Backend       string `json:"backend"`
	SchemaVersion int    `json:"schema_version,omitempty"`
	PostCount     int    `json:"post_count"`
	FileCount     int    `json:"file_count"`
	Identity      string `json:"identity"`
}
