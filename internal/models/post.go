package models

import (
	"slices"
	"strings"
	"time"
)

// FileRef is the attachment reference embedded in a post.
type FileRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// Post is one newsletter entry.
type Post struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	Tags       []string  `json:"tags"`
	AuthorID   string    `json:"authorId"`
	AuthorName string    `json:"authorName"`
	Date       time.Time `json:"date"`
	Files      []FileRef `json:"files"`
}

// HasTag reports whether the post carries tag, ignoring case.
func (p Post) HasTag(tag string) bool {
	tag = strings.TrimSpace(tag)
	return slices.ContainsFunc(p.Tags, func(t string) bool {
		return strings.EqualFold(t, tag)
	})
}

// Attachment is the metadata record for an uploaded file. The raw bytes live
// in the blob store under BlobKey.
type Attachment struct {
	Name       string    `json:"name"`
	Type       string    `json:"type"`
	AuthorID   string    `json:"authorId"`
	PostID     string    `json:"postId"`
	UploadDate time.Time `json:"uploadDate"`
	Size       int64     `json:"size,omitempty"`
	SHA256     string    `json:"sha256,omitempty"`
	BlobKey    string    `json:"blobKey,omitempty"`
}

// Document is the newsletter aggregate: posts newest first plus attachment
// metadata keyed by attachment id.
type Document struct {
	Posts []Post                `json:"posts"`
	Files map[string]Attachment `json:"files"`
}

// NewDocument returns an empty document.
func NewDocument() *Document {
	return &Document{Posts: []Post{}, Files: map[string]Attachment{}}
}

// Normalize replaces nil collections so the document always encodes as
// {"posts": [], "files": {}}.
func (d *Document) Normalize() {
	if d.Posts == nil {
		d.Posts = []Post{}
	}
	if d.Files == nil {
		d.Files = map[string]Attachment{}
	}
	for i := range d.Posts {
		if d.Posts[i].Tags == nil {
			d.Posts[i].Tags = []string{}
		}
		if d.Posts[i].Files == nil {
			d.Posts[i].Files = []FileRef{}
		}
	}
}

// Prepend inserts post at the head of the post list and merges its attachments.
func (d *Document) Prepend(post Post, attachments map[string]Attachment) {
	d.Normalize()
	d.Posts = append([]Post{post}, d.Posts...)
	for id, attachment := range attachments {
		d.Files[id] = attachment
	}
}

// FindPost scans the post list for id.
func (d *Document) FindPost(id string) (Post, bool) {
	for _, post := range d.Posts {
		if post.ID == id {
			return post, true
		}
	}
	return Post{}, false
}
