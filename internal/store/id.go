package store

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	idMaxAttempts       = 20
	attachmentIDRandLen = 8
	fallbackFileName    = "file"
)

// NewPostID returns a time-ordered UUIDv7 string.
func NewPostID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// NewAttachmentID returns "<unix-millis>-<random>-<sanitized name>".
// It retries on collisions using the provided exists function.
func NewAttachmentID(now time.Time, fileName string, exists func(string) bool) (string, error) {
	name := SanitizeFileName(fileName)
	if name == "" {
		name = fallbackFileName
	}
	millis := strconv.FormatInt(now.UnixMilli(), 10)

	for i := 0; i < idMaxAttempts; i++ {
		random := strings.ReplaceAll(uuid.NewString(), "-", "")[:attachmentIDRandLen]
		id := millis + "-" + random + "-" + name
		if exists == nil || !exists(id) {
			return id, nil
		}
	}
	return "", fmt.Errorf("unable to generate unique attachment id")
}

// SanitizeFileName drops every character outside letters, digits, dot, and hyphen.
func SanitizeFileName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
		}
	}
	return b.String()
}
