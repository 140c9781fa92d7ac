package server

import (
	"encoding/base64"
	"errors"
	"mime"
	"strings"
)

const base64Marker = ";base64,"

var errInvalidBase64 = errors.New("attachment content is not valid base64")

// decodeDataURI decodes "data:<type>;base64,<payload>". The payload is the
// text after the last ";base64," marker; a string without the marker is
// decoded as bare base64. The returned media type is empty when the URI
// does not declare one.
func decodeDataURI(content string) ([]byte, string, error) {
	content = strings.TrimSpace(content)
	payload := content
	mediaType := ""
	if idx := strings.LastIndex(content, base64Marker); idx >= 0 {
		payload = content[idx+len(base64Marker):]
		header := content[:idx]
		if rest, ok := strings.CutPrefix(header, "data:"); ok {
			if parsed, _, err := mime.ParseMediaType(rest); err == nil {
				mediaType = strings.ToLower(parsed)
			}
		}
	}

	payload = strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', ' ', '\t':
			return -1
		}
		return r
	}, payload)

	if decoded, err := base64.StdEncoding.DecodeString(payload); err == nil {
		return decoded, mediaType, nil
	}
	decoded, err := base64.RawStdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", errInvalidBase64
	}
	return decoded, mediaType, nil
}
