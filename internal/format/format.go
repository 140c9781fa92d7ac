// Package format renders CLI output.
package format

import (
	"encoding/json"
	"io"
	"strconv"
	"time"
)

// Formatter abstracts output formatting.
type Formatter interface {
	Write(w io.Writer, payload any) error
}

// JSONFormatter writes one JSON document per payload.
type JSONFormatter struct {
	Indent bool
}

// Write writes JSON payload to a writer.
func (f JSONFormatter) Write(w io.Writer, payload any) error {
	enc := json.NewEncoder(w)
	if f.Indent {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(payload)
}

// Hours prints tracked hours without trailing zeros: 12, 7.5.
func Hours(hours float64) string {
	return strconv.FormatFloat(hours, 'f', -1, 64)
}

// Timestamp prints t in UTC RFC 3339, or "" for the zero time.
func Timestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
