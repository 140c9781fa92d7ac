package main

import (
	"context"
	"errors"
	"net"

	"clubsite/internal/api"
)

func formatCLIError(err error) []string {
	if err == nil {
		return nil
	}

	lines := []string{err.Error()}

	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case "unauthorized":
			lines = append(lines, "hint: pass --as <userID> or set CLUBSITE_SESSION_TOKEN / CLUBSITE_USER_ID.")
		case "forbidden":
			lines = append(lines, "hint: only admin and lead members can do this.")
		case "resource_exhausted":
			lines = append(lines, "hint: rate limit reached; retry in a minute.")
		case "":
			lines = append(lines, "hint: verify CLUBSITE_API_URL points to a clubsite server.")
		}
		if apiErr.Status >= 500 {
			lines = append(lines, "hint: server returned an internal error; check server logs for details.")
		}
		return uniqueLines(lines)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		lines = append(lines, "hint: request timed out; check server health or increase CLUBSITE_HTTP_TIMEOUT.")
		return uniqueLines(lines)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		lines = append(lines,
			"hint: ensure a clubsite server is running at CLUBSITE_API_URL.",
			"hint: start a local server manually with: clubsite srv",
		)
	}

	return uniqueLines(lines)
}

func uniqueLines(lines []string) []string {
	seen := make(map[string]struct{}, len(lines))
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line == "" {
			continue
		}
		if _, ok := seen[line]; ok {
			continue
		}
		seen[line] = struct{}{}
		out = append(out, line)
	}
	return out
}
