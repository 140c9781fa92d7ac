package main

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// postDraft is a post read from a markdown file with optional front matter:
//
//	---
//	title: Spring cleanup
//	tags: [events, service]
//	user: user_123
//	---
//	Body text.
type postDraft struct {
	Title   string
	UserID  string
	Tags    []string
	Content string
}

type postFrontMatter struct {
	Title string `yaml:"title"`
	User  string `yaml:"user"`
	Tags  any    `yaml:"tags"`
}

func parsePostMarkdown(input string) (postDraft, error) {
	input = strings.ReplaceAll(input, "\r\n", "\n")
	lines := strings.Split(input, "\n")

	var draft postDraft
	body := input
	if len(lines) >= 2 && strings.TrimSpace(lines[0]) == "---" {
		end := -1
		for i := 1; i < len(lines); i++ {
			if strings.TrimSpace(lines[i]) == "---" {
				end = i
				break
			}
		}
		if end == -1 {
			return postDraft{}, fmt.Errorf("front matter not closed")
		}

		var fm postFrontMatter
		if err := yaml.Unmarshal([]byte(strings.Join(lines[1:end], "\n")), &fm); err != nil {
			return postDraft{}, fmt.Errorf("parse front matter: %w", err)
		}
		draft.Title = strings.TrimSpace(fm.Title)
		draft.UserID = strings.TrimSpace(fm.User)
		draft.Tags = toStringSlice(fm.Tags)
		body = strings.Join(lines[end+1:], "\n")
	}

	draft.Content = strings.TrimSpace(body)
	return draft, nil
}

func toStringSlice(value any) []string {
	switch v := value.(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
		return out
	case string:
		return splitCommaList(v)
	}
	return nil
}

func splitCommaList(value string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
