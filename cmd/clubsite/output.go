package main

import (
	"fmt"
	"os"
	"strings"

	"clubsite/internal/format"
	"clubsite/internal/models"
)

var outputFormatter format.Formatter = format.JSONFormatter{Indent: true}

func writeJSON(payload any) error {
	return outputFormatter.Write(os.Stdout, payload)
}

func writePlain(format string, args ...any) error {
	_, err := fmt.Fprintf(os.Stdout, format, args...)
	return err
}

func writePostList(posts []models.Post) error {
	if len(posts) == 0 {
		return writePlain("No posts yet.\n")
	}
	for _, post := range posts {
		if err := writePlain("%s\n", formatPostLine(post)); err != nil {
			return err
		}
	}
	return nil
}

func writePostDetail(post models.Post) error {
	lines := []string{
		fmt.Sprintf("id: %s", post.ID),
		fmt.Sprintf("title: %s", post.Title),
		fmt.Sprintf("author: %s", post.AuthorName),
		fmt.Sprintf("author_id: %s", post.AuthorID),
		fmt.Sprintf("date: %s", format.Timestamp(post.Date)),
	}
	if len(post.Tags) > 0 {
		lines = append(lines, fmt.Sprintf("tags: %s", strings.Join(post.Tags, ", ")))
	}
	if len(post.Files) > 0 {
		lines = append(lines, "files:")
		for _, file := range post.Files {
			lines = append(lines, fmt.Sprintf("  - %s %s (%s)", file.ID, file.Name, file.Type))
		}
	}
	lines = append(lines, "", post.Content)
	return writePlain("%s\n", strings.Join(lines, "\n"))
}

func writeUserList(users []models.User) error {
	for _, user := range users {
		if err := writePlain("%s\n", formatUserLine(user)); err != nil {
			return err
		}
	}
	return nil
}

func formatPostLine(post models.Post) string {
	line := fmt.Sprintf("%s  %s  %s - %s", post.ID, format.Timestamp(post.Date), post.Title, post.AuthorName)
	if len(post.Tags) > 0 {
		line += " [" + strings.Join(post.Tags, ", ") + "]"
	}
	if n := len(post.Files); n > 0 {
		line += fmt.Sprintf(" (%d file(s))", n)
	}
	return line
}

func formatUserLine(user models.User) string {
	return fmt.Sprintf("%s %s - %s - Role: %s - Hours: %s",
		user.FirstName, user.LastName, user.Email, user.Role.String(), format.Hours(user.Hours))
}
