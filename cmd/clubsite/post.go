package main

import (
	"encoding/base64"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"clubsite/internal/api"
	"clubsite/internal/config"
)

const (
	userIDEnvKey     = "CLUBSITE_USER_ID"
	defaultMediaType = "application/octet-stream"
)

type postCreateOptions struct {
	as       string
	title    string
	content  string
	tags     []string
	attach   []string
	markdown string
}

func newPostCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "post",
		Short: "Create and browse newsletter posts",
	}
	cmd.AddCommand(
		newPostCreateCmd(cfg, jsonOutput),
		newPostListCmd(cfg, jsonOutput),
		newPostShowCmd(cfg, jsonOutput),
	)
	return cmd
}

func newPostCreateCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var opts postCreateOptions

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Publish a newsletter post (admin and lead only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := buildCreatePostRequest(opts)
			if err != nil {
				return err
			}
			return withClient(cmd.Context(), cfg, func(client *api.Client) error {
				resp, err := client.WithActor(req.UserID).CreatePost(cmd.Context(), req)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(resp)
				}
				return writePlain("created %s\n", resp.Post.ID)
			})
		},
	}

	cmd.Flags().StringVar(&opts.as, "as", "", "user id of the author (default $CLUBSITE_USER_ID)")
	cmd.Flags().StringVarP(&opts.title, "title", "t", "", "post title")
	cmd.Flags().StringVarP(&opts.content, "content", "c", "", "post body")
	cmd.Flags().StringSliceVar(&opts.tags, "tag", nil, "tag (repeatable or comma separated)")
	cmd.Flags().StringArrayVar(&opts.attach, "attach", nil, "file to attach (repeatable)")
	cmd.Flags().StringVarP(&opts.markdown, "file", "f", "", "markdown file with optional front matter")
	return cmd
}

func newPostListCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	var tag string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List posts, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), cfg, func(client *api.Client) error {
				posts, err := client.ListPosts(cmd.Context(), tag, limit)
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(posts)
				}
				return writePostList(posts)
			})
		},
	}

	cmd.Flags().StringVar(&tag, "tag", "", "only posts with this tag")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of posts")
	return cmd
}

func newPostShowCmd(cfg *config.Config, jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one post",
		Args:  namedArgs("id"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), cfg, func(client *api.Client) error {
				post, err := client.GetPost(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if *jsonOutput {
					return writeJSON(post)
				}
				return writePostDetail(post)
			})
		},
	}
}

// buildCreatePostRequest merges a markdown draft with flags. Flags win.
func buildCreatePostRequest(opts postCreateOptions) (api.CreatePostRequest, error) {
	var draft postDraft
	if opts.markdown != "" {
		data, err := os.ReadFile(opts.markdown)
		if err != nil {
			return api.CreatePostRequest{}, err
		}
		if draft, err = parsePostMarkdown(string(data)); err != nil {
			return api.CreatePostRequest{}, fmt.Errorf("%s: %w", opts.markdown, err)
		}
	}

	req := api.CreatePostRequest{
		UserID:  firstNonEmpty(opts.as, draft.UserID, os.Getenv(userIDEnvKey)),
		Title:   firstNonEmpty(opts.title, draft.Title),
		Content: firstNonEmpty(opts.content, draft.Content),
		Tags:    draft.Tags,
	}
	if len(opts.tags) > 0 {
		req.Tags = opts.tags
	}
	if req.UserID == "" {
		return req, fmt.Errorf("author is required: pass --as or set %s", userIDEnvKey)
	}
	if req.Title == "" || req.Content == "" {
		return req, fmt.Errorf("title and content are required")
	}

	for _, path := range opts.attach {
		upload, err := readAttachment(path)
		if err != nil {
			return req, err
		}
		req.Files = append(req.Files, upload)
	}
	return req, nil
}

// readAttachment encodes a local file as a data URI upload.
func readAttachment(path string) (api.FileUpload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return api.FileUpload{}, fmt.Errorf("read attachment: %w", err)
	}

	mediaType := defaultMediaType
	if byExt := mime.TypeByExtension(filepath.Ext(path)); byExt != "" {
		if parsed, _, err := mime.ParseMediaType(byExt); err == nil {
			mediaType = parsed
		}
	}

	return api.FileUpload{
		Name:    filepath.Base(path),
		Type:    mediaType,
		Content: "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data),
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value = strings.TrimSpace(value); value != "" {
			return value
		}
	}
	return ""
}
