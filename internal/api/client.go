package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"clubsite/internal/models"
)

const (
	defaultHTTPTimeout = 10 * time.Second
	httpTimeoutEnvKey  = "CLUBSITE_HTTP_TIMEOUT"
	sessionTokenEnvKey = "CLUBSITE_SESSION_TOKEN"
	userIDEnvKey       = "CLUBSITE_USER_ID"
	userIDHeader       = "X-User-Id"
)

// Client is a simple HTTP client for the clubsite API.
type Client struct {
	baseURL      string
	http         *http.Client
	sessionToken string
	userID       string
}

// NewClient creates a new API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		http:         &http.Client{Timeout: httpTimeoutFromEnv()},
		sessionToken: strings.TrimSpace(os.Getenv(sessionTokenEnvKey)),
		userID:       strings.TrimSpace(os.Getenv(userIDEnvKey)),
	}
}

// WithActor returns a copy of the client that identifies as userID through
// the trusted user header. The server only honours it when configured to.
func (c *Client) WithActor(userID string) *Client {
	clone := *c
	clone.userID = strings.TrimSpace(userID)
	return &clone
}

// Ping checks whether the API server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil, nil)
}

func (c *Client) GetInfo(ctx context.Context) (InfoResponse, error) {
	var resp InfoResponse
	err := c.do(ctx, http.MethodGet, "/api/v1/info", nil, nil, &resp)
	return resp, err
}

// CreatePost submits a newsletter post.
func (c *Client) CreatePost(ctx context.Context, req CreatePostRequest) (CreatePostResponse, error) {
	var resp CreatePostResponse
	err := c.do(ctx, http.MethodPost, "/api/v1/newsletter/createPost", nil, req, &resp)
	return resp, err
}

func (c *Client) ListPosts(ctx context.Context, tag string, limit int) ([]models.Post, error) {
	query := url.Values{}
	if tag = strings.TrimSpace(tag); tag != "" {
		query.Set("tag", tag)
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var resp PostListResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/newsletter/posts", query, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (c *Client) GetPost(ctx context.Context, id string) (models.Post, error) {
	var resp PostResponse
	err := c.do(ctx, http.MethodGet, "/api/v1/newsletter/posts/"+url.PathEscape(id), nil, nil, &resp)
	return resp.Data, err
}

func (c *Client) ListUsers(ctx context.Context) ([]models.User, error) {
	var resp UserListResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/users/listUsers", nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// EditUserHours sets a user's tracked hours.
func (c *Client) EditUserHours(ctx context.Context, userID string, hours float64) (models.User, error) {
	var resp EditHoursResponse
	req := EditHoursRequest{UserID: userID, Hours: &hours}
	err := c.do(ctx, http.MethodPost, "/api/v1/users/editUserHours", nil, req, &resp)
	return resp.Data, err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.setAuthHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}

	if out == nil {
		return nil
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	var errResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Error != "" {
		apiErr.Code = errResp.Code
		apiErr.ErrorCode = errResp.ErrorCode
		apiErr.Message = errResp.Error
		return apiErr
	}
	apiErr.Message = fmt.Sprintf("api error: %s", resp.Status)
	return apiErr
}

func (c *Client) setAuthHeaders(req *http.Request) {
	if req == nil {
		return
	}
	if c.sessionToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.sessionToken)
	}
	if c.userID != "" {
		req.Header.Set(userIDHeader, c.userID)
	}
}

func httpTimeoutFromEnv() time.Duration {
	value := strings.TrimSpace(os.Getenv(httpTimeoutEnvKey))
	if value == "" {
		return defaultHTTPTimeout
	}

	if duration, err := time.ParseDuration(value); err == nil && duration > 0 {
		return duration
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}

	return defaultHTTPTimeout
}
