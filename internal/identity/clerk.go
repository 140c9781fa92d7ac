package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"clubsite/internal/models"
)

const (
	DefaultClerkBaseURL   = "https://api.clerk.com"
	defaultClerkTimeout   = 10 * time.Second
	clerkListPageSize     = 100
	clerkMaxListPages     = 50
	maxClerkErrorBodySize = 4 << 10
)

// StatusError is a non-2xx response from the identity service.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("identity service: status %d", e.Status)
	}
	return fmt.Sprintf("identity service: status %d: %s", e.Status, e.Body)
}

// ClerkClient is a Directory backed by a Clerk-style backend API.
type ClerkClient struct {
	baseURL   string
	secretKey string
	http      *http.Client
	logger    *slog.Logger
	maxPages  int
}

// ClerkOption customizes a ClerkClient.
type ClerkOption func(*ClerkClient)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(client *http.Client) ClerkOption {
	return func(c *ClerkClient) {
		if client != nil {
			c.http = client
		}
	}
}

// WithLogger sets the logger used for directory warnings.
func WithLogger(logger *slog.Logger) ClerkOption {
	return func(c *ClerkClient) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClerkClient creates a directory client. An empty baseURL uses the
// public Clerk API.
func NewClerkClient(baseURL, secretKey string, opts ...ClerkOption) *ClerkClient {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultClerkBaseURL
	}
	c := &ClerkClient{
		baseURL:   baseURL,
		secretKey: strings.TrimSpace(secretKey),
		http:      &http.Client{Timeout: defaultClerkTimeout},
		logger:    slog.Default(),
		maxPages:  clerkMaxListPages,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type clerkEmailAddress struct {
	ID           string `json:"id"`
	EmailAddress string `json:"email_address"`
}

type clerkUser struct {
	ID                    string              `json:"id"`
	FirstName             *string             `json:"first_name"`
	LastName              *string             `json:"last_name"`
	PrimaryEmailAddressID *string             `json:"primary_email_address_id"`
	EmailAddresses        []clerkEmailAddress `json:"email_addresses"`
	PublicMetadata        map[string]any      `json:"public_metadata"`
}

func (u clerkUser) toModel() models.User {
	user := models.User{
		ID:    u.ID,
		Role:  models.ParseRole(u.PublicMetadata["role"]),
		Hours: hoursFromMetadata(u.PublicMetadata["hours"]),
	}
	if u.FirstName != nil {
		user.FirstName = *u.FirstName
	}
	if u.LastName != nil {
		user.LastName = *u.LastName
	}
	for _, email := range u.EmailAddresses {
		if user.Email == "" {
			user.Email = email.EmailAddress
		}
		if u.PrimaryEmailAddressID != nil && email.ID == *u.PrimaryEmailAddressID {
			user.Email = email.EmailAddress
			break
		}
	}
	return user
}

type clerkMetadataUpdate struct {
	PublicMetadata map[string]any `json:"public_metadata"`
}

// GetUser fetches one user by id.
func (c *ClerkClient) GetUser(ctx context.Context, id string) (models.User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return models.User{}, ErrUserNotFound
	}
	var raw clerkUser
	if err := c.do(ctx, http.MethodGet, "/v1/users/"+url.PathEscape(id), nil, nil, &raw); err != nil {
		return models.User{}, err
	}
	return raw.toModel(), nil
}

// ListUsers pages through registered users, up to maxPages pages. Hitting
// the cap returns what was read and logs a warning.
func (c *ClerkClient) ListUsers(ctx context.Context) ([]models.User, error) {
	users := []models.User{}
	for page := 0; ; page++ {
		if page == c.maxPages {
			c.logger.Warn("identity user list may be truncated", "pages", page, "users", len(users))
			break
		}
		query := url.Values{}
		query.Set("limit", strconv.Itoa(clerkListPageSize))
		query.Set("offset", strconv.Itoa(page*clerkListPageSize))
		query.Set("order_by", "-created_at")

		var raw []clerkUser
		if err := c.do(ctx, http.MethodGet, "/v1/users", query, nil, &raw); err != nil {
			return nil, err
		}
		for _, u := range raw {
			users = append(users, u.toModel())
		}
		if len(raw) < clerkListPageSize {
			break
		}
	}
	return users, nil
}

// SetHours merges hours into the user's public metadata.
func (c *ClerkClient) SetHours(ctx context.Context, id string, hours float64) (models.User, error) {
	if err := ValidateHours(hours); err != nil {
		return models.User{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return models.User{}, ErrUserNotFound
	}
	body := clerkMetadataUpdate{PublicMetadata: map[string]any{"hours": hours}}
	var raw clerkUser
	if err := c.do(ctx, http.MethodPatch, "/v1/users/"+url.PathEscape(id)+"/metadata", nil, body, &raw); err != nil {
		return models.User{}, err
	}
	return raw.toModel(), nil
}

func (c *ClerkClient) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
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
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.secretKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.secretKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("identity service %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrUserNotFound
	}
	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxClerkErrorBodySize))
		return &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode identity response: %w", err)
	}
	return nil
}
