package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"clubsite/internal/blobstore"
	"clubsite/internal/identity"
	"clubsite/internal/store"
)

const (
	allowRemoteEnvKey    = "CLUBSITE_ALLOW_REMOTE"
	defaultSessionCookie = "__session"
	defaultSignInURL     = "/sign-in"
	readHeaderTimeout    = 5 * time.Second
	readTimeout          = 30 * time.Second
	writeTimeout         = 60 * time.Second
	idleTimeout          = 60 * time.Second
	shutdownTimeout      = 10 * time.Second
)

var errTooManyRequests = errors.New("too many requests")

// Options wires the server's collaborators. Store and Directory are required.
type Options struct {
	Store           store.DocumentStore
	Directory       identity.Directory
	IdentityBackend string
	Blobs           blobstore.Store
	Sessions        *identity.SessionVerifier
	SessionCookie   string
	TrustUserHeader bool
	SignInURL       string
	SiteName        string

	MaxUploadBytes     int64
	AllowedMediaTypes  []string
	RateLimitPerMinute int
	RateLimitBurst     int

	Logger *slog.Logger
}

// Server wraps HTTP handlers and pages for the club site.
type Server struct {
	addr            string
	store           store.DocumentStore
	identityBackend string
	newsletter      *NewsletterService
	hours           *HoursService
	sessions        *identity.SessionVerifier
	sessionCookie   string
	trustUserHeader bool
	signInURL       string
	siteName        string
	maxUploadBytes  int64
	limiter         *clientRateLimiter
	logger          *slog.Logger
	clock           func() time.Time
}

// New creates a new server instance.
func New(addr string, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	newsletter := NewNewsletterService(opts.Store, opts.Directory, opts.Blobs)
	newsletter.ConfigureMediaTypes(opts.AllowedMediaTypes)
	newsletter.logger = logger

	s := &Server{
		addr:            addr,
		store:           opts.Store,
		identityBackend: opts.IdentityBackend,
		newsletter:      newsletter,
		hours:           NewHoursService(opts.Directory),
		sessions:        opts.Sessions,
		sessionCookie:   strings.TrimSpace(opts.SessionCookie),
		trustUserHeader: opts.TrustUserHeader,
		signInURL:       strings.TrimSpace(opts.SignInURL),
		siteName:        strings.TrimSpace(opts.SiteName),
		maxUploadBytes:  opts.MaxUploadBytes,
		limiter:         newClientRateLimiter(opts.RateLimitPerMinute, opts.RateLimitBurst),
		logger:          logger,
		clock:           time.Now,
	}
	if s.sessionCookie == "" {
		s.sessionCookie = defaultSessionCookie
	}
	if s.signInURL == "" {
		s.signInURL = defaultSignInURL
	}
	if s.siteName == "" {
		s.siteName = "Club"
	}
	return s
}

// Handler returns the full middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.withPrincipal(s.withRequestLogging(s.routes()))
}

// ListenAndServe serves until ctx is cancelled, then drains in-flight
// requests.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.log().Info("starting server", "addr", s.addr, "backend", s.store.Backend(), "identity", s.identityBackend)
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log().Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAddr converts a base API URL into a listen address.
func ListenAddr(apiURL string) (string, error) {
	if apiURL == "" {
		return "", fmt.Errorf("api url is required")
	}
	if u, err := url.Parse(apiURL); err == nil && u.Host != "" {
		host := u.Hostname()
		if !isAllowedListenHost(host) {
			return "", fmt.Errorf("remote listen host %q requires %s=true", host, allowRemoteEnvKey)
		}
		return u.Host, nil
	}

	host, _, err := net.SplitHostPort(apiURL)
	if err == nil && !isAllowedListenHost(host) {
		return "", fmt.Errorf("remote listen host %q requires %s=true", host, allowRemoteEnvKey)
	}

	return apiURL, nil
}

func isAllowedListenHost(host string) bool {
	if host == "" {
		return true
	}
	if strings.EqualFold(strings.TrimSpace(os.Getenv(allowRemoteEnvKey)), "true") {
		return true
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func (s *Server) now() time.Time {
	if s.clock != nil {
		return s.clock()
	}
	return time.Now()
}

func (s *Server) log() *slog.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return slog.Default()
}
