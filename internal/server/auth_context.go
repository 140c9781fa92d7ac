package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"clubsite/internal/identity"
)

const (
	principalSourceBearer = "bearer"
	principalSourceCookie = "cookie"
	principalSourceHeader = "header"
	trustedUserHeader     = "X-User-Id"
)

type authContextKey struct{}

// principal is the verified identity of the caller. It carries only the user
// id; role is always looked up from the directory at the point of use.
type principal struct {
	UserID string
	Source string
}

func contextWithPrincipal(ctx context.Context, p principal) context.Context {
	return context.WithValue(ctx, authContextKey{}, p)
}

func principalFromContext(ctx context.Context) (principal, bool) {
	if ctx == nil {
		return principal{}, false
	}
	p, ok := ctx.Value(authContextKey{}).(principal)
	return p, ok && p.UserID != ""
}

// withPrincipal attaches the caller's principal to the request context.
// A bearer token that fails verification is rejected with 401 on API routes,
// except where the method is rejected first. An invalid session cookie is
// treated as signed out.
func (s *Server) withPrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := s.resolvePrincipal(r)
		if err != nil {
			if isAPIPath(r.URL.Path) && !methodRejectedFirst(r) {
				s.writeErrorReq(w, r, http.StatusUnauthorized, unauthorized(err))
				return
			}
			s.log().Debug("ignoring invalid session", "path", r.URL.Path, "error", err)
		}
		if p.UserID != "" {
			r = r.WithContext(contextWithPrincipal(r.Context(), p))
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) resolvePrincipal(r *http.Request) (principal, error) {
	if token := bearerToken(r); token != "" {
		if s.sessions == nil {
			return principal{}, errors.New("session tokens are not configured")
		}
		subject, err := s.sessions.Verify(token)
		if err != nil {
			return principal{}, err
		}
		return principal{UserID: subject, Source: principalSourceBearer}, nil
	}

	if s.sessions != nil && s.sessionCookie != "" {
		if cookie, err := r.Cookie(s.sessionCookie); err == nil && strings.TrimSpace(cookie.Value) != "" {
			subject, err := s.sessions.Verify(cookie.Value)
			if err == nil {
				return principal{UserID: subject, Source: principalSourceCookie}, nil
			}
			if !errors.Is(err, identity.ErrInvalidSession) {
				return principal{}, err
			}
		}
	}

	if s.trustUserHeader {
		if userID := strings.TrimSpace(r.Header.Get(trustedUserHeader)); userID != "" {
			return principal{UserID: userID, Source: principalSourceHeader}, nil
		}
	}
	return principal{}, nil
}

// methodRejectedFirst reports requests whose handler answers 405 before it
// looks at the caller.
func methodRejectedFirst(r *http.Request) bool {
	return r.URL.Path == createPostPath && r.Method != http.MethodPost
}

func bearerToken(r *http.Request) string {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(auth) < 7 || !strings.EqualFold(auth[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(auth[7:])
}

func isAPIPath(path string) bool {
	return strings.HasPrefix(path, "/api/")
}
