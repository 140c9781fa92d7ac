package server

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"clubsite/internal/format"
	"clubsite/internal/identity"
	"clubsite/internal/models"
)

//go:embed uiassets/templates/*.html uiassets/static/*
var uiFS embed.FS

const (
	pageHome        = "home"
	pageNewsletter  = "newsletter"
	pageDashboard   = "dashboard"
	pageManageHours = "manage_hours"
	pageSignIn      = "sign_in"

	newsletterPageLimit = 100
)

var pageTemplates = mustParsePages(pageHome, pageNewsletter, pageDashboard, pageManageHours, pageSignIn)

var pageFuncs = template.FuncMap{
	"formatDate": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Local().Format("January 2, 2006")
	},
	"formatHours": format.Hours,
	"paragraphs": func(content string) []string {
		var out []string
		for _, part := range strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n\n") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	},
}

func mustParsePages(names ...string) map[string]*template.Template {
	pages := make(map[string]*template.Template, len(names))
	for _, name := range names {
		pages[name] = template.Must(template.New("layout.html").Funcs(pageFuncs).ParseFS(uiFS,
			"uiassets/templates/layout.html",
			"uiassets/templates/"+name+".html",
		))
	}
	return pages
}

// pageData is shared by every page template.
type pageData struct {
	Title     string
	SiteName  string
	Year      int
	Nav       []navItem
	Sidebar   []navItem
	Active    string
	SignedIn  bool
	SignInURL string
	Viewer    models.User
	Error     string
	Notice    string

	Posts        []models.Post
	Tag          string
	Users        []models.User
	CanEditHours bool
	SignInReady  bool
}

func (s *Server) basePage(title, active string, viewer models.User, signedIn bool) pageData {
	return pageData{
		Title:     title,
		SiteName:  s.siteName,
		Year:      s.now().Year(),
		Nav:       navItems(viewer.Role),
		Active:    active,
		SignedIn:  signedIn,
		SignInURL: s.signInURL,
		Viewer:    viewer,
	}
}

func (s *Server) renderPage(w http.ResponseWriter, r *http.Request, status int, name string, data pageData) {
	tmpl, ok := pageTemplates[name]
	if !ok {
		s.log().Error("unknown page template", "page", name)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		s.log().Error("render page", "page", name, "path", r.URL.Path, "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// pageViewer resolves the signed-in member for a page. Directory failures are
// logged and the viewer falls back to an unprivileged role.
func (s *Server) pageViewer(r *http.Request) (models.User, bool) {
	p, ok := principalFromContext(r.Context())
	if !ok {
		return models.User{Role: models.RoleUnknown}, false
	}
	viewer, err := s.hours.Viewer(r.Context(), p.UserID)
	if err != nil {
		s.log().Error("resolve page viewer", "user_id", p.UserID, "error", err)
		return models.User{ID: p.UserID, Role: models.RoleUnknown}, true
	}
	return viewer, true
}

func (s *Server) requireSignedIn(w http.ResponseWriter, r *http.Request) (models.User, bool) {
	viewer, signedIn := s.pageViewer(r)
	if !signedIn {
		http.Redirect(w, r, s.signInURL, http.StatusFound)
		return models.User{}, false
	}
	return viewer, true
}

func (s *Server) handleHomePage(w http.ResponseWriter, r *http.Request) {
	viewer, signedIn := s.pageViewer(r)
	s.renderPage(w, r, http.StatusOK, pageHome, s.basePage(s.siteName, "/", viewer, signedIn))
}

func (s *Server) handleNewsletterPage(w http.ResponseWriter, r *http.Request) {
	viewer, signedIn := s.pageViewer(r)
	data := s.basePage("Newsletter", "/newsletter", viewer, signedIn)
	data.Tag = strings.TrimSpace(r.URL.Query().Get("tag"))

	posts, err := s.newsletter.ListPosts(r.Context(), data.Tag, newsletterPageLimit)
	if err != nil {
		s.log().Error("load newsletter posts", "error", err)
		data.Error = "Unable to load newsletter posts."
		posts = nil
	}
	data.Posts = posts
	s.renderPage(w, r, http.StatusOK, pageNewsletter, data)
}

func (s *Server) handleDashboardPage(w http.ResponseWriter, r *http.Request) {
	viewer, ok := s.requireSignedIn(w, r)
	if !ok {
		return
	}
	data := s.basePage("Dashboard", "/dashboard", viewer, true)
	data.Sidebar = sidebarItems(viewer.Role)
	s.renderPage(w, r, http.StatusOK, pageDashboard, data)
}

func (s *Server) manageHoursPage(r *http.Request, viewer models.User) pageData {
	data := s.basePage("Manage Hours", "/dashboard/manage_hours", viewer, true)
	data.Sidebar = sidebarItems(viewer.Role)
	data.CanEditHours = models.Authorize(viewer.Role, models.ActionEditHours)

	users, err := s.hours.ListUsers(r.Context())
	if err != nil {
		s.log().Error("load registered users", "error", err)
		data.Error = "Unable to load registered users."
		users = nil
	}
	data.Users = users
	return data
}

func (s *Server) handleManageHoursPage(w http.ResponseWriter, r *http.Request) {
	viewer, ok := s.requireSignedIn(w, r)
	if !ok {
		return
	}
	data := s.manageHoursPage(r, viewer)
	if r.URL.Query().Get("updated") != "" {
		data.Notice = "Hours updated successfully."
	}
	s.renderPage(w, r, http.StatusOK, pageManageHours, data)
}

func (s *Server) handleManageHoursSubmit(w http.ResponseWriter, r *http.Request) {
	viewer, ok := s.requireSignedIn(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, defaultJSONMaxBody)
	if err := r.ParseForm(); err != nil {
		data := s.manageHoursPage(r, viewer)
		data.Error = "Invalid form submission."
		s.renderPage(w, r, http.StatusBadRequest, pageManageHours, data)
		return
	}

	targetID := strings.TrimSpace(r.PostFormValue("userID"))
	hours, err := identity.ParseHours(r.PostFormValue("hours"))
	if err != nil || targetID == "" {
		data := s.manageHoursPage(r, viewer)
		data.Error = "Invalid number entered."
		s.renderPage(w, r, http.StatusBadRequest, pageManageHours, data)
		return
	}

	if _, err := s.hours.EditHours(r.Context(), viewer.ID, targetID, hours); err != nil {
		status := httpStatusFromError(err)
		message := err.Error()
		if status >= http.StatusInternalServerError {
			s.log().Error("update hours", "actor_id", viewer.ID, "user_id", targetID, "error", err)
			message = "internal error"
		}
		data := s.manageHoursPage(r, viewer)
		data.Error = fmt.Sprintf("Error updating hours: %s", message)
		s.renderPage(w, r, status, pageManageHours, data)
		return
	}

	s.log().Info("member hours updated", "actor_id", viewer.ID, "user_id", targetID, "hours", hours)
	http.Redirect(w, r, "/dashboard/manage_hours?updated=1", http.StatusSeeOther)
}

func (s *Server) handleSignInPage(w http.ResponseWriter, r *http.Request) {
	viewer, signedIn := s.pageViewer(r)
	data := s.basePage("Sign In", "/sign-in", viewer, signedIn)
	data.SignInReady = s.sessions != nil
	s.renderPage(w, r, http.StatusOK, pageSignIn, data)
}

// handleSignInSubmit accepts an identity-provider session token and stores it
// in the session cookie.
func (s *Server) handleSignInSubmit(w http.ResponseWriter, r *http.Request) {
	data := s.basePage("Sign In", "/sign-in", models.User{Role: models.RoleUnknown}, false)
	data.SignInReady = s.sessions != nil
	if s.sessions == nil {
		data.Error = "Session sign-in is not configured."
		s.renderPage(w, r, http.StatusServiceUnavailable, pageSignIn, data)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, defaultJSONMaxBody)
	token := ""
	if err := r.ParseForm(); err == nil {
		token = strings.TrimSpace(r.PostFormValue("token"))
	}
	subject, err := s.sessions.Verify(token)
	if err != nil {
		s.log().Debug("rejected session token", "error", err)
		data.Error = "Invalid session token."
		s.renderPage(w, r, http.StatusUnauthorized, pageSignIn, data)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     s.sessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	s.log().Info("member signed in", "user_id", subject)
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) uiAssetHandler() http.Handler {
	static, err := fs.Sub(uiFS, "uiassets/static")
	if err != nil {
		return http.NotFoundHandler()
	}

	fileServer := http.StripPrefix("/ui/", http.FileServerFS(static))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Cache-Control", "no-cache")
		fileServer.ServeHTTP(w, r)
	})
}
