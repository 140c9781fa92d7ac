package server

import (
	"net/http"
)

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// Health check and info.
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/v1/info", s.handleInfo)

	// Newsletter.
	mux.HandleFunc(createPostPath, s.handleCreatePost)
	mux.HandleFunc("GET /api/v1/newsletter/posts", s.handleListPosts)
	mux.HandleFunc("GET /api/v1/newsletter/posts/{id}", s.handleGetPost)
	mux.HandleFunc("GET /api/v1/newsletter/files/{id}", s.handleGetAttachment)
	mux.HandleFunc("GET /api/v1/newsletter/files/{id}/content", s.handleGetAttachmentContent)

	// Members and hours.
	mux.HandleFunc("GET /api/v1/users/listUsers", s.handleListUsers)
	mux.HandleFunc("POST /api/v1/users/editUserHours", s.withRateLimit(s.handleEditUserHours))

	// Pages.
	mux.Handle("GET /ui/", s.uiAssetHandler())
	mux.HandleFunc("GET /{$}", s.handleHomePage)
	mux.HandleFunc("GET /newsletter", s.handleNewsletterPage)
	mux.HandleFunc("GET /dashboard", s.handleDashboardPage)
	mux.HandleFunc("GET /dashboard/manage_hours", s.handleManageHoursPage)
	mux.HandleFunc("POST /dashboard/manage_hours", s.withRateLimit(s.handleManageHoursSubmit))
	mux.HandleFunc("GET /sign-in", s.handleSignInPage)
	mux.HandleFunc("POST /sign-in", s.withRateLimit(s.handleSignInSubmit))
	mux.HandleFunc("POST /sign-out", s.handleSignOut)

	return mux
}
