package server

import (
	"net/http"

	"clubsite/internal/api"
)

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.hours.ListUsers(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.UserListResponse{Data: users})
}

func (s *Server) handleEditUserHours(w http.ResponseWriter, r *http.Request) {
	var req api.EditHoursRequest
	if !s.decodeJSONReq(w, r, &req) {
		return
	}
	if err := validateRequest(req); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	p, _ := principalFromContext(r.Context())
	user, err := s.hours.EditHours(r.Context(), p.UserID, req.UserID, *req.Hours)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	s.log().Info("member hours updated", "actor_id", p.UserID, "user_id", user.ID, "hours", user.Hours)
	s.writeJSON(w, http.StatusOK, api.EditHoursResponse{Success: true, Data: user})
}
