package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lavente-auth/authcore/internal/api/helpers"
	"github.com/lavente-auth/authcore/internal/api/middleware"
	"github.com/lavente-auth/authcore/internal/token"
)

type sessionView struct {
	ID             string `json:"id"`
	Device         string `json:"device"`
	Location       string `json:"location"`
	LastActivity   string `json:"lastActivity"`
	Current        bool   `json:"current"`
	IPAddress      string `json:"ipAddress,omitempty"`
	UserAgent      string `json:"userAgent,omitempty"`
	RiskScore      int    `json:"riskScore"`
}

// ListSessionsHandler implements `GET sessions`.
func (s *Server) ListSessionsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.MustGetUserID(r.Context())
		currentSessionID, _ := middleware.GetSessionID(r.Context())

		sessions, err := s.Sessions.FindActiveByUserID(r.Context(), userID)
		if err != nil {
			helpers.RespondError(w, http.StatusInternalServerError, "internal error")
			return
		}

		views := make([]sessionView, 0, len(sessions))
		for _, sess := range sessions {
			views = append(views, sessionView{
				ID:           sess.ID,
				Device:       sess.UserAgent,
				Location:     sess.Geolocation,
				LastActivity: sess.LastActivityAt.Format(rfc3339),
				Current:      sess.ID == currentSessionID,
				IPAddress:    sess.IPAddress,
				UserAgent:    sess.UserAgent,
				RiskScore:    sess.RiskScore,
			})
		}
		helpers.RespondJSON(w, http.StatusOK, views)
	}
}

// RevokeSessionHandler implements `DELETE sessions/:id`. It
// delegates to the login orchestrator's Logout so the ownership check and
// audit trail stay in one place; an unowned or missing session looks
// identical (404)
func (s *Server) RevokeSessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.MustGetUserID(r.Context())
		sessionID := chi.URLParam(r, "id")

		_, err := s.Auth.Logout(r.Context(), userID, sessionID, false, token.ClientContext{
			IP: helpers.GetRealIP(r).String(), UserAgent: r.UserAgent(),
		})
		if err != nil {
			writeAuthError(w, err)
			return
		}
		helpers.RespondJSON(w, http.StatusOK, map[string]bool{"success": true})
	}
}
