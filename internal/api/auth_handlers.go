package api

import (
	"errors"
	"net/http"

	"github.com/lavente-auth/authcore/internal/api/helpers"
	"github.com/lavente-auth/authcore/internal/api/middleware"
	"github.com/lavente-auth/authcore/internal/auth"
	"github.com/lavente-auth/authcore/internal/rotation"
	"github.com/lavente-auth/authcore/internal/token"
)

type loginRequest struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	RememberMe        bool   `json:"rememberMe"`
	DeviceFingerprint string `json:"deviceFingerprint"`
}

type loginResponse struct {
	User                  userView `json:"user"`
	AccessToken           string   `json:"accessToken"`
	RefreshToken          string   `json:"refreshToken"`
	AccessTokenExpiresAt  string   `json:"accessTokenExpiresAt"`
	RefreshTokenExpiresAt string   `json:"refreshTokenExpiresAt"`
	SessionID             string   `json:"sessionId"`
}

type userView struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// LoginHandler implements login() operation.
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := helpers.DecodeJSON(r, &req); err != nil {
			helpers.RespondError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		result, err := s.Auth.Login(r.Context(), auth.LoginRequest{
			Email:             req.Email,
			Password:          req.Password,
			RememberMe:        req.RememberMe,
			IPAddress:         helpers.GetRealIP(r).String(),
			UserAgent:         r.UserAgent(),
			DeviceFingerprint: req.DeviceFingerprint,
		})
		if err != nil {
			writeAuthError(w, err)
			return
		}

		helpers.RespondJSON(w, http.StatusOK, loginResponse{
			User:                  userView{ID: result.User.ID, Email: result.User.Email, Name: result.User.Name},
			AccessToken:           result.AccessToken,
			RefreshToken:          result.RefreshToken,
			AccessTokenExpiresAt:  result.AccessTokenExpiresAt.Format(rfc3339),
			RefreshTokenExpiresAt: result.RefreshTokenExpiresAt.Format(rfc3339),
			SessionID:             result.SessionID,
		})
	}
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type refreshResponse struct {
	AccessToken           string `json:"accessToken"`
	RefreshToken          string `json:"refreshToken"`
	AccessTokenExpiresAt  string `json:"accessTokenExpiresAt"`
	RefreshTokenExpiresAt string `json:"refreshTokenExpiresAt"`
	RequiresReauth        bool   `json:"requiresReauth,omitempty"`
}

// RefreshHandler rotates a refresh token for a new access/refresh pair.
// TokenReuse and InvalidRefresh must look identical on the wire: both map
// to a plain 401 with no distinguishing body.
func (s *Server) RefreshHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req refreshRequest
		if err := helpers.DecodeJSON(r, &req); err != nil {
			helpers.RespondError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		result, err := s.Rotation.Refresh(r.Context(), req.RefreshToken, token.ClientContext{
			IP: helpers.GetRealIP(r).String(), UserAgent: r.UserAgent(),
		})
		if err != nil {
			switch {
			case errors.Is(err, token.ErrUnknownKey):
				helpers.RespondJSON(w, http.StatusUnauthorized, refreshResponse{RequiresReauth: true})
			case errors.Is(err, rotation.ErrInvalidRefresh), errors.Is(err, rotation.ErrTokenReuse):
				helpers.RespondError(w, http.StatusUnauthorized, "invalid refresh token")
			case errors.Is(err, rotation.ErrSessionExpired):
				helpers.RespondError(w, http.StatusUnauthorized, "session expired")
			case errors.Is(err, rotation.ErrUserNotFound):
				helpers.RespondError(w, http.StatusUnauthorized, "invalid refresh token")
			default:
				helpers.RespondError(w, http.StatusInternalServerError, "internal error")
			}
			return
		}

		helpers.RespondJSON(w, http.StatusOK, refreshResponse{
			AccessToken:           result.AccessToken,
			RefreshToken:          result.RefreshToken,
			AccessTokenExpiresAt:  result.AccessTokenExpiresAt.Format(rfc3339),
			RefreshTokenExpiresAt: result.RefreshTokenExpiresAt.Format(rfc3339),
		})
	}
}

type logoutRequest struct {
	SessionID        string `json:"sessionId"`
	RevokeAllSessions bool  `json:"revokeAllSessions"`
}

type logoutResponse struct {
	Success         bool   `json:"success"`
	SessionsRevoked int    `json:"sessionsRevoked"`
	Message         string `json:"message"`
}

// LogoutHandler implements logout() operation.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.MustGetUserID(r.Context())

		var req logoutRequest
		_ = helpers.DecodeJSON(r, &req) // body is optional; zero value revokes the current session

		sessionID := req.SessionID
		if sessionID == "" {
			sessionID, _ = middleware.GetSessionID(r.Context())
		}

		result, err := s.Auth.Logout(r.Context(), userID, sessionID, req.RevokeAllSessions, token.ClientContext{
			IP: helpers.GetRealIP(r).String(), UserAgent: r.UserAgent(),
		})
		if err != nil {
			writeAuthError(w, err)
			return
		}

		helpers.RespondJSON(w, http.StatusOK, logoutResponse{
			Success: result.Success, SessionsRevoked: result.SessionsRevoked, Message: result.Message,
		})
	}
}

const rfc3339 = "2006-01-02T15:04:05.999999999Z07:00"

// writeAuthError maps the closed auth error-kind taxonomy to
// the status codes specifies.
func writeAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrValidation):
		helpers.RespondError(w, http.StatusBadRequest, "validation failed")
	case errors.Is(err, auth.ErrInvalidCredentials):
		helpers.RespondError(w, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, auth.ErrAccountDeactivated):
		helpers.RespondError(w, http.StatusForbidden, "account deactivated")
	case errors.Is(err, auth.ErrSessionNotFound):
		helpers.RespondError(w, http.StatusNotFound, "not found")
	case errors.Is(err, auth.ErrStepUpRequired):
		helpers.RespondError(w, http.StatusUnauthorized, "step-up authentication required")
	case errors.Is(err, auth.ErrInvalidCode):
		helpers.RespondError(w, http.StatusUnauthorized, "invalid code")
	case errors.Is(err, auth.ErrMFAAlreadyEnabled):
		helpers.RespondError(w, http.StatusConflict, "mfa already enabled")
	default:
		helpers.RespondError(w, http.StatusInternalServerError, "internal error")
	}
}
