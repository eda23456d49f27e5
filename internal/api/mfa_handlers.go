package api

import (
	"encoding/base64"
	"net/http"

	"github.com/lavente-auth/authcore/internal/api/helpers"
	"github.com/lavente-auth/authcore/internal/api/middleware"
	"github.com/lavente-auth/authcore/internal/token"
)

type stepUpRequest struct {
	Code   string   `json:"code"`
	Scopes []string `json:"scopes"`
}

type stepUpResponse struct {
	PrivilegedToken string `json:"privilegedToken"`
}

// StepUpHandler discharges the PDP's step_up_authentication /
// additional_verification obligations: it re-validates the caller at a
// higher assurance level and mints a short-lived privileged token scoped
// to the requested operations.
func (s *Server) StepUpHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.MustGetUserID(r.Context())
		sessionID := middleware.MustGetSessionID(r.Context())

		var req stepUpRequest
		if err := helpers.DecodeJSON(r, &req); err != nil {
			helpers.RespondError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		privileged, err := s.Auth.CompleteStepUp(r.Context(), sessionID, userID, req.Code, req.Scopes, token.ClientContext{
			IP: helpers.GetRealIP(r).String(), UserAgent: r.UserAgent(),
		})
		if err != nil {
			writeAuthError(w, err)
			return
		}

		helpers.RespondJSON(w, http.StatusOK, stepUpResponse{PrivilegedToken: privileged})
	}
}

type mfaEnrollmentStartResponse struct {
	Secret      string   `json:"secret"`
	QRCodePNG   string   `json:"qrCodePng"`
	BackupCodes []string `json:"backupCodes"`
}

// StartMFAEnrollmentHandler generates a TOTP secret and a batch of
// recovery codes for the caller to confirm; nothing is persisted until
// CompleteMFAEnrollmentHandler validates possession of the secret.
func (s *Server) StartMFAEnrollmentHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.MustGetUserID(r.Context())

		start, err := s.Auth.StartMFAEnrollment(r.Context(), userID)
		if err != nil {
			writeAuthError(w, err)
			return
		}

		helpers.RespondJSON(w, http.StatusOK, mfaEnrollmentStartResponse{
			Secret:      start.Secret,
			QRCodePNG:   base64.StdEncoding.EncodeToString(start.QRCode),
			BackupCodes: start.BackupCodes,
		})
	}
}

type completeMFAEnrollmentRequest struct {
	Secret      string   `json:"secret"`
	Code        string   `json:"code"`
	BackupCodes []string `json:"backupCodes"`
}

// CompleteMFAEnrollmentHandler confirms the secret handed out by
// StartMFAEnrollmentHandler with a live TOTP code, then enables MFA.
func (s *Server) CompleteMFAEnrollmentHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.MustGetUserID(r.Context())

		var req completeMFAEnrollmentRequest
		if err := helpers.DecodeJSON(r, &req); err != nil {
			helpers.RespondError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		err := s.Auth.CompleteMFAEnrollment(r.Context(), userID, req.Secret, req.Code, req.BackupCodes, token.ClientContext{
			IP: helpers.GetRealIP(r).String(), UserAgent: r.UserAgent(),
		})
		if err != nil {
			writeAuthError(w, err)
			return
		}

		helpers.RespondJSON(w, http.StatusOK, map[string]string{"status": "mfa_enabled"})
	}
}
