package api

import (
	"net/http"
	"time"

	"github.com/lavente-auth/authcore/internal/api/helpers"
	"github.com/lavente-auth/authcore/internal/api/middleware"
	"github.com/lavente-auth/authcore/internal/pdp"
	"github.com/lavente-auth/authcore/internal/permission"
	"github.com/lavente-auth/authcore/internal/risk"
)

type authorizeRequest struct {
	Resource          string `json:"resource"`
	Action            string `json:"action"`
	DeviceFingerprint string `json:"deviceFingerprint"`
	Country           string `json:"country"`
}

type authorizeResponse struct {
	Allowed     bool     `json:"allowed"`
	Reason      string   `json:"reason,omitempty"`
	RiskScore   int      `json:"riskScore"`
	RiskLevel   string   `json:"riskLevel"`
	Obligations []string `json:"obligations,omitempty"`
	Advice      []string `json:"advice,omitempty"`
}

// AuthorizeHandler evaluates a resource/action/context triple against the
// Policy Decision Point and returns an allow/deny decision with any
// obligations and advice.
func (s *Server) AuthorizeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.MustGetUserID(r.Context())

		var req authorizeRequest
		if err := helpers.DecodeJSON(r, &req); err != nil {
			helpers.RespondError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		u, err := s.Users.FindByID(r.Context(), userID)
		if err != nil {
			helpers.RespondError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}

		now := time.Now()
		decision := s.PDP.Evaluate(r.Context(), pdp.Request{
			Resource: req.Resource,
			Action:   req.Action,
			PermissionContext: permission.EvalContext{
				IP:                helpers.GetRealIP(r).String(),
				Country:           req.Country,
				UserAttributes:    u.Attributes,
				SecurityLevel:     u.SecurityLevel,
				DeviceFingerprint: req.DeviceFingerprint,
				Now:               now,
			},
			RiskInput: risk.Input{
				UserID:              u.ID,
				IP:                  helpers.GetRealIP(r).String(),
				Country:             req.Country,
				DeviceFingerprint:   req.DeviceFingerprint,
				KnownDevice:         u.HasKnownDevice(req.DeviceFingerprint),
				HasAnyKnownDevice:   len(u.KnownDeviceHashes) > 0,
				AccountCreatedAt:    u.CreatedAt,
				PasswordChangedAt:   u.PasswordChangedAt,
				Now:                 now,
			},
		})

		obligations := make([]string, 0, len(decision.Obligations))
		for _, o := range decision.Obligations {
			obligations = append(obligations, string(o))
		}

		status := http.StatusOK
		if !decision.Allowed {
			status = http.StatusForbidden
		}
		helpers.RespondJSON(w, status, authorizeResponse{
			Allowed:     decision.Allowed,
			Reason:      decision.Reason,
			RiskScore:   decision.RiskScore,
			RiskLevel:   string(decision.RiskLevel),
			Obligations: obligations,
			Advice:      decision.Advice,
		})
	}
}
