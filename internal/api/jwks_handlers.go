package api

import (
	"net/http"

	"github.com/lavente-auth/authcore/internal/api/helpers"
)

// JWKSHandler serves the active and grace-window verification keys as a
// JSON Web Key Set, so external verifiers can validate tokens without
// talking to this process.
func (s *Server) JWKSHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		helpers.RespondJSON(w, http.StatusOK, s.Keys.ExportJWKS())
	}
}
