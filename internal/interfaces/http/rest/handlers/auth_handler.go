package handlers

import (
	"net/http"

	"github.com/newtheatre/lumina/pkg/api"
	"github.com/newtheatre/lumina/pkg/auth"
)

// AuthCheck handles GET /auth/check. The token is already verified by
// middleware.
func AuthCheck(w http.ResponseWriter, r *http.Request) {
	token, ok := auth.TokenFromContext(r.Context())
	if !ok {
		api.Error(w, http.StatusUnauthorized, "Authorization required")
		return
	}
	api.Success(w, http.StatusOK, AuthCheckResponse{ID: token.MemberID, ExpiresAt: token.ExpiresAt})
}
