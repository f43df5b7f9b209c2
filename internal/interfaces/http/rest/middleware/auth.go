package middleware

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/newtheatre/lumina/pkg/api"
	"github.com/newtheatre/lumina/pkg/auth"
)

// TokenValidator verifies bearer tokens.
type TokenValidator interface {
	Validate(raw string) (*auth.Token, error)
}

// RequireToken rejects requests without a valid bearer token.
func RequireToken(validator TokenValidator, logger *zap.Logger) func(next http.Handler) http.Handler {
	return authenticate(validator, logger, false)
}

// OptionalToken lets anonymous requests through. A token that is present
// must still be valid.
func OptionalToken(validator TokenValidator, logger *zap.Logger) func(next http.Handler) http.Handler {
	return authenticate(validator, logger, true)
}

func authenticate(validator TokenValidator, logger *zap.Logger, optional bool) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				if optional {
					next.ServeHTTP(w, r)
					return
				}
				api.ErrorWithCode(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authorization required")
				return
			}

			token, err := validator.Validate(header)
			if err != nil {
				if !errors.Is(err, auth.ErrExpiredToken) {
					logger.Debug("Rejected token", zap.String("path", r.URL.Path), zap.Error(err))
				}
				api.ErrorWithCode(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or expired token")
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithToken(r.Context(), token)))
		})
	}
}
