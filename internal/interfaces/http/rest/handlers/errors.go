package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/newtheatre/lumina/pkg/api"
	appErrors "github.com/newtheatre/lumina/pkg/errors"
)

// retryAfterSeconds is sent with every 503.
const retryAfterSeconds = "5"

// handleServiceError converts service errors to HTTP responses. Only the
// message of an AppError reaches the client.
func handleServiceError(w http.ResponseWriter, logger *zap.Logger, err error) {
	code := string(appErrors.TypeOf(err))
	switch {
	case appErrors.IsNotFound(err):
		api.ErrorWithCode(w, http.StatusNotFound, code, messageOf(err))
	case appErrors.IsAlreadyExists(err):
		api.ErrorWithCode(w, http.StatusConflict, code, messageOf(err))
	case appErrors.IsValidation(err):
		api.ErrorWithCode(w, http.StatusUnprocessableEntity, code, messageOf(err))
	case appErrors.IsUnauthorized(err):
		api.ErrorWithCode(w, http.StatusUnauthorized, code, messageOf(err))
	case appErrors.IsForbidden(err):
		api.ErrorWithCode(w, http.StatusForbidden, code, messageOf(err))
	case appErrors.IsEmailUnverified(err):
		logger.Warn("Mail provider refused an address", zap.Error(err))
		api.ErrorWithCode(w, http.StatusUnprocessableEntity, code, messageOf(err))
	case appErrors.IsRetryable(err):
		logger.Warn("Dependency unavailable", zap.Error(err))
		w.Header().Set("Retry-After", retryAfterSeconds)
		api.ErrorWithCode(w, http.StatusServiceUnavailable, code, "Service temporarily unavailable")
	case appErrors.IsFatal(err):
		logger.Error("Stored data needs attention", zap.String("error_type", code), zap.Bool("alert", true), zap.Error(err))
		api.ErrorWithCode(w, http.StatusInternalServerError, code, "An internal error occurred")
	default:
		logger.Error("Unhandled error", zap.Error(err))
		api.ErrorWithCode(w, http.StatusInternalServerError, string(appErrors.ErrorTypeInternal), "An internal error occurred")
	}
}

func messageOf(err error) string {
	var appErr *appErrors.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}
