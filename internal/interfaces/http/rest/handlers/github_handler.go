package handlers

import (
	"errors"
	"io"
	"net/http"

	gh "github.com/google/go-github/v62/github"
	"go.uber.org/zap"

	"github.com/newtheatre/lumina/internal/infrastructure/github"
	"github.com/newtheatre/lumina/internal/service/submission"
	"github.com/newtheatre/lumina/pkg/api"
)

// WebhookHandler receives GitHub webhooks for the content repository.
type WebhookHandler struct {
	submissions submission.Service
	secret      []byte
	logger      *zap.Logger
}

func NewWebhookHandler(submissions submission.Service, secret string, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{submissions: submissions, secret: []byte(secret), logger: logger.Named("github_webhook")}
}

// Handle handles POST /github/webhook
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		api.Error(w, http.StatusBadRequest, "Could not read body")
		return
	}

	if err := github.VerifySignature(r.Header.Get(github.SignatureHeader), body, h.secret); err != nil {
		if errors.Is(err, github.ErrMissingSignature) {
			api.Error(w, http.StatusBadRequest, "Missing signature header")
			return
		}
		h.logger.Warn("Webhook signature rejected", zap.String("remote_addr", r.RemoteAddr), zap.Error(err))
		api.Error(w, http.StatusUnauthorized, "Signature verification failed")
		return
	}

	eventType := gh.WebHookType(r)
	change, ok, err := github.ParseIssueChange(eventType, body)
	if err != nil {
		api.ErrorWithCode(w, http.StatusUnprocessableEntity, "VALIDATION", "Unreadable webhook payload")
		return
	}
	if !ok {
		h.logger.Debug("Ignoring webhook event", zap.String("event", eventType), zap.String("delivery", gh.DeliveryID(r)))
		api.OK(w)
		return
	}

	if err := h.submissions.ApplyIssueChange(r.Context(), change); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	api.OK(w)
}
