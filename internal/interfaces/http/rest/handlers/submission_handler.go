package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/newtheatre/lumina/internal/domain"
	"github.com/newtheatre/lumina/internal/service/member"
	"github.com/newtheatre/lumina/internal/service/submission"
	"github.com/newtheatre/lumina/pkg/api"
	"github.com/newtheatre/lumina/pkg/auth"
)

// SubmissionHandler serves /submissions.
type SubmissionHandler struct {
	submissions submission.Service
	members     member.Service
	logger      *zap.Logger
}

func NewSubmissionHandler(submissions submission.Service, members member.Service, logger *zap.Logger) *SubmissionHandler {
	return &SubmissionHandler{submissions: submissions, members: members, logger: logger.Named("submission_handler")}
}

// ListForMember handles GET /submissions/member/{id}
func (h *SubmissionHandler) ListForMember(w http.ResponseWriter, r *http.Request) {
	subs, err := h.submissions.ListForMember(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	api.Success(w, http.StatusOK, newSubmissionResponses(subs))
}

// Stats handles GET /submissions/member/{id}/stats
func (h *SubmissionHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.submissions.Stats(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	api.Success(w, http.StatusOK, stats)
}

// ListForTarget handles GET /submissions/target/{type}/*. Target ids
// contain slashes, e.g. 00_01/romeo_and_juliet.
func (h *SubmissionHandler) ListForTarget(w http.ResponseWriter, r *http.Request) {
	targetID := chi.URLParam(r, "*")
	if targetID == "" {
		api.ErrorWithCode(w, http.StatusUnprocessableEntity, "VALIDATION", "target id is required")
		return
	}
	subs, err := h.submissions.ListForTarget(r.Context(), chi.URLParam(r, "type"), targetID)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	api.Success(w, http.StatusOK, newSubmissionResponses(subs))
}

// CreateMessage handles POST /submissions/message. Callers either send a
// token or describe themselves in submitter, never both.
func (h *SubmissionHandler) CreateMessage(w http.ResponseWriter, r *http.Request) {
	var req GenericSubmissionRequest
	if err := decode(r, &req); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	var m *domain.Member
	if token, ok := auth.TokenFromContext(r.Context()); ok {
		resolved, err := h.members.Resolve(r.Context(), token.MemberID)
		if err != nil {
			handleServiceError(w, h.logger, err)
			return
		}
		m = &resolved
	}

	created, err := h.submissions.CreateGeneric(r.Context(), m, req.toInput())
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	api.Success(w, http.StatusOK, newSubmissionResponse(created))
}
