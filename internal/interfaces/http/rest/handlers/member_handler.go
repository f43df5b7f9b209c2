package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/newtheatre/lumina/internal/service/member"
	"github.com/newtheatre/lumina/pkg/api"
	"github.com/newtheatre/lumina/pkg/auth"
)

// MemberHandler serves /member.
type MemberHandler struct {
	members member.Service
	logger  *zap.Logger
}

func NewMemberHandler(members member.Service, logger *zap.Logger) *MemberHandler {
	return &MemberHandler{members: members, logger: logger.Named("member_handler")}
}

// Read handles GET /member/{id}
func (h *MemberHandler) Read(w http.ResponseWriter, r *http.Request) {
	token, ok := auth.TokenFromContext(r.Context())
	if !ok {
		api.Error(w, http.StatusUnauthorized, "Authorization required")
		return
	}
	m, err := h.members.Read(r.Context(), token.MemberID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	api.Success(w, http.StatusOK, newMemberResponse(m))
}

// Check handles GET /member/{id}/check
func (h *MemberHandler) Check(w http.ResponseWriter, r *http.Request) {
	public, err := h.members.Check(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	api.Success(w, http.StatusOK, public)
}

// Register handles POST /member/{id}
func (h *MemberHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterMemberRequest
	if err := decode(r, &req); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	if err := h.members.Register(r.Context(), req.toInput(chi.URLParam(r, "id"))); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	api.OK(w)
}

// Update handles PUT /member/{id}
func (h *MemberHandler) Update(w http.ResponseWriter, r *http.Request) {
	token, ok := auth.TokenFromContext(r.Context())
	if !ok {
		api.Error(w, http.StatusUnauthorized, "Authorization required")
		return
	}
	var req UpdateMemberRequest
	if err := decode(r, &req); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	m, err := h.members.Update(r.Context(), token.MemberID, chi.URLParam(r, "id"), member.UpdateInput{
		Phone:   req.Phone,
		Consent: *req.Consent,
	})
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	api.Success(w, http.StatusOK, newMemberResponse(m))
}

// Delete handles DELETE /member/{id}
func (h *MemberHandler) Delete(w http.ResponseWriter, r *http.Request) {
	token, ok := auth.TokenFromContext(r.Context())
	if !ok {
		api.Error(w, http.StatusUnauthorized, "Authorization required")
		return
	}
	if err := h.members.Delete(r.Context(), token.MemberID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	api.OK(w)
}

// SendLoginLink handles POST /member/{id}/login
func (h *MemberHandler) SendLoginLink(w http.ResponseWriter, r *http.Request) {
	if err := h.members.SendLoginLink(r.Context(), chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	api.OK(w)
}
