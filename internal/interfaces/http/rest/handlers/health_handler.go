package handlers

import (
	"net/http"

	"github.com/newtheatre/lumina/internal/service/health"
	"github.com/newtheatre/lumina/pkg/api"
)

// HealthHandler serves GET /health. Any failed check makes it a 500 with
// the same body.
type HealthHandler struct {
	health health.Service
}

func NewHealthHandler(svc health.Service) *HealthHandler {
	return &HealthHandler{health: svc}
}

func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	report := h.health.Check(r.Context())
	status := http.StatusOK
	if !report.Healthy() {
		status = http.StatusInternalServerError
	}
	api.Success(w, status, report)
}
