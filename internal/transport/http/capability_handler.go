package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"attest/internal/capability"
	"attest/pkg/platform/httputil"
)

// CapabilityHandler exposes the declared-integration registry.
type CapabilityHandler struct {
	registry *capability.Registry
}

// NewCapabilityHandler creates the capability handler.
func NewCapabilityHandler(registry *capability.Registry) *CapabilityHandler {
	return &CapabilityHandler{registry: registry}
}

// RegisterRoutes mounts the capability routes.
func (h *CapabilityHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/{name}/check", h.check)
}

func (h *CapabilityHandler) list(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"capabilities": h.registry.List()})
}

func (h *CapabilityHandler) check(w http.ResponseWriter, r *http.Request) {
	result, err := h.registry.Check(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	status := http.StatusOK
	if result.Status == capability.StatusUnavailable {
		status = http.StatusServiceUnavailable
	}
	httputil.WriteJSON(w, status, result)
}
