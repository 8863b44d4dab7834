package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"attest/internal/drafts"
	"attest/pkg/platform/httputil"
)

// DraftsHandler exposes the staging area. Drafts are the only resources in
// the API that accept PUT and a successful DELETE.
type DraftsHandler struct {
	service *drafts.Service
	logger  *slog.Logger
}

// NewDraftsHandler creates the drafts handler.
func NewDraftsHandler(svc *drafts.Service, logger *slog.Logger) *DraftsHandler {
	return &DraftsHandler{service: svc, logger: logger}
}

// RegisterRoutes mounts the draft routes.
func (h *DraftsHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Route("/{draftID}", func(r chi.Router) {
		r.Get("/", h.get)
		r.Put("/", h.update)
		r.Delete("/", h.abandon)
		r.Post("/commit", h.commit)
	})
}

type draftRequest struct {
	TenantID        string          `json:"tenant_id,omitempty"`
	IngestionPath   string          `json:"ingestion_path,omitempty"`
	DeclaredContext map[string]any  `json:"declared_context,omitempty"`
	Payload         json.RawMessage `json:"payload,omitempty"`
	FileURL         string          `json:"file_url,omitempty"`
	FileHashSHA256  string          `json:"file_hash_sha256,omitempty"`
}

func (r draftRequest) input() drafts.DraftInput {
	return drafts.DraftInput{
		IngestionPath:   r.IngestionPath,
		DeclaredContext: r.DeclaredContext,
		Payload:         r.Payload,
		FileURL:         r.FileURL,
		FileHashSHA256:  r.FileHashSHA256,
	}
}

func (h *DraftsHandler) create(w http.ResponseWriter, r *http.Request) {
	var req draftRequest
	if err := decodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	tenantID, err := requestTenant(r, req.TenantID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	draft, err := h.service.Create(r.Context(), tenantID, req.input())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, draft)
}

func (h *DraftsHandler) list(w http.ResponseWriter, r *http.Request) {
	tenantID, err := requestTenant(r, "")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	out, err := h.service.List(r.Context(), tenantID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"drafts": out})
}

func (h *DraftsHandler) get(w http.ResponseWriter, r *http.Request) {
	tenantID, err := requestTenant(r, "")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	draft, err := h.service.Get(r.Context(), tenantID, chi.URLParam(r, "draftID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, draft)
}

func (h *DraftsHandler) update(w http.ResponseWriter, r *http.Request) {
	var req draftRequest
	if err := decodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	tenantID, err := requestTenant(r, req.TenantID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	draft, err := h.service.Update(r.Context(), tenantID, chi.URLParam(r, "draftID"), req.input())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, draft)
}

func (h *DraftsHandler) abandon(w http.ResponseWriter, r *http.Request) {
	tenantID, err := requestTenant(r, "")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.Abandon(r.Context(), tenantID, chi.URLParam(r, "draftID")); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type commitRequest struct {
	TenantID      string `json:"tenant_id,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

func (h *DraftsHandler) commit(w http.ResponseWriter, r *http.Request) {
	var req commitRequest
	if err := decodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	tenantID, err := requestTenant(r, req.TenantID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	draftID := chi.URLParam(r, "draftID")
	correlationID := req.CorrelationID
	if correlationID == "" {
		// The draft id makes a natural idempotency key: committing the
		// same draft twice yields one evidence record.
		correlationID = draftID
	}
	record, err := h.service.Commit(r.Context(), tenantID, draftID, correlationID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, record)
}
