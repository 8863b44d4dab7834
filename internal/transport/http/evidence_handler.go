package http

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"attest/internal/ledger/models"
	"attest/internal/ledger/service"
	"attest/internal/ledger/store"
	"attest/pkg/domain"
	dErrors "attest/pkg/domain-errors"
	"attest/pkg/platform/httputil"
)

// tenantHeader carries the explicit tenant binding. The tenant is never
// inferred from the token; mismatched body tenant ids are rejected outright.
const tenantHeader = "X-Tenant-ID"

// EvidenceHandler exposes the ledger over HTTP. All rules live in the
// service; the handler only decodes, binds the tenant, and writes results.
type EvidenceHandler struct {
	service *service.Service
	logger  *slog.Logger
}

// NewEvidenceHandler creates the evidence handler.
func NewEvidenceHandler(svc *service.Service, logger *slog.Logger) *EvidenceHandler {
	return &EvidenceHandler{service: svc, logger: logger}
}

// RegisterRoutes mounts the evidence routes.
func (h *EvidenceHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.ingest)
	r.Get("/", h.list)
	r.Route("/{evidenceID}", func(r chi.Router) {
		r.Get("/", h.get)
		r.Delete("/", h.delete)
		r.Get("/audit", h.auditTrail)
		r.Get("/verify", h.verify)
		r.Post("/seal", h.seal)
		r.Post("/reject", h.reject)
		r.Post("/fail", h.fail)
		r.Post("/normalize", h.normalize)
		r.Post("/supersede", h.supersede)
		r.Post("/quarantine", h.quarantine)
		r.Post("/mutation-check", h.mutationCheck)
	})
}

// decodeJSON decodes a request body, tolerating an absent body for requests
// whose fields are all optional.
func decodeJSON(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return dErrors.New(dErrors.CodeBadRequest, "request body must be valid JSON")
}

// requestTenant resolves the explicit tenant parameter: the X-Tenant-ID
// header, which a body tenant_id may repeat but never contradict.
func requestTenant(r *http.Request, bodyTenantID string) (string, error) {
	header := r.Header.Get(tenantHeader)
	if header == "" {
		return "", dErrors.New(dErrors.CodeValidation, "X-Tenant-ID header is required")
	}
	if bodyTenantID != "" && bodyTenantID != header {
		return "", dErrors.New(dErrors.CodeValidation, "tenant_id in body does not match X-Tenant-ID header")
	}
	return header, nil
}

type ingestRequest struct {
	TenantID        string          `json:"tenant_id,omitempty"`
	IngestionPath   string          `json:"ingestion_path"`
	DeclaredContext map[string]any  `json:"declared_context,omitempty"`
	Payload         json.RawMessage `json:"payload"`
	FileURL         string          `json:"file_url,omitempty"`
	FileHashSHA256  string          `json:"file_hash_sha256,omitempty"`
	CorrelationID   string          `json:"correlation_id"`
}

func (h *EvidenceHandler) ingest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := decodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	tenantID, err := requestTenant(r, req.TenantID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var payload any
	if len(req.Payload) > 0 {
		payload = req.Payload
	}
	record, created, err := h.service.Ingest(r.Context(), service.IngestInput{
		TenantID:        tenantID,
		IngestionPath:   req.IngestionPath,
		DeclaredContext: req.DeclaredContext,
		Payload:         payload,
		FileURL:         req.FileURL,
		FileHashSHA256:  req.FileHashSHA256,
		CorrelationID:   req.CorrelationID,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	httputil.WriteJSON(w, status, record)
}

func (h *EvidenceHandler) list(w http.ResponseWriter, r *http.Request) {
	tenantID, err := requestTenant(r, "")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var filter store.Filter
	if raw := r.URL.Query().Get("state"); raw != "" {
		state, err := models.ParseLedgerState(raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		filter.State = state
	}
	if raw := r.URL.Query().Get("path"); raw != "" {
		path, err := domain.ParseIngestionPath(raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		filter.Path = path
	}
	records, err := h.service.List(r.Context(), tenantID, filter)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"evidence": records})
}

func (h *EvidenceHandler) get(w http.ResponseWriter, r *http.Request) {
	tenantID, err := requestTenant(r, "")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	record, err := h.service.Get(r.Context(), tenantID, chi.URLParam(r, "evidenceID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, record)
}

func (h *EvidenceHandler) auditTrail(w http.ResponseWriter, r *http.Request) {
	tenantID, err := requestTenant(r, "")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	events, err := h.service.AuditTrail(r.Context(), tenantID, chi.URLParam(r, "evidenceID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (h *EvidenceHandler) verify(w http.ResponseWriter, r *http.Request) {
	tenantID, err := requestTenant(r, "")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	report, err := h.service.Verify(r.Context(), tenantID, chi.URLParam(r, "evidenceID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}

type transitionRequest struct {
	TenantID      string `json:"tenant_id,omitempty"`
	ReasonCode    string `json:"reason_code,omitempty"`
	FailureCode   string `json:"failure_code,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// transition factors the shared decode-bind-respond shape of the simple
// lifecycle endpoints.
func (h *EvidenceHandler) transition(w http.ResponseWriter, r *http.Request, apply func(tenantID, evidenceID string, req transitionRequest) (any, error)) {
	var req transitionRequest
	if err := decodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	tenantID, err := requestTenant(r, req.TenantID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	result, err := apply(tenantID, chi.URLParam(r, "evidenceID"), req)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *EvidenceHandler) seal(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(tenantID, evidenceID string, req transitionRequest) (any, error) {
		return h.service.Seal(r.Context(), tenantID, evidenceID, req.CorrelationID)
	})
}

func (h *EvidenceHandler) reject(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(tenantID, evidenceID string, req transitionRequest) (any, error) {
		return h.service.Reject(r.Context(), tenantID, evidenceID, req.ReasonCode, req.CorrelationID)
	})
}

func (h *EvidenceHandler) fail(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(tenantID, evidenceID string, req transitionRequest) (any, error) {
		return h.service.Fail(r.Context(), tenantID, evidenceID, req.FailureCode, req.CorrelationID)
	})
}

func (h *EvidenceHandler) quarantine(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(tenantID, evidenceID string, req transitionRequest) (any, error) {
		return h.service.Quarantine(r.Context(), tenantID, evidenceID, req.CorrelationID)
	})
}

type normalizeRequest struct {
	TenantID      string          `json:"tenant_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
	CorrelationID string          `json:"correlation_id,omitempty"`
}

func (h *EvidenceHandler) normalize(w http.ResponseWriter, r *http.Request) {
	var req normalizeRequest
	if err := decodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	tenantID, err := requestTenant(r, req.TenantID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var payload any
	if len(req.Payload) > 0 {
		payload = req.Payload
	}
	record, err := h.service.Normalize(r.Context(), tenantID, chi.URLParam(r, "evidenceID"), payload, req.CorrelationID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, record)
}

type supersedeRequest struct {
	TenantID        string          `json:"tenant_id,omitempty"`
	IngestionPath   string          `json:"ingestion_path,omitempty"`
	DeclaredContext map[string]any  `json:"declared_context,omitempty"`
	Payload         json.RawMessage `json:"payload"`
	FileURL         string          `json:"file_url,omitempty"`
	FileHashSHA256  string          `json:"file_hash_sha256,omitempty"`
	CorrelationID   string          `json:"correlation_id"`
}

func (h *EvidenceHandler) supersede(w http.ResponseWriter, r *http.Request) {
	var req supersedeRequest
	if err := decodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	tenantID, err := requestTenant(r, req.TenantID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var payload any
	if len(req.Payload) > 0 {
		payload = req.Payload
	}
	successor, err := h.service.Supersede(r.Context(), service.SupersedeInput{
		TenantID:        tenantID,
		EvidenceID:      chi.URLParam(r, "evidenceID"),
		IngestionPath:   req.IngestionPath,
		DeclaredContext: req.DeclaredContext,
		Payload:         payload,
		FileURL:         req.FileURL,
		FileHashSHA256:  req.FileHashSHA256,
		CorrelationID:   req.CorrelationID,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, successor)
}

type mutationCheckRequest struct {
	TenantID  string `json:"tenant_id,omitempty"`
	Operation string `json:"operation"`
}

func (h *EvidenceHandler) mutationCheck(w http.ResponseWriter, r *http.Request) {
	var req mutationCheckRequest
	if err := decodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	tenantID, err := requestTenant(r, req.TenantID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	result, err := h.service.CheckMutation(r.Context(), tenantID, chi.URLParam(r, "evidenceID"), req.Operation)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *EvidenceHandler) delete(w http.ResponseWriter, r *http.Request) {
	tenantID, err := requestTenant(r, "")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	err = h.service.Delete(r.Context(), tenantID, chi.URLParam(r, "evidenceID"))
	if err == nil {
		// Delete never succeeds; a nil error here is a programming bug.
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, ""))
		return
	}
	httputil.WriteError(w, err)
}
