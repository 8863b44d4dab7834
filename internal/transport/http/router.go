// Package http wires the router: middleware chain, the evidence, draft and
// capability surfaces, and the tombstones for retired ingestion paths.
package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"attest/internal/platform/metrics"
	"attest/internal/platform/middleware"
	dErrors "attest/pkg/domain-errors"
	"attest/pkg/platform/httputil"
)

const requestTimeout = 30 * time.Second

// Deps carries everything the router mounts.
type Deps struct {
	Evidence     *EvidenceHandler
	Drafts       *DraftsHandler
	Capabilities *CapabilityHandler
	Auth         middleware.JWTValidator
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
}

// legacyRoutes maps every retired submission path to its tombstone. Each one
// answers 410 naming the single live ingestion route.
var legacyRoutes = []string{
	"/upload",
	"/documents/upload",
	"/evidence/import",
	"/api/evidence/submit",
}

// NewRouter builds the full HTTP surface.
func NewRouter(deps Deps) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(deps.Logger))
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(middleware.ContentTypeJSON)
	r.Use(middleware.LatencyMiddleware(deps.Metrics))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// Tombstones stay outside auth: a retired client must learn the
	// replacement path, not get told its token is bad.
	for _, path := range legacyRoutes {
		r.Post(path, legacyGone)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(deps.Auth, deps.Logger))
		r.Route("/evidence", deps.Evidence.RegisterRoutes)
		r.Route("/drafts", deps.Drafts.RegisterRoutes)
		r.Route("/capabilities", deps.Capabilities.RegisterRoutes)
	})
	return r
}

func legacyGone(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteError(w, dErrors.New(dErrors.CodeGone,
		"this ingestion path has been retired, submit evidence via POST /evidence"))
}
