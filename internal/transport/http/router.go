package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"auditlog/pkg/audit/actor"
	"auditlog/pkg/platform/middleware/metadata"
	"auditlog/pkg/platform/middleware/requesttime"
	"auditlog/pkg/requestcontext"
)

// NewRouter wires the public endpoints. verifier may be nil, in which case
// ingested events are attributed only from their own actor field.
func NewRouter(h *Handler, metrics http.Handler, verifier actor.Verifier, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(requestIDToContext)
	r.Use(chimw.Recoverer)
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)

	r.Get("/healthz", h.handleHealth)
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		if verifier != nil {
			r.Use(actor.Middleware(verifier, logger))
		}
		r.Post("/events", h.handleIngest)
		r.Get("/sinks", h.handleSinks)
	})
	return r
}

func requestIDToContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithRequestID(r.Context(), chimw.GetReqID(r.Context()))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
