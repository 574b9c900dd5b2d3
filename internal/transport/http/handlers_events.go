// Package httptransport exposes the dispatcher over HTTP: applications that
// cannot embed an interceptor post finished events, operators read sink
// status, health and metrics.
package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"auditlog/pkg/audit"
	"auditlog/pkg/audit/actor"
	"auditlog/pkg/platform/httputil"
	"auditlog/pkg/requestcontext"
)

// DefaultOrigin tags ingested events that name no origin.
const DefaultOrigin = "http"

const maxBodyBytes = 1 << 20

// Dispatcher is the part of *dispatcher.Dispatcher the handlers use.
type Dispatcher interface {
	Emit(ctx context.Context, p audit.Payload)
	Sinks() []string
	Dropped() uint64
}

// Handler is the thin HTTP layer over a Dispatcher.
type Handler struct {
	dispatcher Dispatcher
	logger     *slog.Logger
}

func NewHandler(d Dispatcher, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{dispatcher: d, logger: logger}
}

type ingestResponse struct {
	Accepted int         `json:"accepted"`
	IDs      []uuid.UUID `json:"ids"`
}

// handleIngest accepts one event object or an array of them. The batch is
// validated as a whole; nothing is emitted unless every event is valid.
func (h *Handler) handleIngest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	events, err := decodeEvents(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.logger.InfoContext(ctx, "rejected audit ingest",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
			"client_ip", requestcontext.ClientIP(ctx),
			"device", requestcontext.Device(ctx),
		)
		httputil.WriteError(w, httputil.BadRequest(err.Error()))
		return
	}

	now := requestcontext.Now(ctx)
	principal := actor.Principal(ctx)
	resp := ingestResponse{IDs: make([]uuid.UUID, 0, len(events))}

	for i := range events {
		e := &events[i]
		if e.ID == uuid.Nil {
			e.ID = uuid.New()
		}
		if e.Timestamp.IsZero() {
			e.Timestamp = now
		}
		if e.Actor == "" {
			e.Actor = principal
		}
		if e.Origin == "" {
			e.Origin = DefaultOrigin
		}
		if err := e.Validate(); err != nil {
			httputil.WriteError(w, httputil.BadRequest(fmt.Sprintf("event %d: %v", i, err)))
			return
		}
		resp.IDs = append(resp.IDs, e.ID)
	}

	for _, e := range events {
		h.dispatcher.Emit(ctx, e)
	}
	resp.Accepted = len(events)
	h.logger.DebugContext(ctx, "audit events accepted",
		"count", resp.Accepted,
		"request_id", requestcontext.RequestID(ctx),
		"device", requestcontext.Device(ctx),
	)
	httputil.WriteJSON(w, http.StatusAccepted, resp)
}

func decodeEvents(body io.Reader) ([]audit.Event, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, errors.New("empty body")
	}

	var events []audit.Event
	if raw[0] == '[' {
		if err := json.Unmarshal(raw, &events); err != nil {
			return nil, fmt.Errorf("decode events: %w", err)
		}
	} else {
		var e audit.Event
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
		events = append(events, e)
	}
	if len(events) == 0 {
		return nil, errors.New("no events")
	}
	return events, nil
}

type sinksResponse struct {
	Sinks   []string `json:"sinks"`
	Dropped uint64   `json:"dropped"`
}

func (h *Handler) handleSinks(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, sinksResponse{
		Sinks:   h.dispatcher.Sinks(),
		Dropped: h.dispatcher.Dropped(),
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
