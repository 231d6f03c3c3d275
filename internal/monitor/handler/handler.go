package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/khaleddesign/chantierpro-sub001/internal/monitor"
	dErrors "github.com/khaleddesign/chantierpro-sub001/pkg/domain-errors"
	"github.com/khaleddesign/chantierpro-sub001/pkg/platform/httputil"
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 500
)

type Service interface {
	GetMonitoringStats(now time.Time) monitor.Stats
	Events() []monitor.Event
	Now() time.Time
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Get("/admin/security/stats", h.HandleStats)
	r.Get("/admin/security/events", h.HandleEvents)
}

// HandleStats implements GET /admin/security/stats.
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, h.service.GetMonitoringStats(h.service.Now()))
}

type EventsResponse struct {
	Events []monitor.Event `json:"events"`
	Count  int             `json:"count"`
}

// HandleEvents implements GET /admin/security/events, newest first.
// Query: type=FAILED_LOGIN, min_severity=high, limit=1..500
func (h *Handler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := defaultEventLimit
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxEventLimit {
			h.logger.DebugContext(r.Context(), "rejected security events query", "limit", raw)
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "limit must be between 1 and 500"))
			return
		}
		limit = n
	}

	var minSeverity monitor.Severity
	if raw := q.Get("min_severity"); raw != "" {
		sev, err := monitor.ParseSeverity(raw)
		if err != nil {
			h.logger.DebugContext(r.Context(), "rejected security events query", "error", err)
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "unknown severity"))
			return
		}
		minSeverity = sev
	}
	eventType := monitor.EventType(q.Get("type"))

	events := h.service.Events()
	out := make([]monitor.Event, 0, limit)
	for i := len(events) - 1; i >= 0 && len(out) < limit; i-- {
		e := events[i]
		if eventType != "" && e.Type != eventType {
			continue
		}
		if e.Severity < minSeverity {
			continue
		}
		out = append(out, e)
	}

	httputil.WriteJSON(w, http.StatusOK, EventsResponse{Events: out, Count: len(out)})
}
