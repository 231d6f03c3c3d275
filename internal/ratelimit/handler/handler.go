package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/khaleddesign/chantierpro-sub001/internal/ratelimit/models"
	dErrors "github.com/khaleddesign/chantierpro-sub001/pkg/domain-errors"
	"github.com/khaleddesign/chantierpro-sub001/pkg/platform/httputil"
	"github.com/khaleddesign/chantierpro-sub001/pkg/requestcontext"
)

const maxTopN = 100

type Service interface {
	Reset(ctx context.Context, identity string, category models.Category) (bool, error)
	Usage(ctx context.Context, identity string, category models.Category) (*models.Usage, error)
	GetStats(ctx context.Context, topN int) (*models.Stats, error)
}

// Auditor records administrative actions. The security monitor implements
// it.
type Auditor interface {
	LogAdminAction(ctx context.Context, req requestcontext.Descriptor, action string, metadata map[string]any)
}

type Handler struct {
	service Service
	auditor Auditor
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// WithAuditor reports resets to the given auditor.
func (h *Handler) WithAuditor(a Auditor) *Handler {
	h.auditor = a
	return h
}

func (h *Handler) RegisterAdmin(r chi.Router) {
	r.Post("/admin/rate-limit/reset", h.HandleReset)
	r.Get("/admin/rate-limit/usage", h.HandleUsage)
	r.Get("/admin/rate-limit/stats", h.HandleStats)
}

// HandleReset implements POST /admin/rate-limit/reset.
// Input: { "identity": "203.0.113.7:Mozilla/5.0", "category": "auth" }
// or { "ip": "203.0.113.7", "user_agent": "Mozilla/5.0", "category": "auth" }
// Output: { "reset": true, "existed": true, "identity": "...", "category": "auth" }
func (h *Handler) HandleReset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeJSON[models.ResetRequest](ctx, w, r, h.logger)
	if !ok {
		return
	}

	identity := req.ResolvedIdentity()
	category := models.Category(req.Category)
	existed, err := h.service.Reset(ctx, identity, category)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to reset rate limit",
			"error", err,
			"category", category,
			"request_id", requestID,
		)
		httputil.WriteError(w, err)
		return
	}

	if h.auditor != nil {
		h.auditor.LogAdminAction(ctx, descriptor(r), "rate_limit_reset", map[string]any{
			"category": string(category),
			"existed":  existed,
		})
	}

	httputil.WriteJSON(w, http.StatusOK, &models.ResetResponse{
		Reset:    true,
		Existed:  existed,
		Identity: identity,
		Category: category,
	})
}

// HandleUsage implements GET /admin/rate-limit/usage?identity=...&category=...
// The identity may be replaced by ip and user_agent query parameters.
func (h *Handler) HandleUsage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	category, err := models.ParseCategory(strings.ToLower(strings.TrimSpace(q.Get("category"))))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "category must be one of [auth upload read write financial default]"))
		return
	}

	identity := strings.TrimSpace(q.Get("identity"))
	if identity == "" {
		ip := strings.TrimSpace(q.Get("ip"))
		if ip == "" {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "identity or ip is required"))
			return
		}
		identity = models.DeriveIdentity(ip, "", q.Get("user_agent"))
	}

	usage, err := h.service.Usage(ctx, identity, category)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to read rate limit usage",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, usage)
}

// HandleStats implements GET /admin/rate-limit/stats?top=N.
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	topN := 0
	if raw := r.URL.Query().Get("top"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxTopN {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "top must be between 1 and 100"))
			return
		}
		topN = n
	}

	stats, err := h.service.GetStats(ctx, topN)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to compute rate limit stats",
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}

func descriptor(r *http.Request) requestcontext.Descriptor {
	if d, ok := requestcontext.FromContext(r.Context()); ok {
		return d
	}
	return requestcontext.FromRequest(r)
}
