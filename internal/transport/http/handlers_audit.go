package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	dErrors "enrolld/pkg/domain-errors"
	audit "enrolld/pkg/platform/audit"
	"enrolld/pkg/platform/httputil"
	"enrolld/pkg/platform/middleware/auth"
)

const defaultAuditLimit = 50

// AuditReader is the slice of the audit store the HTTP layer reads from.
type AuditReader interface {
	ListByAttempt(ctx context.Context, attemptID uuid.UUID) ([]audit.Event, error)
	ListRecent(ctx context.Context, limit int) ([]audit.Event, error)
}

// AuditHandler exposes the enrollment audit trail.
type AuditHandler struct {
	logger    *slog.Logger
	store     AuditReader
	validator auth.TokenValidator
}

func NewAuditHandler(store AuditReader, validator auth.TokenValidator, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{
		logger:    logger,
		store:     store,
		validator: validator,
	}
}

func (h *AuditHandler) Register(r chi.Router) {
	r.Group(func(g chi.Router) {
		g.Use(auth.RequireServiceToken(h.validator))
		g.Get("/audit/events", h.handleListRecent)
		g.Get("/audit/attempts/{id}", h.handleListByAttempt)
	})
}

func (h *AuditHandler) handleListRecent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit := defaultAuditLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "limit must be between 1 and 500"))
			return
		}
		limit = n
	}

	events, err := h.store.ListRecent(ctx, limit)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list audit events",
			slog.String("error", err.Error()))
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "failed to list audit events"))
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (h *AuditHandler) handleListByAttempt(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid attempt id"))
		return
	}

	events, err := h.store.ListByAttempt(ctx, id)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list audit events for attempt",
			slog.String("attempt_id", id.String()),
			slog.String("error", err.Error()))
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "failed to list audit events"))
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{"events": events})
}
