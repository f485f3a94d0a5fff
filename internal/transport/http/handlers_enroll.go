package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/asaskevich/govalidator"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"enrolld/internal/enrollment/models"
	dErrors "enrolld/pkg/domain-errors"
	"enrolld/pkg/platform/httputil"
	"enrolld/pkg/platform/middleware/auth"
	"enrolld/pkg/requestcontext"
)

//go:generate mockgen -source=handlers_enroll.go -destination=mocks/enroll-mocks.go -package=mocks EnrollmentService

// EnrollmentService is the domain surface the HTTP layer delegates to.
type EnrollmentService interface {
	Enroll(ctx context.Context, req models.EnrollmentRequest) (models.Attempt, error)
	Attempt(ctx context.Context, id uuid.UUID) (models.Attempt, error)
}

// EnrollHandler handles enrollment endpoints.
type EnrollHandler struct {
	logger    *slog.Logger
	service   EnrollmentService
	validator auth.TokenValidator
}

func NewEnrollHandler(service EnrollmentService, validator auth.TokenValidator, logger *slog.Logger) *EnrollHandler {
	return &EnrollHandler{
		logger:    logger,
		service:   service,
		validator: validator,
	}
}

// Register mounts the enrollment routes. All of them require a service token.
func (h *EnrollHandler) Register(r chi.Router) {
	r.Group(func(g chi.Router) {
		g.Use(auth.RequireServiceToken(h.validator))
		g.Post("/enroll", h.handleEnroll)
		g.Get("/enroll/attempts/{id}", h.handleAttempt)
	})
}

// handleEnroll starts an enrollment attempt and answers 202 with the attempt
// record; the registration flow continues in the background.
func (h *EnrollHandler) handleEnroll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.EnrollmentRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	req.Normalize()

	if err := validateEnrollmentRequest(req); err != nil {
		h.logger.WarnContext(ctx, "invalid enrollment request",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()),
		)
		httputil.WriteError(w, err)
		return
	}

	attempt, err := h.service.Enroll(ctx, req)
	if err != nil {
		h.logger.WarnContext(ctx, "failed to start enrollment",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()),
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusAccepted, attempt)
}

// handleAttempt returns the current record for one attempt.
func (h *EnrollHandler) handleAttempt(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid attempt id"))
		return
	}

	attempt, err := h.service.Attempt(ctx, id)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, attempt)
}

func validateEnrollmentRequest(req models.EnrollmentRequest) error {
	if req.Username != "" {
		if !govalidator.StringLength(req.Username, "3", "255") || !govalidator.IsEmail(req.Username) {
			return dErrors.New(dErrors.CodeValidation, "username must be a valid email address")
		}
	}
	if len(req.RefreshToken) > 4096 {
		return dErrors.New(dErrors.CodeValidation, "refresh_token too long")
	}
	return nil
}
