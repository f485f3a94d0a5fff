package token

import (
	"context"
	"log/slog"
	"sync/atomic"

	"enrolld/internal/enrollment/models"
	dErrors "enrolld/pkg/domain-errors"
)

// ServiceStrategy fetches the access token through the identity/token
// service. Used when the service can mint tokens for the account directly,
// including accounts whose sign-in has not finished yet.
type ServiceStrategy struct {
	svc      Service
	username string
	logger   *slog.Logger
	started  atomic.Bool
}

// NewServiceStrategy builds the service-path strategy. Either username is
// non-empty or the token service must already hold a usable refresh
// credential for the active session.
func NewServiceStrategy(svc Service, username string, logger *slog.Logger) (*ServiceStrategy, error) {
	if username == "" && !svc.RefreshCredentialAvailable() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation,
			"service token fetch requires a username or an available refresh credential")
	}
	return &ServiceStrategy{svc: svc, username: username, logger: logger}, nil
}

func (s *ServiceStrategy) Name() string { return "token_service" }

// FetchAccessToken issues the single token request for this strategy
// instance.
func (s *ServiceStrategy) FetchAccessToken(ctx context.Context) (string, error) {
	if !s.started.CompareAndSwap(false, true) {
		return "", dErrors.New(dErrors.CodeInvariantViolation, "token fetch already started")
	}

	grant, err := s.svc.StartRequest(ctx, s.username, models.Scopes())
	if err != nil {
		s.logger.WarnContext(ctx, "token service request failed",
			slog.String("strategy", s.Name()),
			slog.String("error", err.Error()),
		)
		return "", err
	}
	return grant.AccessToken, nil
}
