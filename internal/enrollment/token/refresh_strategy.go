package token

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"

	"golang.org/x/oauth2"

	"enrolld/internal/enrollment/models"
	"enrolld/internal/platform/config"
	dErrors "enrolld/pkg/domain-errors"
)

// RefreshStrategy exchanges an out-of-band refresh credential at the OAuth
// token endpoint. Used when the identity/token service path is unavailable
// and the caller already possesses a login refresh token.
type RefreshStrategy struct {
	cfg          oauth2.Config
	refreshToken string
	client       *http.Client
	logger       *slog.Logger
	started      atomic.Bool
}

// NewRefreshStrategy builds the refresh-token-path strategy against the
// configured OAuth endpoints.
func NewRefreshStrategy(cfg config.OAuthConfig, refreshToken string, logger *slog.Logger) *RefreshStrategy {
	return &RefreshStrategy{
		cfg: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     oauth2.Endpoint{TokenURL: cfg.TokenURL},
			Scopes:       models.Scopes(),
		},
		refreshToken: refreshToken,
		client:       &http.Client{Timeout: cfg.RequestTimeout},
		logger:       logger,
	}
}

func (s *RefreshStrategy) Name() string { return "refresh_token" }

// FetchAccessToken performs the single token exchange for this strategy
// instance.
func (s *RefreshStrategy) FetchAccessToken(ctx context.Context) (string, error) {
	if !s.started.CompareAndSwap(false, true) {
		return "", dErrors.New(dErrors.CodeInvariantViolation, "token fetch already started")
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.client)
	src := s.cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: s.refreshToken})

	tok, err := src.Token()
	if err != nil {
		s.logger.WarnContext(ctx, "refresh token exchange failed",
			slog.String("strategy", s.Name()),
			slog.String("error", err.Error()),
		)
		return "", err
	}
	return tok.AccessToken, nil
}
