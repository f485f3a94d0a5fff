package token

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"enrolld/internal/platform/config"
	dErrors "enrolld/pkg/domain-errors"
)

const delegatedTokenPath = "/delegated-token"

type delegatedTokenRequest struct {
	Username string   `json:"username,omitempty"`
	Scopes   []string `json:"scopes"`
}

type delegatedTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// HTTPService implements the Service port against the identity provider's
// delegated-token endpoint, which mints scoped tokens for accounts the
// provider already holds a session credential for.
type HTTPService struct {
	url          string
	clientID     string
	clientSecret string
	client       *http.Client
}

func NewHTTPService(cfg config.OAuthConfig) *HTTPService {
	return &HTTPService{
		url:          cfg.TokenURL + delegatedTokenPath,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		client:       &http.Client{Timeout: cfg.RequestTimeout},
	}
}

// RefreshCredentialAvailable reports whether the service can mint tokens for
// the active session without an explicit username.
func (s *HTTPService) RefreshCredentialAvailable() bool {
	return s.clientID != "" && s.clientSecret != ""
}

// StartRequest issues one delegated-token request.
func (s *HTTPService) StartRequest(ctx context.Context, username string, scopes []string) (Grant, error) {
	body, err := json.Marshal(delegatedTokenRequest{Username: username, Scopes: scopes})
	if err != nil {
		return Grant{}, dErrors.Wrap(err, dErrors.CodeInternal, "encode token request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return Grant{}, dErrors.Wrap(err, dErrors.CodeInternal, "build token request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(s.clientID, s.clientSecret)

	resp, err := s.client.Do(req)
	if err != nil {
		return Grant{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "token request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return Grant{}, dErrors.New(dErrors.CodeUnauthorized, "identity service rejected token request")
	}
	if resp.StatusCode != http.StatusOK {
		return Grant{}, dErrors.Newf(dErrors.CodeUnavailable, "identity service returned status %d", resp.StatusCode)
	}

	var out delegatedTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Grant{}, dErrors.Wrap(err, dErrors.CodeInternal, "decode token response")
	}
	if out.AccessToken == "" {
		return Grant{}, dErrors.New(dErrors.CodeUnauthorized, "identity service returned no token")
	}

	return Grant{
		AccessToken: out.AccessToken,
		ExpiresAt:   time.Now().Add(time.Duration(out.ExpiresIn) * time.Second),
	}, nil
}
