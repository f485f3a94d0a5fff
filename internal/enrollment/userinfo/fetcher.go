// Package userinfo queries the identity-info service for profile attributes
// of the account behind an access token. Enrollment only consults the
// hosted-domain attribute, but the full mapping is returned for logging and
// auditing.
package userinfo

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"enrolld/internal/enrollment/models"
	"enrolld/internal/platform/config"
	dErrors "enrolld/pkg/domain-errors"
)

// Fetcher issues one identity-info request scoped by an access token.
// Failure is an explicit error, never an empty-success value.
type Fetcher struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

func New(cfg config.OAuthConfig, logger *slog.Logger) *Fetcher {
	return &Fetcher{
		url:    cfg.UserInfoURL,
		client: &http.Client{Timeout: cfg.RequestTimeout},
		logger: logger,
	}
}

// Fetch retrieves the attribute mapping for the account the token belongs to.
func (f *Fetcher) Fetch(ctx context.Context, accessToken string) (models.IdentityInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "build userinfo request")
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "userinfo request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "userinfo rejected access token")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, dErrors.Newf(dErrors.CodeUnavailable, "userinfo returned status %d", resp.StatusCode)
	}

	var raw map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "decode userinfo response")
	}

	info := make(models.IdentityInfo, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case string:
			info[k] = val
		case bool, float64:
			info[k] = fmt.Sprint(val)
		}
	}

	f.logger.DebugContext(ctx, "fetched identity info",
		slog.Int("attributes", len(info)))
	return info, nil
}
