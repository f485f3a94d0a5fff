// Package token obtains the scoped access token that authorizes an enrollment
// attempt. Two interchangeable strategies exist: one delegating to the
// identity/token service that already holds a refresh credential for the
// active session, and one exchanging a caller-supplied refresh token at the
// OAuth token endpoint. The coordinator selects exactly one per attempt.
package token

import (
	"context"
	"time"
)

// Strategy fetches a scoped access token. Implementations issue exactly one
// request per instance; a second FetchAccessToken call is an invariant
// violation. The coordinator treats an error and an empty token uniformly as
// "could not authenticate"; no failure cause flows past this boundary.
type Strategy interface {
	Name() string
	FetchAccessToken(ctx context.Context) (string, error)
}

// Grant is a scoped access token with its expiry.
type Grant struct {
	AccessToken string
	ExpiresAt   time.Time
}

// Service is the port to the identity/token service. It mirrors the upstream
// contract: one asynchronous request per StartRequest call, answered with a
// grant or an auth error.
type Service interface {
	StartRequest(ctx context.Context, username string, scopes []string) (Grant, error)
	RefreshCredentialAvailable() bool
}
