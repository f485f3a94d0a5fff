package userinfo

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"enrolld/internal/platform/config"
	dErrors "enrolld/pkg/domain-errors"
)

func newFetcher(url string) *Fetcher {
	return New(config.OAuthConfig{
		UserInfoURL:    url,
		RequestTimeout: 5 * time.Second,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestFetcher(t *testing.T) {
	t.Run("returns attribute mapping for hosted account", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "Bearer tok123", r.Header.Get("Authorization"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"email":"alice@example.com","hd":"example.com","email_verified":true}`))
		}))
		defer srv.Close()

		info, err := newFetcher(srv.URL).Fetch(context.Background(), "tok123")
		require.NoError(t, err)

		hd, ok := info.HostedDomain()
		require.True(t, ok)
		assert.Equal(t, "example.com", hd)
		assert.Equal(t, "alice@example.com", info["email"])
		assert.Equal(t, "true", info["email_verified"])
	})

	t.Run("consumer account has no hosted domain", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"email":"bob@gmail.test"}`))
		}))
		defer srv.Close()

		info, err := newFetcher(srv.URL).Fetch(context.Background(), "tok123")
		require.NoError(t, err)

		_, ok := info.HostedDomain()
		assert.False(t, ok)
	})

	t.Run("rejected token maps to unauthorized", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer srv.Close()

		_, err := newFetcher(srv.URL).Fetch(context.Background(), "bad-token")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	t.Run("server error maps to unavailable", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		_, err := newFetcher(srv.URL).Fetch(context.Background(), "tok123")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnavailable))
	})
}
