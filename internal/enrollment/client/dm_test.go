package client

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"enrolld/internal/enrollment/models"
	"enrolld/internal/platform/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*DMClient, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cli := NewDMClient(config.DMConfig{
		ServiceURL:     srv.URL,
		RequestTimeout: 5 * time.Second,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return cli, srv
}

func waitEvent(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case ev := <-sub.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no client event delivered")
		return Event{}
	}
}

func TestDMClient_Register(t *testing.T) {
	t.Run("successful registration flips state and notifies", func(t *testing.T) {
		cli, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/devicemanagement/register", r.URL.Path)
			assert.Equal(t, "Bearer tok123", r.Header.Get("Authorization"))

			var req registerRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, models.RegistrationDevice, req.RegistrationType)
			assert.NotEmpty(t, req.DeviceID)

			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"dm_token":"dm-tok-789"}`))
		})

		require.False(t, cli.IsRegistered())
		sub := cli.Subscribe()
		defer sub.Cancel()

		cli.Register(context.Background(), models.RegistrationDevice, "tok123")

		ev := waitEvent(t, sub)
		assert.Equal(t, EventStateChanged, ev.Kind)
		assert.True(t, cli.IsRegistered())
		assert.Equal(t, "dm-tok-789", cli.DMToken())
	})

	t.Run("service rejection notifies client error", func(t *testing.T) {
		cli, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		})

		sub := cli.Subscribe()
		defer sub.Cancel()

		cli.Register(context.Background(), models.RegistrationUser, "tok123")

		ev := waitEvent(t, sub)
		assert.Equal(t, EventClientError, ev.Kind)
		require.Error(t, ev.Err)
		assert.False(t, cli.IsRegistered())
		assert.Empty(t, cli.DMToken())
	})

	t.Run("missing dm token counts as failure", func(t *testing.T) {
		cli, _ := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{}`))
		})

		sub := cli.Subscribe()
		defer sub.Cancel()

		cli.Register(context.Background(), models.RegistrationUser, "tok123")

		ev := waitEvent(t, sub)
		assert.Equal(t, EventClientError, ev.Kind)
		assert.False(t, cli.IsRegistered())
	})
}

func TestHub(t *testing.T) {
	t.Run("cancel detaches and is idempotent", func(t *testing.T) {
		hub := NewHub()
		sub := hub.Subscribe()
		assert.Equal(t, 1, hub.Len())

		sub.Cancel()
		sub.Cancel()
		assert.Equal(t, 0, hub.Len())

		// Events after cancel are simply not delivered.
		hub.Notify(Event{Kind: EventStateChanged})
		select {
		case <-sub.Events():
			t.Fatal("canceled subscription received an event")
		default:
		}
	})

	t.Run("notify never blocks on a full subscriber", func(t *testing.T) {
		hub := NewHub()
		_ = hub.Subscribe() // never drained

		done := make(chan struct{})
		go func() {
			for i := 0; i < 100; i++ {
				hub.Notify(Event{Kind: EventStateChanged})
			}
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("notify blocked on a slow subscriber")
		}
	})

	t.Run("all active subscribers receive events", func(t *testing.T) {
		hub := NewHub()
		a := hub.Subscribe()
		b := hub.Subscribe()

		hub.Notify(Event{Kind: EventStateChanged})
		assert.Equal(t, EventStateChanged, (<-a.Events()).Kind)
		assert.Equal(t, EventStateChanged, (<-b.Events()).Kind)
	})
}
