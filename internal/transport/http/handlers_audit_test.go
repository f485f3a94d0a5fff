package httptransport

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "enrolld/pkg/platform/audit"
	"enrolld/pkg/platform/audit/store/memory"
)

func newAuditRouter(t *testing.T) (http.Handler, *memory.InMemoryStore) {
	t.Helper()
	store := memory.NewInMemoryStore()
	handler := NewAuditHandler(store, &stubValidator{subject: "ops@example.com"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r := chi.NewRouter()
	handler.Register(r)
	return r, store
}

func TestAuditHandler_ListByAttempt(t *testing.T) {
	router, store := newAuditRouter(t)

	attemptID := uuid.New()
	require.NoError(t, store.Append(context.Background(), audit.Event{
		ID:        uuid.New(),
		AttemptID: attemptID,
		Kind:      audit.KindAttemptStarted,
		Strategy:  "token_service",
		At:        time.Now(),
	}))
	require.NoError(t, store.Append(context.Background(), audit.Event{
		ID:        uuid.New(),
		AttemptID: uuid.New(),
		Kind:      audit.KindAttemptStarted,
		At:        time.Now(),
	}))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, authorized(httptest.NewRequest(http.MethodGet, "/audit/attempts/"+attemptID.String(), nil)))

	assert.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Events []audit.Event `json:"events"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Events, 1)
	assert.Equal(t, attemptID, resp.Events[0].AttemptID)
}

func TestAuditHandler_ListRecentLimit(t *testing.T) {
	router, store := newAuditRouter(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Append(context.Background(), audit.Event{
			ID:        uuid.New(),
			AttemptID: uuid.New(),
			Kind:      audit.KindAttemptCompleted,
			At:        time.Now().Add(time.Duration(i) * time.Second),
		}))
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, authorized(httptest.NewRequest(http.MethodGet, "/audit/events?limit=3", nil)))

	assert.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Events []audit.Event `json:"events"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Events, 3)
}

func TestAuditHandler_ListRecentRejectsBadLimit(t *testing.T) {
	router, _ := newAuditRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, authorized(httptest.NewRequest(http.MethodGet, "/audit/events?limit=0", nil)))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuditHandler_RequiresToken(t *testing.T) {
	router, _ := newAuditRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/audit/events", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
