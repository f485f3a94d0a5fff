package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"enrolld/internal/enrollment/client"
	"enrolld/internal/enrollment/metrics"
	"enrolld/internal/enrollment/models"
	"enrolld/internal/enrollment/token"
	dErrors "enrolld/pkg/domain-errors"
	"enrolld/pkg/platform/audit/publisher"
)

// promauto registers against the default registry, so metrics are created
// once for the whole test binary.
var testMetrics = metrics.New()

type fakeTokenService struct {
	grant         token.Grant
	err           error
	hasCredential bool
}

func (f *fakeTokenService) StartRequest(_ context.Context, _ string, _ []string) (token.Grant, error) {
	return f.grant, f.err
}

func (f *fakeTokenService) RefreshCredentialAvailable() bool { return f.hasCredential }

type fakeInfoFetcher struct {
	info models.IdentityInfo
	err  error
}

func (f *fakeInfoFetcher) Fetch(_ context.Context, _ string) (models.IdentityInfo, error) {
	return f.info, f.err
}

// fakeClient reports success or failure to its subscribers when registered.
type fakeClient struct {
	hub     *client.Hub
	respond client.EventKind

	mu         sync.Mutex
	registered bool
}

func newFakeClient(respond client.EventKind) *fakeClient {
	return &fakeClient{hub: client.NewHub(), respond: respond}
}

func (f *fakeClient) IsRegistered() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.registered
}

func (f *fakeClient) Subscribe() *client.Subscription { return f.hub.Subscribe() }

func (f *fakeClient) Register(_ context.Context, _ models.RegistrationType, _ string) {
	if f.respond == client.EventStateChanged {
		f.mu.Lock()
		f.registered = true
		f.mu.Unlock()
	}
	f.hub.Notify(client.Event{Kind: f.respond})
}

func newTestService(cli *fakeClient, tokenSvc token.Service, info *fakeInfoFetcher) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(Options{
		TokenService: tokenSvc,
		InfoFetcher:  info,
		NewClient:    func() client.Client { return cli },
		Cache:        token.NewMemoryCache(),
		Enrollment: EnrollmentSettings{
			RegistrationType: models.RegistrationBrowser,
			ForceLoadPolicy:  false,
			AttemptTimeout:   5 * time.Second,
		},
		Audit:   publisher.New(16, logger),
		Metrics: testMetrics,
		Logger:  logger,
	})
}

func waitCompleted(t *testing.T, svc *Service, id uuid.UUID) models.Attempt {
	t.Helper()
	var attempt models.Attempt
	require.Eventually(t, func() bool {
		got, err := svc.Attempt(context.Background(), id)
		if err != nil {
			return false
		}
		attempt = got
		return got.State == models.AttemptCompleted
	}, 2*time.Second, 10*time.Millisecond)
	return attempt
}

func TestService_EnrollWithUsername(t *testing.T) {
	cli := newFakeClient(client.EventStateChanged)
	tokenSvc := &fakeTokenService{grant: token.Grant{AccessToken: "tok123"}, hasCredential: true}
	info := &fakeInfoFetcher{info: models.IdentityInfo{"hd": "example.com"}}
	svc := newTestService(cli, tokenSvc, info)

	attempt, err := svc.Enroll(context.Background(), models.EnrollmentRequest{Username: "alice@example.com"})
	require.NoError(t, err)
	assert.Equal(t, models.AttemptRunning, attempt.State)
	assert.Equal(t, "alice@example.com", attempt.Username)

	final := waitCompleted(t, svc, attempt.ID)
	assert.True(t, final.Registered)
	require.NotNil(t, final.CompletedAt)
}

func TestService_EnrollFailureIsRecorded(t *testing.T) {
	cli := newFakeClient(client.EventClientError)
	tokenSvc := &fakeTokenService{grant: token.Grant{AccessToken: "tok123"}, hasCredential: true}
	info := &fakeInfoFetcher{info: models.IdentityInfo{"hd": "example.com"}}
	svc := newTestService(cli, tokenSvc, info)

	attempt, err := svc.Enroll(context.Background(), models.EnrollmentRequest{Username: "alice@example.com"})
	require.NoError(t, err)

	final := waitCompleted(t, svc, attempt.ID)
	assert.False(t, final.Registered)
}

func TestService_EnrollRejectsBothCredentials(t *testing.T) {
	svc := newTestService(newFakeClient(""), &fakeTokenService{}, &fakeInfoFetcher{})

	_, err := svc.Enroll(context.Background(), models.EnrollmentRequest{
		Username:     "alice@example.com",
		RefreshToken: "rt-1",
	})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestService_EnrollRejectsEmptyCredentialsWithoutSession(t *testing.T) {
	tokenSvc := &fakeTokenService{hasCredential: false}
	svc := newTestService(newFakeClient(""), tokenSvc, &fakeInfoFetcher{})

	_, err := svc.Enroll(context.Background(), models.EnrollmentRequest{})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
}

func TestService_AttemptUnknownID(t *testing.T) {
	svc := newTestService(newFakeClient(""), &fakeTokenService{}, &fakeInfoFetcher{})

	_, err := svc.Attempt(context.Background(), uuid.New())
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

func TestService_IneligibleAccountCompletesUnregistered(t *testing.T) {
	cli := newFakeClient(client.EventStateChanged)
	tokenSvc := &fakeTokenService{grant: token.Grant{AccessToken: "tok123"}, hasCredential: true}
	info := &fakeInfoFetcher{info: models.IdentityInfo{"email": "alice@gmail.com"}}
	svc := newTestService(cli, tokenSvc, info)

	attempt, err := svc.Enroll(context.Background(), models.EnrollmentRequest{Username: "alice@gmail.com"})
	require.NoError(t, err)

	final := waitCompleted(t, svc, attempt.ID)
	assert.False(t, final.Registered)
	assert.False(t, cli.IsRegistered())
}
