// Package service owns the enrollment attempt lifecycle: it validates
// incoming requests, assembles a fresh client and coordinator per attempt,
// and records the outcome once the coordinator signals completion.
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"enrolld/internal/enrollment/client"
	"enrolld/internal/enrollment/coordinator"
	"enrolld/internal/enrollment/metrics"
	"enrolld/internal/enrollment/models"
	"enrolld/internal/enrollment/token"
	"enrolld/internal/platform/config"
	dErrors "enrolld/pkg/domain-errors"
	audit "enrolld/pkg/platform/audit"
	"enrolld/pkg/platform/audit/publisher"
	"enrolld/pkg/platform/sentinel"
	"enrolld/pkg/requestcontext"
)

// ClientFactory builds one device-policy client per attempt. Each attempt
// gets its own client so registration state never leaks between attempts.
type ClientFactory func() client.Client

// Options carries the collaborators the service needs. OAuth and DM
// endpoints come in pre-wired; the service only orchestrates.
type Options struct {
	TokenService token.Service
	InfoFetcher  coordinator.InfoFetcher
	NewClient    ClientFactory
	Cache        token.Cache
	OAuth        config.OAuthConfig
	Enrollment   EnrollmentSettings
	Audit        *publisher.Publisher
	Metrics      *metrics.Metrics
	Logger       *slog.Logger
}

// EnrollmentSettings carries the registration policy.
type EnrollmentSettings struct {
	RegistrationType models.RegistrationType
	ForceLoadPolicy  bool
	AttemptTimeout   time.Duration
}

type attemptHandle struct {
	mu      sync.Mutex
	attempt models.Attempt
}

func (h *attemptHandle) snapshot() models.Attempt {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.attempt
}

// Service starts enrollment attempts and tracks their progress. Attempts run
// in the background; Enroll returns as soon as the coordinator is started.
type Service struct {
	opts Options

	mu       sync.RWMutex
	attempts map[uuid.UUID]*attemptHandle
}

func New(opts Options) *Service {
	return &Service{
		opts:     opts,
		attempts: make(map[uuid.UUID]*attemptHandle),
	}
}

// Enroll validates the request, starts a registration attempt, and returns
// its record while the attempt continues in the background. Exactly one of
// Username or RefreshToken must be set.
func (s *Service) Enroll(ctx context.Context, req models.EnrollmentRequest) (models.Attempt, error) {
	req.Normalize()
	if err := validateRequest(req); err != nil {
		return models.Attempt{}, err
	}

	regType := s.opts.Enrollment.RegistrationType
	if err := regType.Validate(); err != nil {
		return models.Attempt{}, err
	}

	cli := s.opts.NewClient()
	coord := coordinator.New(cli, s.opts.InfoFetcher, regType, s.opts.Enrollment.ForceLoadPolicy, s.opts.Logger)

	strategy, err := s.buildStrategy(req)
	if err != nil {
		return models.Attempt{}, err
	}

	attempt := models.Attempt{
		ID:        uuid.New(),
		Username:  req.Username,
		Type:      regType,
		State:     models.AttemptRunning,
		StartedAt: requestcontext.Now(ctx),
	}
	handle := &attemptHandle{attempt: attempt}

	s.mu.Lock()
	s.attempts[attempt.ID] = handle
	s.mu.Unlock()

	// The attempt outlives the HTTP request that started it. Detach from the
	// request context but keep its values for logging and auditing.
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.Enrollment.AttemptTimeout)

	if err := coord.Start(runCtx, strategy); err != nil {
		cancel()
		s.mu.Lock()
		delete(s.attempts, attempt.ID)
		s.mu.Unlock()
		return models.Attempt{}, err
	}

	s.emit(runCtx, audit.Event{
		ID:        uuid.New(),
		AttemptID: attempt.ID,
		Username:  attempt.Username,
		Kind:      audit.KindAttemptStarted,
		Strategy:  strategy.Name(),
		At:        attempt.StartedAt,
	})

	go s.finalize(runCtx, cancel, coord, cli, handle, strategy.Name())

	return attempt, nil
}

// Attempt returns the current record for one attempt.
func (s *Service) Attempt(_ context.Context, id uuid.UUID) (models.Attempt, error) {
	s.mu.RLock()
	handle, ok := s.attempts[id]
	s.mu.RUnlock()
	if !ok {
		return models.Attempt{}, dErrors.Wrap(sentinel.ErrNotFound, dErrors.CodeNotFound, "unknown attempt")
	}
	return handle.snapshot(), nil
}

// finalize waits for the coordinator, snapshots the outcome off the client,
// and records it. The client reference is ours to read here: the coordinator
// has already released its own by the time Done closes.
func (s *Service) finalize(ctx context.Context, cancel context.CancelFunc, coord *coordinator.Coordinator, cli client.Client, handle *attemptHandle, strategy string) {
	defer cancel()

	<-coord.Done()
	registered := cli.IsRegistered()
	completedAt := time.Now()

	handle.mu.Lock()
	handle.attempt.State = models.AttemptCompleted
	handle.attempt.Registered = registered
	handle.attempt.CompletedAt = &completedAt
	elapsed := completedAt.Sub(handle.attempt.StartedAt)
	attempt := handle.attempt
	handle.mu.Unlock()

	s.opts.Metrics.ObserveAttempt(registered, strategy, elapsed)

	s.emit(ctx, audit.Event{
		ID:         uuid.New(),
		AttemptID:  attempt.ID,
		Username:   attempt.Username,
		Kind:       audit.KindAttemptCompleted,
		Strategy:   strategy,
		Registered: registered,
		At:         completedAt,
	})

	s.opts.Logger.InfoContext(ctx, "enrollment attempt finished",
		slog.String("attempt_id", attempt.ID.String()),
		slog.Bool("registered", registered),
	)
}

func (s *Service) buildStrategy(req models.EnrollmentRequest) (token.Strategy, error) {
	if req.RefreshToken != "" {
		return token.NewRefreshStrategy(s.opts.OAuth, req.RefreshToken, s.opts.Logger), nil
	}

	inner, err := token.NewServiceStrategy(s.opts.TokenService, req.Username, s.opts.Logger)
	if err != nil {
		return nil, err
	}
	key := token.CacheKey(req.Username, models.Scopes())
	return token.NewCachedStrategy(inner, s.opts.Cache, key, s.opts.Logger), nil
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.opts.Audit == nil {
		return
	}
	if err := s.opts.Audit.Emit(ctx, event); err != nil {
		s.opts.Logger.WarnContext(ctx, "failed to emit audit event",
			slog.String("error", err.Error()))
	}
}

func validateRequest(req models.EnrollmentRequest) error {
	if req.Username != "" && req.RefreshToken != "" {
		return dErrors.New(dErrors.CodeValidation, "username and refresh_token are mutually exclusive")
	}
	return nil
}
