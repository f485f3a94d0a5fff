// Package coordinator walks one enrollment attempt through its stages:
// access-token fetch, identity-info lookup, and the registration call against
// the device-policy client. Control flows strictly forward; every terminal
// path releases the client subscription and signals completion exactly once.
package coordinator

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"enrolld/internal/enrollment/client"
	"enrolld/internal/enrollment/models"
	"enrolld/internal/enrollment/token"
	dErrors "enrolld/pkg/domain-errors"
)

// InfoFetcher is the identity-info port consumed during the eligibility gate.
type InfoFetcher interface {
	Fetch(ctx context.Context, accessToken string) (models.IdentityInfo, error)
}

// State identifies where the coordinator is in the flow.
type State string

const (
	StateIdle                 State = "idle"
	StateFetchingToken        State = "fetching_token"
	StateFetchingIdentityInfo State = "fetching_identity_info"
	StateRegistering          State = "registering"
	StateCompleted            State = "completed"
)

// Coordinator drives a single registration attempt. One coordinator serves
// one attempt; Start may be called at most once. The completion channel is
// closed exactly once regardless of which terminal path is taken, and the
// coordinator never touches the client after completion is signaled, so the
// caller is free to drop both immediately.
type Coordinator struct {
	logger    *slog.Logger
	info      InfoFetcher
	regType   models.RegistrationType
	forceLoad bool

	started atomic.Bool
	done    chan struct{}
	once    sync.Once

	mu          sync.Mutex
	state       State
	accessToken string
	cli         client.Client
	sub         *client.Subscription
}

// New builds a coordinator for one attempt against the given client.
func New(cli client.Client, info InfoFetcher, regType models.RegistrationType, forceLoad bool, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		logger:    logger,
		info:      info,
		regType:   regType,
		forceLoad: forceLoad,
		done:      make(chan struct{}),
		state:     StateIdle,
		cli:       cli,
	}
}

// Done returns the completion channel. It is closed exactly once, after the
// subscription is released and the client reference cleared.
func (c *Coordinator) Done() <-chan struct{} { return c.done }

// State returns the current flow state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Coordinator) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// StartRegistration begins the flow using the identity/token service fetch
// path. Either username is non-empty or the service must hold a refresh
// credential for the active session.
func (c *Coordinator) StartRegistration(ctx context.Context, svc token.Service, username string) error {
	strategy, err := token.NewServiceStrategy(svc, username, c.logger)
	if err != nil {
		return err
	}
	c.logger.DebugContext(ctx, "starting registration with username")
	return c.start(ctx, strategy)
}

// StartRegistrationWithCredential begins the flow using the refresh-token
// fetch path, for callers that already possess an out-of-band refresh
// credential.
func (c *Coordinator) StartRegistrationWithCredential(ctx context.Context, strategy *token.RefreshStrategy) error {
	c.logger.DebugContext(ctx, "starting registration with login token")
	return c.start(ctx, strategy)
}

// Start begins the flow with an explicit token fetch strategy, for callers
// that wrap a strategy (caching, instrumentation) before handing it over.
func (c *Coordinator) Start(ctx context.Context, strategy token.Strategy) error {
	return c.start(ctx, strategy)
}

func (c *Coordinator) start(ctx context.Context, strategy token.Strategy) error {
	if c.started.Load() {
		return dErrors.New(dErrors.CodeInvariantViolation, "registration already started")
	}
	// Registering an already-registered client is a programming error, not a
	// runtime failure.
	if c.cli.IsRegistered() {
		return dErrors.New(dErrors.CodeInvariantViolation, "client is already registered")
	}
	if !c.started.CompareAndSwap(false, true) {
		return dErrors.New(dErrors.CodeInvariantViolation, "registration already started")
	}

	c.mu.Lock()
	c.sub = c.cli.Subscribe()
	c.state = StateFetchingToken
	c.mu.Unlock()

	go c.run(ctx, strategy)
	return nil
}

// run executes the stages in order. Each stage fully completes before the
// next begins; no two requests for one attempt are ever in flight at once.
func (c *Coordinator) run(ctx context.Context, strategy token.Strategy) {
	accessToken, err := strategy.FetchAccessToken(ctx)
	if err != nil || accessToken == "" {
		// Token fetch failure degrades uniformly: no cause reaches the
		// completion signal.
		c.logger.WarnContext(ctx, "could not fetch access token for device management",
			slog.String("strategy", strategy.Name()))
		c.complete(ctx, "token_fetch_failed")
		return
	}

	c.mu.Lock()
	c.accessToken = accessToken
	c.state = StateFetchingIdentityInfo
	c.mu.Unlock()

	info, err := c.info.Fetch(ctx, accessToken)
	if err != nil {
		c.logger.WarnContext(ctx, "failed to fetch identity info",
			slog.String("error", err.Error()))
		c.complete(ctx, "identity_lookup_failed")
		return
	}

	if _, hosted := info.HostedDomain(); !hosted && !c.forceLoad {
		c.logger.InfoContext(ctx, "account not from a hosted domain, skipping registration")
		c.complete(ctx, "not_eligible")
		return
	}

	cli := c.currentClient()
	if cli == nil {
		return
	}
	if cli.IsRegistered() {
		// The precondition held at start; a registration appearing mid-flow
		// means another writer raced us.
		c.logger.ErrorContext(ctx, "client became registered mid-flow")
		c.complete(ctx, "already_registered")
		return
	}

	c.setState(StateRegistering)
	cli.Register(ctx, c.regType, accessToken)
	c.awaitRegistration(ctx)
}

// awaitRegistration blocks until the client reports an outcome or the
// attempt's context ends. Success and client error collapse into the same
// completion path; they differ only in what gets logged.
func (c *Coordinator) awaitRegistration(ctx context.Context) {
	c.mu.Lock()
	sub := c.sub
	c.mu.Unlock()
	if sub == nil {
		return
	}

	select {
	case ev := <-sub.Events():
		switch ev.Kind {
		case client.EventStateChanged:
			c.logger.InfoContext(ctx, "client registration succeeded")
			c.complete(ctx, "registered")
		case client.EventClientError:
			c.logger.WarnContext(ctx, "client registration failed")
			c.complete(ctx, "client_error")
		}
	case <-ctx.Done():
		c.complete(ctx, "abandoned")
	}
}

func (c *Coordinator) currentClient() client.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cli
}

// complete is the single terminal path. It releases the subscription and
// clears the client reference before closing the completion channel, so a
// caller reacting to Done may destroy the client or drop the coordinator
// without risking a late notification into either.
func (c *Coordinator) complete(ctx context.Context, reason string) {
	c.once.Do(func() {
		c.mu.Lock()
		if c.sub != nil {
			c.sub.Cancel()
			c.sub = nil
		}
		c.cli = nil
		c.state = StateCompleted
		c.mu.Unlock()

		c.logger.DebugContext(ctx, "registration attempt completed",
			slog.String("reason", reason))
		close(c.done)
	})
}
