// Package audit records the enrollment trail: every attempt start and
// completion, durable enough to answer "what happened to this device"
// after the fact.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Kind classifies an audit event.
type Kind string

const (
	KindAttemptStarted   Kind = "attempt_started"
	KindAttemptCompleted Kind = "attempt_completed"
)

// Event is one entry in the enrollment audit trail.
type Event struct {
	ID        uuid.UUID `json:"id"`
	AttemptID uuid.UUID `json:"attempt_id"`
	Username  string    `json:"username,omitempty"`
	Kind      Kind      `json:"kind"`
	// Strategy names the token fetch path used for the attempt.
	Strategy   string    `json:"strategy"`
	Registered bool      `json:"registered"`
	At         time.Time `json:"at"`
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByAttempt(ctx context.Context, attemptID uuid.UUID) ([]Event, error)
	ListRecent(ctx context.Context, limit int) ([]Event, error)
}
