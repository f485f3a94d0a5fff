package models

import (
	"strings"
	"time"

	"github.com/google/uuid"

	dErrors "enrolld/pkg/domain-errors"
)

// OAuth scopes requested for every enrollment attempt. The token must cover
// both the device-management API and the userinfo lookup that gates it.
const (
	ScopeDeviceManagement = "https://api.enrolld.dev/auth/device-management"
	ScopeUserInfo         = "https://api.enrolld.dev/auth/userinfo.email"
)

// HostedDomainKey is the userinfo attribute indicating organizational
// (non-consumer) account ownership.
const HostedDomainKey = "hd"

// Scopes returns the fixed scope set for one enrollment attempt.
func Scopes() []string {
	return []string{ScopeDeviceManagement, ScopeUserInfo}
}

// RegistrationType classifies what kind of entity is being registered with
// the device-management service.
type RegistrationType string

const (
	RegistrationUser    RegistrationType = "user"
	RegistrationBrowser RegistrationType = "browser"
	RegistrationDevice  RegistrationType = "device"
)

// Validate rejects unknown registration types.
func (t RegistrationType) Validate() error {
	switch t {
	case RegistrationUser, RegistrationBrowser, RegistrationDevice:
		return nil
	default:
		return dErrors.Newf(dErrors.CodeValidation, "unknown registration type %q", string(t))
	}
}

// IdentityInfo is the attribute mapping returned by the userinfo service.
// Only the hosted-domain key is consulted during enrollment.
type IdentityInfo map[string]string

// HostedDomain returns the hosted-domain attribute and whether it is present.
func (i IdentityInfo) HostedDomain() (string, bool) {
	hd, ok := i[HostedDomainKey]
	return hd, ok
}

// EnrollmentRequest starts one enrollment attempt. Exactly one credential
// field must be set: Username selects the token-service fetch path,
// RefreshToken the refresh-token path.
type EnrollmentRequest struct {
	Username     string `json:"username,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// Normalize trims whitespace from credential fields.
func (r *EnrollmentRequest) Normalize() {
	r.Username = strings.TrimSpace(r.Username)
	r.RefreshToken = strings.TrimSpace(r.RefreshToken)
}

// AttemptState tracks an enrollment attempt through its lifecycle.
type AttemptState string

const (
	AttemptRunning   AttemptState = "running"
	AttemptCompleted AttemptState = "completed"
)

// Attempt is the record of one enrollment attempt. Completion carries no
// cause; callers learn the outcome by checking Registered afterward.
type Attempt struct {
	ID          uuid.UUID        `json:"id"`
	Username    string           `json:"username,omitempty"`
	Type        RegistrationType `json:"registration_type"`
	State       AttemptState     `json:"state"`
	Registered  bool             `json:"registered"`
	StartedAt   time.Time        `json:"started_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}
