package client

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"enrolld/internal/enrollment/models"
	"enrolld/internal/platform/config"
	dErrors "enrolld/pkg/domain-errors"
)

const registerPath = "/devicemanagement/register"

type registerRequest struct {
	RegistrationType models.RegistrationType `json:"registration_type"`
	DeviceID         string                  `json:"device_id"`
}

type registerResponse struct {
	DMToken string `json:"dm_token"`
}

// DMClient registers against the device-management service over HTTP. It
// holds the registration state and the DM token returned on success.
type DMClient struct {
	url      string
	deviceID string
	client   *http.Client
	logger   *slog.Logger
	hub      *Hub

	mu         sync.RWMutex
	registered bool
	dmToken    string
}

// NewDMClient builds an unregistered client against the configured DM
// service. Each client instance represents one device identity.
func NewDMClient(cfg config.DMConfig, logger *slog.Logger) *DMClient {
	return &DMClient{
		url:      cfg.ServiceURL + registerPath,
		deviceID: uuid.NewString(),
		client:   &http.Client{Timeout: cfg.RequestTimeout},
		logger:   logger,
		hub:      NewHub(),
	}
}

func (c *DMClient) IsRegistered() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.registered
}

// DMToken returns the device-management token, or "" before registration.
func (c *DMClient) DMToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dmToken
}

func (c *DMClient) Subscribe() *Subscription {
	return c.hub.Subscribe()
}

// Register starts the registration call. The outcome arrives through
// subscriptions: EventStateChanged on success, EventClientError on failure.
func (c *DMClient) Register(ctx context.Context, typ models.RegistrationType, accessToken string) {
	go c.register(ctx, typ, accessToken)
}

func (c *DMClient) register(ctx context.Context, typ models.RegistrationType, accessToken string) {
	dmToken, err := c.doRegister(ctx, typ, accessToken)
	if err != nil {
		c.logger.WarnContext(ctx, "device-management registration failed",
			slog.String("device_id", c.deviceID),
			slog.String("error", err.Error()),
		)
		c.hub.Notify(Event{Kind: EventClientError, Err: err})
		return
	}

	c.mu.Lock()
	c.registered = true
	c.dmToken = dmToken
	c.mu.Unlock()

	c.logger.InfoContext(ctx, "device-management registration succeeded",
		slog.String("device_id", c.deviceID),
		slog.String("registration_type", string(typ)),
	)
	c.hub.Notify(Event{Kind: EventStateChanged})
}

func (c *DMClient) doRegister(ctx context.Context, typ models.RegistrationType, accessToken string) (string, error) {
	body, err := json.Marshal(registerRequest{RegistrationType: typ, DeviceID: c.deviceID})
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "encode register request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "build register request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeUnavailable, "register request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", dErrors.Newf(dErrors.CodeUnavailable, "device-management service returned status %d", resp.StatusCode)
	}

	var out registerResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "decode register response")
	}
	if out.DMToken == "" {
		return "", dErrors.New(dErrors.CodeInternal, "device-management service returned no token")
	}
	return out.DMToken, nil
}
