// SPDX-FileCopyrightText: Copyright 2026 Signet Authors
// SPDX-License-Identifier: Apache-2.0

package ciba

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/signet-dev/signet/pkg/client"
	"github.com/signet-dev/signet/pkg/clock"
	"github.com/signet-dev/signet/pkg/config"
	"github.com/signet-dev/signet/pkg/oidc"
	"github.com/signet-dev/signet/pkg/random"
	"github.com/signet-dev/signet/pkg/session"
	"github.com/signet-dev/signet/pkg/storage"
)

// ErrUnknownRequest is returned for auth_req_ids that do not exist.
var ErrUnknownRequest = errors.New("ciba: unknown auth_req_id")

// Notifier delivers ping and push notifications to the client's
// registered endpoint.
type Notifier interface {
	// Ping posts the bare auth_req_id. Failures are non-fatal.
	Ping(ctx context.Context, record *Record) error

	// Push posts the full token response. A failure means the tokens never
	// reached the client.
	Push(ctx context.Context, record *Record, info *client.Info) error
}

// Coordinator drives the backchannel authentication lifecycle.
type Coordinator struct {
	store    storage.Store
	clients  *client.Store
	device   session.DeviceAuthenticator
	notifier Notifier
	options  config.CIBAOptions
	clock    clock.Clock

	waiters *waiterSet
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(store storage.Store, clients *client.Store, device session.DeviceAuthenticator, notifier Notifier, options config.CIBAOptions, c clock.Clock) *Coordinator {
	if c == nil {
		c = clock.System{}
	}
	return &Coordinator{
		store:    store,
		clients:  clients,
		device:   device,
		notifier: notifier,
		options:  options,
		clock:    c,
		waiters:  newWaiterSet(),
	}
}

// InitiateParams is a validated backchannel authentication request.
type InitiateParams struct {
	Client *client.Info

	Scopes    []string
	Resources []string

	LoginHint      string
	BindingMessage string

	// RequestedExpiry, when positive, overrides the default lifetime
	// (clamped to the configured bounds).
	RequestedExpiry time.Duration

	// NotificationToken is required for ping and push delivery.
	NotificationToken string
}

// InitiateResponse is returned to the client that started the flow.
type InitiateResponse struct {
	AuthReqID string `json:"auth_req_id"`
	ExpiresIn int64  `json:"expires_in"`
	Interval  int64  `json:"interval,omitempty"`
}

// Initiate stores a Pending request and kicks off out-of-band device
// authentication.
func (c *Coordinator) Initiate(ctx context.Context, params InitiateParams) (*InitiateResponse, *oidc.Error) {
	authReqID, err := random.Token(c.options.RequestIDLength)
	if err != nil {
		return nil, oidc.ErrServerError.WithDescription("Failed to mint an auth_req_id.")
	}

	lifetime := c.options.RequestLifetime
	if params.RequestedExpiry > 0 {
		lifetime = min(max(params.RequestedExpiry, c.options.MinRequestLifetime), c.options.MaxRequestLifetime)
	}
	now := c.clock.Now()

	record := &Record{
		AuthReqID: authReqID,
		ClientID:  params.Client.ID,
		Status:    StatusPending,
		Grant: &session.AuthorizedGrant{
			Context: &session.AuthorizationContext{
				ClientID:  params.Client.ID,
				Scopes:    params.Scopes,
				Resources: params.Resources,
			},
		},
		ExpiresAt:            now.Add(lifetime),
		NextPollAt:           now.Add(c.options.PollingInterval), // pacing starts at initiate
		DeliveryMode:         params.Client.BackchannelTokenDeliveryMode,
		NotificationEndpoint: params.Client.BackchannelNotificationEndpoint,
		NotificationToken:    params.NotificationToken,
	}
	if record.DeliveryMode == "" {
		record.DeliveryMode = oidc.DeliveryModePoll
	}

	if err := c.put(ctx, record); err != nil {
		return nil, oidc.ErrServerError.WithDescription("Failed to store the authentication request.")
	}

	// Device authentication is out-of-band; the request must not hold the
	// client's HTTP call open.
	deviceCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lifetime)
	go func() {
		defer cancel()
		if err := c.device.Authenticate(deviceCtx, authReqID, params.LoginHint, params.BindingMessage, params.Scopes); err != nil {
			slog.WarnContext(deviceCtx, "device authentication could not be started",
				"auth_req_id", authReqID, "error", err)
			_ = c.Deny(deviceCtx, authReqID)
		}
	}()

	resp := &InitiateResponse{
		AuthReqID: authReqID,
		ExpiresIn: int64(lifetime.Seconds()),
	}
	if record.DeliveryMode != oidc.DeliveryModePush {
		resp.Interval = int64(c.options.PollingInterval.Seconds())
	}
	return resp, nil
}

// Claim is the token endpoint's view of the request: it returns the grant
// when the user authenticated, or the status-dependent protocol error.
func (c *Coordinator) Claim(ctx context.Context, info *client.Info, authReqID string) oidc.Result[*session.AuthorizedGrant] {
	record, err := c.get(ctx, authReqID)
	if errors.Is(err, ErrUnknownRequest) {
		return oidc.Failure[*session.AuthorizedGrant](
			oidc.ErrInvalidGrant.WithDescription("Unknown auth_req_id."))
	}
	if err != nil {
		return oidc.Failure[*session.AuthorizedGrant](oidc.ErrServerError.WithDescription("Failed to load the authentication request."))
	}
	if record.ClientID != info.ID {
		return oidc.Failure[*session.AuthorizedGrant](
			oidc.ErrInvalidGrant.WithDescription("The auth_req_id belongs to a different client."))
	}

	now := c.clock.Now()
	if record.Expired(now) {
		c.remove(ctx, authReqID)
		return oidc.Failure[*session.AuthorizedGrant](oidc.ErrExpiredToken)
	}

	switch record.Status {
	case StatusDenied:
		c.remove(ctx, authReqID)
		return oidc.Failure[*session.AuthorizedGrant](oidc.ErrAccessDenied)

	case StatusAuthenticated:
		c.remove(ctx, authReqID)
		return oidc.Success(record.Grant)

	default: // Pending
		if record.DeliveryMode == oidc.DeliveryModePush {
			return oidc.Failure[*session.AuthorizedGrant](
				oidc.ErrInvalidGrant.WithDescription("Push clients must not poll the token endpoint."))
		}
		if now.Before(record.NextPollAt) {
			// Penalize the early poll: the full interval restarts from now.
			record.NextPollAt = now.Add(c.options.PollingInterval)
			if err := c.put(ctx, record); err != nil {
				slog.WarnContext(ctx, "failed to persist slow_down penalty", "auth_req_id", authReqID, "error", err)
			}
			return oidc.Failure[*session.AuthorizedGrant](oidc.ErrSlowDown)
		}
		record.NextPollAt = now.Add(c.options.PollingInterval)
		if err := c.put(ctx, record); err != nil {
			slog.WarnContext(ctx, "failed to persist poll window", "auth_req_id", authReqID, "error", err)
		}
		return oidc.Failure[*session.AuthorizedGrant](oidc.ErrAuthorizationPending)
	}
}

// Complete transitions Pending→Authenticated with the device-confirmed
// session, wakes the waiters and fires ping/push delivery.
func (c *Coordinator) Complete(ctx context.Context, authReqID string, userSession *session.AuthSession) error {
	record, err := c.get(ctx, authReqID)
	if err != nil {
		return err
	}
	if record.Status != StatusPending {
		return nil
	}
	if record.Expired(c.clock.Now()) {
		c.remove(ctx, authReqID)
		return ErrUnknownRequest
	}

	record.Status = StatusAuthenticated
	record.Grant.Session = userSession
	userSession.AddAffectedClient(record.ClientID)
	if err := c.put(ctx, record); err != nil {
		return err
	}
	c.waiters.signal(authReqID, StatusAuthenticated)

	switch record.DeliveryMode {
	case oidc.DeliveryModePing:
		if err := c.notifier.Ping(ctx, record); err != nil {
			// The client can still poll; delivery failure is advisory.
			slog.WarnContext(ctx, "ping notification failed", "auth_req_id", authReqID, "error", err)
		}
	case oidc.DeliveryModePush:
		info, err := c.clients.Get(ctx, record.ClientID)
		if err != nil {
			slog.ErrorContext(ctx, "push delivery failed to resolve the client", "auth_req_id", authReqID, "error", err)
			return c.Deny(ctx, authReqID)
		}
		if err := c.notifier.Push(ctx, record, info); err != nil {
			// The tokens never reached the client; the request cannot be
			// allowed to succeed some other way.
			slog.WarnContext(ctx, "push notification failed", "auth_req_id", authReqID, "error", err)
			return c.Deny(ctx, authReqID)
		}
		c.remove(ctx, authReqID)
	}
	return nil
}

// Deny transitions the request to Denied and wakes the waiters.
func (c *Coordinator) Deny(ctx context.Context, authReqID string) error {
	record, err := c.get(ctx, authReqID)
	if err != nil {
		return err
	}
	if record.Status == StatusDenied {
		return nil
	}
	record.Status = StatusDenied
	record.Grant.Session = nil
	if err := c.put(ctx, record); err != nil {
		return err
	}
	c.waiters.signal(authReqID, StatusDenied)
	return nil
}

// Wait parks until the request leaves Pending, the timeout fires, or the
// caller disconnects. It returns the status that ended the wait.
func (c *Coordinator) Wait(ctx context.Context, authReqID string, timeout time.Duration) (Status, error) {
	// Register first: a transition between the status re-check below and a
	// later registration would never wake us.
	w := c.waiters.register(authReqID)
	defer c.waiters.deregister(authReqID, w)

	record, err := c.get(ctx, authReqID)
	if err != nil {
		return "", err
	}
	if record.Status != StatusPending {
		return record.Status, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case status := <-w.ch:
		return status, nil
	case <-timer.C:
		return StatusPending, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *Coordinator) get(ctx context.Context, authReqID string) (*Record, error) {
	record, err := storage.GetJSON[*Record](ctx, c.store, keyPrefix+authReqID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrUnknownRequest
	}
	return record, err
}

func (c *Coordinator) put(ctx context.Context, record *Record) error {
	ttl := record.ExpiresAt.Sub(c.clock.Now())
	if ttl <= 0 {
		return ErrUnknownRequest
	}
	return storage.PutJSON(ctx, c.store, keyPrefix+record.AuthReqID, record, ttl)
}

func (c *Coordinator) remove(ctx context.Context, authReqID string) {
	if err := c.store.Delete(ctx, keyPrefix+authReqID); err != nil {
		slog.WarnContext(ctx, "failed to remove ciba record", "auth_req_id", authReqID, "error", err)
	}
}
