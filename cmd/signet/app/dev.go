// SPDX-FileCopyrightText: Copyright 2026 Signet Authors
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"log/slog"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/signet-dev/signet/pkg/ciba"
	"github.com/signet-dev/signet/pkg/session"
)

// staticInteraction points at host-configured login and consent pages,
// passing the authorize URL back through a return_url parameter.
type staticInteraction struct {
	login   string
	consent string
}

func (i staticInteraction) LoginURL(returnTo string) string {
	return withReturn(i.login, returnTo)
}

func (i staticInteraction) ConsentURL(returnTo string) string {
	return withReturn(i.consent, returnTo)
}

func withReturn(base, returnTo string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	q := u.Query()
	q.Set("return_url", returnTo)
	u.RawQuery = q.Encode()
	return u.String()
}

// devSessions resolves a fixed demo user, or nobody in anonymous mode.
type devSessions struct {
	anonymous bool
}

func (s devSessions) ResolveSession(context.Context) (*session.AuthSession, error) {
	if s.anonymous {
		return nil, nil
	}
	return &session.AuthSession{
		Subject:            "demo",
		SessionID:          uuid.NewString(),
		AuthenticationTime: time.Now(),
		IdentityProvider:   "dev",
	}, nil
}

// autoConsent grants every request without asking.
type autoConsent struct{}

func (autoConsent) CheckConsent(context.Context, *session.AuthSession, string, []string) (session.ConsentDecision, error) {
	return session.ConsentGranted, nil
}

// devProfiles serves fixed demo claims.
type devProfiles struct{}

func (devProfiles) UserClaims(_ context.Context, subject string, _ []string) (map[string]any, error) {
	return map[string]any{
		"name":               "Demo User",
		"preferred_username": subject,
	}, nil
}

// devDevice auto-approves CIBA requests after a short delay, standing in
// for a real out-of-band device flow.
type devDevice struct {
	approve     bool
	coordinator *ciba.Coordinator
}

func (d *devDevice) Authenticate(ctx context.Context, authReqID, loginHint, _ string, _ []string) error {
	if !d.approve || d.coordinator == nil {
		return nil
	}
	go func() {
		time.Sleep(2 * time.Second)
		userSession := &session.AuthSession{
			Subject:            loginHint,
			SessionID:          uuid.NewString(),
			AuthenticationTime: time.Now(),
			IdentityProvider:   "dev",
		}
		if err := d.coordinator.Complete(ctx, authReqID, userSession); err != nil {
			slog.Warn("dev device approval failed", "auth_req_id", authReqID, "error", err)
		}
	}()
	return nil
}
