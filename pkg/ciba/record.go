// SPDX-FileCopyrightText: Copyright 2026 Signet Authors
// SPDX-License-Identifier: Apache-2.0

// Package ciba coordinates Client-Initiated Backchannel Authentication:
// the auth_req_id lifecycle, poll/ping/push delivery, and the long-poll
// waiters that park token requests until the user decides.
package ciba

import (
	"time"

	"github.com/signet-dev/signet/pkg/session"
)

// Status of a backchannel authentication request.
type Status string

// Request statuses.
const (
	StatusPending       Status = "pending"
	StatusDenied        Status = "denied"
	StatusAuthenticated Status = "authenticated"
)

const keyPrefix = "ciba:"

// Record is the stored state of one backchannel authentication request.
type Record struct {
	AuthReqID string `json:"auth_req_id"`
	ClientID  string `json:"client_id"`

	Status Status `json:"status"`

	// Grant carries the authorization context from the start; the session
	// arrives when the user authenticates on their device.
	Grant *session.AuthorizedGrant `json:"grant"`

	ExpiresAt time.Time `json:"expires_at"`

	// NextPollAt is the earliest instant the client may poll again without
	// a slow_down.
	NextPollAt time.Time `json:"next_poll_at"`

	DeliveryMode string `json:"delivery_mode"`

	// NotificationEndpoint and NotificationToken are set for ping and push.
	NotificationEndpoint string `json:"notification_endpoint,omitempty"`
	NotificationToken    string `json:"notification_token,omitempty"`
}

// Expired reports whether the request is past its absolute expiry.
func (r *Record) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}
