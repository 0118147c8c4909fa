// SPDX-FileCopyrightText: Copyright 2026 Signet Authors
// SPDX-License-Identifier: Apache-2.0

package ciba

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/signet-dev/signet/pkg/client"
	"github.com/signet-dev/signet/pkg/oidc"
	"github.com/signet-dev/signet/pkg/securehttp"
	"github.com/signet-dev/signet/pkg/session"
)

// TokenResponder builds a full token response from an authorized grant.
// Implemented by the token processor; the notifier uses it for push
// delivery, where tokens travel to the client instead of being polled.
type TokenResponder interface {
	BuildTokenResponse(ctx context.Context, grant *session.AuthorizedGrant, info *client.Info) (*oidc.TokenResponse, error)
}

// HTTPNotifier delivers ping and push notifications over the guarded
// HTTP client.
type HTTPNotifier struct {
	httpClient *securehttp.Client
	responder  TokenResponder
}

// NewHTTPNotifier creates an HTTPNotifier.
func NewHTTPNotifier(httpClient *securehttp.Client, responder TokenResponder) *HTTPNotifier {
	return &HTTPNotifier{httpClient: httpClient, responder: responder}
}

// Ping posts the bare auth_req_id to the notification endpoint.
func (n *HTTPNotifier) Ping(ctx context.Context, record *Record) error {
	body, err := json.Marshal(map[string]string{"auth_req_id": record.AuthReqID})
	if err != nil {
		return err
	}
	return n.post(ctx, record, body)
}

// Push posts the full token response to the notification endpoint.
func (n *HTTPNotifier) Push(ctx context.Context, record *Record, info *client.Info) error {
	tokens, err := n.responder.BuildTokenResponse(ctx, record.Grant, info)
	if err != nil {
		return fmt.Errorf("failed to build the token response: %w", err)
	}
	tokens.AuthReqID = record.AuthReqID

	body, err := json.Marshal(tokens)
	if err != nil {
		return err
	}
	return n.post(ctx, record, body)
}

func (n *HTTPNotifier) post(ctx context.Context, record *Record, body []byte) error {
	if record.NotificationEndpoint == "" {
		return fmt.Errorf("the client has no notification endpoint")
	}
	status, err := securehttp.Post(ctx, n.httpClient,
		record.NotificationEndpoint, "application/json", body, record.NotificationToken)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("notification endpoint returned status %d", status)
	}
	return nil
}
