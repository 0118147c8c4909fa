// SPDX-FileCopyrightText: Copyright 2026 Signet Authors
// SPDX-License-Identifier: Apache-2.0

package grants

import (
	"context"

	"github.com/signet-dev/signet/pkg/ciba"
	"github.com/signet-dev/signet/pkg/client"
	"github.com/signet-dev/signet/pkg/oidc"
)

// CIBAHandler claims backchannel authentication results.
type CIBAHandler struct {
	coordinator *ciba.Coordinator
}

// NewCIBAHandler creates the handler.
func NewCIBAHandler(coordinator *ciba.Coordinator) *CIBAHandler {
	return &CIBAHandler{coordinator: coordinator}
}

// GrantType implements Handler.
func (*CIBAHandler) GrantType() string {
	return oidc.GrantTypeCIBA
}

// Authorize implements Handler. Status semantics (slow_down,
// authorization_pending, expired_token) live in the coordinator.
func (h *CIBAHandler) Authorize(ctx context.Context, req *TokenRequest, info *client.Info) oidc.Result[*Authorized] {
	if req.AuthReqID == "" {
		return oidc.Failure[*Authorized](oidc.ErrInvalidRequest.WithDescription("auth_req_id is required."))
	}
	result := h.coordinator.Claim(ctx, info, req.AuthReqID)
	if !result.IsSuccess() {
		return oidc.Failure[*Authorized](result.Err())
	}
	return oidc.Success(&Authorized{Grant: result.Value()})
}
