// SPDX-FileCopyrightText: Copyright 2026 Signet Authors
// SPDX-License-Identifier: Apache-2.0

package request

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v3/jwk"

	"github.com/signet-dev/signet/pkg/client"
	"github.com/signet-dev/signet/pkg/jwks"
	"github.com/signet-dev/signet/pkg/oidc"
	"github.com/signet-dev/signet/pkg/par"
	"github.com/signet-dev/signet/pkg/securehttp"
)

// Fetcher resolves one indirection form, rewriting the request. Fetchers
// that do not apply pass the request through unchanged.
type Fetcher interface {
	Fetch(ctx context.Context, req *Request) oidc.Result[*Request]
}

// Composite runs fetchers in declared order, short-circuiting on the first
// failure and feeding each success into the next fetcher.
type Composite struct {
	fetchers []Fetcher
}

// NewComposite builds a fetcher chain.
func NewComposite(fetchers ...Fetcher) *Composite {
	return &Composite{fetchers: fetchers}
}

// Fetch runs the chain.
func (c *Composite) Fetch(ctx context.Context, req *Request) oidc.Result[*Request] {
	result := oidc.Success(req)
	for _, f := range c.fetchers {
		if !result.IsSuccess() {
			return result
		}
		result = f.Fetch(ctx, result.Value())
	}
	return result
}

// PushedRequestFetcher swaps a PAR URN for the stored request.
type PushedRequestFetcher struct {
	store      *par.Store
	requirePAR bool
}

// NewPushedRequestFetcher creates the fetcher. When requirePAR is set,
// requests that do not reference a pushed request are rejected.
func NewPushedRequestFetcher(store *par.Store, requirePAR bool) *PushedRequestFetcher {
	return &PushedRequestFetcher{store: store, requirePAR: requirePAR}
}

// Fetch consumes the URN and substitutes the stored parameters.
func (f *PushedRequestFetcher) Fetch(ctx context.Context, req *Request) oidc.Result[*Request] {
	requestURI := req.Get(ParamRequestURI)
	if !par.IsRequestURN(requestURI) {
		if f.requirePAR {
			return oidc.Failure[*Request](
				oidc.ErrInvalidRequest.WithDescription("Pushed authorization requests are required."))
		}
		return oidc.Success(req)
	}

	stored, err := f.store.Consume(ctx, requestURI)
	if errors.Is(err, par.ErrUnknownURN) {
		return oidc.Failure[*Request](
			oidc.ErrInvalidRequestURI.WithDescription("The request_uri is unknown, expired or already used."))
	}
	if err != nil {
		return oidc.Failure[*Request](oidc.ErrServerError.WithDescription("Failed to resolve the pushed request."))
	}
	if stored.ClientID != req.ClientID() {
		return oidc.Failure[*Request](
			oidc.ErrInvalidRequest.WithDescription("The request_uri belongs to a different client."))
	}
	return oidc.Success(FromValues(stored.Params))
}

// RequestURIFetcher downloads a remote request object document over the
// guarded HTTP client and hands the JWT to the request-object fetcher.
type RequestURIFetcher struct {
	httpClient *securehttp.Client
}

// NewRequestURIFetcher creates the fetcher.
func NewRequestURIFetcher(httpClient *securehttp.Client) *RequestURIFetcher {
	return &RequestURIFetcher{httpClient: httpClient}
}

// Fetch resolves a non-URN request_uri into an inline request object.
func (f *RequestURIFetcher) Fetch(ctx context.Context, req *Request) oidc.Result[*Request] {
	requestURI := req.Get(ParamRequestURI)
	if requestURI == "" || par.IsRequestURN(requestURI) {
		return oidc.Success(req)
	}
	if req.Get(ParamRequest) != "" {
		return oidc.Failure[*Request](
			oidc.ErrInvalidRequest.WithDescription("request and request_uri must not be used together."))
	}

	body, _, err := securehttp.FetchBody(ctx, f.httpClient, requestURI)
	if err != nil {
		slog.DebugContext(ctx, "request_uri fetch failed", "error", err)
		return oidc.Failure[*Request](oidc.ErrInvalidRequestURI)
	}

	next := req.Clone()
	next.Set(ParamRequest, strings.TrimSpace(string(body)))
	next.Del(ParamRequestURI)
	return oidc.Success(next)
}

// RequestObjectFetcher verifies an inline JWT request object against the
// client's keys and merges its claims into the request, JWT values winning.
type RequestObjectFetcher struct {
	clients  *client.Store
	resolver *jwks.Resolver
}

// NewRequestObjectFetcher creates the fetcher.
func NewRequestObjectFetcher(clients *client.Store, resolver *jwks.Resolver) *RequestObjectFetcher {
	return &RequestObjectFetcher{clients: clients, resolver: resolver}
}

// Fetch validates and merges the request object, if one is present.
func (f *RequestObjectFetcher) Fetch(ctx context.Context, req *Request) oidc.Result[*Request] {
	object := req.Get(ParamRequest)
	if object == "" {
		return oidc.Success(req)
	}

	clientID := req.ClientID()
	info, err := f.clients.Get(ctx, clientID)
	if errors.Is(err, client.ErrNotFound) {
		return oidc.Failure[*Request](oidc.ErrInvalidRequest.WithDescription("Unknown client."))
	}
	if err != nil {
		return oidc.Failure[*Request](oidc.ErrServerError.WithDescription("Failed to resolve the client."))
	}

	claims, protoErr := f.verify(ctx, object, info)
	if protoErr != nil {
		return oidc.Failure[*Request](protoErr)
	}
	if iss, ok := claims["iss"].(string); ok && iss != clientID {
		return oidc.Failure[*Request](
			oidc.ErrInvalidRequestObject.WithDescription("The request object issuer does not match the client."))
	}
	if inner, ok := claims[ParamClientID].(string); ok && inner != clientID {
		return oidc.Failure[*Request](
			oidc.ErrInvalidRequestObject.WithDescription("client_id inside the request object differs."))
	}

	next := req.Clone()
	next.Del(ParamRequest)
	mergeClaims(ctx, next, claims)
	return oidc.Success(next)
}

// verify checks the object's signature with the client's registered keys.
// Unsigned objects are refused: the signature is what makes the request
// non-repudiable.
func (f *RequestObjectFetcher) verify(ctx context.Context, object string, info *client.Info) (jwt.MapClaims, *oidc.Error) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"RS256", "RS384", "RS512", "PS256", "PS384", "PS512", "ES256", "ES384", "ES512"}),
	)
	_, err := parser.ParseWithClaims(object, claims, func(token *jwt.Token) (any, error) {
		kid, _ := token.Header["kid"].(string)
		key, err := f.resolver.VerificationKey(ctx, info, kid)
		if err != nil {
			return nil, err
		}
		var raw any
		if err := jwk.Export(key, &raw); err != nil {
			return nil, err
		}
		return raw, nil
	})
	if err != nil {
		slog.DebugContext(ctx, "request object rejected", "client_id", info.ID, "error", err)
		return nil, oidc.ErrInvalidRequestObject
	}
	return claims, nil
}

// registeredJWTClaims never merge into request parameters.
var registeredJWTClaims = map[string]struct{}{
	"iss": {}, "aud": {}, "exp": {}, "iat": {}, "nbf": {}, "jti": {},
}

// mergeClaims writes the request object claims over the query parameters.
func mergeClaims(ctx context.Context, req *Request, claims jwt.MapClaims) {
	for name, value := range claims {
		if _, reserved := registeredJWTClaims[name]; reserved {
			continue
		}
		if _, known := knownParams[name]; !known {
			slog.WarnContext(ctx, "request object carries an unrecognized parameter", "parameter", name)
		}
		switch v := value.(type) {
		case string:
			req.Set(name, v)
		case bool:
			req.Set(name, strconv.FormatBool(v))
		case float64:
			req.Set(name, strconv.FormatFloat(v, 'f', -1, 64))
		case []any:
			if name == ParamResource {
				req.Del(name)
				for _, item := range v {
					if s, ok := item.(string); ok {
						req.Params.Add(name, s)
					}
				}
				continue
			}
			req.Set(name, joinStrings(v))
		default:
			// Structured values (the claims parameter) stay JSON.
			data, err := json.Marshal(v)
			if err != nil {
				slog.WarnContext(ctx, "dropping unencodable request object claim", "parameter", name)
				continue
			}
			req.Set(name, string(data))
		}
	}
}

func joinStrings(items []any) string {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		parts = append(parts, fmt.Sprint(item))
	}
	return strings.Join(parts, " ")
}
