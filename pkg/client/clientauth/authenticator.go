// SPDX-FileCopyrightText: Copyright 2026 Signet Authors
// SPDX-License-Identifier: Apache-2.0

package clientauth

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v3/jwk"

	"github.com/signet-dev/signet/pkg/client"
	"github.com/signet-dev/signet/pkg/clock"
	"github.com/signet-dev/signet/pkg/jwks"
	"github.com/signet-dev/signet/pkg/oidc"
	"github.com/signet-dev/signet/pkg/registry"
)

// hmacAlgorithms and asymmetricAlgorithms are the assertion algorithms the
// authenticator accepts for client_secret_jwt and private_key_jwt.
var (
	hmacAlgorithms       = []string{"HS256", "HS384", "HS512"}
	asymmetricAlgorithms = []string{"RS256", "RS384", "RS512", "PS256", "PS384", "PS512", "ES256", "ES384", "ES512"}
)

// Authenticator resolves and verifies the client behind a request.
type Authenticator struct {
	clients  *client.Store
	resolver *jwks.Resolver
	registry *registry.Registry
	clock    clock.Clock

	// tokenEndpoint is the audience client assertions must carry.
	tokenEndpoint string
}

// New creates an Authenticator.
func New(clients *client.Store, resolver *jwks.Resolver, reg *registry.Registry, c clock.Clock, tokenEndpoint string) *Authenticator {
	if c == nil {
		c = clock.System{}
	}
	return &Authenticator{
		clients:       clients,
		resolver:      resolver,
		registry:      reg,
		clock:         c,
		tokenEndpoint: tokenEndpoint,
	}
}

// Authenticate verifies the credentials and returns the client they belong
// to. Presenting more than one method is rejected outright; a request with
// no method at all authenticates as a public client via client_id.
func (a *Authenticator) Authenticate(ctx context.Context, creds Credentials) oidc.Result[*client.Info] {
	methods := presentedMethods(creds)
	if len(methods) > 1 {
		return oidc.Failure[*client.Info](
			oidc.ErrInvalidRequest.WithDescription("The request uses more than one client authentication method."))
	}

	var result oidc.Result[*client.Info]
	method := client.AuthMethodNone
	if len(methods) == 1 {
		method = methods[0]
	}

	switch method {
	case client.AuthMethodBasic:
		result = a.authenticateSecret(ctx, creds.BasicID, creds.BasicSecret, client.AuthMethodBasic)
	case client.AuthMethodPost:
		result = a.authenticateSecret(ctx, creds.ClientID, creds.FormSecret, client.AuthMethodPost)
	case client.AuthMethodPrivateKeyJWT: // resolved to the actual variant inside
		result = a.authenticateAssertion(ctx, creds)
	case client.AuthMethodTLS:
		result = a.authenticateTLS(ctx, creds)
	default:
		result = a.authenticateNone(ctx, creds.ClientID)
	}

	if !result.IsSuccess() {
		slog.InfoContext(ctx, "client authentication failed",
			"client_id", creds.ClientID,
			"error", result.Err().Code,
		)
	}
	return result
}

// presentedMethods lists the authentication methods the request carries.
// Assertion-based and TLS-based methods are represented by one entry each;
// the concrete variant is decided during verification.
func presentedMethods(creds Credentials) []client.AuthMethod {
	var methods []client.AuthMethod
	if creds.HasBasic {
		methods = append(methods, client.AuthMethodBasic)
	}
	if creds.FormSecret != "" {
		methods = append(methods, client.AuthMethodPost)
	}
	if creds.Assertion != "" || creds.AssertionType != "" {
		methods = append(methods, client.AuthMethodPrivateKeyJWT)
	}
	if creds.Certificate != nil {
		methods = append(methods, client.AuthMethodTLS)
	}
	return methods
}

func (a *Authenticator) authenticateNone(ctx context.Context, clientID string) oidc.Result[*client.Info] {
	if clientID == "" {
		return failInvalidClient("No client credentials were provided.")
	}
	info, err := a.lookup(ctx, clientID)
	if err != nil {
		return oidc.Failure[*client.Info](err)
	}
	if !info.UsesAuthMethod(client.AuthMethodNone) {
		return failInvalidClient("The client is not registered for unauthenticated access.")
	}
	return oidc.Success(info)
}

func (a *Authenticator) authenticateSecret(ctx context.Context, clientID, secret string, method client.AuthMethod) oidc.Result[*client.Info] {
	if clientID == "" || secret == "" {
		return failInvalidClient("Client id and secret are required.")
	}
	info, err := a.lookup(ctx, clientID)
	if err != nil {
		return oidc.Failure[*client.Info](err)
	}
	if !info.UsesAuthMethod(method) {
		return failInvalidClient("The client is not registered for %s.", method)
	}
	for _, stored := range info.ActiveSecrets(a.clock.Now()) {
		if stored.Matches(secret) {
			return oidc.Success(info)
		}
	}
	return failInvalidClient("Invalid client secret.")
}

// authenticateAssertion handles both client_secret_jwt and private_key_jwt;
// the assertion's signing algorithm selects the variant.
func (a *Authenticator) authenticateAssertion(ctx context.Context, creds Credentials) oidc.Result[*client.Info] {
	if creds.AssertionType != oidc.ClientAssertionTypeJWTBearer {
		return oidc.Failure[*client.Info](
			oidc.ErrInvalidRequest.WithDescription("Unsupported client_assertion_type."))
	}
	if creds.Assertion == "" {
		return oidc.Failure[*client.Info](
			oidc.ErrInvalidRequest.WithDescription("client_assertion is required."))
	}

	// A first unverified pass identifies the client and the algorithm
	// family; verification follows with the client's own key material.
	unverified, _, err := jwt.NewParser().ParseUnverified(creds.Assertion, jwt.MapClaims{})
	if err != nil {
		return failInvalidClient("The client assertion is malformed.")
	}
	issuer, err := unverified.Claims.GetIssuer()
	if err != nil || issuer == "" {
		return failInvalidClient("The client assertion has no issuer.")
	}
	if creds.ClientID != "" && creds.ClientID != issuer {
		return oidc.Failure[*client.Info](
			oidc.ErrInvalidRequest.WithDescription("client_id does not match the assertion issuer."))
	}

	info, lookupErr := a.lookup(ctx, issuer)
	if lookupErr != nil {
		return oidc.Failure[*client.Info](lookupErr)
	}

	var (
		claims jwt.MapClaims
		method client.AuthMethod
	)
	if strings.HasPrefix(unverified.Method.Alg(), "HS") {
		method = client.AuthMethodSecretJWT
		claims, err = a.verifyHMACAssertion(creds.Assertion, info)
	} else {
		method = client.AuthMethodPrivateKeyJWT
		claims, err = a.verifyKeyAssertion(ctx, creds.Assertion, info)
	}
	if err != nil {
		return failInvalidClient("The client assertion could not be verified.")
	}
	if !info.UsesAuthMethod(method) {
		return failInvalidClient("The client is not registered for %s.", method)
	}

	if protoErr := a.checkAssertionReplay(ctx, claims); protoErr != nil {
		return oidc.Failure[*client.Info](protoErr)
	}
	return oidc.Success(info)
}

func (a *Authenticator) assertionParser(clientID string, validAlgs []string) *jwt.Parser {
	return jwt.NewParser(
		jwt.WithValidMethods(validAlgs),
		jwt.WithIssuer(clientID),
		jwt.WithSubject(clientID),
		jwt.WithAudience(a.tokenEndpoint),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.clock.Now),
	)
}

// verifyHMACAssertion tries every active secret as the HMAC key.
func (a *Authenticator) verifyHMACAssertion(assertion string, info *client.Info) (jwt.MapClaims, error) {
	parser := a.assertionParser(info.ID, hmacAlgorithms)
	var lastErr error
	for _, secret := range info.ActiveSecrets(a.clock.Now()) {
		claims := jwt.MapClaims{}
		key := []byte(secret.Value)
		if _, err := parser.ParseWithClaims(assertion, claims, func(*jwt.Token) (any, error) {
			return key, nil
		}); err != nil {
			lastErr = err
			continue
		}
		return claims, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("client has no active secrets")
	}
	return nil, lastErr
}

// verifyKeyAssertion verifies against the client's registered JWKS.
func (a *Authenticator) verifyKeyAssertion(ctx context.Context, assertion string, info *client.Info) (jwt.MapClaims, error) {
	parser := a.assertionParser(info.ID, asymmetricAlgorithms)
	claims := jwt.MapClaims{}
	_, err := parser.ParseWithClaims(assertion, claims, func(token *jwt.Token) (any, error) {
		kid, _ := token.Header["kid"].(string)
		key, err := a.resolver.VerificationKey(ctx, info, kid)
		if err != nil {
			return nil, err
		}
		var raw any
		if err := jwk.Export(key, &raw); err != nil {
			return nil, fmt.Errorf("failed to export verification key: %w", err)
		}
		return raw, nil
	})
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// checkAssertionReplay enforces single use of the assertion's jti.
func (a *Authenticator) checkAssertionReplay(ctx context.Context, claims jwt.MapClaims) *oidc.Error {
	jti, _ := claims["jti"].(string)
	if jti == "" {
		return oidc.ErrInvalidClient.WithDescription("The client assertion has no jti.")
	}
	expiresAt := a.clock.Now()
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		expiresAt = exp.Time
	}
	replayed, err := a.registry.CheckReplay(ctx, jti, expiresAt)
	if err != nil {
		return oidc.ErrServerError.WithDescription("Failed to check assertion replay.")
	}
	if replayed {
		return oidc.ErrInvalidClient.WithDescription("The client assertion was already used.")
	}
	return nil
}

// authenticateTLS matches the presented certificate against the client's
// registered subject DN (tls_client_auth) or certificate thumbprint
// (self_signed_tls_client_auth).
func (a *Authenticator) authenticateTLS(ctx context.Context, creds Credentials) oidc.Result[*client.Info] {
	if creds.ClientID == "" {
		return failInvalidClient("client_id is required for certificate authentication.")
	}
	info, err := a.lookup(ctx, creds.ClientID)
	if err != nil {
		return oidc.Failure[*client.Info](err)
	}

	cert := creds.Certificate
	if info.UsesAuthMethod(client.AuthMethodSelfSignedTLS) && info.CertificateThumbprint != "" {
		sum := sha256.Sum256(cert.Raw)
		thumbprint := base64.RawURLEncoding.EncodeToString(sum[:])
		if thumbprint == info.CertificateThumbprint {
			return oidc.Success(info)
		}
	}
	if info.UsesAuthMethod(client.AuthMethodTLS) && info.TLSSubjectDN != "" {
		if cert.Subject.String() == info.TLSSubjectDN {
			return oidc.Success(info)
		}
	}
	return failInvalidClient("The client certificate does not match the registration.")
}

func (a *Authenticator) lookup(ctx context.Context, clientID string) (*client.Info, *oidc.Error) {
	info, err := a.clients.Get(ctx, clientID)
	if errors.Is(err, client.ErrNotFound) {
		return nil, oidc.ErrInvalidClient.WithDescription("Unknown client.")
	}
	if err != nil {
		return nil, oidc.ErrServerError.WithDescription("Failed to resolve the client.")
	}
	return info, nil
}

func failInvalidClient(format string, args ...any) oidc.Result[*client.Info] {
	return oidc.Failure[*client.Info](oidc.ErrInvalidClient.WithDescription(format, args...))
}
