// SPDX-FileCopyrightText: Copyright 2026 Signet Authors
// SPDX-License-Identifier: Apache-2.0

// Package server assembles the provider: it wires storage, keys, the host
// collaborators and every endpoint handler into one http.Handler.
package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/signet-dev/signet/pkg/authcode"
	"github.com/signet-dev/signet/pkg/ciba"
	"github.com/signet-dev/signet/pkg/client"
	"github.com/signet-dev/signet/pkg/client/clientauth"
	"github.com/signet-dev/signet/pkg/clock"
	"github.com/signet-dev/signet/pkg/config"
	"github.com/signet-dev/signet/pkg/grants"
	"github.com/signet-dev/signet/pkg/handlers"
	"github.com/signet-dev/signet/pkg/jwks"
	"github.com/signet-dev/signet/pkg/keys"
	"github.com/signet-dev/signet/pkg/par"
	"github.com/signet-dev/signet/pkg/registry"
	"github.com/signet-dev/signet/pkg/request"
	"github.com/signet-dev/signet/pkg/securehttp"
	"github.com/signet-dev/signet/pkg/session"
	"github.com/signet-dev/signet/pkg/storage"
	"github.com/signet-dev/signet/pkg/tokens"
	"github.com/signet-dev/signet/pkg/validate"
)

// Dependencies are the injected collaborators the core does not implement
// itself: persistence, key material and the host application's user-facing
// pieces.
type Dependencies struct {
	Store storage.Store
	Keys  keys.Provider

	// Sessions resolves the signed-in user on authorize requests.
	Sessions session.UserSessionResolver

	// Consent answers whether the user already consented to a grant.
	Consent session.ConsentProvider

	// Device starts out-of-band CIBA authentication. Required only when the
	// backchannel endpoint is enabled.
	Device session.DeviceAuthenticator

	// Interaction supplies the login and consent page URLs.
	Interaction handlers.Interaction

	// Profiles backs the userinfo endpoint. Optional.
	Profiles handlers.ProfileProvider

	// SessionEnder terminates host sessions on RP-initiated logout. Optional.
	SessionEnder handlers.SessionEnder

	// Clock defaults to the system clock.
	Clock clock.Clock
}

// Provider is the assembled OpenID Provider.
type Provider struct {
	options     *config.Options
	router      chi.Router
	clients     *client.Store
	coordinator *ciba.Coordinator
}

// New validates the options, wires every component and returns the provider.
func New(options *config.Options, deps Dependencies) (*Provider, error) {
	if err := options.Validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}
	switch {
	case deps.Store == nil:
		return nil, fmt.Errorf("a storage backend is required")
	case deps.Keys == nil:
		return nil, fmt.Errorf("a key provider is required")
	case deps.Sessions == nil && options.EnabledEndpoints.Has(config.EndpointAuthorize):
		return nil, fmt.Errorf("the authorize endpoint requires a session resolver")
	case deps.Consent == nil && options.EnabledEndpoints.Has(config.EndpointAuthorize):
		return nil, fmt.Errorf("the authorize endpoint requires a consent provider")
	case deps.Interaction == nil && options.EnabledEndpoints.Has(config.EndpointAuthorize):
		return nil, fmt.Errorf("the authorize endpoint requires an interaction provider")
	case deps.Device == nil && options.EnabledEndpoints.Has(config.EndpointBackchannelAuthentication):
		return nil, fmt.Errorf("the backchannel endpoint requires a device authenticator")
	}
	c := deps.Clock
	if c == nil {
		c = clock.System{}
	}

	httpClient := securehttp.NewClient(options.SecureHTTP, securehttp.WithTimeout(options.OutboundHTTPTimeout))
	resolver := jwks.NewResolver(httpClient)

	clients := client.NewStore(deps.Store)
	reg := registry.New(deps.Store, c)
	tokenService := tokens.NewService(options, deps.Keys, c)
	codes := authcode.NewService(deps.Store, options.AuthorizationCodeLength)
	parStore := par.NewStore(deps.Store, options.PARLifetime, options.RequestURILength)

	auth := clientauth.New(clients, resolver, reg, c, options.Issuer+handlers.PathToken)

	processor := handlers.NewProcessor(tokenService, codes, reg, deps.Profiles)
	notifier := ciba.NewHTTPNotifier(httpClient, processor)
	coordinator := ciba.NewCoordinator(deps.Store, clients, deps.Device, notifier, options.CIBA, c)

	dispatcher := grants.NewDispatcher(
		grants.NewAuthorizationCodeHandler(codes, reg),
		grants.NewRefreshTokenHandler(tokenService, reg),
		grants.NewClientCredentialsHandler(c),
		grants.NewCIBAHandler(coordinator),
		grants.NewJWTBearerHandler(options.TrustedIssuers, resolver, reg, c, options.Issuer),
	)

	objectFetcher := request.NewRequestObjectFetcher(clients, resolver)
	fetcher := request.NewComposite(
		request.NewPushedRequestFetcher(parStore, options.RequirePushedAuthorizationRequests),
		request.NewRequestURIFetcher(httpClient),
		objectFetcher,
	)
	chain := validate.AuthorizeChain(clients, options.SupportedScopes, options.AllowPlainPKCE, options.RequirePKCEForAllClients)

	p := &Provider{options: options, clients: clients, coordinator: coordinator}
	p.router = p.routes(routeHandlers{
		authorize: handlers.NewAuthorizeHandler(fetcher, chain, deps.Sessions, deps.Consent,
			deps.Interaction, codes, tokenService, options, c),
		par:          handlers.NewPARHandler(auth, chain, parStore, request.NewComposite(objectFetcher)),
		token:        handlers.NewTokenHandler(auth, dispatcher, processor, coordinator, options.LongPollTimeout, options.TokenEndpointTimeout),
		backchannel:  handlers.NewBackchannelHandler(auth, coordinator, options.SupportedScopes),
		revocation:   handlers.NewRevocationHandler(auth, tokenService, reg),
		introspect:   handlers.NewIntrospectionHandler(auth, tokenService, reg),
		userinfo:     handlers.NewUserInfoHandler(tokenService, reg, deps.Profiles),
		endsession:   handlers.NewEndSessionHandler(tokenService, clients, deps.SessionEnder, options),
		checksession: handlers.NewCheckSessionHandler(options.SessionCookieName),
		register:     handlers.NewRegistrationHandler(clients, options, c),
		discovery:    handlers.NewDiscoveryHandler(options, dispatcher.GrantTypes()),
		jwks:         handlers.NewJWKSHandler(deps.Keys),
	})
	return p, nil
}

type routeHandlers struct {
	authorize    http.Handler
	par          http.Handler
	token        http.Handler
	backchannel  http.Handler
	revocation   http.Handler
	introspect   http.Handler
	userinfo     http.Handler
	endsession   http.Handler
	checksession http.Handler
	register     *handlers.RegistrationHandler
	discovery    http.Handler
	jwks         http.Handler
}

func (p *Provider) routes(h routeHandlers) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	enabled := p.options.EnabledEndpoints
	mount := func(bit config.Endpoint, path string, handler http.Handler) {
		if enabled.Has(bit) {
			r.Handle(path, handler)
		}
	}
	mount(config.EndpointAuthorize, handlers.PathAuthorize, h.authorize)
	mount(config.EndpointPushedAuthorization, handlers.PathPAR, h.par)
	mount(config.EndpointToken, handlers.PathToken, h.token)
	mount(config.EndpointBackchannelAuthentication, handlers.PathBackchannel, h.backchannel)
	mount(config.EndpointRevocation, handlers.PathRevocation, h.revocation)
	mount(config.EndpointIntrospection, handlers.PathIntrospection, h.introspect)
	mount(config.EndpointUserInfo, handlers.PathUserInfo, h.userinfo)
	mount(config.EndpointEndSession, handlers.PathEndSession, h.endsession)
	mount(config.EndpointCheckSession, handlers.PathCheckSession, h.checksession)

	if enabled.Has(config.EndpointRegistration) {
		r.Post(handlers.PathRegister, h.register.Register)
		r.Get(handlers.PathRegister+"/{client_id}", h.register.Get)
		r.Put(handlers.PathRegister+"/{client_id}", h.register.Update)
		r.Delete(handlers.PathRegister+"/{client_id}", h.register.Delete)
	}

	r.Handle(handlers.PathDiscovery, h.discovery)
	r.Handle(handlers.PathJWKS, h.jwks)
	return r
}

// ServeHTTP implements http.Handler.
func (p *Provider) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.router.ServeHTTP(w, r)
}

// Clients exposes the client registry so hosts can seed or inspect
// registrations.
func (p *Provider) Clients() *client.Store {
	return p.clients
}

// Coordinator exposes the CIBA coordinator; the host's device-authentication
// flow calls Complete or Deny on it.
func (p *Provider) Coordinator() *ciba.Coordinator {
	return p.coordinator
}

// requestLogger emits one structured line per request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.InfoContext(r.Context(), "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
