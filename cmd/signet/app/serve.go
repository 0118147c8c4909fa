// SPDX-FileCopyrightText: Copyright 2026 Signet Authors
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/signet-dev/signet/pkg/config"
	"github.com/signet-dev/signet/pkg/keys"
	"github.com/signet-dev/signet/pkg/server"
	"github.com/signet-dev/signet/pkg/storage"
)

const (
	defaultGracefulTimeout = 30 * time.Second
	serverReadTimeout      = 10 * time.Second
	// Write timeout must exceed the CIBA long-poll window.
	serverWriteTimeout = 45 * time.Second
	serverIdleTimeout  = 60 * time.Second
)

func newServeCmd() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the provider",
		RunE:  runServe,
	}

	serveCmd.Flags().String("address", ":8080", "Address to listen on")
	serveCmd.Flags().String("issuer", "", "Issuer URL (required)")
	serveCmd.Flags().String("redis-address", "", "Redis address; empty selects the in-memory store")
	serveCmd.Flags().String("keys-dir", "", "Directory holding the signing key")
	serveCmd.Flags().String("signing-key", "signing.pem", "Signing key file inside keys-dir")
	serveCmd.Flags().String("login-url", "", "Host application's login page")
	serveCmd.Flags().String("consent-url", "", "Host application's consent page")
	serveCmd.Flags().Bool("dev", false, "Development mode: auto-login demo user, auto-approve CIBA")

	viper.SetEnvPrefix("SIGNET")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	for _, name := range []string{"address", "issuer", "redis-address", "keys-dir", "signing-key", "login-url", "consent-url", "dev"} {
		if err := viper.BindPFlag(name, serveCmd.Flags().Lookup(name)); err != nil {
			panic(fmt.Sprintf("failed to bind %s flag: %v", name, err))
		}
	}
	return serveCmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	issuer := viper.GetString("issuer")
	if issuer == "" {
		return fmt.Errorf("the issuer flag is required")
	}

	options := config.Default(issuer)
	options.Discovery.AllowEndpointPathsDiscovery = true
	if viper.GetBool("dev") {
		options.SecureHTTP.BlockPrivateNetworks = false
		options.SecureHTTP.AllowedSchemes = []string{"https", "http"}
	}

	store, err := newStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	keyProvider, err := newKeyProvider()
	if err != nil {
		return err
	}

	deps := server.Dependencies{
		Store: store,
		Keys:  keyProvider,
		Interaction: staticInteraction{
			login:   viper.GetString("login-url"),
			consent: viper.GetString("consent-url"),
		},
	}

	dev := viper.GetBool("dev")
	device := &devDevice{approve: dev}
	deps.Device = device
	if dev {
		deps.Sessions = devSessions{}
		deps.Consent = autoConsent{}
		deps.Profiles = devProfiles{}
	} else {
		deps.Sessions = devSessions{anonymous: true}
		deps.Consent = autoConsent{}
	}

	provider, err := server.New(options, deps)
	if err != nil {
		return err
	}
	device.coordinator = provider.Coordinator()

	address := viper.GetString("address")
	srv := &http.Server{
		Addr:         address,
		Handler:      provider,
		ReadTimeout:  serverReadTimeout,
		WriteTimeout: serverWriteTimeout,
		IdleTimeout:  serverIdleTimeout,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		slog.Info("provider listening", "address", address, "issuer", issuer)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultGracefulTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}

func newStore(ctx context.Context) (storage.Store, error) {
	addr := viper.GetString("redis-address")
	if addr == "" {
		slog.Warn("using the in-memory store, state will not survive a restart")
		return storage.NewMemoryStore(), nil
	}
	return storage.NewRedisStore(ctx, storage.RedisConfig{Addr: addr, KeyPrefix: "signet:"})
}

func newKeyProvider() (keys.Provider, error) {
	dir := viper.GetString("keys-dir")
	if dir == "" {
		return keys.NewGeneratingProvider(""), nil
	}
	return keys.NewFileProvider(dir, viper.GetString("signing-key"))
}
