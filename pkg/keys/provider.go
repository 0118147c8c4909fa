// SPDX-FileCopyrightText: Copyright 2026 Signet Authors
// SPDX-License-Identifier: Apache-2.0

// Package keys manages the provider-side signing keys: loading from PEM
// files, ephemeral generation for development, and rendering the public
// JWKS document.
package keys

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwk"
)

// DefaultAlgorithm is the signing algorithm for generated keys.
// ES256 gives RSA-3072-equivalent security with smaller tokens.
const DefaultAlgorithm = "ES256"

// SigningKey is a private key with its metadata.
type SigningKey struct {
	// KeyID is the RFC 7638 thumbprint of the public key.
	KeyID string

	// Algorithm is the JWS algorithm, e.g. "ES256" or "RS256".
	Algorithm string

	// Key is the private signing key.
	Key crypto.Signer

	CreatedAt time.Time
}

// Provider supplies the current signing key and the public key set.
type Provider interface {
	// SigningKey returns the key used to sign new tokens.
	SigningKey(ctx context.Context) (*SigningKey, error)

	// PublicJWKS returns every verification key as a public JWK set,
	// including retired keys kept for rotation.
	PublicJWKS(ctx context.Context) (jwk.Set, error)
}

// StaticProvider serves a fixed list of keys; the first is the signing key.
type StaticProvider struct {
	keys []*SigningKey
}

// NewStaticProvider builds a provider over pre-loaded keys.
func NewStaticProvider(signing *SigningKey, fallbacks ...*SigningKey) *StaticProvider {
	return &StaticProvider{keys: append([]*SigningKey{signing}, fallbacks...)}
}

// SigningKey returns the primary key.
func (p *StaticProvider) SigningKey(context.Context) (*SigningKey, error) {
	if len(p.keys) == 0 || p.keys[0] == nil {
		return nil, fmt.Errorf("no signing key configured")
	}
	return p.keys[0], nil
}

// PublicJWKS renders every key's public half.
func (p *StaticProvider) PublicJWKS(context.Context) (jwk.Set, error) {
	return buildPublicJWKS(p.keys)
}

// FileProvider loads PEM keys from a directory at construction time.
// The first file is the signing key; the rest stay in the JWKS so tokens
// signed before a rotation keep verifying.
type FileProvider struct {
	inner *StaticProvider
}

// NewFileProvider loads signingKeyFile plus any fallback files from dir.
// RSA (PKCS1/PKCS8) and ECDSA (SEC1/PKCS8) keys are supported.
func NewFileProvider(dir, signingKeyFile string, fallbackFiles ...string) (*FileProvider, error) {
	if signingKeyFile == "" {
		return nil, fmt.Errorf("signing key file is required")
	}
	signing, err := loadKeyFile(filepath.Join(dir, signingKeyFile))
	if err != nil {
		return nil, fmt.Errorf("failed to load signing key: %w", err)
	}
	var fallbacks []*SigningKey
	for _, name := range fallbackFiles {
		key, err := loadKeyFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to load fallback key %s: %w", name, err)
		}
		fallbacks = append(fallbacks, key)
	}
	return &FileProvider{inner: NewStaticProvider(signing, fallbacks...)}, nil
}

// SigningKey returns the primary key.
func (p *FileProvider) SigningKey(ctx context.Context) (*SigningKey, error) {
	return p.inner.SigningKey(ctx)
}

// PublicJWKS renders every loaded key's public half.
func (p *FileProvider) PublicJWKS(ctx context.Context) (jwk.Set, error) {
	return p.inner.PublicJWKS(ctx)
}

// GeneratingProvider mints an ephemeral key on first use. Development only:
// every token becomes invalid on restart.
type GeneratingProvider struct {
	algorithm string

	mu  sync.Mutex
	key *SigningKey
}

// NewGeneratingProvider creates a lazily-generating provider.
// An empty algorithm selects DefaultAlgorithm.
func NewGeneratingProvider(algorithm string) *GeneratingProvider {
	if algorithm == "" {
		algorithm = DefaultAlgorithm
	}
	return &GeneratingProvider{algorithm: algorithm}
}

// SigningKey returns the key, generating it on first call.
func (p *GeneratingProvider) SigningKey(context.Context) (*SigningKey, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.key != nil {
		return p.key, nil
	}
	signer, err := generatePrivateKey(p.algorithm)
	if err != nil {
		return nil, err
	}
	key, err := newSigningKey(signer, p.algorithm)
	if err != nil {
		return nil, err
	}
	slog.Warn("generated ephemeral signing key, tokens will not survive a restart",
		"algorithm", key.Algorithm,
		"key_id", key.KeyID,
	)
	p.key = key
	return p.key, nil
}

// PublicJWKS renders the (possibly just-generated) key's public half.
func (p *GeneratingProvider) PublicJWKS(ctx context.Context) (jwk.Set, error) {
	key, err := p.SigningKey(ctx)
	if err != nil {
		return nil, err
	}
	return buildPublicJWKS([]*SigningKey{key})
}

// NewSigningKeyFromSigner wraps an existing private key, deriving its key id.
func NewSigningKeyFromSigner(signer crypto.Signer, algorithm string) (*SigningKey, error) {
	return newSigningKey(signer, algorithm)
}

func newSigningKey(signer crypto.Signer, algorithm string) (*SigningKey, error) {
	kid, err := deriveKeyID(signer.Public())
	if err != nil {
		return nil, fmt.Errorf("failed to derive key id: %w", err)
	}
	return &SigningKey{
		KeyID:     kid,
		Algorithm: algorithm,
		Key:       signer,
		CreatedAt: time.Now(),
	}, nil
}

// deriveKeyID computes the RFC 7638 thumbprint of the public key.
func deriveKeyID(pub crypto.PublicKey) (string, error) {
	key, err := jwk.Import(pub)
	if err != nil {
		return "", err
	}
	thumb, err := key.Thumbprint(crypto.SHA256)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(thumb), nil
}

func buildPublicJWKS(signingKeys []*SigningKey) (jwk.Set, error) {
	set := jwk.NewSet()
	for _, sk := range signingKeys {
		key, err := jwk.Import(sk.Key.Public())
		if err != nil {
			return nil, fmt.Errorf("failed to import public key: %w", err)
		}
		if err := key.Set(jwk.KeyIDKey, sk.KeyID); err != nil {
			return nil, err
		}
		if err := key.Set(jwk.AlgorithmKey, sk.Algorithm); err != nil {
			return nil, err
		}
		if err := key.Set(jwk.KeyUsageKey, "sig"); err != nil {
			return nil, err
		}
		if err := set.AddKey(key); err != nil {
			return nil, err
		}
	}
	return set, nil
}

func generatePrivateKey(algorithm string) (crypto.Signer, error) {
	switch algorithm {
	case "ES256":
		return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	case "ES384":
		return ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	case "ES512":
		return ecdsa.GenerateKey(elliptic.P521(), rand.Reader)
	case "RS256":
		return rsa.GenerateKey(rand.Reader, 2048)
	default:
		return nil, fmt.Errorf("unsupported algorithm for key generation: %s", algorithm)
	}
}

func loadKeyFile(path string) (*SigningKey, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from server configuration
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in %s", path)
	}

	var signer crypto.Signer
	switch block.Type {
	case "RSA PRIVATE KEY":
		signer, err = x509.ParsePKCS1PrivateKey(block.Bytes)
	case "EC PRIVATE KEY":
		signer, err = x509.ParseECPrivateKey(block.Bytes)
	case "PRIVATE KEY":
		var parsed any
		parsed, err = x509.ParsePKCS8PrivateKey(block.Bytes)
		if err == nil {
			var ok bool
			signer, ok = parsed.(crypto.Signer)
			if !ok {
				return nil, fmt.Errorf("%s: key type %T cannot sign", path, parsed)
			}
		}
	default:
		return nil, fmt.Errorf("%s: unsupported PEM block %q", path, block.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return newSigningKey(signer, algorithmFor(signer))
}

func algorithmFor(signer crypto.Signer) string {
	switch key := signer.(type) {
	case *rsa.PrivateKey:
		return "RS256"
	case *ecdsa.PrivateKey:
		switch key.Curve {
		case elliptic.P384():
			return "ES384"
		case elliptic.P521():
			return "ES512"
		default:
			return "ES256"
		}
	default:
		return DefaultAlgorithm
	}
}

// Compile-time interface checks.
var (
	_ Provider = (*StaticProvider)(nil)
	_ Provider = (*FileProvider)(nil)
	_ Provider = (*GeneratingProvider)(nil)
)
