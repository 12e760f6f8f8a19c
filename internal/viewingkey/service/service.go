// Package service implements viewing-key issuance and validation.
//
// A viewing key is a bearer credential scoped to one address. Holders
// prove it on read queries; the registry stores only the SHA-256
// digest, so a store dump never yields usable keys. Validation is
// deliberately uninformative: a wrong key and a never-set key produce
// the same answer, in the same time, so probing cannot reveal whether
// an address participates at all.
package service

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"

	"hatchery/contracts/spawn"
	"hatchery/internal/entropy"
	dErrors "hatchery/pkg/domain-errors"
	"hatchery/pkg/platform/sentinel"
)

// KeyPrefix starts every generated viewing key. Caller-chosen keys set
// through Set are stored verbatim and need not carry it.
const KeyPrefix = "vk_"

// Store persists viewing-key digests, one per address.
type Store interface {
	// Put stores the digest for an address, replacing any previous one.
	Put(ctx context.Context, addr spawn.Address, digest [sha256.Size]byte) error

	// Get returns the digest stored for an address.
	// Returns sentinel.ErrNotFound when the address has no key.
	Get(ctx context.Context, addr spawn.Address) ([sha256.Size]byte, error)
}

// Service issues, replaces, and checks viewing keys.
type Service struct {
	store  Store
	logger *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// New constructs a viewing-key service.
func New(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("viewing key store is required")
	}

	svc := &Service{
		store:  store,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}

	return svc, nil
}

// Create formats a viewing key from a freshly derived secret, stores
// its digest for addr, and returns the key. The caller advances the
// entropy ratchet and hands the one-time secret in; this service only
// owns formatting and storage.
func (s *Service) Create(ctx context.Context, addr spawn.Address, secret entropy.Secret) (spawn.ViewingKey, error) {
	if addr.IsZero() {
		return "", dErrors.New(dErrors.CodeBadRequest, "address is required")
	}

	key := spawn.ViewingKey(KeyPrefix + base64.RawURLEncoding.EncodeToString(secret[:]))
	if err := s.store.Put(ctx, addr, digest(key)); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to store viewing key")
	}

	return key, nil
}

// Set stores the digest of a caller-chosen key for addr, replacing any
// existing key. The key's quality is the caller's responsibility.
func (s *Service) Set(ctx context.Context, addr spawn.Address, key spawn.ViewingKey) error {
	if addr.IsZero() {
		return dErrors.New(dErrors.CodeBadRequest, "address is required")
	}
	if key == "" {
		return dErrors.New(dErrors.CodeValidation, "viewing key is required")
	}

	if err := s.store.Put(ctx, addr, digest(key)); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store viewing key")
	}

	return nil
}

// Check reports whether key is the current viewing key for addr.
// A false result covers both a wrong key and an address with no key;
// the digest comparison runs in both cases so timing does not separate
// them. The error is non-nil only for infrastructure failures.
func (s *Service) Check(ctx context.Context, addr spawn.Address, key spawn.ViewingKey) (bool, error) {
	var dummy [sha256.Size]byte

	stored, err := s.store.Get(ctx, addr)
	found := true
	if err != nil {
		if !errors.Is(err, sentinel.ErrNotFound) {
			return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load viewing key")
		}
		stored = dummy
		found = false
	}

	supplied := digest(key)
	match := subtle.ConstantTimeCompare(supplied[:], stored[:]) == 1

	return match && found, nil
}

func digest(key spawn.ViewingKey) [sha256.Size]byte {
	return sha256.Sum256([]byte(key))
}
