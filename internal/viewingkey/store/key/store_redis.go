package key

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"hatchery/contracts/spawn"
	"hatchery/pkg/platform/sentinel"
)

var (
	keyLookupDurationMs = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "hatchery_viewing_key_lookup_duration_ms",
		Help:    "Latency of viewing key digest lookups in milliseconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25},
	})
)

const (
	// Redis key prefix for viewing-key digests
	viewingKeyPrefix = "vk:addr:"
)

// RedisKeyStore is a Redis-backed viewing-key store.
// This is the production-recommended implementation for distributed deployments
// where several registry replicas validate the same keys.
type RedisKeyStore struct {
	client *redis.Client
}

// NewRedis constructs a Redis-backed viewing-key store.
func NewRedis(client *redis.Client) *RedisKeyStore {
	return &RedisKeyStore{client: client}
}

// Put stores the digest for an address. Digests never expire: a key
// stays valid until its owner replaces it.
func (s *RedisKeyStore) Put(ctx context.Context, addr spawn.Address, digest [sha256.Size]byte) error {
	if addr.IsZero() {
		return fmt.Errorf("address is required")
	}
	encoded := base64.StdEncoding.EncodeToString(digest[:])
	return s.client.Set(ctx, viewingKeyPrefix+addr.String(), encoded, 0).Err()
}

// Get returns the digest stored for an address.
func (s *RedisKeyStore) Get(ctx context.Context, addr spawn.Address) ([sha256.Size]byte, error) {
	start := time.Now()
	defer func() {
		keyLookupDurationMs.Observe(float64(time.Since(start).Microseconds()) / 1000.0)
	}()

	var digest [sha256.Size]byte

	encoded, err := s.client.Get(ctx, viewingKeyPrefix+addr.String()).Result()
	if errors.Is(err, redis.Nil) {
		return digest, fmt.Errorf("viewing key not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return digest, fmt.Errorf("load viewing key digest: %w", err)
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(raw) != sha256.Size {
		return digest, fmt.Errorf("corrupt viewing key digest for %s", addr)
	}
	copy(digest[:], raw)
	return digest, nil
}
