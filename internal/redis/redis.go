// Package redis implements the shared remote tier of the cache.
//
// The remote tier is optional and strictly best-effort. The cache must
// keep serving from its in-memory tier when Redis is slow, unreachable,
// or returning garbage, so every failure here — transport, timeout,
// serialization — is logged and swallowed:
//
//   - a failed GET is reported as a miss
//   - a failed SET is a no-op
//
// Nothing in this package ever returns an error to the cache layers
// above it.
//
// Wire format:
//
//   - Keys are encoded to strings and namespaced by the caller name, so
//     independent caches sharing one Redis deployment cannot collide.
//   - Values cross the boundary as sonic-encoded JSON, a self-describing
//     encoding that round-trips any V the caller hands us.
//
// Connections come from go-redis's built-in bounded pool; every
// operation runs under the configured per-operation timeout.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// defaultTimeout bounds a single Redis operation when the configuration
// does not say otherwise.
const defaultTimeout = 2 * time.Second

// Options configures the remote tier.
type Options struct {
	// URLs lists the Redis endpoints. Entries may be bare host:port pairs
	// or redis:// URLs. More than one endpoint enables go-redis's
	// cluster/failover routing.
	URLs []string

	// Timeout bounds each individual operation. Zero means defaultTimeout.
	Timeout time.Duration

	// TTL is handed to Redis on every write. Zero means no expiry; the
	// cache itself never expires entries, it trusts the store's own TTL.
	TTL time.Duration

	// PoolSize bounds the connection pool. Zero uses the go-redis default.
	PoolSize int
}

// Store is the cache's view of a Redis deployment. It is safe for
// concurrent use.
type Store[K comparable, V any] struct {
	client    goredis.UniversalClient
	namespace string
	timeout   time.Duration
	ttl       time.Duration
	log       *logrus.Entry
}

// New builds a Store for the given endpoints.
//
// Connecting is lazy: construction always succeeds, and an unreachable
// deployment simply makes every operation degrade to miss/no-op.
func New[K comparable, V any](opts Options, caller string) (*Store[K, V], error) {
	if len(opts.URLs) == 0 {
		return nil, errors.New("redis: at least one URL is required")
	}

	addrs := make([]string, 0, len(opts.URLs))
	var username, password string
	var db int
	for _, u := range opts.URLs {
		if !strings.Contains(u, "://") {
			addrs = append(addrs, u)
			continue
		}
		parsed, err := goredis.ParseURL(u)
		if err != nil {
			return nil, fmt.Errorf("redis: parse url %q: %w", u, err)
		}
		addrs = append(addrs, parsed.Addr)
		// Credentials and DB selection come from the URL; the last one
		// seen wins, which matters only for misconfigured mixed lists.
		username = parsed.Username
		password = parsed.Password
		db = parsed.DB
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	client := goredis.NewUniversalClient(&goredis.UniversalOptions{
		Addrs:        addrs,
		Username:     username,
		Password:     password,
		DB:           db,
		PoolSize:     opts.PoolSize,
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	})

	return &Store[K, V]{
		client:    client,
		namespace: caller,
		timeout:   timeout,
		ttl:       opts.TTL,
		log:       logrus.WithField("caller", caller),
	}, nil
}

// Get fetches and decodes the value stored for key.
// Any failure is logged and reported as a miss.
func (s *Store[K, V]) Get(ctx context.Context, key K) (V, bool) {
	var zero V

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	raw, err := s.client.Get(ctx, s.redisKey(key)).Bytes()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			s.log.WithError(err).Warn("redis get failed; treating as miss")
		}
		return zero, false
	}

	var v V
	if err := sonic.Unmarshal(raw, &v); err != nil {
		s.log.WithError(err).Warn("redis value decode failed; treating as miss")
		return zero, false
	}
	return v, true
}

// Insert encodes and writes the value for key, with the configured TTL.
// Any failure is logged and swallowed.
func (s *Store[K, V]) Insert(ctx context.Context, key K, value V) {
	payload, err := sonic.Marshal(value)
	if err != nil {
		s.log.WithError(err).Warn("redis value encode failed; skipping write")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.client.Set(ctx, s.redisKey(key), payload, s.ttl).Err(); err != nil {
		s.log.WithError(err).Warn("redis set failed; skipping write")
	}
}

// redisKey encodes key to its string form under this store's namespace.
func (s *Store[K, V]) redisKey(key K) string {
	return fmt.Sprintf("%s:%v", s.namespace, key)
}

// Close releases the connection pool. Call this during shutdown.
func (s *Store[K, V]) Close() error {
	return s.client.Close()
}
