// Package config defines the enumerated cache options.
//
// Example configuration file:
//
//	{
//	  "in_memory": {"limit": 512},
//	  "redis": {
//	    "urls": ["redis://10.0.0.1:6379", "redis://10.0.0.2:6379"],
//	    "timeout": "500ms",
//	    "ttl": "24h",
//	    "pool_size": 16
//	  }
//	}
//
// The redis section is optional; omitting it leaves the cache purely
// local. Durations are written as Go duration strings.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/bytedance/sonic"
)

// DefaultInMemoryLimit is the LRU capacity used when the configuration
// does not set one.
const DefaultInMemoryLimit = 512

// Cache holds every tunable of one cache instance.
type Cache struct {
	InMemory InMemory `json:"in_memory"`
	Redis    *Redis   `json:"redis,omitempty"`
}

// InMemory configures the local LRU tier.
type InMemory struct {
	// Limit is the LRU capacity. Must be positive.
	Limit int `json:"limit"`
}

// Redis configures the optional remote tier.
type Redis struct {
	// URLs lists the Redis endpoints; bare host:port or redis:// URLs.
	URLs []string `json:"urls"`

	// Timeout bounds each Redis operation. On expiry the operation is
	// treated as a miss (reads) or a no-op (writes).
	Timeout Duration `json:"timeout,omitempty"`

	// TTL is the per-key expiry passed to Redis on writes. Zero means
	// no expiry.
	TTL Duration `json:"ttl,omitempty"`

	// PoolSize bounds the connection pool. Zero uses the client default.
	PoolSize int `json:"pool_size,omitempty"`
}

// Default returns a local-only configuration with the default capacity.
func Default() Cache {
	return Cache{InMemory: InMemory{Limit: DefaultInMemoryLimit}}
}

// Load reads and validates a configuration file. Fields left unset fall
// back to their defaults.
func Load(path string) (Cache, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Cache{}, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := sonic.Unmarshal(raw, &cfg); err != nil {
		return Cache{}, fmt.Errorf("parse config: %w", err)
	}
	if cfg.InMemory.Limit == 0 {
		cfg.InMemory.Limit = DefaultInMemoryLimit
	}

	if err := cfg.Validate(); err != nil {
		return Cache{}, err
	}
	return cfg, nil
}

// Validate checks option ranges.
func (c *Cache) Validate() error {
	if c.InMemory.Limit <= 0 {
		return fmt.Errorf("in_memory.limit must be positive, got %d", c.InMemory.Limit)
	}
	if c.Redis != nil {
		if len(c.Redis.URLs) == 0 {
			return errors.New("redis.urls must list at least one endpoint")
		}
		if c.Redis.Timeout < 0 {
			return errors.New("redis.timeout must not be negative")
		}
		if c.Redis.TTL < 0 {
			return errors.New("redis.ttl must not be negative")
		}
		if c.Redis.PoolSize < 0 {
			return errors.New("redis.pool_size must not be negative")
		}
	}
	return nil
}

// Duration is a time.Duration that unmarshals from either a duration
// string ("500ms") or a number of nanoseconds.
type Duration time.Duration

// Std returns the underlying time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := sonic.Unmarshal(data, &s); err != nil {
			return err
		}
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("parse duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}

	var n int64
	if err := sonic.Unmarshal(data, &n); err != nil {
		return err
	}
	*d = Duration(n)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return sonic.Marshal(time.Duration(d).String())
}
