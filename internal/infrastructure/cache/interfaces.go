package cache

import (
	"context"
	"time"
)

// Store is the engine's state-store abstraction. Single-node deployments
// use the in-memory implementation; multi-node deployments point the
// velocity counters at Redis. Implementations must be safe for concurrent
// use.
type Store interface {
	// Get retrieves a value by key
	Get(ctx context.Context, key string) (string, error)

	// Set stores a value with optional TTL (0 means no expiry)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// Delete removes a key
	Delete(ctx context.Context, key string) error

	// Exists checks if a key exists
	Exists(ctx context.Context, key string) (bool, error)

	// Increment atomically increments a numeric value by one
	Increment(ctx context.Context, key string) (int64, error)

	// IncrementBy atomically increments a numeric value
	IncrementBy(ctx context.Context, key string, delta int64) (int64, error)

	// Expire sets TTL on an existing key
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// GetJSON retrieves and unmarshals JSON data
	GetJSON(ctx context.Context, key string, dest interface{}) error

	// SetJSON marshals and stores JSON data
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// Close releases any underlying resources
	Close() error
}

// Key prefixes for consistent store key naming
const (
	VelocityPrefix = "fraud:velocity:"
	DevicePrefix   = "fraud:device:"
	IPPrefix       = "fraud:ip:"
	ProfilePrefix  = "fraud:profile:"
	AlertPrefix    = "fraud:alert:"
)

// Common TTL values
const (
	VelocityTTL = 31 * 24 * time.Hour
	ProfileTTL  = 0 // profiles do not expire
	AlertTTL    = 24 * time.Hour
)

// ErrKeyNotFound is returned when a store key doesn't exist
type ErrKeyNotFound struct {
	Key string
}

func (e ErrKeyNotFound) Error() string {
	return "store key not found: " + e.Key
}

// IsNotFound reports whether an error is a missing-key error
func IsNotFound(err error) bool {
	_, ok := err.(ErrKeyNotFound)
	return ok
}
