// Package cache holds the short-lived counters of the error monitor.
package cache

import (
	"context"
	"strings"
	"time"
)

// Cache defines the counter store
type Cache interface {
	// Incr increments the counter at key and returns the new value. The ttl
	// is applied when the counter is created and never extended.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)

	Close() error
}

// Key joins parts into a namespaced cache key
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}
