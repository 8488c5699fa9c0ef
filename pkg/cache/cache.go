package cache

import "time"

// Cache is a bounded key/value store with per-entry TTL. Writes may be
// buffered and admission is probabilistic, so a Set that returns true is
// not guaranteed to be readable immediately.
type Cache interface {
	Get(key string) (any, bool)
	Set(key string, value any, ttl time.Duration) bool
	Delete(key string)
	Close()
}

// Lookup fetches key and asserts its value to T. A value of another type
// is reported as a miss.
func Lookup[T any](c Cache, key string) (T, bool) {
	var zero T
	v, ok := c.Get(key)
	if !ok {
		return zero, false
	}
	typed, ok := v.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}

// Mark records key for ttl and reports whether it was already present.
// Two concurrent callers may both see false.
func Mark(c Cache, key string, ttl time.Duration) bool {
	if _, ok := c.Get(key); ok {
		return true
	}
	c.Set(key, struct{}{}, ttl)
	return false
}
