package cache

import (
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"
	"go.uber.org/zap"
)

// Options sizes a Store.
type Options struct {
	Name     string // metrics label, e.g. "token-safety"
	MaxItems int64
	Logger   *zap.Logger
}

// Store is a ristretto-backed Cache. Every entry costs one unit, so
// MaxItems bounds the entry count.
type Store struct {
	name   string
	inner  *ristretto.Cache
	logger *zap.Logger
}

// NewStore creates a Store tracking ten admission counters per item.
func NewStore(opts *Options) (*Store, error) {
	if opts.MaxItems <= 0 {
		return nil, fmt.Errorf("cache %q: max items must be positive", opts.Name)
	}

	name := opts.Name
	if name == "" {
		name = "default"
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	inner, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: opts.MaxItems * 10,
		MaxCost:     opts.MaxItems,
		BufferItems: 64,
		OnEvict: func(*ristretto.Item) {
			EvictionsTotal.WithLabelValues(name).Inc()
		},
		OnReject: func(*ristretto.Item) {
			RejectionsTotal.WithLabelValues(name).Inc()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create cache %q: %w", name, err)
	}

	return &Store{name: name, inner: inner, logger: logger}, nil
}

// Get implements Cache.
func (s *Store) Get(key string) (any, bool) {
	value, found := s.inner.Get(key)
	LookupsTotal.WithLabelValues(s.name, lookupResult(found)).Inc()
	return value, found
}

// Set implements Cache. A false return means the write was dropped by the
// buffer; admission rejection is only visible in metrics.
func (s *Store) Set(key string, value any, ttl time.Duration) bool {
	if !s.inner.SetWithTTL(key, value, 1, ttl) {
		s.logger.Debug("cache-write-dropped", zap.String("cache", s.name), zap.String("key", key))
		return false
	}
	return true
}

// Delete implements Cache.
func (s *Store) Delete(key string) {
	s.inner.Del(key)
}

// Close implements Cache.
func (s *Store) Close() {
	s.inner.Close()
	s.logger.Debug("cache-closed", zap.String("cache", s.name))
}

// Wait blocks until buffered writes are applied.
func (s *Store) Wait() {
	s.inner.Wait()
}

func lookupResult(found bool) string {
	if found {
		return "hit"
	}
	return "miss"
}
