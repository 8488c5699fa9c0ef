package tokens

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mselser95/mempool-engine/pkg/cache"
	"go.uber.org/zap"
)

// Blacklist is a bounded, TTL-expiring set of disqualified tokens.
type Blacklist struct {
	cache  cache.Cache
	ttl    time.Duration
	logger *zap.Logger
}

// NewBlacklist creates a blacklist backed by the given cache.
func NewBlacklist(c cache.Cache, ttl time.Duration, logger *zap.Logger) *Blacklist {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Blacklist{cache: c, ttl: ttl, logger: logger}
}

// Add blacklists a token with the disqualification reason.
func (b *Blacklist) Add(token common.Address, reason string) {
	if b.cache.Set(b.key(token), reason, b.ttl) {
		BlacklistedTotal.WithLabelValues(reason).Inc()
		b.logger.Info("token-blacklisted",
			zap.String("token", token.Hex()),
			zap.String("reason", reason),
			zap.Duration("ttl", b.ttl))
	}
}

// Contains reports whether a token is blacklisted and why.
func (b *Blacklist) Contains(token common.Address) (string, bool) {
	return cache.Lookup[string](b.cache, b.key(token))
}

// Remove lifts a blacklist entry.
func (b *Blacklist) Remove(token common.Address) {
	b.cache.Delete(b.key(token))
}

func (b *Blacklist) key(token common.Address) string {
	return "blacklist:" + token.Hex()
}
