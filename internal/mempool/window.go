package mempool

import (
	"bytes"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mselser95/mempool-engine/pkg/types"
	"go.uber.org/zap"
)

// Config holds window configuration.
type Config struct {
	TTL         time.Duration
	MaxPerToken int
	Logger      *zap.Logger
}

type senderNonce struct {
	sender common.Address
	nonce  uint64
}

type entry struct {
	intent  *types.PendingIntent
	addedAt time.Time
}

// Window holds recently observed pending intents grouped by subject token.
type Window struct {
	ttl         time.Duration
	maxPerToken int
	logger      *zap.Logger

	mu      sync.RWMutex
	byToken map[common.Address]map[common.Hash]*entry
	byHash  map[common.Hash]common.Address
	byNonce map[senderNonce]common.Hash
	now     func() time.Time
}

// New creates a new intent window.
func New(cfg *Config) *Window {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	maxPerToken := cfg.MaxPerToken
	if maxPerToken <= 0 {
		maxPerToken = 256
	}

	return &Window{
		ttl:         cfg.TTL,
		maxPerToken: maxPerToken,
		logger:      logger,
		byToken:     make(map[common.Address]map[common.Hash]*entry),
		byHash:      make(map[common.Hash]common.Address),
		byNonce:     make(map[senderNonce]common.Hash),
		now:         time.Now,
	}
}

// Add inserts an intent. Duplicates are ignored; an intent with the same
// sender and nonce as a held one replaces it. Returns false on duplicate.
func (w *Window) Add(intent *types.PendingIntent) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, dup := w.byHash[intent.TxHash]; dup {
		WindowEventsTotal.WithLabelValues("duplicate").Inc()
		return false
	}

	key := senderNonce{sender: intent.Sender, nonce: intent.Nonce}
	if prev, ok := w.byNonce[key]; ok {
		w.removeLocked(prev)
		WindowEventsTotal.WithLabelValues("replaced").Inc()
		w.logger.Debug("intent-replaced",
			zap.String("old-tx", prev.Hex()),
			zap.String("new-tx", intent.TxHash.Hex()))
	}

	token := intent.Token()
	bucket, ok := w.byToken[token]
	if !ok {
		bucket = make(map[common.Hash]*entry)
		w.byToken[token] = bucket
	}

	if len(bucket) >= w.maxPerToken {
		w.evictOldestLocked(bucket)
	}

	addedAt := intent.ObservedAt
	if addedAt.IsZero() {
		addedAt = w.now()
	}

	bucket[intent.TxHash] = &entry{intent: intent, addedAt: addedAt}
	w.byToken[token] = bucket
	w.byHash[intent.TxHash] = token
	w.byNonce[key] = intent.TxHash

	WindowEventsTotal.WithLabelValues("added").Inc()
	w.updateGaugesLocked()
	return true
}

// Confirm removes intents that were included in a block.
func (w *Window) Confirm(hashes []common.Hash) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	removed := 0
	for _, h := range hashes {
		if w.removeLocked(h) {
			removed++
		}
	}

	if removed > 0 {
		WindowEventsTotal.WithLabelValues("confirmed").Add(float64(removed))
		w.updateGaugesLocked()
	}
	return removed
}

// Expire removes intents older than the TTL.
func (w *Window) Expire(now time.Time) int {
	if w.ttl <= 0 {
		return 0
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := now.Add(-w.ttl)
	var stale []common.Hash
	for _, bucket := range w.byToken {
		for h, e := range bucket {
			if e.addedAt.Before(cutoff) {
				stale = append(stale, h)
			}
		}
	}

	for _, h := range stale {
		w.removeLocked(h)
	}

	if len(stale) > 0 {
		WindowEventsTotal.WithLabelValues("expired").Add(float64(len(stale)))
		w.updateGaugesLocked()
		w.logger.Debug("intents-expired", zap.Int("count", len(stale)))
	}
	return len(stale)
}

// IntentsFor returns the held intents for a token ordered by observation
// time, then hash.
func (w *Window) IntentsFor(token common.Address) []*types.PendingIntent {
	w.mu.RLock()
	defer w.mu.RUnlock()

	bucket := w.byToken[token]
	out := make([]*entry, 0, len(bucket))
	for _, e := range bucket {
		out = append(out, e)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].addedAt.Equal(out[j].addedAt) {
			return out[i].addedAt.Before(out[j].addedAt)
		}
		return bytes.Compare(out[i].intent.TxHash[:], out[j].intent.TxHash[:]) < 0
	})

	intents := make([]*types.PendingIntent, len(out))
	for i, e := range out {
		intents[i] = e.intent
	}
	return intents
}

// Tokens returns every token with at least one held intent.
func (w *Window) Tokens() []common.Address {
	w.mu.RLock()
	defer w.mu.RUnlock()

	tokens := make([]common.Address, 0, len(w.byToken))
	for t := range w.byToken {
		tokens = append(tokens, t)
	}
	sort.Slice(tokens, func(i, j int) bool {
		return bytes.Compare(tokens[i][:], tokens[j][:]) < 0
	})
	return tokens
}

// Competition counts distinct senders, other than exclude, with a pending
// intent on the token.
func (w *Window) Competition(token common.Address, exclude common.Address) int {
	w.mu.RLock()
	defer w.mu.RUnlock()

	senders := make(map[common.Address]struct{})
	for _, e := range w.byToken[token] {
		if e.intent.Sender != exclude {
			senders[e.intent.Sender] = struct{}{}
		}
	}
	return len(senders)
}

// Len returns the number of held intents.
func (w *Window) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.byHash)
}

func (w *Window) removeLocked(h common.Hash) bool {
	token, ok := w.byHash[h]
	if !ok {
		return false
	}

	bucket := w.byToken[token]
	if e, ok := bucket[h]; ok {
		key := senderNonce{sender: e.intent.Sender, nonce: e.intent.Nonce}
		if w.byNonce[key] == h {
			delete(w.byNonce, key)
		}
		delete(bucket, h)
	}
	if len(bucket) == 0 {
		delete(w.byToken, token)
	}
	delete(w.byHash, h)
	return true
}

func (w *Window) evictOldestLocked(bucket map[common.Hash]*entry) {
	var oldest common.Hash
	var oldestAt time.Time
	first := true
	for h, e := range bucket {
		if first || e.addedAt.Before(oldestAt) {
			oldest, oldestAt, first = h, e.addedAt, false
		}
	}
	if !first {
		w.removeLocked(oldest)
		WindowEventsTotal.WithLabelValues("evicted").Inc()
	}
}

func (w *Window) updateGaugesLocked() {
	IntentsTracked.Set(float64(len(w.byHash)))
	TokensTracked.Set(float64(len(w.byToken)))
}
