package execution

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// NonceSource reads the next pending nonce of an account from the node.
type NonceSource interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
}

// NonceManager hands out strictly increasing nonces per signer. It seeds each
// signer from the node on first use and after Resync.
type NonceManager struct {
	mu      sync.Mutex
	source  NonceSource
	timeout time.Duration
	next    map[common.Address]uint64
}

// NewNonceManager creates a nonce manager. Each node read is bounded by
// timeout, 5s when zero.
func NewNonceManager(source NonceSource, timeout time.Duration) *NonceManager {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &NonceManager{
		source:  source,
		timeout: timeout,
		next:    make(map[common.Address]uint64),
	}
}

// Reserve returns the first of count consecutive nonces for signer.
func (n *NonceManager) Reserve(ctx context.Context, signer common.Address, count int) (uint64, error) {
	if count <= 0 {
		return 0, fmt.Errorf("reserve %d nonces", count)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	next, ok := n.next[signer]
	if !ok {
		readCtx, cancel := context.WithTimeout(ctx, n.timeout)
		seed, err := n.source.PendingNonceAt(readCtx, signer)
		cancel()
		if err != nil {
			return 0, fmt.Errorf("seed nonce for %s: %w", signer.Hex(), err)
		}
		next = seed
	}

	n.next[signer] = next + uint64(count)
	return next, nil
}

// Resync drops the local counter so the next reservation re-reads the node.
// Called after a plan ends without confirmation, when its nonces may be unused.
func (n *NonceManager) Resync(signer common.Address) {
	n.mu.Lock()
	delete(n.next, signer)
	n.mu.Unlock()
}

// Peek returns the next nonce that would be reserved, if known.
func (n *NonceManager) Peek(signer common.Address) (uint64, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	v, ok := n.next[signer]
	return v, ok
}
