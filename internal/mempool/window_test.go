package mempool

import (
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mselser95/mempool-engine/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var (
	tokenA = common.HexToAddress("0xaaaa000000000000000000000000000000000001")
	tokenB = common.HexToAddress("0xbbbb000000000000000000000000000000000002")
	alice  = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob    = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

func intent(hash byte, sender common.Address, nonce uint64, token common.Address, at time.Time) *types.PendingIntent {
	return &types.PendingIntent{
		TxHash:     common.Hash{hash},
		Sender:     sender,
		Nonce:      nonce,
		ObservedAt: at,
		Action:     types.Action{Kind: types.ActionSwapIn, TokenOut: token},
	}
}

func newTestWindow(t *testing.T, ttl time.Duration, maxPerToken int) *Window {
	t.Helper()
	return New(&Config{TTL: ttl, MaxPerToken: maxPerToken, Logger: zaptest.NewLogger(t)})
}

func TestWindow_AddDedupAndOrder(t *testing.T) {
	w := newTestWindow(t, time.Minute, 10)
	now := time.Now()

	require.True(t, w.Add(intent(2, alice, 1, tokenA, now.Add(time.Second))))
	require.True(t, w.Add(intent(1, bob, 1, tokenA, now)))
	assert.False(t, w.Add(intent(1, bob, 1, tokenA, now)), "duplicate hash")

	got := w.IntentsFor(tokenA)
	require.Len(t, got, 2)
	assert.Equal(t, common.Hash{1}, got[0].TxHash, "earliest observation first")
	assert.Equal(t, 2, w.Len())
	assert.Equal(t, []common.Address{tokenA}, w.Tokens())
}

func TestWindow_ReplacementBySenderNonce(t *testing.T) {
	w := newTestWindow(t, time.Minute, 10)
	now := time.Now()

	w.Add(intent(1, alice, 5, tokenA, now))
	w.Add(intent(2, alice, 5, tokenB, now.Add(time.Second)))

	assert.Empty(t, w.IntentsFor(tokenA), "replaced intent leaves its token")
	require.Len(t, w.IntentsFor(tokenB), 1)
	assert.Equal(t, 1, w.Len())
}

func TestWindow_ConfirmAndExpire(t *testing.T) {
	w := newTestWindow(t, time.Minute, 10)
	now := time.Now()

	w.Add(intent(1, alice, 1, tokenA, now.Add(-2*time.Minute)))
	w.Add(intent(2, bob, 1, tokenA, now))
	w.Add(intent(3, bob, 2, tokenB, now))

	assert.Equal(t, 1, w.Confirm([]common.Hash{{3}, {9}}))
	assert.Equal(t, 1, w.Expire(now))

	got := w.IntentsFor(tokenA)
	require.Len(t, got, 1)
	assert.Equal(t, common.Hash{2}, got[0].TxHash)
	assert.Equal(t, []common.Address{tokenA}, w.Tokens())
}

func TestWindow_MaxPerTokenEvictsOldest(t *testing.T) {
	w := newTestWindow(t, time.Minute, 1)
	now := time.Now()

	w.Add(intent(1, alice, 1, tokenA, now))
	w.Add(intent(2, bob, 1, tokenA, now.Add(time.Second)))

	got := w.IntentsFor(tokenA)
	require.Len(t, got, 1)
	assert.Equal(t, common.Hash{2}, got[0].TxHash)
}

func TestWindow_Competition(t *testing.T) {
	w := newTestWindow(t, time.Minute, 10)
	now := time.Now()

	w.Add(intent(1, alice, 1, tokenA, now))
	w.Add(intent(2, alice, 2, tokenA, now))
	w.Add(intent(3, bob, 1, tokenA, now))

	assert.Equal(t, 2, w.Competition(tokenA, common.Address{}))
	assert.Equal(t, 1, w.Competition(tokenA, alice))
	assert.Equal(t, 0, w.Competition(tokenB, common.Address{}))
}

func TestWindow_ConcurrentAdd(t *testing.T) {
	w := newTestWindow(t, time.Minute, 1000)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				w.Add(intent(byte(n*20+j), common.Address{byte(n)}, uint64(j), tokenA, time.Now()))
				_ = w.IntentsFor(tokenA)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 200, w.Len())
}
