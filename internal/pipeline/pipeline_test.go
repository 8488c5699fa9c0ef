package pipeline

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/mselser95/mempool-engine/internal/decoder"
	"github.com/mselser95/mempool-engine/internal/manipulation"
	"github.com/mselser95/mempool-engine/internal/mempool"
	"github.com/mselser95/mempool-engine/internal/prediction"
	"github.com/mselser95/mempool-engine/internal/scoring"
	"github.com/mselser95/mempool-engine/internal/storage"
	"github.com/mselser95/mempool-engine/pkg/events"
	"github.com/mselser95/mempool-engine/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var (
	chainID = big.NewInt(1)
	router  = common.HexToAddress("0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D")
	weth    = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	token   = common.HexToAddress("0x1111111111111111111111111111111111111111")
)

type fixedFees struct{}

func (fixedFees) Quote(u types.Urgency) types.FeeQuote {
	return types.FeeQuote{Urgency: u, BaseFeeGwei: 10, PriorityFeeGwei: 2}
}

type fakeSafety struct {
	mu     sync.Mutex
	report *types.TokenSafetyReport
	err    error
	calls  int
}

func (f *fakeSafety) Report(_ context.Context, tok common.Address) (*types.TokenSafetyReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	r := *f.report
	r.Token = tok
	return &r, nil
}

func (f *fakeSafety) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type mapBlacklist struct {
	mu      sync.Mutex
	entries map[common.Address]string
}

func (b *mapBlacklist) Contains(tok common.Address) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.entries[tok]
	return r, ok
}

func (b *mapBlacklist) Add(tok common.Address, reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[tok] = reason
}

type recordingFees struct {
	mu     sync.Mutex
	blocks []uint64
}

func (r *recordingFees) OnBlock(ev *types.BlockEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.blocks = append(r.blocks, ev.Number)
}

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
}

func (r *recordingPublisher) Publish(topic string, _ any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topics = append(r.topics, topic)
}

type fixedPredictor struct {
	mu       sync.Mutex
	features []prediction.Features
	p        float64
}

func (f *fixedPredictor) Predict(_ context.Context, feats prediction.Features) *float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.features = append(f.features, feats)
	p := f.p
	return &p
}

type harness struct {
	p         *Pipeline
	window    *mempool.Window
	queue     *scoring.Queue
	safety    *fakeSafety
	blacklist *mapBlacklist
	fees      *recordingFees
	audit     *storage.MemoryStorage
	published *recordingPublisher
}

func safeReport() *types.TokenSafetyReport {
	return &types.TokenSafetyReport{
		HolderConcentration: 10,
		SimulatedSellOK:     true,
		Verified:            true,
		SpotPrice:           0.001,
	}
}

func newHarness(t *testing.T, predictor Predictor) *harness {
	t.Helper()
	logger := zaptest.NewLogger(t)

	audit := storage.NewMemoryStorage(100)
	scorer, err := scoring.New(scoring.Config{
		MinLiquidity:              5,
		MaxHolderConcentration:    30,
		MaxTaxPct:                 15,
		HighTaxPct:                5,
		HighConcentrationPct:      20,
		ManipulationFlagThreshold: 0.6,
		SandwichImpactThreshold:   0.02,
		MaxTradeSize:              1,
		MaxTradeFraction:          0.02,
		SnipeExpectedReturn:       0.25,
		CaptureRatio:              0.5,
		GasUnitsPerTx:             250_000,
		MinNetProfit:              0.001,
		MarginWeight:              0.6,
		PredictionWeight:          0.4,
		NoPredictionFactor:        0.8,
		ArbCompetitionThreshold:   3,
	}, scoring.Dependencies{Fees: fixedFees{}, Audit: audit, BaseAsset: weth, Logger: logger})
	require.NoError(t, err)

	detector, err := manipulation.New(&manipulation.Config{
		CoordinationThreshold: 4,
		Weights:               manipulation.Weights{Coordination: 0.5, Concentration: 0.3, Direction: 0.2},
		Logger:                logger,
	})
	require.NoError(t, err)

	h := &harness{
		window:    mempool.New(&mempool.Config{TTL: time.Minute, Logger: logger}),
		queue:     scoring.NewQueue(8, time.Minute),
		safety:    &fakeSafety{report: safeReport()},
		blacklist: &mapBlacklist{entries: make(map[common.Address]string)},
		fees:      &recordingFees{},
		audit:     audit,
		published: &recordingPublisher{},
	}

	h.p, err = New(&Config{
		Decoder: decoder.New(&decoder.Config{
			ChainID:       chainID,
			Venues:        map[common.Address]string{router: "uniswap-v2"},
			WrappedNative: weth,
		}),
		Window:       h.window,
		Safety:       h.safety,
		Predictor:    predictor,
		Scorer:       scorer,
		Queue:        h.queue,
		Blacklist:    h.blacklist,
		Fees:         h.fees,
		Manipulation: detector,
		Events:       h.published,
		Workers:      4,
		Logger:       logger,
	})
	require.NoError(t, err)
	return h
}

func signTx(t *testing.T, key *ecdsa.PrivateKey, nonce uint64, value *big.Int, data []byte) *types.RawTx {
	t.Helper()

	tx, err := ethtypes.SignNewTx(key, ethtypes.LatestSignerForChainID(chainID), &ethtypes.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: big.NewInt(3_000_000_000),
		GasFeeCap: big.NewInt(60_000_000_000),
		Gas:       250_000,
		To:        &router,
		Value:     value,
		Data:      data,
	})
	require.NoError(t, err)

	raw, err := tx.MarshalBinary()
	require.NoError(t, err)
	return &types.RawTx{Bytes: raw, ReceivedAt: time.Now(), Source: "test"}
}

func ether(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

func addLiquidityTx(t *testing.T, key *ecdsa.PrivateKey, nonce uint64, eth int64) *types.RawTx {
	t.Helper()
	data, err := decoder.RouterABI.Pack(decoder.MethodAddLiquidityETH, token, ether(1_000_000), big.NewInt(0), big.NewInt(0), common.Address{}, big.NewInt(1))
	require.NoError(t, err)
	return signTx(t, key, nonce, ether(eth), data)
}

func buyTx(t *testing.T, key *ecdsa.PrivateKey, nonce uint64, eth int64) *types.RawTx {
	t.Helper()
	data, err := decoder.PackSwapExactETHForTokens(big.NewInt(1000), []common.Address{weth, token}, common.Address{}, big.NewInt(1))
	require.NoError(t, err)
	return signTx(t, key, nonce, ether(eth), data)
}

func txHash(t *testing.T, raw *types.RawTx) common.Hash {
	t.Helper()
	tx := new(ethtypes.Transaction)
	require.NoError(t, tx.UnmarshalBinary(raw.Bytes))
	return tx.Hash()
}

func newKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return key
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(&Config{})
	require.Error(t, err)

	var engineErr *types.EngineError
	require.ErrorAs(t, err, &engineErr)
	assert.True(t, engineErr.Fatal())
}

func TestProcess_PendingLiquidityBecomesSnipe(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	h.p.Process(ctx, addLiquidityTx(t, newKey(t), 0, 50))
	h.p.Process(ctx, buyTx(t, newKey(t), 0, 3))

	assert.Equal(t, 2, h.window.Len())
	require.Equal(t, 1, h.queue.Len())

	opp := h.queue.Pop()
	require.NotNil(t, opp)
	assert.Equal(t, types.KindSnipe, opp.Kind)
	assert.Equal(t, token, opp.Token)

	assert.Len(t, h.audit.Candidates(), 2)
	assert.Equal(t, []string{events.TopicOpportunityScored, events.TopicOpportunityScored}, h.published.topics)
	_, listed := h.blacklist.Contains(token)
	assert.False(t, listed)
}

func TestProcess_IgnoresUndecodableAndDuplicate(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	h.p.Process(ctx, &types.RawTx{Bytes: []byte{0x01, 0x02}})
	assert.Equal(t, 0, h.safety.Calls())

	raw := buyTx(t, newKey(t), 0, 3)
	h.p.Process(ctx, raw)
	h.p.Process(ctx, raw)

	assert.Equal(t, 1, h.window.Len())
	assert.Equal(t, 1, h.safety.Calls(), "duplicate is not re-scored")
}

func TestProcess_DisqualifiedTokenIsBlacklisted(t *testing.T) {
	h := newHarness(t, nil)
	h.safety.report.SimulatedSellOK = false
	ctx := context.Background()

	h.p.Process(ctx, addLiquidityTx(t, newKey(t), 0, 50))

	reason, listed := h.blacklist.Contains(token)
	require.True(t, listed)
	assert.Equal(t, scoring.ReasonSellFails, reason)
	assert.Equal(t, 0, h.queue.Len())

	h.p.Process(ctx, buyTx(t, newKey(t), 0, 3))
	assert.Equal(t, 1, h.safety.Calls(), "blacklisted token skips scoring")
	assert.Equal(t, 2, h.window.Len(), "intent still joins the window")
}

func TestProcess_MissingReportDoesNotBlacklist(t *testing.T) {
	h := newHarness(t, nil)
	h.safety.err = errors.New("safety api: 503")

	h.p.Process(context.Background(), addLiquidityTx(t, newKey(t), 0, 50))

	_, listed := h.blacklist.Contains(token)
	assert.False(t, listed)
	assert.Equal(t, 0, h.queue.Len())

	require.Len(t, h.audit.Candidates(), 1)
	rec := h.audit.Candidates()[0]
	assert.True(t, rec.Disqualified)
	assert.Equal(t, scoring.ReasonMissingReport, rec.Reason)
}

func TestProcess_PredictorReceivesWindowFeatures(t *testing.T) {
	predictor := &fixedPredictor{p: 0.9}
	h := newHarness(t, predictor)
	ctx := context.Background()

	h.p.Process(ctx, addLiquidityTx(t, newKey(t), 0, 50))
	h.p.Process(ctx, buyTx(t, newKey(t), 0, 3))

	require.Len(t, predictor.features, 2)
	last := predictor.features[1]
	assert.Equal(t, token.Hex(), last.Token)
	assert.Equal(t, 2, last.IntentCount)
	assert.Equal(t, 1, last.Buys)
	assert.Equal(t, 1, last.LiquidityAdds)

	opp := h.queue.Pop()
	require.NotNil(t, opp)
	require.NotNil(t, opp.Prediction)
	assert.InDelta(t, 0.9, *opp.Prediction, 1e-9)
}

func TestHandleBlock_ConfirmsAndExpires(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	mined := buyTx(t, newKey(t), 0, 3)
	h.p.Process(ctx, mined)
	h.p.Process(ctx, buyTx(t, newKey(t), 0, 2))
	require.Equal(t, 2, h.window.Len())

	h.p.HandleBlock(&types.BlockEvent{Number: 10, BaseFeeGwei: 12, TxHashes: []common.Hash{txHash(t, mined)}})
	assert.Equal(t, 1, h.window.Len())
	assert.Equal(t, []uint64{10}, h.fees.blocks)

	h.p.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	h.p.HandleBlock(&types.BlockEvent{Number: 11})
	assert.Equal(t, 0, h.window.Len())
	assert.Equal(t, []uint64{10, 11}, h.fees.blocks)
}

func TestCoalescing(t *testing.T) {
	h := newHarness(t, nil)

	require.True(t, h.p.acquire(token))
	assert.False(t, h.p.acquire(token), "second evaluation waits")
	assert.False(t, h.p.acquire(token))

	assert.True(t, h.p.release(token), "one re-run owed")
	assert.False(t, h.p.release(token))
	assert.True(t, h.p.acquire(token))
}

func TestRun_DrainsChannels(t *testing.T) {
	h := newHarness(t, nil)

	txs := make(chan *types.RawTx, 2)
	blocks := make(chan *types.BlockEvent, 1)
	txs <- addLiquidityTx(t, newKey(t), 0, 50)
	blocks <- &types.BlockEvent{Number: 7}
	close(txs)
	close(blocks)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, h.p.Run(ctx, txs, blocks))
	assert.Equal(t, 1, h.queue.Len())
	assert.Equal(t, []uint64{7}, h.fees.blocks)
}

func TestRun_StopsOnCancel(t *testing.T) {
	h := newHarness(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.p.Run(ctx, make(chan *types.RawTx), make(chan *types.BlockEvent)) }()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline did not stop")
	}
}
