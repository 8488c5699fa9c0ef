package execution

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/mselser95/mempool-engine/internal/storage"
	"github.com/mselser95/mempool-engine/pkg/types"
	"github.com/mselser95/mempool-engine/pkg/wallet"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

//nolint:gochecknoglobals // test fixtures
var (
	testWETH   = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	testToken  = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	testRouter = common.HexToAddress("0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D")
	testOther  = common.HexToAddress("0xd9e1cE17f2641f24aE83637ab66a2cca9C378B9F")
)

type fakeFees struct {
	mu    sync.Mutex
	quote types.FeeQuote
}

func newFakeFees() *fakeFees {
	return &fakeFees{quote: types.FeeQuote{
		BaseFeeGwei:     20,
		PriorityFeeGwei: 2,
		Ladder: []types.FeeRung{
			{Percentile: 50, TipGwei: 2},
			{Percentile: 75, TipGwei: 3},
			{Percentile: 90, TipGwei: 5},
		},
	}}
}

func (f *fakeFees) Quote(u types.Urgency) types.FeeQuote {
	f.mu.Lock()
	defer f.mu.Unlock()
	q := f.quote
	q.Urgency = u
	return q
}

func (f *fakeFees) set(mutate func(q *types.FeeQuote)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	mutate(&f.quote)
}

// fakeChain is a node that mines every transaction paying at least minTip.
type fakeChain struct {
	mu       sync.Mutex
	nonce    uint64
	block    uint64
	sendErr  error
	minTip   *big.Int
	revert   bool
	logs     func(tx *ethtypes.Transaction) []*ethtypes.Log
	onSend   func()
	sent     []*ethtypes.Transaction
	receipts map[common.Hash]*ethtypes.Receipt
}

func newFakeChain() *fakeChain {
	return &fakeChain{nonce: 7, block: 100, receipts: make(map[common.Hash]*ethtypes.Receipt)}
}

func (c *fakeChain) PendingNonceAt(_ context.Context, _ common.Address) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nonce, nil
}

func (c *fakeChain) LastBlock() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.block
}

func (c *fakeChain) SendTransaction(_ context.Context, tx *ethtypes.Transaction) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.onSend != nil {
		c.onSend()
	}
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, tx)

	if c.minTip != nil && tx.GasTipCap().Cmp(c.minTip) < 0 {
		return nil
	}

	status := ethtypes.ReceiptStatusSuccessful
	if c.revert {
		status = ethtypes.ReceiptStatusFailed
	}
	r := &ethtypes.Receipt{
		Status:            status,
		TxHash:            tx.Hash(),
		GasUsed:           tx.Gas(),
		EffectiveGasPrice: tx.GasFeeCap(),
		BlockNumber:       new(big.Int).SetUint64(c.block + 1),
	}
	if c.logs != nil && !c.revert {
		r.Logs = c.logs(tx)
	}
	c.receipts[tx.Hash()] = r
	return nil
}

func (c *fakeChain) TransactionReceipt(_ context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return r, nil
}

func (c *fakeChain) sentTxs() []*ethtypes.Transaction {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*ethtypes.Transaction(nil), c.sent...)
}

type fakeRelay struct {
	mu      sync.Mutex
	err     error
	bundles [][][]byte
	blocks  []uint64
}

func (r *fakeRelay) SendBundle(_ context.Context, txs [][]byte, block uint64) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bundles = append(r.bundles, txs)
	r.blocks = append(r.blocks, block)
	if r.err != nil {
		return "", r.err
	}
	return "0xbundle", nil
}

func (r *fakeRelay) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bundles)
}

type harness struct {
	key       *ecdsa.PrivateKey
	signer    *wallet.LocalSigner
	addr      common.Address
	fees      *fakeFees
	chain     *fakeChain
	relay     *fakeRelay
	kill      *KillSwitch
	nonces    *NonceManager
	audit     *storage.MemoryStorage
	planner   *Planner
	submitter *Submitter
}

func testPlannerConfig() PlannerConfig {
	return PlannerConfig{
		KeyHandle:               "hot",
		BaseAsset:               testWETH,
		GasLimit:                200_000,
		AggressiveMultiplier:    2,
		ArbCompetitionThreshold: 3,
		RelayMinValue:           0.05,
		MaxCost:                 0.05,
		MaxCostFraction:         0.5,
		ExitMaxCost:             0.02,
		SwapDeadline:            2 * time.Minute,
		EntrySlippagePct:        10,
		ExitSlippagePct:         10,
	}
}

func newHarness(t *testing.T, mutate func(pc *PlannerConfig, sc *SubmitterConfig)) *harness {
	t.Helper()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	chainID := big.NewInt(1)
	h := &harness{
		key:    key,
		signer: wallet.NewLocalSignerFromKeys(chainID, map[string]*ecdsa.PrivateKey{"hot": key}),
		addr:   crypto.PubkeyToAddress(key.PublicKey),
		fees:   newFakeFees(),
		chain:  newFakeChain(),
		relay:  &fakeRelay{},
		audit:  storage.NewMemoryStorage(100),
	}
	logger := zaptest.NewLogger(t)
	h.kill = NewKillSwitch(logger)
	h.nonces = NewNonceManager(h.chain, 0)

	pc := testPlannerConfig()
	pc.Logger = logger
	sc := SubmitterConfig{
		ChainID:              chainID,
		RetryBudget:          2,
		EscalationMultiplier: 1.25,
		InclusionTimeout:     30 * time.Millisecond,
		Signer:               h.signer,
		Fees:                 h.fees,
		Broadcaster:          h.chain,
		Relay:                h.relay,
		Waiter: NewInclusionWaiter(h.chain, logger, &InclusionConfig{
			InitialBackoff: time.Millisecond,
			MaxBackoff:     5 * time.Millisecond,
			BackoffMult:    2,
		}),
		Heads:      h.chain,
		Nonces:     h.nonces,
		KillSwitch: h.kill,
		Audit:      h.audit,
		Logger:     logger,
	}
	if mutate != nil {
		mutate(&pc, &sc)
	}

	h.planner, err = NewPlanner(pc, h.fees, h.signer, h.nonces)
	require.NoError(t, err)
	h.submitter, err = NewSubmitter(sc)
	require.NoError(t, err)
	return h
}

func target(raw []byte) *types.PendingIntent {
	return &types.PendingIntent{
		TxHash: crypto.Keccak256Hash(raw),
		Sender: common.HexToAddress("0x0000000000000000000000000000000000000bad"),
		Venue:  testRouter,
		Raw:    raw,
	}
}

func snipeOpp() *types.Opportunity {
	return &types.Opportunity{
		ID:             "opp-snipe",
		Kind:           types.KindSnipe,
		Token:          testToken,
		BaseAsset:      testWETH,
		Venues:         []common.Address{testRouter},
		TradeSize:      0.1,
		ExpectedTokens: 900,
		GrossProfit:    0.25,
		NetProfit:      0.2,
		Confidence:     0.8,
		Targets:        []*types.PendingIntent{target([]byte{0x02, 0x01})},
		ObservedAt:     time.Now(),
		ScoredAt:       time.Now(),
	}
}

func transferLog(token, to common.Address, amount float64) *ethtypes.Log {
	return &ethtypes.Log{
		Address: token,
		Topics: []common.Hash{
			transferTopic,
			common.BytesToHash(testRouter.Bytes()),
			common.BytesToHash(to.Bytes()),
		},
		Data: common.LeftPadBytes(types.ToWei(amount).Bytes(), 32),
	}
}

func withdrawalLog(wrapped common.Address, amount float64) *ethtypes.Log {
	return &ethtypes.Log{
		Address: wrapped,
		Topics:  []common.Hash{withdrawalTopic, common.BytesToHash(testRouter.Bytes())},
		Data:    common.LeftPadBytes(types.ToWei(amount).Bytes(), 32),
	}
}
