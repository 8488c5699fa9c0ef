package execution

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/mselser95/mempool-engine/internal/storage"
	"github.com/mselser95/mempool-engine/pkg/types"
	"github.com/mselser95/mempool-engine/pkg/wallet"
	"go.uber.org/zap"
)

// ErrSendDeadline is returned when a broadcast outlives its send deadline.
var ErrSendDeadline = errors.New("send deadline exceeded")

// Broadcaster sends a signed transaction to the public mempool.
type Broadcaster interface {
	SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error
}

// HeadSource reports the latest block the engine has processed.
type HeadSource interface {
	LastBlock() uint64
}

// SubmitterConfig holds submitter configuration and collaborators.
type SubmitterConfig struct {
	ChainID              *big.Int
	RetryBudget          int     // maximum submission attempts per plan
	EscalationMultiplier float64 // minimum fee growth between attempts
	InclusionTimeout     time.Duration
	SendTimeout          time.Duration // per broadcast or bundle call
	DryRun               bool

	Signer      wallet.Signer
	Fees        FeeSource
	Broadcaster Broadcaster
	Relay       BundleRelay // optional
	Waiter      *InclusionWaiter
	Heads       HeadSource
	Nonces      *NonceManager
	KillSwitch  *KillSwitch
	Audit       storage.AuditLog // optional
	Logger      *zap.Logger
}

// Submitter drives an execution plan through the submission state machine.
// Every retry replaces the previous attempt at the same nonces, so at most
// one version of each transaction can be included.
type Submitter struct {
	cfg    SubmitterConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewSubmitter creates a submitter.
func NewSubmitter(cfg SubmitterConfig) (*Submitter, error) {
	if cfg.Signer == nil {
		return nil, types.NewFatalConfigError("submitter requires a signer", ErrMissingSigner)
	}
	if cfg.Fees == nil {
		return nil, types.NewFatalConfigError("submitter requires fee data", ErrNoFeeSource)
	}
	if cfg.ChainID == nil {
		return nil, types.NewFatalConfigError("submitter requires a chain id", nil)
	}
	if cfg.Nonces == nil || cfg.KillSwitch == nil || cfg.Heads == nil {
		return nil, types.NewFatalConfigError("submitter requires nonces, kill switch and heads", nil)
	}
	if !cfg.DryRun && (cfg.Broadcaster == nil || cfg.Waiter == nil) {
		return nil, types.NewFatalConfigError("live submitter requires a broadcaster and receipt waiter", nil)
	}

	if cfg.RetryBudget < 1 {
		cfg.RetryBudget = 2
	}
	if cfg.EscalationMultiplier < replacementBump {
		cfg.EscalationMultiplier = replacementBump
	}
	if cfg.InclusionTimeout <= 0 {
		cfg.InclusionTimeout = 36 * time.Second
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Submitter{cfg: cfg, logger: logger, now: time.Now}, nil
}

// submission is the mutable state of one Submit call.
type submission struct {
	plan       *types.ExecutionPlan
	res        *types.SubmissionResult
	price      pricing
	channel    types.Channel
	sent       [][]common.Hash // every hash broadcast per own tx
	receipts   []*ethtypes.Receipt
	publicSent bool
}

// Submit runs plan to a terminal state and returns the outcome. It never
// spends more than plan.MaxCost on gas.
func (s *Submitter) Submit(ctx context.Context, plan *types.ExecutionPlan) *types.SubmissionResult {
	start := s.now()
	sub := &submission{
		plan: plan,
		res: &types.SubmissionResult{
			PlanID:  plan.ID,
			Purpose: plan.Purpose,
			Channel: plan.Channel,
			MaxCost: plan.MaxCost,
		},
		price:    pricing{tipGwei: plan.InitialTipGwei, feeCapGwei: plan.FeeCapGwei},
		channel:  plan.Channel,
		sent:     make([][]common.Hash, len(plan.Txs)),
		receipts: make([]*ethtypes.Receipt, len(plan.Txs)),
	}

	s.run(ctx, sub)
	s.finish(ctx, sub)

	ExecutionDurationSeconds.Observe(s.now().Sub(start).Seconds())
	return sub.res
}

func (s *Submitter) run(ctx context.Context, sub *submission) {
	plan := sub.plan
	gasLimit := plan.GasLimit()

	for {
		if err := s.cfg.KillSwitch.Check(); err != nil {
			s.transition(sub, types.StateRejected, err.Error())
			return
		}

		sub.res.Attempts++
		signed, err := s.sign(sub)
		if err != nil {
			s.transition(sub, types.StateRejected, "sign-failed")
			s.logger.Error("plan-sign-failed", zap.String("plan-id", plan.ID), zap.Error(err))
			return
		}

		s.transition(sub, types.StateSubmitted, fmt.Sprintf("attempt %d via %s", sub.res.Attempts, sub.channel))

		if s.cfg.DryRun {
			for i, tx := range signed {
				if tx != nil {
					sub.sent[i] = append(sub.sent[i], tx.Hash())
				}
			}
			sub.res.RealizedCost = types.GasCost(gasLimit, plan.BaseFeeGwei+sub.price.tipGwei)
			AttemptsTotal.WithLabelValues(sub.channel.String(), "dry-run").Inc()
			s.transition(sub, types.StateConfirmed, "dry-run")
			return
		}

		err = s.send(ctx, sub, signed)
		switch {
		case errors.Is(err, ErrSendDeadline):
			AttemptsTotal.WithLabelValues(sub.channel.String(), "expired").Inc()
			s.logger.Warn("plan-send-timed-out",
				zap.String("plan-id", plan.ID),
				zap.Duration("send-timeout", s.cfg.SendTimeout),
				zap.Error(err))
			s.transition(sub, types.StateExpired, "send deadline exceeded")
		case err != nil:
			serr := types.NewSubmissionError("send failed", err)
			AttemptsTotal.WithLabelValues(sub.channel.String(), "rejected").Inc()
			s.logger.Warn("plan-send-failed", zap.String("plan-id", plan.ID), zap.Error(serr))
			s.transition(sub, types.StateRejected, serr.Reason)
		default:
			if s.await(ctx, sub) {
				return
			}
		}

		// failure path: REJECTED or EXPIRED
		if ctx.Err() != nil {
			s.terminate(sub, "cancelled")
			return
		}
		if err := s.cfg.KillSwitch.Check(); err != nil {
			s.terminate(sub, err.Error())
			return
		}
		if sub.res.Attempts >= s.cfg.RetryBudget {
			s.terminate(sub, "retry budget exhausted")
			return
		}

		remaining := plan.MaxCost - s.spent(sub)
		fresh := s.cfg.Fees.Quote(plan.Urgency)
		next, ok := escalate(sub.price, fresh, plan.FeeStrategy, s.cfg.EscalationMultiplier, remaining, s.pendingGas(sub), sub.publicSent)
		if !ok {
			s.terminate(sub, "cost ceiling reached")
			return
		}

		s.logger.Info("plan-escalating",
			zap.String("plan-id", plan.ID),
			zap.Int("attempt", sub.res.Attempts),
			zap.Float64("tip-gwei", next.tipGwei),
			zap.Float64("fee-cap-gwei", next.feeCapGwei))
		sub.price = next
		s.transition(sub, types.StateRetry, "escalated")
	}
}

// await waits for inclusion and reports whether the plan reached a terminal state.
func (s *Submitter) await(ctx context.Context, sub *submission) bool {
	waitCtx, cancel := context.WithTimeout(ctx, s.cfg.InclusionTimeout)
	defer cancel()

	receipts, err := s.cfg.Waiter.Wait(waitCtx, sub.sent, sub.receipts)
	sub.receipts = receipts

	for _, r := range receipts {
		if r != nil && r.Status == ethtypes.ReceiptStatusFailed {
			AttemptsTotal.WithLabelValues(sub.channel.String(), "reverted").Inc()
			s.transition(sub, types.StateRejected, "reverted")
			return true
		}
	}

	switch {
	case err == nil:
		AttemptsTotal.WithLabelValues(sub.channel.String(), "confirmed").Inc()
		s.transition(sub, types.StateConfirmed, "included")
		return true
	case errors.Is(err, ErrInclusionTimeout):
		AttemptsTotal.WithLabelValues(sub.channel.String(), "expired").Inc()
		s.transition(sub, types.StateExpired, "not included before deadline")
		return false
	default:
		AttemptsTotal.WithLabelValues(sub.channel.String(), "cancelled").Inc()
		s.transition(sub, types.StateRejected, "cancelled")
		return true
	}
}

// terminate ends a failed plan. An expired plan moves to REJECTED; an
// already rejected plan stays where it is.
func (s *Submitter) terminate(sub *submission, reason string) {
	if sub.plan.State == types.StateExpired {
		s.transition(sub, types.StateRejected, reason)
		return
	}
	sub.res.Reason = reason
}

// sign signs every own transaction not yet included at the current price.
func (s *Submitter) sign(sub *submission) ([]*ethtypes.Transaction, error) {
	plan := sub.plan
	out := make([]*ethtypes.Transaction, len(plan.Txs))
	tip := types.GweiToWei(sub.price.tipGwei)
	feeCap := types.GweiToWei(sub.price.feeCapGwei)

	for i, ptx := range plan.Txs {
		if sub.receipts[i] != nil {
			continue
		}
		to := ptx.To
		value := ptx.Value
		if value == nil {
			value = new(big.Int)
		}
		tx := ethtypes.NewTx(&ethtypes.DynamicFeeTx{
			ChainID:   s.cfg.ChainID,
			Nonce:     ptx.Nonce,
			GasTipCap: tip,
			GasFeeCap: feeCap,
			Gas:       ptx.GasLimit,
			To:        &to,
			Value:     value,
			Data:      ptx.Data,
		})
		signed, err := s.cfg.Signer.SignTx(plan.KeyHandle, tx)
		if err != nil {
			return nil, fmt.Errorf("sign tx %d: %w", i, err)
		}
		out[i] = signed
	}
	return out, nil
}

// send submits signed through the plan's channel. A failed relay submission
// falls back to the public mempool within the same attempt.
func (s *Submitter) send(ctx context.Context, sub *submission, signed []*ethtypes.Transaction) error {
	if sub.channel == types.ChannelPrivateBundle && s.cfg.Relay != nil && s.partial(sub) {
		// bundle ordering no longer holds once part of the plan is on chain
		sub.channel = types.ChannelPublic
	}

	if sub.channel == types.ChannelPrivateBundle && s.cfg.Relay != nil {
		bundleHash, err := s.sendBundle(ctx, sub, signed)
		if err == nil {
			sub.res.BundleHash = bundleHash
			s.record(sub, signed)
			return nil
		}
		RelayFallbacksTotal.Inc()
		s.logger.Warn("relay-failed-falling-back",
			zap.String("plan-id", sub.plan.ID),
			zap.Error(err))
	}

	return s.broadcast(ctx, sub, signed)
}

func (s *Submitter) sendBundle(ctx context.Context, sub *submission, signed []*ethtypes.Transaction) (string, error) {
	raw := make([][]byte, 0, len(sub.plan.Bundle))
	for _, slot := range sub.plan.Bundle {
		if slot.Own < 0 {
			raw = append(raw, slot.Raw)
			continue
		}
		if slot.Own >= len(signed) || signed[slot.Own] == nil {
			return "", fmt.Errorf("bundle slot %q has no signed tx", slot.Label)
		}
		b, err := signed[slot.Own].MarshalBinary()
		if err != nil {
			return "", fmt.Errorf("encode %s: %w", slot.Label, err)
		}
		raw = append(raw, b)
	}

	target := s.cfg.Heads.LastBlock() + 1
	sendCtx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
	defer cancel()
	return s.cfg.Relay.SendBundle(sendCtx, raw, target)
}

func (s *Submitter) broadcast(ctx context.Context, sub *submission, signed []*ethtypes.Transaction) error {
	var sentAny bool
	for i, tx := range signed {
		if tx == nil {
			continue
		}
		err := s.sendTx(ctx, tx)
		if errors.Is(err, ErrSendDeadline) {
			// the node may still have accepted it, so later attempts must replace it
			s.record(sub, signed[:i+1])
			sub.publicSent = true
			return fmt.Errorf("broadcast nonce %d: %w", tx.Nonce(), err)
		}
		if err != nil {
			if sentAny {
				s.record(sub, signed[:i])
			}
			return fmt.Errorf("broadcast nonce %d: %w", tx.Nonce(), err)
		}
		sentAny = true
		sub.publicSent = true
	}
	s.record(sub, signed)
	return nil
}

// sendTx broadcasts one transaction under the send deadline. An expired
// deadline is reported as ErrSendDeadline unless ctx itself ended.
func (s *Submitter) sendTx(ctx context.Context, tx *ethtypes.Transaction) error {
	sendCtx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
	defer cancel()

	err := s.cfg.Broadcaster.SendTransaction(sendCtx, tx)
	if err != nil && ctx.Err() == nil && errors.Is(sendCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrSendDeadline, err)
	}
	return err
}

func (s *Submitter) record(sub *submission, signed []*ethtypes.Transaction) {
	for i, tx := range signed {
		if tx != nil {
			sub.sent[i] = append(sub.sent[i], tx.Hash())
		}
	}
}

func (s *Submitter) partial(sub *submission) bool {
	for _, r := range sub.receipts {
		if r != nil {
			return true
		}
	}
	return false
}

// spent is the gas already paid by included transactions.
func (s *Submitter) spent(sub *submission) float64 {
	cost := new(big.Int)
	for _, r := range sub.receipts {
		if r != nil && r.EffectiveGasPrice != nil {
			cost.Add(cost, new(big.Int).Mul(new(big.Int).SetUint64(r.GasUsed), r.EffectiveGasPrice))
		}
	}
	return types.FromWei(cost)
}

// pendingGas is the gas limit of the transactions still awaiting inclusion.
func (s *Submitter) pendingGas(sub *submission) uint64 {
	var gas uint64
	for i, ptx := range sub.plan.Txs {
		if sub.receipts[i] == nil {
			gas += ptx.GasLimit
		}
	}
	return gas
}

func (s *Submitter) transition(sub *submission, to types.PlanState, reason string) {
	plan := sub.plan
	if !types.CanTransition(plan.State, to) {
		s.logger.Error("invalid-plan-transition",
			zap.String("plan-id", plan.ID),
			zap.String("from", plan.State.String()),
			zap.String("to", to.String()))
		return
	}

	plan.Transitions = append(plan.Transitions, types.Transition{
		From:   plan.State,
		To:     to,
		At:     s.now(),
		Reason: reason,
	})
	plan.State = to
	sub.res.Reason = reason

	s.logger.Debug("plan-transition",
		zap.String("plan-id", plan.ID),
		zap.String("state", to.String()),
		zap.String("reason", reason))
}

// finish fills in the result, releases nonces of failed plans and writes the
// audit record.
func (s *Submitter) finish(ctx context.Context, sub *submission) {
	plan, res := sub.plan, sub.res
	res.State = plan.State
	res.Channel = sub.channel
	res.Transitions = plan.Transitions
	res.FinishedAt = s.now()
	res.Receipts = sub.receipts

	for i, hashes := range sub.sent {
		switch {
		case sub.receipts[i] != nil:
			res.TxHashes = append(res.TxHashes, sub.receipts[i].TxHash)
		case len(hashes) > 0:
			res.TxHashes = append(res.TxHashes, hashes[len(hashes)-1])
		}
	}

	if !s.cfg.DryRun {
		for _, r := range sub.receipts {
			if r == nil {
				continue
			}
			res.GasUsed += r.GasUsed
			if r.BlockNumber != nil && r.BlockNumber.Uint64() > res.Block {
				res.Block = r.BlockNumber.Uint64()
			}
		}
		res.RealizedCost = s.spent(sub)
	}

	if !res.Confirmed() {
		s.cfg.Nonces.Resync(plan.Signer)
	}

	RealizedCost.Observe(res.RealizedCost)
	TerminalTotal.WithLabelValues(plan.Purpose.String(), res.State.String()).Inc()

	s.logger.Info("plan-terminal",
		zap.String("plan-id", plan.ID),
		zap.String("purpose", plan.Purpose.String()),
		zap.String("state", res.State.String()),
		zap.String("reason", res.Reason),
		zap.Int("attempts", res.Attempts),
		zap.String("channel", res.Channel.String()),
		zap.Float64("realized-cost", res.RealizedCost),
		zap.Float64("max-cost", res.MaxCost))

	if s.cfg.Audit == nil {
		return
	}
	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	err := s.cfg.Audit.RecordSubmission(auditCtx, res)
	if err != nil {
		s.logger.Error("audit-submission-failed", zap.String("plan-id", plan.ID), zap.Error(err))
	}
}
