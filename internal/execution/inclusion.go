package execution

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

// ErrInclusionTimeout is returned when a deadline passes before every
// transaction is included.
var ErrInclusionTimeout = errors.New("inclusion deadline exceeded")

// ReceiptSource fetches transaction receipts.
type ReceiptSource interface {
	TransactionReceipt(ctx context.Context, hash common.Hash) (*ethtypes.Receipt, error)
}

// InclusionWaiter polls for receipts with exponential backoff.
type InclusionWaiter struct {
	receipts       ReceiptSource
	logger         *zap.Logger
	initialBackoff time.Duration
	maxBackoff     time.Duration
	backoffMult    float64
}

// InclusionConfig holds receipt polling configuration.
type InclusionConfig struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffMult    float64
}

// NewInclusionWaiter creates a new InclusionWaiter instance.
func NewInclusionWaiter(receipts ReceiptSource, logger *zap.Logger, cfg *InclusionConfig) *InclusionWaiter {
	w := &InclusionWaiter{
		receipts:       receipts,
		logger:         logger,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		backoffMult:    cfg.BackoffMult,
	}
	if w.logger == nil {
		w.logger = zap.NewNop()
	}
	if w.initialBackoff <= 0 {
		w.initialBackoff = 500 * time.Millisecond
	}
	if w.maxBackoff < w.initialBackoff {
		w.maxBackoff = w.initialBackoff
	}
	if w.backoffMult < 1 {
		w.backoffMult = 2
	}
	return w
}

// Wait polls until every slot has a receipt for one of its candidate hashes.
// Each slot lists the hashes of all same-nonce versions sent so far, since any
// of them may be the one included. Receipts already known in have are kept.
// It returns ErrInclusionTimeout when ctx's deadline passes first, with the
// receipts found so far.
func (w *InclusionWaiter) Wait(ctx context.Context, slots [][]common.Hash, have []*ethtypes.Receipt) ([]*ethtypes.Receipt, error) {
	found := make([]*ethtypes.Receipt, len(slots))
	copy(found, have)

	startTime := time.Now()
	backoff := w.initialBackoff
	attempt := 1

	for {
		allIncluded := true
		for i, candidates := range slots {
			if found[i] != nil {
				continue
			}

			for _, h := range candidates {
				receipt, err := w.receipts.TransactionReceipt(ctx, h)
				if err != nil {
					if !errors.Is(err, ethereum.NotFound) {
						w.logger.Warn("receipt-query-failed-retrying",
							zap.String("tx-hash", h.Hex()),
							zap.Int("attempt", attempt),
							zap.Error(err))
					}
					continue
				}
				found[i] = receipt
				w.logger.Info("tx-included",
					zap.String("tx-hash", h.Hex()),
					zap.Uint64("block", receipt.BlockNumber.Uint64()),
					zap.Uint64("status", receipt.Status),
					zap.Duration("duration", time.Since(startTime)))
				break
			}

			if found[i] == nil {
				allIncluded = false
			}
		}

		if allIncluded {
			return found, nil
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				w.logger.Warn("inclusion-timeout",
					zap.Int("slot-count", len(slots)),
					zap.Int("attempts", attempt))
				return found, ErrInclusionTimeout
			}
			return found, ctx.Err()

		case <-timer.C:
			attempt++
			backoff = time.Duration(float64(backoff) * w.backoffMult)
			if backoff > w.maxBackoff {
				backoff = w.maxBackoff
			}
		}
	}
}
