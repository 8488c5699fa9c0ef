package execution

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/mselser95/mempool-engine/pkg/types"
)

//nolint:gochecknoglobals // event signatures
var (
	transferTopic   = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))
	withdrawalTopic = crypto.Keccak256Hash([]byte("Withdrawal(address,uint256)"))
)

// receivedTokens sums ERC20 transfers of token to recipient across receipts.
func receivedTokens(receipts []*ethtypes.Receipt, token, recipient common.Address) float64 {
	total := new(big.Int)
	for _, r := range receipts {
		if r == nil {
			continue
		}
		for _, l := range r.Logs {
			if l.Address != token || len(l.Topics) != 3 || l.Topics[0] != transferTopic {
				continue
			}
			if common.BytesToAddress(l.Topics[2].Bytes()) != recipient {
				continue
			}
			total.Add(total, new(big.Int).SetBytes(l.Data))
		}
	}
	return types.FromWei(total)
}

// unwrappedProceeds sums wrapped-native withdrawals, the base asset a router
// pays out on a token-to-native swap.
func unwrappedProceeds(receipts []*ethtypes.Receipt, wrapped common.Address) float64 {
	total := new(big.Int)
	for _, r := range receipts {
		if r == nil {
			continue
		}
		for _, l := range r.Logs {
			if l.Address != wrapped || len(l.Topics) < 2 || l.Topics[0] != withdrawalTopic {
				continue
			}
			total.Add(total, new(big.Int).SetBytes(l.Data))
		}
	}
	return types.FromWei(total)
}

// entryFill derives the fill of a confirmed entry. Without a matching
// transfer log the expected token amount stands in.
func entryFill(plan *types.ExecutionPlan, res *types.SubmissionResult) *types.Fill {
	amount := receivedTokens(res.Receipts, plan.Token, plan.Signer)
	if amount <= 0 {
		amount = plan.ExpectedTokens
	}
	if amount <= 0 {
		return nil
	}

	fill := &types.Fill{
		PlanID:        plan.ID,
		OpportunityID: plan.OpportunityID,
		Token:         plan.Token,
		Venue:         plan.Venue,
		Amount:        amount,
		Price:         plan.TradeSize / amount,
		Block:         res.Block,
		FilledAt:      res.FinishedAt,
	}
	if len(res.TxHashes) > 0 {
		fill.TxHash = res.TxHashes[0]
	}
	return fill
}
