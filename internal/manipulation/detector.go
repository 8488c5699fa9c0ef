package manipulation

import (
	"bytes"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mselser95/mempool-engine/pkg/types"
	"go.uber.org/zap"
)

// Weights combine the three score components.
type Weights struct {
	Coordination  float64
	Concentration float64
	Direction     float64
}

// Config holds detector configuration.
type Config struct {
	CoordinationThreshold int    // coordinated txs that saturate the coordination component
	MinIntents            int    // fewer swaps than this score zero
	WindowBlocks          uint64 // blocks a recorded score stays live
	AlertThreshold        float64
	Weights               Weights
	Clusters              ClusterSource
	Logger                *zap.Logger
}

// IntentSource exposes the observation window.
type IntentSource interface {
	Tokens() []common.Address
	IntentsFor(token common.Address) []*types.PendingIntent
}

// Detector scores coordinated activity per token and keeps the latest score.
type Detector struct {
	cfg    Config
	logger *zap.Logger

	mu     sync.RWMutex
	scores map[common.Address]types.ManipulationScore
}

// New creates a new detector.
func New(cfg *Config) (*Detector, error) {
	if cfg.CoordinationThreshold <= 0 {
		return nil, fmt.Errorf("coordination threshold must be positive, got %d", cfg.CoordinationThreshold)
	}

	w := cfg.Weights
	if w.Coordination < 0 || w.Concentration < 0 || w.Direction < 0 {
		return nil, fmt.Errorf("weights must be non-negative")
	}
	if w.Coordination+w.Concentration+w.Direction == 0 {
		return nil, fmt.Errorf("at least one weight must be positive")
	}

	c := *cfg
	if c.Clusters == nil {
		c.Clusters = SingletonClusters{}
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.MinIntents <= 0 {
		c.MinIntents = 3
	}
	if c.WindowBlocks == 0 {
		c.WindowBlocks = 5
	}

	return &Detector{
		cfg:    c,
		logger: c.Logger,
		scores: make(map[common.Address]types.ManipulationScore),
	}, nil
}

type clusterStats struct {
	wallets map[common.Address]struct{}
	txs     int
	volume  float64
}

// Analyze scores one token's pending swaps. It does not touch detector state.
func (d *Detector) Analyze(token common.Address, intents []*types.PendingIntent) types.ManipulationScore {
	score := types.ManipulationScore{Token: token}

	clusters := make(map[string]*clusterStats)
	var buys, sells int
	var totalVolume float64

	for _, in := range intents {
		if !in.IsBuy() && !in.IsSell() {
			continue
		}
		if in.Token() != token {
			continue
		}

		score.TxCount++
		volume := notional(in)
		totalVolume += volume
		if in.IsBuy() {
			buys++
		} else {
			sells++
		}

		id := d.cfg.Clusters.ClusterOf(in.Sender)
		cs, ok := clusters[id]
		if !ok {
			cs = &clusterStats{wallets: make(map[common.Address]struct{})}
			clusters[id] = cs
		}
		cs.wallets[in.Sender] = struct{}{}
		cs.txs++
		cs.volume += volume
	}

	if score.TxCount < d.cfg.MinIntents {
		return score
	}

	coordinated := 0
	var evidence []common.Address
	hhi := 0.0
	for _, cs := range clusters {
		if len(cs.wallets) >= 2 {
			coordinated += cs.txs
			for w := range cs.wallets {
				evidence = append(evidence, w)
			}
		}

		var share float64
		if totalVolume > 0 {
			share = cs.volume / totalVolume
		} else {
			share = float64(cs.txs) / float64(score.TxCount)
		}
		hhi += share * share
	}

	sort.Slice(evidence, func(i, j int) bool {
		return bytes.Compare(evidence[i][:], evidence[j][:]) < 0
	})

	score.Coordination = clamp01(float64(coordinated) / float64(d.cfg.CoordinationThreshold))
	score.Concentration = clamp01(hhi)
	score.Directional = clamp01(math.Abs(float64(buys-sells)) / float64(buys+sells))
	score.Wallets = evidence

	w := d.cfg.Weights
	total := w.Coordination + w.Concentration + w.Direction
	score.Score = clamp01((w.Coordination*score.Coordination +
		w.Concentration*score.Concentration +
		w.Direction*score.Directional) / total)

	return score
}

// Record stores a score as the latest for its token.
func (d *Detector) Record(score types.ManipulationScore) {
	d.mu.Lock()
	d.scores[score.Token] = score
	n := len(d.scores)
	d.mu.Unlock()

	TokensScored.Set(float64(n))
	ScoreDistribution.Observe(score.Score)

	if d.cfg.AlertThreshold > 0 && score.Score >= d.cfg.AlertThreshold {
		SuspectedTotal.Inc()
		d.logger.Info("manipulation-suspected",
			zap.String("token", score.Token.Hex()),
			zap.Float64("score", score.Score),
			zap.Float64("coordination", score.Coordination),
			zap.Float64("concentration", score.Concentration),
			zap.Float64("directional", score.Directional),
			zap.Int("wallets", len(score.Wallets)),
			zap.Uint64("block", score.Block))
	}
}

// Score returns the latest live score for a token.
func (d *Detector) Score(token common.Address) (types.ManipulationScore, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	s, ok := d.scores[token]
	return s, ok
}

// Recompute analyzes every token in the window at a block boundary.
func (d *Detector) Recompute(block uint64, source IntentSource) int {
	count := 0
	for _, token := range source.Tokens() {
		s := d.Analyze(token, source.IntentsFor(token))
		if s.TxCount < d.cfg.MinIntents {
			continue
		}
		s.Block = block
		s.ExpiresAt = block + d.cfg.WindowBlocks
		d.Record(s)
		count++
	}
	return count
}

// Prune drops scores that expired before block.
func (d *Detector) Prune(block uint64) int {
	d.mu.Lock()
	removed := 0
	for token, s := range d.scores {
		if s.ExpiresAt < block {
			delete(d.scores, token)
			removed++
		}
	}
	n := len(d.scores)
	d.mu.Unlock()

	TokensScored.Set(float64(n))
	return removed
}

// notional is the base-asset size of a swap: the input of a buy, the
// minimum output of a sell.
func notional(in *types.PendingIntent) float64 {
	if in.IsBuy() {
		return types.FromWei(in.Action.AmountIn)
	}
	return types.FromWei(in.Action.MinAmountOut)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
