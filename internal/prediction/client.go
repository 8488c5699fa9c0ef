package prediction

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	json "github.com/goccy/go-json"
	"github.com/mselser95/mempool-engine/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	// RequestDuration tracks prediction model latency.
	RequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mempool_engine_prediction_request_duration_seconds",
		Help:    "Duration of prediction model requests",
		Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	})

	// DegradedTotal counts requests that fell back to no prediction.
	DegradedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mempool_engine_prediction_degraded_total",
			Help: "Total number of prediction requests that degraded to no prediction",
		},
		[]string{"reason"},
	)
)

// Features is the input vector sent to the model.
type Features struct {
	Token               string  `json:"token"`
	Venues              int     `json:"venues"`
	IntentCount         int     `json:"intent_count"`
	Buys                int     `json:"buys"`
	Sells               int     `json:"sells"`
	LiquidityAdds       int     `json:"liquidity_adds"`
	BuyNotional         float64 `json:"buy_notional"`
	SellNotional        float64 `json:"sell_notional"`
	LiquidityDepth      float64 `json:"liquidity_depth"`
	HolderConcentration float64 `json:"holder_concentration"`
	BuyTaxPct           float64 `json:"buy_tax_pct"`
	SellTaxPct          float64 `json:"sell_tax_pct"`
	Verified            bool    `json:"verified"`
	ManipulationScore   float64 `json:"manipulation_score"`
}

// BuildFeatures summarizes a token's pending intents and safety report.
func BuildFeatures(token common.Address, intents []*types.PendingIntent, report *types.TokenSafetyReport, manipulation float64) Features {
	f := Features{Token: token.Hex(), IntentCount: len(intents), ManipulationScore: manipulation}

	venues := make(map[common.Address]struct{})
	for _, in := range intents {
		venues[in.Venue] = struct{}{}
		switch in.Action.Kind {
		case types.ActionSwapIn:
			f.Buys++
			f.BuyNotional += types.FromWei(in.Action.AmountIn)
		case types.ActionSwapOut:
			f.Sells++
			f.SellNotional += types.FromWei(in.Action.MinAmountOut)
		case types.ActionLiquidityAdd:
			f.LiquidityAdds++
		case types.ActionUnknown:
		}
	}
	f.Venues = len(venues)

	if report != nil {
		f.LiquidityDepth = report.LiquidityDepth
		f.HolderConcentration = report.HolderConcentration
		f.BuyTaxPct = report.BuyTaxPct
		f.SellTaxPct = report.SellTaxPct
		f.Verified = report.Verified
	}
	return f
}

// Client calls an HTTP model endpoint: POST {url} with Features, response
// {"probability": p}.
type Client struct {
	url        string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a new prediction client.
func NewClient(url string, timeout time.Duration, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		url:        strings.TrimRight(url, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Predict returns the model probability in [0,1], or nil when the model is
// unavailable. Errors never propagate.
func (c *Client) Predict(ctx context.Context, f Features) *float64 {
	p, err := c.predict(ctx, f)
	if err != nil {
		c.logger.Debug("prediction-unavailable",
			zap.String("token", f.Token),
			zap.Error(err))
		return nil
	}
	return &p
}

func (c *Client) predict(ctx context.Context, f Features) (float64, error) {
	timer := prometheus.NewTimer(RequestDuration)
	defer timer.ObserveDuration()

	body, err := json.Marshal(f)
	if err != nil {
		DegradedTotal.WithLabelValues("encode").Inc()
		return 0, fmt.Errorf("encode features: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		DegradedTotal.WithLabelValues("request").Inc()
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		DegradedTotal.WithLabelValues("transport").Inc()
		return 0, fmt.Errorf("call model: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		DegradedTotal.WithLabelValues("status").Inc()
		return 0, fmt.Errorf("model error: status %d", resp.StatusCode)
	}

	var out struct {
		Probability *float64 `json:"probability"`
	}
	err = json.NewDecoder(resp.Body).Decode(&out)
	if err != nil {
		DegradedTotal.WithLabelValues("decode").Inc()
		return 0, fmt.Errorf("decode response: %w", err)
	}

	if out.Probability == nil || *out.Probability < 0 || *out.Probability > 1 {
		DegradedTotal.WithLabelValues("range").Inc()
		return 0, fmt.Errorf("probability missing or outside [0,1]")
	}

	return *out.Probability, nil
}
