package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mselser95/mempool-engine/pkg/types"
)

// Config holds all application configuration.
type Config struct {
	// Application
	LogLevel      string
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	HTTPPort      string
	ExecutionMode string // "dry-run" or "live"

	// Chain
	ChainID          int64
	RPCURL           string
	HeadsWSURL       string
	PendingFeedURLs  []string
	PendingSubMethod string
	WrappedNative    string
	BaseAssets       []string
	Venues           map[string]string // router address -> venue name

	// WebSocket
	WSDialTimeout           time.Duration
	WSPongTimeout           time.Duration
	WSPingInterval          time.Duration
	WSReconnectInitialDelay time.Duration
	WSReconnectMaxDelay     time.Duration
	WSReconnectBackoffMult  float64
	WSMessageBufferSize     int

	// Fee market
	FeeWindowBlocks     int
	FeePercentiles      []int
	FeeCongestionFactor float64
	FeeCongestionBoost  float64
	FeeFloorTipGwei     float64

	// Intent window
	IntentTTL         time.Duration
	IntentMaxPerToken int

	// Manipulation detector
	ManipCoordinationThreshold int
	ManipMinIntents            int
	ManipWeightCoordination    float64
	ManipWeightConcentration   float64
	ManipWeightDirection       float64
	ManipFlagThreshold         float64
	ManipWindowBlocks          int
	ManipClusterFile           string

	// Token collaborators
	SafetyAPIURL      string
	SafetyCacheTTL    time.Duration
	SafetyTimeout     time.Duration
	BlacklistTTL      time.Duration
	PredictionURL     string
	PredictionTimeout time.Duration

	// Scoring risk surface
	MinLiquidity            float64
	MaxHolderConcentration  float64
	MaxTaxPct               float64
	HighTaxPct              float64
	HighConcentrationPct    float64
	SandwichImpactThreshold float64
	MaxTradeSize            float64
	MaxTradeFraction        float64
	SnipeExpectedReturn     float64
	CaptureRatio            float64
	GasUnitsPerTx           int
	MinNetProfit            float64
	MarginWeight            float64
	PredictionWeight        float64
	NoPredictionFactor      float64

	// Pipeline
	PipelineWorkers int
	QueueCapacity   int
	QueueMaxAge     time.Duration

	// Execution
	SignerKeyHandle         string
	SignerKeyEnv            string
	ArbCompetitionThreshold int
	AggressiveMultiplier    float64
	RelayURL                string
	RelayAuthKeyEnv         string
	RelayMinValue           float64
	MaxCost                 float64
	MaxCostFraction         float64
	ExitMaxCost             float64
	RetryBudget             int
	EscalationMultiplier    float64
	InclusionTimeout        time.Duration
	SendTimeout             time.Duration
	NonceTimeout            time.Duration
	ReceiptPollInitial      time.Duration
	ReceiptPollMax          time.Duration
	SwapDeadline            time.Duration
	EntrySlippagePct        float64
	ExitSlippagePct         float64

	// Circuit breaker
	CircuitBreakerEnabled         bool
	CircuitBreakerCheckInterval   time.Duration
	CircuitBreakerTradeMultiplier float64
	CircuitBreakerMinAbsolute     float64
	CircuitBreakerHysteresisRatio float64
	WalletPollInterval            time.Duration

	// Positions
	PositionPollInterval time.Duration
	PriceTimeout         time.Duration
	TakeProfitStages     []types.TakeProfitStage
	TrailPercent         float64
	StopLossPercent      float64
	MaxExitFailures      int
	DustAmount           float64

	// Storage
	StorageMode  string // "postgres", "console" or "memory"
	PostgresHost string
	PostgresPort string
	PostgresUser string
	PostgresPass string
	PostgresDB   string
	PostgresSSL  string
}

const (
	defaultWrappedNative = "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"
	defaultVenues        = "0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D=uniswap-v2,0xd9e1cE17f2641f24aE83637ab66a2cca9C378B9F=sushiswap"
)

// LoadFromEnv loads configuration from environment variables with defaults.
func LoadFromEnv() (*Config, error) {
	stages, err := ParseStages(getEnvOrDefault("TP_STAGES", "1.5:25,3:50"))
	if err != nil {
		return nil, fmt.Errorf("parse TP_STAGES: %w", err)
	}

	venues, err := ParseVenues(getEnvOrDefault("VENUE_ROUTERS", defaultVenues))
	if err != nil {
		return nil, fmt.Errorf("parse VENUE_ROUTERS: %w", err)
	}

	percentiles, err := parseIntList(getEnvOrDefault("FEE_PERCENTILES", "10,25,50,75,90,95,99"))
	if err != nil {
		return nil, fmt.Errorf("parse FEE_PERCENTILES: %w", err)
	}

	wrapped := getEnvOrDefault("WRAPPED_NATIVE", defaultWrappedNative)

	cfg := &Config{
		// Application defaults
		LogLevel:      getEnvOrDefault("LOG_LEVEL", "info"),
		LogFile:       os.Getenv("LOG_FILE"),
		LogMaxSizeMB:  getIntOrDefault("LOG_MAX_SIZE_MB", 100),
		LogMaxBackups: getIntOrDefault("LOG_MAX_BACKUPS", 5),
		LogMaxAgeDays: getIntOrDefault("LOG_MAX_AGE_DAYS", 14),
		HTTPPort:      getEnvOrDefault("HTTP_PORT", "8080"),
		ExecutionMode: getEnvOrDefault("EXECUTION_MODE", "dry-run"),

		// Chain defaults
		ChainID:          int64(getIntOrDefault("CHAIN_ID", 1)),
		RPCURL:           getEnvOrDefault("RPC_URL", "http://localhost:8545"),
		HeadsWSURL:       getEnvOrDefault("HEADS_WS_URL", "ws://localhost:8546"),
		PendingFeedURLs:  getListOrDefault("PENDING_FEED_URLS", []string{"ws://localhost:8546"}),
		PendingSubMethod: getEnvOrDefault("PENDING_SUB_METHOD", "newPendingTransactions"),
		WrappedNative:    wrapped,
		BaseAssets:       getListOrDefault("BASE_ASSETS", []string{wrapped}),
		Venues:           venues,

		// WebSocket defaults
		WSDialTimeout:           getDurationOrDefault("WS_DIAL_TIMEOUT", 10*time.Second),
		WSPongTimeout:           getDurationOrDefault("WS_PONG_TIMEOUT", 15*time.Second),
		WSPingInterval:          getDurationOrDefault("WS_PING_INTERVAL", 10*time.Second),
		WSReconnectInitialDelay: getDurationOrDefault("WS_RECONNECT_INITIAL_DELAY", 1*time.Second),
		WSReconnectMaxDelay:     getDurationOrDefault("WS_RECONNECT_MAX_DELAY", 30*time.Second),
		WSReconnectBackoffMult:  getFloat64OrDefault("WS_RECONNECT_BACKOFF_MULTIPLIER", 2.0),
		WSMessageBufferSize:     getIntOrDefault("WS_MESSAGE_BUFFER_SIZE", 10000),

		// Fee market defaults
		FeeWindowBlocks:     getIntOrDefault("FEE_WINDOW_BLOCKS", 20),
		FeePercentiles:      percentiles,
		FeeCongestionFactor: getFloat64OrDefault("FEE_CONGESTION_FACTOR", 3.0),
		FeeCongestionBoost:  getFloat64OrDefault("FEE_CONGESTION_BOOST", 1.25),
		FeeFloorTipGwei:     getFloat64OrDefault("FEE_FLOOR_TIP_GWEI", 1.5),

		// Intent window defaults
		IntentTTL:         getDurationOrDefault("INTENT_TTL", 3*time.Minute),
		IntentMaxPerToken: getIntOrDefault("INTENT_MAX_PER_TOKEN", 256),

		// Manipulation defaults
		ManipCoordinationThreshold: getIntOrDefault("MANIPULATION_COORDINATION_THRESHOLD", 4),
		ManipMinIntents:            getIntOrDefault("MANIPULATION_MIN_INTENTS", 3),
		ManipWeightCoordination:    getFloat64OrDefault("MANIPULATION_WEIGHT_COORDINATION", 0.5),
		ManipWeightConcentration:   getFloat64OrDefault("MANIPULATION_WEIGHT_CONCENTRATION", 0.3),
		ManipWeightDirection:       getFloat64OrDefault("MANIPULATION_WEIGHT_DIRECTION", 0.2),
		ManipFlagThreshold:         getFloat64OrDefault("MANIPULATION_FLAG_THRESHOLD", 0.6),
		ManipWindowBlocks:          getIntOrDefault("MANIPULATION_WINDOW_BLOCKS", 5),
		ManipClusterFile:           os.Getenv("MANIPULATION_CLUSTER_FILE"),

		// Token collaborator defaults
		SafetyAPIURL:      getEnvOrDefault("SAFETY_API_URL", "http://localhost:9100"),
		SafetyCacheTTL:    getDurationOrDefault("SAFETY_CACHE_TTL", 2*time.Minute),
		SafetyTimeout:     getDurationOrDefault("SAFETY_TIMEOUT", 2*time.Second),
		BlacklistTTL:      getDurationOrDefault("BLACKLIST_TTL", 24*time.Hour),
		PredictionURL:     os.Getenv("PREDICTION_URL"),
		PredictionTimeout: getDurationOrDefault("PREDICTION_TIMEOUT", 300*time.Millisecond),

		// Scoring defaults
		MinLiquidity:            getFloat64OrDefault("MIN_LIQUIDITY", 5.0),
		MaxHolderConcentration:  getFloat64OrDefault("MAX_HOLDER_CONCENTRATION", 30.0),
		MaxTaxPct:               getFloat64OrDefault("MAX_TAX_PCT", 15.0),
		HighTaxPct:              getFloat64OrDefault("HIGH_TAX_PCT", 5.0),
		HighConcentrationPct:    getFloat64OrDefault("HIGH_CONCENTRATION_PCT", 20.0),
		SandwichImpactThreshold: getFloat64OrDefault("SANDWICH_IMPACT_THRESHOLD", 0.02),
		MaxTradeSize:            getFloat64OrDefault("MAX_TRADE_SIZE", 1.0),
		MaxTradeFraction:        getFloat64OrDefault("MAX_TRADE_FRACTION", 0.02),
		SnipeExpectedReturn:     getFloat64OrDefault("SNIPE_EXPECTED_RETURN", 0.25),
		CaptureRatio:            getFloat64OrDefault("CAPTURE_RATIO", 0.5),
		GasUnitsPerTx:           getIntOrDefault("GAS_UNITS_PER_TX", 250000),
		MinNetProfit:            getFloat64OrDefault("MIN_NET_PROFIT", 0.001),
		MarginWeight:            getFloat64OrDefault("MARGIN_WEIGHT", 0.6),
		PredictionWeight:        getFloat64OrDefault("PREDICTION_WEIGHT", 0.4),
		NoPredictionFactor:      getFloat64OrDefault("NO_PREDICTION_FACTOR", 0.8),

		// Pipeline defaults
		PipelineWorkers: getIntOrDefault("PIPELINE_WORKERS", 16),
		QueueCapacity:   getIntOrDefault("QUEUE_CAPACITY", 256),
		QueueMaxAge:     getDurationOrDefault("QUEUE_MAX_AGE", 12*time.Second),

		// Execution defaults
		SignerKeyHandle:         getEnvOrDefault("SIGNER_KEY_HANDLE", "hot"),
		SignerKeyEnv:            getEnvOrDefault("SIGNER_KEY_ENV", "ENGINE_PRIVATE_KEY"),
		ArbCompetitionThreshold: getIntOrDefault("ARB_COMPETITION_THRESHOLD", 3),
		AggressiveMultiplier:    getFloat64OrDefault("AGGRESSIVE_MULTIPLIER", 1.5),
		RelayURL:                os.Getenv("RELAY_URL"),
		RelayAuthKeyEnv:         getEnvOrDefault("RELAY_AUTH_KEY_ENV", "RELAY_AUTH_KEY"),
		RelayMinValue:           getFloat64OrDefault("RELAY_MIN_VALUE", 0.05),
		MaxCost:                 getFloat64OrDefault("EXEC_MAX_COST", 0.05),
		MaxCostFraction:         getFloat64OrDefault("EXEC_MAX_COST_FRACTION", 0.5),
		ExitMaxCost:             getFloat64OrDefault("EXEC_EXIT_MAX_COST", 0.02),
		RetryBudget:             getIntOrDefault("EXEC_RETRY_BUDGET", 2),
		EscalationMultiplier:    getFloat64OrDefault("EXEC_ESCALATION_MULTIPLIER", 1.25),
		InclusionTimeout:        getDurationOrDefault("EXEC_INCLUSION_TIMEOUT", 36*time.Second),
		SendTimeout:             getDurationOrDefault("EXEC_SEND_TIMEOUT", 10*time.Second),
		NonceTimeout:            getDurationOrDefault("EXEC_NONCE_TIMEOUT", 5*time.Second),
		ReceiptPollInitial:      getDurationOrDefault("EXEC_RECEIPT_POLL_INITIAL", 500*time.Millisecond),
		ReceiptPollMax:          getDurationOrDefault("EXEC_RECEIPT_POLL_MAX", 4*time.Second),
		SwapDeadline:            getDurationOrDefault("EXEC_SWAP_DEADLINE", 2*time.Minute),
		EntrySlippagePct:        getFloat64OrDefault("EXEC_ENTRY_SLIPPAGE_PCT", 10.0),
		ExitSlippagePct:         getFloat64OrDefault("EXEC_EXIT_SLIPPAGE_PCT", 5.0),

		// Circuit breaker defaults
		CircuitBreakerEnabled:         getBoolOrDefault("CIRCUIT_BREAKER_ENABLED", true),
		CircuitBreakerCheckInterval:   getDurationOrDefault("CIRCUIT_BREAKER_CHECK_INTERVAL", time.Minute),
		CircuitBreakerTradeMultiplier: getFloat64OrDefault("CIRCUIT_BREAKER_TRADE_MULTIPLIER", 3.0),
		CircuitBreakerMinAbsolute:     getFloat64OrDefault("CIRCUIT_BREAKER_MIN_ABSOLUTE", 0.1),
		CircuitBreakerHysteresisRatio: getFloat64OrDefault("CIRCUIT_BREAKER_HYSTERESIS_RATIO", 1.5),
		WalletPollInterval:            getDurationOrDefault("WALLET_POLL_INTERVAL", 30*time.Second),

		// Position defaults
		PositionPollInterval: getDurationOrDefault("POSITION_POLL_INTERVAL", 3*time.Second),
		PriceTimeout:         getDurationOrDefault("PRICE_TIMEOUT", 2*time.Second),
		TakeProfitStages:     stages,
		TrailPercent:         getFloat64OrDefault("TRAIL_PERCENT", 0),
		StopLossPercent:      getFloat64OrDefault("STOP_LOSS_PERCENT", 30),
		MaxExitFailures:      getIntOrDefault("POSITION_MAX_EXIT_FAILURES", 5),
		DustAmount:           getFloat64OrDefault("POSITION_DUST_AMOUNT", 1e-9),

		// Storage defaults
		StorageMode:  getEnvOrDefault("STORAGE_MODE", "console"),
		PostgresHost: getEnvOrDefault("POSTGRES_HOST", "localhost"),
		PostgresPort: getEnvOrDefault("POSTGRES_PORT", "5432"),
		PostgresUser: getEnvOrDefault("POSTGRES_USER", "engine"),
		PostgresPass: getEnvOrDefault("POSTGRES_PASSWORD", "engine"),
		PostgresDB:   getEnvOrDefault("POSTGRES_DB", "mempool_engine"),
		PostgresSSL:  getEnvOrDefault("POSTGRES_SSLMODE", "disable"),
	}

	err = cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks that configuration values are valid.
func (c *Config) Validate() error {
	if c.HTTPPort == "" {
		return fmt.Errorf("HTTP_PORT cannot be empty")
	}

	if c.ExecutionMode != "dry-run" && c.ExecutionMode != "live" {
		return fmt.Errorf("EXECUTION_MODE must be 'dry-run' or 'live', got %q", c.ExecutionMode)
	}

	if c.ChainID <= 0 {
		return fmt.Errorf("CHAIN_ID must be positive, got %d", c.ChainID)
	}

	if c.RPCURL == "" {
		return fmt.Errorf("RPC_URL cannot be empty")
	}

	if !common.IsHexAddress(c.WrappedNative) {
		return fmt.Errorf("WRAPPED_NATIVE is not an address: %q", c.WrappedNative)
	}

	for _, a := range c.BaseAssets {
		if !common.IsHexAddress(a) {
			return fmt.Errorf("BASE_ASSETS contains a non-address: %q", a)
		}
	}

	if len(c.Venues) == 0 {
		return fmt.Errorf("VENUE_ROUTERS cannot be empty")
	}

	if c.FeeWindowBlocks <= 0 {
		return fmt.Errorf("FEE_WINDOW_BLOCKS must be positive, got %d", c.FeeWindowBlocks)
	}

	if c.FeeCongestionFactor <= 1.0 {
		return fmt.Errorf("FEE_CONGESTION_FACTOR must be > 1.0, got %f", c.FeeCongestionFactor)
	}

	if c.FeeFloorTipGwei <= 0 {
		return fmt.Errorf("FEE_FLOOR_TIP_GWEI must be positive, got %f", c.FeeFloorTipGwei)
	}

	if c.IntentTTL <= 0 {
		return fmt.Errorf("INTENT_TTL must be positive")
	}

	if c.PipelineWorkers <= 0 {
		return fmt.Errorf("PIPELINE_WORKERS must be positive, got %d", c.PipelineWorkers)
	}

	if c.RetryBudget < 1 {
		return fmt.Errorf("EXEC_RETRY_BUDGET must be >= 1, got %d", c.RetryBudget)
	}

	if c.EscalationMultiplier < 1.1 {
		return fmt.Errorf("EXEC_ESCALATION_MULTIPLIER must be >= 1.1 to replace a pending transaction, got %f", c.EscalationMultiplier)
	}

	if c.MaxCost <= 0 || c.ExitMaxCost <= 0 {
		return fmt.Errorf("EXEC_MAX_COST and EXEC_EXIT_MAX_COST must be positive")
	}

	if c.MaxCostFraction <= 0 || c.MaxCostFraction > 1 {
		return fmt.Errorf("EXEC_MAX_COST_FRACTION must be in (0, 1], got %f", c.MaxCostFraction)
	}

	if c.EntrySlippagePct < 0 || c.EntrySlippagePct >= 100 || c.ExitSlippagePct < 0 || c.ExitSlippagePct >= 100 {
		return fmt.Errorf("EXEC_ENTRY_SLIPPAGE_PCT and EXEC_EXIT_SLIPPAGE_PCT must be in [0, 100)")
	}

	if c.InclusionTimeout <= 0 || c.SendTimeout <= 0 || c.NonceTimeout <= 0 {
		return fmt.Errorf("EXEC_INCLUSION_TIMEOUT, EXEC_SEND_TIMEOUT and EXEC_NONCE_TIMEOUT must be positive")
	}

	if c.PositionPollInterval <= 0 {
		return fmt.Errorf("POSITION_POLL_INTERVAL must be positive")
	}

	if c.PriceTimeout <= 0 {
		return fmt.Errorf("PRICE_TIMEOUT must be positive")
	}

	if c.StopLossPercent < 0 || c.StopLossPercent >= 100 {
		return fmt.Errorf("STOP_LOSS_PERCENT must be in [0, 100), got %f", c.StopLossPercent)
	}

	if c.TrailPercent < 0 || c.TrailPercent >= 100 {
		return fmt.Errorf("TRAIL_PERCENT must be in [0, 100), got %f", c.TrailPercent)
	}

	err := ValidateStages(c.TakeProfitStages)
	if err != nil {
		return fmt.Errorf("TP_STAGES: %w", err)
	}

	if c.StorageMode != "postgres" && c.StorageMode != "console" && c.StorageMode != "memory" {
		return fmt.Errorf("STORAGE_MODE must be 'postgres', 'console' or 'memory', got %q", c.StorageMode)
	}

	return nil
}

// ParseStages parses a take-profit table such as "1.5:25,3:50" (multiplier:percent).
// Stages are returned sorted by ascending multiplier.
func ParseStages(s string) ([]types.TakeProfitStage, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	parts := strings.Split(s, ",")
	stages := make([]types.TakeProfitStage, 0, len(parts))
	for _, part := range parts {
		mult, pct, ok := strings.Cut(strings.TrimSpace(part), ":")
		if !ok {
			return nil, fmt.Errorf("stage %q: expected multiplier:percent", part)
		}

		m, err := strconv.ParseFloat(strings.TrimSpace(mult), 64)
		if err != nil {
			return nil, fmt.Errorf("stage %q multiplier: %w", part, err)
		}

		p, err := strconv.ParseFloat(strings.TrimSpace(pct), 64)
		if err != nil {
			return nil, fmt.Errorf("stage %q percent: %w", part, err)
		}

		stages = append(stages, types.TakeProfitStage{Multiplier: m, Percent: p})
	}

	sort.Slice(stages, func(i, j int) bool {
		return stages[i].Multiplier < stages[j].Multiplier
	})

	return stages, ValidateStages(stages)
}

// ValidateStages checks multipliers are above 1, distinct, and that the
// percentages never sum past the full original amount.
func ValidateStages(stages []types.TakeProfitStage) error {
	total := 0.0
	for i, st := range stages {
		if st.Multiplier <= 1.0 {
			return fmt.Errorf("stage %d multiplier must be > 1.0, got %f", i, st.Multiplier)
		}
		if st.Percent <= 0 || st.Percent > 100 {
			return fmt.Errorf("stage %d percent must be in (0, 100], got %f", i, st.Percent)
		}
		if i > 0 && st.Multiplier <= stages[i-1].Multiplier {
			return fmt.Errorf("stage %d multiplier must be greater than stage %d", i, i-1)
		}
		total += st.Percent
	}

	if total > 100.0+1e-9 {
		return fmt.Errorf("stage percentages sum to %f, must be <= 100", total)
	}

	return nil
}

// ParseVenues parses "0xrouter=name,0xrouter2=name2".
func ParseVenues(s string) (map[string]string, error) {
	venues := make(map[string]string)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		addr, name, ok := strings.Cut(part, "=")
		if !ok || !common.IsHexAddress(addr) || name == "" {
			return nil, fmt.Errorf("venue %q: expected 0xaddress=name", part)
		}
		venues[common.HexToAddress(addr).Hex()] = name
	}
	return venues, nil
}

func parseIntList(s string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("value %q: %w", part, err)
		}
		if v <= 0 || v > 100 {
			return nil, fmt.Errorf("value %d out of range (0, 100]", v)
		}
		out = append(out, v)
	}
	sort.Ints(out)
	return out, nil
}

func getEnvOrDefault(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intVal, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return intVal
}

func getFloat64OrDefault(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	floatVal, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}

	return floatVal
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}

	return duration
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	boolVal, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}

	return boolVal
}

func getListOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var out []string
	for _, item := range strings.Split(value, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}
