package app

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/mselser95/mempool-engine/internal/chain"
	"github.com/mselser95/mempool-engine/internal/circuitbreaker"
	"github.com/mselser95/mempool-engine/internal/decoder"
	"github.com/mselser95/mempool-engine/internal/execution"
	"github.com/mselser95/mempool-engine/internal/feemarket"
	"github.com/mselser95/mempool-engine/internal/manipulation"
	"github.com/mselser95/mempool-engine/internal/mempool"
	"github.com/mselser95/mempool-engine/internal/pipeline"
	"github.com/mselser95/mempool-engine/internal/position"
	"github.com/mselser95/mempool-engine/internal/prediction"
	"github.com/mselser95/mempool-engine/internal/scoring"
	"github.com/mselser95/mempool-engine/internal/storage"
	"github.com/mselser95/mempool-engine/internal/tokens"
	"github.com/mselser95/mempool-engine/pkg/cache"
	"github.com/mselser95/mempool-engine/pkg/config"
	"github.com/mselser95/mempool-engine/pkg/events"
	"github.com/mselser95/mempool-engine/pkg/healthprobe"
	"github.com/mselser95/mempool-engine/pkg/httpserver"
	"github.com/mselser95/mempool-engine/pkg/types"
	"github.com/mselser95/mempool-engine/pkg/wallet"
	"github.com/mselser95/mempool-engine/pkg/websocket"
	"go.uber.org/zap"
)

const (
	relayKeyHandle   = "relay"
	eventRingSize    = 512
	memoryAuditLimit = 4096
	priceProbeTokens = 1.0
)

// New creates a new application instance. Missing required collaborators are
// reported as fatal configuration errors.
func New(cfg *config.Config, logger *zap.Logger, opts *Options) (*App, error) {
	if opts == nil {
		opts = &Options{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := &App{
		cfg:    cfg,
		opts:   opts,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}

	err := a.setup()
	if err != nil {
		a.release()
		cancel()
		return nil, err
	}

	return a, nil
}

func (a *App) setup() error {
	cfg, logger := a.cfg, a.logger
	wrapped := common.HexToAddress(cfg.WrappedNative)

	a.healthChecker = setupHealthChecker()

	rpc, err := ethclient.DialContext(a.ctx, cfg.RPCURL)
	if err != nil {
		return types.NewFatalConfigError("dial rpc node", err)
	}
	a.rpc = rpc

	safetyCache, err := setupCache("token-safety", 10_000, logger)
	if err != nil {
		return fmt.Errorf("setup safety cache: %w", err)
	}
	blacklistCache, err := setupCache("token-blacklist", 50_000, logger)
	if err != nil {
		return fmt.Errorf("setup blacklist cache: %w", err)
	}
	dedupCache, err := setupCache("stream-dedup", 200_000, logger)
	if err != nil {
		return fmt.Errorf("setup dedup cache: %w", err)
	}
	a.caches = []cache.Cache{safetyCache, blacklistCache, dedupCache}

	a.bus, err = events.New(eventRingSize, logger)
	if err != nil {
		return fmt.Errorf("setup event bus: %w", err)
	}

	a.storage, err = setupStorage(a.ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("setup storage: %w", err)
	}

	a.fees, err = feemarket.New(&feemarket.Config{
		WindowBlocks:     cfg.FeeWindowBlocks,
		Percentiles:      cfg.FeePercentiles,
		CongestionFactor: cfg.FeeCongestionFactor,
		CongestionBoost:  cfg.FeeCongestionBoost,
		FloorTipGwei:     cfg.FeeFloorTipGwei,
		Logger:           logger,
	})
	if err != nil {
		return fmt.Errorf("setup fee tracker: %w", err)
	}

	detector, err := setupManipulationDetector(cfg, logger)
	if err != nil {
		return fmt.Errorf("setup manipulation detector: %w", err)
	}

	a.scorer, err = scoring.New(ScoringConfig(cfg), scoring.Dependencies{
		Fees:         a.fees,
		Manipulation: detector,
		Audit:        a.storage,
		BaseAsset:    wrapped,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("setup scorer: %w", err)
	}

	queue := scoring.NewQueue(cfg.QueueCapacity, cfg.QueueMaxAge)

	a.watcher, err = setupBlockWatcher(cfg, logger)
	if err != nil {
		return fmt.Errorf("setup block watcher: %w", err)
	}

	a.streamPool, err = setupStreamPool(cfg, logger, dedupCache)
	if err != nil {
		return fmt.Errorf("setup stream pool: %w", err)
	}

	a.pipeline, err = setupPipeline(cfg, logger, pipelineDeps{
		window:    mempool.New(&mempool.Config{TTL: cfg.IntentTTL, MaxPerToken: cfg.IntentMaxPerToken, Logger: logger}),
		safety:    tokens.NewCachedSafetyClient(tokens.NewSafetyClient(cfg.SafetyAPIURL, cfg.SafetyTimeout), safetyCache, cfg.SafetyCacheTTL),
		blacklist: tokens.NewBlacklist(blacklistCache, cfg.BlacklistTTL, logger),
		scorer:    a.scorer,
		queue:     queue,
		fees:      a.fees,
		detector:  detector,
		events:    a.bus,
	})
	if err != nil {
		return fmt.Errorf("setup pipeline: %w", err)
	}

	signer, err := setupSigner(cfg, logger)
	if err != nil {
		return err
	}

	err = a.setupExecution(signer, queue, wrapped)
	if err != nil {
		return err
	}

	a.httpServer = setupHTTPServer(cfg, logger, a.healthChecker, a)
	a.registerReadinessChecks()

	return nil
}

func setupHealthChecker() *healthprobe.HealthChecker {
	return healthprobe.New()
}

func setupHTTPServer(cfg *config.Config, logger *zap.Logger, hc *healthprobe.HealthChecker, a *App) *httpserver.Server {
	return httpserver.New(&httpserver.Config{
		Port:          cfg.HTTPPort,
		Logger:        logger,
		HealthChecker: hc,
		Fees:          a.fees,
		Positions:     a.positions,
		Events:        a.bus,
		KillSwitch:    a.killSwitch,
	})
}

func (a *App) registerReadinessChecks() {
	a.healthChecker.AddCheck("fee-data", func() error {
		if !a.fees.HasData() {
			return errors.New("no block fees observed yet")
		}
		return nil
	})
	a.healthChecker.AddCheck("pending-stream", func() error {
		if !a.streamPool.Connected() {
			return errors.New("no pending-transaction endpoint connected")
		}
		return nil
	})
	a.healthChecker.AddCheck("block-heads", func() error {
		if !a.watcher.Connected() {
			return errors.New("new-head subscription down")
		}
		return nil
	})
}

func setupCache(name string, maxItems int64, logger *zap.Logger) (cache.Cache, error) {
	store, err := cache.NewStore(&cache.Options{Name: name, MaxItems: maxItems, Logger: logger})
	if err != nil {
		return nil, err
	}
	return store, nil
}

func setupStorage(ctx context.Context, cfg *config.Config, logger *zap.Logger) (storage.AuditLog, error) {
	switch cfg.StorageMode {
	case "postgres":
		pgStorage, err := storage.NewPostgresStorage(&storage.PostgresConfig{
			Host:     cfg.PostgresHost,
			Port:     cfg.PostgresPort,
			User:     cfg.PostgresUser,
			Password: cfg.PostgresPass,
			Database: cfg.PostgresDB,
			SSLMode:  cfg.PostgresSSL,
			Logger:   logger,
		})
		if err != nil {
			return nil, fmt.Errorf("create postgres storage: %w", err)
		}
		err = pgStorage.EnsureSchema(ctx)
		if err != nil {
			_ = pgStorage.Close()
			return nil, err
		}
		return pgStorage, nil
	case "memory":
		return storage.NewMemoryStorage(memoryAuditLimit), nil
	}

	return storage.NewConsoleStorage(logger), nil
}

func setupManipulationDetector(cfg *config.Config, logger *zap.Logger) (*manipulation.Detector, error) {
	var clusters manipulation.ClusterSource
	if cfg.ManipClusterFile != "" {
		static, err := manipulation.LoadStaticClusters(cfg.ManipClusterFile)
		if err != nil {
			return nil, fmt.Errorf("load clusters: %w", err)
		}
		clusters = static
	}

	return manipulation.New(&manipulation.Config{
		CoordinationThreshold: cfg.ManipCoordinationThreshold,
		MinIntents:            cfg.ManipMinIntents,
		WindowBlocks:          uint64(cfg.ManipWindowBlocks), //nolint:gosec // validated positive
		AlertThreshold:        cfg.ManipFlagThreshold,
		Weights: manipulation.Weights{
			Coordination:  cfg.ManipWeightCoordination,
			Concentration: cfg.ManipWeightConcentration,
			Direction:     cfg.ManipWeightDirection,
		},
		Clusters: clusters,
		Logger:   logger,
	})
}

func reconnectConfig(cfg *config.Config) websocket.ReconnectConfig {
	return websocket.ReconnectConfig{
		InitialDelay:      cfg.WSReconnectInitialDelay,
		MaxDelay:          cfg.WSReconnectMaxDelay,
		BackoffMultiplier: cfg.WSReconnectBackoffMult,
		JitterPercent:     0.2,
	}
}

func setupBlockWatcher(cfg *config.Config, logger *zap.Logger) (*chain.Watcher, error) {
	url := cfg.HeadsWSURL
	return chain.New(&chain.Config{
		Dial: func(ctx context.Context) (chain.Client, error) {
			client, err := ethclient.DialContext(ctx, url)
			if err != nil {
				return nil, err
			}
			return client, nil
		},
		Reconnect: reconnectConfig(cfg),
		Logger:    logger.Named("chain"),
	})
}

func setupStreamPool(cfg *config.Config, logger *zap.Logger, dedup cache.Cache) (*websocket.Pool, error) {
	return websocket.NewPool(websocket.PoolConfig{
		URLs:                  cfg.PendingFeedURLs,
		SubscribeMethod:       cfg.PendingSubMethod,
		FullTransactions:      true,
		DialTimeout:           cfg.WSDialTimeout,
		PongTimeout:           cfg.WSPongTimeout,
		PingInterval:          cfg.WSPingInterval,
		ReconnectInitialDelay: cfg.WSReconnectInitialDelay,
		ReconnectMaxDelay:     cfg.WSReconnectMaxDelay,
		ReconnectBackoffMult:  cfg.WSReconnectBackoffMult,
		MessageBufferSize:     cfg.WSMessageBufferSize,
		Dedup:                 dedup,
		DedupTTL:              cfg.IntentTTL,
		Logger:                logger.Named("stream"),
	})
}

type pipelineDeps struct {
	window    *mempool.Window
	safety    pipeline.SafetySource
	blacklist pipeline.Blacklist
	scorer    *scoring.Scorer
	queue     *scoring.Queue
	fees      *feemarket.Tracker
	detector  *manipulation.Detector
	events    events.Publisher
}

func setupPipeline(cfg *config.Config, logger *zap.Logger, deps pipelineDeps) (*pipeline.Pipeline, error) {
	base := make([]common.Address, 0, len(cfg.BaseAssets))
	for _, s := range cfg.BaseAssets {
		base = append(base, common.HexToAddress(s))
	}

	venues := make(map[common.Address]string, len(cfg.Venues))
	for router, name := range cfg.Venues {
		venues[common.HexToAddress(router)] = name
	}

	pcfg := &pipeline.Config{
		Decoder: decoder.New(&decoder.Config{
			ChainID:       big.NewInt(cfg.ChainID),
			Venues:        venues,
			BaseAssets:    base,
			WrappedNative: common.HexToAddress(cfg.WrappedNative),
		}),
		Window:       deps.window,
		Safety:       deps.safety,
		Scorer:       deps.scorer,
		Queue:        deps.queue,
		Blacklist:    deps.blacklist,
		Fees:         deps.fees,
		Manipulation: deps.detector,
		Events:       deps.events,
		Workers:      cfg.PipelineWorkers,
		Logger:       logger.Named("pipeline"),
	}

	if cfg.PredictionURL != "" {
		pcfg.Predictor = prediction.NewClient(cfg.PredictionURL, cfg.PredictionTimeout, logger)
	}

	return pipeline.New(pcfg)
}

// setupSigner loads the signing keys. A dry run without keys signs with
// throwaway keys so plans are still built and signed end to end.
func setupSigner(cfg *config.Config, logger *zap.Logger) (wallet.Signer, error) {
	chainID := big.NewInt(cfg.ChainID)

	handles := map[string]string{cfg.SignerKeyHandle: cfg.SignerKeyEnv}
	if cfg.RelayURL != "" {
		handles[relayKeyHandle] = cfg.RelayAuthKeyEnv
	}

	signer, err := wallet.NewLocalSigner(chainID, handles)
	if err == nil {
		return signer, nil
	}
	if cfg.ExecutionMode == "live" || !errors.Is(err, wallet.ErrMissingKey) {
		return nil, types.NewFatalConfigError("load signing keys", err)
	}

	keys := make(map[string]*ecdsa.PrivateKey, len(handles))
	for handle := range handles {
		key, genErr := crypto.GenerateKey()
		if genErr != nil {
			return nil, fmt.Errorf("generate dry-run key: %w", genErr)
		}
		keys[handle] = key
	}

	logger.Warn("signer-ephemeral-keys",
		zap.String("mode", cfg.ExecutionMode),
		zap.String("note", "signing keys not set, dry run signs with throwaway keys"))

	return wallet.NewLocalSignerFromKeys(chainID, keys), nil
}

func (a *App) setupExecution(signer wallet.Signer, queue *scoring.Queue, wrapped common.Address) error {
	cfg, logger := a.cfg, a.logger
	dryRun := cfg.ExecutionMode == "dry-run"

	var relay execution.BundleRelay
	if cfg.RelayURL != "" {
		client, err := execution.NewRelayClient(cfg.RelayURL, cfg.WSDialTimeout, signer, relayKeyHandle, logger)
		if err != nil {
			return types.NewFatalConfigError("setup bundle relay", err)
		}
		relay = client
	}

	nonces := execution.NewNonceManager(a.rpc, cfg.NonceTimeout)

	planner, err := execution.NewPlanner(execution.PlannerConfig{
		KeyHandle:               cfg.SignerKeyHandle,
		BaseAsset:               wrapped,
		GasLimit:                uint64(cfg.GasUnitsPerTx), //nolint:gosec // validated positive
		AggressiveMultiplier:    cfg.AggressiveMultiplier,
		ArbCompetitionThreshold: cfg.ArbCompetitionThreshold,
		RelayEnabled:            relay != nil,
		RelayMinValue:           cfg.RelayMinValue,
		MaxCost:                 cfg.MaxCost,
		MaxCostFraction:         cfg.MaxCostFraction,
		ExitMaxCost:             cfg.ExitMaxCost,
		SwapDeadline:            cfg.SwapDeadline,
		EntrySlippagePct:        cfg.EntrySlippagePct,
		ExitSlippagePct:         cfg.ExitSlippagePct,
		Logger:                  logger,
	}, a.fees, signer, nonces)
	if err != nil {
		return fmt.Errorf("setup planner: %w", err)
	}

	a.killSwitch = execution.NewKillSwitch(logger)

	submitter, err := execution.NewSubmitter(execution.SubmitterConfig{
		ChainID:              big.NewInt(cfg.ChainID),
		RetryBudget:          cfg.RetryBudget,
		EscalationMultiplier: cfg.EscalationMultiplier,
		InclusionTimeout:     cfg.InclusionTimeout,
		SendTimeout:          cfg.SendTimeout,
		DryRun:               dryRun,
		Signer:               signer,
		Fees:                 a.fees,
		Broadcaster:          a.rpc,
		Relay:                relay,
		Waiter: execution.NewInclusionWaiter(a.rpc, logger, &execution.InclusionConfig{
			InitialBackoff: cfg.ReceiptPollInitial,
			MaxBackoff:     cfg.ReceiptPollMax,
			BackoffMult:    2,
		}),
		Heads:      a.watcher,
		Nonces:     nonces,
		KillSwitch: a.killSwitch,
		Audit:      a.storage,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("setup submitter: %w", err)
	}

	walletClient, err := wallet.NewClient(cfg.RPCURL, wrapped, logger)
	if err != nil {
		return fmt.Errorf("setup wallet client: %w", err)
	}

	var gate execution.TradeGate
	if cfg.CircuitBreakerEnabled && !dryRun {
		a.breaker, err = circuitbreaker.New(&circuitbreaker.Config{
			CheckInterval:   cfg.CircuitBreakerCheckInterval,
			TradeMultiplier: cfg.CircuitBreakerTradeMultiplier,
			MinAbsolute:     cfg.CircuitBreakerMinAbsolute,
			HysteresisRatio: cfg.CircuitBreakerHysteresisRatio,
			WalletClient:    walletClient,
			Address:         planner.Signer(),
			Logger:          logger,
		})
		if err != nil {
			return fmt.Errorf("create circuit breaker: %w", err)
		}
		gate = a.breaker
	}

	a.executor, err = execution.New(&execution.Config{
		Planner:   planner,
		Submitter: submitter,
		Queue:     queue,
		Gate:      gate,
		Events:    a.bus,
		Wrapped:   wrapped,
		Logger:    logger.Named("executor"),
	})
	if err != nil {
		return fmt.Errorf("setup executor: %w", err)
	}

	a.positions, err = position.New(&position.Config{
		Policy:       PositionPolicy(cfg),
		PollInterval: cfg.PositionPollInterval,
		PriceTimeout: cfg.PriceTimeout,
		Prices:       tokens.NewPriceClient(a.rpc, wrapped, priceProbeTokens),
		Exits:        a.executor,
		Events:       a.bus,
		Logger:       logger.Named("positions"),
	})
	if err != nil {
		return fmt.Errorf("setup position manager: %w", err)
	}
	a.executor.SetPositions(a.positions)

	a.walletTracker, err = wallet.New(&wallet.Config{
		Client:       walletClient,
		Positions:    a.positions,
		Address:      planner.Signer(),
		PollInterval: cfg.WalletPollInterval,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("setup wallet tracker: %w", err)
	}

	return nil
}

// ScoringConfig maps configuration onto the scorer's risk surface.
func ScoringConfig(cfg *config.Config) scoring.Config {
	return scoring.Config{
		MinLiquidity:              cfg.MinLiquidity,
		MaxHolderConcentration:    cfg.MaxHolderConcentration,
		MaxTaxPct:                 cfg.MaxTaxPct,
		HighTaxPct:                cfg.HighTaxPct,
		HighConcentrationPct:      cfg.HighConcentrationPct,
		ManipulationFlagThreshold: cfg.ManipFlagThreshold,
		SandwichImpactThreshold:   cfg.SandwichImpactThreshold,
		MaxTradeSize:              cfg.MaxTradeSize,
		MaxTradeFraction:          cfg.MaxTradeFraction,
		SnipeExpectedReturn:       cfg.SnipeExpectedReturn,
		CaptureRatio:              cfg.CaptureRatio,
		GasUnitsPerTx:             uint64(cfg.GasUnitsPerTx), //nolint:gosec // validated positive
		MinNetProfit:              cfg.MinNetProfit,
		MarginWeight:              cfg.MarginWeight,
		PredictionWeight:          cfg.PredictionWeight,
		NoPredictionFactor:        cfg.NoPredictionFactor,
		ArbCompetitionThreshold:   cfg.ArbCompetitionThreshold,
	}
}

// PositionPolicy maps configuration onto the position exit policy.
func PositionPolicy(cfg *config.Config) position.Policy {
	return position.Policy{
		Stages:          cfg.TakeProfitStages,
		TrailPercent:    cfg.TrailPercent,
		StopLossPercent: cfg.StopLossPercent,
		MaxExitFailures: cfg.MaxExitFailures,
		Dust:            cfg.DustAmount,
	}
}
