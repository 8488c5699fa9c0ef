package app

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/mselser95/mempool-engine/internal/chain"
	"github.com/mselser95/mempool-engine/internal/circuitbreaker"
	"github.com/mselser95/mempool-engine/internal/execution"
	"github.com/mselser95/mempool-engine/internal/feemarket"
	"github.com/mselser95/mempool-engine/internal/pipeline"
	"github.com/mselser95/mempool-engine/internal/position"
	"github.com/mselser95/mempool-engine/internal/scoring"
	"github.com/mselser95/mempool-engine/internal/storage"
	"github.com/mselser95/mempool-engine/pkg/cache"
	"github.com/mselser95/mempool-engine/pkg/config"
	"github.com/mselser95/mempool-engine/pkg/events"
	"github.com/mselser95/mempool-engine/pkg/healthprobe"
	"github.com/mselser95/mempool-engine/pkg/httpserver"
	"github.com/mselser95/mempool-engine/pkg/wallet"
	"github.com/mselser95/mempool-engine/pkg/websocket"
	"go.uber.org/zap"
)

// App is the main application orchestrator.
type App struct {
	cfg           *config.Config
	opts          *Options
	logger        *zap.Logger
	healthChecker *healthprobe.HealthChecker
	httpServer    *httpserver.Server
	rpc           *ethclient.Client
	caches        []cache.Cache
	bus           *events.Bus
	storage       storage.AuditLog
	fees          *feemarket.Tracker
	scorer        *scoring.Scorer
	watcher       *chain.Watcher
	streamPool    *websocket.Pool
	pipeline      *pipeline.Pipeline
	breaker       *circuitbreaker.BalanceCircuitBreaker
	walletTracker *wallet.Tracker
	killSwitch    *execution.KillSwitch
	executor      *execution.Executor
	positions     *position.Manager
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	shutdownOnce  sync.Once
	reloadMu      sync.Mutex
}

// Options holds application options.
type Options struct {
	EnvFiles []string // re-read on SIGHUP
}
