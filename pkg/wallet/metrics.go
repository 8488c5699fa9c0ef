package wallet

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics
var (
	// NativeBalance tracks the signer's native balance used for entries and gas.
	NativeBalance = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mempool_engine_wallet_native_balance",
		Help: "Current native balance of the signer",
	})

	// WrappedBalance tracks the signer's wrapped-native balance.
	WrappedBalance = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mempool_engine_wallet_wrapped_balance",
		Help: "Current wrapped-native balance of the signer",
	})

	// OpenPositions tracks the number of positions being managed.
	OpenPositions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mempool_engine_wallet_open_positions",
		Help: "Number of open positions",
	})

	// PositionCostBasis tracks the entry value of the remaining amounts.
	PositionCostBasis = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mempool_engine_wallet_position_cost_basis",
		Help: "Entry value of remaining position amounts (base asset)",
	})

	// PositionMarkValue tracks the last-price value of the remaining amounts.
	PositionMarkValue = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mempool_engine_wallet_position_mark_value",
		Help: "Last-price value of remaining position amounts (base asset)",
	})

	// UnrealizedPnL tracks mark value minus cost basis.
	UnrealizedPnL = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mempool_engine_wallet_unrealized_pnl",
		Help: "Unrealized P&L of open positions (base asset)",
	})

	// PortfolioValue tracks native plus wrapped balance plus mark value.
	PortfolioValue = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mempool_engine_wallet_portfolio_value",
		Help: "Native + wrapped balance + position mark value (base asset)",
	})

	// UpdateErrorsTotal tracks the number of failed update attempts.
	UpdateErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mempool_engine_wallet_update_errors_total",
		Help: "Total number of failed wallet update attempts",
	})

	// UpdateDuration tracks the time taken to fetch wallet data.
	UpdateDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mempool_engine_wallet_update_duration_seconds",
		Help:    "Time taken to fetch wallet data (seconds)",
		Buckets: prometheus.DefBuckets,
	})

	// LastUpdateTimestamp tracks the Unix timestamp of the last successful update.
	LastUpdateTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mempool_engine_wallet_last_update_timestamp",
		Help: "Unix timestamp of last successful wallet update",
	})
)
