package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mselser95/mempool-engine/pkg/config"
	"github.com/mselser95/mempool-engine/pkg/healthprobe"
	"github.com/mselser95/mempool-engine/pkg/httpserver"
	"github.com/mselser95/mempool-engine/pkg/wallet"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

//nolint:gochecknoglobals // Cobra boilerplate
var trackBalanceCmd = &cobra.Command{
	Use:   "track-balance",
	Short: "Track the signer's balances with Prometheus metrics",
	Long: `Continuously monitors the signer wallet without running the engine and
exposes metrics via HTTP.

Metrics exposed at http://localhost:<port>/metrics:
- mempool_engine_wallet_native_balance
- mempool_engine_wallet_wrapped_balance
- mempool_engine_wallet_open_positions

Example usage:
  track-balance                     # Poll every WALLET_POLL_INTERVAL
  track-balance --interval 10s      # Poll every 10 seconds
  track-balance --port 8081         # Use custom port`,
	RunE: runTrackBalance,
}

//nolint:gochecknoglobals // Cobra boilerplate
var (
	trackInterval time.Duration
	trackPort     string
	trackAddress  string
)

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(trackBalanceCmd)

	trackBalanceCmd.Flags().DurationVarP(&trackInterval, "interval", "i", 0,
		"Polling interval, defaults to WALLET_POLL_INTERVAL")
	trackBalanceCmd.Flags().StringVarP(&trackPort, "port", "p",
		"8081", "HTTP server port for /metrics endpoint")
	trackBalanceCmd.Flags().StringVarP(&trackAddress, "address", "a", "",
		"Address to track instead of the signer")
}

func runTrackBalance(_ *cobra.Command, _ []string) (err error) {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	address, err := resolveAddress(cfg, trackAddress)
	if err != nil {
		return err
	}

	interval := trackInterval
	if interval <= 0 {
		interval = cfg.WalletPollInterval
	}

	logger, err := config.NewLogger()
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	tracker, server, err := createTrackerComponents(cfg, address, interval, logger)
	if err != nil {
		return fmt.Errorf("create components: %w", err)
	}

	return runWithGracefulShutdown(tracker, server, logger)
}

func createTrackerComponents(
	cfg *config.Config,
	address common.Address,
	interval time.Duration,
	logger *zap.Logger,
) (tracker *wallet.Tracker, server *httpserver.Server, err error) {
	client, err := wallet.NewClient(cfg.RPCURL, common.HexToAddress(cfg.WrappedNative), logger)
	if err != nil {
		return nil, nil, fmt.Errorf("create wallet client: %w", err)
	}

	tracker, err = wallet.New(&wallet.Config{
		Client:       client,
		Address:      address,
		PollInterval: interval,
		Logger:       logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create tracker: %w", err)
	}

	healthChecker := healthprobe.New()
	healthChecker.SetReady(true)
	server = httpserver.New(&httpserver.Config{
		Port:          trackPort,
		Logger:        logger,
		HealthChecker: healthChecker,
	})

	return tracker, server, nil
}

func runWithGracefulShutdown(tracker *wallet.Tracker, server *httpserver.Server, logger *zap.Logger) (err error) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 2)

	go func() {
		startErr := server.Start()
		if startErr != nil {
			errCh <- fmt.Errorf("http server: %w", startErr)
		}
	}()

	go func() {
		runErr := tracker.Run(ctx)
		if runErr != nil && !errors.Is(runErr, context.Canceled) {
			errCh <- fmt.Errorf("tracker: %w", runErr)
		}
	}()

	logger.Info("wallet-tracker-running",
		zap.String("metrics-url", fmt.Sprintf("http://localhost:%s/metrics", trackPort)))

	select {
	case <-sigCh:
		logger.Info("shutdown-signal-received")
	case err = <-errCh:
		logger.Error("component-error", zap.Error(err))
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	shutdownErr := server.Shutdown(shutdownCtx)
	if shutdownErr != nil {
		logger.Error("http-server-shutdown-failed", zap.Error(shutdownErr))
	}

	logger.Info("wallet-tracker-stopped")
	return err
}
