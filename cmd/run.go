package cmd

import (
	"fmt"

	"github.com/mselser95/mempool-engine/internal/app"
	"github.com/mselser95/mempool-engine/pkg/config"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the engine",
	Long: `Starts the mempool engine, which will:
1. Subscribe to pending transactions on every PENDING_FEED_URLS endpoint
2. Follow new block heads for fee estimation and confirmations
3. Score opportunities per token (snipe, backrun, arbitrage, sandwich)
4. Plan and submit the best ones (dry-run signs but never broadcasts)
5. Manage open positions through staged take-profit and stop-loss exits

Send SIGHUP to reload the risk surface and exit policy from the env files.`,
	RunE: runEngine,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().String("mode", "", "Override EXECUTION_MODE (dry-run or live)")
}

func runEngine(cmd *cobra.Command, _ []string) error {
	// Load config
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	mode, _ := cmd.Flags().GetString("mode")
	if mode != "" {
		cfg.ExecutionMode = mode
		err = cfg.Validate()
		if err != nil {
			return fmt.Errorf("validate config: %w", err)
		}
	}

	// Create logger
	logger, err := config.NewLogger()
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	application, err := app.New(cfg, logger, &app.Options{EnvFiles: envFiles})
	if err != nil {
		return fmt.Errorf("create app: %w", err)
	}

	// Run app
	err = application.Run()
	if err != nil {
		return fmt.Errorf("run app: %w", err)
	}

	return nil
}
