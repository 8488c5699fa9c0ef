package app

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/mselser95/mempool-engine/pkg/config"
	"go.uber.org/zap"
)

// Reload re-reads the environment and applies the risk surface and exit
// policy. Nothing changes unless both validate. Connections, keys and the
// execution mode are fixed for the life of the process.
func (a *App) Reload() {
	a.reloadMu.Lock()
	defer a.reloadMu.Unlock()

	err := a.reload()
	if err != nil {
		a.logger.Warn("config-reload-rejected", zap.Error(err))
		return
	}

	a.logger.Info("config-reloaded")
}

func (a *App) reload() error {
	if len(a.opts.EnvFiles) > 0 {
		err := godotenv.Overload(a.opts.EnvFiles...)
		if err != nil {
			return fmt.Errorf("read env files: %w", err)
		}
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	scoringCfg := ScoringConfig(cfg)
	err = scoringCfg.Validate()
	if err != nil {
		return fmt.Errorf("validate scoring config: %w", err)
	}

	policy := PositionPolicy(cfg)
	err = policy.Validate()
	if err != nil {
		return fmt.Errorf("validate position policy: %w", err)
	}

	err = a.scorer.Reconfigure(scoringCfg)
	if err != nil {
		return err
	}

	return a.positions.Reconfigure(policy)
}
