package app

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Run starts the application and blocks until shutdown.
func (a *App) Run() error {
	a.logger.Info("application-starting",
		zap.String("mode", a.cfg.ExecutionMode),
		zap.Int64("chain-id", a.cfg.ChainID),
		zap.Int("pending-feeds", len(a.cfg.PendingFeedURLs)),
		zap.String("log-level", a.cfg.LogLevel))

	// Start all components
	err := a.startComponents()
	if err != nil {
		_ = a.Shutdown()
		return err
	}

	// Mark as ready
	a.healthChecker.SetReady(true)

	a.logger.Info("application-ready",
		zap.String("http-addr", ":"+a.cfg.HTTPPort),
		zap.String("storage", a.cfg.StorageMode))

	// Wait for shutdown signal
	return a.waitForShutdown()
}

func (a *App) startComponents() error {
	// Start HTTP server
	a.wg.Add(1)
	go a.runHTTPServer()

	// Give HTTP server a moment to start
	time.Sleep(100 * time.Millisecond)

	err := a.watcher.Start(a.ctx)
	if err != nil {
		return fmt.Errorf("start block watcher: %w", err)
	}

	err = a.streamPool.Start()
	if err != nil {
		return fmt.Errorf("start pending stream: %w", err)
	}

	a.wg.Add(1)
	go a.runPipeline()

	if a.breaker != nil {
		a.breaker.Start(a.ctx)
	}

	a.wg.Add(1)
	go a.runWalletTracker()

	err = a.executor.Start(a.ctx)
	if err != nil {
		return fmt.Errorf("start executor: %w", err)
	}

	err = a.positions.Start(a.ctx)
	if err != nil {
		return fmt.Errorf("start position manager: %w", err)
	}

	return nil
}

func (a *App) runHTTPServer() {
	defer a.wg.Done()
	err := a.httpServer.Start()
	if err != nil {
		a.logger.Error("http-server-error", zap.Error(err))
	}
}

func (a *App) runPipeline() {
	defer a.wg.Done()
	err := a.pipeline.Run(a.ctx, a.streamPool.MessageChan(), a.watcher.Events())
	if err != nil {
		a.logger.Error("pipeline-error", zap.Error(err))
		a.cancel()
	}
}

func (a *App) runWalletTracker() {
	defer a.wg.Done()
	err := a.walletTracker.Run(a.ctx)
	if err != nil && !errors.Is(err, a.ctx.Err()) {
		a.logger.Error("wallet-tracker-error", zap.Error(err))
	}
}

func (a *App) waitForShutdown() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	for {
		select {
		case sig := <-sigChan:
			if sig == syscall.SIGHUP {
				a.Reload()
				continue
			}
			a.logger.Info("shutdown-signal-received", zap.String("signal", sig.String()))
		case <-a.ctx.Done():
			a.logger.Info("context-cancelled")
		}

		return a.Shutdown()
	}
}
