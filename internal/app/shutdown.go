package app

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Shutdown gracefully shuts down the application. Only the first call has
// any effect.
func (a *App) Shutdown() error {
	a.shutdownOnce.Do(a.shutdown)
	return nil
}

func (a *App) shutdown() {
	a.logger.Info("application-shutting-down")

	a.healthChecker.SetReady(false)

	// Cancel context to signal all components
	a.cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	err := a.httpServer.Shutdown(shutdownCtx)
	if err != nil {
		a.logger.Error("http-server-shutdown-error", zap.Error(err))
	}

	// Positions first so no new exit lands on a stopped executor.
	err = a.positions.Close()
	if err != nil {
		a.logger.Error("position-manager-close-error", zap.Error(err))
	}

	err = a.executor.Close()
	if err != nil {
		a.logger.Error("executor-close-error", zap.Error(err))
	}

	if a.breaker != nil {
		a.breaker.Close()
	}

	err = a.streamPool.Close()
	if err != nil {
		a.logger.Error("pending-stream-close-error", zap.Error(err))
	}

	err = a.watcher.Close()
	if err != nil {
		a.logger.Error("block-watcher-close-error", zap.Error(err))
	}

	// Wait for pipeline, HTTP server and wallet tracker
	a.wg.Wait()

	a.release()

	a.logger.Info("application-shutdown-complete")
}

// release frees the resources acquired during setup. It is safe on a
// partially built App.
func (a *App) release() {
	if a.storage != nil {
		err := a.storage.Close()
		if err != nil {
			a.logger.Error("storage-close-error", zap.Error(err))
		}
	}

	if a.bus != nil {
		a.bus.Close()
	}

	for _, c := range a.caches {
		c.Close()
	}

	if a.rpc != nil {
		a.rpc.Close()
	}
}
