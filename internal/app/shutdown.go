package app

import (
	"context"

	"go.uber.org/zap"
)

// Shutdown gracefully shuts down the application.
func (a *App) Shutdown() error {
	a.logger.Info("application-shutting-down")

	a.healthChecker.SetReady(false)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer shutdownCancel()

	// Stop taking requests before the services underneath go away
	err := a.shutdownHTTPServer(shutdownCtx)
	if err != nil {
		a.logger.Error("http-server-shutdown-error", zap.Error(err))
	}

	// Let a running DCA job finish
	err = a.shutdownScheduler(shutdownCtx)
	if err != nil {
		a.logger.Error("scheduler-shutdown-error", zap.Error(err))
	}

	// Cancel context to stop the hub
	a.cancel()

	// Wait for all goroutines
	a.wg.Wait()

	a.Close()

	a.logger.Info("application-shutdown-complete")

	return nil
}

// Close releases storage and caches without touching the server. Commands
// that never call Run use it directly. Safe to call more than once.
func (a *App) Close() {
	a.closeOnce.Do(func() {
		a.cancel()

		if a.storage != nil {
			err := a.storage.Close()
			if err != nil {
				a.logger.Error("storage-close-error", zap.Error(err))
			}
		}

		for _, c := range a.caches {
			c.Close()
		}
	})
}

func (a *App) shutdownHTTPServer(ctx context.Context) error {
	return a.httpServer.Shutdown(ctx)
}

func (a *App) shutdownScheduler(ctx context.Context) error {
	if !a.cfg.SchedulerEnabled {
		return nil
	}
	return a.scheduler.Stop(ctx)
}
