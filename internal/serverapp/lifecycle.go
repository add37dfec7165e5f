package serverapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"tidb-charts/internal/logging"
)

// closer releases one acquired resource.
type closer struct {
	name string
	fn   func(context.Context) error
}

// closers release resources in reverse order of acquisition.
type closers []closer

func (c *closers) add(name string, fn func(context.Context) error) {
	*c = append(*c, closer{name: name, fn: fn})
}

// closeAll runs every closer, newest first, and joins their errors.
func (c closers) closeAll(ctx context.Context, logger *logging.Logger) error {
	var errs []error
	for i := len(c) - 1; i >= 0; i-- {
		item := c[i]
		if logger != nil {
			logger.Debug("releasing resource", slog.String("component", item.name))
		}
		if err := item.fn(ctx); err != nil {
			if logger != nil {
				logger.Warn("release failed",
					slog.String("component", item.name),
					slog.String("error", err.Error()),
				)
			}
			errs = append(errs, fmt.Errorf("%s: %w", item.name, err))
		}
	}
	return errors.Join(errs...)
}

// Start begins serving in the background. The returned channel receives
// the listener error if the server stops on its own.
func (a *App) Start() (<-chan error, error) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()

	if !a.initialized {
		return nil, fmt.Errorf("app is not initialized")
	}
	if a.serverErrors != nil {
		return a.serverErrors, nil
	}

	ln, serverErrors, err := startServer(a.srv, a.serverAddr)
	if err != nil {
		return nil, err
	}
	a.listenAddr = ln.Addr().String()
	a.serverErrors = serverErrors
	logServing(a.cfg, a.logger, a.listenAddr)
	return serverErrors, nil
}

// Run serves until ctx is cancelled or the server fails, then shuts down
// within the configured shutdown timeout.
func (a *App) Run(ctx context.Context) error {
	serverErrors, err := a.Start()
	if err != nil {
		return err
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown requested", slog.String("cause", context.Cause(ctx).Error()))
	case err, ok := <-serverErrors:
		if !ok || err == nil {
			err = fmt.Errorf("server stopped unexpectedly")
		}
		runErr = fmt.Errorf("server failed: %w", err)
	}

	timeout := a.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	return errors.Join(runErr, a.Shutdown(shutdownCtx))
}

// Shutdown releases everything Init acquired. Only the first call does work.
func (a *App) Shutdown(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	a.shutdownOnce.Do(func() {
		a.stateMu.Lock()
		toClose := a.closers
		a.closers = nil
		a.stateMu.Unlock()

		a.shutdownErr = toClose.closeAll(ctx, a.logger)
	})
	return a.shutdownErr
}

// Addr is the bound listen address once Start has succeeded.
func (a *App) Addr() string {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	return a.listenAddr
}
