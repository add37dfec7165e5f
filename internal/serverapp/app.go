package serverapp

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"tidb-charts/internal/chartsvc"
	"tidb-charts/internal/config"
	"tidb-charts/internal/dbexec"
	"tidb-charts/internal/logging"
	"tidb-charts/internal/observability"
)

// App wires config into a running chart server and owns what it acquires.
type App struct {
	cfg    *config.Config
	logger *logging.Logger

	loggerProvider *observability.LoggerProvider

	effectiveDatabase string
	dsnPresent        bool

	meterProvider  *observability.MeterProvider
	chartMetrics   *observability.ChartMetrics
	tracerProvider *observability.TracerProvider

	db         *sql.DB
	dbStatsReg interface{ Unregister() error }

	queryExecutor dbexec.QueryExecutor
	service       *chartsvc.Service

	mux     *http.ServeMux
	handler http.Handler

	serverAddr string
	listenAddr string
	srv        *http.Server

	closers closers

	stateMu      sync.Mutex
	initialized  bool
	serverErrors <-chan error

	shutdownOnce sync.Once
	shutdownErr  error
}

// New creates an App lifecycle wrapper.
func New(cfg *config.Config, logger *logging.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	effectiveDatabase, err := cfg.Database.EffectiveDatabaseName()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve effective database configuration: %w", err)
	}

	return &App{
		cfg:               cfg,
		logger:            logger,
		effectiveDatabase: effectiveDatabase,
		dsnPresent:        strings.TrimSpace(cfg.Database.ConnectionString) != "",
	}, nil
}

// AttachLoggerProvider registers an optional logger provider for shutdown cleanup.
func (a *App) AttachLoggerProvider(provider *observability.LoggerProvider) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	a.loggerProvider = provider
}

// Handler returns the fully wrapped HTTP handler. It is nil before Init.
func (a *App) Handler() http.Handler {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	return a.handler
}

// shutdownLoggerProvider flushes the OTLP log exporter.
func (a *App) shutdownLoggerProvider(ctx context.Context) error {
	return a.loggerProvider.Shutdown(ctx, a.logger.Logger)
}
