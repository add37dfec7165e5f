package serverapp

import (
	"context"
	"fmt"
	"log/slog"
)

// Init acquires telemetry, the database and the HTTP server in that order.
// A failed Init releases whatever it had acquired; a successful one is not
// repeated.
func (a *App) Init(ctx context.Context) (err error) {
	a.stateMu.Lock()
	done := a.initialized
	a.stateMu.Unlock()
	if done {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var acquired closers
	defer func() {
		if err != nil {
			_ = acquired.closeAll(context.Background(), a.logger)
		}
	}()

	if a.loggerProvider != nil {
		acquired.add("logger provider", a.shutdownLoggerProvider)
	}
	if err := a.initTelemetry(ctx, &acquired); err != nil {
		return err
	}
	if err := a.initDatabase(ctx, &acquired); err != nil {
		return err
	}
	a.initHTTP(&acquired)

	a.stateMu.Lock()
	a.closers = acquired
	a.initialized = true
	a.stateMu.Unlock()
	return nil
}

func (a *App) initTelemetry(ctx context.Context, acquired *closers) error {
	meterProvider, chartMetrics, err := initMetrics(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry metrics: %w", err)
	}
	if meterProvider != nil {
		acquired.add("meter provider", func(ctx context.Context) error {
			return meterProvider.Shutdown(ctx, a.logger.Logger)
		})
	}

	tracerProvider, err := initTracing(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry tracing: %w", err)
	}
	if tracerProvider != nil {
		acquired.add("tracer provider", func(ctx context.Context) error {
			return tracerProvider.Shutdown(ctx, a.logger.Logger)
		})
	}

	a.meterProvider = meterProvider
	a.chartMetrics = chartMetrics
	a.tracerProvider = tracerProvider
	return nil
}

func (a *App) initDatabase(ctx context.Context, acquired *closers) error {
	a.logger.Info("connecting to chart database",
		slog.String("host", a.cfg.Database.Host),
		slog.Int("port", a.cfg.Database.Port),
		slog.String("database", a.effectiveDatabase),
		slog.Bool("dsn_present", a.dsnPresent),
	)

	db, dbStatsReg, err := connectDB(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	acquired.add("database", func(context.Context) error {
		if dbStatsReg != nil {
			if err := dbStatsReg.Unregister(); err != nil {
				a.logger.Warn("failed to unregister DB stats metrics", slog.String("error", err.Error()))
			}
		}
		return db.Close()
	})

	if err := configureDatabase(ctx, a.cfg, a.logger, db, a.effectiveDatabase); err != nil {
		return fmt.Errorf("failed to verify database connection: %w", err)
	}

	a.db = db
	a.dbStatsReg = dbStatsReg
	a.queryExecutor = buildQueryExecutor(a.cfg, a.logger, db)
	a.service = buildChartService(a.cfg, db, a.queryExecutor, a.effectiveDatabase, a.chartMetrics)
	return nil
}

func (a *App) initHTTP(acquired *closers) {
	a.mux = buildRouter(a.cfg, a.logger, a.db, a.service, a.meterProvider)
	a.handler = wrapHTTPHandler(a.cfg, a.logger, a.mux)
	a.serverAddr = fmt.Sprintf(":%d", a.cfg.Server.Port)
	a.srv = buildServer(a.cfg, a.handler, a.serverAddr)

	srv := a.srv
	acquired.add("HTTP server", srv.Shutdown)
}
