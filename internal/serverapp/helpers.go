package serverapp

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"tidb-charts/internal/chartapi"
	"tidb-charts/internal/chartsvc"
	"tidb-charts/internal/config"
	"tidb-charts/internal/dbexec"
	"tidb-charts/internal/logging"
	"tidb-charts/internal/middleware"
	"tidb-charts/internal/observability"

	"github.com/XSAM/otelsql"
	"github.com/cenkalti/backoff/v5"
	_ "github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const maxConnectRetryInterval = 30 * time.Second

func observabilityConfig(cfg *config.Config) observability.Config {
	otlp := cfg.Observability.OTLP
	return observability.Config{
		ServiceName:      cfg.Observability.ServiceName,
		ServiceVersion:   cfg.Observability.ServiceVersion,
		Environment:      cfg.Observability.Environment,
		TraceSampleRatio: cfg.Observability.TraceSampleRatio,
		OTLP: observability.OTLPExporterConfig{
			Endpoint:          otlp.Endpoint,
			Protocol:          otlp.Protocol,
			Insecure:          otlp.Insecure,
			TLSCertFile:       otlp.TLSCertFile,
			TLSClientCertFile: otlp.TLSClientCertFile,
			TLSClientKeyFile:  otlp.TLSClientKeyFile,
			Headers:           otlp.Headers,
			Timeout:           otlp.Timeout,
			Compression:       otlp.Compression,
			RetryEnabled:      otlp.RetryEnabled,
		},
	}
}

// InitLogger builds the process logger and, when log export is enabled,
// an OTLP logger provider that the returned logger also writes to.
func InitLogger(ctx context.Context, cfg *config.Config) (*logging.Logger, *observability.LoggerProvider, error) {
	loggerCfg := logging.Config{
		Level:       cfg.Observability.Logging.Level,
		Format:      cfg.Observability.Logging.Format,
		ServiceName: cfg.Observability.ServiceName,
	}
	logger := logging.NewLogger(loggerCfg)
	slog.SetDefault(logger.Logger)

	if !cfg.Observability.Logging.ExportsEnabled {
		return logger, nil, nil
	}

	logger.Info("initializing OpenTelemetry logging",
		slog.String("service_name", cfg.Observability.ServiceName),
		slog.String("service_version", cfg.Observability.ServiceVersion),
		slog.String("environment", cfg.Observability.Environment),
		slog.String("otlp_endpoint", cfg.Observability.OTLP.Endpoint),
		slog.String("otlp_protocol", cfg.Observability.OTLP.Protocol),
		slog.Bool("insecure", cfg.Observability.OTLP.Insecure),
	)

	loggerProvider, err := observability.InitLoggerProvider(ctx, observabilityConfig(cfg))
	if err != nil {
		return nil, nil, err
	}

	logger.Info("OpenTelemetry logging initialized successfully")

	loggerCfg.LoggerProvider = loggerProvider.Provider()
	logger = logging.NewLogger(loggerCfg)
	slog.SetDefault(logger.Logger)

	return logger, loggerProvider, nil
}

func initMetrics(cfg *config.Config, logger *logging.Logger) (*observability.MeterProvider, *observability.ChartMetrics, error) {
	if !cfg.Observability.MetricsEnabled {
		return nil, nil, nil
	}

	logger.Info("initializing OpenTelemetry metrics",
		slog.String("service_name", cfg.Observability.ServiceName),
		slog.String("service_version", cfg.Observability.ServiceVersion),
		slog.String("environment", cfg.Observability.Environment),
	)

	meterProvider, err := observability.InitMeterProvider(observabilityConfig(cfg))
	if err != nil {
		return nil, nil, err
	}

	chartMetrics, err := observability.InitChartMetrics()
	if err != nil {
		return nil, nil, err
	}

	logger.Info("OpenTelemetry metrics initialized successfully")
	return meterProvider, chartMetrics, nil
}

func initTracing(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*observability.TracerProvider, error) {
	if !cfg.Observability.TracingEnabled {
		return nil, nil
	}

	logger.Info("initializing OpenTelemetry tracing",
		slog.String("service_name", cfg.Observability.ServiceName),
		slog.String("service_version", cfg.Observability.ServiceVersion),
		slog.String("environment", cfg.Observability.Environment),
		slog.String("otlp_endpoint", cfg.Observability.OTLP.Endpoint),
		slog.String("otlp_protocol", cfg.Observability.OTLP.Protocol),
		slog.Float64("sample_ratio", cfg.Observability.TraceSampleRatio),
	)

	tracerProvider, err := observability.InitTracerProvider(ctx, observabilityConfig(cfg))
	if err != nil {
		return nil, err
	}

	logger.Info("OpenTelemetry tracing initialized successfully")
	return tracerProvider, nil
}

func connectDB(cfg *config.Config, logger *logging.Logger) (*sql.DB, interface{ Unregister() error }, error) {
	// verify-ca and verify-full need a registered TLS config before Open.
	if err := cfg.Database.RegisterTLS(); err != nil {
		return nil, nil, fmt.Errorf("failed to register database TLS config: %w", err)
	}

	dsn, err := cfg.Database.DSN()
	if err != nil {
		return nil, nil, err
	}

	if !cfg.Observability.MetricsEnabled && !cfg.Observability.TracingEnabled {
		db, err := sql.Open("mysql", dsn)
		if err != nil {
			return nil, nil, err
		}
		return db, nil, nil
	}

	opts := []otelsql.Option{
		otelsql.WithAttributes(semconv.DBSystemMySQL),
	}
	if cfg.Observability.TracingEnabled {
		opts = append(opts, otelsql.WithSpanOptions(otelsql.SpanOptions{
			DisableErrSkip: true,
		}))
	}

	db, err := otelsql.Open("mysql", dsn, opts...)
	if err != nil {
		return nil, nil, err
	}

	var dbStatsReg interface{ Unregister() error }
	if cfg.Observability.MetricsEnabled {
		dbStatsReg, err = otelsql.RegisterDBStatsMetrics(db, otelsql.WithAttributes(semconv.DBSystemMySQL))
		if err != nil {
			logger.Warn("failed to register DB stats metrics", slog.String("error", err.Error()))
		}
	}

	logger.Info("database instrumentation enabled",
		slog.Bool("metrics", cfg.Observability.MetricsEnabled),
		slog.Bool("tracing", cfg.Observability.TracingEnabled),
	)
	return db, dbStatsReg, nil
}

func configureDatabase(ctx context.Context, cfg *config.Config, logger *logging.Logger, db *sql.DB, effectiveDatabase string) error {
	db.SetMaxOpenConns(cfg.Database.Pool.MaxOpen)
	db.SetMaxIdleConns(cfg.Database.Pool.MaxIdle)
	db.SetConnMaxLifetime(cfg.Database.Pool.MaxLifetime)

	if err := waitForDatabase(ctx, cfg, logger, db); err != nil {
		return err
	}

	logger.Info("connected to database",
		slog.String("database_effective", effectiveDatabase),
		slog.Int("pool_max_open", cfg.Database.Pool.MaxOpen),
		slog.Int("pool_max_idle", cfg.Database.Pool.MaxIdle),
		slog.Duration("pool_max_lifetime", cfg.Database.Pool.MaxLifetime),
	)
	return nil
}

// waitForDatabase pings until the database answers or the connection timeout
// elapses. A zero timeout tries exactly once.
func waitForDatabase(ctx context.Context, cfg *config.Config, logger *logging.Logger, db *sql.DB) error {
	timeout := cfg.Database.ConnectionTimeout
	if timeout == 0 {
		return db.PingContext(ctx)
	}

	policy := backoff.NewExponentialBackOff()
	if cfg.Database.ConnectionRetryInterval > 0 {
		policy.InitialInterval = cfg.Database.ConnectionRetryInterval
	}
	policy.MaxInterval = maxConnectRetryInterval
	policy.RandomizationFactor = 0

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		return struct{}{}, db.PingContext(ctx)
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxElapsedTime(timeout),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Warn("database not ready, retrying...",
				slog.Int("attempt", attempt),
				slog.Duration("retry_in", next),
				slog.String("error", err.Error()),
			)
		}),
	)
	if err != nil {
		return fmt.Errorf("database not available after %v: %w", timeout, err)
	}
	if attempt > 1 {
		logger.Info("database connection established", slog.Int("attempts", attempt))
	}
	return nil
}

func buildQueryExecutor(cfg *config.Config, logger *logging.Logger, db *sql.DB) dbexec.QueryExecutor {
	if !cfg.Charts.ReadOnly {
		return dbexec.NewPoolExecutor(db)
	}
	logger.Info("chart queries run in read-only transactions",
		slog.Duration("max_execution_time", cfg.Charts.MaxExecutionTime),
	)
	return dbexec.NewReadOnlyExecutor(dbexec.ReadOnlyExecutorConfig{
		DB:               db,
		MaxExecutionTime: cfg.Charts.MaxExecutionTime,
	})
}

func buildChartService(cfg *config.Config, db *sql.DB, executor dbexec.QueryExecutor, effectiveDatabase string, metrics *observability.ChartMetrics) *chartsvc.Service {
	return chartsvc.New(db, executor, chartsvc.Config{
		DatabaseName:         effectiveDatabase,
		Filters:              cfg.SchemaFilters,
		BucketColumns:        cfg.Charts.BucketColumns,
		Limits:               cfg.Charts.PlannerLimits(),
		QueryTimeout:         cfg.Charts.QueryTimeout,
		RetryMaxAttempts:     cfg.Charts.QueryRetryMaxAttempts,
		RetryInitialInterval: cfg.Charts.QueryRetryInitialInterval,
	}, metrics)
}

func buildRouter(cfg *config.Config, logger *logging.Logger, db *sql.DB, service chartapi.ChartService, meterProvider *observability.MeterProvider) *http.ServeMux {
	mux := http.NewServeMux()

	chartMux := http.NewServeMux()
	chartapi.NewHandler(service).Register(chartMux)
	chartHandler := middleware.LoggingMiddleware(logger)(chartMux)
	mux.Handle("/api/", chartHandler)

	mux.HandleFunc("/health", healthHandler(db, cfg.Server.HealthCheckTimeout))

	if cfg.Observability.MetricsEnabled && meterProvider != nil {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info("metrics endpoint enabled", slog.String("path", "/metrics"))
	}

	return mux
}

func wrapHTTPHandler(cfg *config.Config, logger *logging.Logger, handler http.Handler) http.Handler {
	if cfg.Observability.MetricsEnabled || cfg.Observability.TracingEnabled {
		handler = otelhttp.NewHandler(handler, "http.server",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return httpRootSpanName(r)
			}),
		)
		logger.Info("HTTP instrumentation enabled")
	}

	if cfg.Server.CORSEnabled {
		handler = middleware.CORSMiddleware(middleware.CORSConfig{
			Enabled:          cfg.Server.CORSEnabled,
			AllowedOrigins:   cfg.Server.CORSAllowedOrigins,
			AllowedMethods:   cfg.Server.CORSAllowedMethods,
			AllowedHeaders:   cfg.Server.CORSAllowedHeaders,
			ExposeHeaders:    cfg.Server.CORSExposeHeaders,
			AllowCredentials: cfg.Server.CORSAllowCredentials,
			MaxAge:           cfg.Server.CORSMaxAge,
		})(handler)
	}

	if cfg.Server.RateLimitEnabled {
		handler = middleware.RateLimitMiddleware(middleware.RateLimitConfig{
			Enabled:   cfg.Server.RateLimitEnabled,
			RPS:       cfg.Server.RateLimitRPS,
			Burst:     cfg.Server.RateLimitBurst,
			PerClient: cfg.Server.RateLimitPerClient,
		})(handler)
	}

	return handler
}

func httpRootSpanName(r *http.Request) string {
	if r == nil {
		return "HTTP /*"
	}

	method := strings.TrimSpace(r.Method)
	if method == "" {
		method = "HTTP"
	}

	return method + " " + normalizeHTTPSpanRoute(r.URL.Path)
}

// normalizeHTTPSpanRoute keeps span names low-cardinality.
func normalizeHTTPSpanRoute(rawPath string) string {
	switch rawPath {
	case chartapi.ChartDataPath, chartapi.ChartExportPath, chartapi.ChartSchemaPath, "/health", "/metrics":
		return rawPath
	default:
		return "/*"
	}
}

func buildServer(cfg *config.Config, handler http.Handler, serverAddr string) *http.Server {
	return &http.Server{
		Addr:         serverAddr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
}

// logServing records the endpoints a configured server exposes.
func logServing(cfg *config.Config, logger *logging.Logger, addr string) {
	attrs := []any{
		slog.String("address", addr),
		slog.String("chart_data_endpoint", chartapi.ChartDataPath),
		slog.String("chart_schema_endpoint", chartapi.ChartSchemaPath),
		slog.String("health_endpoint", "/health"),
		slog.Int("default_limit", cfg.Charts.DefaultLimit),
		slog.Int("max_limit", cfg.Charts.MaxLimit),
		slog.Bool("read_only", cfg.Charts.ReadOnly),
	}
	if cfg.Observability.MetricsEnabled {
		attrs = append(attrs, slog.String("metrics_endpoint", "/metrics"))
	}
	if cfg.Server.RateLimitEnabled {
		attrs = append(attrs,
			slog.Float64("rate_limit_rps", cfg.Server.RateLimitRPS),
			slog.Int("rate_limit_burst", cfg.Server.RateLimitBurst),
		)
	}
	logger.Info("chart server listening", attrs...)
}

// startServer binds addr synchronously so port conflicts surface from
// Start, then serves in the background.
func startServer(srv *http.Server, addr string) (net.Listener, <-chan error, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	serverErrors := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
		close(serverErrors)
	}()
	return ln, serverErrors, nil
}

// healthHandler reports database reachability.
func healthHandler(db *sql.DB, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reqLogger := logging.FromContext(r.Context())
		w.Header().Set("Content-Type", "application/json")

		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			reqLogger.Error("health check failed",
				slog.String("error", err.Error()),
				slog.String("check", "database"),
			)
			w.WriteHeader(http.StatusServiceUnavailable)
			// Generic body; the cause is logged above.
			_, _ = fmt.Fprint(w, `{"status":"unhealthy","database":"failed"}`)
			return
		}

		reqLogger.Debug("health check passed")
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprint(w, `{"status":"healthy","database":"ok"}`)
	}
}
