// Package chartsvc runs the chart-data pipeline: inspect the live table,
// apply exposure filters, plan the query, execute it and normalize rows.
package chartsvc

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"tidb-charts/internal/chartresult"
	"tidb-charts/internal/dbexec"
	"tidb-charts/internal/introspection"
	"tidb-charts/internal/logging"
	"tidb-charts/internal/observability"
	"tidb-charts/internal/planner"
	"tidb-charts/internal/schemafilter"
)

// Config controls chart query behavior.
type Config struct {
	DatabaseName  string
	Filters       schemafilter.Config
	BucketColumns map[string]string
	Limits        planner.Limits
	// QueryTimeout bounds each data query attempt. Zero means no timeout.
	QueryTimeout time.Duration
	// RetryMaxAttempts caps attempts for transient connection errors.
	// Values below 1 mean a single attempt.
	RetryMaxAttempts     int
	RetryInitialInterval time.Duration
}

// Service executes chart requests.
type Service struct {
	catalog  introspection.Queryer
	executor dbexec.QueryExecutor
	cfg      Config
	metrics  *observability.ChartMetrics
}

// New creates a chart service. catalog serves metadata reads and executor
// serves data queries; metrics may be nil.
func New(catalog introspection.Queryer, executor dbexec.QueryExecutor, cfg Config, metrics *observability.ChartMetrics) *Service {
	return &Service{
		catalog:  catalog,
		executor: executor,
		cfg:      cfg,
		metrics:  metrics,
	}
}

// TableDescription is a filtered live table plus its chart profile.
type TableDescription struct {
	Table   introspection.TableSchema
	Profile planner.TableProfile
}

// Describe inspects a table and applies exposure filters. Hidden tables
// read as unknown without touching the catalog.
func (s *Service) Describe(ctx context.Context, table string) (*TableDescription, error) {
	if !schemafilter.TableAllowed(table, s.cfg.Filters) {
		return nil, fmt.Errorf("%w: %s", introspection.ErrUnknownTable, table)
	}

	schema, err := introspection.InspectTable(ctx, s.catalog, s.cfg.DatabaseName, table)
	if err != nil {
		return nil, err
	}

	filtered, ok := schemafilter.Apply(schema, s.cfg.Filters)
	if !ok {
		return nil, fmt.Errorf("%w: %s", introspection.ErrUnknownTable, table)
	}

	return &TableDescription{
		Table:   *filtered,
		Profile: planner.ResolveProfile(*filtered, s.cfg.BucketColumns),
	}, nil
}

// ChartData validates req against the live schema and returns normalized rows.
// Request errors are returned before any data query is issued.
func (s *Service) ChartData(ctx context.Context, req planner.ChartRequest) (resp *chartresult.Response, err error) {
	ctx, span := startSpan(ctx, "chartsvc.chart_data",
		attribute.String("db.table", req.Table),
		attribute.String("chart.category_axis", req.CategoryAxis),
		attribute.Int("chart.value_axes", len(req.ValueAxes)),
		attribute.String("chart.aggregation", string(req.EffectiveAggregation())),
	)
	defer span.End()

	start := time.Now()
	done := s.metrics.RequestStarted(ctx)
	planKind := ""
	defer func() {
		done()
		s.metrics.RecordRequest(ctx, time.Since(start), planKind, ErrorKind(err))
		if err != nil {
			recordSpanError(span, err)
		}
	}()

	if err := req.Check(); err != nil {
		return nil, err
	}

	desc, err := s.Describe(ctx, req.Table)
	if err != nil {
		return nil, err
	}

	planned, err := planner.PlanChartQuery(req, desc.Table, desc.Profile, s.cfg.Limits)
	if err != nil {
		return nil, err
	}
	planKind = planner.PlanKind(planned.Plan)
	span.SetAttributes(attribute.String("chart.plan", planKind))

	logger := logging.FromContext(ctx)
	logger.Debug("chart query planned",
		slog.String("table", req.Table),
		slog.String("plan", planKind),
		slog.String("sql", planned.Query.SQL),
		slog.Int("args", len(planned.Query.Args)),
	)

	rows, err := s.execute(ctx, req.Table, planned)
	if err != nil {
		return nil, err
	}

	s.metrics.RecordResultRows(ctx, int64(len(rows)), planKind)
	response := chartresult.NewResponse(rows, req.ValueAxes)
	return &response, nil
}

// execute runs the planned query, retrying transient connection errors.
// An invalid view reports as a broken dependency, never retried.
func (s *Service) execute(ctx context.Context, table string, planned planner.PlannedQuery) ([]chartresult.Row, error) {
	logger := logging.FromContext(ctx)

	operation := func() ([]chartresult.Row, error) {
		rows, err := s.runQuery(ctx, planned)
		if err != nil && !IsTransient(err) {
			return nil, backoff.Permanent(err)
		}
		return rows, err
	}

	policy := backoff.NewExponentialBackOff()
	if s.cfg.RetryInitialInterval > 0 {
		policy.InitialInterval = s.cfg.RetryInitialInterval
	}
	maxAttempts := s.cfg.RetryMaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	rows, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(maxAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			s.metrics.RecordQueryRetry(ctx)
			logger.Warn("chart query failed with a transient error, retrying",
				slog.String("error", err.Error()),
				slog.Duration("backoff", next),
			)
		}),
	)
	if err != nil {
		if introspection.IsViewInvalid(err) {
			return nil, &introspection.BrokenDependencyError{Table: table, Err: err}
		}
		return nil, &QueryExecutionError{Err: err, Transient: IsTransient(err)}
	}
	return rows, nil
}

func (s *Service) runQuery(ctx context.Context, planned planner.PlannedQuery) ([]chartresult.Row, error) {
	if s.cfg.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.QueryTimeout)
		defer cancel()
	}

	rows, err := s.executor.QueryContext(ctx, planned.Query.SQL, planned.Query.Args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	return chartresult.ScanRows(rows, planned.Kinds)
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := otel.Tracer("tidb-charts/chartsvc").Start(ctx, name)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
