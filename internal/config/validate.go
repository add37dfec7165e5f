package config

import (
	"fmt"
	"net"
	"net/url"
	"path"
	"strings"

	"tidb-charts/internal/planner"
	"tidb-charts/internal/schemafilter"
)

// ValidationError represents a configuration validation error with context.
type ValidationError struct {
	Field   string
	Message string
	Hint    string
}

func (e ValidationError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s (hint: %s)", e.Field, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Field   string
	Message string
	Hint    string
}

// ValidationResult contains the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// Error returns a combined error message if there are validation errors.
func (r *ValidationResult) Error() string {
	if !r.HasErrors() {
		return ""
	}
	msgs := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

func (r *ValidationResult) addError(field, message, hint string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message, Hint: hint})
}

func (r *ValidationResult) addWarning(field, message, hint string) {
	r.Warnings = append(r.Warnings, ValidationWarning{Field: field, Message: message, Hint: hint})
}

// Validate checks the configuration and returns fatal errors and warnings.
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{}

	c.Database.validate(result)
	c.Server.validate(result)
	c.Charts.validate(result)
	c.Observability.validate(result)
	validateSchemaFilters(result, c.SchemaFilters)

	return result
}

// PlannerLimits converts the charts row limits for the planner.
func (c *ChartsConfig) PlannerLimits() planner.Limits {
	return planner.Limits{DefaultLimit: c.DefaultLimit, MaxLimit: c.MaxLimit}
}

func (c *ChartsConfig) validate(result *ValidationResult) {
	if err := c.PlannerLimits().Validate(); err != nil {
		result.addError("charts.default_limit", err.Error(), "keep default_limit at or below max_limit")
	}
	if c.QueryTimeout < 0 {
		result.addError("charts.query_timeout", "query_timeout cannot be negative", "")
	}
	if c.QueryRetryMaxAttempts < 1 {
		result.addError("charts.query_retry_max_attempts", "query_retry_max_attempts must be at least 1", "use 1 to disable retries")
	}
	if c.QueryRetryInitialInterval < 0 {
		result.addError("charts.query_retry_initial_interval", "query_retry_initial_interval cannot be negative", "")
	}
	if c.MaxExecutionTime < 0 {
		result.addError("charts.max_execution_time", "max_execution_time cannot be negative", "")
	}
	if c.MaxExecutionTime > 0 && !c.ReadOnly {
		result.addWarning("charts.max_execution_time", "max_execution_time is only applied to read-only chart queries", "set charts.read_only=true or rely on charts.query_timeout")
	}

	for tablePattern, column := range c.BucketColumns {
		if strings.TrimSpace(tablePattern) == "" {
			result.addError("charts.bucket_columns", "table pattern cannot be empty", "")
			continue
		}
		if _, err := path.Match(strings.ToLower(tablePattern), "x"); err != nil {
			result.addError("charts.bucket_columns", fmt.Sprintf("invalid table glob pattern %q: %v", tablePattern, err), "")
		}
		if strings.ContainsAny(column, "*?[") {
			result.addError("charts.bucket_columns", fmt.Sprintf("bucket column for %q must be a column name, got %q", tablePattern, column), "")
		}
	}
}

func validateSchemaFilters(result *ValidationResult, filters schemafilter.Config) {
	validateGlobList(result, "schema_filters.allow_tables", filters.AllowTables)
	validateGlobList(result, "schema_filters.deny_tables", filters.DenyTables)
	validatePatternMap(result, "schema_filters.allow_columns", filters.AllowColumns)
	validatePatternMap(result, "schema_filters.deny_columns", filters.DenyColumns)
}

func validatePatternMap(result *ValidationResult, field string, patternMap map[string][]string) {
	for tablePattern, columnPatterns := range patternMap {
		if strings.TrimSpace(tablePattern) == "" {
			result.addError(field, "table pattern cannot be empty", "")
			continue
		}
		if _, err := path.Match(strings.ToLower(tablePattern), "x"); err != nil {
			result.addError(field, fmt.Sprintf("invalid table glob pattern %q: %v", tablePattern, err), "")
		}
		for _, columnPattern := range columnPatterns {
			if strings.TrimSpace(columnPattern) == "" {
				result.addError(field, fmt.Sprintf("column pattern for table pattern %q cannot be empty", tablePattern), "")
				continue
			}
			if _, err := path.Match(strings.ToLower(columnPattern), "x"); err != nil {
				result.addError(field, fmt.Sprintf("invalid column glob pattern %q for table pattern %q: %v", columnPattern, tablePattern, err), "")
			}
		}
	}
}

func validateGlobList(result *ValidationResult, field string, patterns []string) {
	for _, pattern := range patterns {
		if strings.TrimSpace(pattern) == "" {
			result.addError(field, "glob pattern cannot be empty", "")
			continue
		}
		if _, err := path.Match(strings.ToLower(pattern), "x"); err != nil {
			result.addError(field, fmt.Sprintf("invalid glob pattern %q: %v", pattern, err), "")
		}
	}
}

func (d *DatabaseConfig) validate(result *ValidationResult) {
	if d.ConnectionString == "" && (d.Port < 1 || d.Port > 65535) {
		result.addError("database.port", fmt.Sprintf("port %d is out of valid range (1-65535)", d.Port), "")
	}

	d.TLS.validate(result)

	if d.Pool.MaxOpen < 0 {
		result.addError("database.pool.max_open", "max_open cannot be negative", "")
	}
	if d.Pool.MaxIdle < 0 {
		result.addError("database.pool.max_idle", "max_idle cannot be negative", "")
	}
	if d.Pool.MaxIdle > d.Pool.MaxOpen && d.Pool.MaxOpen > 0 {
		result.addWarning("database.pool.max_idle", "max_idle is greater than max_open", "idle connections will be limited to max_open")
	}

	if d.ConnectionTimeout < 0 {
		result.addError("database.connection_timeout", "connection_timeout cannot be negative", "")
	}
	if d.ConnectionRetryInterval < 0 {
		result.addError("database.connection_retry_interval", "connection_retry_interval cannot be negative", "")
	}
	if d.ConnectionTimeout > 0 && d.ConnectionRetryInterval == 0 {
		result.addError("database.connection_retry_interval",
			"connection_retry_interval must be greater than 0 when connection_timeout is set",
			"set a retry interval such as 2s, or set connection_timeout to 0 to disable retries")
	}
	if d.ConnectionTimeout > 0 && d.ConnectionRetryInterval > d.ConnectionTimeout {
		result.addWarning("database.connection_retry_interval",
			"connection_retry_interval is greater than connection_timeout",
			"only one connection attempt will be made")
	}

	effectiveDatabase, err := resolveEffectiveDatabaseName(d.Database, d.ConnectionString)
	if err != nil {
		field := "database.database"
		if strings.HasPrefix(err.Error(), "database.dsn") {
			field = "database.dsn"
		}
		result.addError(field, err.Error(), "set database.database or include a /database in database.dsn")
		return
	}
	d.Database = effectiveDatabase
}

func (t *DatabaseTLSConfig) validate(result *ValidationResult) {
	validModes := map[string]bool{"": true, "off": true, "skip-verify": true, "verify-ca": true, "verify-full": true}
	if !validModes[t.Mode] {
		result.addError("database.tls.mode", fmt.Sprintf("invalid TLS mode %q", t.Mode), "valid values are: off, skip-verify, verify-ca, verify-full")
	}
	if (t.Mode == "verify-ca" || t.Mode == "verify-full") && t.CAFile == "" {
		result.addError("database.tls.ca_file", "CA file is required for verify-ca and verify-full modes", "")
	}
	if (t.CertFile != "") != (t.KeyFile != "") {
		result.addError("database.tls.cert_file",
			"both cert_file and key_file must be specified for client certificate authentication",
			"provide both cert_file and key_file, or neither")
	}
	if t.Mode == "skip-verify" {
		result.addWarning("database.tls.mode", "skip-verify mode does not verify server certificates", "use verify-ca or verify-full in production")
	}
}

func (s *ServerConfig) validate(result *ValidationResult) {
	if s.Port < 1 || s.Port > 65535 {
		result.addError("server.port", fmt.Sprintf("port %d is out of valid range (1-65535)", s.Port), "")
	}

	if s.RateLimitEnabled {
		if s.RateLimitRPS <= 0 {
			result.addError("server.rate_limit_rps", "rate_limit_rps must be greater than 0 when rate limiting is enabled", "")
		}
		if s.RateLimitBurst <= 0 {
			result.addError("server.rate_limit_burst", "rate_limit_burst must be greater than 0 when rate limiting is enabled", "")
		}
	} else if s.RateLimitRPS > 0 || s.RateLimitBurst > 0 {
		result.addWarning("server.rate_limit_enabled",
			"rate limit values are set but rate limiting is disabled",
			"enable server.rate_limit_enabled to apply rate limits")
	}

	if !s.CORSEnabled {
		return
	}
	if len(s.CORSAllowedOrigins) == 0 {
		result.addError("server.cors_allowed_origins", "CORS enabled but no allowed origins configured", "set cors_allowed_origins or disable CORS")
	}
	for _, origin := range s.CORSAllowedOrigins {
		if strings.TrimSpace(origin) != "*" {
			continue
		}
		if s.CORSAllowCredentials {
			result.addError("server.cors_allowed_origins",
				"wildcard origin (*) cannot be used with credentials",
				"use specific origins with credentials, or wildcard without credentials")
		} else {
			result.addWarning("server.cors_allowed_origins", "CORS wildcard origin enabled", "use specific origins in production")
		}
		break
	}
}

func (o *ObservabilityConfig) validate(result *ValidationResult) {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[o.Logging.Level] {
		result.addError("observability.logging.level", fmt.Sprintf("invalid log level %q", o.Logging.Level), "valid values are: debug, info, warn, error")
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[o.Logging.Format] {
		result.addError("observability.logging.format", fmt.Sprintf("invalid log format %q", o.Logging.Format), "valid values are: json, text")
	}

	if o.TraceSampleRatio < 0 || o.TraceSampleRatio > 1 {
		result.addError("observability.trace_sample_ratio", fmt.Sprintf("trace_sample_ratio %v is outside 0.0-1.0", o.TraceSampleRatio), "")
	}

	if o.TracingEnabled || o.Logging.ExportsEnabled {
		o.OTLP.validate("observability.otlp", result)
	}
}

func (o *OTLPConfig) validate(prefix string, result *ValidationResult) {
	validProtocols := map[string]bool{"": true, "grpc": true, "http/protobuf": true}
	if !validProtocols[o.Protocol] {
		result.addError(prefix+".protocol", fmt.Sprintf("invalid OTLP protocol %q", o.Protocol), "valid values are: grpc, http/protobuf")
	}
	if o.Protocol == "http/protobuf" && !validOTLPEndpoint(o.Endpoint) {
		result.addError(prefix+".endpoint", fmt.Sprintf("invalid OTLP endpoint %q for http/protobuf", o.Endpoint), "use host:port or a full URL")
	}

	validCompressions := map[string]bool{"": true, "none": true, "gzip": true}
	if !validCompressions[o.Compression] {
		result.addError(prefix+".compression", fmt.Sprintf("invalid OTLP compression %q", o.Compression), "valid values are: none, gzip")
	}
}

func validOTLPEndpoint(endpoint string) bool {
	if endpoint == "" {
		return false
	}
	if strings.Contains(endpoint, "://") {
		parsed, err := url.Parse(endpoint)
		if err != nil {
			return false
		}
		return parsed.Host != ""
	}
	_, _, err := net.SplitHostPort(endpoint)
	return err == nil
}
