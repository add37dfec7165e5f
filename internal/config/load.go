package config

import (
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

// EnvPrefix prefixes every environment variable override.
const EnvPrefix = "TICHARTS"

var defineFlagsOnce sync.Once

// Load loads configuration from multiple sources with the following precedence:
// 1. Explicit overrides (v.Set) used for secrets read from files or prompts
// 2. Command line flags
// 3. Environment variables
// 4. Config file
// 5. Default values
func Load() (*Config, error) {
	defineFlagsOnce.Do(func() {
		DefineFlags(pflag.CommandLine)
	})
	if !pflag.Parsed() {
		pflag.Parse()
	}
	return LoadFlagSet(pflag.CommandLine)
}

// LoadFlagSet loads configuration using an already parsed flag set.
func LoadFlagSet(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	cfgPath, _ := fs.GetString("config")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.SetConfigName("tidb-charts")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/tidb-charts/")
		v.AddConfigPath("$HOME/.tidb-charts")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if cfgPath != "" {
			return nil, fmt.Errorf("failed to read config file %q: %w", cfgPath, err)
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Env vars: TICHARTS_DATABASE_POOL_MAX_OPEN
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	bindChangedFlagsToViper(v, fs)
	if err := validateSingleStdinFileSource(v); err != nil {
		return nil, err
	}

	if v.GetString("database.dsn") == "" && v.GetString("database.dsn_file") != "" {
		dsn, err := readSecretFile(v.GetString("database.dsn_file"))
		if err != nil {
			return nil, fmt.Errorf("failed to read database DSN file: %w", err)
		}
		v.Set("database.dsn", dsn)
	}

	if v.GetString("database.password") == "" && v.GetString("database.password_file") != "" {
		pwd, err := readSecretFile(v.GetString("database.password_file"))
		if err != nil {
			return nil, fmt.Errorf("failed to read database password file: %w", err)
		}
		v.Set("database.password", pwd)
	}
	if v.GetString("database.password") == "" && v.GetBool("database.password_prompt") {
		pwd, err := promptPassword()
		if err != nil {
			return nil, fmt.Errorf("failed to read password: %w", err)
		}
		v.Set("database.password", pwd)
	}

	effectiveDatabase, err := resolveEffectiveDatabaseName(
		v.GetString("database.database"),
		v.GetString("database.dsn"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve effective database name: %w", err)
	}
	v.Set("database.database", effectiveDatabase)

	var cfg Config
	if err := v.UnmarshalExact(&cfg, decodeHooks()); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func decodeHooks() viper.DecoderConfigOption {
	return viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			stringToStringSliceHookFunc(","),
		),
	)
}

// bindChangedFlagsToViper copies only explicitly-set flags into Viper,
// preserving precedence: flags > env > file > defaults.
func bindChangedFlagsToViper(v *viper.Viper, fs *pflag.FlagSet) {
	fs.Visit(func(f *pflag.Flag) {
		if f.Name == "config" || f.Name == "version" {
			return
		}

		switch f.Value.Type() {
		case "string":
			val, _ := fs.GetString(f.Name)
			v.Set(f.Name, val)
		case "int":
			val, _ := fs.GetInt(f.Name)
			v.Set(f.Name, val)
		case "bool":
			val, _ := fs.GetBool(f.Name)
			v.Set(f.Name, val)
		case "float64":
			val, _ := fs.GetFloat64(f.Name)
			v.Set(f.Name, val)
		case "duration":
			val, _ := fs.GetDuration(f.Name)
			v.Set(f.Name, val)
		case "stringSlice":
			val, _ := fs.GetStringSlice(f.Name)
			v.Set(f.Name, val)
		case "stringToString":
			val, _ := fs.GetStringToString(f.Name)
			v.Set(f.Name, val)
		default:
			v.Set(f.Name, f.Value.String())
		}
	})
}

// DefineFlags registers all configuration flags on fs using canonical snake_case keys.
func DefineFlags(fs *pflag.FlagSet) {
	fs.String("database.dsn", "", "Complete MySQL DSN (user:pass@tcp(host:port)/db)")
	fs.String("database.dsn_file", "", "Path to file containing database DSN (use @- for stdin)")
	fs.String("database.host", "", "Database host")
	fs.Int("database.port", 0, "Database port")
	fs.String("database.user", "", "Database user")
	fs.String("database.password", "", "Database password")
	fs.String("database.password_file", "", "Path to file containing database password (use @- for stdin)")
	fs.Bool("database.password_prompt", false, "Prompt for database password securely")
	fs.String("database.database", "", "Database holding the charted tables")

	fs.String("database.tls.mode", "", "TLS mode (off, skip-verify, verify-ca, verify-full)")
	fs.String("database.tls.ca_file", "", "Path to CA certificate for server verification")
	fs.String("database.tls.cert_file", "", "Path to client certificate for mTLS")
	fs.String("database.tls.key_file", "", "Path to client private key for mTLS")
	fs.String("database.tls.server_name", "", "Override TLS server name for verification")

	fs.Int("database.pool.max_open", 0, "Maximum open database connections")
	fs.Int("database.pool.max_idle", 0, "Maximum idle connections in pool")
	fs.Duration("database.pool.max_lifetime", 0, "Connection max lifetime (e.g. 5m, 30s)")
	fs.Duration("database.connection_timeout", 0, "Max time to wait for database on startup (0 = fail immediately)")
	fs.Duration("database.connection_retry_interval", 0, "Initial interval between connection retries")

	fs.Int("server.port", 0, "HTTP server port")
	fs.Bool("server.rate_limit_enabled", false, "Enable global rate limiting for all HTTP endpoints")
	fs.Float64("server.rate_limit_rps", 0, "Global rate limit requests per second")
	fs.Int("server.rate_limit_burst", 0, "Global rate limit burst size")
	fs.Bool("server.rate_limit_per_client", false, "Give each client host its own rate limit bucket")
	fs.Bool("server.cors_enabled", false, "Enable CORS (Cross-Origin Resource Sharing)")
	fs.StringSlice("server.cors_allowed_origins", nil, "Allowed CORS origins (comma-separated or repeated)")
	fs.StringSlice("server.cors_allowed_methods", nil, "Allowed CORS methods (comma-separated or repeated)")
	fs.StringSlice("server.cors_allowed_headers", nil, "Allowed CORS headers (comma-separated or repeated)")
	fs.StringSlice("server.cors_expose_headers", nil, "CORS headers to expose to browser (comma-separated or repeated)")
	fs.Bool("server.cors_allow_credentials", false, "Allow credentials in CORS requests")
	fs.Int("server.cors_max_age", 0, "CORS preflight cache duration (seconds)")
	fs.Duration("server.read_timeout", 0, "HTTP server read timeout")
	fs.Duration("server.write_timeout", 0, "HTTP server write timeout")
	fs.Duration("server.idle_timeout", 0, "HTTP server idle timeout")
	fs.Duration("server.shutdown_timeout", 0, "HTTP server graceful shutdown timeout")
	fs.Duration("server.health_check_timeout", 0, "Health check timeout")

	fs.Int("charts.default_limit", 0, "Row limit for raw chart queries when none is requested")
	fs.Int("charts.max_limit", 0, "Upper bound for requested raw chart row limits")
	fs.StringToString("charts.bucket_columns", nil, "Table glob to day-bucket column (e.g. sales=order_date)")
	fs.Duration("charts.query_timeout", 0, "Timeout for a single chart data query")
	fs.Int("charts.query_retry_max_attempts", 0, "Attempts for chart queries failing on transient connection errors")
	fs.Duration("charts.query_retry_initial_interval", 0, "Initial backoff between chart query retries")
	fs.Bool("charts.read_only", false, "Run chart queries in read-only transactions")
	fs.Duration("charts.max_execution_time", 0, "Session max_execution_time for read-only chart queries")

	fs.StringSlice("schema_filters.allow_tables", nil, "Table glob patterns exposed to charts")
	fs.StringSlice("schema_filters.deny_tables", nil, "Table glob patterns hidden from charts")
	fs.Bool("schema_filters.scan_views_enabled", false, "Expose views to charts")

	fs.String("observability.service_name", "", "Service name for observability")
	fs.String("observability.service_version", "", "Service version for observability")
	fs.String("observability.environment", "", "Environment name (dev, staging, prod)")
	fs.Bool("observability.metrics_enabled", false, "Enable metrics collection")
	fs.Bool("observability.tracing_enabled", false, "Enable distributed tracing")
	fs.Float64("observability.trace_sample_ratio", 0, "Trace sampling ratio from 0.0 to 1.0")

	fs.String("observability.logging.level", "", "Log level (debug, info, warn, error)")
	fs.String("observability.logging.format", "", "Log format (json, text)")
	fs.Bool("observability.logging.exports_enabled", false, "Enable OTLP log export")

	fs.String("observability.otlp.endpoint", "", "OTLP endpoint (e.g., localhost:4317)")
	fs.String("observability.otlp.protocol", "", "OTLP protocol (grpc, http/protobuf)")
	fs.Bool("observability.otlp.insecure", false, "Use insecure connection (no TLS)")
	fs.String("observability.otlp.tls_cert_file", "", "Path to TLS certificate file for server verification")
	fs.String("observability.otlp.tls_client_cert_file", "", "Path to client certificate file for mTLS")
	fs.String("observability.otlp.tls_client_key_file", "", "Path to client key file for mTLS")
	fs.Duration("observability.otlp.timeout", 0, "OTLP export timeout")
	fs.String("observability.otlp.compression", "", "OTLP compression (none, gzip)")
	fs.Bool("observability.otlp.retry_enabled", false, "Enable retry on transient export errors")

	fs.StringP("config", "c", "", "Config file path")
}

// setDefaults sets default values (lowest precedence).
func setDefaults(v *viper.Viper) {
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.dsn_file", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 4000)
	v.SetDefault("database.user", "root")
	v.SetDefault("database.password", "")
	v.SetDefault("database.password_file", "")
	v.SetDefault("database.password_prompt", false)
	v.SetDefault("database.database", "")

	v.SetDefault("database.tls.mode", "")
	v.SetDefault("database.tls.ca_file", "")
	v.SetDefault("database.tls.cert_file", "")
	v.SetDefault("database.tls.key_file", "")
	v.SetDefault("database.tls.server_name", "")

	v.SetDefault("database.pool.max_open", 25)
	v.SetDefault("database.pool.max_idle", 5)
	v.SetDefault("database.pool.max_lifetime", 5*time.Minute)
	v.SetDefault("database.connection_timeout", 60*time.Second)
	v.SetDefault("database.connection_retry_interval", 2*time.Second)

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate_limit_enabled", false)
	v.SetDefault("server.rate_limit_rps", 0.0)
	v.SetDefault("server.rate_limit_burst", 0)
	v.SetDefault("server.rate_limit_per_client", false)
	v.SetDefault("server.cors_enabled", false)
	v.SetDefault("server.cors_allowed_origins", []string{})
	v.SetDefault("server.cors_allowed_methods", []string{"GET", "HEAD", "OPTIONS"})
	v.SetDefault("server.cors_allowed_headers", []string{"Content-Type", "Authorization"})
	v.SetDefault("server.cors_expose_headers", []string{"Content-Disposition"})
	v.SetDefault("server.cors_allow_credentials", false)
	v.SetDefault("server.cors_max_age", 86400)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.health_check_timeout", 2*time.Second)

	v.SetDefault("charts.default_limit", 1000)
	v.SetDefault("charts.max_limit", 10000)
	v.SetDefault("charts.bucket_columns", map[string]string{})
	v.SetDefault("charts.query_timeout", 30*time.Second)
	v.SetDefault("charts.query_retry_max_attempts", 3)
	v.SetDefault("charts.query_retry_initial_interval", 100*time.Millisecond)
	v.SetDefault("charts.read_only", false)
	v.SetDefault("charts.max_execution_time", time.Duration(0))

	v.SetDefault("schema_filters.allow_tables", []string{"*"})
	v.SetDefault("schema_filters.deny_tables", []string{})
	v.SetDefault("schema_filters.allow_columns", map[string][]string{
		"*": {"*"},
	})
	v.SetDefault("schema_filters.deny_columns", map[string][]string{})
	v.SetDefault("schema_filters.scan_views_enabled", true)

	v.SetDefault("observability.service_name", "tidb-charts")
	v.SetDefault("observability.service_version", "")
	v.SetDefault("observability.environment", "development")
	v.SetDefault("observability.metrics_enabled", true)
	v.SetDefault("observability.tracing_enabled", false)
	v.SetDefault("observability.trace_sample_ratio", 1.0)

	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "json")
	v.SetDefault("observability.logging.exports_enabled", false)

	v.SetDefault("observability.otlp.endpoint", "localhost:4317")
	v.SetDefault("observability.otlp.protocol", "grpc")
	v.SetDefault("observability.otlp.insecure", false)
	v.SetDefault("observability.otlp.tls_cert_file", "")
	v.SetDefault("observability.otlp.tls_client_cert_file", "")
	v.SetDefault("observability.otlp.tls_client_key_file", "")
	v.SetDefault("observability.otlp.headers", map[string]string{})
	v.SetDefault("observability.otlp.timeout", 10*time.Second)
	v.SetDefault("observability.otlp.compression", "gzip")
	v.SetDefault("observability.otlp.retry_enabled", true)
}

// promptPassword prompts the user for a password without echoing to terminal.
func promptPassword() (string, error) {
	fmt.Print("Enter database password: ")
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", err
	}
	return string(bytePassword), nil
}

func readSecretFile(path string) (string, error) {
	var data []byte
	var err error

	if path == "@-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func validateSingleStdinFileSource(v *viper.Viper) error {
	stdinBackedKeys := []string{
		"database.dsn_file",
		"database.password_file",
	}

	var configured []string
	for _, key := range stdinBackedKeys {
		if strings.TrimSpace(v.GetString(key)) == "@-" {
			configured = append(configured, key)
		}
	}

	if len(configured) > 1 {
		return fmt.Errorf(
			"multiple stdin-backed file settings use @- (%s); only one @- source is allowed",
			strings.Join(configured, ", "),
		)
	}
	return nil
}

func stringToStringSliceHookFunc(sep string) mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if from.Kind() != reflect.String || to != reflect.TypeOf([]string{}) {
			return data, nil
		}

		raw := strings.TrimSpace(data.(string))
		if raw == "" {
			return []string{}, nil
		}

		parts := strings.Split(raw, sep)
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts, nil
	}
}
