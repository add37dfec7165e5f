package config

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
)

// tlsConfigName is the name custom TLS configs are registered under with the MySQL driver.
const tlsConfigName = "tidb-charts-custom"

// DSN returns a go-sql-driver/mysql data source name. A configured
// ConnectionString is parsed and normalized; otherwise the discrete fields
// are used. Times are always parsed and interpreted as UTC.
func (d *DatabaseConfig) DSN() (string, error) {
	var cfg *mysql.Config
	if strings.TrimSpace(d.ConnectionString) != "" {
		parsed, err := mysql.ParseDSN(d.ConnectionString)
		if err != nil {
			return "", fmt.Errorf("database.dsn is invalid: %w", err)
		}
		cfg = parsed
	} else {
		cfg = mysql.NewConfig()
		cfg.User = d.User
		cfg.Passwd = d.Password
		cfg.Net = "tcp"
		cfg.Addr = fmt.Sprintf("%s:%d", d.Host, d.Port)
	}

	if d.Database != "" {
		cfg.DBName = d.Database
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	if tlsParam := d.effectiveTLSParam(); tlsParam != "" && cfg.TLSConfig == "" {
		cfg.TLSConfig = tlsParam
	}

	return cfg.FormatDSN(), nil
}

// EffectiveDatabaseName returns the database charts are read from.
func (d *DatabaseConfig) EffectiveDatabaseName() (string, error) {
	return resolveEffectiveDatabaseName(d.Database, d.ConnectionString)
}

func resolveEffectiveDatabaseName(databaseName string, connectionString string) (string, error) {
	configDatabase := strings.TrimSpace(databaseName)
	dsnDatabase, err := parseDSNDatabaseName(connectionString)
	if err != nil {
		return "", err
	}

	if configDatabase != "" {
		if dsnDatabase != "" && configDatabase != dsnDatabase {
			return "", fmt.Errorf(
				"database mismatch: database.database=%q but database.dsn targets %q",
				configDatabase,
				dsnDatabase,
			)
		}
		return configDatabase, nil
	}
	if dsnDatabase != "" {
		return dsnDatabase, nil
	}
	return "", fmt.Errorf("no database configured: set database.database or include /<database> in database.dsn")
}

func parseDSNDatabaseName(connectionString string) (string, error) {
	dsn := strings.TrimSpace(connectionString)
	if dsn == "" {
		return "", nil
	}

	parsed, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("database.dsn is invalid: %w", err)
	}
	return strings.TrimSpace(parsed.DBName), nil
}

// effectiveTLSParam returns the DSN tls value, or "" when no TLS mode is set.
func (d *DatabaseConfig) effectiveTLSParam() string {
	switch d.TLS.Mode {
	case "":
		return ""
	case "off":
		return "false"
	case "skip-verify":
		return "skip-verify"
	case "verify-ca", "verify-full":
		return tlsConfigName
	default:
		return d.TLS.Mode
	}
}

// RegisterTLS registers the custom TLS configuration with the MySQL driver.
// It must run before the connection is opened and is a no-op for modes that
// need no custom config.
func (d *DatabaseConfig) RegisterTLS() error {
	if d.TLS.Mode != "verify-ca" && d.TLS.Mode != "verify-full" {
		return nil
	}

	tlsCfg, err := d.buildTLSConfig()
	if err != nil {
		return fmt.Errorf("failed to build TLS config: %w", err)
	}
	if err := mysql.RegisterTLSConfig(tlsConfigName, tlsCfg); err != nil {
		return fmt.Errorf("failed to register TLS config: %w", err)
	}
	return nil
}

func (d *DatabaseConfig) buildTLSConfig() (*tls.Config, error) {
	tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12}

	if d.TLS.CAFile != "" {
		caCert, err := os.ReadFile(d.TLS.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA file %q: %w", d.TLS.CAFile, err)
		}
		certPool := x509.NewCertPool()
		if !certPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA certificate from %q", d.TLS.CAFile)
		}
		tlsCfg.RootCAs = certPool
	}

	if d.TLS.CertFile != "" && d.TLS.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(d.TLS.CertFile, d.TLS.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	} else if d.TLS.CertFile != "" || d.TLS.KeyFile != "" {
		return nil, fmt.Errorf("both cert_file and key_file must be specified for client certificate authentication")
	}

	switch d.TLS.Mode {
	case "verify-ca":
		// Chain is checked against the CA; the host name is not.
		roots := tlsCfg.RootCAs
		tlsCfg.InsecureSkipVerify = true
		tlsCfg.VerifyConnection = func(cs tls.ConnectionState) error {
			if len(cs.PeerCertificates) == 0 {
				return fmt.Errorf("server presented no certificate")
			}
			opts := x509.VerifyOptions{Roots: roots, Intermediates: x509.NewCertPool()}
			for _, cert := range cs.PeerCertificates[1:] {
				opts.Intermediates.AddCert(cert)
			}
			_, err := cs.PeerCertificates[0].Verify(opts)
			return err
		}
	case "verify-full":
		if d.TLS.ServerName != "" {
			tlsCfg.ServerName = d.TLS.ServerName
		}
	}
	return tlsCfg, nil
}
