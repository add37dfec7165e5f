// Package tidbtest provisions throwaway TiDB databases for integration tests.
package tidbtest

import (
	"database/sql"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"

	"tidb-charts/internal/sqlutil"
)

// DB is an isolated database dropped when the test ends.
type DB struct {
	DB   *sql.DB
	Name string
}

// Config is the server a test database is created on.
type Config struct {
	Addr     string
	User     string
	Password string
	TLS      string
}

// ConfigFromEnv reads TICHARTS_TEST_HOST, _PORT, _USER, _PASSWORD and
// _TLS. The test is skipped when no host is set.
func ConfigFromEnv(t *testing.T) Config {
	t.Helper()

	host := os.Getenv("TICHARTS_TEST_HOST")
	if host == "" {
		t.Skip("TICHARTS_TEST_HOST not set; skipping TiDB integration test")
	}
	port := os.Getenv("TICHARTS_TEST_PORT")
	if port == "" {
		port = "4000"
	}
	user := os.Getenv("TICHARTS_TEST_USER")
	if user == "" {
		user = "root"
	}

	return Config{
		Addr:     host + ":" + port,
		User:     user,
		Password: os.Getenv("TICHARTS_TEST_PASSWORD"),
		TLS:      os.Getenv("TICHARTS_TEST_TLS"),
	}
}

// DSN returns a DSN for database on the configured server.
func (c Config) DSN(database string) string {
	cfg := mysql.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = c.Addr
	cfg.User = c.User
	cfg.Passwd = c.Password
	cfg.DBName = database
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.TLSConfig = c.TLS
	return cfg.FormatDSN()
}

// New creates a uniquely named database for t and registers its cleanup.
func New(t *testing.T) *DB {
	t.Helper()

	cfg := ConfigFromEnv(t)
	name := fmt.Sprintf("charts_%s_%d", sanitizeName(t.Name()), time.Now().UnixMilli())

	admin := open(t, cfg.DSN(""))
	if _, err := admin.Exec("CREATE DATABASE " + sqlutil.QuoteIdentifier(name)); err != nil {
		_ = admin.Close()
		t.Fatalf("create test database %s: %v", name, err)
	}
	_ = admin.Close()

	tdb := &DB{DB: open(t, cfg.DSN(name)), Name: name}
	t.Cleanup(func() {
		if _, err := tdb.DB.Exec("DROP DATABASE IF EXISTS " + sqlutil.QuoteIdentifier(name)); err != nil {
			t.Logf("failed to drop test database %s: %v", name, err)
		}
		if err := tdb.DB.Close(); err != nil {
			t.Logf("failed to close test database: %v", err)
		}
	})
	return tdb
}

// Exec runs each statement in order and fails the test on the first error.
func (d *DB) Exec(t *testing.T, statements ...string) {
	t.Helper()
	for i, stmt := range statements {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := d.DB.Exec(stmt); err != nil {
			t.Fatalf("statement %d failed: %v\n%s", i+1, err, stmt)
		}
	}
}

func open(t *testing.T, dsn string) *sql.DB {
	t.Helper()
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		t.Fatalf("open TiDB: %v", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		t.Fatalf("ping TiDB: %v", err)
	}
	return db
}

// sanitizeName keeps letters and digits and truncates so the timestamp
// suffix fits in the 64 character identifier limit.
func sanitizeName(name string) string {
	mapped := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, name)
	if len(mapped) > 40 {
		mapped = mapped[:40]
	}
	return mapped
}
