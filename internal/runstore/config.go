package runstore

import (
	"net"
	"net/url"
	"strconv"
	"time"
)

// Config selects the run history database. Driver is "sqlite" (the default)
// or "postgres".
type Config struct {
	Driver     string
	SQLitePath string
	Postgres   PostgresConfig
}

// PostgresConfig holds PostgreSQL connection and pool settings.
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// SQLite returns a Config for the database file at path.
func SQLite(path string) Config {
	return Config{Driver: sqliteDialect.driver, SQLitePath: path}
}

// Postgres returns a Config for the given server settings.
func Postgres(pg PostgresConfig) Config {
	return Config{Driver: postgresDialect.driver, Postgres: pg}
}

// LocalPostgres returns settings for a server on localhost with the pool
// sizes levelgen uses.
func LocalPostgres() PostgresConfig {
	return PostgresConfig{
		Host:            "localhost",
		Port:            5432,
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DSN returns a postgres:// URL for lib/pq. Credentials are escaped.
func (c PostgresConfig) DSN() string {
	mode := c.SSLMode
	if mode == "" {
		mode = "disable"
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:     "/" + c.Database,
		RawQuery: url.Values{"sslmode": {mode}}.Encode(),
	}
	return u.String()
}
