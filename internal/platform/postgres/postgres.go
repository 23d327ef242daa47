// Package postgres opens the optional audit database through the pgx
// database/sql adapter.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/univer-labs/plugins-api/internal/platform/env"
)

type Config struct {
	// URL is empty when auditing is switched off.
	URL             string
	ApplicationName string
	PingTimeout     time.Duration
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// ConfigFromEnv reads AUDIT_DATABASE_URL and the AUDIT_DB_* pool settings.
func ConfigFromEnv() (Config, error) {
	cfg := Config{
		URL:             env.Trimmed("AUDIT_DATABASE_URL", ""),
		ApplicationName: env.Trimmed("AUDIT_DB_APPLICATION_NAME", "plugins-api"),
	}

	var err error
	if cfg.PingTimeout, err = env.Duration("AUDIT_DB_PING_TIMEOUT", 2*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.MaxOpenConns, err = env.Int("AUDIT_DB_MAX_OPEN_CONNS", 4); err != nil {
		return Config{}, err
	}
	if cfg.MaxIdleConns, err = env.Int("AUDIT_DB_MAX_IDLE_CONNS", 2); err != nil {
		return Config{}, err
	}
	if cfg.ConnMaxLifetime, err = env.Duration("AUDIT_DB_CONN_MAX_LIFETIME", 30*time.Minute); err != nil {
		return Config{}, err
	}
	if cfg.ConnMaxIdleTime, err = env.Duration("AUDIT_DB_CONN_MAX_IDLE_TIME", 5*time.Minute); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Enabled() bool {
	return c.URL != ""
}

// Validate checks the pool settings and, when a URL is set, that pgx can
// parse it. An empty URL is valid and means the database is not used.
func (c Config) Validate() error {
	switch {
	case c.PingTimeout <= 0:
		return errors.New("AUDIT_DB_PING_TIMEOUT must be positive")
	case c.MaxOpenConns < 1:
		return errors.New("AUDIT_DB_MAX_OPEN_CONNS must be >= 1")
	case c.MaxIdleConns < 0 || c.MaxIdleConns > c.MaxOpenConns:
		return fmt.Errorf("AUDIT_DB_MAX_IDLE_CONNS must be between 0 and %d", c.MaxOpenConns)
	case c.ConnMaxLifetime < 0 || c.ConnMaxIdleTime < 0:
		return errors.New("AUDIT_DB_CONN_MAX_LIFETIME and AUDIT_DB_CONN_MAX_IDLE_TIME must be >= 0")
	}
	if c.Enabled() {
		if _, err := c.connConfig(); err != nil {
			return err
		}
	}
	return nil
}

func (c Config) connConfig() (*pgx.ConnConfig, error) {
	connCfg, err := pgx.ParseConfig(c.URL)
	if err != nil {
		return nil, fmt.Errorf("AUDIT_DATABASE_URL: %w", err)
	}
	if c.ApplicationName != "" {
		connCfg.RuntimeParams["application_name"] = c.ApplicationName
	}
	if connCfg.ConnectTimeout == 0 {
		connCfg.ConnectTimeout = c.PingTimeout
	}
	return connCfg, nil
}

// Open returns a pooled handle that has answered a ping.
func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	if !cfg.Enabled() {
		return nil, errors.New("AUDIT_DATABASE_URL is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	connCfg, err := cfg.connConfig()
	if err != nil {
		return nil, err
	}

	db := stdlib.OpenDB(*connCfg)
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping audit database: %w", err)
	}
	return db, nil
}
