package mysql

import (
	"database/sql"
	"time"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/koustreak/dataconn/internal/database"
	"github.com/koustreak/dataconn/internal/errs"
)

const (
	defaultMaxOpenConns    = 10
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 30 * time.Minute
	defaultConnMaxIdleTime = 10 * time.Minute
)

// buildPool configures and returns a *sql.DB with pool settings. The DSN is
// parsed so that time columns scan as time.Time and ConnectTimeout applies
// to dialing.
func buildPool(cfg *database.Config) (*sql.DB, error) {
	dsn, err := driverConfig(cfg)
	if err != nil {
		return nil, err
	}

	connector, err := gomysql.NewConnector(dsn)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "invalid mysql DSN", err)
	}
	db := sql.OpenDB(connector)

	maxOpen := int(cfg.MaxConns)
	if maxOpen == 0 {
		maxOpen = defaultMaxOpenConns
	}
	maxIdle := int(cfg.MinConns)
	if maxIdle == 0 {
		maxIdle = defaultMaxIdleConns
	}
	lifetime := cfg.MaxConnLifetime
	if lifetime == 0 {
		lifetime = defaultConnMaxLifetime
	}
	idle := cfg.MaxConnIdleTime
	if idle == 0 {
		idle = defaultConnMaxIdleTime
	}

	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(lifetime)
	db.SetConnMaxIdleTime(idle)

	return db, nil
}

// driverConfig parses cfg.DSN and applies the settings the provider relies on.
func driverConfig(cfg *database.Config) (*gomysql.Config, error) {
	dsn, err := gomysql.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "invalid mysql DSN", err)
	}
	dsn.ParseTime = true
	if cfg.ConnectTimeout > 0 && dsn.Timeout == 0 {
		dsn.Timeout = cfg.ConnectTimeout
	}
	return dsn, nil
}
