// Package connector opens the pool named by the configuration's driver.
package connector

import (
	"context"

	"github.com/koustreak/dataconn/internal/config"
	"github.com/koustreak/dataconn/internal/database"
	"github.com/koustreak/dataconn/internal/database/mysql"
	"github.com/koustreak/dataconn/internal/database/postgres"
	"github.com/koustreak/dataconn/internal/errs"
	"github.com/koustreak/dataconn/internal/logger"
)

// Pool hands out single-use Connections. Both postgres.DB and mysql.DB
// satisfy it.
type Pool interface {
	Ping(ctx context.Context) error
	Connect(ctx context.Context, opts ...database.Option) (*database.Connection, error)
	Close()
}

var (
	_ Pool = (*postgres.DB)(nil)
	_ Pool = (*mysql.DB)(nil)
)

// Open builds the logger and pool described by cfg. Connections from the
// returned pool carry the configured bulk copy defaults.
func Open(ctx context.Context, cfg *config.Config) (Pool, *logger.Logger, error) {
	if cfg == nil {
		return nil, nil, errs.New(errs.ErrKindInvalidInput, "config is nil")
	}
	log := logger.New(&cfg.Log)

	var (
		pool Pool
		err  error
	)
	switch cfg.Database.Driver {
	case database.DriverPostgres:
		pool, err = postgres.Open(ctx, &cfg.Database, log)
	case database.DriverMySQL:
		pool, err = mysql.Open(ctx, &cfg.Database, log)
	default:
		err = errs.Newf(errs.ErrKindInvalidInput, "unsupported driver %q", cfg.Database.Driver)
	}
	if err != nil {
		return nil, log, err
	}
	return &configured{Pool: pool, opts: cfg.ConnectionOptions()}, log, nil
}

type configured struct {
	Pool
	opts []database.Option
}

func (c *configured) Connect(ctx context.Context, opts ...database.Option) (*database.Connection, error) {
	return c.Pool.Connect(ctx, append(append([]database.Option(nil), c.opts...), opts...)...)
}
