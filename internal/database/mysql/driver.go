// Package mysql provides the MySQL session and provider for the database
// package, backed by database/sql and go-sql-driver/mysql.
package mysql

import (
	"context"
	"database/sql"

	"github.com/koustreak/dataconn/internal/database"
	"github.com/koustreak/dataconn/internal/errs"
	"github.com/koustreak/dataconn/internal/logger"
)

// DB is a MySQL connection pool. It is safe for concurrent use; the
// Connections it hands out are not.
type DB struct {
	db  *sql.DB
	cfg *database.Config
	log *logger.Logger
}

// Open creates the pool described by cfg and pings it before returning.
func Open(ctx context.Context, cfg *database.Config, log *logger.Logger) (*DB, error) {
	if cfg == nil {
		return nil, errs.New(errs.ErrKindInvalidInput, "config is nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop()
	}

	pool, err := buildPool(cfg)
	if err != nil {
		return nil, err
	}
	d := &DB{db: pool, cfg: cfg, log: log}

	pingCtx, cancel := ctx, context.CancelFunc(func() {})
	if cfg.ConnectTimeout > 0 {
		pingCtx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
	}
	defer cancel()

	if err := d.Ping(pingCtx); err != nil {
		_ = pool.Close()
		return nil, err
	}

	log.With().
		Str("driver", "mysql").
		Int("max_conns", pool.Stats().MaxOpenConnections).
		Logger().Info("connection pool ready")
	return d, nil
}

func (d *DB) Ping(ctx context.Context) error {
	if err := d.db.PingContext(ctx); err != nil {
		return mapError(err, "ping failed")
	}
	return nil
}

func (d *DB) Close() {
	_ = d.db.Close()
}

// SQLDB returns the underlying pool.
func (d *DB) SQLDB() *sql.DB {
	return d.db
}

// Connect takes one connection out of the pool and wraps it. Closing the
// returned Connection hands it back.
func (d *DB) Connect(ctx context.Context, opts ...database.Option) (*database.Connection, error) {
	c, err := d.db.Conn(ctx)
	if err != nil {
		return nil, mapError(err, "failed to acquire connection")
	}

	base := []database.Option{
		database.WithLogger(d.log),
		database.WithQueryTimeout(d.cfg.QueryTimeout),
	}
	conn, err := database.NewConnection(NewSession(c), NewProvider(), append(base, opts...)...)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	return conn, nil
}

// Session adapts a dedicated *sql.Conn to database.Session, so temporary
// tables and session variables survive between statements.
type Session struct {
	conn *sql.Conn
}

var _ database.Session = (*Session)(nil)

func NewSession(conn *sql.Conn) *Session {
	return &Session{conn: conn}
}

func (s *Session) Query(ctx context.Context, query string, args ...any) (database.Rows, error) {
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return &mysqlRows{rows: rows}, nil
}

func (s *Session) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := s.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return -1, nil
	}
	return n, nil
}

func (s *Session) Close() error {
	return s.conn.Close()
}

type mysqlRows struct {
	rows *sql.Rows
}

func (r *mysqlRows) Next() bool                 { return r.rows.Next() }
func (r *mysqlRows) Scan(dest ...any) error     { return r.rows.Scan(dest...) }
func (r *mysqlRows) Columns() ([]string, error) { return r.rows.Columns() }
func (r *mysqlRows) Close()                     { _ = r.rows.Close() }
func (r *mysqlRows) Err() error                 { return r.rows.Err() }
