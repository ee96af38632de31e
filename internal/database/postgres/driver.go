// Package postgres provides the PostgreSQL session and provider for the
// database package, backed by pgx.
package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/koustreak/dataconn/internal/database"
	"github.com/koustreak/dataconn/internal/errs"
	"github.com/koustreak/dataconn/internal/logger"
)

// DB is a PostgreSQL connection pool. It is safe for concurrent use; the
// Connections it hands out are not.
type DB struct {
	pool *pgxpool.Pool
	cfg  *database.Config
	log  *logger.Logger
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

	pool, err := buildPool(ctx, cfg)
	if err != nil {
		return nil, err
	}

	db := &DB{pool: pool, cfg: cfg, log: log}
	if err := db.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	log.With().
		Str("driver", "postgres").
		Int("max_conns", int(pool.Config().MaxConns)).
		Logger().Info("connection pool ready")
	return db, nil
}

// Ping verifies the database is reachable by acquiring and releasing a connection.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.pool.Ping(ctx); err != nil {
		return mapError(err, "ping failed")
	}
	return nil
}

// Close drains the connection pool. Call when the application shuts down.
func (db *DB) Close() {
	db.pool.Close()
}

// Pool returns the underlying pgxpool (for advanced use)
func (db *DB) Pool() *pgxpool.Pool {
	return db.pool
}

// Connect acquires one connection from the pool and wraps it. Closing the
// returned Connection releases it back to the pool.
func (db *DB) Connect(ctx context.Context, opts ...database.Option) (*database.Connection, error) {
	c, err := db.pool.Acquire(ctx)
	if err != nil {
		return nil, mapError(err, "failed to acquire connection")
	}

	base := []database.Option{
		database.WithLogger(db.log),
		database.WithQueryTimeout(db.cfg.QueryTimeout),
	}
	conn, err := database.NewConnection(NewSession(c), NewProvider(), append(base, opts...)...)
	if err != nil {
		c.Release()
		return nil, err
	}
	return conn, nil
}

// Session adapts an acquired pgx connection to database.Session. Statement
// errors are returned as pgx reports them.
type Session struct {
	conn *pgxpool.Conn
}

var _ database.Session = (*Session)(nil)

// NewSession wraps an acquired pool connection.
func NewSession(conn *pgxpool.Conn) *Session {
	return &Session{conn: conn}
}

func (s *Session) Query(ctx context.Context, sql string, args ...any) (database.Rows, error) {
	rows, err := s.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return &pgxRows{rows: rows}, nil
}

func (s *Session) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	tag, err := s.conn.Exec(ctx, sql, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// CopyFrom streams src into table with the COPY protocol.
func (s *Session) CopyFrom(ctx context.Context, table pgx.Identifier, columns []string, src pgx.CopyFromSource) (int64, error) {
	return s.conn.CopyFrom(ctx, table, columns, src)
}

// Close releases the connection back to the pool.
func (s *Session) Close() error {
	if s.conn != nil {
		s.conn.Release()
		s.conn = nil
	}
	return nil
}

// pgxRows wraps pgx.Rows to satisfy database.Rows.
type pgxRows struct {
	rows pgx.Rows
}

func (r *pgxRows) Next() bool             { return r.rows.Next() }
func (r *pgxRows) Scan(dest ...any) error { return r.rows.Scan(dest...) }
func (r *pgxRows) Close()                 { r.rows.Close() }
func (r *pgxRows) Err() error             { return r.rows.Err() }

func (r *pgxRows) Columns() ([]string, error) {
	descs := r.rows.FieldDescriptions()
	cols := make([]string, len(descs))
	for i, d := range descs {
		cols[i] = d.Name
	}
	return cols, nil
}
