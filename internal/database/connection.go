package database

import (
	"context"
	"time"

	"github.com/koustreak/dataconn/internal/logger"
	"github.com/rs/zerolog"
)

// TraceInfo describes one statement sent to the session.
type TraceInfo struct {
	Provider     string
	Kind         CommandKind
	SQL          string // native SQL after binding
	Params       []Parameter
	Duration     time.Duration
	RowsAffected int64 // -1 for row-returning statements
	Err          error
}

// Connection pairs one native session with the provider that speaks its
// dialect and the mapping schema used to marshal values. It is not safe for
// concurrent use; the caller owns its lifetime.
type Connection struct {
	session      Session
	provider     Provider
	schema       *MappingSchema
	log          *logger.Logger
	traces       []func(TraceInfo)
	queryTimeout time.Duration
	bulkDefaults BulkCopyOptions
	closed       bool
}

// Option configures a Connection.
type Option func(*Connection)

// WithMappingSchema replaces DefaultMappingSchema.
func WithMappingSchema(ms *MappingSchema) Option {
	return func(c *Connection) {
		if ms != nil {
			c.schema = ms
		}
	}
}

// WithLogger sets the logger used for traces and bulk/merge summaries.
func WithLogger(l *logger.Logger) Option {
	return func(c *Connection) {
		if l != nil {
			c.log = l
		}
	}
}

// WithTrace adds a hook called after every statement.
func WithTrace(fn func(TraceInfo)) Option {
	return func(c *Connection) {
		if fn != nil {
			c.traces = append(c.traces, fn)
		}
	}
}

// WithQueryTimeout bounds every dispatched command. Cursors and readers keep
// the deadline until they are closed.
func WithQueryTimeout(d time.Duration) Option {
	return func(c *Connection) { c.queryTimeout = d }
}

// WithBulkCopyDefaults supplies the values bulk copy uses for options the
// caller leaves at zero.
func WithBulkCopyDefaults(o BulkCopyOptions) Option {
	return func(c *Connection) { c.bulkDefaults = o }
}

// NewConnection wraps session. Both session and provider are required.
func NewConnection(session Session, provider Provider, opts ...Option) (*Connection, error) {
	if session == nil {
		return nil, errInvalidInput("session is nil")
	}
	if provider == nil {
		return nil, errInvalidInput("provider is nil")
	}
	c := &Connection{
		session:  session,
		provider: provider,
		schema:   DefaultMappingSchema,
		log:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Connection) Session() Session              { return c.session }
func (c *Connection) Provider() Provider            { return c.provider }
func (c *Connection) MappingSchema() *MappingSchema { return c.schema }
func (c *Connection) Logger() *logger.Logger        { return c.log }

// Close releases the native session. Calling it twice is a no-op.
func (c *Connection) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return c.session.Close()
}

// SetCommand builds a command bound to this connection.
func (c *Connection) SetCommand(text string, args Args, opts ...CommandOption) (*CommandInfo, error) {
	cmd, err := BuildCommand(c.schema, text, args, opts...)
	if err != nil {
		return nil, err
	}
	return &CommandInfo{conn: c, cmd: cmd}, nil
}

// ExecSQL runs native SQL through the session with tracing. Providers use it
// for the statements they synthesize.
func (c *Connection) ExecSQL(ctx context.Context, sql string, args ...any) (int64, error) {
	if c.closed {
		return 0, errClosed()
	}
	start := time.Now()
	n, err := c.session.Exec(ctx, sql, args...)
	c.trace(TraceInfo{
		Kind:         CommandText,
		SQL:          sql,
		Duration:     time.Since(start),
		RowsAffected: n,
		Err:          err,
	})
	return n, err
}

// QuerySQL is the row-returning counterpart of ExecSQL.
func (c *Connection) QuerySQL(ctx context.Context, sql string, args ...any) (Rows, error) {
	if c.closed {
		return nil, errClosed()
	}
	start := time.Now()
	rows, err := c.session.Query(ctx, sql, args...)
	c.trace(TraceInfo{
		Kind:         CommandText,
		SQL:          sql,
		Duration:     time.Since(start),
		RowsAffected: -1,
		Err:          err,
	})
	return rows, err
}

// withTimeout applies the connection's query timeout, if any.
func (c *Connection) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.queryTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.queryTimeout)
}

// Trace reports a statement that was not sent through ExecSQL or QuerySQL,
// such as a native bulk transfer.
func (c *Connection) Trace(ti TraceInfo) {
	c.trace(ti)
}

func (c *Connection) trace(ti TraceInfo) {
	ti.Provider = c.provider.Name()
	if ti.Err != nil || c.log.Enabled(zerolog.DebugLevel) {
		c.logTrace(ti)
	}
	for _, fn := range c.traces {
		fn(ti)
	}
}

func (c *Connection) logTrace(ti TraceInfo) {
	fields := map[string]any{
		"provider":    ti.Provider,
		"kind":        ti.Kind.String(),
		"sql":         ti.SQL,
		"duration_ms": ti.Duration.Milliseconds(),
	}
	if ti.RowsAffected >= 0 {
		fields["rows_affected"] = ti.RowsAffected
	}
	if len(ti.Params) > 0 {
		names := make([]string, len(ti.Params))
		for i, p := range ti.Params {
			names[i] = p.Name
		}
		fields["params"] = names
	}
	if ti.Err != nil {
		c.log.ErrorWith("command failed", ti.Err, fields)
	} else {
		c.log.DebugWith("command executed", fields)
	}
}
