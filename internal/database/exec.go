package database

import (
	"context"
	"reflect"
	"time"
)

// CommandInfo is a command bound to the connection that runs it. It offers
// the four execution modes: scalar, typed rows, non-query and raw reader.
type CommandInfo struct {
	conn *Connection
	cmd  *Command
}

// NewCommandInfo binds cmd to conn.
func NewCommandInfo(conn *Connection, cmd *Command) (*CommandInfo, error) {
	if conn == nil {
		return nil, errInvalidInput("connection is nil")
	}
	if cmd == nil {
		return nil, errInvalidInput("command is nil")
	}
	return &CommandInfo{conn: conn, cmd: cmd}, nil
}

// SetCommand normalizes args and binds a new text command to conn.
func SetCommand(conn *Connection, text string, args Args, opts ...CommandOption) (*CommandInfo, error) {
	if conn == nil {
		return nil, errInvalidInput("connection is nil")
	}
	return conn.SetCommand(text, args, opts...)
}

func (ci *CommandInfo) Command() *Command       { return ci.cmd }
func (ci *CommandInfo) Connection() *Connection { return ci.conn }

// Execute runs a non-query command and returns the driver's affected-row
// count unchanged.
func (ci *CommandInfo) Execute(ctx context.Context) (int64, error) {
	conn := ci.conn
	if conn.closed {
		return 0, errClosed()
	}
	sql, args, err := conn.provider.BindCommand(ci.cmd)
	if err != nil {
		return 0, err
	}

	ctx, cancel := conn.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	n, err := conn.session.Exec(ctx, sql, args...)
	conn.trace(TraceInfo{
		Kind:         ci.cmd.kind,
		SQL:          sql,
		Params:       ci.cmd.params,
		Duration:     time.Since(start),
		RowsAffected: n,
		Err:          err,
	})
	if err != nil {
		return 0, err
	}

	if ci.cmd.behavior.Has(BehaviorCloseConnection) {
		return n, conn.Close()
	}
	return n, nil
}

// ExecuteReader runs the command and returns a forward-only reader over its
// result. The caller must Close the reader.
func (ci *CommandInfo) ExecuteReader(ctx context.Context) (*DataReader, error) {
	rows, release, err := ci.open(ctx)
	if err != nil {
		return nil, err
	}
	return newDataReader(rows, release, ci.cmd.behavior), nil
}

// Scalar runs ci and converts the first column of the first row to T. No
// rows yield T's zero value and a nil error.
func Scalar[T any](ctx context.Context, ci *CommandInfo) (T, error) {
	var zero T
	if ci == nil {
		return zero, errInvalidInput("command is nil")
	}
	rows, release, err := ci.open(ctx)
	if err != nil {
		return zero, err
	}
	defer release()

	if !rows.Next() {
		return zero, rows.Err()
	}
	cols, err := rows.Columns()
	if err != nil {
		return zero, err
	}
	if len(cols) == 0 {
		return zero, nil
	}
	vals := scanTargets(len(cols))
	if err := rows.Scan(vals...); err != nil {
		return zero, err
	}

	rv, err := ci.conn.schema.convertValue(*(vals[0].(*any)), reflect.TypeFor[T]())
	if err != nil {
		return zero, err
	}
	return valueAs[T](rv), nil
}

// QueryCommand runs ci and maps each row onto T by column name.
func QueryCommand[T any](ctx context.Context, ci *CommandInfo) (*Cursor[T], error) {
	if ci == nil {
		return nil, errInvalidInput("command is nil")
	}
	plan := &rowPlan[T]{schema: ci.conn.schema}
	return openCursor(ctx, ci, plan.mapRow)
}

// QueryCommandWith runs ci and maps each row with mapRow.
func QueryCommandWith[T any](ctx context.Context, ci *CommandInfo, mapRow func(Row) (T, error)) (*Cursor[T], error) {
	if ci == nil {
		return nil, errInvalidInput("command is nil")
	}
	if mapRow == nil {
		return nil, errInvalidInput("row mapper is nil")
	}
	return openCursor(ctx, ci, func(r Rows) (T, error) { return mapRow(r) })
}

func openCursor[T any](ctx context.Context, ci *CommandInfo, mapRow func(Rows) (T, error)) (*Cursor[T], error) {
	rows, release, err := ci.open(ctx)
	if err != nil {
		return nil, err
	}
	return &Cursor[T]{
		rows:    rows,
		release: release,
		mapRow:  mapRow,
		single:  ci.cmd.behavior.Has(BehaviorSingleRow),
		schema:  ci.cmd.behavior.Has(BehaviorSchemaOnly),
	}, nil
}

// open binds and runs a row-returning command. release closes the rows,
// drops the timeout and, under BehaviorCloseConnection, the connection.
func (ci *CommandInfo) open(ctx context.Context) (Rows, func() error, error) {
	conn := ci.conn
	if conn.closed {
		return nil, nil, errClosed()
	}
	sql, args, err := conn.provider.BindCommand(ci.cmd)
	if err != nil {
		return nil, nil, err
	}

	ctx, cancel := conn.withTimeout(ctx)
	start := time.Now()
	rows, err := conn.session.Query(ctx, sql, args...)
	conn.trace(TraceInfo{
		Kind:         ci.cmd.kind,
		SQL:          sql,
		Params:       ci.cmd.params,
		Duration:     time.Since(start),
		RowsAffected: -1,
		Err:          err,
	})
	if err != nil {
		cancel()
		return nil, nil, err
	}

	closeConn := ci.cmd.behavior.Has(BehaviorCloseConnection)
	released := false
	release := func() error {
		if released {
			return nil
		}
		released = true
		rows.Close()
		cancel()
		if closeConn {
			return conn.Close()
		}
		return nil
	}
	return rows, release, nil
}

// scanTargets returns n *any destinations.
func scanTargets(n int) []any {
	dest := make([]any, n)
	for i := range dest {
		dest[i] = new(any)
	}
	return dest
}
