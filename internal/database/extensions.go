package database

import "context"

// Connection-level shortcuts. Each builds a fresh command from sql and args
// (nil args means no parameters) and runs it in one execution mode.

func command(conn *Connection, sql string, args Args, opts ...CommandOption) (*CommandInfo, error) {
	if conn == nil {
		return nil, errInvalidInput("connection is nil")
	}
	return conn.SetCommand(sql, args, opts...)
}

var procedure = WithKind(CommandStoredProcedure)

// Query runs sql and maps each row onto T.
func Query[T any](ctx context.Context, conn *Connection, sql string, args Args) (*Cursor[T], error) {
	ci, err := command(conn, sql, args)
	if err != nil {
		return nil, err
	}
	return QueryCommand[T](ctx, ci)
}

// QueryProc calls the stored procedure name and maps each row onto T.
func QueryProc[T any](ctx context.Context, conn *Connection, name string, args Args) (*Cursor[T], error) {
	ci, err := command(conn, name, args, procedure)
	if err != nil {
		return nil, err
	}
	return QueryCommand[T](ctx, ci)
}

// QueryWith runs sql and maps each row with mapRow.
func QueryWith[T any](ctx context.Context, conn *Connection, sql string, mapRow func(Row) (T, error), args Args) (*Cursor[T], error) {
	ci, err := command(conn, sql, args)
	if err != nil {
		return nil, err
	}
	return QueryCommandWith(ctx, ci, mapRow)
}

// QueryProcWith calls the stored procedure name and maps each row with mapRow.
func QueryProcWith[T any](ctx context.Context, conn *Connection, name string, mapRow func(Row) (T, error), args Args) (*Cursor[T], error) {
	ci, err := command(conn, name, args, procedure)
	if err != nil {
		return nil, err
	}
	return QueryCommandWith(ctx, ci, mapRow)
}

// Execute runs a non-query statement and returns the affected-row count.
func Execute(ctx context.Context, conn *Connection, sql string, args Args) (int64, error) {
	ci, err := command(conn, sql, args)
	if err != nil {
		return 0, err
	}
	return ci.Execute(ctx)
}

// ExecuteProc calls a stored procedure as a non-query.
func ExecuteProc(ctx context.Context, conn *Connection, name string, args Args) (int64, error) {
	ci, err := command(conn, name, args, procedure)
	if err != nil {
		return 0, err
	}
	return ci.Execute(ctx)
}

// ExecuteScalar returns the first column of the first row converted to T,
// or T's zero value when there are no rows.
func ExecuteScalar[T any](ctx context.Context, conn *Connection, sql string, args Args) (T, error) {
	ci, err := command(conn, sql, args)
	if err != nil {
		var zero T
		return zero, err
	}
	return Scalar[T](ctx, ci)
}

// ExecuteScalarProc is ExecuteScalar for stored procedures.
func ExecuteScalarProc[T any](ctx context.Context, conn *Connection, name string, args Args) (T, error) {
	ci, err := command(conn, name, args, procedure)
	if err != nil {
		var zero T
		return zero, err
	}
	return Scalar[T](ctx, ci)
}

// ExecuteReader runs sql and returns a raw reader the caller must close.
func ExecuteReader(ctx context.Context, conn *Connection, sql string, args Args) (*DataReader, error) {
	return ExecuteReaderWith(ctx, conn, sql, CommandText, BehaviorDefault, args)
}

// ExecuteReaderWith is ExecuteReader with an explicit kind and behavior.
func ExecuteReaderWith(ctx context.Context, conn *Connection, sql string, kind CommandKind, behavior CommandBehavior, args Args) (*DataReader, error) {
	ci, err := command(conn, sql, args, WithKind(kind), WithBehavior(behavior))
	if err != nil {
		return nil, err
	}
	return ci.ExecuteReader(ctx)
}

// Read runs sql and hands the reader to fn, releasing it on every exit path.
func Read(ctx context.Context, conn *Connection, sql string, args Args, fn func(*DataReader) error) error {
	ci, err := command(conn, sql, args)
	if err != nil {
		return err
	}
	return WithReader(ctx, ci, fn)
}
