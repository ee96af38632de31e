package database

import "context"

// Session is a single native database connection: the command factory the
// dispatcher drives. Drivers return native errors from Query and Exec
// unchanged. A Session is not safe for concurrent use.
type Session interface {
	// Query executes a statement that returns rows.
	Query(ctx context.Context, sql string, args ...any) (Rows, error)

	// Exec executes a statement and returns the native affected-row count,
	// which may be -1 when the driver cannot tell.
	Exec(ctx context.Context, sql string, args ...any) (int64, error)

	// Close returns the connection to its pool.
	Close() error
}

// Rows is an abstraction over a database result set.
// Callers must always call Close() when done, even on error.
type Rows interface {
	// Next advances to the next row.
	// Returns false when no more rows exist or on error.
	Next() bool

	// Scan copies the current row's columns into the provided destinations.
	Scan(dest ...any) error

	// Columns returns the column names of the result set.
	Columns() ([]string, error)

	// Close releases resources held by the result set.
	Close()

	// Err returns any error encountered during iteration.
	Err() error
}

// Row is the current row handed to caller-supplied row mappers.
type Row interface {
	Scan(dest ...any) error
}

// Provider owns everything dialect-specific: parameter binding, stored
// procedure framing, bulk transfer and merge statement synthesis.
type Provider interface {
	// Name identifies the provider in logs ("postgres", "mysql").
	Name() string

	// BindCommand turns a command into native SQL text and arguments.
	// It rejects duplicate parameter names.
	BindCommand(cmd *Command) (string, []any, error)

	// BulkCopy transfers req's records into req.Table.
	BulkCopy(ctx context.Context, conn *Connection, req *BulkCopyRequest) (*BulkCopyRowsCopied, error)

	// Merge upserts req's records into req.Table and optionally deletes
	// in-scope target rows missing from the source.
	Merge(ctx context.Context, conn *Connection, req *MergeRequest) (int64, error)
}
