package postgres

import (
	"context"
	"iter"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/koustreak/dataconn/internal/database"
)

const dialect = database.DialectPostgres

// copier is implemented by sessions that speak the COPY protocol.
type copier interface {
	CopyFrom(ctx context.Context, table pgx.Identifier, columns []string, src pgx.CopyFromSource) (int64, error)
}

// Provider implements database.Provider for PostgreSQL.
type Provider struct{}

var _ database.Provider = (*Provider)(nil)

func NewProvider() *Provider { return &Provider{} }

func (*Provider) Name() string { return "postgres" }

// BindCommand renders @name tokens as $n. Stored procedures are called as
// set-returning functions: SELECT * FROM name($1, ...).
func (*Provider) BindCommand(cmd *database.Command) (string, []any, error) {
	return dialect.Bind(cmd)
}

// BulkCopy uses COPY for CopyDefault and CopyProviderSpecific when the
// session supports it, and INSERT statements otherwise.
func (p *Provider) BulkCopy(ctx context.Context, conn *database.Connection, req *database.BulkCopyRequest) (*database.BulkCopyRowsCopied, error) {
	switch req.Options.CopyType {
	case database.CopyRowByRow:
		return database.InsertRowByRow(ctx, conn, dialect, req)
	case database.CopyMultipleRows:
		return database.InsertMultipleRows(ctx, conn, dialect, req)
	}

	cp, ok := conn.Session().(copier)
	if !ok {
		return database.InsertMultipleRows(ctx, conn, dialect, req)
	}
	return copyRecords(ctx, conn, cp, req)
}

// copyRecords streams req through COPY. Without MaxBatchSize the whole
// source goes through a single COPY; otherwise one COPY per batch.
func copyRecords(ctx context.Context, conn *database.Connection, cp copier, req *database.BulkCopyRequest) (*database.BulkCopyRowsCopied, error) {
	table := identifier(req.Table)
	cols := columnNames(req.Columns)

	if req.Options.MaxBatchSize <= 0 {
		src := newRecordSource(req.Records())
		defer src.stop()
		n, err := copyTraced(ctx, conn, cp, table, cols, src)
		if err == nil {
			err = src.Err()
		}
		if err != nil {
			return req.Result(), err
		}
		req.Copied(int(n))
		return req.Result(), nil
	}

	for batch, err := range req.Batches(req.Options.MaxBatchSize) {
		if err != nil {
			return req.Result(), err
		}
		n, err := copyTraced(ctx, conn, cp, table, cols, pgx.CopyFromRows(batch))
		if err != nil {
			return req.Result(), err
		}
		if !req.Copied(int(n)) {
			break
		}
	}
	return req.Result(), nil
}

func copyTraced(ctx context.Context, conn *database.Connection, cp copier, table pgx.Identifier, cols []string, src pgx.CopyFromSource) (int64, error) {
	start := time.Now()
	n, err := cp.CopyFrom(ctx, table, cols, src)
	conn.Trace(database.TraceInfo{
		Kind:         database.CommandText,
		SQL:          "COPY " + table.Sanitize(),
		Duration:     time.Since(start),
		RowsAffected: n,
		Err:          err,
	})
	return n, err
}

// recordSource adapts a record sequence to pgx.CopyFromSource without
// buffering it.
type recordSource struct {
	next func() ([]any, error, bool)
	stop func()
	cur  []any
	err  error
}

func newRecordSource(records iter.Seq2[[]any, error]) *recordSource {
	next, stop := iter.Pull2(records)
	return &recordSource{next: next, stop: stop}
}

func (s *recordSource) Next() bool {
	if s.err != nil {
		return false
	}
	vals, err, ok := s.next()
	if !ok {
		return false
	}
	if err != nil {
		s.err = err
		return false
	}
	s.cur = vals
	return true
}

func (s *recordSource) Values() ([]any, error) { return s.cur, nil }
func (s *recordSource) Err() error             { return s.err }

// identifier drops Database, which a postgres session cannot address.
func identifier(t database.TableIdentity) pgx.Identifier {
	if t.Schema != "" {
		return pgx.Identifier{t.Schema, t.Name}
	}
	return pgx.Identifier{t.Name}
}

func columnNames(cols []*database.Column) []string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names
}
