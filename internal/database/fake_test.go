package database

import (
	"context"
	"errors"
	"reflect"
)

// fakeRows serves fixed rows. Scan into *any stores the raw value; other
// destinations are set by reflection.
type fakeRows struct {
	cols   []string
	data   [][]any
	pos    int
	closed bool
	err    error
}

func (r *fakeRows) Next() bool {
	if r.closed || r.pos >= len(r.data) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	if r.pos == 0 || r.pos > len(r.data) {
		return errors.New("scan without row")
	}
	row := r.data[r.pos-1]
	if len(dest) != len(row) {
		return errors.New("column count mismatch")
	}
	for i, d := range dest {
		if p, ok := d.(*any); ok {
			*p = row[i]
			continue
		}
		reflect.ValueOf(d).Elem().Set(reflect.ValueOf(row[i]))
	}
	return nil
}

func (r *fakeRows) Columns() ([]string, error) { return r.cols, nil }
func (r *fakeRows) Close()                     { r.closed = true }
func (r *fakeRows) Err() error                 { return r.err }

type call struct {
	sql  string
	args []any
	ctx  context.Context
}

type fakeSession struct {
	rows     *fakeRows
	queryErr error
	execErr  error
	affected int64

	queries []call
	execs   []call
	closed  int
}

func (s *fakeSession) Query(ctx context.Context, sql string, args ...any) (Rows, error) {
	s.queries = append(s.queries, call{sql: sql, args: args, ctx: ctx})
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	if s.rows == nil {
		return &fakeRows{}, nil
	}
	return s.rows, nil
}

func (s *fakeSession) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	s.execs = append(s.execs, call{sql: sql, args: args, ctx: ctx})
	if s.execErr != nil {
		return 0, s.execErr
	}
	return s.affected, nil
}

func (s *fakeSession) Close() error {
	s.closed++
	return nil
}

// fakeProvider binds like postgres and records bulk and merge requests,
// draining their record streams.
type fakeProvider struct {
	bulk    []*BulkCopyRequest
	bulkRec [][]any
	merges  []*MergeRequest
	mergeRc [][]any
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) BindCommand(cmd *Command) (string, []any, error) {
	return DialectPostgres.Bind(cmd)
}

func (p *fakeProvider) BulkCopy(_ context.Context, _ *Connection, req *BulkCopyRequest) (*BulkCopyRowsCopied, error) {
	p.bulk = append(p.bulk, req)
	for rec, err := range req.Records() {
		if err != nil {
			return req.Result(), err
		}
		p.bulkRec = append(p.bulkRec, rec)
		req.Copied(1)
	}
	return req.Result(), nil
}

func (p *fakeProvider) Merge(_ context.Context, _ *Connection, req *MergeRequest) (int64, error) {
	p.merges = append(p.merges, req)
	var n int64
	for rec, err := range req.Records() {
		if err != nil {
			return n, err
		}
		p.mergeRc = append(p.mergeRc, rec)
		n++
	}
	return n, nil
}

func newTestConn(s *fakeSession, opts ...Option) (*Connection, *fakeProvider) {
	p := &fakeProvider{}
	conn, err := NewConnection(s, p, opts...)
	if err != nil {
		panic(err)
	}
	return conn, p
}
