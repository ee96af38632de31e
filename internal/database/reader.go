package database

import (
	"context"
	"fmt"
)

// DataReader is a forward-only, single-pass view of a result set for callers
// that need column-level access. It must be closed; WithReader does that on
// every exit path.
type DataReader struct {
	rows    Rows
	release func() error
	behav   CommandBehavior
	read    int
	closed  bool
}

func newDataReader(rows Rows, release func() error, behav CommandBehavior) *DataReader {
	return &DataReader{rows: rows, release: release, behav: behav}
}

// Next advances to the next row.
func (r *DataReader) Next() bool {
	if r.closed || r.behav.Has(BehaviorSchemaOnly) {
		return false
	}
	if r.behav.Has(BehaviorSingleRow) && r.read > 0 {
		return false
	}
	if !r.rows.Next() {
		return false
	}
	r.read++
	return true
}

// Columns returns the result's column names.
func (r *DataReader) Columns() ([]string, error) {
	return r.rows.Columns()
}

// Scan copies the current row into dest.
func (r *DataReader) Scan(dest ...any) error {
	if r.closed {
		return errInvalidInput("reader is closed")
	}
	return r.rows.Scan(dest...)
}

// Values returns the current row as driver values.
func (r *DataReader) Values() ([]any, error) {
	cols, err := r.rows.Columns()
	if err != nil {
		return nil, err
	}
	dest := scanTargets(len(cols))
	if err := r.Scan(dest...); err != nil {
		return nil, err
	}
	out := make([]any, len(dest))
	for i, d := range dest {
		out[i] = *(d.(*any))
	}
	return out, nil
}

// Err returns the error, if any, met during iteration.
func (r *DataReader) Err() error {
	return r.rows.Err()
}

// Close releases the result set. It is safe to call more than once.
func (r *DataReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.release()
}

// WithReader runs ci, hands the reader to fn and always releases it, even
// when fn panics.
func WithReader(ctx context.Context, ci *CommandInfo, fn func(*DataReader) error) (err error) {
	if ci == nil {
		return errInvalidInput("command is nil")
	}
	if fn == nil {
		return errInvalidInput("reader callback is nil")
	}
	r, err := ci.ExecuteReader(ctx)
	if err != nil {
		return err
	}
	defer func() {
		cerr := r.Close()
		if err == nil && cerr != nil {
			err = fmt.Errorf("close reader: %w", cerr)
		}
	}()

	if err := fn(r); err != nil {
		return err
	}
	return r.Err()
}
