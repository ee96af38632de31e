package database

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/koustreak/dataconn/internal/errs"
	"github.com/koustreak/dataconn/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type order struct {
	ID       int64
	Customer string
	Total    float64
	Note     sql.NullString
}

func orderRows() *fakeRows {
	return &fakeRows{
		cols: []string{"id", "CUSTOMER", "total", "note", "unmapped"},
		data: [][]any{
			{int64(1), "ann", 9.5, nil, "x"},
			{int64(2), []byte("bo"), int64(12), "gift", "y"},
			{int64(3), "cy", 0.25, nil, "z"},
		},
	}
}

func TestExecute_ReturnsNativeCount(t *testing.T) {
	for _, n := range []int64{0, 3, -1} {
		s := &fakeSession{affected: n}
		conn, _ := newTestConn(s)

		got, err := Execute(context.Background(), conn, "UPDATE t SET a = @a", Arg(P("a", 1)))
		require.NoError(t, err)
		assert.Equal(t, n, got)

		require.Len(t, s.execs, 1)
		assert.Equal(t, "UPDATE t SET a = $1", s.execs[0].sql)
		assert.Equal(t, []any{1}, s.execs[0].args)
	}
}

func TestExecute_NativeErrorIsUnwrapped(t *testing.T) {
	native := errors.New("relation does not exist")
	conn, _ := newTestConn(&fakeSession{execErr: native})

	_, err := Execute(context.Background(), conn, "DELETE FROM missing", nil)
	assert.Same(t, native, err)
	assert.False(t, errs.IsRejected(err))
}

func TestExecute_DuplicateNamesNeverReachSession(t *testing.T) {
	s := &fakeSession{}
	conn, _ := newTestConn(s)

	_, err := Execute(context.Background(), conn, "SELECT @id", ArgList(P("id", 1), P("ID", 2)))
	assert.True(t, errs.IsInvalidCommand(err))
	assert.True(t, errs.IsRejected(err))
	assert.Empty(t, s.execs)
}

func TestExecute_RejectsBeforeSession(t *testing.T) {
	s := &fakeSession{}
	conn, _ := newTestConn(s)

	_, err := Execute(context.Background(), conn, "  ", nil)
	assert.True(t, errs.IsInvalidCommand(err))

	_, err = Execute(context.Background(), conn, "SELECT 1", ArgObject(42))
	assert.True(t, errs.IsUnsupportedParameterShape(err))

	_, err = Execute(context.Background(), nil, "SELECT 1", nil)
	assert.True(t, errs.IsInvalidInput(err))

	assert.Empty(t, s.execs)
	assert.Empty(t, s.queries)
}

func TestExecuteProc(t *testing.T) {
	s := &fakeSession{affected: 1}
	conn, _ := newTestConn(s)

	_, err := ExecuteProc(context.Background(), conn, "archive_orders", ArgList(P("before", "2024-01-01"), Out("moved")))
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM archive_orders($1)", s.execs[0].sql)
	assert.Equal(t, []any{"2024-01-01"}, s.execs[0].args)
}

func TestExecute_CloseConnection(t *testing.T) {
	s := &fakeSession{}
	conn, _ := newTestConn(s)

	ci, err := conn.SetCommand("TRUNCATE t", nil, WithBehavior(BehaviorCloseConnection))
	require.NoError(t, err)
	_, err = ci.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, s.closed)

	_, err = conn.ExecSQL(context.Background(), "SELECT 1")
	assert.True(t, errs.IsInvalidInput(err))
}

func TestClosedConnection_RejectsCommands(t *testing.T) {
	ctx := context.Background()
	s := &fakeSession{rows: orderRows()}
	conn, p := newTestConn(s)
	require.NoError(t, conn.Close())

	_, err := Execute(ctx, conn, "SELECT 1", nil)
	assert.True(t, errs.IsInvalidInput(err), "got %v", err)
	_, err = ExecuteScalar[int](ctx, conn, "SELECT 1", nil)
	assert.True(t, errs.IsInvalidInput(err))
	_, err = Query[order](ctx, conn, "SELECT * FROM orders", nil)
	assert.True(t, errs.IsInvalidInput(err))
	_, err = ExecuteReader(ctx, conn, "SELECT * FROM orders", nil)
	assert.True(t, errs.IsInvalidInput(err))
	_, err = BulkCopyDefault(ctx, conn, products(1))
	assert.True(t, errs.IsInvalidInput(err))
	_, err = Merge(ctx, conn, slices.Values([]stock{{Warehouse: "w", SKU: "s"}}), MergeOptions{})
	assert.True(t, errs.IsInvalidInput(err))

	assert.Empty(t, s.execs)
	assert.Empty(t, s.queries)
	assert.Empty(t, p.bulk)
	assert.Empty(t, p.merges)
}

func TestTrace_LogsFollowLevel(t *testing.T) {
	ctx := context.Background()

	buf := &bytes.Buffer{}
	conn, _ := newTestConn(&fakeSession{}, WithLogger(logger.New(&logger.Config{Level: "info", Format: "json", Output: buf})))
	_, err := Execute(ctx, conn, "DELETE FROM t", nil)
	require.NoError(t, err)
	assert.Empty(t, buf.String())

	native := errors.New("relation does not exist")
	conn, _ = newTestConn(&fakeSession{execErr: native}, WithLogger(logger.New(&logger.Config{Level: "info", Format: "json", Output: buf})))
	_, err = Execute(ctx, conn, "DELETE FROM t", nil)
	require.Error(t, err)
	assert.Contains(t, buf.String(), "command failed")

	buf.Reset()
	conn, _ = newTestConn(&fakeSession{}, WithLogger(logger.New(&logger.Config{Level: "debug", Format: "json", Output: buf})))
	_, err = Execute(ctx, conn, "DELETE FROM t", nil)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"sql":"DELETE FROM t"`)
}

func TestScalar_NoRowsYieldsZero(t *testing.T) {
	conn, _ := newTestConn(&fakeSession{rows: &fakeRows{cols: []string{"n"}}})

	n, err := ExecuteScalar[int](context.Background(), conn, "SELECT n FROM t WHERE false", nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	conn, _ = newTestConn(&fakeSession{rows: &fakeRows{cols: []string{"n"}}})
	p, err := ExecuteScalar[*string](context.Background(), conn, "SELECT n FROM t WHERE false", nil)
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestScalar_ConvertsFirstColumn(t *testing.T) {
	rows := &fakeRows{cols: []string{"count", "other"}, data: [][]any{{int64(42), "x"}, {int64(7), "y"}}}
	s := &fakeSession{rows: rows}
	conn, _ := newTestConn(s)

	n, err := ExecuteScalar[int32](context.Background(), conn, "SELECT count(*), 'x' FROM t WHERE a = @a", Arg(P("a", true)))
	require.NoError(t, err)
	assert.Equal(t, int32(42), n)
	assert.True(t, rows.closed)
	assert.Equal(t, "SELECT count(*), 'x' FROM t WHERE a = $1", s.queries[0].sql)
}

func TestScalar_NullIntoAny(t *testing.T) {
	conn, _ := newTestConn(&fakeSession{rows: &fakeRows{cols: []string{"v"}, data: [][]any{{nil}}}})
	v, err := ExecuteScalar[any](context.Background(), conn, "SELECT NULL", nil)
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestScalar_ConversionFailure(t *testing.T) {
	rows := &fakeRows{cols: []string{"v"}, data: [][]any{{"not a number"}}}
	conn, _ := newTestConn(&fakeSession{rows: rows})

	_, err := ExecuteScalar[int](context.Background(), conn, "SELECT v", nil)
	assert.True(t, errs.IsConversion(err))
	assert.True(t, rows.closed)
}

func TestExecuteScalarProc(t *testing.T) {
	s := &fakeSession{rows: &fakeRows{cols: []string{"total"}, data: [][]any{{"12.5"}}}}
	conn, _ := newTestConn(s)

	total, err := ExecuteScalarProc[float64](context.Background(), conn, "order_total", Arg(P("id", 9)))
	require.NoError(t, err)
	assert.Equal(t, 12.5, total)
	assert.Equal(t, "SELECT * FROM order_total($1)", s.queries[0].sql)
}

func TestQuery_MapsStructsByColumnName(t *testing.T) {
	rows := orderRows()
	conn, _ := newTestConn(&fakeSession{rows: rows})

	cur, err := Query[order](context.Background(), conn, "SELECT * FROM orders", nil)
	require.NoError(t, err)
	got, err := Collect(cur)
	require.NoError(t, err)

	assert.Equal(t, []order{
		{ID: 1, Customer: "ann", Total: 9.5},
		{ID: 2, Customer: "bo", Total: 12, Note: sql.NullString{String: "gift", Valid: true}},
		{ID: 3, Customer: "cy", Total: 0.25},
	}, got)
	assert.True(t, rows.closed)
}

func TestQuery_PointerMapAndScalarTargets(t *testing.T) {
	ctx := context.Background()

	conn, _ := newTestConn(&fakeSession{rows: orderRows()})
	ptrs, err := Query[*order](ctx, conn, "SELECT * FROM orders", nil)
	require.NoError(t, err)
	gotPtrs, err := Collect(ptrs)
	require.NoError(t, err)
	require.Len(t, gotPtrs, 3)
	assert.Equal(t, "cy", gotPtrs[2].Customer)

	conn, _ = newTestConn(&fakeSession{rows: orderRows()})
	maps, err := Query[map[string]any](ctx, conn, "SELECT * FROM orders", nil)
	require.NoError(t, err)
	gotMaps, err := Collect(maps)
	require.NoError(t, err)
	assert.Equal(t, "y", gotMaps[1]["unmapped"])
	assert.Equal(t, int64(2), gotMaps[1]["id"])

	conn, _ = newTestConn(&fakeSession{rows: orderRows()})
	ids, err := Query[int](ctx, conn, "SELECT id FROM orders", nil)
	require.NoError(t, err)
	gotIDs, err := Collect(ids)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, gotIDs)
}

func TestQuery_RowMappingError(t *testing.T) {
	rows := &fakeRows{
		cols: []string{"id", "total"},
		data: [][]any{{int64(1), 2.0}, {int64(2), "lots"}},
	}
	conn, _ := newTestConn(&fakeSession{rows: rows})

	cur, err := Query[order](context.Background(), conn, "SELECT id, total FROM orders", nil)
	require.NoError(t, err)

	var seen []int64
	var last error
	for o, err := range cur.All() {
		if err != nil {
			last = err
			break
		}
		seen = append(seen, o.ID)
	}
	assert.Equal(t, []int64{1}, seen)
	require.True(t, errs.IsRowMapping(last))

	var rme *errs.RowMappingError
	require.ErrorAs(t, last, &rme)
	assert.Equal(t, "total", rme.Column)
	assert.Equal(t, "order.Total", rme.Field)
	assert.True(t, rows.closed)
}

func TestQuery_ScalarRowMappingNamesType(t *testing.T) {
	rows := &fakeRows{cols: []string{"n"}, data: [][]any{{"x"}}}
	conn, _ := newTestConn(&fakeSession{rows: rows})

	cur, err := Query[int](context.Background(), conn, "SELECT n", nil)
	require.NoError(t, err)
	_, err = Collect(cur)

	var rme *errs.RowMappingError
	require.ErrorAs(t, err, &rme)
	assert.Equal(t, "n", rme.Column)
	assert.Equal(t, "int", rme.Field)
}

func TestCursor_IsSinglePass(t *testing.T) {
	conn, _ := newTestConn(&fakeSession{rows: orderRows()})
	cur, err := Query[order](context.Background(), conn, "SELECT * FROM orders", nil)
	require.NoError(t, err)

	first := 0
	for _, err := range cur.All() {
		require.NoError(t, err)
		first++
	}
	second := 0
	for range cur.All() {
		second++
	}
	assert.Equal(t, 3, first)
	assert.Zero(t, second)
	assert.False(t, cur.Next())
}

func TestCursor_BreakReleasesRows(t *testing.T) {
	rows := orderRows()
	conn, _ := newTestConn(&fakeSession{rows: rows}, WithQueryTimeout(time.Minute))
	s := conn.Session().(*fakeSession)

	cur, err := Query[order](context.Background(), conn, "SELECT * FROM orders", nil)
	require.NoError(t, err)

	qctx := s.queries[0].ctx
	_, hasDeadline := qctx.Deadline()
	assert.True(t, hasDeadline)

	for range cur.All() {
		break
	}
	assert.True(t, rows.closed)
	assert.ErrorIs(t, qctx.Err(), context.Canceled)
	assert.Zero(t, s.closed)
}

func TestCursor_ReadErrorSurfacesOnce(t *testing.T) {
	readErr := errors.New("connection reset")
	rows := &fakeRows{cols: []string{"id"}, data: [][]any{{int64(1)}}, err: readErr}
	conn, _ := newTestConn(&fakeSession{rows: rows})

	cur, err := Query[int64](context.Background(), conn, "SELECT id", nil)
	require.NoError(t, err)

	var errCount int
	for _, err := range cur.All() {
		if err != nil {
			assert.Same(t, readErr, err)
			errCount++
		}
	}
	for _, err := range cur.All() {
		if err != nil {
			errCount++
		}
	}
	assert.Equal(t, 1, errCount)
	assert.Same(t, readErr, cur.Err())
}

func TestQuery_Behaviors(t *testing.T) {
	ctx := context.Background()

	s := &fakeSession{rows: orderRows()}
	conn, _ := newTestConn(s)
	ci, err := conn.SetCommand("SELECT * FROM orders", nil, WithBehavior(BehaviorSingleRow))
	require.NoError(t, err)
	cur, err := QueryCommand[order](ctx, ci)
	require.NoError(t, err)
	got, err := Collect(cur)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.True(t, s.rows.closed)

	s = &fakeSession{rows: orderRows()}
	conn, _ = newTestConn(s)
	ci, err = conn.SetCommand("SELECT * FROM orders", nil, WithBehavior(BehaviorSchemaOnly|BehaviorCloseConnection))
	require.NoError(t, err)
	cur, err = QueryCommand[order](ctx, ci)
	require.NoError(t, err)
	got, err = Collect(cur)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Zero(t, s.rows.pos)
	assert.Equal(t, 1, s.closed)
}

func TestQueryWith_CustomMapper(t *testing.T) {
	s := &fakeSession{rows: &fakeRows{cols: []string{"a", "b"}, data: [][]any{{"x", int64(1)}, {"y", int64(2)}}}}
	conn, _ := newTestConn(s)

	cur, err := QueryWith(context.Background(), conn, "SELECT a, b FROM t WHERE b > @min",
		func(r Row) (string, error) {
			var a string
			var b int64
			if err := r.Scan(&a, &b); err != nil {
				return "", err
			}
			return a + ":" + string(rune('0'+b)), nil
		}, Arg(P("min", 0)))
	require.NoError(t, err)

	got, err := Collect(cur)
	require.NoError(t, err)
	assert.Equal(t, []string{"x:1", "y:2"}, got)

	_, err = QueryWith[string](context.Background(), conn, "SELECT 1", nil, nil)
	assert.True(t, errs.IsInvalidInput(err))
}

func TestQueryProc(t *testing.T) {
	s := &fakeSession{rows: orderRows()}
	conn, _ := newTestConn(s)

	cur, err := QueryProc[order](context.Background(), conn, "orders_for", Arg(P("customer", "ann")))
	require.NoError(t, err)
	defer cur.Close()

	assert.Equal(t, "SELECT * FROM orders_for($1)", s.queries[0].sql)
	assert.Equal(t, []any{"ann"}, s.queries[0].args)
}

func TestQuery_NativeErrorIsUnwrapped(t *testing.T) {
	native := errors.New("syntax error")
	conn, _ := newTestConn(&fakeSession{queryErr: native})

	_, err := Query[order](context.Background(), conn, "SELEC", nil)
	assert.Same(t, native, err)
}

func TestTraceHook(t *testing.T) {
	var traces []TraceInfo
	s := &fakeSession{affected: 2, rows: &fakeRows{cols: []string{"n"}, data: [][]any{{int64(1)}}}}
	conn, _ := newTestConn(s, WithTrace(func(ti TraceInfo) { traces = append(traces, ti) }))

	_, err := Execute(context.Background(), conn, "DELETE FROM t WHERE id = @id", Arg(P("id", 4)))
	require.NoError(t, err)
	_, err = ExecuteScalar[int](context.Background(), conn, "SELECT 1", nil)
	require.NoError(t, err)

	require.Len(t, traces, 2)
	assert.Equal(t, "fake", traces[0].Provider)
	assert.Equal(t, "DELETE FROM t WHERE id = $1", traces[0].SQL)
	assert.Equal(t, []Parameter{P("id", 4)}, traces[0].Params)
	assert.Equal(t, int64(2), traces[0].RowsAffected)
	assert.Equal(t, int64(-1), traces[1].RowsAffected)
	assert.NoError(t, traces[1].Err)
}

func TestRead_ReaderValues(t *testing.T) {
	conn, _ := newTestConn(&fakeSession{rows: orderRows()})

	var ids []any
	err := Read(context.Background(), conn, "SELECT * FROM orders", nil, func(r *DataReader) error {
		cols, err := r.Columns()
		if err != nil {
			return err
		}
		assert.Len(t, cols, 5)
		for r.Next() {
			vals, err := r.Values()
			if err != nil {
				return err
			}
			ids = append(ids, vals[0])
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []any{int64(1), int64(2), int64(3)}, ids)
}

func TestWithReader_ReleasesOnPanic(t *testing.T) {
	rows := orderRows()
	conn, _ := newTestConn(&fakeSession{rows: rows})
	ci, err := conn.SetCommand("SELECT * FROM orders", nil)
	require.NoError(t, err)

	assert.Panics(t, func() {
		_ = WithReader(context.Background(), ci, func(r *DataReader) error {
			r.Next()
			panic("boom")
		})
	})
	assert.True(t, rows.closed)
}

func TestWithReader_CallbackError(t *testing.T) {
	rows := orderRows()
	conn, _ := newTestConn(&fakeSession{rows: rows})
	ci, err := conn.SetCommand("SELECT * FROM orders", nil)
	require.NoError(t, err)

	stop := errors.New("stop")
	err = WithReader(context.Background(), ci, func(*DataReader) error { return stop })
	assert.Same(t, stop, err)
	assert.True(t, rows.closed)
}

func TestExecuteReaderWith_Behaviors(t *testing.T) {
	s := &fakeSession{rows: orderRows()}
	conn, _ := newTestConn(s)

	r, err := ExecuteReaderWith(context.Background(), conn, "SELECT * FROM orders", CommandText, BehaviorSingleRow|BehaviorCloseConnection, nil)
	require.NoError(t, err)

	n := 0
	for r.Next() {
		n++
	}
	assert.Equal(t, 1, n)
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	assert.Equal(t, 1, s.closed)

	assert.True(t, errs.IsInvalidInput(r.Scan(new(any))))
}

func TestNewConnection_RequiresSessionAndProvider(t *testing.T) {
	_, err := NewConnection(nil, &fakeProvider{})
	assert.True(t, errs.IsInvalidInput(err))
	_, err = NewConnection(&fakeSession{}, nil)
	assert.True(t, errs.IsInvalidInput(err))

	_, err = NewCommandInfo(nil, nil)
	assert.True(t, errs.IsInvalidInput(err))
	_, err = Scalar[int](context.Background(), nil)
	assert.True(t, errs.IsInvalidInput(err))
}
