package database

import (
	"context"
	"slices"
	"testing"

	"github.com/koustreak/dataconn/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stock struct {
	Warehouse string `db:"warehouse,pk"`
	SKU       string `db:"sku,pk"`
	Qty       int
}

var stockRows = []stock{
	{Warehouse: "north", SKU: "a", Qty: 1},
	{Warehouse: "south", SKU: "b", Qty: 2},
	{Warehouse: "north", SKU: "c", Qty: 3},
}

func TestMerge_PlainUpsert(t *testing.T) {
	conn, p := newTestConn(&fakeSession{})

	n, err := Merge(context.Background(), conn, slices.Values(stockRows), MergeOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	require.Len(t, p.merges, 1)
	req := p.merges[0]
	assert.False(t, req.Delete)
	assert.Nil(t, req.Scope)
	assert.Equal(t, TableIdentity{Name: "stock"}, req.Table)
	require.Len(t, req.Keys, 2)
	assert.True(t, req.IsKey(req.Entity.Column("sku")))
	assert.False(t, req.IsKey(req.Entity.Column("qty")))
	assert.Equal(t, []any{"north", "a", int64(1)}, p.mergeRc[0])
}

func TestMergeDelete(t *testing.T) {
	conn, p := newTestConn(&fakeSession{})

	_, err := MergeDelete(context.Background(), conn, true, slices.Values(stockRows), MergeOptions{SchemaName: "inv"})
	require.NoError(t, err)
	assert.True(t, p.merges[0].Delete)
	assert.Nil(t, p.merges[0].Scope)
	assert.Equal(t, TableIdentity{Name: "stock", Schema: "inv"}, p.merges[0].Table)
}

func TestMergeScoped(t *testing.T) {
	conn, p := newTestConn(&fakeSession{})
	pred := &Predicate[stock]{
		Where: "warehouse = @wh",
		Args:  Arg(P("wh", "north")),
	}

	_, err := MergeScoped(context.Background(), conn, pred, slices.Values(stockRows[:1]), MergeOptions{})
	require.NoError(t, err)

	req := p.merges[0]
	assert.True(t, req.Delete)
	require.NotNil(t, req.Scope)
	assert.Equal(t, "warehouse = @wh", req.Scope.Where)
	assert.Equal(t, []Parameter{P("wh", "north")}, req.Scope.Params)

	_, err = MergeScoped[stock](context.Background(), conn, nil, slices.Values(stockRows), MergeOptions{})
	assert.True(t, errs.IsInvalidInput(err))
}

func TestMergeFiltered(t *testing.T) {
	conn, p := newTestConn(&fakeSession{})
	pred := &Predicate[stock]{
		Match: func(s stock) bool { return s.Warehouse == "north" },
		Where: "warehouse = @wh",
		Args:  Arg(P("wh", "north")),
	}

	n, err := MergeFiltered(context.Background(), conn, slices.Values(stockRows), pred, MergeOptions{TableName: "stock_levels"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, [][]any{{"north", "a", int64(1)}, {"north", "c", int64(3)}}, p.mergeRc)
	assert.Equal(t, "stock_levels", p.merges[0].Table.Name)
	assert.NotNil(t, p.merges[0].Scope)
}

func TestMerge_PredicateWithoutWhereHasNoScope(t *testing.T) {
	conn, p := newTestConn(&fakeSession{})
	pred := &Predicate[stock]{Match: func(s stock) bool { return s.Qty > 1 }}

	_, err := GetTable[stock](conn).MergeFiltered(context.Background(), slices.Values(stockRows), pred, MergeOptions{})
	require.NoError(t, err)
	assert.True(t, p.merges[0].Delete)
	assert.Nil(t, p.merges[0].Scope)
	assert.Len(t, p.mergeRc, 2)
}

func TestMerge_BadScopeArgsRejected(t *testing.T) {
	conn, p := newTestConn(&fakeSession{})
	pred := &Predicate[stock]{Where: "qty > @n", Args: ArgObject("nope")}

	_, err := MergeScoped(context.Background(), conn, pred, slices.Values(stockRows), MergeOptions{})
	assert.True(t, errs.IsUnsupportedParameterShape(err))
	assert.Empty(t, p.merges)
}

func TestMerge_RejectsBadTargets(t *testing.T) {
	ctx := context.Background()

	_, err := GetTable[stock](nil).Merge(ctx, slices.Values(stockRows), MergeOptions{})
	assert.True(t, errs.IsInvalidTarget(err))

	_, err = Merge[stock](ctx, nil, slices.Values(stockRows), MergeOptions{})
	assert.True(t, errs.IsInvalidInput(err))

	conn, _ := newTestConn(&fakeSession{})
	_, err = GetTable[stock](conn).MergeScoped(ctx, nil, slices.Values(stockRows), MergeOptions{})
	assert.True(t, errs.IsInvalidInput(err))
}

func TestTableMerge_OptionsOverrideHandle(t *testing.T) {
	conn, p := newTestConn(&fakeSession{})
	table := GetTable[stock](conn).WithName("stock").WithSchema("inventory")

	_, err := table.Merge(context.Background(), slices.Values(stockRows), MergeOptions{SchemaName: "archive"})
	require.NoError(t, err)
	_, err = table.MergeDelete(context.Background(), true, slices.Values(stockRows), MergeOptions{TableName: "stock_2024", DatabaseName: "wh"})
	require.NoError(t, err)

	require.Len(t, p.merges, 2)
	assert.Equal(t, TableIdentity{Name: "stock", Schema: "archive"}, p.merges[0].Table)
	assert.Equal(t, TableIdentity{Name: "stock_2024", Schema: "inventory", Database: "wh"}, p.merges[1].Table)
}

func TestMergeRequest_UseKeys(t *testing.T) {
	e, err := EntityFor[stock](NewMappingSchema())
	require.NoError(t, err)
	req := NewMergeRequest(TableIdentity{Name: "stock"}, e, e.Columns, false, nil, nil)

	require.NoError(t, req.UseKeys([]string{"SKU"}))
	require.Len(t, req.Keys, 1)
	assert.Equal(t, "sku", req.Keys[0].Name)

	assert.True(t, errs.IsInvalidTarget(req.UseKeys([]string{"missing"})))
	assert.True(t, errs.IsInvalidTarget(req.UseKeys(nil)))
	assert.Len(t, req.Keys, 1)
}
