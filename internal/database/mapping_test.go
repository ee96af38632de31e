package database

import (
	"database/sql"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Audit struct {
	CreatedAt time.Time `db:"created_at"`
	UpdatedBy string
}

type Account struct {
	ID       int64 `db:"id,pk,identity"`
	TenantID int64 `db:"tenant_id,pk"`
	Email    string
	Nickname sql.NullString
	Secret   string `db:"-"`
	Audit
	*Extra
	note string
}

type Extra struct {
	Score float64
}

type ledgerEntry struct {
	Amount int64
}

func (ledgerEntry) TableIdentity() TableIdentity {
	return TableIdentity{Name: "entries", Schema: "ledger"}
}

func TestSnakeCase(t *testing.T) {
	tests := map[string]string{
		"ID":         "id",
		"UserID":     "user_id",
		"CreatedAt":  "created_at",
		"HTTPServer": "http_server",
		"Score2":     "score2",
		"already":    "already",
	}
	for in, want := range tests {
		assert.Equal(t, want, snakeCase(in), in)
	}
}

func TestEntity_Columns(t *testing.T) {
	e, err := NewMappingSchema().Entity(reflect.TypeFor[*Account]())
	require.NoError(t, err)

	var names []string
	for _, c := range e.Columns {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"id", "tenant_id", "email", "nickname", "created_at", "updated_by", "score"}, names)
	assert.Equal(t, TableIdentity{Name: "account"}, e.Table)

	id := e.Column("ID")
	require.NotNil(t, id)
	assert.True(t, id.PrimaryKey)
	assert.True(t, id.Identity)

	assert.Same(t, e.Column("tenant_id"), e.Column("TenantID"))
	assert.Nil(t, e.Column("secret"))
	assert.Nil(t, e.Column("note"))

	keys := e.Keys()
	require.Len(t, keys, 2)
	assert.Equal(t, "tenant_id", keys[1].Name)
}

func TestEntity_TableIdentityMethod(t *testing.T) {
	e, err := EntityFor[ledgerEntry](NewMappingSchema())
	require.NoError(t, err)
	assert.Equal(t, TableIdentity{Name: "entries", Schema: "ledger"}, e.Table)
}

func TestEntity_IsCached(t *testing.T) {
	ms := NewMappingSchema()
	a, err := EntityFor[Account](ms)
	require.NoError(t, err)
	b, err := EntityFor[*Account](ms)
	require.NoError(t, err)
	assert.Same(t, a, b)
}

// TreeNode embeds a pointer to its own type.
type TreeNode struct {
	*TreeNode
	ID    int `db:"id,pk"`
	Label string
}

func TestEntity_SelfEmbeddingStopsAtCycle(t *testing.T) {
	e, err := EntityFor[TreeNode](NewMappingSchema())
	require.NoError(t, err)

	require.Len(t, e.Columns, 2)
	assert.Equal(t, "id", e.Columns[0].Name)
	assert.Equal(t, "label", e.Columns[1].Name)
	assert.Equal(t, []int{1}, e.Columns[0].Index)
}

func TestEntity_RejectsNonStructs(t *testing.T) {
	ms := NewMappingSchema()
	for _, typ := range []reflect.Type{reflect.TypeFor[int](), reflect.TypeFor[time.Time](), reflect.TypeFor[sql.NullInt64]()} {
		_, err := ms.Entity(typ)
		assert.Error(t, err, typ.String())
	}
}

func TestValues_NilEmbeddedPointer(t *testing.T) {
	ms := NewMappingSchema()
	e, err := EntityFor[Account](ms)
	require.NoError(t, err)

	vals, err := ms.Values(e, []*Column{e.Column("score"), e.Column("email")}, Account{Email: "a@b"})
	require.NoError(t, err)
	assert.Equal(t, []any{float64(0), "a@b"}, vals)

	_, err = ms.Values(e, e.Columns, ledgerEntry{})
	assert.Error(t, err)
}

func TestTableIdentity_Or(t *testing.T) {
	explicit := TableIdentity{Name: "n1"}
	handle := TableIdentity{Name: "n2", Schema: "s2"}
	defaults := TableIdentity{Name: "n3", Schema: "s3", Database: "d3"}

	assert.Equal(t, TableIdentity{Name: "n1", Schema: "s2", Database: "d3"}, explicit.Or(handle).Or(defaults))
	assert.Equal(t, "d3.s3.n3", defaults.String())
	assert.Equal(t, "s2.n2", handle.String())
}
