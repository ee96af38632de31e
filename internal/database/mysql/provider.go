package mysql

import (
	"context"

	"github.com/koustreak/dataconn/internal/database"
)

const dialect = database.DialectMySQL

// Provider implements database.Provider for MySQL.
//
// @name tokens are rewritten to ? placeholders, so MySQL user variables
// cannot appear in command text that also binds named parameters; @@system
// variables are left alone.
type Provider struct{}

var _ database.Provider = (*Provider)(nil)

func NewProvider() *Provider { return &Provider{} }

func (*Provider) Name() string { return "mysql" }

// BindCommand renders @name tokens as ?. Stored procedures become CALL name(?, ...).
func (*Provider) BindCommand(cmd *database.Command) (string, []any, error) {
	return dialect.Bind(cmd)
}

// BulkCopy sends one INSERT per record for CopyRowByRow and multi-row
// INSERTs for every other copy type.
func (*Provider) BulkCopy(ctx context.Context, conn *database.Connection, req *database.BulkCopyRequest) (*database.BulkCopyRowsCopied, error) {
	if req.Options.CopyType == database.CopyRowByRow {
		return database.InsertRowByRow(ctx, conn, dialect, req)
	}
	return database.InsertMultipleRows(ctx, conn, dialect, req)
}
