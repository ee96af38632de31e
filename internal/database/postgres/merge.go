package postgres

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/koustreak/dataconn/internal/database"
)

const primaryKeyQuery = `
	SELECT kcu.column_name
	FROM information_schema.table_constraints tc
	JOIN information_schema.key_column_usage kcu
	  ON tc.constraint_name = kcu.constraint_name
	 AND tc.table_schema    = kcu.table_schema
	WHERE tc.constraint_type = 'PRIMARY KEY'
	  AND tc.table_schema    = COALESCE(NULLIF($1::text, ''), current_schema())
	  AND tc.table_name      = $2
	ORDER BY kcu.ordinal_position`

var stageSeq atomic.Uint64

// Merge stages the source in a temporary table with COPY, upserts it with
// INSERT ... ON CONFLICT and, for delete merges, removes in-scope target rows
// the stage does not contain. The result is the sum of affected rows.
func (p *Provider) Merge(ctx context.Context, conn *database.Connection, req *database.MergeRequest) (int64, error) {
	if len(req.Keys) == 0 {
		keys, err := primaryKey(ctx, conn, req.Table)
		if err != nil {
			return 0, err
		}
		if err := req.UseKeys(keys); err != nil {
			return 0, err
		}
	}

	target := dialect.QuoteTable(req.Table)
	stage := database.TableIdentity{Name: fmt.Sprintf("dataconn_stage_%d", stageSeq.Add(1))}
	stageName := dialect.QuoteTable(stage)

	// The stage holds only the mapped columns. Unmapped NOT NULL columns of
	// the target keep their defaults on insert.
	create := fmt.Sprintf("CREATE TEMP TABLE %s AS SELECT %s FROM %s WITH NO DATA",
		stageName, dialect.QuoteColumns(req.Columns), target)
	if _, err := conn.ExecSQL(ctx, create); err != nil {
		return 0, err
	}
	defer func() {
		_, _ = conn.ExecSQL(context.WithoutCancel(ctx), "DROP TABLE IF EXISTS "+stageName)
	}()

	staged := database.NewBulkCopyRequest(
		database.BulkCopyOptions{CopyType: database.CopyProviderSpecific},
		stage, req.Entity, req.Columns, req.Records(),
	)
	if _, err := p.BulkCopy(ctx, conn, staged); err != nil {
		return 0, err
	}

	upserted, err := conn.ExecSQL(ctx, upsertSQL(req, target, stageName))
	if err != nil {
		return upserted, err
	}
	if !req.Delete {
		return upserted, nil
	}

	del, args, err := deleteSQL(req, target, stageName)
	if err != nil {
		return upserted, err
	}
	deleted, err := conn.ExecSQL(ctx, del, args...)
	return upserted + deleted, err
}

func upsertSQL(req *database.MergeRequest, target, stage string) string {
	cols := dialect.QuoteColumns(req.Columns)

	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT (%s) ",
		target, cols, cols, stage, dialect.QuoteColumns(req.Keys))

	var sets []string
	for _, c := range req.Columns {
		if req.IsKey(c) {
			continue
		}
		q := dialect.QuoteIdent(c.Name)
		sets = append(sets, q+" = EXCLUDED."+q)
	}
	if len(sets) == 0 {
		sb.WriteString("DO NOTHING")
	} else {
		sb.WriteString("DO UPDATE SET ")
		sb.WriteString(strings.Join(sets, ", "))
	}
	return sb.String()
}

func deleteSQL(req *database.MergeRequest, target, stage string) (string, []any, error) {
	match := make([]string, len(req.Keys))
	for i, k := range req.Keys {
		q := dialect.QuoteIdent(k.Name)
		match[i] = "s." + q + " = t." + q
	}

	sql := fmt.Sprintf("DELETE FROM %s AS t WHERE NOT EXISTS (SELECT 1 FROM %s AS s WHERE %s)",
		target, stage, strings.Join(match, " AND "))

	where, args, err := dialect.BindScope(req.Scope, 0)
	if err != nil {
		return "", nil, err
	}
	if where != "" {
		sql += " AND (" + where + ")"
	}
	return sql, args, nil
}

// primaryKey returns the primary key columns of table in key order.
func primaryKey(ctx context.Context, conn *database.Connection, table database.TableIdentity) ([]string, error) {
	rows, err := conn.QuerySQL(ctx, primaryKeyQuery, table.Schema, table.Name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		keys = append(keys, name)
	}
	return keys, rows.Err()
}
