package mysql

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/koustreak/dataconn/internal/database"
)

const primaryKeyQuery = `
	SELECT column_name
	FROM information_schema.columns
	WHERE table_schema = COALESCE(NULLIF(?, ''), DATABASE())
	  AND table_name   = ?
	  AND column_key   = 'PRI'
	ORDER BY ordinal_position`

var stageSeq atomic.Uint64

// Merge stages the source in a temporary table, upserts it with
// INSERT ... SELECT ... ON DUPLICATE KEY UPDATE and, for delete merges,
// removes in-scope target rows the stage does not contain. Affected rows
// follow MySQL's counting: an updated row counts twice.
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

	if _, err := conn.ExecSQL(ctx, fmt.Sprintf("CREATE TEMPORARY TABLE %s LIKE %s", stageName, target)); err != nil {
		return 0, err
	}
	defer func() {
		_, _ = conn.ExecSQL(context.WithoutCancel(ctx), "DROP TEMPORARY TABLE IF EXISTS "+stageName)
	}()

	staged := database.NewBulkCopyRequest(
		database.BulkCopyOptions{CopyType: database.CopyMultipleRows},
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

	var sets []string
	for _, c := range req.Columns {
		if req.IsKey(c) {
			continue
		}
		q := dialect.QuoteIdent(c.Name)
		sets = append(sets, q+" = VALUES("+q+")")
	}
	if len(sets) == 0 {
		return fmt.Sprintf("INSERT IGNORE INTO %s (%s) SELECT %s FROM %s", target, cols, cols, stage)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s ON DUPLICATE KEY UPDATE %s",
		target, cols, cols, stage, strings.Join(sets, ", "))
}

func deleteSQL(req *database.MergeRequest, target, stage string) (string, []any, error) {
	match := make([]string, len(req.Keys))
	for i, k := range req.Keys {
		q := dialect.QuoteIdent(k.Name)
		match[i] = "s." + q + " = t." + q
	}

	sql := fmt.Sprintf("DELETE t FROM %s AS t WHERE NOT EXISTS (SELECT 1 FROM %s AS s WHERE %s)",
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

// primaryKey returns the primary key columns of table. Schema is read as the
// database name when Database is empty.
func primaryKey(ctx context.Context, conn *database.Connection, table database.TableIdentity) ([]string, error) {
	db := table.Database
	if db == "" {
		db = table.Schema
	}
	rows, err := conn.QuerySQL(ctx, primaryKeyQuery, db, table.Name)
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
