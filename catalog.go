package pgstage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// catalog lists index and constraint definitions on one table. The live
// implementation reads the system catalogs through the active transaction so
// listings are snapshot-consistent with the load; tests substitute fakes.
type catalog interface {
	ListIndexes(ctx context.Context, table string) ([]SchemaObject, error)
	ListConstraints(ctx context.Context, table string) ([]SchemaObject, error)
}

// txCatalog is the Catalog Inspector against a live transaction.
type txCatalog struct {
	tx         pgx.Tx
	dropUnique bool // include unique indexes in listings
}

func newTxCatalog(tx pgx.Tx, dropUnique bool) *txCatalog {
	return &txCatalog{tx: tx, dropUnique: dropUnique}
}

// ListIndexes returns the plain indexes on table. Indexes backing a
// constraint (primary keys, unique constraints) are never listed: they
// cannot be dropped with DROP INDEX, and primary keys must survive the load
// so every row keeps one durable identity. Unique indexes are excluded
// unless drop_unique_indexes is set.
func (c *txCatalog) ListIndexes(ctx context.Context, table string) ([]SchemaObject, error) {
	q := `
		SELECT i.indexname, i.indexdef
		FROM pg_indexes i
		WHERE i.schemaname = current_schema()
		  AND i.tablename = $1
		  AND NOT EXISTS (
		        SELECT 1
		        FROM pg_constraint con
		        JOIN pg_class rel ON rel.oid = con.conrelid
		        JOIN pg_namespace nsp ON nsp.oid = rel.relnamespace
		        WHERE nsp.nspname = i.schemaname
		          AND rel.relname = i.tablename
		          AND con.conname = i.indexname)`
	if !c.dropUnique {
		q += `
		  AND i.indexdef NOT LIKE 'CREATE UNIQUE INDEX %'`
	}
	q += `
		ORDER BY i.indexname`
	return c.listObjects(ctx, q, table)
}

// ListConstraints returns every non-primary-key constraint on table, with
// its definition from pg_get_constraintdef.
func (c *txCatalog) ListConstraints(ctx context.Context, table string) ([]SchemaObject, error) {
	q := `
		SELECT con.conname, pg_get_constraintdef(con.oid)
		FROM pg_constraint con
		JOIN pg_class rel ON rel.oid = con.conrelid
		JOIN pg_namespace nsp ON nsp.oid = rel.relnamespace
		WHERE nsp.nspname = current_schema()
		  AND rel.relname = $1
		  AND con.contype <> 'p'
		ORDER BY con.conname`
	return c.listObjects(ctx, q, table)
}

func (c *txCatalog) listObjects(ctx context.Context, query, table string) ([]SchemaObject, error) {
	rows, err := c.tx.Query(ctx, query, table)
	if err != nil {
		return nil, fmt.Errorf("list schema objects for %s: %w", table, err)
	}
	defer rows.Close()

	var objects []SchemaObject
	for rows.Next() {
		obj := SchemaObject{Table: table}
		if err := rows.Scan(&obj.Name, &obj.Definition); err != nil {
			return nil, fmt.Errorf("scan schema object for %s: %w", table, err)
		}
		objects = append(objects, obj)
	}
	return objects, rows.Err()
}
