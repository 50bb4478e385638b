package pgstage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgconn"
)

// execer runs one (possibly multi-statement) SQL string. pgx.Tx satisfies
// it; guard tests substitute a recorder.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// schemaGuard snapshots, drops, and recreates the indexes and non-PK
// constraints of the destination tables around a load, then verifies the
// recreated objects match the snapshot byte for byte. It moves strictly
// Capture → Drop → Recreate → Verify, driven by the orchestrator; any
// failure aborts the enclosing transaction.
type schemaGuard struct {
	cat             catalog
	db              execer
	tables          []string
	dropIndexes     bool
	dropConstraints bool
	log             *slog.Logger

	snap SchemaSnapshot
}

func newSchemaGuard(cat catalog, db execer, tables []string, dropIndexes, dropConstraints bool, log *slog.Logger) *schemaGuard {
	return &schemaGuard{
		cat:             cat,
		db:              db,
		tables:          tables,
		dropIndexes:     dropIndexes,
		dropConstraints: dropConstraints,
		log:             log,
	}
}

// Capture snapshots the droppable schema objects of every destination table,
// before any DDL mutation.
func (g *schemaGuard) Capture(ctx context.Context) error {
	for _, table := range g.tables {
		if g.dropIndexes {
			indexes, err := g.cat.ListIndexes(ctx, table)
			if err != nil {
				return fmt.Errorf("capture indexes on %s: %w", table, err)
			}
			g.snap.Indexes = append(g.snap.Indexes, indexes...)
		}
		if g.dropConstraints {
			constraints, err := g.cat.ListConstraints(ctx, table)
			if err != nil {
				return fmt.Errorf("capture constraints on %s: %w", table, err)
			}
			g.snap.Constraints = append(g.snap.Constraints, constraints...)
		}
	}
	g.log.Info("schema objects captured",
		"indexes", len(g.snap.Indexes), "constraints", len(g.snap.Constraints))
	return nil
}

// Drop removes every captured object, constraints first so no index is still
// required by a foreign key. No-op on an empty snapshot.
func (g *schemaGuard) Drop(ctx context.Context) error {
	if len(g.snap.Constraints) > 0 {
		if _, err := g.db.Exec(ctx, dropConstraintsSQL(g.snap.Constraints)); err != nil {
			return fmt.Errorf("drop constraints: %w", err)
		}
	}
	if len(g.snap.Indexes) > 0 {
		if _, err := g.db.Exec(ctx, dropIndexesSQL(g.snap.Indexes)); err != nil {
			return fmt.Errorf("drop indexes: %w", err)
		}
	}
	if !g.snap.empty() {
		g.log.Info("schema objects dropped",
			"indexes", len(g.snap.Indexes), "constraints", len(g.snap.Constraints))
	}
	return nil
}

// Recreate replays the captured index definitions verbatim and re-adds the
// captured constraints under their original names.
func (g *schemaGuard) Recreate(ctx context.Context) error {
	if len(g.snap.Indexes) > 0 {
		if _, err := g.db.Exec(ctx, recreateIndexesSQL(g.snap.Indexes)); err != nil {
			return fmt.Errorf("recreate indexes: %w", err)
		}
	}
	if len(g.snap.Constraints) > 0 {
		if _, err := g.db.Exec(ctx, recreateConstraintsSQL(g.snap.Constraints)); err != nil {
			return fmt.Errorf("recreate constraints: %w", err)
		}
	}
	return nil
}

// Verify re-lists the destination tables and asserts every captured
// (name, definition) pair appears in the fresh catalog listing. A mismatch
// means the recreated schema differs from what was removed; nothing partial
// may be committed, so the error forces a transaction rollback.
func (g *schemaGuard) Verify(ctx context.Context) error {
	if g.dropIndexes {
		if err := g.verifyObjects(ctx, g.snap.Indexes, "index", g.cat.ListIndexes); err != nil {
			return err
		}
	}
	if g.dropConstraints {
		if err := g.verifyObjects(ctx, g.snap.Constraints, "constraint", g.cat.ListConstraints); err != nil {
			return err
		}
	}
	if !g.snap.empty() {
		g.log.Info("schema objects verified",
			"indexes", len(g.snap.Indexes), "constraints", len(g.snap.Constraints))
	}
	return nil
}

func (g *schemaGuard) verifyObjects(ctx context.Context, captured []SchemaObject, kind string,
	list func(context.Context, string) ([]SchemaObject, error)) error {

	live := make(map[string]string)
	seen := make(map[string]bool)
	for _, obj := range captured {
		if seen[obj.Table] {
			continue
		}
		seen[obj.Table] = true
		objects, err := list(ctx, obj.Table)
		if err != nil {
			return fmt.Errorf("verify %ss on %s: %w", kind, obj.Table, err)
		}
		for _, o := range objects {
			live[obj.Table+"\x00"+o.Name] = o.Definition
		}
	}

	for _, obj := range captured {
		def, ok := live[obj.Table+"\x00"+obj.Name]
		if !ok {
			return fmt.Errorf("%w: %s %q on %s was not recreated", ErrIntegrity, kind, obj.Name, obj.Table)
		}
		if def != obj.Definition {
			return fmt.Errorf("%w: %s %q on %s differs from its captured definition", ErrIntegrity, kind, obj.Name, obj.Table)
		}
	}
	return nil
}
