package pgstage

import (
	"fmt"
	"strings"
)

// stagingColumns returns the staging column names in declaration order: one
// "table_destination" column per configured column across all tables.
func stagingColumns(tables []TableSpec) []string {
	var cols []string
	for _, t := range tables {
		for _, c := range t.Columns {
			cols = append(cols, t.Name+"_"+c.Destination)
		}
	}
	return cols
}

// stagingDDL produces the CREATE TEMPORARY TABLE statement for the staging
// table, typed per each column's SQLType.
func stagingDDL(cfg *JobConfig) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TEMPORARY TABLE %s (\n", pgIdent(cfg.StagingTable))
	first := true
	for _, t := range cfg.Tables {
		for _, c := range t.Columns {
			if !first {
				b.WriteString(",\n")
			}
			first = false
			fmt.Fprintf(&b, "  %s %s", pgIdent(t.Name+"_"+c.Destination), c.SQLType)
		}
	}
	b.WriteString("\n)")
	return b.String()
}

// copySQL produces the COPY command the sink streams rows into. The column
// list is exactly the staging table's columns (staging strategy) or the
// single target table's destination columns (direct strategy), in declared
// order.
func copySQL(target string, columns []string) string {
	return fmt.Sprintf("COPY %s (%s) FROM STDIN (FORMAT CSV)", pgIdent(target), quotedColumnList(columns))
}

// mergeProjection builds the SELECT expression for one staged column.
// Expand-marked columns unnest so one staged array fans into one row per
// element; casts apply to the unnested element.
func mergeProjection(table string, c ColumnSpec) string {
	expr := pgIdent(table + "_" + c.Destination)
	if c.Expand {
		expr = "unnest(" + expr + ")"
	}
	if c.Cast != "" {
		expr += "::" + c.Cast
	}
	return expr
}

// mergeSQL produces one INSERT … SELECT … ON CONFLICT DO NOTHING per target
// table, batched into a single multi-statement string. ON CONFLICT DO
// NOTHING makes the merge idempotent against pre-existing rows sharing a
// primary key. The target column list is explicit because the projection
// follows TableSpec order, not the table's physical column order.
func mergeSQL(cfg *JobConfig) string {
	stmts := make([]string, 0, len(cfg.Tables))
	for _, t := range cfg.Tables {
		dest := make([]string, len(t.Columns))
		proj := make([]string, len(t.Columns))
		for i, c := range t.Columns {
			dest[i] = pgIdent(c.Destination)
			proj[i] = mergeProjection(t.Name, c)
		}
		stmts = append(stmts, fmt.Sprintf(
			"INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT DO NOTHING",
			pgIdent(t.Name), strings.Join(dest, ", "), strings.Join(proj, ", "), pgIdent(cfg.StagingTable)))
	}
	return strings.Join(stmts, ";\n")
}

// dropIndexesSQL batches the removal of all captured indexes into one
// multi-statement string.
func dropIndexesSQL(indexes []SchemaObject) string {
	stmts := make([]string, len(indexes))
	for i, idx := range indexes {
		stmts[i] = fmt.Sprintf("DROP INDEX IF EXISTS %s RESTRICT", pgIdent(idx.Name))
	}
	return strings.Join(stmts, ";\n")
}

// dropConstraintsSQL batches one ALTER TABLE … DROP CONSTRAINT per captured
// constraint.
func dropConstraintsSQL(constraints []SchemaObject) string {
	stmts := make([]string, len(constraints))
	for i, con := range constraints {
		stmts[i] = fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT %s", pgIdent(con.Table), pgIdent(con.Name))
	}
	return strings.Join(stmts, ";\n")
}

// recreateIndexesSQL replays the captured index definitions verbatim.
func recreateIndexesSQL(indexes []SchemaObject) string {
	stmts := make([]string, len(indexes))
	for i, idx := range indexes {
		stmts[i] = idx.Definition
	}
	return strings.Join(stmts, ";\n")
}

// recreateConstraintsSQL re-adds each captured constraint under its original
// name and definition.
func recreateConstraintsSQL(constraints []SchemaObject) string {
	stmts := make([]string, len(constraints))
	for i, con := range constraints {
		stmts[i] = fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s %s", pgIdent(con.Table), pgIdent(con.Name), con.Definition)
	}
	return strings.Join(stmts, ";\n")
}

// analyzeSQL refreshes planner statistics for the named table.
func analyzeSQL(table string) string {
	return "ANALYZE " + pgIdent(table)
}

// quotedColumnList joins column names with proper quoting.
func quotedColumnList(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgIdent(c)
	}
	return strings.Join(quoted, ", ")
}
