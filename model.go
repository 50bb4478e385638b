package pgstage

// Record is one flat source row: parser output, row-hook input/output, and
// column-mapper input. Keys are source field names.
type Record map[string]any

// ColumnSpec describes one destination column of one target table.
type ColumnSpec struct {
	Destination string // destination column name
	Source      string // source record key; empty means same as Destination
	SQLType     string // staging/target column type, e.g. "uuid", "text"
	References  string // source-side name of another column whose value is copied in
	Expand      bool   // staged value is unnested into one row per element on merge
	Cast        string // cast applied during the merge projection
}

// sourceKey returns the source record key this column is matched against.
func (c ColumnSpec) sourceKey() string {
	if c.Source != "" {
		return c.Source
	}
	return c.Destination
}

// TableSpec is one target table with its ordered columns. Declaration order
// of tables and columns determines staging-column ordering and push order,
// so tables are carried as a slice, never a map.
type TableSpec struct {
	Name    string
	Columns []ColumnSpec
}

// SchemaObject is one index or constraint captured from the system catalogs.
type SchemaObject struct {
	Name       string
	Definition string
	Table      string
}

// SchemaSnapshot holds the schema objects removed around a load, in capture
// order. Indexes and constraints are tracked separately because they drop
// and recreate through different DDL.
type SchemaSnapshot struct {
	Indexes     []SchemaObject
	Constraints []SchemaObject
}

func (s SchemaSnapshot) empty() bool {
	return len(s.Indexes) == 0 && len(s.Constraints) == 0
}
