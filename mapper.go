package pgstage

import "fmt"

// refBinding is one reference column: its slot in the staging row and the
// source-side key of the column it copies from.
type refBinding struct {
	pos    int
	key    string
	table  string
	column string
}

// rowMapper fans one flat source record out to the staging-column set of
// every target table. The source-key lookup is precomputed once from the
// table specs so the per-row path is O(1) map hits; it runs on every row of
// potentially millions.
type rowMapper struct {
	columns []string       // staging column names "table_destination", in declaration order
	byKey   map[string]int // source key → staging slot, first match in table order wins
	refs    []refBinding
}

func newRowMapper(tables []TableSpec) *rowMapper {
	m := &rowMapper{byKey: make(map[string]int)}
	for _, t := range tables {
		for _, c := range t.Columns {
			pos := len(m.columns)
			m.columns = append(m.columns, t.Name+"_"+c.Destination)
			if c.References != "" {
				m.refs = append(m.refs, refBinding{pos: pos, key: c.References, table: t.Name, column: c.Destination})
				continue
			}
			if _, taken := m.byKey[c.sourceKey()]; !taken {
				m.byKey[c.sourceKey()] = pos
			}
		}
	}
	return m
}

// mapRow produces one staging row, positionally aligned with m.columns.
// Unmatched slots stay nil and serialize as NULL. Reference slots are filled
// from the original source record, never from the partially built row.
// References are validated at config load, so a missing referenced key here
// means the input rows don't carry the field the config promised; that is
// fatal rather than a silent row drop.
func (m *rowMapper) mapRow(rec Record) ([]any, error) {
	vals := make([]any, len(m.columns))
	for key, v := range rec {
		if pos, ok := m.byKey[key]; ok {
			vals[pos] = v
		}
	}
	for _, rb := range m.refs {
		v, ok := rec[rb.key]
		if !ok {
			return nil, fmt.Errorf("row has no field %q referenced by %s.%s", rb.key, rb.table, rb.column)
		}
		vals[rb.pos] = v
	}
	return vals, nil
}
