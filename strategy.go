package pgstage

// usesStaging decides, once per job and before any row is read, whether rows
// must detour through a temporary staging table. Staging is the only way to
// fan rows into more than one table transactionally, to apply casts or
// unnest during the merge, or to get ON CONFLICT DO NOTHING semantics when
// several destinations share staged rows.
func usesStaging(cfg *JobConfig) bool {
	if cfg.ForceStaging || len(cfg.Tables) > 1 {
		return true
	}
	for _, t := range cfg.Tables {
		for _, c := range t.Columns {
			if c.Expand || c.Cast != "" {
				return true
			}
		}
	}
	return false
}
