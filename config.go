package pgstage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/jackc/pgx/v5"
)

// RowHook transforms one parsed record before column mapping. It may replace
// the record but must not change cardinality; returning an error fails the
// whole run. The default is identity.
type RowHook func(ctx context.Context, rec Record) (Record, error)

// FinishHook runs after the merge and schema verification, inside the load
// transaction, for dependent post-load work such as materialized view
// refreshes. The default is a no-op.
type FinishHook func(ctx context.Context, tx pgx.Tx) error

// ReaderFactory builds the record parser for one input file's byte stream.
type ReaderFactory func(r io.Reader) RecordReader

// TableColumn is the TOML form of one column mapping.
type TableColumn struct {
	Destination string `toml:"destination"`
	Source      string `toml:"source"`
	Type        string `toml:"type"`
	References  string `toml:"references"`
	Expand      bool   `toml:"expand"`
	Cast        string `toml:"cast"`
}

// TableConfig is the TOML form of one target table. [[table]] arrays keep
// declaration order, which determines staging-column ordering and push order.
type TableConfig struct {
	Name    string        `toml:"name"`
	Columns []TableColumn `toml:"column"`
}

type TargetConfig struct {
	DSN string `toml:"dsn"`
}

type HooksConfig struct {
	AfterLoad []string `toml:"after_load"`
}

// JobConfig holds the full configuration for one load job.
type JobConfig struct {
	Name              string        `toml:"name"`
	Target            TargetConfig  `toml:"target"`
	TableConfigs      []TableConfig `toml:"table"`
	StagingTable      string        `toml:"staging_table"`
	ForceStaging      bool          `toml:"force_staging"`
	DropIndexes       bool          `toml:"drop_indexes"`
	DropForeignKeys   bool          `toml:"drop_foreign_keys"`
	DropUniqueIndexes bool          `toml:"drop_unique_indexes"`
	Quiet             bool          `toml:"quiet"`
	Hooks             HooksConfig   `toml:"hooks"`

	// Tables is the resolved runtime form of TableConfigs. Programmatic
	// callers may populate it directly and leave TableConfigs empty.
	Tables []TableSpec `toml:"-"`

	// Logger receives run progress. Nil or Quiet means no output.
	Logger *slog.Logger `toml:"-"`

	// OnRow and OnFinish are the two user hooks. Both default to no-ops.
	OnRow    RowHook    `toml:"-"`
	OnFinish FinishHook `toml:"-"`

	// NewReader overrides the record parser; the default reads CSV with a
	// header row.
	NewReader ReaderFactory `toml:"-"`

	// configDir is the directory containing the TOML file, used to resolve
	// relative hook SQL paths.
	configDir string
}

// LoadConfig reads a TOML job config and returns a validated JobConfig.
func LoadConfig(path string) (*JobConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg JobConfig
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if unknown := md.Undecoded(); len(unknown) > 0 {
		keys := make([]string, len(unknown))
		for i, k := range unknown {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("%w: unknown config keys: %s", ErrConfig, strings.Join(keys, ", "))
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	cfg.configDir = filepath.Dir(absPath)

	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// normalize resolves the TOML table form, applies defaults, and validates
// the spec invariants: unique destination columns per table and resolvable
// references.
func (c *JobConfig) normalize() error {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return fmt.Errorf("%w: name is required", ErrConfig)
	}

	if len(c.Tables) == 0 {
		for _, tc := range c.TableConfigs {
			t := TableSpec{Name: tc.Name}
			for _, col := range tc.Columns {
				t.Columns = append(t.Columns, ColumnSpec{
					Destination: col.Destination,
					Source:      col.Source,
					SQLType:     col.Type,
					References:  col.References,
					Expand:      col.Expand,
					Cast:        col.Cast,
				})
			}
			c.Tables = append(c.Tables, t)
		}
	}
	if len(c.Tables) == 0 {
		return fmt.Errorf("%w: at least one table is required", ErrConfig)
	}

	// Every column's source-side key, across all tables. References must
	// land somewhere in this set.
	sourceKeys := make(map[string]bool)
	for _, t := range c.Tables {
		if t.Name == "" {
			return fmt.Errorf("%w: table with empty name", ErrConfig)
		}
		if len(t.Columns) == 0 {
			return fmt.Errorf("%w: table %q has no columns", ErrConfig, t.Name)
		}
		seen := make(map[string]bool, len(t.Columns))
		for _, col := range t.Columns {
			if col.Destination == "" {
				return fmt.Errorf("%w: table %q has a column with empty destination", ErrConfig, t.Name)
			}
			if col.SQLType == "" {
				return fmt.Errorf("%w: column %s.%s has no type", ErrConfig, t.Name, col.Destination)
			}
			if seen[col.Destination] {
				return fmt.Errorf("%w: duplicate destination column %s.%s", ErrConfig, t.Name, col.Destination)
			}
			seen[col.Destination] = true
			sourceKeys[col.sourceKey()] = true
		}
	}
	for _, t := range c.Tables {
		for _, col := range t.Columns {
			if col.References != "" && !sourceKeys[col.References] {
				return fmt.Errorf("%w: column %s.%s references %q, which matches no column's source name",
					ErrConfig, t.Name, col.Destination, col.References)
			}
		}
	}

	if c.StagingTable == "" {
		c.StagingTable = "staging_" + c.Name
	}
	return nil
}

// resolvePath resolves a hook SQL path relative to the config file directory.
func (c *JobConfig) resolvePath(p string) string {
	if filepath.IsAbs(p) || c.configDir == "" {
		return p
	}
	return filepath.Join(c.configDir, p)
}

// logger returns the configured logger, or a discard logger when unset or
// quiet.
func (c *JobConfig) logger() *slog.Logger {
	if c.Quiet || c.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return c.Logger
}
