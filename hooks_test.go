package pgstage

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestRunAfterLoadSQL(t *testing.T) {
	dir := t.TempDir()
	hook := filepath.Join(dir, "refresh.sql")
	data := "REFRESH MATERIALIZED VIEW user_stats;\nDELETE FROM {{staging}} WHERE false;\n"
	if err := os.WriteFile(hook, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := &JobConfig{
		Name:         "users_load",
		Tables:       twoTableSpecs(),
		StagingTable: "staging_users_load",
		Hooks:        HooksConfig{AfterLoad: []string{"refresh.sql"}},
		configDir:    dir,
	}

	db := &fakeExec{}
	if err := runAfterLoadSQL(context.Background(), db, cfg, testLogger()); err != nil {
		t.Fatalf("runAfterLoadSQL() error: %v", err)
	}

	want := []string{
		"REFRESH MATERIALIZED VIEW user_stats",
		"DELETE FROM staging_users_load WHERE false",
	}
	if !reflect.DeepEqual(db.stmts, want) {
		t.Errorf("executed = %v, want %v", db.stmts, want)
	}
}

func TestRunAfterLoadSQL_MissingFile(t *testing.T) {
	cfg := &JobConfig{
		Name:      "j",
		Hooks:     HooksConfig{AfterLoad: []string{"nope.sql"}},
		configDir: t.TempDir(),
	}
	if err := runAfterLoadSQL(context.Background(), &fakeExec{}, cfg, testLogger()); err == nil {
		t.Fatal("expected error for missing hook file")
	}
}

func TestSplitStatements(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		want []string
	}{
		{
			"single statement",
			"SELECT 1",
			[]string{"SELECT 1"},
		},
		{
			"two statements",
			"SELECT 1; SELECT 2;",
			[]string{"SELECT 1", "SELECT 2"},
		},
		{
			"trailing without semicolon",
			"SELECT 1; SELECT 2",
			[]string{"SELECT 1", "SELECT 2"},
		},
		{
			"empty statements skipped",
			"SELECT 1;; ;SELECT 2;",
			[]string{"SELECT 1", "SELECT 2"},
		},
		{
			"semicolon inside quotes",
			"SELECT 'hello;world'; SELECT 2",
			[]string{"SELECT 'hello;world'", "SELECT 2"},
		},
		{
			"escaped quotes",
			"SELECT 'it''s'; SELECT 2",
			[]string{"SELECT 'it''s'", "SELECT 2"},
		},
		{
			"empty input",
			"",
			nil,
		},
		{
			"multiline SQL",
			"DELETE FROM users\nWHERE id = 1;\nDELETE FROM posts\nWHERE user_id = 1;",
			[]string{"DELETE FROM users\nWHERE id = 1", "DELETE FROM posts\nWHERE user_id = 1"},
		},
		{
			"line comment preserved",
			"-- cleanup\nDELETE FROM t; SELECT 1",
			[]string{"-- cleanup\nDELETE FROM t", "SELECT 1"},
		},
		{
			"dollar-quoted function body",
			"CREATE FUNCTION f() RETURNS void AS $$ BEGIN PERFORM 1; PERFORM 2; END; $$ LANGUAGE plpgsql; SELECT 1;",
			[]string{"CREATE FUNCTION f() RETURNS void AS $$ BEGIN PERFORM 1; PERFORM 2; END; $$ LANGUAGE plpgsql", "SELECT 1"},
		},
		{
			"tagged dollar-quoted body",
			"DO $fn$ BEGIN RAISE NOTICE 'x;y'; END; $fn$; SELECT 2;",
			[]string{"DO $fn$ BEGIN RAISE NOTICE 'x;y'; END; $fn$", "SELECT 2"},
		},
		{
			"block comment with semicolon",
			"/* comment; still comment */ SELECT 1; SELECT 2;",
			[]string{"/* comment; still comment */ SELECT 1", "SELECT 2"},
		},
		{
			"double-quoted identifier with semicolon",
			`SELECT "a;b" FROM t; SELECT 2;`,
			[]string{`SELECT "a;b" FROM t`, "SELECT 2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := splitStatements(tt.sql)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("splitStatements(%q) =\n  %v\nwant:\n  %v", tt.sql, got, tt.want)
			}
		})
	}
}
