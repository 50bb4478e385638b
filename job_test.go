package pgstage

import (
	"context"
	"errors"
	"testing"
)

func TestNewJob_InvalidConfig(t *testing.T) {
	_, err := NewJob(nil, &JobConfig{})
	if !errors.Is(err, ErrConfig) {
		t.Fatalf("NewJob() = %v, want ErrConfig", err)
	}
}

func TestNewJob_StrategyResolved(t *testing.T) {
	j, err := NewJob(nil, &JobConfig{Name: "multi", Tables: twoTableSpecs()})
	if err != nil {
		t.Fatal(err)
	}
	if !j.UsingStaging() {
		t.Error("two-table job should use staging")
	}

	j, err = NewJob(nil, &JobConfig{Name: "single", Tables: []TableSpec{
		{Name: "addresses", Columns: []ColumnSpec{{Destination: "id", SQLType: "uuid"}}},
	}})
	if err != nil {
		t.Fatal(err)
	}
	if j.UsingStaging() {
		t.Error("single plain table should copy directly")
	}
}

func TestStart_NoFiles(t *testing.T) {
	j, err := NewJob(nil, &JobConfig{Name: "j", Tables: twoTableSpecs()})
	if err != nil {
		t.Fatal(err)
	}
	// Must fail before any database work: the pool is nil and would panic
	// if touched.
	if err := j.Start(context.Background()); !errors.Is(err, ErrNoFiles) {
		t.Fatalf("Start() = %v, want ErrNoFiles", err)
	}
}

func TestRegister(t *testing.T) {
	dir := t.TempDir()
	writeTestCSV(t, dir, "a.csv", "id\n1\n")
	writeTestCSV(t, dir, "b.csv", "id\n2\n")
	writeTestCSV(t, dir, "c.txt", "not matched")

	j, err := NewJob(nil, &JobConfig{Name: "j", Tables: twoTableSpecs()})
	if err != nil {
		t.Fatal(err)
	}

	n, err := j.Register(dir, "*.csv")
	if err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	if n != 2 || len(j.Files()) != 2 {
		t.Errorf("Register() = %d files (%v), want 2", n, j.Files())
	}

	// Registration appends across calls.
	n, err = j.Register(dir, "*.txt")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 || len(j.Files()) != 3 {
		t.Errorf("second Register() = %d, files = %v", n, j.Files())
	}
}

func TestCopyTarget(t *testing.T) {
	j, err := NewJob(nil, &JobConfig{Name: "users_load", Tables: twoTableSpecs()})
	if err != nil {
		t.Fatal(err)
	}
	target, cols := j.copyTarget()
	if target != "staging_users_load" {
		t.Errorf("staging target = %q", target)
	}
	if len(cols) != 5 || cols[0] != "addresses_id" {
		t.Errorf("staging columns = %v", cols)
	}

	j, err = NewJob(nil, &JobConfig{Name: "direct", Tables: []TableSpec{
		{Name: "addresses", Columns: []ColumnSpec{
			{Destination: "id", Source: "address_id", SQLType: "uuid"},
			{Destination: "street", SQLType: "text"},
		}},
	}})
	if err != nil {
		t.Fatal(err)
	}
	target, cols = j.copyTarget()
	if target != "addresses" {
		t.Errorf("direct target = %q", target)
	}
	// Direct strategy copies into the table's own destination columns.
	if len(cols) != 2 || cols[0] != "id" || cols[1] != "street" {
		t.Errorf("direct columns = %v", cols)
	}
}
