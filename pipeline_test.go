package pgstage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/sync/errgroup"
)

func writeTestCSV(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunPipeline(t *testing.T) {
	dir := t.TempDir()
	path := writeTestCSV(t, dir, "in.csv",
		"address_id,street,user_id,name\na-1,1 Main St,u-1,Ada\na-2,2 Side St,u-2,Grace\n")

	mapper := newRowMapper(twoTableSpecs())
	buf := &bufCloser{}
	sink := newCopySink(buf, len(mapper.columns))

	n, err := runPipeline(context.Background(), path, NewCSVReader, nil, mapper, sink)
	if err != nil {
		t.Fatalf("runPipeline() error: %v", err)
	}
	if cerr := sink.Close(); cerr != nil {
		t.Fatal(cerr)
	}
	if n != 2 {
		t.Errorf("rows = %d, want 2", n)
	}

	// In-file order is preserved end to end.
	want := "a-1,1 Main St,u-1,Ada,a-1\na-2,2 Side St,u-2,Grace,a-2\n"
	if got := buf.String(); got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestRunPipeline_RowHook(t *testing.T) {
	dir := t.TempDir()
	path := writeTestCSV(t, dir, "in.csv", "address_id,street,user_id,name\na-1,main,u-1,ada\n")

	hook := func(_ context.Context, rec Record) (Record, error) {
		rec["name"] = strings.ToUpper(rec["name"].(string))
		return rec, nil
	}

	mapper := newRowMapper(twoTableSpecs())
	buf := &bufCloser{}
	sink := newCopySink(buf, len(mapper.columns))

	if _, err := runPipeline(context.Background(), path, NewCSVReader, hook, mapper, sink); err != nil {
		t.Fatalf("runPipeline() error: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "ADA") {
		t.Errorf("hook not applied: %q", buf.String())
	}
}

func TestRunPipeline_HookError(t *testing.T) {
	dir := t.TempDir()
	path := writeTestCSV(t, dir, "in.csv", "address_id,street,user_id,name\na-1,main,u-1,ada\n")

	hook := func(_ context.Context, _ Record) (Record, error) {
		return nil, fmt.Errorf("external service down")
	}

	mapper := newRowMapper(twoTableSpecs())
	sink := newCopySink(&bufCloser{}, len(mapper.columns))
	defer sink.Close()

	if _, err := runPipeline(context.Background(), path, NewCSVReader, hook, mapper, sink); err == nil {
		t.Fatal("runPipeline() expected hook error")
	}
}

func TestRunPipeline_ConcurrentFilesShareSink(t *testing.T) {
	dir := t.TempDir()
	header := "address_id,street,user_id,name\n"
	var a, b strings.Builder
	a.WriteString(header)
	b.WriteString(header)
	for i := 0; i < 500; i++ {
		fmt.Fprintf(&a, "a-%d,street,u-%d,alice\n", i, i)
		fmt.Fprintf(&b, "b-%d,street,v-%d,bob\n", i, i)
	}
	pathA := writeTestCSV(t, dir, "a.csv", a.String())
	pathB := writeTestCSV(t, dir, "b.csv", b.String())

	mapper := newRowMapper(twoTableSpecs())
	buf := &bufCloser{}
	sink := newCopySink(buf, len(mapper.columns))

	g, ctx := errgroup.WithContext(context.Background())
	for _, p := range []string{pathA, pathB} {
		p := p
		g.Go(func() error {
			_, err := runPipeline(ctx, p, NewCSVReader, nil, mapper, sink)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("pipelines error: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatal(err)
	}

	// Interleaving between files is unspecified, but no row may tear and
	// all rows must arrive exactly once.
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 1000 {
		t.Fatalf("lines = %d, want 1000", len(lines))
	}
	seen := make(map[string]bool, len(lines))
	for _, l := range lines {
		if seen[l] {
			t.Fatalf("duplicate row %q", l)
		}
		seen[l] = true
		if !strings.Contains(l, "alice") && !strings.Contains(l, "bob") {
			t.Fatalf("torn row %q", l)
		}
	}
}
