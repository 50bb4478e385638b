package pgstage

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// runPipeline streams one input file into the shared sink: read → parse →
// row hook → column map → enqueue. Row order within the file is preserved;
// any per-row failure fails the file, and the orchestrator treats that as
// fatal to the whole run, since partially loaded files cannot be un-mixed
// from a shared staging table.
func runPipeline(ctx context.Context, path string, newReader ReaderFactory, hook RowHook, mapper *rowMapper, sink *copySink) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	name := filepath.Base(path)
	r := newReader(bufio.NewReaderSize(f, 256<<10))

	var rows int64
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return rows, fmt.Errorf("parse %s: %w", name, err)
		}

		if hook != nil {
			rec, err = hook(ctx, rec)
			if err != nil {
				return rows, fmt.Errorf("row hook on %s: %w", name, err)
			}
		}

		vals, err := mapper.mapRow(rec)
		if err != nil {
			return rows, fmt.Errorf("%s: %w", name, err)
		}

		if err := sink.Write(ctx, vals); err != nil {
			return rows, fmt.Errorf("write %s to sink: %w", name, err)
		}
		rows++
	}
}
