package pgstage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
)

// Job is one bulk-load run: a validated configuration plus the set of
// registered input files. Register files, call Start once, then End to
// release the pool. A Job is not reusable and Start is not safe to call
// concurrently.
type Job struct {
	cfg          *JobConfig
	pool         *pgxpool.Pool
	files        []string
	usingStaging bool
	mapper       *rowMapper
	log          *slog.Logger

	started    bool
	rowsLoaded atomic.Int64
}

// NewJob validates cfg and resolves the staging strategy. The strategy is
// decided here, before any row is read, and never changes mid-run. The job
// takes ownership of pool; End closes it.
func NewJob(pool *pgxpool.Pool, cfg *JobConfig) (*Job, error) {
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &Job{
		cfg:          cfg,
		pool:         pool,
		usingStaging: usesStaging(cfg),
		mapper:       newRowMapper(cfg.Tables),
		log:          cfg.logger(),
	}, nil
}

// UsingStaging reports whether rows detour through a temporary staging table.
func (j *Job) UsingStaging() bool {
	return j.usingStaging
}

// Register appends every file under dir matching the glob pattern and
// returns how many were added. Files can only be registered before Start.
func (j *Job) Register(dir, pattern string) (int, error) {
	if j.started {
		return 0, fmt.Errorf("%w: cannot register files after Start", ErrConfig)
	}
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return 0, fmt.Errorf("glob %s in %s: %w", pattern, dir, err)
	}
	for _, m := range matches {
		abs, err := filepath.Abs(m)
		if err != nil {
			return 0, fmt.Errorf("resolve %s: %w", m, err)
		}
		j.files = append(j.files, abs)
	}
	return len(matches), nil
}

// Files returns the registered file paths in registration order.
func (j *Job) Files() []string {
	return j.files
}

// Start runs the full load once, inside a single transaction on a single
// pooled connection held for the whole call. Any error at any step aborts
// the transaction; a failed run leaves tables, indexes, and constraints
// exactly as they were. The unit of retry is the whole Start call.
func (j *Job) Start(ctx context.Context) error {
	if j.started {
		return fmt.Errorf("%w: job already started", ErrConfig)
	}
	if len(j.files) == 0 {
		return fmt.Errorf("%w: register at least one file before Start", ErrNoFiles)
	}
	j.started = true

	conn, err := j.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := j.run(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	j.log.Info("load committed",
		"job", j.cfg.Name, "files", len(j.files), "rows", j.rowsLoaded.Load())
	return nil
}

// End releases the pooled resources the job owns.
func (j *Job) End() {
	j.pool.Close()
}

func (j *Job) run(ctx context.Context, tx pgx.Tx) error {
	cfg := j.cfg
	start := time.Now()

	if j.usingStaging {
		ddl := stagingDDL(cfg)
		if _, err := tx.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("create staging table: %w\nDDL: %s", err, ddl)
		}
		j.log.Info("staging table created",
			"table", cfg.StagingTable, "columns", len(j.mapper.columns))
	}

	tables := make([]string, len(cfg.Tables))
	for i, t := range cfg.Tables {
		tables[i] = t.Name
	}

	guard := newSchemaGuard(
		newTxCatalog(tx, cfg.DropUniqueIndexes), tx, tables,
		cfg.DropIndexes, cfg.DropForeignKeys, j.log)
	if err := guard.Capture(ctx); err != nil {
		return err
	}

	if err := j.copyFiles(ctx, tx); err != nil {
		return err
	}

	if j.usingStaging {
		if _, err := tx.Exec(ctx, analyzeSQL(cfg.StagingTable)); err != nil {
			return fmt.Errorf("analyze staging table: %w", err)
		}
	}

	if err := guard.Drop(ctx); err != nil {
		return err
	}

	if j.usingStaging {
		if _, err := tx.Exec(ctx, mergeSQL(cfg)); err != nil {
			return fmt.Errorf("merge staged rows: %w", err)
		}
		j.log.Info("staged rows merged", "tables", len(tables))
	}

	if err := guard.Recreate(ctx); err != nil {
		return err
	}
	if err := guard.Verify(ctx); err != nil {
		return err
	}

	for _, t := range tables {
		if _, err := tx.Exec(ctx, analyzeSQL(t)); err != nil {
			return fmt.Errorf("analyze %s: %w", t, err)
		}
	}

	if err := runAfterLoadSQL(ctx, tx, cfg, j.log); err != nil {
		return err
	}
	if cfg.OnFinish != nil {
		if err := cfg.OnFinish(ctx, tx); err != nil {
			return fmt.Errorf("finish hook: %w", err)
		}
	}

	j.log.Info("load finished", "elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}

// copyTarget returns the COPY destination and its column list: the staging
// table with its full column set, or the single target table's own columns
// under the direct strategy.
func (j *Job) copyTarget() (string, []string) {
	if j.usingStaging {
		return j.cfg.StagingTable, j.mapper.columns
	}
	t := j.cfg.Tables[0]
	cols := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = c.Destination
	}
	return t.Name, cols
}

// copyFiles opens one copy channel for the whole run and streams every
// registered file's pipeline into it concurrently. Interleaving between
// files is unspecified; order within a file is preserved.
func (j *Job) copyFiles(ctx context.Context, tx pgx.Tx) error {
	target, columns := j.copyTarget()
	sql := copySQL(target, columns)

	newReader := j.cfg.NewReader
	if newReader == nil {
		newReader = NewCSVReader
	}

	pr, pw := io.Pipe()
	sink := newCopySink(pw, len(columns))

	copyDone := make(chan error, 1)
	go func() {
		_, err := tx.Conn().PgConn().CopyFrom(ctx, pr, sql)
		if err != nil {
			// Unblock the drainer if the copy died mid-stream.
			pr.CloseWithError(err)
		}
		copyDone <- err
	}()

	g, gctx := errgroup.WithContext(ctx)
	for _, path := range j.files {
		path := path
		g.Go(func() error {
			n, err := runPipeline(gctx, path, newReader, j.cfg.OnRow, j.mapper, sink)
			j.rowsLoaded.Add(n)
			if err == nil {
				j.log.Info("file loaded", "file", filepath.Base(path), "rows", n)
			}
			return err
		})
	}

	pipeErr := g.Wait()
	sinkErr := sink.Close()
	copyErr := <-copyDone

	if pipeErr != nil {
		return pipeErr
	}
	if copyErr != nil {
		return fmt.Errorf("copy to %s: %w", target, copyErr)
	}
	if sinkErr != nil {
		return fmt.Errorf("serialize rows: %w", sinkErr)
	}
	return nil
}
