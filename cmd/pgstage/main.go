package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/quaylabs/pgstage"
)

var (
	configPath string
	dataDir    string
	glob       string
)

var rootCmd = &cobra.Command{
	Use:   "pgstage [config.toml]",
	Short: "Staged bulk loading of delimited files into PostgreSQL",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runLoad,
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "", "path to job TOML config file")
	rootCmd.Flags().StringVar(&dataDir, "dir", ".", "directory to scan for input files")
	rootCmd.Flags().StringVar(&glob, "glob", "*.csv", "glob pattern for input files")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runLoad(cmd *cobra.Command, args []string) error {
	// Resolve config path: positional arg takes precedence over --config flag
	cfgPath := configPath
	if len(args) > 0 {
		cfgPath = args[0]
	}
	if cfgPath == "" {
		return fmt.Errorf("config file required: pgstage <config.toml> or pgstage --config <config.toml>")
	}

	// DSNs may live in a .env file rather than the config
	_ = godotenv.Load()

	cfg, err := pgstage.LoadConfig(cfgPath)
	if err != nil {
		return err
	}
	cfg.Logger = slog.New(slog.NewTextHandler(os.Stderr, nil))

	dsn := cfg.Target.DSN
	if dsn == "" {
		dsn = os.Getenv("POSTGRES_DSN")
	}
	if dsn == "" {
		return fmt.Errorf("target.dsn or POSTGRES_DSN is required")
	}

	ctx := context.Background()
	start := time.Now()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}

	job, err := pgstage.NewJob(pool, cfg)
	if err != nil {
		pool.Close()
		return err
	}
	defer job.End()

	n, err := job.Register(dataDir, glob)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("no files matching %s under %s", glob, dataDir)
	}

	if err := job.Start(ctx); err != nil {
		return err
	}

	fmt.Printf("loaded %d file(s) in %s (staging=%t)\n", n, time.Since(start).Round(time.Millisecond), job.UsingStaging())
	return nil
}
