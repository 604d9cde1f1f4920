// cmd/migrate applies the *.up.sql migrations in migrations/ against the
// ledger database, or rolls the latest one back with its *.down.sql file.
// Uses the same schema_migrations table format as golang-migrate (bigint
// version + dirty flag) so the two tools are interchangeable.
//
// Usage:
//
//	go run ./cmd/migrate
//	go run ./cmd/migrate down
//	GENLEDGER_LEDGER_DATABASE_URL=postgres://... go run ./cmd/migrate
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmerrifield20/genledger/internal/config"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	dir     string
	dbURL   string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "migrate",
	Short:        "Apply pending ledger migrations",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(cmd.Context(), up)
	},
}

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the most recently applied migration",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(cmd.Context(), down)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default configs/genledger.yaml)")
	rootCmd.PersistentFlags().StringVar(&dir, "dir", "migrations", "migrations directory")
	rootCmd.PersistentFlags().StringVar(&dbURL, "database-url", "", "database URL (default ledger.database_url)")
	rootCmd.AddCommand(downCmd)
}

func withDB(ctx context.Context, fn func(context.Context, *pgxpool.Pool) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if dbURL == "" {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		dbURL = cfg.Ledger.DatabaseURL
	}

	db, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer db.Close()

	if err := db.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	fmt.Println("connected to database")

	// Ensure tracking table exists; same schema as golang-migrate.
	if _, err := db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version bigint NOT NULL,
			dirty   boolean NOT NULL,
			PRIMARY KEY (version)
		)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}
	return fn(ctx, db)
}

func up(ctx context.Context, db *pgxpool.Pool) error {
	files, err := migrationFiles(dir, ".up.sql")
	if err != nil {
		return err
	}

	applied := 0
	for _, f := range files {
		ver, err := versionFromFile(f)
		if err != nil {
			return fmt.Errorf("parse version from %s: %w", f, err)
		}

		var exists bool
		if err := db.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1 AND dirty = false)`,
			ver,
		).Scan(&exists); err != nil {
			return fmt.Errorf("check %s: %w", f, err)
		}
		if exists {
			fmt.Printf("  skip  %s (already applied)\n", f)
			continue
		}

		sql, err := os.ReadFile(filepath.Join(dir, f))
		if err != nil {
			return fmt.Errorf("read %s: %w", f, err)
		}

		// Mark dirty=true before applying so a crash is visible.
		if _, err := db.Exec(ctx,
			`INSERT INTO schema_migrations (version, dirty) VALUES ($1, true)
			 ON CONFLICT (version) DO UPDATE SET dirty = true`, ver,
		); err != nil {
			return fmt.Errorf("mark dirty %s: %w", f, err)
		}

		if _, err := db.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("apply %s: %w", f, err)
		}

		if _, err := db.Exec(ctx,
			`UPDATE schema_migrations SET dirty = false WHERE version = $1`, ver,
		); err != nil {
			return fmt.Errorf("mark clean %s: %w", f, err)
		}

		fmt.Printf("  apply %s\n", f)
		applied++
	}

	if applied == 0 {
		fmt.Println("nothing to migrate, already up to date")
	} else {
		fmt.Printf("applied %d migration(s)\n", applied)
	}
	return nil
}

func down(ctx context.Context, db *pgxpool.Pool) error {
	var ver int64
	err := db.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&ver)
	if err != nil {
		return fmt.Errorf("read current version: %w", err)
	}
	if ver == 0 {
		fmt.Println("nothing to roll back")
		return nil
	}

	files, err := migrationFiles(dir, ".down.sql")
	if err != nil {
		return err
	}
	var target string
	for _, f := range files {
		if v, err := versionFromFile(f); err == nil && v == ver {
			target = f
			break
		}
	}
	if target == "" {
		return fmt.Errorf("no down migration for version %d", ver)
	}

	sql, err := os.ReadFile(filepath.Join(dir, target))
	if err != nil {
		return fmt.Errorf("read %s: %w", target, err)
	}
	if _, err := db.Exec(ctx, string(sql)); err != nil {
		return fmt.Errorf("apply %s: %w", target, err)
	}
	if _, err := db.Exec(ctx, `DELETE FROM schema_migrations WHERE version = $1`, ver); err != nil {
		return fmt.Errorf("unrecord version %d: %w", ver, err)
	}
	fmt.Printf("  revert %s\n", target)
	return nil
}

// migrationFiles lists the files in dir ending in suffix, sorted by name.
func migrationFiles(dir, suffix string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), suffix) {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// versionFromFile extracts the leading integer from a migration filename.
// "001_generation_ledger.up.sql" → 1
func versionFromFile(filename string) (int64, error) {
	prefix, _, ok := strings.Cut(filename, "_")
	if !ok {
		return 0, fmt.Errorf("unexpected filename format")
	}
	return strconv.ParseInt(prefix, 10, 64)
}
