/*
Package main provides the CLI commands for managing database migrations in leadpipe.
This includes commands for applying and rolling back migrations.
*/

package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	migrate "github.com/rubenv/sql-migrate"
	"github.com/spf13/cobra"

	"github.com/blnkfinance/leadpipe"
	"github.com/blnkfinance/leadpipe/config"
	pgconn "github.com/blnkfinance/leadpipe/internal/pg-conn"
)

const (
	migrationLockKey  = "leadpipe:migrations"
	migrationLockTTL  = 10 * time.Minute
	migrationLockWait = 30 * time.Second
)

func migrateCommands(l *leadpipeInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "run leadpipe schema migrations",
	}

	cmd.AddCommand(migrateUpCommands(l))
	cmd.AddCommand(migrateDownCommands(l))

	return cmd
}

// runMigrations applies migrations in direction while holding the migration lock.
func runMigrations(l *leadpipeInstance, direction migrate.MigrationDirection) (int, error) {
	db, err := migrationDB()
	if err != nil {
		return 0, err
	}
	defer db.Close()

	var n int
	err = l.pipe.WithClusterLock(context.Background(), migrationLockKey, migrationLockTTL, migrationLockWait, func() error {
		var execErr error
		n, execErr = migrate.Exec(db, "postgres", migrationSource(), direction)
		return execErr
	})
	return n, err
}

func migrationSource() migrate.EmbedFileSystemMigrationSource {
	return migrate.EmbedFileSystemMigrationSource{
		FileSystem: leadpipe.SQLFiles,
		Root:       "sql",
	}
}

func migrationDB() (*sql.DB, error) {
	cnf, err := config.Fetch()
	if err != nil {
		return nil, fmt.Errorf("error fetching config: %w", err)
	}

	db, err := pgconn.ConnectDB(cnf.DataSource)
	if err != nil {
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}
	return db, nil
}

func migrateUpCommands(l *leadpipeInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use: "up",
		Run: func(cmd *cobra.Command, args []string) {
			n, err := runMigrations(l, migrate.Up)
			if err != nil {
				log.Printf("Error migrating up: %v", err)
			} else {
				fmt.Printf("Applied %d migrations!\n", n)
			}
		},
	}

	return cmd
}

// migrateDownCommands rolls back every applied migration.
func migrateDownCommands(l *leadpipeInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use: "down",
		Run: func(cmd *cobra.Command, args []string) {
			n, err := runMigrations(l, migrate.Down)
			if err != nil {
				log.Printf("Error migrating down: %v", err)
			} else {
				fmt.Printf("Rolled back %d migrations!\n", n)
			}
		},
	}

	return cmd
}
