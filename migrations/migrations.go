// Package migrations holds the Postgres schema of the platform.
package migrations

import (
	"database/sql"
	"embed"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	migrate "github.com/rubenv/sql-migrate"
)

//go:embed sql/*.sql
var files embed.FS

func Source() migrate.MigrationSource {
	return &migrate.EmbedFileSystemMigrationSource{FileSystem: files, Root: "sql"}
}

// Open returns a database/sql handle over the pgx driver.
func Open(databaseURL string) (*sql.DB, error) {
	return sql.Open("pgx", databaseURL)
}

// Up applies pending migrations and returns how many ran.
func Up(db *sql.DB) (int, error) {
	n, err := migrate.Exec(db, "postgres", Source(), migrate.Up)
	if err != nil {
		return n, fmt.Errorf("apply migrations: %w", err)
	}
	return n, nil
}

// Down rolls back at most steps migrations.
func Down(db *sql.DB, steps int) (int, error) {
	n, err := migrate.ExecMax(db, "postgres", Source(), migrate.Down, steps)
	if err != nil {
		return n, fmt.Errorf("roll back migrations: %w", err)
	}
	return n, nil
}
