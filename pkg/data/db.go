// Package data persists scored students and their predictions in SQLite.
package data

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const (
	DataFileName string = "data.db"

	timeFormat = time.RFC3339Nano

	createSchemaVersionSQL = `CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL
	)`

	selectSchemaVersionSQL = `SELECT COALESCE(MAX(version), 0) FROM schema_version`
	insertSchemaVersionSQL = `INSERT INTO schema_version (version, applied_at) VALUES (?, ?)`
)

var (
	//go:embed sql/migrations/*.sql
	migrations embed.FS

	errDBNotInitialized = errors.New("database not initialized")

	// ErrNotFound is returned when a student does not exist.
	ErrNotFound = errors.New("not found")
)

// Init creates the database file if needed and applies pending migrations.
func Init(dbFilePath string) error {
	if dbFilePath == "" {
		return errors.New("dbFilePath not specified")
	}

	db, err := GetDB(dbFilePath)
	if err != nil {
		return fmt.Errorf("error opening database %s: %w", dbFilePath, err)
	}
	defer db.Close()

	if err := migrate(db); err != nil {
		return fmt.Errorf("error migrating database %s: %w", dbFilePath, err)
	}
	return nil
}

// GetDB opens the database at path.
func GetDB(path string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	return conn, nil
}

type migration struct {
	version int
	name    string
}

func migrate(db *sql.DB) error {
	if _, err := db.Exec(createSchemaVersionSQL); err != nil {
		return fmt.Errorf("error creating schema_version table: %w", err)
	}

	var current int
	if err := db.QueryRow(selectSchemaVersionSQL).Scan(&current); err != nil {
		return fmt.Errorf("error reading schema version: %w", err)
	}

	list, err := listMigrations()
	if err != nil {
		return err
	}

	for _, m := range list {
		if m.version <= current {
			continue
		}

		b, err := migrations.ReadFile(m.name)
		if err != nil {
			return fmt.Errorf("error reading migration %s: %w", m.name, err)
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("error starting migration tx: %w", err)
		}
		if _, err := tx.Exec(string(b)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("error applying migration %s: %w", m.name, err)
		}
		if _, err := tx.Exec(insertSchemaVersionSQL, m.version, now()); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("error recording migration %s: %w", m.name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("error committing migration %s: %w", m.name, err)
		}

		slog.Debug("migration applied", "version", m.version, "file", path.Base(m.name))
	}

	return nil
}

// listMigrations returns the embedded migrations ordered by the numeric
// prefix of their file name (001_init.sql is version 1).
func listMigrations() ([]migration, error) {
	names, err := fs.Glob(migrations, "sql/migrations/*.sql")
	if err != nil {
		return nil, fmt.Errorf("error listing migrations: %w", err)
	}

	list := make([]migration, 0, len(names))
	for _, n := range names {
		prefix, _, ok := strings.Cut(path.Base(n), "_")
		if !ok {
			return nil, fmt.Errorf("migration %s has no version prefix", n)
		}
		v, err := strconv.Atoi(prefix)
		if err != nil {
			return nil, fmt.Errorf("migration %s has invalid version: %w", n, err)
		}
		list = append(list, migration{version: v, name: n})
	}

	sort.Slice(list, func(i, j int) bool { return list[i].version < list[j].version })
	return list, nil
}

func now() string {
	return time.Now().UTC().Format(timeFormat)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
