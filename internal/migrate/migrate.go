// Package migrate applies sequential schema migrations to the catalog
// database, upgrading it from one version to the next.
//
// Migrations are SQL files named NNNN_description.sql. Only the section after
// a "-- +migrate Up" marker (when present) and before "-- +migrate Down" is
// executed. Applied versions are recorded in the schema_migrations table.
package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"
)

const migrationTable = "schema_migrations"

// ///////////////////////////////////////////////
// Types
// ///////////////////////////////////////////////

// Migration is one schema upgrade step.
type Migration struct {
	// Version is the schema version this migration produces.
	Version int
	// Description is a short human-readable label for log output.
	Description string
	// Up is the SQL executed to reach Version.
	Up string
}

// ///////////////////////////////////////////////
// Loading
// ///////////////////////////////////////////////

// ParseFS reads every *.sql file in dir of fsys into a Migration, sorted by
// version. Duplicate versions are an error.
func ParseFS(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	var out []Migration
	seen := map[int]string{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		version, desc, err := parseName(e.Name())
		if err != nil {
			return nil, err
		}
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("duplicate migration version %d (%s, %s)", version, prev, e.Name())
		}
		seen[version] = e.Name()

		content, err := fs.ReadFile(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", e.Name(), err)
		}
		out = append(out, Migration{Version: version, Description: desc, Up: ExtractUp(string(content))})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// parseName splits "0002_honor_levels.sql" into (2, "honor levels").
func parseName(name string) (int, string, error) {
	base := strings.TrimSuffix(name, ".sql")
	num, desc, _ := strings.Cut(base, "_")
	v, err := strconv.Atoi(num)
	if err != nil || v <= 0 {
		return 0, "", fmt.Errorf("migration %s: name must start with a positive version number", name)
	}
	return v, strings.ReplaceAll(desc, "_", " "), nil
}

// ExtractUp returns the SQL in the "-- +migrate Up" section, or all of
// content when no marker is present.
func ExtractUp(content string) string {
	upIdx := strings.Index(content, "-- +migrate Up")
	if upIdx == -1 {
		return content
	}
	body := content[upIdx+len("-- +migrate Up"):]
	if downIdx := strings.Index(body, "-- +migrate Down"); downIdx != -1 {
		body = body[:downIdx]
	}
	return body
}

// ///////////////////////////////////////////////
// Applying
// ///////////////////////////////////////////////

// CurrentVersion returns the highest applied version, or 0 for a fresh
// database.
func CurrentVersion(ctx context.Context, db *sql.DB) (int, error) {
	if err := ensureTable(ctx, db); err != nil {
		return 0, err
	}
	var v sql.NullInt64
	if err := db.QueryRowContext(ctx, "SELECT MAX(version) FROM "+migrationTable).Scan(&v); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return int(v.Int64), nil
}

// NeedsMigration reports whether any migration is newer than current.
func NeedsMigration(current int, migrations []Migration) bool {
	for _, m := range migrations {
		if current < m.Version {
			return true
		}
	}
	return false
}

// Apply runs each migration newer than the database's current version in
// its own transaction, in version order. Returns the version reached. On
// failure the reached version is that of the last successful step.
func Apply(ctx context.Context, db *sql.DB, migrations []Migration) (int, error) {
	version, err := CurrentVersion(ctx, db)
	if err != nil {
		return 0, err
	}

	sorted := make([]Migration, len(migrations))
	copy(sorted, migrations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Version < sorted[j].Version
	})

	for _, m := range sorted {
		if m.Version <= version {
			continue
		}
		slog.Debug("applying migration", "version", m.Version, "description", m.Description)
		if err := applyOne(ctx, db, m); err != nil {
			return version, fmt.Errorf("migration to v%d failed: %w", m.Version, err)
		}
		version = m.Version
	}
	return version, nil
}

func applyOne(ctx context.Context, db *sql.DB, m Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if strings.TrimSpace(m.Up) != "" {
		if _, err := tx.ExecContext(ctx, m.Up); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO "+migrationTable+" (version, description, applied_at) VALUES (?, ?, ?)",
		m.Version, m.Description, time.Now().UTC().UnixMilli(),
	); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("record: %w", err)
	}
	return tx.Commit()
}

func ensureTable(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+migrationTable+` (
    version     INTEGER PRIMARY KEY,
    description TEXT NOT NULL,
    applied_at  INTEGER NOT NULL
)`)
	if err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}
	return nil
}
