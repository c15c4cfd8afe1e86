// Package catalog imports honor master data into SQLite and loads it back as
// the linked [honor] model the compositor renders from.
package catalog

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"tools.zach/dev/sekaibake/internal/honor"
	"tools.zach/dev/sekaibake/internal/migrate"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// ErrEmpty is returned by [Store.Snapshot] before the first import.
var ErrEmpty = errors.New("catalog is empty; run an import first")

// Store provides SQLite-backed persistence for the honor catalog.
type Store struct {
	db *sql.DB
}

// Open opens and migrates the catalog database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("database path is required")
	}

	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	migrations, err := migrate.ParseFS(migrationFS, "migrations")
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := migrate.Apply(ctx, db, migrations); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ///////////////////////////////////////////////
// Import
// ///////////////////////////////////////////////

// ImportInfo describes one import for the import log.
type ImportInfo struct {
	At         time.Time
	ENRevision string
	JPRevision string
	Groups     int
	Honors     int
	Levels     int
}

// Import replaces the honor tables with md in a single transaction and
// appends an entry to the import log. Record order is preserved.
func (s *Store) Import(ctx context.Context, md *MasterData, info ImportInfo) (ImportInfo, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return info, fmt.Errorf("begin import: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"honor_levels", "honors", "honor_groups"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return info, fmt.Errorf("clear %s: %w", table, err)
		}
	}

	for i, g := range md.Groups {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO honor_groups (id, ord, name, honor_type, background_asset, frame_name)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			g.ID, i, g.Name, g.HonorType, g.Background, g.FrameName,
		); err != nil {
			return info, fmt.Errorf("insert honor group %d: %w", g.ID, err)
		}
	}
	for i, h := range md.Honors {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO honors (id, ord, seq, group_id, name, rarity, asset, mission_type)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			h.ID, i, h.Seq, h.GroupID, h.Name, h.Rarity, h.Asset, h.MissionType,
		); err != nil {
			return info, fmt.Errorf("insert honor %d: %w", h.ID, err)
		}
	}
	for i, l := range md.Levels {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO honor_levels (id, ord, honor_id, level, bonus, description, rarity, asset)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			l.Key(), i, l.HonorID, l.Level, l.Bonus, l.Description, l.Rarity, l.Asset,
		); err != nil {
			return info, fmt.Errorf("insert honor level %s: %w", l.Key(), err)
		}
	}

	if info.At.IsZero() {
		info.At = time.Now().UTC()
	}
	info.Groups, info.Honors, info.Levels = len(md.Groups), len(md.Honors), len(md.Levels)
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO imports (imported_at, en_revision, jp_revision, group_count, honor_count, level_count)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		info.At.UnixMilli(), info.ENRevision, info.JPRevision, info.Groups, info.Honors, info.Levels,
	); err != nil {
		return info, fmt.Errorf("record import: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return info, fmt.Errorf("commit import: %w", err)
	}
	return info, nil
}

// LastImport returns the most recent import log entry. ok is false when the
// catalog has never been imported.
func (s *Store) LastImport(ctx context.Context) (info ImportInfo, ok bool, err error) {
	var at int64
	err = s.db.QueryRowContext(ctx,
		`SELECT imported_at, en_revision, jp_revision, group_count, honor_count, level_count
		 FROM imports ORDER BY id DESC LIMIT 1`,
	).Scan(&at, &info.ENRevision, &info.JPRevision, &info.Groups, &info.Honors, &info.Levels)
	if errors.Is(err, sql.ErrNoRows) {
		return ImportInfo{}, false, nil
	}
	if err != nil {
		return ImportInfo{}, false, fmt.Errorf("read import log: %w", err)
	}
	info.At = time.UnixMilli(at).UTC()
	return info, true, nil
}

// ///////////////////////////////////////////////
// Snapshot
// ///////////////////////////////////////////////

// Catalog is a linked, read-only view of the honor tables.
type Catalog struct {
	// Groups in import order.
	Groups []*honor.Group
	// Honors in import order. Each honor's Levels are sorted by level.
	Honors []*honor.Honor
}

// Snapshot loads every group, honor and level and links them. Unknown honor
// types or rarities fail the load. Honors whose group is missing and levels
// whose honor is missing are skipped with a warning.
func (s *Store) Snapshot(ctx context.Context) (*Catalog, error) {
	groups, err := s.loadGroups(ctx)
	if err != nil {
		return nil, err
	}
	honors, err := s.loadHonors(ctx, groups)
	if err != nil {
		return nil, err
	}
	if err := s.loadLevels(ctx, honors); err != nil {
		return nil, err
	}

	if len(groups.ordered) == 0 && len(honors.ordered) == 0 {
		return nil, ErrEmpty
	}
	cat := &Catalog{Groups: groups.ordered, Honors: honors.ordered}
	return cat, nil
}

type groupIndex struct {
	byID    map[int]*honor.Group
	ordered []*honor.Group
}

type honorIndex struct {
	byID    map[int]*honor.Honor
	ordered []*honor.Honor
}

func (s *Store) loadGroups(ctx context.Context) (*groupIndex, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, honor_type, background_asset, frame_name FROM honor_groups ORDER BY ord`)
	if err != nil {
		return nil, fmt.Errorf("query honor groups: %w", err)
	}
	defer rows.Close()

	idx := &groupIndex{byID: map[int]*honor.Group{}}
	for rows.Next() {
		var g honor.Group
		var typ string
		if err := rows.Scan(&g.ID, &g.Name, &typ, &g.Background, &g.FrameSet); err != nil {
			return nil, fmt.Errorf("scan honor group: %w", err)
		}
		if g.Type, err = honor.ParseType(typ); err != nil {
			return nil, fmt.Errorf("honor group %d: %w", g.ID, err)
		}
		idx.byID[g.ID] = &g
		idx.ordered = append(idx.ordered, &g)
	}
	return idx, rows.Err()
}

func (s *Store) loadHonors(ctx context.Context, groups *groupIndex) (*honorIndex, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, seq, group_id, name, rarity, asset, mission_type FROM honors ORDER BY ord`)
	if err != nil {
		return nil, fmt.Errorf("query honors: %w", err)
	}
	defer rows.Close()

	idx := &honorIndex{byID: map[int]*honor.Honor{}}
	for rows.Next() {
		var h honor.Honor
		var groupID int
		var rarity string
		if err := rows.Scan(&h.ID, &h.Seq, &groupID, &h.Name, &rarity, &h.Asset, &h.MissionType); err != nil {
			return nil, fmt.Errorf("scan honor: %w", err)
		}
		if h.Rarity, err = honor.ParseRarity(rarity); err != nil {
			return nil, fmt.Errorf("honor %d: %w", h.ID, err)
		}
		g, ok := groups.byID[groupID]
		if !ok {
			slog.Warn("honor references unknown group, skipping", "honor", h.ID, "group", groupID)
			continue
		}
		h.Group = g
		g.Honors = append(g.Honors, &h)
		idx.byID[h.ID] = &h
		idx.ordered = append(idx.ordered, &h)
	}
	return idx, rows.Err()
}

func (s *Store) loadLevels(ctx context.Context, honors *honorIndex) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT honor_id, level, bonus, description, rarity, asset FROM honor_levels ORDER BY honor_id, level`)
	if err != nil {
		return fmt.Errorf("query honor levels: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var l honor.Level
		var rarity string
		if err := rows.Scan(&l.HonorID, &l.Level, &l.Bonus, &l.Description, &rarity, &l.Asset); err != nil {
			return fmt.Errorf("scan honor level: %w", err)
		}
		if l.Rarity, err = honor.ParseRarity(rarity); err != nil {
			return fmt.Errorf("honor level %d-%d: %w", l.HonorID, l.Level, err)
		}
		h, ok := honors.byID[l.HonorID]
		if !ok {
			slog.Warn("honor level references unknown honor, skipping", "honor", l.HonorID, "level", l.Level)
			continue
		}
		h.Levels = append(h.Levels, &l)
	}
	return rows.Err()
}
