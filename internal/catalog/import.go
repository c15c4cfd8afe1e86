package catalog

import (
	"context"
	"fmt"
	"log/slog"
)

// ImportCheckouts loads the primary (EN) and fallback (JP) master-data
// checkouts, merges them, and replaces the catalog with the result. An empty
// fallbackDir imports the primary locale alone.
func ImportCheckouts(ctx context.Context, s *Store, primaryDir, fallbackDir string, info ImportInfo) (ImportInfo, error) {
	primary, err := LoadDir(primaryDir)
	if err != nil {
		return info, fmt.Errorf("load %s: %w", primaryDir, err)
	}
	var fallback *MasterData
	if fallbackDir != "" {
		if fallback, err = LoadDir(fallbackDir); err != nil {
			return info, fmt.Errorf("load %s: %w", fallbackDir, err)
		}
	}

	merged := Merge(primary, fallback)
	info, err = s.Import(ctx, merged, info)
	if err != nil {
		return info, err
	}
	slog.Info("catalog imported",
		"groups", info.Groups,
		"honors", info.Honors,
		"levels", info.Levels,
	)
	return info, nil
}
