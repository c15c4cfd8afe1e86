package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"tools.zach/dev/sekaibake/internal/paths"
)

// ///////////////////////////////////////////////
// Master-data Records
// ///////////////////////////////////////////////

// GroupRecord is one entry of honorGroups.json.
type GroupRecord struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	HonorType  string `json:"honorType"`
	Background string `json:"backgroundAssetbundleName,omitempty"`
	FrameName  string `json:"frameName,omitempty"`
}

// HonorRecord is one entry of honors.json.
type HonorRecord struct {
	ID          int           `json:"id"`
	Seq         int           `json:"seq"`
	GroupID     int           `json:"groupId"`
	Name        string        `json:"name"`
	Rarity      string        `json:"honorRarity,omitempty"`
	Asset       string        `json:"assetbundleName,omitempty"`
	MissionType string        `json:"honorMissionType,omitempty"`
	Levels      []LevelRecord `json:"levels"`
}

// LevelRecord is one entry of an honor's levels array.
type LevelRecord struct {
	HonorID     int    `json:"honorId"`
	Level       int    `json:"level"`
	Bonus       int    `json:"bonus"`
	Description string `json:"description"`
	Rarity      string `json:"honorRarity,omitempty"`
	Asset       string `json:"assetbundleName,omitempty"`
}

// Key identifies a level across locales.
func (l LevelRecord) Key() string {
	return strconv.Itoa(l.HonorID) + "-" + strconv.Itoa(l.Level)
}

// MasterData is the honor slice of one master-data checkout, with levels
// flattened out of their honors.
type MasterData struct {
	Groups []GroupRecord
	Honors []HonorRecord
	Levels []LevelRecord
}

// ///////////////////////////////////////////////
// Loading
// ///////////////////////////////////////////////

// LoadDir reads honors.json and honorGroups.json from a master-data
// checkout.
func LoadDir(dir string) (*MasterData, error) {
	var md MasterData
	if err := readJSON(filepath.Join(dir, paths.HonorGroupsFile), &md.Groups); err != nil {
		return nil, err
	}
	if err := readJSON(filepath.Join(dir, paths.HonorsFile), &md.Honors); err != nil {
		return nil, err
	}
	for i := range md.Honors {
		md.Levels = append(md.Levels, md.Honors[i].Levels...)
		md.Honors[i].Levels = nil
	}
	return &md, nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read master data: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return nil
}

// ///////////////////////////////////////////////
// Merging
// ///////////////////////////////////////////////

// Merge combines a primary and a fallback locale. Primary records win on key
// collisions and keep their order; fallback-only records are appended in
// their own order. Either side may be nil.
func Merge(primary, fallback *MasterData) *MasterData {
	if primary == nil {
		primary = &MasterData{}
	}
	if fallback == nil {
		fallback = &MasterData{}
	}
	return &MasterData{
		Groups: mergeBy(primary.Groups, fallback.Groups, func(g GroupRecord) string { return strconv.Itoa(g.ID) }),
		Honors: mergeBy(primary.Honors, fallback.Honors, func(h HonorRecord) string { return strconv.Itoa(h.ID) }),
		Levels: mergeBy(primary.Levels, fallback.Levels, LevelRecord.Key),
	}
}

func mergeBy[T any](primary, fallback []T, key func(T) string) []T {
	seen := make(map[string]bool, len(primary))
	out := make([]T, 0, len(primary)+len(fallback))
	for _, r := range primary {
		seen[key(r)] = true
		out = append(out, r)
	}
	for _, r := range fallback {
		if !seen[key(r)] {
			out = append(out, r)
		}
	}
	return out
}
