// Package paths centralizes file and directory names used across the project.
//
// Two roots are modelled: the data directory (config, log, catalog database,
// listing caches, run lock) and the asset tree mirrored from the game's
// storage, whose layout is fixed by upstream convention.
package paths

import (
	"path/filepath"
	"strings"
)

// ///////////////////////////////////////////////
// Data Directory
// ///////////////////////////////////////////////

// Data directory file names.
const (
	ConfigFile   = "config.toml"
	LogFile      = "sekaibake.log"
	LockFile     = "sekaibake.lock"
	DatabaseFile = "catalog.sqlite"
	CacheDir     = "cache"
	BinaryName   = "sekaibake"
	DataDirRel   = ".sekaibake" // relative to the working directory
)

// Master-data file names inside a master-db checkout.
const (
	HonorsFile      = "honors.json"
	HonorGroupsFile = "honorGroups.json"
)

// DataDir provides path construction methods rooted at a data directory.
type DataDir struct {
	Root string
}

// Config returns the full path to the config file.
func (d DataDir) Config() string { return filepath.Join(d.Root, ConfigFile) }

// Log returns the full path to the log file.
func (d DataDir) Log() string { return filepath.Join(d.Root, LogFile) }

// Lock returns the full path to the run lock file.
func (d DataDir) Lock() string { return filepath.Join(d.Root, LockFile) }

// Database returns the default catalog database path.
func (d DataDir) Database() string { return filepath.Join(d.Root, DatabaseFile) }

// Cache returns the directory holding storage listing caches.
func (d DataDir) Cache() string { return filepath.Join(d.Root, CacheDir) }

// ///////////////////////////////////////////////
// Asset Tree
// ///////////////////////////////////////////////

// Asset tree directory names.
const (
	HonorDir      = "honor"
	HonorFrameDir = "honor_frame"
	FrameDir      = "frame"
	RankLiveDir   = "rank_live"
)

// Shared icon file names under the frame directory.
const (
	PipIcon        = "icon_degreeLv.png"
	PipIconHigh    = "icon_degreeLv6.png"
	StarIcon       = "icon_degreeStar.png"
	StarSlotIcon   = "icon_degreeStar_Transparent.png"
	ScrollFile     = "scroll.webp"
	DegreeMainFile = "degree_main.webp"
	DegreeSubFile  = "degree_sub.webp"
)

// AssetTree provides path construction for the mirrored asset tree.
type AssetTree struct {
	Root string
}

// Honor returns the directory of an honor asset bundle.
func (a AssetTree) Honor(bundle string) string {
	return filepath.Join(a.Root, HonorDir, bundle)
}

// RankLive returns the directory of a ranked-match honor asset bundle.
// Bundle names containing '/' expand into nested directories.
func (a AssetTree) RankLive(bundle string) string {
	parts := append([]string{a.Root, RankLiveDir, HonorDir}, strings.Split(bundle, "/")...)
	return filepath.Join(parts...)
}

// Frame returns the path of a file in the shared frame directory.
func (a AssetTree) Frame(name string) string {
	return filepath.Join(a.Root, FrameDir, name)
}

// HonorFrame returns the path of a file in a named frame set.
func (a AssetTree) HonorFrame(set, name string) string {
	return filepath.Join(a.Root, HonorFrameDir, set, name)
}

// Local maps a slash-separated storage key onto the asset tree.
func (a AssetTree) Local(key string) string {
	return filepath.Join(append([]string{a.Root}, strings.Split(key, "/")...)...)
}

// ValidKey reports whether a slash-separated storage key stays inside the
// asset tree once mapped by [AssetTree.Local].
func ValidKey(key string) bool {
	return key != "" && !strings.Contains(key, `\`) && filepath.IsLocal(filepath.FromSlash(key))
}

// Contains reports whether p is dir or lies below it. Both paths must be of
// the same kind; an absolute and a relative path never contain each other.
func Contains(dir, p string) bool {
	rel, err := filepath.Rel(dir, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
