// Package config provides configuration loading and defaults for sekaibake.
//
// Configuration is loaded from a TOML file in the data directory. Relative
// paths in the file are resolved against the data directory. The package
// covers master-data sources, the catalog database, the asset tree and its
// storage mirrors, bake output, and logging.
package config

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/bmatcuk/doublestar/v4"
	"tools.zach/dev/sekaibake/internal/atomicfile"
	"tools.zach/dev/sekaibake/internal/paths"
)

// Default upstream locations.
const (
	DefaultENRepository = "https://github.com/Sekai-World/sekai-master-db-en-diff.git"
	DefaultJPRepository = "https://github.com/Sekai-World/sekai-master-db-diff.git"
	DefaultENStorageURL = "https://storage.sekai.best/sekai-en-assets/"
	DefaultJPStorageURL = "https://storage.sekai.best/sekai-jp-assets/"
)

// ///////////////////////////////////////////////
// Configuration Types
// ///////////////////////////////////////////////

// Config represents the top-level application configuration.
type Config struct {
	// Data holds the master-data mirror settings.
	Data DataConfig `toml:"data"`
	// Database holds the catalog database settings.
	Database DatabaseConfig `toml:"database"`
	// Assets holds the asset tree and storage mirror settings.
	Assets AssetsConfig `toml:"assets"`
	// Bake holds compositor output settings.
	Bake BakeConfig `toml:"bake"`
	// Log holds logging settings.
	Log LogConfig `toml:"log"`
}

// DataConfig holds the git mirrors of the game's master data.
type DataConfig struct {
	// ENRepository is the clone URL of the EN master-data mirror.
	ENRepository string `toml:"en_repository"`
	// ENDir is the checkout directory of the EN mirror.
	ENDir string `toml:"en_dir"`
	// JPRepository is the clone URL of the JP master-data mirror.
	JPRepository string `toml:"jp_repository"`
	// JPDir is the checkout directory of the JP mirror.
	JPDir string `toml:"jp_dir"`
	// GitTimeoutSeconds bounds a single clone or pull.
	GitTimeoutSeconds int `toml:"git_timeout_seconds"`
}

// DatabaseConfig holds the catalog database settings.
type DatabaseConfig struct {
	// Path is the SQLite database file.
	Path string `toml:"path"`
}

// AssetsConfig holds the asset tree location and where to fetch it from.
type AssetsConfig struct {
	// Dir is the root of the mirrored asset tree.
	Dir string `toml:"dir"`
	// Repository is an optional git repository holding a prebuilt asset
	// tree. When set, `update` clones or pulls it into Dir.
	Repository string `toml:"repository,omitempty"`
	// ENStorageURL is the EN asset storage bucket, tried first for honor art.
	ENStorageURL string `toml:"en_storage_url"`
	// JPStorageURL is the JP asset storage bucket, used for listings and as
	// the download fallback.
	JPStorageURL string `toml:"jp_storage_url"`
	// ListDelayMS is the pause between directory listing requests.
	ListDelayMS int `toml:"list_delay_ms"`
	// DownloadDelayMS is the pause between file downloads.
	DownloadDelayMS int `toml:"download_delay_ms"`
	// RetryMax is the retry budget for a single HTTP request.
	RetryMax int `toml:"retry_max"`
	// Prefixes lists the storage prefixes mirrored by `assets`.
	Prefixes []PrefixConfig `toml:"prefixes"`
}

// PrefixConfig describes one mirrored storage prefix.
type PrefixConfig struct {
	// Prefix is the storage key prefix, ending in '/'.
	Prefix string `toml:"prefix"`
	// Cache names the listing cache files under the data directory.
	Cache string `toml:"cache"`
	// TryEN downloads from EN storage before falling back to JP.
	TryEN bool `toml:"try_en"`
}

// BakeConfig holds compositor output settings.
type BakeConfig struct {
	// OutputDir is the baked badge tree. It is removed and rebuilt on every run.
	OutputDir string `toml:"output_dir"`
	// LockedSourceLevel is the character rank whose badge is greyed to
	// produce the locked variant.
	LockedSourceLevel int `toml:"locked_source_level"`
	// LockedCharacterLevel is the rank number of the locked character badge.
	LockedCharacterLevel int `toml:"locked_character_level"`
	// LockedAchievementName is the file stem of the locked achievement badge.
	LockedAchievementName string `toml:"locked_achievement_name"`
	// Exclude is a list of glob patterns matched against
	// "<type>/<group folder>"; matching groups are not baked.
	Exclude []string `toml:"exclude"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is the minimum log level (trace, debug, info, warn, error).
	Level string `toml:"level"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation.
	MaxSizeMB int `toml:"max_size_mb"`
}

// ///////////////////////////////////////////////
// Default Configuration
// ///////////////////////////////////////////////

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Data: DataConfig{
			ENRepository:      DefaultENRepository,
			ENDir:             "master/en",
			JPRepository:      DefaultJPRepository,
			JPDir:             "master/jp",
			GitTimeoutSeconds: 600,
		},
		Database: DatabaseConfig{
			Path: paths.DatabaseFile,
		},
		Assets: AssetsConfig{
			Dir:             "assets",
			ENStorageURL:    DefaultENStorageURL,
			JPStorageURL:    DefaultJPStorageURL,
			ListDelayMS:     5,
			DownloadDelayMS: 50,
			RetryMax:        3,
			Prefixes: []PrefixConfig{
				{Prefix: "honor/", Cache: "honor", TryEN: true},
				{Prefix: "honor_frame/", Cache: "honorFrame"},
				{Prefix: "rank_live/honor/", Cache: "rankedHonor"},
			},
		},
		Bake: BakeConfig{
			OutputDir:             "assets/honor_baked",
			LockedSourceLevel:     5,
			LockedCharacterLevel:  0,
			LockedAchievementName: "0000",
			Exclude:               []string{},
		},
		Log: LogConfig{
			Level:     "info",
			MaxSizeMB: 10,
		},
	}
}

// ///////////////////////////////////////////////
// Loading and Saving
// ///////////////////////////////////////////////

// Load reads and parses the configuration file from dataDir/config.toml.
// If the file doesn't exist, returns DefaultConfig. Values not present in
// the file keep their defaults.
func Load(dataDir string) (*Config, error) {
	path := filepath.Join(dataDir, paths.ConfigFile)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	for _, key := range md.Undecoded() {
		slog.Warn("unknown config key", "key", key.String())
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	if err := cfg.CheckOutputDir(dataDir); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Save writes the config to disk as TOML using atomic file write.
func (c *Config) Save(path string) error {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return atomicfile.Write(path, buf.Bytes(), 0o644)
}

// ///////////////////////////////////////////////
// Validation
// ///////////////////////////////////////////////

// validLogLevels is the set of accepted log level strings.
var validLogLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "error": true,
}

// Validate checks that all configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	if c.Data.ENRepository == "" || c.Data.JPRepository == "" {
		return fmt.Errorf("data.en_repository and data.jp_repository are required")
	}
	if c.Data.ENDir == "" || c.Data.JPDir == "" {
		return fmt.Errorf("data.en_dir and data.jp_dir are required")
	}
	if c.Data.GitTimeoutSeconds <= 0 {
		return fmt.Errorf("git_timeout_seconds must be > 0, got %d", c.Data.GitTimeoutSeconds)
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Assets.Dir == "" {
		return fmt.Errorf("assets.dir is required")
	}
	for name, raw := range map[string]string{
		"en_storage_url": c.Assets.ENStorageURL,
		"jp_storage_url": c.Assets.JPStorageURL,
	} {
		if err := validateStorageURL(raw); err != nil {
			return fmt.Errorf("invalid assets.%s %q: %w", name, raw, err)
		}
	}
	if c.Assets.ListDelayMS < 0 || c.Assets.DownloadDelayMS < 0 {
		return fmt.Errorf("asset request delays must be >= 0")
	}
	if c.Assets.RetryMax < 0 {
		return fmt.Errorf("retry_max must be >= 0, got %d", c.Assets.RetryMax)
	}
	seenCache := map[string]bool{}
	for _, p := range c.Assets.Prefixes {
		if !strings.HasSuffix(p.Prefix, "/") || strings.HasPrefix(p.Prefix, "/") {
			return fmt.Errorf("invalid assets prefix %q: must be relative and end with '/'", p.Prefix)
		}
		if p.Cache == "" || strings.ContainsAny(p.Cache, `/\`) {
			return fmt.Errorf("invalid cache name %q for prefix %q", p.Cache, p.Prefix)
		}
		if seenCache[p.Cache] {
			return fmt.Errorf("duplicate cache name %q", p.Cache)
		}
		seenCache[p.Cache] = true
	}

	if c.Bake.OutputDir == "" {
		return fmt.Errorf("bake.output_dir is required")
	}
	if err := c.CheckOutputDir(""); err != nil {
		return err
	}
	if c.Bake.LockedSourceLevel <= 0 {
		return fmt.Errorf("locked_source_level must be > 0, got %d", c.Bake.LockedSourceLevel)
	}
	if c.Bake.LockedCharacterLevel < 0 || c.Bake.LockedCharacterLevel == c.Bake.LockedSourceLevel {
		return fmt.Errorf("locked_character_level must be >= 0 and differ from locked_source_level, got %d", c.Bake.LockedCharacterLevel)
	}
	if c.Bake.LockedAchievementName == "" || strings.ContainsAny(c.Bake.LockedAchievementName, `/\.`) {
		return fmt.Errorf("invalid locked_achievement_name %q", c.Bake.LockedAchievementName)
	}
	for _, pattern := range c.Bake.Exclude {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("invalid bake.exclude pattern %q", pattern)
		}
	}

	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("invalid log.level %q: must be trace, debug, info, warn, or error", c.Log.Level)
	}
	if c.Log.MaxSizeMB <= 0 {
		return fmt.Errorf("log.max_size_mb must be > 0, got %d", c.Log.MaxSizeMB)
	}
	return nil
}

// CheckOutputDir rejects a bake.output_dir that equals or contains the data
// directory or assets.dir once both are resolved against dataDir, since every
// bake removes the output dir. An empty dataDir checks the relative paths as
// written, with the data directory standing at ".".
func (c *Config) CheckOutputDir(dataDir string) error {
	base := dataDir
	if base == "" {
		base = "."
	}
	abs := func(p string) string {
		if dataDir == "" {
			return p
		}
		if a, err := filepath.Abs(p); err == nil {
			return a
		}
		return p
	}

	out := abs(resolve(base, c.Bake.OutputDir))
	guarded := []struct {
		name string
		path string
	}{
		{"the data directory", abs(filepath.Clean(base))},
		{"assets.dir", abs(resolve(base, c.Assets.Dir))},
	}
	for _, g := range guarded {
		if paths.Contains(out, g.path) {
			return fmt.Errorf("bake.output_dir %q must not contain %s", c.Bake.OutputDir, g.name)
		}
	}
	return nil
}

// validateStorageURL requires an absolute http(s) URL ending in '/', since
// object keys are appended to it verbatim.
func validateStorageURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	if !strings.HasSuffix(u.Path, "/") {
		return fmt.Errorf("must end with '/'")
	}
	return nil
}

// ///////////////////////////////////////////////
// Path Helpers
// ///////////////////////////////////////////////

// Resolved returns a copy of c with every relative path joined onto
// dataDir.
func (c *Config) Resolved(dataDir string) *Config {
	r := *c
	r.Data.ENDir = resolve(dataDir, c.Data.ENDir)
	r.Data.JPDir = resolve(dataDir, c.Data.JPDir)
	r.Database.Path = resolve(dataDir, c.Database.Path)
	r.Assets.Dir = resolve(dataDir, c.Assets.Dir)
	r.Bake.OutputDir = resolve(dataDir, c.Bake.OutputDir)
	return &r
}

func resolve(base, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// IsExcluded reports whether the baked group at rel ("<type>/<group
// folder>") matches any configured exclude pattern.
func (c *Config) IsExcluded(rel string) bool {
	for _, pattern := range c.Bake.Exclude {
		matched, err := doublestar.Match(pattern, rel)
		if err != nil {
			slog.Warn("invalid glob pattern", "pattern", pattern, "error", err)
			continue
		}
		if matched {
			return true
		}
	}
	return false
}
