// Tests for the config package covering [Load] behavior (defaults, overrides,
// missing files, malformed input), validation ([Config.Validate] and
// [Config.CheckOutputDir]), path
// resolution ([Config.Resolved]), exclusion globs ([Config.IsExcluded]), and
// serialization round-trips ([Config.Save]).

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/BurntSushi/toml"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

// ///////////////////////////////////////////////
// Load
// ///////////////////////////////////////////////

func TestLoad(t *testing.T) {
	tests := []struct {
		name    string
		config  string
		noFile  bool // if true, skip writing a config file
		wantErr bool
		check   func(t *testing.T, cfg *Config)
	}{
		{
			name:   "missing file returns defaults",
			noFile: true,
			check: func(t *testing.T, cfg *Config) {
				t.Helper()
				def := DefaultConfig()
				if cfg.Data.ENRepository != def.Data.ENRepository {
					t.Errorf("ENRepository = %q, want %q", cfg.Data.ENRepository, def.Data.ENRepository)
				}
				if cfg.Bake.LockedSourceLevel != 5 {
					t.Errorf("LockedSourceLevel = %d, want 5", cfg.Bake.LockedSourceLevel)
				}
			},
		},
		{
			name: "partial override preserves other defaults",
			config: `
[bake]
output_dir = "out"
locked_achievement_name = "000"
`,
			check: func(t *testing.T, cfg *Config) {
				t.Helper()
				if cfg.Bake.OutputDir != "out" {
					t.Errorf("OutputDir = %q, want %q", cfg.Bake.OutputDir, "out")
				}
				if cfg.Bake.LockedAchievementName != "000" {
					t.Errorf("LockedAchievementName = %q, want %q", cfg.Bake.LockedAchievementName, "000")
				}
				def := DefaultConfig()
				if cfg.Bake.LockedSourceLevel != def.Bake.LockedSourceLevel {
					t.Errorf("LockedSourceLevel = %d, want default %d", cfg.Bake.LockedSourceLevel, def.Bake.LockedSourceLevel)
				}
				if cfg.Assets.JPStorageURL != def.Assets.JPStorageURL {
					t.Errorf("JPStorageURL = %q, want default %q", cfg.Assets.JPStorageURL, def.Assets.JPStorageURL)
				}
			},
		},
		{
			name: "prefix list replaces defaults",
			config: `
[[assets.prefixes]]
prefix = "honor/"
cache = "honorOnly"
try_en = true
`,
			check: func(t *testing.T, cfg *Config) {
				t.Helper()
				if len(cfg.Assets.Prefixes) != 1 {
					t.Fatalf("len(Prefixes) = %d, want 1", len(cfg.Assets.Prefixes))
				}
				if p := cfg.Assets.Prefixes[0]; p.Cache != "honorOnly" || !p.TryEN {
					t.Errorf("prefix = %+v", p)
				}
			},
		},
		{
			name:    "malformed TOML returns error",
			config:  "this is not valid toml [[[",
			wantErr: true,
		},
		{
			name: "output dir above data dir fails validation",
			config: `
[bake]
output_dir = ".."
`,
			wantErr: true,
		},
		{
			name: "invalid value fails validation",
			config: `
[log]
level = "verbose"
`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if !tt.noFile {
				writeConfig(t, dir, tt.config)
			}

			cfg, err := Load(dir)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

// ///////////////////////////////////////////////
// Resolved
// ///////////////////////////////////////////////

func TestConfig_Resolved(t *testing.T) {
	cfg := DefaultConfig()
	abs := filepath.Join(t.TempDir(), "elsewhere.sqlite")
	cfg.Database.Path = abs

	base := filepath.Join("work", ".sekaibake")
	r := cfg.Resolved(base)

	if r.Database.Path != abs {
		t.Errorf("absolute path rewritten: %q", r.Database.Path)
	}
	if want := filepath.Join(base, "master", "en"); r.Data.ENDir != want {
		t.Errorf("ENDir = %q, want %q", r.Data.ENDir, want)
	}
	if want := filepath.Join(base, "assets", "honor_baked"); r.Bake.OutputDir != want {
		t.Errorf("OutputDir = %q, want %q", r.Bake.OutputDir, want)
	}
	if cfg.Data.ENDir != "master/en" {
		t.Error("Resolved must not modify the receiver")
	}
}

// ///////////////////////////////////////////////
// IsExcluded
// ///////////////////////////////////////////////

func TestConfig_IsExcluded(t *testing.T) {
	tests := []struct {
		name    string
		exclude []string
		rel     string
		want    bool
	}{
		{"exact match", []string{"event/0101-Spring-Event"}, "event/0101-Spring-Event", true},
		{"type wildcard", []string{"birthday/*"}, "birthday/0005-Miku", true},
		{"doublestar", []string{"**/*-Test"}, "achievement/0001-Test", true},
		{"no match", []string{"birthday/*"}, "character/01-Ichika", false},
		{"empty list", nil, "character/01-Ichika", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Bake.Exclude = tt.exclude
			if got := cfg.IsExcluded(tt.rel); got != tt.want {
				t.Errorf("IsExcluded(%q) = %v, want %v", tt.rel, got, tt.want)
			}
		})
	}
}

// ///////////////////////////////////////////////
// Save
// ///////////////////////////////////////////////

func TestConfig_Save_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	orig := DefaultConfig()
	orig.Assets.Repository = "https://example.com/assets.git"
	orig.Bake.LockedSourceLevel = 10
	orig.Bake.Exclude = []string{"birthday/*"}

	if err := orig.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	loaded := &Config{}
	if err := toml.Unmarshal(data, loaded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if loaded.Assets.Repository != orig.Assets.Repository {
		t.Errorf("Repository = %q, want %q", loaded.Assets.Repository, orig.Assets.Repository)
	}
	if loaded.Bake.LockedSourceLevel != 10 {
		t.Errorf("LockedSourceLevel = %d, want 10", loaded.Bake.LockedSourceLevel)
	}
	if len(loaded.Assets.Prefixes) != len(orig.Assets.Prefixes) {
		t.Errorf("Prefixes len = %d, want %d", len(loaded.Assets.Prefixes), len(orig.Assets.Prefixes))
	}
	if err := loaded.Validate(); err != nil {
		t.Errorf("saved config does not validate: %v", err)
	}
}

// ///////////////////////////////////////////////
// Validate
// ///////////////////////////////////////////////

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(cfg *Config)
		wantErr bool
	}{
		{"default config passes", func(cfg *Config) {}, false},
		{"missing en repository", func(cfg *Config) { cfg.Data.ENRepository = "" }, true},
		{"zero git timeout", func(cfg *Config) { cfg.Data.GitTimeoutSeconds = 0 }, true},
		{"missing database path", func(cfg *Config) { cfg.Database.Path = "" }, true},
		{"storage url without slash", func(cfg *Config) { cfg.Assets.JPStorageURL = "https://storage.sekai.best/sekai-jp-assets" }, true},
		{"storage url bad scheme", func(cfg *Config) { cfg.Assets.ENStorageURL = "ftp://storage.sekai.best/" }, true},
		{"negative delay", func(cfg *Config) { cfg.Assets.DownloadDelayMS = -1 }, true},
		{"negative retry", func(cfg *Config) { cfg.Assets.RetryMax = -1 }, true},
		{"prefix without slash", func(cfg *Config) { cfg.Assets.Prefixes[0].Prefix = "honor" }, true},
		{"duplicate cache name", func(cfg *Config) { cfg.Assets.Prefixes[1].Cache = cfg.Assets.Prefixes[0].Cache }, true},
		{"output dir is assets dir", func(cfg *Config) { cfg.Bake.OutputDir = cfg.Assets.Dir }, true},
		{"output dir is unclean assets dir", func(cfg *Config) { cfg.Bake.OutputDir = "assets/../assets" }, true},
		{"output dir is data dir", func(cfg *Config) { cfg.Bake.OutputDir = "." }, true},
		{"output dir inside assets dir", func(cfg *Config) { cfg.Bake.OutputDir = "assets/honor_baked" }, false},
		{"zero source level", func(cfg *Config) { cfg.Bake.LockedSourceLevel = 0 }, true},
		{"locked equals source", func(cfg *Config) { cfg.Bake.LockedCharacterLevel = cfg.Bake.LockedSourceLevel }, true},
		{"locked name with extension", func(cfg *Config) { cfg.Bake.LockedAchievementName = "0000.png" }, true},
		{"bad exclude pattern", func(cfg *Config) { cfg.Bake.Exclude = []string{"[unclosed"} }, true},
		{"invalid log.level", func(cfg *Config) { cfg.Log.Level = "verbose" }, true},
		{"uppercase log.level", func(cfg *Config) { cfg.Log.Level = "DEBUG" }, false},
		{"zero max size", func(cfg *Config) { cfg.Log.MaxSizeMB = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.setup(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_CheckOutputDir(t *testing.T) {
	dataDir := t.TempDir()

	tests := []struct {
		name      string
		outputDir string
		assetsDir string
		wantErr   bool
	}{
		{"default layout", "assets/honor_baked", "assets", false},
		{"absolute sibling", filepath.Join(filepath.Dir(dataDir), "baked"), "assets", false},
		{"absolute data dir", dataDir, "assets", true},
		{"absolute parent of data dir", filepath.Dir(dataDir), "assets", true},
		{"absolute assets dir", filepath.Join(dataDir, "assets"), "assets", true},
		{"relative escape to parent", "..", "assets", true},
		{"external assets under output", "out", filepath.Join(dataDir, "out", "assets"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Bake.OutputDir = tt.outputDir
			cfg.Assets.Dir = tt.assetsDir
			err := cfg.CheckOutputDir(dataDir)
			if (err != nil) != tt.wantErr {
				t.Errorf("CheckOutputDir() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
