package bake

import (
	"errors"
	"fmt"
	"image"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/disintegration/imaging"
	"tools.zach/dev/sekaibake/internal/atomicfile"
	"tools.zach/dev/sekaibake/internal/honor"
)

// LockedOptions names the locked variant files.
type LockedOptions struct {
	// SourceLevel is the character rank greyed into the locked badge.
	SourceLevel int
	// CharacterLevel is the rank number the locked character badge is saved as.
	CharacterLevel int
	// AchievementName is the file stem of the locked achievement badge.
	AchievementName string
}

// LockCharacters writes a greyscale copy of every character badge at
// SourceLevel next to it, named as CharacterLevel. Returns the number of
// files written.
func LockCharacters(root string, opts LockedOptions) (int, error) {
	base := filepath.Join(root, string(honor.TypeCharacter))
	matches, err := globPNG(base, "**/"+CharacterFileName(opts.SourceLevel))
	if err != nil {
		return 0, err
	}
	locked := CharacterFileName(opts.CharacterLevel)
	for _, m := range matches {
		dst := path.Join(path.Dir(m), locked)
		if err := writeGrey(base, m, dst); err != nil {
			return 0, err
		}
	}
	return len(matches), nil
}

// LockAchievements writes a greyscale copy of the lowest-named badge of
// every achievement "<group>/<size>" directory, named AchievementName.
// An existing file with that name is never used as the source.
func LockAchievements(root string, opts LockedOptions) (int, error) {
	base := filepath.Join(root, string(honor.TypeAchievement))
	matches, err := globPNG(base, "*/*/*.png")
	if err != nil {
		return 0, err
	}

	locked := opts.AchievementName + ".png"
	firsts := map[string]string{}
	var dirs []string
	for _, m := range matches {
		dir, name := path.Split(m)
		if name == locked {
			continue
		}
		if _, seen := firsts[dir]; !seen {
			firsts[dir] = m
			dirs = append(dirs, dir)
		}
	}

	for _, dir := range dirs {
		if err := writeGrey(base, firsts[dir], path.Join(dir, locked)); err != nil {
			return 0, err
		}
	}
	return len(dirs), nil
}

// globPNG returns the sorted slash-separated matches of pattern below base.
// A missing base yields no matches.
func globPNG(base, pattern string) ([]string, error) {
	if _, err := os.Stat(base); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	matches, err := doublestar.Glob(os.DirFS(base), pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", pattern, err)
	}
	sort.Strings(matches)
	return matches, nil
}

// writeGrey decodes base/src, desaturates it, and writes base/dst.
func writeGrey(base, src, dst string) error {
	img, err := imaging.Open(filepath.Join(base, filepath.FromSlash(src)))
	if err != nil {
		return fmt.Errorf("open locked source: %w", err)
	}
	slog.Debug("writing locked badge", "source", src, "locked", dst)
	return writePNG(filepath.Join(base, filepath.FromSlash(dst)), imaging.Grayscale(img))
}

// writePNG atomically encodes img as PNG at path.
func writePNG(path string, img image.Image) error {
	return atomicfile.WriteFunc(path, 0o644, func(w io.Writer) error {
		return imaging.Encode(w, img, imaging.PNG)
	})
}
