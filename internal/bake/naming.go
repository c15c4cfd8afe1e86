package bake

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
	"tools.zach/dev/sekaibake/internal/honor"
)

// maxNameBytes is the common file name limit across filesystems.
const maxNameBytes = 255

// reservedNames are device names Windows refuses as file stems.
var reservedNames = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true, "CLOCK$": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true, "COM5": true,
	"COM6": true, "COM7": true, "COM8": true, "COM9": true,
	"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true, "LPT5": true,
	"LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
}

// Sanitize makes name safe as a single path segment on every major
// filesystem: NFC-normalized, without separators, control characters or
// characters Windows rejects, without trailing dots or spaces, and at most
// 255 bytes. Reserved device names get a trailing underscore.
func Sanitize(name string) string {
	name = norm.NFC.String(name)
	var b strings.Builder
	for _, r := range name {
		if r == utf8.RuneError || unicode.IsControl(r) || strings.ContainsRune(`/\:*?"<>|`, r) {
			continue
		}
		b.WriteRune(r)
	}
	out := strings.TrimRight(b.String(), ". ")
	out = strings.TrimLeft(out, " ")

	ext := filepath.Ext(out)
	stem := strings.TrimSuffix(out, ext)
	if reservedNames[strings.ToUpper(stem)] {
		out = stem + "_" + ext
	}
	return truncateBytes(out, maxNameBytes)
}

// truncateBytes shortens s to at most n bytes, keeping its extension and
// never splitting a rune.
func truncateBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	ext := filepath.Ext(s)
	if len(ext) >= n {
		ext = ""
	}
	stem := strings.TrimSuffix(s, ext)
	limit := n - len(ext)
	for limit > 0 && !utf8.RuneStart(stem[limit]) {
		limit--
	}
	return stem[:limit] + ext
}

// hyphenate replaces spaces, which the published badge URLs cannot carry.
func hyphenate(s string) string { return strings.ReplaceAll(s, " ", "-") }

// ///////////////////////////////////////////////
// Output Paths
// ///////////////////////////////////////////////

// GroupFolder returns the sanitized "<id>-<name>" directory of g. Character
// groups pad the id to two digits, every other type to four.
func GroupFolder(g *honor.Group) string {
	format := "%04d-%s"
	if g.Type == honor.TypeCharacter {
		format = "%02d-%s"
	}
	return hyphenate(Sanitize(fmt.Sprintf(format, g.ID, g.Name)))
}

// CharacterFileName returns the badge file for character rank n.
func CharacterFileName(n int) string { return fmt.Sprintf("CR%03d.png", n) }

// PaddedFileName returns n zero-padded to width, as a badge file.
func PaddedFileName(n, width int) string { return fmt.Sprintf("%0*d.png", width, n) }

// usesPaddedNames reports whether achievement targets of h are named by
// requirement number rather than by honor name.
func usesPaddedNames(h *honor.Honor) bool {
	return h.Group.Type == honor.TypeAchievement && (len(h.Levels) > 1 || len(h.Group.Honors) > 1)
}

// FileName returns the badge file name of t. padding is the group's
// requirement width and only matters for padded achievement names. Names
// that sanitize to nothing fall back to "honor-<id>.png".
func FileName(t honor.Target, padding int) (string, error) {
	h := t.Honor
	switch {
	case t.Level != nil && h.Group.Type == honor.TypeCharacter:
		n, err := honor.RequirementNumber(t.Level.Description)
		if err != nil {
			return "", fmt.Errorf("%s: %w", t, err)
		}
		return CharacterFileName(n), nil
	case t.Level != nil && usesPaddedNames(h):
		n, err := honor.RequirementNumber(t.Level.Description)
		if err != nil {
			return "", fmt.Errorf("%s: %w", t, err)
		}
		return PaddedFileName(n, padding), nil
	default:
		name := hyphenate(Sanitize(h.Name + ".png"))
		if strings.Trim(strings.TrimSuffix(name, ".png"), ".") == "" {
			name = fmt.Sprintf("honor-%d.png", h.ID)
		}
		return name, nil
	}
}

// RelPath returns the slash-separated path of t below the baked root:
// "<type>/<group folder>/<main|sub>/<file>".
func RelPath(t honor.Target, padding int) (string, error) {
	file, err := FileName(t, padding)
	if err != nil {
		return "", err
	}
	g := t.Group()
	return strings.Join([]string{string(g.Type), GroupFolder(g), t.Size.String(), file}, "/"), nil
}

// SavePath joins RelPath onto root.
func SavePath(root string, t honor.Target, padding int) (string, error) {
	rel, err := RelPath(t, padding)
	if err != nil {
		return "", err
	}
	return filepath.Join(root, filepath.FromSlash(rel)), nil
}

// GroupPadding returns the widest requirement number across every level of
// every honor in g, in digits.
func GroupPadding(g *honor.Group) (int, error) {
	width := 0
	for _, h := range g.Honors {
		for _, l := range h.Levels {
			digits, err := honor.ParseRequirement(l.Description)
			if err != nil {
				return 0, fmt.Errorf("honor %d lv%d: %w", h.ID, l.Level, err)
			}
			width = max(width, len(digits))
		}
	}
	return width, nil
}
