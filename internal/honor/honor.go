// Package honor defines the badge catalog model shared by the importer and
// the compositor: honor groups, honors, leveled variants, and the render
// targets derived from them.
package honor

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ///////////////////////////////////////////////
// Enumerations
// ///////////////////////////////////////////////

// Type is the category of an honor group.
type Type string

const (
	TypeAchievement Type = "achievement"
	TypeCharacter   Type = "character"
	TypeEvent       Type = "event"
	TypeRankMatch   Type = "rank_match"
	TypeBirthday    Type = "birthday"
)

// ParseType validates s against the known group types.
func ParseType(s string) (Type, error) {
	switch t := Type(s); t {
	case TypeAchievement, TypeCharacter, TypeEvent, TypeRankMatch, TypeBirthday:
		return t, nil
	}
	return "", fmt.Errorf("%w: honor type %q", ErrUnknownEnum, s)
}

// Rarity is the tier of an honor, which selects its frame.
type Rarity string

const (
	RarityLow     Rarity = "low"
	RarityMiddle  Rarity = "middle"
	RarityHigh    Rarity = "high"
	RarityHighest Rarity = "highest"
)

// ParseRarity validates s against the known rarities. The empty string is
// accepted and means "not set".
func ParseRarity(s string) (Rarity, error) {
	switch r := Rarity(s); r {
	case "", RarityLow, RarityMiddle, RarityHigh, RarityHighest:
		return r, nil
	}
	return "", fmt.Errorf("%w: honor rarity %q", ErrUnknownEnum, s)
}

// Ordinal returns the 1-based frame index of r: low=1 through highest=4.
// Unset or unknown rarities return 0.
func (r Rarity) Ordinal() int {
	switch r {
	case RarityLow:
		return 1
	case RarityMiddle:
		return 2
	case RarityHigh:
		return 3
	case RarityHighest:
		return 4
	default:
		return 0
	}
}

// Size is the badge size class.
type Size int

const (
	Main Size = iota
	Sub
)

// Canvas dimensions per size class.
const (
	MainWidth   = 380
	SubWidth    = 180
	BadgeHeight = 80
)

// String returns "main" or "sub", which is also the output directory name.
func (s Size) String() string {
	if s == Sub {
		return "sub"
	}
	return "main"
}

// Width returns the canvas width for s.
func (s Size) Width() int {
	if s == Sub {
		return SubWidth
	}
	return MainWidth
}

// Height returns the canvas height, which is the same for both sizes.
func (s Size) Height() int { return BadgeHeight }

// Sizes lists both size classes in render order.
var Sizes = []Size{Main, Sub}

// ///////////////////////////////////////////////
// Records
// ///////////////////////////////////////////////

// Group is a category of badges.
type Group struct {
	ID   int
	Name string
	Type Type
	// Background is the shared background bundle, or "" when each honor
	// supplies its own.
	Background string
	// FrameSet names a custom frame directory used for high rarities.
	FrameSet string
	Honors   []*Honor
}

// Honor is one badge definition.
type Honor struct {
	ID     int
	Seq    int
	Name   string
	Rarity Rarity
	// MissionType marks full-combo achievement badges, which draw stars.
	MissionType string
	Asset       string
	Group       *Group
	Levels      []*Level
}

// Level is one leveled variant of an honor.
type Level struct {
	HonorID     int
	Level       int
	Bonus       int
	Description string
	// Rarity and Asset override the honor's values when set.
	Rarity Rarity
	Asset  string
}

// IsMission reports whether h is a full-combo achievement badge.
func (h *Honor) IsMission() bool { return h.MissionType != "" }

// ///////////////////////////////////////////////
// Requirement Parsing
// ///////////////////////////////////////////////

var (
	// ErrNoRequirement means a level description carries no number.
	ErrNoRequirement = errors.New("no requirement number in description")
	// ErrUnknownEnum means a catalog string is outside a closed enumeration.
	ErrUnknownEnum = errors.New("unknown enumeration value")
)

// requirementRe matches the first run of digits, allowing thousands
// separators after the first digit.
var requirementRe = regexp.MustCompile(`\d[\d,]*`)

// ParseRequirement returns the first number embedded in description, with
// commas removed, as its decimal digit string.
func ParseRequirement(description string) (string, error) {
	m := requirementRe.FindString(description)
	if m == "" {
		return "", fmt.Errorf("%w: %q", ErrNoRequirement, description)
	}
	return strings.ReplaceAll(m, ",", ""), nil
}

// RequirementNumber is ParseRequirement converted to an int.
func RequirementNumber(description string) (int, error) {
	digits, err := ParseRequirement(description)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrNoRequirement, description, err)
	}
	return n, nil
}

// ///////////////////////////////////////////////
// Render Targets
// ///////////////////////////////////////////////

// Target is one badge image to render: an honor, optionally one of its
// levels, at one size class.
type Target struct {
	Honor *Honor
	Level *Level // nil for honors without levels
	Size  Size
}

// Targets expands honors into render targets: all main targets in honor
// order, followed by all sub targets in the same order. An honor without
// levels yields one target per size; otherwise one per level per size.
func Targets(honors []*Honor) []Target {
	var out []Target
	for _, size := range Sizes {
		for _, h := range honors {
			if len(h.Levels) == 0 {
				out = append(out, Target{Honor: h, Size: size})
				continue
			}
			for _, l := range h.Levels {
				out = append(out, Target{Honor: h, Level: l, Size: size})
			}
		}
	}
	return out
}

// Group returns the target's honor group.
func (t Target) Group() *Group { return t.Honor.Group }

// Rarity returns the level's rarity override, else the honor's rarity.
func (t Target) Rarity() Rarity {
	if t.Level != nil && t.Level.Rarity != "" {
		return t.Level.Rarity
	}
	return t.Honor.Rarity
}

// LevelAsset returns the level's asset override, or "".
func (t Target) LevelAsset() string {
	if t.Level != nil {
		return t.Level.Asset
	}
	return ""
}

// Asset returns the level's asset override, else the honor's asset.
func (t Target) Asset() string {
	if a := t.LevelAsset(); a != "" {
		return a
	}
	return t.Honor.Asset
}

// LevelNumber returns the 1-based level, or 0 for honors without levels.
func (t Target) LevelNumber() int {
	if t.Level != nil {
		return t.Level.Level
	}
	return 0
}

// worldLinkRe matches world-link bundles, whose rank art covers the badge.
var worldLinkRe = regexp.MustCompile(`_cp\d$`)

// IsWorldLink reports whether the target's effective asset is a world-link
// bundle.
func (t Target) IsWorldLink() bool {
	return worldLinkRe.MatchString(t.Asset())
}

// String identifies the target in logs.
func (t Target) String() string {
	if t.Level != nil {
		return fmt.Sprintf("honor %d lv%d %s", t.Honor.ID, t.Level.Level, t.Size)
	}
	return fmt.Sprintf("honor %d %s", t.Honor.ID, t.Size)
}
