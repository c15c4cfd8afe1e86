// Package bake composites honor badges from the mirrored asset tree and
// writes them, with their locked variants, into the baked output tree.
//
// A badge is four layers blended in order: background, frame, rank
// indicator, level indicator. Only a missing frame fails a badge; every
// other unresolved layer is drawn as a transparent canvas.
package bake

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"tools.zach/dev/sekaibake/internal/honor"
	"tools.zach/dev/sekaibake/internal/logger"
	"tools.zach/dev/sekaibake/internal/paths"
)

// ErrMissingFrame is returned when a badge's frame file does not exist.
var ErrMissingFrame = fmt.Errorf("missing frame: %w", fs.ErrNotExist)

// Icon anchor points.
var (
	starPositions = []image.Point{
		{225, 60}, {217, 46}, {209, 32}, {217, 18}, {225, 4},
		{298, 60}, {306, 46}, {314, 32}, {306, 18}, {298, 4},
	}
	pipPositions = []image.Point{
		{50, 64}, {66, 64}, {82, 64}, {98, 64}, {114, 64},
		{50, 64}, {66, 64}, {82, 64}, {98, 64}, {114, 64},
	}
)

// Rank indicator anchors on the main canvas.
const (
	missionRankX = 220
	plainRankX   = 200
	subRankY     = 40
)

// Compositor renders badges from an asset tree.
type Compositor struct {
	assets paths.AssetTree
	cache  *imageCache
	log    *slog.Logger
}

// NewCompositor creates a Compositor reading from the asset tree at root.
// A nil logger uses slog.Default.
func NewCompositor(root string, log *slog.Logger) *Compositor {
	if log == nil {
		log = slog.Default()
	}
	return &Compositor{
		assets: paths.AssetTree{Root: root},
		cache:  newImageCache(),
		log:    log,
	}
}

// Render produces the badge for t on a canvas of t.Size.
func (c *Compositor) Render(t honor.Target) (*image.NRGBA, error) {
	frame, err := c.frameLayer(t)
	if err != nil {
		return nil, err
	}
	layers := []image.Image{
		c.backgroundLayer(t),
		frame,
		c.rankLayer(t),
		c.levelLayer(t),
	}

	out := blank(t.Size)
	for _, l := range layers {
		out = imaging.Overlay(out, l, image.Point{}, 1.0)
	}
	return out, nil
}

func blank(size honor.Size) *image.NRGBA {
	return imaging.New(size.Width(), size.Height(), color.NRGBA{})
}

// ///////////////////////////////////////////////
// Background
// ///////////////////////////////////////////////

// backgroundDir picks the bundle directory holding the badge background.
// Returns "" when no reference is set.
func (c *Compositor) backgroundDir(t honor.Target) string {
	g := t.Group()
	switch {
	case g.Type == honor.TypeRankMatch && g.Background != "":
		return c.assets.RankLive(g.Background)
	case g.Background != "":
		return c.assets.Honor(g.Background)
	case t.LevelAsset() != "":
		return c.assets.Honor(t.LevelAsset())
	case t.Honor.Asset != "":
		return c.assets.Honor(t.Honor.Asset)
	default:
		return ""
	}
}

func (c *Compositor) backgroundLayer(t honor.Target) image.Image {
	dir := c.backgroundDir(t)
	if dir == "" {
		logger.Trace(c.log, "no background reference", "target", t)
		return blank(t.Size)
	}
	name := paths.DegreeMainFile
	if t.Size == honor.Sub {
		name = paths.DegreeSubFile
	}
	img, err := imaging.Open(filepath.Join(dir, name))
	if err != nil {
		c.degrade("background", t, err)
		return blank(t.Size)
	}
	return img
}

// ///////////////////////////////////////////////
// Frame
// ///////////////////////////////////////////////

// framePath returns the frame file for t. Rarities above middle use the
// group's frame set when it names one.
func (c *Compositor) framePath(t honor.Target) string {
	n := t.Rarity().Ordinal()
	sizeCode := "m"
	if t.Size == honor.Sub {
		sizeCode = "s"
	}
	name := fmt.Sprintf("frame_degree_%s_%d.png", sizeCode, n)
	if set := t.Group().FrameSet; n > 2 && set != "" {
		return c.assets.HonorFrame(set, name)
	}
	return c.assets.Frame(name)
}

func (c *Compositor) frameLayer(t honor.Target) (image.Image, error) {
	if t.Rarity().Ordinal() == 0 {
		return nil, fmt.Errorf("%w: %s has no rarity", ErrMissingFrame, t)
	}
	path := c.framePath(t)
	img, err := c.cache.open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrMissingFrame, path)
	}
	if err != nil {
		return nil, fmt.Errorf("decode frame %s: %w", path, err)
	}
	return img, nil
}

// ///////////////////////////////////////////////
// Rank Indicator
// ///////////////////////////////////////////////

// rankPath returns the rank indicator file for t, or "" for honors that
// have none.
func (c *Compositor) rankPath(t honor.Target) string {
	sub := t.Size == honor.Sub
	switch {
	case t.Group().Type == honor.TypeEvent:
		name := "rank_main.webp"
		if sub {
			name = "rank_sub.webp"
		}
		return filepath.Join(c.assets.Honor(t.Honor.Asset), name)
	case t.Group().Type == honor.TypeRankMatch:
		name := "main.webp"
		if sub {
			name = "sub.webp"
		}
		return filepath.Join(c.assets.RankLive(t.Honor.Asset), name)
	case t.Honor.IsMission():
		if t.LevelAsset() == "" {
			return ""
		}
		return filepath.Join(c.assets.Honor(t.LevelAsset()), paths.ScrollFile)
	default:
		return ""
	}
}

// rankPosition places a rank image of width w on the canvas of t.
func rankPosition(t honor.Target, w int) image.Point {
	sub := t.Size == honor.Sub
	centered := (t.Size.Width() - w) / 2
	switch {
	case t.IsWorldLink():
		return image.Point{}
	case t.Honor.IsMission() && sub:
		return image.Pt(centered, 0)
	case t.Honor.IsMission():
		return image.Pt(missionRankX, 0)
	case sub:
		return image.Pt(centered, subRankY)
	default:
		return image.Pt(plainRankX, 0)
	}
}

func (c *Compositor) rankLayer(t honor.Target) image.Image {
	im := blank(t.Size)
	path := c.rankPath(t)
	if path == "" {
		return im
	}
	rank, err := imaging.Open(path)
	if err != nil {
		c.degrade("rank", t, err)
		return im
	}
	return imaging.Paste(im, rank, rankPosition(t, rank.Bounds().Dx()))
}

// ///////////////////////////////////////////////
// Level Indicator
// ///////////////////////////////////////////////

// hasPips reports whether t draws one pip per level.
func hasPips(t honor.Target) bool {
	switch t.Group().Type {
	case honor.TypeCharacter:
		return true
	case honor.TypeAchievement:
		return len(t.Honor.Levels) > 1
	default:
		return false
	}
}

func (c *Compositor) levelLayer(t honor.Target) image.Image {
	switch {
	case t.Honor.IsMission():
		return c.stars(t)
	case hasPips(t):
		return c.pips(t)
	default:
		return blank(t.Size)
	}
}

// litStars returns how many of the ten stars are lit for level. Levels
// cycle every ten.
func litStars(level int) int {
	if level <= 0 {
		return 0
	}
	return (level-1)%len(starPositions) + 1
}

func (c *Compositor) stars(t honor.Target) image.Image {
	im := blank(t.Size)
	if t.Size == honor.Sub {
		return im
	}
	slot, err := c.cache.open(c.assets.Frame(paths.StarSlotIcon))
	if err != nil {
		c.degrade("star slot", t, err)
		return im
	}
	star, err := c.cache.open(c.assets.Frame(paths.StarIcon))
	if err != nil {
		c.degrade("star", t, err)
		return im
	}

	dim := imaging.Grayscale(slot)
	for _, pos := range starPositions {
		im = imaging.Overlay(im, dim, pos, 1.0)
	}
	for _, pos := range starPositions[:litStars(t.LevelNumber())] {
		im = imaging.Overlay(im, star, pos, 1.0)
	}
	return im
}

func (c *Compositor) pips(t honor.Target) image.Image {
	im := blank(t.Size)
	low, err := c.cache.open(c.assets.Frame(paths.PipIcon))
	if err != nil {
		c.degrade("pip", t, err)
		return im
	}
	high, err := c.cache.open(c.assets.Frame(paths.PipIconHigh))
	if err != nil {
		c.degrade("pip", t, err)
		return im
	}

	n := min(t.LevelNumber(), len(pipPositions))
	for i := range n {
		icon := low
		if i >= 5 {
			icon = high
		}
		im = imaging.Paste(im, icon, pipPositions[i])
	}
	return im
}

// degrade logs a layer that falls back to a blank canvas. Missing files are
// expected for many honors and logged at trace; anything else is a warning.
func (c *Compositor) degrade(layer string, t honor.Target, err error) {
	if errors.Is(err, os.ErrNotExist) {
		logger.Trace(c.log, "layer not found, drawing blank", "layer", layer, "target", t)
		return
	}
	c.log.Warn("layer unreadable, drawing blank", "layer", layer, "target", t, "error", err)
}
