package bake

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"tools.zach/dev/sekaibake/internal/honor"
)

// Marker colors let tests tell which asset a pixel came from.
var (
	colorBackground = color.NRGBA{0, 0, 200, 255}
	colorFrame      = color.NRGBA{10, 10, 10, 255}
	colorFrameSet   = color.NRGBA{200, 150, 0, 255}
	colorRank       = color.NRGBA{250, 0, 250, 255}
	colorPip        = color.NRGBA{255, 0, 0, 255}
	colorPipHigh    = color.NRGBA{0, 0, 255, 255}
	colorStar       = color.NRGBA{255, 255, 0, 255}
	colorSlot       = color.NRGBA{0, 255, 0, 255}
)

// frameMarker is the pixel each frame paints with its marker color.
var frameMarker = image.Pt(1, 1)

// writeImage encodes a w×h image filled with c as PNG at path, whatever the
// extension. Decoding sniffs the header, so PNG bytes stand in for WebP.
func writeImage(t *testing.T, path string, w, h int, c color.NRGBA) {
	t.Helper()
	writeNRGBA(t, path, imaging.New(w, h, c))
}

func writeNRGBA(t *testing.T, path string, img *image.NRGBA) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()
	if err := imaging.Encode(f, img, imaging.PNG); err != nil {
		t.Fatalf("encode %s: %v", path, err)
	}
}

// writeFrame writes a transparent frame with a single marker pixel.
func writeFrame(t *testing.T, path string, w int, marker color.NRGBA) {
	t.Helper()
	img := imaging.New(w, 80, color.NRGBA{})
	img.SetNRGBA(frameMarker.X, frameMarker.Y, marker)
	writeNRGBA(t, path, img)
}

// newAssetTree builds the shared frame directory plus a "gold" frame set.
func newAssetTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	for n := 1; n <= 4; n++ {
		writeFrame(t, filepath.Join(root, "frame", frameName("m", n)), 380, colorFrame)
		writeFrame(t, filepath.Join(root, "frame", frameName("s", n)), 180, colorFrame)
		writeFrame(t, filepath.Join(root, "honor_frame", "gold", frameName("m", n)), 380, colorFrameSet)
		writeFrame(t, filepath.Join(root, "honor_frame", "gold", frameName("s", n)), 180, colorFrameSet)
	}
	writeImage(t, filepath.Join(root, "frame", "icon_degreeLv.png"), 8, 8, colorPip)
	writeImage(t, filepath.Join(root, "frame", "icon_degreeLv6.png"), 8, 8, colorPipHigh)
	writeImage(t, filepath.Join(root, "frame", "icon_degreeStar.png"), 8, 8, colorStar)
	writeImage(t, filepath.Join(root, "frame", "icon_degreeStar_Transparent.png"), 8, 8, colorSlot)
	return root
}

func frameName(size string, n int) string {
	return fmt.Sprintf("frame_degree_%s_%d.png", size, n)
}

// writeBackground writes degree_main/degree_sub for bundle under honor/.
func writeBackground(t *testing.T, root, bundle string) {
	t.Helper()
	dir := filepath.Join(root, "honor", bundle)
	writeImage(t, filepath.Join(dir, "degree_main.webp"), 380, 80, colorBackground)
	writeImage(t, filepath.Join(dir, "degree_sub.webp"), 180, 80, colorBackground)
}

// ///////////////////////////////////////////////
// Catalog builders
// ///////////////////////////////////////////////

func newGroup(id int, name string, typ honor.Type) *honor.Group {
	return &honor.Group{ID: id, Name: name, Type: typ}
}

func addHonor(g *honor.Group, id int, name string, rarity honor.Rarity, asset string) *honor.Honor {
	h := &honor.Honor{ID: id, Name: name, Rarity: rarity, Asset: asset, Group: g}
	g.Honors = append(g.Honors, h)
	return h
}

func addLevel(h *honor.Honor, level int, desc string) *honor.Level {
	l := &honor.Level{HonorID: h.ID, Level: level, Description: desc}
	h.Levels = append(h.Levels, l)
	return l
}

func assertColor(t *testing.T, img image.Image, p image.Point, want color.NRGBA) {
	t.Helper()
	got := color.NRGBAModel.Convert(img.At(p.X, p.Y)).(color.NRGBA)
	if got != want {
		t.Errorf("pixel %v = %v, want %v", p, got, want)
	}
}

func assertBlank(t *testing.T, img image.Image) {
	t.Helper()
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if _, _, _, a := img.At(x, y).RGBA(); a != 0 {
				t.Fatalf("pixel (%d,%d) has alpha %d, want fully transparent", x, y, a)
			}
		}
	}
}
