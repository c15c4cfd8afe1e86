package bake

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"tools.zach/dev/sekaibake/internal/honor"
)

// sampleCatalog covers every naming rule and both locked passes.
func sampleCatalog(t *testing.T, assets string) []*honor.Honor {
	t.Helper()
	chars := newGroup(1, "Ichika Hoshino", honor.TypeCharacter)
	cr := addHonor(chars, 1, "Ichika Rank", honor.RarityLow, "")
	for i, req := range []string{"Character rank 1", "Character rank 5", "Character rank 10"} {
		addLevel(cr, i+1, req)
	}

	clears := newGroup(3, "Live Clear", honor.TypeAchievement)
	clears.FrameSet = "gold"
	clear := addHonor(clears, 2, "Clear", honor.RarityHigh, "honor_clear")
	for i, req := range []string{"Clear 10 songs", "Clear 100 songs", "Clear 1,000 songs"} {
		addLevel(clear, i+1, req)
	}
	writeBackground(t, assets, "honor_clear")

	fc := addHonor(clears, 3, "Full Combo", honor.RarityMiddle, "honor_fc")
	fc.MissionType = "full_combo"
	for i := 1; i <= 7; i++ {
		addLevel(fc, i, "Full combo 5 songs")
	}

	events := newGroup(101, "Spring Event", honor.TypeEvent)
	ev := addHonor(events, 4, "Top 100", honor.RarityHighest, "honor_spring")
	writeBackground(t, assets, "honor_spring")

	return []*honor.Honor{cr, clear, fc, ev}
}

func runOptions(assets, out string) Options {
	return Options{AssetsDir: assets, OutputDir: out, Locked: defaultLocked()}
}

func TestRunWritesTree(t *testing.T) {
	assets := newAssetTree(t)
	out := filepath.Join(t.TempDir(), "honor_baked")
	honors := sampleCatalog(t, assets)

	res, err := Run(context.Background(), honors, runOptions(assets, out))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// 3 character + 3 clear + 7 full combo + 1 event, per size.
	if res.Planned != 28 || res.Rendered != 28 || res.Failed != 0 {
		t.Errorf("result = %+v", res)
	}
	if res.LockedCharacters != 2 {
		t.Errorf("LockedCharacters = %d, want 2", res.LockedCharacters)
	}
	if res.LockedAchievements != 2 {
		t.Errorf("LockedAchievements = %d, want 2", res.LockedAchievements)
	}

	for _, rel := range []string{
		"character/01-Ichika-Hoshino/main/CR005.png",
		"character/01-Ichika-Hoshino/main/CR000.png",
		"character/01-Ichika-Hoshino/sub/CR000.png",
		"achievement/0003-Live-Clear/main/0010.png",
		"achievement/0003-Live-Clear/main/1000.png",
		"achievement/0003-Live-Clear/sub/0000.png",
		"event/0101-Spring-Event/main/Top-100.png",
		"event/0101-Spring-Event/sub/Top-100.png",
	} {
		if _, err := os.Stat(filepath.Join(out, filepath.FromSlash(rel))); err != nil {
			t.Errorf("missing %s: %v", rel, err)
		}
	}
}

func TestRunIsByteIdentical(t *testing.T) {
	assets := newAssetTree(t)
	honors := sampleCatalog(t, assets)
	outA := filepath.Join(t.TempDir(), "a")
	outB := filepath.Join(t.TempDir(), "b")

	if _, err := Run(context.Background(), honors, runOptions(assets, outA)); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if _, err := Run(context.Background(), honors, runOptions(assets, outB)); err != nil {
		t.Fatalf("second Run: %v", err)
	}

	count := 0
	err := filepath.WalkDir(outA, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, _ := filepath.Rel(outA, path)
		a, _ := os.ReadFile(path)
		b, err := os.ReadFile(filepath.Join(outB, rel))
		if err != nil {
			t.Errorf("%s missing from second run", rel)
			return nil
		}
		if !bytes.Equal(a, b) {
			t.Errorf("%s differs between runs", rel)
		}
		count++
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if count == 0 {
		t.Fatal("no files compared")
	}
}

func TestRunContinuesPastMissingFrame(t *testing.T) {
	assets := newAssetTree(t)
	if err := os.Remove(filepath.Join(assets, "frame", "frame_degree_m_4.png")); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(t.TempDir(), "out")
	honors := sampleCatalog(t, assets)

	res, err := Run(context.Background(), honors, runOptions(assets, out))
	if !errors.Is(err, ErrMissingFrame) {
		t.Fatalf("err = %v, want ErrMissingFrame", err)
	}
	// Only the event badge's main frame (highest, no frame set) is gone.
	if res.Failed != 1 || res.Rendered != 27 {
		t.Errorf("result = %+v", res)
	}
	if _, err := os.Stat(filepath.Join(out, "event", "0101-Spring-Event", "sub", "Top-100.png")); err != nil {
		t.Errorf("sub badge should still be written: %v", err)
	}
}

func TestRunPlanErrorKeepsOutput(t *testing.T) {
	assets := newAssetTree(t)
	out := filepath.Join(t.TempDir(), "out")
	sentinel := filepath.Join(out, "keep.txt")
	if err := os.MkdirAll(out, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(sentinel, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	g := newGroup(1, "Ichika", honor.TypeCharacter)
	h := addHonor(g, 1, "Rank", honor.RarityLow, "")
	addLevel(h, 1, "no number")

	if _, err := Run(context.Background(), []*honor.Honor{h}, runOptions(assets, out)); !errors.Is(err, honor.ErrNoRequirement) {
		t.Fatalf("err = %v, want ErrNoRequirement", err)
	}
	if _, err := os.Stat(sentinel); err != nil {
		t.Errorf("output tree was touched: %v", err)
	}
}

func TestRunCanceled(t *testing.T) {
	assets := newAssetTree(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, sampleCatalog(t, assets), runOptions(assets, filepath.Join(t.TempDir(), "out")))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestRunRefusesEmptyOutput(t *testing.T) {
	if _, err := Run(context.Background(), nil, Options{}); !errors.Is(err, ErrUnsafeOutput) {
		t.Errorf("err = %v, want ErrUnsafeOutput", err)
	}
}

func TestRunRefusesOutputContainingAssets(t *testing.T) {
	assets := newAssetTree(t)
	frame := filepath.Join(assets, "frame", "frame_degree_m_1.png")

	tests := []struct {
		name string
		out  string
	}{
		{"SameDir", assets},
		{"ParentDir", filepath.Dir(assets)},
		{"Unclean", filepath.Join(assets, "frame", "..")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Run(context.Background(), sampleCatalog(t, assets), runOptions(assets, tt.out))
			if !errors.Is(err, ErrUnsafeOutput) {
				t.Fatalf("err = %v, want ErrUnsafeOutput", err)
			}
			if res.Planned != 0 || res.Rendered != 0 {
				t.Errorf("result = %+v, want nothing planned", res)
			}
			if _, err := os.Stat(frame); err != nil {
				t.Errorf("asset tree damaged: %v", err)
			}
		})
	}
}

func TestRunAllowsOutputBesideAssets(t *testing.T) {
	assets := newAssetTree(t)
	out := filepath.Join(filepath.Dir(assets), "honor_baked")

	if _, err := Run(context.Background(), sampleCatalog(t, assets), runOptions(assets, out)); err != nil {
		t.Fatalf("Run: %v", err)
	}
}
