package bake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"tools.zach/dev/sekaibake/internal/honor"
	"tools.zach/dev/sekaibake/internal/logger"
	"tools.zach/dev/sekaibake/internal/paths"
)

// ErrUnsafeOutput is returned when the output dir would remove inputs the
// bake reads.
var ErrUnsafeOutput = errors.New("unsafe output dir")

// Options configures a bake run.
type Options struct {
	// AssetsDir is the root of the mirrored asset tree.
	AssetsDir string
	// OutputDir is the baked tree. It is removed and rebuilt.
	OutputDir string
	Locked    LockedOptions
	// Exclude drops groups by "<type>/<group folder>". May be nil.
	Exclude func(rel string) bool
	Logger  *slog.Logger
}

// Result summarizes a bake run.
type Result struct {
	Planned            int
	Rendered           int
	Failed             int
	LockedCharacters   int
	LockedAchievements int
}

// Run plans, renders and writes every badge of honors, then derives the
// locked variants. Planning errors abort before the output tree is touched.
// A badge that fails to render is logged and skipped; the returned error
// joins every such failure. Cancellation is checked between badges.
func Run(ctx context.Context, honors []*honor.Honor, opts Options) (Result, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	var res Result

	root := filepath.Clean(opts.OutputDir)
	if opts.OutputDir == "" || root == "/" || root == "." {
		return res, fmt.Errorf("%w: refusing to bake into %q", ErrUnsafeOutput, opts.OutputDir)
	}
	if err := checkOutputRoot(root, opts.AssetsDir); err != nil {
		return res, err
	}

	jobs, err := Plan(honors, opts.Exclude, log)
	if err != nil {
		return res, err
	}
	res.Planned = len(jobs)
	log.Info("bake planned", "badges", len(jobs), "output", root)

	if err := os.RemoveAll(root); err != nil {
		return res, fmt.Errorf("clear output dir: %w", err)
	}

	comp := NewCompositor(opts.AssetsDir, log)
	var failures []error
	for i, job := range jobs {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := renderJob(comp, root, job); err != nil {
			log.Error("badge failed", "path", job.Rel, "target", job.Target, "error", err)
			failures = append(failures, fmt.Errorf("%s: %w", job.Rel, err))
			res.Failed++
		} else {
			res.Rendered++
		}
		logger.Progress(log, "rendering badges", i+1, len(jobs))
	}

	if res.LockedCharacters, err = LockCharacters(root, opts.Locked); err != nil {
		return res, fmt.Errorf("lock character badges: %w", err)
	}
	if res.LockedAchievements, err = LockAchievements(root, opts.Locked); err != nil {
		return res, fmt.Errorf("lock achievement badges: %w", err)
	}

	log.Info("bake finished",
		"rendered", res.Rendered,
		"failed", res.Failed,
		"locked_characters", res.LockedCharacters,
		"locked_achievements", res.LockedAchievements,
		"cached_images", comp.cache.len(),
	)
	if len(failures) > 0 {
		return res, fmt.Errorf("%d of %d badges failed: %w", res.Failed, res.Planned, errors.Join(failures...))
	}
	return res, nil
}

func renderJob(comp *Compositor, root string, job Job) error {
	img, err := comp.Render(job.Target)
	if err != nil {
		return err
	}
	return writePNG(filepath.Join(root, filepath.FromSlash(job.Rel)), img)
}

// checkOutputRoot refuses an output root that equals or contains the asset
// tree, since a bake removes the root before rendering.
func checkOutputRoot(root, assetsDir string) error {
	if assetsDir == "" {
		return nil
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolve output dir: %w", err)
	}
	absAssets, err := filepath.Abs(assetsDir)
	if err != nil {
		return fmt.Errorf("resolve assets dir: %w", err)
	}
	if paths.Contains(absRoot, absAssets) {
		return fmt.Errorf("%w: %q contains assets dir %q", ErrUnsafeOutput, root, assetsDir)
	}
	return nil
}
