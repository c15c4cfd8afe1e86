package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"tools.zach/dev/sekaibake/internal/bake"
	"tools.zach/dev/sekaibake/internal/catalog"
	"tools.zach/dev/sekaibake/internal/paths"
	"tools.zach/dev/sekaibake/internal/watch"
)

// watchSettle is how long the master-data checkouts must be quiet before a
// rebuild starts.
const watchSettle = 2 * time.Second

func newBakeCmd(a *app) *cobra.Command {
	var noUpdate, watchMode bool
	cmd := &cobra.Command{
		Use:   "bake",
		Short: "Composite every honor badge into the output tree",
		Long: `bake refreshes the master data (unless --no-update), then rebuilds the baked
badge tree from scratch. With --watch it keeps running and rebuilds whenever
honors.json or honorGroups.json changes in either checkout.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if !noUpdate {
				if _, err := a.refresh(ctx); err != nil {
					return err
				}
			}

			res, err := a.bake(ctx)
			fmt.Fprintf(cmd.OutOrStdout(), "baked %d of %d badges (%d failed), %d locked variants\n",
				res.Rendered, res.Planned, res.Failed, res.LockedCharacters+res.LockedAchievements)
			if !watchMode {
				return err
			}
			if err != nil {
				a.log.Error("initial bake incomplete", "error", err)
			}
			return a.watchAndBake(ctx)
		},
	}
	cmd.Flags().BoolVar(&noUpdate, "no-update", false, "skip pulling master data; bake from the existing catalog")
	cmd.Flags().BoolVar(&watchMode, "watch", false, "rebuild when the master-data checkouts change")
	return cmd
}

// bake renders the whole catalog into the configured output tree.
func (a *app) bake(ctx context.Context) (bake.Result, error) {
	store, err := catalog.Open(ctx, a.cfg.Database.Path)
	if err != nil {
		return bake.Result{}, err
	}
	defer store.Close()

	cat, err := store.Snapshot(ctx)
	if errors.Is(err, catalog.ErrEmpty) {
		return bake.Result{}, fmt.Errorf("%w: run `sekaibake update` first", err)
	}
	if err != nil {
		return bake.Result{}, err
	}
	if last, ok, err := store.LastImport(ctx); err == nil && ok {
		a.log.Info("baking catalog", "imported_at", last.At.Format(time.RFC3339), "en", short(last.ENRevision), "jp", short(last.JPRevision))
	}

	return bake.Run(ctx, cat.Honors, bake.Options{
		AssetsDir: a.cfg.Assets.Dir,
		OutputDir: a.cfg.Bake.OutputDir,
		Locked: bake.LockedOptions{
			SourceLevel:     a.cfg.Bake.LockedSourceLevel,
			CharacterLevel:  a.cfg.Bake.LockedCharacterLevel,
			AchievementName: a.cfg.Bake.LockedAchievementName,
		},
		Exclude: a.cfg.IsExcluded,
		Logger:  a.log,
	})
}

// watchAndBake re-imports and re-bakes after each change to the master-data
// files until ctx is cancelled, which counts as a clean exit.
func (a *app) watchAndBake(ctx context.Context) error {
	w, err := watch.New(
		[]string{a.cfg.Data.ENDir, a.cfg.Data.JPDir},
		[]string{paths.HonorsFile, paths.HonorGroupsFile},
		watch.Options{Logger: a.log},
	)
	if err != nil {
		return err
	}
	defer w.Close()
	if w.Polling() {
		a.log.Info("using polling mode for file watching")
	}
	a.log.Info("watching master data", "en", a.cfg.Data.ENDir, "jp", a.cfg.Data.JPDir)

	err = watch.Run(ctx, w, watchSettle, func(ctx context.Context) error {
		if _, err := a.importCatalog(ctx, a.currentRevisions(ctx)); err != nil {
			return err
		}
		_, err := a.bake(ctx)
		return err
	})
	if errors.Is(err, context.Canceled) {
		a.log.Info("received shutdown signal")
		return nil
	}
	return err
}
