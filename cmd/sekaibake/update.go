package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"tools.zach/dev/sekaibake/internal/catalog"
	"tools.zach/dev/sekaibake/internal/gitrepo"
)

func newUpdateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "update",
		Short: "Pull the master-data mirrors and re-import the honor catalog",
		Long: `update clones or pulls the EN and JP master-data mirrors, pulls the asset
repository when one is configured, and replaces the honor catalog with the
merged data.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := a.syncAssetRepo(ctx); err != nil {
				return err
			}
			info, err := a.refresh(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d groups, %d honors, %d levels (en %s, jp %s)\n",
				info.Groups, info.Honors, info.Levels, short(info.ENRevision), short(info.JPRevision))
			return nil
		},
	}
}

// ///////////////////////////////////////////////
// Master Data
// ///////////////////////////////////////////////

func (a *app) masterRepos() (en, jp gitrepo.Repo) {
	timeout := time.Duration(a.cfg.Data.GitTimeoutSeconds) * time.Second
	en = gitrepo.Repo{URL: a.cfg.Data.ENRepository, Dir: a.cfg.Data.ENDir, Timeout: timeout, Logger: a.log}
	jp = gitrepo.Repo{URL: a.cfg.Data.JPRepository, Dir: a.cfg.Data.JPDir, Timeout: timeout, Logger: a.log}
	return en, jp
}

// refresh pulls both master-data mirrors and imports them.
func (a *app) refresh(ctx context.Context) (catalog.ImportInfo, error) {
	en, jp := a.masterRepos()
	var info catalog.ImportInfo
	var err error
	if info.ENRevision, err = en.Sync(ctx); err != nil {
		return info, fmt.Errorf("update EN master data: %w", err)
	}
	if info.JPRevision, err = jp.Sync(ctx); err != nil {
		return info, fmt.Errorf("update JP master data: %w", err)
	}
	return a.importCatalog(ctx, info)
}

// currentRevisions reads the checked-out revisions without fetching.
// Unreadable revisions are left empty.
func (a *app) currentRevisions(ctx context.Context) catalog.ImportInfo {
	en, jp := a.masterRepos()
	var info catalog.ImportInfo
	if rev, err := en.Head(ctx); err == nil {
		info.ENRevision = rev
	}
	if rev, err := jp.Head(ctx); err == nil {
		info.JPRevision = rev
	}
	return info
}

// importCatalog replaces the catalog with the merged checkouts.
func (a *app) importCatalog(ctx context.Context, info catalog.ImportInfo) (catalog.ImportInfo, error) {
	store, err := catalog.Open(ctx, a.cfg.Database.Path)
	if err != nil {
		return info, err
	}
	defer store.Close()
	return catalog.ImportCheckouts(ctx, store, a.cfg.Data.ENDir, a.cfg.Data.JPDir, info)
}

// syncAssetRepo clones or pulls the configured asset repository into the
// asset tree. No-op when none is configured.
func (a *app) syncAssetRepo(ctx context.Context) error {
	if a.cfg.Assets.Repository == "" {
		return nil
	}
	repo := gitrepo.Repo{
		URL:     a.cfg.Assets.Repository,
		Dir:     a.cfg.Assets.Dir,
		Timeout: time.Duration(a.cfg.Data.GitTimeoutSeconds) * time.Second,
		Logger:  a.log,
	}
	if _, err := repo.Sync(ctx); err != nil {
		return fmt.Errorf("update asset repository: %w", err)
	}
	return nil
}

func short(rev string) string {
	if rev == "" {
		return "unknown"
	}
	return rev[:min(7, len(rev))]
}
