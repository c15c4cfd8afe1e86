package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"tools.zach/dev/sekaibake/internal/assetsync"
)

// assetRequestTimeout bounds a single storage request attempt.
const assetRequestTimeout = 60 * time.Second

func newAssetsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "assets",
		Short: "Download honor art missing from the asset tree",
		Long: `assets lists the configured storage prefixes, descending only into directories
not seen on earlier runs, and downloads every file missing from the local
asset tree. Prefixes marked try_en prefer EN storage and fall back to JP.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client := assetsync.New(assetsync.Options{
				ENBaseURL:     a.cfg.Assets.ENStorageURL,
				JPBaseURL:     a.cfg.Assets.JPStorageURL,
				RetryMax:      a.cfg.Assets.RetryMax,
				Timeout:       assetRequestTimeout,
				ListDelay:     time.Duration(a.cfg.Assets.ListDelayMS) * time.Millisecond,
				DownloadDelay: time.Duration(a.cfg.Assets.DownloadDelayMS) * time.Millisecond,
				Logger:        a.log,
			})

			prefixes := make([]assetsync.Prefix, 0, len(a.cfg.Assets.Prefixes))
			for _, p := range a.cfg.Assets.Prefixes {
				prefixes = append(prefixes, assetsync.Prefix{Key: p.Prefix, Cache: p.Cache, TryEN: p.TryEN})
			}

			res, err := client.Sync(cmd.Context(), prefixes, a.cfg.Assets.Dir, a.paths.Cache())
			fmt.Fprintf(cmd.OutOrStdout(), "listed %d files, %d missing, %d downloaded, %d failed\n",
				res.Listed, res.Missing, res.Downloaded, res.Failed)
			return err
		},
	}
}
