package main

import (
	"github.com/spf13/cobra"
)

// newRootCmd builds the command tree bound to a.
func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "sekaibake",
		Short: "Bake Project SEKAI honor badges into static PNGs",
		Long: `sekaibake pulls the game's master data from community git mirrors, loads the
honor catalog into SQLite, mirrors honor art from public asset storage, and
composites every honor badge (main and sub size) into a browsable PNG tree.`,
		Version:       resolveVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd.ErrOrStderr())
		},
	}
	root.PersistentFlags().StringVar(&a.dataDir, "data-dir", defaultDataDir(), "data directory for config, catalog, caches and logs")
	root.PersistentFlags().StringVar(&a.consoleLevel, "log-level", "", "console log level (trace, debug, info, warn, error)")

	root.AddCommand(
		newBakeCmd(a),
		newUpdateCmd(a),
		newAssetsCmd(a),
	)
	return root
}
