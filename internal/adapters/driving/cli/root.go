// Package cli wires the whisper commands.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/CoderByBlood/whisper-cms-sub000/internal/logger"
)

var version = "dev"

var (
	verbose  bool
	siteRoot string
)

var rootCmd = &cobra.Command{
	Use:   "whisper",
	Short: "File-based CMS server",
	Long: `Whisper serves a site authored as front-mattered markup files.
Content is ingested through a reactive pipeline, indexed for metadata
queries and full-text search, and served through a hot-reloadable
application server behind a TLS edge.`,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.SetVerbose(verbose)
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&siteRoot, "site", "s", ".", "site root directory")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
