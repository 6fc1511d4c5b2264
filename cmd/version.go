package cmd

import (
	"github.com/bnema/eiscreen/internal/logger"
	"github.com/spf13/cobra"
)

var (
	// Version info set by main package
	Version = "0.1.0-dev"
	Commit  = "unknown"
	Date    = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		logger.Infof("eiscreen %s", Version)
		logger.Infof("commit: %s", Commit)
		logger.Infof("built: %s", Date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

// SetVersion records the build metadata injected through -ldflags
func SetVersion(version, commit, date string) {
	Version = version
	Commit = commit
	Date = date
	rootCmd.Version = version
}
