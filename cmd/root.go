package cmd

import (
	"os"

	"github.com/bnema/eiscreen/internal/config"
	"github.com/bnema/eiscreen/internal/logger"
	"github.com/spf13/cobra"
)

var (
	configFile string

	rootCmd = &cobra.Command{
		Use:   "eiscreen",
		Short: "eiscreen - emulated input for Wayland compositors",
		Long: `eiscreen is the secondary-screen side of a keyboard and mouse sharing setup.
It negotiates input emulation through the XDG desktop portal (or connects
straight to an EIS socket), tracks the virtual devices the compositor offers,
and replays pointer, button, wheel and key events on them.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			config.SetConfigPath(configFile)
			if err := config.Init(); err != nil {
				return err
			}
			applyLogLevel(config.Get())
			return nil
		},
	}
)

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s\n" .Version}}`)
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default $HOME/.config/eiscreen/eiscreen.toml)")

	// Add commands
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(injectCmd)
	rootCmd.AddCommand(keymapCmd)
	rootCmd.AddCommand(configCmd)
}

// applyLogLevel lets the config file override LOG_LEVEL
func applyLogLevel(cfg *config.Config) {
	if cfg.Logging.LogLevel != "" {
		logger.SetLevel(cfg.Logging.LogLevel)
	} else {
		logger.SetLevel(os.Getenv("LOG_LEVEL"))
	}
}
