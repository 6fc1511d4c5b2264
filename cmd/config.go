package cmd

import (
	"fmt"
	"os"

	"github.com/bnema/eiscreen/internal/config"
	"github.com/bnema/eiscreen/internal/logger"
	"github.com/bnema/eiscreen/internal/portal"
	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage eiscreen configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Get()

		logger.Info("Current Configuration:")
		logger.Infof("Config file: %s\n", config.GetConfigPath())

		logger.Info("[Portal]")
		logger.Infof("  Enabled: %v", cfg.Portal.Enabled)
		logger.Infof("  Variant: %s", cfg.Portal.Variant)
		logger.Infof("  Retry Delay: %s", cfg.Portal.RetryDelay())
		logger.Infof("  Fallback Socket Env: %s", cfg.Portal.FallbackSocketEnv)

		logger.Info("\n[EI]")
		logger.Infof("  Client Name: %s", cfg.EI.ClientName)
		logger.Infof("  Socket: %s", valueOrDefault(cfg.EI.Socket, "$LIBEI_SOCKET"))

		logger.Info("\n[Keymap]")
		logger.Infof("  Rules: %s", valueOrDefault(cfg.Keymap.Rules, "default"))
		logger.Infof("  Model: %s", valueOrDefault(cfg.Keymap.Model, "default"))
		logger.Infof("  Layout: %s", valueOrDefault(cfg.Keymap.Layout, "default"))
		logger.Infof("  Variant: %s", valueOrDefault(cfg.Keymap.Variant, "default"))
		logger.Infof("  Options: %s", valueOrDefault(cfg.Keymap.Options, "none"))

		logger.Info("\n[IPC]")
		logger.Infof("  Socket Path: %s", valueOrDefault(cfg.IPC.SocketPath, "$XDG_RUNTIME_DIR/eiscreen.sock"))

		logger.Info("\n[Logging]")
		logger.Infof("  File Logging: %v", cfg.Logging.FileLogging)
		logger.Infof("  Log Level: %s", valueOrDefault(cfg.Logging.LogLevel, "$LOG_LEVEL"))

		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the configuration file path",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), config.GetConfigPath())
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration file",
	Long: `Write a configuration file. Unless --defaults is given, a short form asks
which portal to use and which keyboard layout to fall back to.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Check if config already exists
		configPath := config.GetConfigPath()
		force, _ := cmd.Flags().GetBool("force")
		if _, err := os.Stat(configPath); err == nil && !force {
			logger.Infof("Configuration file already exists at: %s", configPath)
			logger.Info("Use --force to overwrite")
			return nil
		}

		cfg := config.DefaultConfig
		if defaults, _ := cmd.Flags().GetBool("defaults"); !defaults {
			if err := promptConfig(&cfg); err != nil {
				return err
			}
		}

		if err := config.WriteFile(configPath, &cfg); err != nil {
			return err
		}

		logger.Infof("Configuration initialized at: %s", configPath)
		logger.Info("\nYou can now:")
		logger.Info("  - Edit the configuration file directly")
		logger.Info("  - Use 'eiscreen config show' to view current settings")
		logger.Info("  - Use 'eiscreen client' to start")

		return nil
	},
}

// promptConfig asks for the settings most users change
func promptConfig(cfg *config.Config) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Negotiate input through the desktop portal?").
				Description("Say no to connect straight to an EIS socket ($LIBEI_SOCKET)").
				Value(&cfg.Portal.Enabled),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Select Portal").
				Description("Choose how the compositor grants input emulation").
				Options(
					huh.NewOption("RemoteDesktop (emulate input directly)", portal.RemoteDesktop.String()),
					huh.NewOption("InputCapture (pointer barriers at the screen edges)", portal.InputCapture.String()),
				).
				Value(&cfg.Portal.Variant),
		).WithHideFunc(func() bool { return !cfg.Portal.Enabled }),
		huh.NewGroup(
			huh.NewInput().
				Title("Fallback keyboard layout").
				Description("Used when a virtual keyboard carries no keymap (empty for the system default)").
				Placeholder("us").
				Value(&cfg.Keymap.Layout),
		),
	)

	if err := form.Run(); err != nil {
		return fmt.Errorf("configuration cancelled: %w", err)
	}
	return nil
}

func valueOrDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func init() {
	// Add subcommands
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configInitCmd)

	// Add flags
	configInitCmd.Flags().Bool("force", false, "Force overwrite existing configuration")
	configInitCmd.Flags().Bool("defaults", false, "Write the defaults without prompting")
}
