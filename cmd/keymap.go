package cmd

import (
	"fmt"
	"os"

	"github.com/bnema/eiscreen/internal/config"
	"github.com/bnema/eiscreen/internal/ui"
	"github.com/bnema/eiscreen/internal/xkb"
	"github.com/spf13/cobra"
)

var (
	keymapFile  string
	keymapLimit int
)

var keymapCmd = &cobra.Command{
	Use:   "keymap",
	Short: "Compile a keymap and list its entries",
	Long: `Compile a keyboard layout the way the client does when a virtual keyboard
is bound, and print every (symbol, key, modifier) entry it produces. Without
--file the layout named in the [keymap] config section is used.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := xkb.NewEngine()
		if err != nil {
			return err
		}
		defer engine.Close()

		compiler := xkb.NewCompiler(engine, ruleNames(config.Get()))
		defer compiler.Close()

		if keymapFile != "" {
			f, err := os.Open(keymapFile)
			if err != nil {
				return fmt.Errorf("failed to open keymap: %w", err)
			}
			defer f.Close()

			info, err := f.Stat()
			if err != nil {
				return fmt.Errorf("failed to stat keymap: %w", err)
			}
			if err := compiler.CompileFromReader(f, int(info.Size())); err != nil {
				return err
			}
		} else if err := compiler.CompileDefault(); err != nil {
			return err
		}

		km, err := compiler.BuildKeyMap()
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), ui.RenderKeyMap(km, keymapLimit))
		return nil
	},
}

func init() {
	keymapCmd.Flags().StringVarP(&keymapFile, "file", "f", "", "Text keymap to compile (xkbcomp output)")
	keymapCmd.Flags().IntVarP(&keymapLimit, "limit", "n", 0, "Show at most N entries")
}

func ruleNames(cfg *config.Config) xkb.RuleNames {
	return xkb.RuleNames{
		Rules:   cfg.Keymap.Rules,
		Model:   cfg.Keymap.Model,
		Layout:  cfg.Keymap.Layout,
		Variant: cfg.Keymap.Variant,
		Options: cfg.Keymap.Options,
	}
}
