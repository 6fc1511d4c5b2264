package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/bnema/eiscreen/internal/config"
	"github.com/bnema/eiscreen/internal/ipc"
	"github.com/bnema/eiscreen/internal/ui"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var (
	socketPath    string
	watchInterval time.Duration
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of the running eiscreen client",
	Long:  `Query the running client over its control socket and print the portal state, bound seat, screen shape and devices.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newIPCClient()
		if err != nil {
			return err
		}

		status, err := client.Status()
		if errors.Is(err, ipc.ErrNotRunning) {
			fmt.Fprintln(cmd.OutOrStdout(), "eiscreen client is not running")
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to get client status: %w", err)
		}

		fmt.Fprintln(cmd.OutOrStdout(), ui.RenderStatus(status, client.SocketPath()))
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the state of the running eiscreen client",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newIPCClient()
		if err != nil {
			return err
		}

		model := ui.NewWatchModel(client.SocketPath(), watchInterval, client.Status)
		_, err = tea.NewProgram(model, tea.WithContext(cmd.Context())).Run()
		return err
	},
}

func init() {
	for _, c := range []*cobra.Command{statusCmd, watchCmd} {
		c.Flags().StringVar(&socketPath, "socket", "", "Control socket path (default from config)")
	}
	injectCmd.PersistentFlags().StringVar(&socketPath, "socket", "", "Control socket path (default from config)")
	watchCmd.Flags().DurationVarP(&watchInterval, "interval", "i", time.Second, "Refresh interval")
}

// newIPCClient resolves the control socket from the flag, then the config
func newIPCClient() (*ipc.Client, error) {
	path := socketPath
	if path == "" {
		path = config.Get().IPC.SocketPath
	}
	client, err := ipc.NewClient(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create IPC client: %w", err)
	}
	return client, nil
}
