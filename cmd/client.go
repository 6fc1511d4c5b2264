//go:build linux

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bnema/eiscreen/internal/config"
	"github.com/bnema/eiscreen/internal/ei"
	"github.com/bnema/eiscreen/internal/event"
	"github.com/bnema/eiscreen/internal/ipc"
	"github.com/bnema/eiscreen/internal/logger"
	"github.com/bnema/eiscreen/internal/portal"
	"github.com/bnema/eiscreen/internal/screen"
	"github.com/bnema/eiscreen/internal/xkb"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "Run the emulated-input screen",
	Long: `Run eiscreen as the secondary screen. The client negotiates input emulation
with the compositor, binds the virtual devices it offers and serves status and
injection requests on the control socket until interrupted.`,
	RunE: runClient,
}

func init() {
	clientCmd.Flags().Bool("capture", false, "Use the InputCapture portal instead of RemoteDesktop")
	clientCmd.Flags().Bool("no-portal", false, "Connect straight to the EIS socket")
	clientCmd.Flags().String("socket", "", "EIS socket for --no-portal (default $LIBEI_SOCKET)")

	// Bind flags to viper
	viper.BindPFlag("ei.socket", clientCmd.Flags().Lookup("socket"))

	rootCmd.AddCommand(clientCmd)
}

// screenOptions merges the command line over the configuration
func screenOptions(cmd *cobra.Command, cfg *config.Config) (screen.Options, error) {
	variant, err := portal.ParseVariant(cfg.Portal.Variant)
	if err != nil {
		return screen.Options{}, err
	}
	if capture, _ := cmd.Flags().GetBool("capture"); capture {
		variant = portal.InputCapture
	}

	usePortal := cfg.Portal.Enabled
	if noPortal, _ := cmd.Flags().GetBool("no-portal"); noPortal {
		usePortal = false
	}

	return screen.Options{
		UsePortal:   usePortal,
		Variant:     variant,
		RetryDelay:  cfg.Portal.RetryDelay(),
		FallbackEnv: cfg.Portal.FallbackSocketEnv,
		Socket:      cfg.EI.Socket,
	}, nil
}

func runClient(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	if cfg.Logging.FileLogging {
		logFile, err := logger.SetupFileLogging("CLIENT")
		if err != nil {
			return fmt.Errorf("failed to setup file logging: %w", err)
		}
		defer logFile.Close()
	}

	opts, err := screenOptions(cmd, cfg)
	if err != nil {
		return err
	}

	engine, err := xkb.NewEngine()
	if err != nil {
		return fmt.Errorf("failed to initialize layout engine: %w", err)
	}
	defer engine.Close()
	compiler := xkb.NewCompiler(engine, ruleNames(cfg))

	source, err := ei.NewSender(cfg.EI.ClientName)
	if err != nil {
		compiler.Close()
		return fmt.Errorf("failed to create EI context: %w", err)
	}

	var broker portal.Broker
	if opts.UsePortal {
		b, err := portal.NewDBusBroker()
		if err != nil {
			source.Close()
			compiler.Close()
			return fmt.Errorf("failed to connect to the desktop portal: %w", err)
		}
		broker = b
	}

	queue := event.NewQueue()
	scr, err := screen.New(queue, source, compiler, broker, opts)
	if err != nil {
		if broker != nil {
			broker.Close()
		}
		source.Close()
		compiler.Close()
		return err
	}

	// Ensure cleanup happens on any exit path
	defer func() {
		logger.Info("Cleaning up client resources...")
		if err := scr.Close(); err != nil {
			logger.Warnf("Shutdown finished with errors: %v", err)
		}
	}()

	server, err := ipc.NewSocketServer(cfg.IPC.SocketPath, scr)
	if err != nil {
		return fmt.Errorf("failed to create control socket: %w", err)
	}
	if err := server.Start(); err != nil {
		return fmt.Errorf("failed to start control socket: %w", err)
	}
	defer server.Stop()

	config.Watch(func(next *config.Config, err error) {
		if err != nil {
			logger.Warnf("Ignoring config change: %v", err)
			return
		}
		applyLogLevel(next)
		logger.Info("Configuration reloaded")
	})

	// Handle graceful shutdown with proper cleanup
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.UsePortal {
		logger.Infof("Requesting %s session from the desktop portal", opts.Variant)
	} else {
		logger.Info("Connected to EIS socket")
	}
	logger.Infof("Control socket listening on %s", server.Path())

	scr.Start(ctx)
	if err := queue.Loop(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	if ctx.Err() != nil {
		logger.Info("Received shutdown signal, initiating graceful shutdown...")
	} else {
		logger.Info("Session ended")
	}
	return nil
}
