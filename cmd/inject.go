package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bnema/eiscreen/internal/ipc"
	"github.com/bnema/eiscreen/internal/keys"
	"github.com/bnema/eiscreen/internal/logger"
	"github.com/bnema/eiscreen/internal/ui"
	"github.com/spf13/cobra"
)

var (
	injectState string
	injectSym   string
)

var injectCmd = &cobra.Command{
	Use:   "inject",
	Short: "Emit input events through the running eiscreen client",
	Long: `Send one input event to the running client, which replays it on the
virtual devices offered by the compositor. Useful to check that the portal
session is live and the keymap resolves as expected.`,
}

var injectKeyCmd = &cobra.Command{
	Use:   "key [keycode]",
	Short: "Press and/or release a key by evdev keycode or by symbol (--sym)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := &ipc.InjectRequest{Kind: ipc.InjectKey}
		switch {
		case injectSym != "":
			id, err := ui.ParseKeyID(injectSym)
			if err != nil {
				return err
			}
			req.KeyID = uint32(id)
		case len(args) == 1:
			code, err := strconv.ParseUint(args[0], 0, 32)
			if err != nil {
				return fmt.Errorf("invalid keycode %q: %w", args[0], err)
			}
			req.Code = uint32(code)
		default:
			return fmt.Errorf("a keycode or --sym is required")
		}
		return sendPressRelease(req)
	},
}

var injectButtonCmd = &cobra.Command{
	Use:   "button <left|middle|right|N>",
	Short: "Press and/or release a mouse button",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseButton(args[0])
		if err != nil {
			return err
		}
		return sendPressRelease(&ipc.InjectRequest{Kind: ipc.InjectButton, Code: uint32(id)})
	},
}

var injectMoveCmd = &cobra.Command{
	Use:   "move <x> <y>",
	Short: "Move the pointer to an absolute position",
	Args:  cobra.ExactArgs(2),
	RunE:  injectPair(ipc.InjectMove),
}

var injectRelCmd = &cobra.Command{
	Use:   "rel <dx> <dy>",
	Short: "Move the pointer by a relative offset",
	Args:  cobra.ExactArgs(2),
	RunE:  injectPair(ipc.InjectRelativeMove),
}

var injectWheelCmd = &cobra.Command{
	Use:   "wheel <dx> <dy>",
	Short: "Scroll by discrete steps (positive dy scrolls up)",
	Args:  cobra.ExactArgs(2),
	RunE:  injectPair(ipc.InjectWheel),
}

var injectEnterCmd = &cobra.Command{
	Use:   "enter",
	Short: "Start emulating on every bound device",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendInject(&ipc.InjectRequest{Kind: ipc.InjectEnter})
	},
}

var injectLeaveCmd = &cobra.Command{
	Use:   "leave",
	Short: "Stop emulating on every bound device",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendInject(&ipc.InjectRequest{Kind: ipc.InjectLeave})
	},
}

func init() {
	injectCmd.AddCommand(injectKeyCmd)
	injectCmd.AddCommand(injectButtonCmd)
	injectCmd.AddCommand(injectMoveCmd)
	injectCmd.AddCommand(injectRelCmd)
	injectCmd.AddCommand(injectWheelCmd)
	injectCmd.AddCommand(injectEnterCmd)
	injectCmd.AddCommand(injectLeaveCmd)

	for _, c := range []*cobra.Command{injectKeyCmd, injectButtonCmd} {
		c.Flags().StringVar(&injectState, "state", "tap", "press, release or tap")
	}
	injectKeyCmd.Flags().StringVar(&injectSym, "sym", "", "Key symbol instead of a keycode (e.g. a, Return, F5, 0xEF0D)")
}

func parseButton(s string) (keys.ButtonID, error) {
	switch strings.ToLower(s) {
	case "left":
		return keys.ButtonLeft, nil
	case "middle":
		return keys.ButtonMiddle, nil
	case "right":
		return keys.ButtonRight, nil
	}
	n, err := strconv.ParseUint(s, 10, 8)
	if err != nil || n == 0 {
		return keys.ButtonNone, fmt.Errorf("invalid button %q", s)
	}
	return keys.ButtonID(n), nil
}

func injectPair(kind ipc.InjectKind) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		var xy [2]int32
		for i, arg := range args {
			v, err := strconv.ParseInt(arg, 10, 32)
			if err != nil {
				return fmt.Errorf("invalid %s coordinate %q: %w", kind, arg, err)
			}
			xy[i] = int32(v)
		}
		return sendInject(&ipc.InjectRequest{Kind: kind, X: xy[0], Y: xy[1]})
	}
}

// pressStates expands --state into the press flags to send
func pressStates(state string) ([]bool, error) {
	switch strings.ToLower(state) {
	case "press", "down":
		return []bool{true}, nil
	case "release", "up":
		return []bool{false}, nil
	case "tap", "":
		return []bool{true, false}, nil
	default:
		return nil, fmt.Errorf("invalid state %q (must be press, release or tap)", state)
	}
}

func sendPressRelease(req *ipc.InjectRequest) error {
	states, err := pressStates(injectState)
	if err != nil {
		return err
	}
	for _, press := range states {
		r := *req
		r.Press = press
		if err := sendInject(&r); err != nil {
			return err
		}
	}
	return nil
}

func sendInject(req *ipc.InjectRequest) error {
	client, err := newIPCClient()
	if err != nil {
		return err
	}
	if err := client.Inject(req); err != nil {
		return fmt.Errorf("inject %s failed: %w", req.Kind, err)
	}
	logger.Debugf("Injected %s (code=%d x=%d y=%d press=%v)", req.Kind, req.Code, req.X, req.Y, req.Press)
	return nil
}
