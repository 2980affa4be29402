package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"go.klb.dev/wayclip/internal/ipc"
)

func newToggleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "toggle",
		Short: "Show the picker of the running daemon",
		Long: `Asks the running daemon to open the picker. Bind this to a key in your
compositor, e.g. for sway:

  bindsym $mod+v exec wayclip toggle

The request is refused while a picker is already open.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := dialDaemon(0)
			if err != nil {
				return err
			}
			defer c.Close()

			resp, err := c.Toggle(cmd.Context(), os.Getpid())
			if err != nil {
				return fmt.Errorf("toggle: %w", err)
			}
			if !resp.Accepted {
				return fmt.Errorf("toggle refused: %s", resp.Reason)
			}
			return nil
		},
	}
}

// dialDaemon connects to the daemon's control socket. maxPayload is the
// configured general.max_payload, needed only by calls that carry items.
func dialDaemon(maxPayload int64) (*ipc.Client, error) {
	path := ipc.SocketPath()
	c, err := ipc.Dial(path, maxPayload)
	if errors.Is(err, ipc.ErrNotRunning) {
		return nil, fmt.Errorf("wayclip is not running (no daemon on %s); start it with \"wayclip start\"", path)
	}
	return c, err
}
