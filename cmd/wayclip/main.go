// wayclip: clipboard history for Wayland compositors.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags "-X main.Version=x.y.z".
var Version = "dev"

func main() {
	root := newStartCmd()
	root.Use = "wayclip"
	root.Short = "Clipboard history for Wayland"
	root.Long = `wayclip watches the Wayland clipboard through the data-control protocol
(ext_data_control_v1, or zwlr_data_control_v1 on older compositors) and keeps
an encrypted history of it. "wayclip toggle" opens a picker over the history;
the chosen entry is put back on the clipboard and pasted into the focused
window.

Running wayclip without a command starts the daemon.

Config file search order (first found wins):
  /etc/wayclip/wayclip.toml
  $XDG_CONFIG_HOME/wayclip/wayclip.toml
  path supplied via --config

All settings can be set via WAYCLIP_<SECTION>_<KEY> env vars or config-file keys.`
	root.SilenceUsage = true

	root.AddCommand(
		newStartCmd(),
		newToggleCmd(),
		newDumpCmd(),
		newClearCmd(),
		newStatusCmd(),
		newInstallCmd(),
		newVersionCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "wayclip %s\n", Version)
		},
	}
}
