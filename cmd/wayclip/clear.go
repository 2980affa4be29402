package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/wayclip/internal/config"
	"go.klb.dev/wayclip/internal/ipc"
)

func newClearCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete the clipboard history",
		Long: `Empties the history of the running daemon, or overwrites the history file
with an empty history when no daemon is running.`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE: func(cmd *cobra.Command, _ []string) error {
			if ipc.IsRunning(ipc.SocketPath()) {
				c, err := dialDaemon(0)
				if err != nil {
					return err
				}
				defer c.Close()
				if err := c.Clear(cmd.Context()); err != nil {
					return fmt.Errorf("clear: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "History cleared.")
				return nil
			}

			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			blob, err := openVault(cfg)
			if err != nil {
				return err
			}
			if err := blob.Save(nil); err != nil {
				return fmt.Errorf("clear %s: %w", blob.Path(), err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "History cleared (%s).\n", blob.Path())
			return nil
		},
	}
	addConfigFlag(cmd)

	return cmd
}
