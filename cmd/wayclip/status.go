package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"go.klb.dev/wayclip/internal/ipc"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the state of the running daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := dialDaemon(0)
			if err != nil {
				return err
			}
			defer c.Close()

			resp, err := c.Status(cmd.Context())
			if err != nil {
				return fmt.Errorf("status: %w", err)
			}

			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				enc, _ := json.MarshalIndent(resp, "", "  ")
				fmt.Fprintln(cmd.OutOrStdout(), string(enc))
				return nil
			}
			printStatus(cmd.OutOrStdout(), resp, ipc.SocketPath(), time.Now())
			return nil
		},
	}
	cmd.Flags().Bool("json", false, "output raw JSON")

	return cmd
}

func printStatus(out io.Writer, resp *ipc.StatusResponse, socket string, now time.Time) {
	picker := "closed"
	if resp.PickerOpen {
		picker = "open"
	}
	w := tabwriter.NewWriter(out, 1, 0, 2, ' ', 0)
	fmt.Fprintf(w, "PID:\t%d\n", resp.PID)
	fmt.Fprintf(w, "Version:\t%s\n", resp.Version)
	fmt.Fprintf(w, "Socket:\t%s\n", socket)
	fmt.Fprintf(w, "Protocol:\t%s\n", resp.Manager)
	fmt.Fprintf(w, "Items:\t%d\n", resp.Items)
	fmt.Fprintf(w, "Picker:\t%s\n", picker)
	fmt.Fprintf(w, "Started:\t%s (%s)\n",
		resp.StartedAt.UTC().Format(time.RFC3339), humanize.RelTime(resp.StartedAt, now, "ago", "from now"))
	_ = w.Flush()
}
