package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"go.klb.dev/wayclip/internal/config"
	"go.klb.dev/wayclip/internal/history"
	"go.klb.dev/wayclip/internal/ipc"
	"go.klb.dev/wayclip/internal/picker"
)

// dumpLabelWidth bounds the CONTENT column of the text format.
const dumpLabelWidth = 60

func newDumpCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Print the clipboard history",
		Long: `Prints the history newest first. The running daemon is asked when there
is one; otherwise the history file is read directly.`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE: func(cmd *cobra.Command, _ []string) error {
			items, err := loadHistory(cmd, v)
			if err != nil {
				return err
			}
			return renderDump(cmd.OutOrStdout(), items, v.GetString("format"))
		},
	}

	cmd.Flags().String("format", "text", "output format: text|json|yaml")
	addConfigFlag(cmd)

	return cmd
}

// loadHistory returns the history oldest first, from the daemon when it is
// running and from the blob otherwise.
func loadHistory(cmd *cobra.Command, v *viper.Viper) ([]history.Item, error) {
	cfg, err := config.Load(v)
	if err != nil {
		return nil, err
	}

	if ipc.IsRunning(ipc.SocketPath()) {
		c, err := dialDaemon(cfg.General.MaxPayload)
		if err != nil {
			return nil, err
		}
		defer c.Close()
		resp, err := c.List(cmd.Context())
		if err != nil {
			return nil, fmt.Errorf("list: %w", err)
		}
		return resp.Items, nil
	}

	blob, err := openVault(cfg)
	if err != nil {
		return nil, err
	}
	return blob.Load()
}

type dumpEntry struct {
	Index int    `json:"index" yaml:"index"`
	ID    string `json:"id" yaml:"id"`
	Kind  string `json:"kind" yaml:"kind"`
	Mime  string `json:"mime" yaml:"mime"`
	Size  int    `json:"size" yaml:"size"`
	Text  string `json:"text,omitempty" yaml:"text,omitempty"`
	// Data is the base64 image payload.
	Data string `json:"data,omitempty" yaml:"data,omitempty"`
}

func dumpEntries(items []history.Item) []dumpEntry {
	out := make([]dumpEntry, 0, len(items))
	for i, it := range slices.Backward(items) {
		e := dumpEntry{
			Index: len(items) - 1 - i,
			ID:    it.ID,
			Kind:  it.Payload.Kind.String(),
			Mime:  it.Payload.Mime,
			Size:  it.Payload.Size(),
		}
		if it.IsText() {
			e.Text = it.Payload.Text
		} else {
			e.Data = base64.StdEncoding.EncodeToString(it.Payload.Bytes)
		}
		out = append(out, e)
	}
	return out
}

// renderDump writes items (oldest first) newest first in format.
func renderDump(w io.Writer, items []history.Item, format string) error {
	entries := dumpEntries(items)
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(entries); err != nil {
			return err
		}
		return enc.Close()
	case "text", "":
		if len(entries) == 0 {
			_, err := fmt.Fprintln(w, "History is empty.")
			return err
		}
		tw := tabwriter.NewWriter(w, 1, 0, 2, ' ', 0)
		_, _ = fmt.Fprintf(tw, "INDEX\tKIND\tSIZE\tMIME\tCONTENT\n")
		for _, e := range entries {
			content := "(image)"
			if e.Kind == history.KindText.String() {
				content = picker.Label(history.Entry{Text: e.Text}, dumpLabelWidth)
			}
			_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
				e.Index, e.Kind, humanize.Bytes(uint64(e.Size)), e.Mime, content)
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unknown format %q (want text, json or yaml)", format)
	}
}
