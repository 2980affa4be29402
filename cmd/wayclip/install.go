package main

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"text/template"

	"github.com/adrg/xdg"
	"github.com/google/renameio/v2"
	"github.com/spf13/cobra"
)

const unitName = "wayclip.service"

var unitTemplate = template.Must(template.New("unit").Parse(`[Unit]
Description=Clipboard history for Wayland
PartOf=graphical-session.target
After=graphical-session.target

[Service]
ExecStart={{.Exec}} start --log-format json
Restart=on-failure
RestartSec=2

[Install]
WantedBy=graphical-session.target
`))

func newInstallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Install the systemd user service",
		Long: `Writes $XDG_CONFIG_HOME/systemd/user/wayclip.service running this binary.
With --enable the unit is also enabled and started.

The paste keystroke needs write access to /dev/uinput, usually through
membership of the input group or a udev rule.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			exe, err := os.Executable()
			if err != nil {
				return fmt.Errorf("locate executable: %w", err)
			}
			if exe, err = filepath.EvalSymlinks(exe); err != nil {
				return fmt.Errorf("locate executable: %w", err)
			}

			unit, err := renderUnit(exe)
			if err != nil {
				return err
			}
			path := filepath.Join(xdg.ConfigHome, "systemd", "user", unitName)
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return err
			}
			if err := renameio.WriteFile(path, unit, 0o644); err != nil {
				return fmt.Errorf("write unit: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Installed %s\n", path)

			if enable, _ := cmd.Flags().GetBool("enable"); !enable {
				fmt.Fprintf(cmd.OutOrStdout(), "Enable it with: systemctl --user enable --now %s\n", unitName)
				return nil
			}
			for _, args := range [][]string{
				{"--user", "daemon-reload"},
				{"--user", "enable", "--now", unitName},
			} {
				c := exec.CommandContext(cmd.Context(), "systemctl", args...)
				c.Stdout = cmd.OutOrStdout()
				c.Stderr = cmd.ErrOrStderr()
				if err := c.Run(); err != nil {
					return fmt.Errorf("systemctl %v: %w", args, err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Enabled and started %s\n", unitName)
			return nil
		},
	}
	cmd.Flags().Bool("enable", false, "enable and start the unit with systemctl --user")

	return cmd
}

func renderUnit(exe string) ([]byte, error) {
	var buf bytes.Buffer
	if err := unitTemplate.Execute(&buf, struct{ Exec string }{exe}); err != nil {
		return nil, fmt.Errorf("render unit: %w", err)
	}
	return buf.Bytes(), nil
}
