package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/wayclip/internal/clip"
	"go.klb.dev/wayclip/internal/config"
	"go.klb.dev/wayclip/internal/daemon"
	"go.klb.dev/wayclip/internal/history"
	"go.klb.dev/wayclip/internal/input"
	"go.klb.dev/wayclip/internal/ipc"
	"go.klb.dev/wayclip/internal/picker"
	"go.klb.dev/wayclip/internal/wayland"
)

func newStartCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Run the clipboard history daemon",
		Long: `Starts the daemon: watches the clipboard, keeps the history and serves
toggle/dump/clear/status on the control socket.

On first start the default configuration is written to
$XDG_CONFIG_HOME/wayclip/wayclip.toml.

Precedence (lowest → highest): defaults → config file → WAYCLIP_* env vars → flags`,
		Args: cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := bindViper(cmd, v); err != nil {
				return err
			}
			return bindKeys(cmd, v, map[string]string{
				"general.picker":      "picker",
				"general.max_history": "max-history",
				"data.allow_images":   "allow-images",
				"data.writer":         "writer",
			})
		},
		RunE: func(cmd *cobra.Command, _ []string) error { return runStart(cmd, v) },
	}

	f := cmd.Flags()
	f.String("picker", picker.BackendDmenu, "picker backend: dmenu|tui")
	f.Int("max-history", 0, "history entries to keep (0 = unbounded)")
	f.Bool("allow-images", false, "keep images in the history")
	f.String("writer", clip.KindWayland, "clipboard writer used on paste: wayland|x11|none")
	f.String("log-file", config.LogPath(), "JSON log file, rotated (empty disables)")
	addLoggingFlags(cmd)
	addConfigFlag(cmd)

	return cmd
}

func runStart(cmd *cobra.Command, v *viper.Viper) error {
	flush := setupLogging(v)
	defer flush()

	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	if !cmd.Flags().Changed("config") {
		if wrote, err := config.WriteDefault(config.File()); err != nil {
			slog.Warn("default config not written", "path", config.File(), "err", err)
		} else if wrote {
			slog.Info("default config written", "path", config.File())
		}
	}

	socket := ipc.SocketPath()
	ln, err := ipc.Listen(socket)
	if errors.Is(err, ipc.ErrAlreadyRunning) {
		return fmt.Errorf("wayclip is already running (socket %s)", socket)
	}
	if err != nil {
		return err
	}
	defer ln.Close()

	blob, err := openVault(cfg)
	if err != nil {
		return fmt.Errorf("history vault: %w", err)
	}
	store := history.New(history.Options{
		MaxHistory:  cfg.General.MaxHistory,
		Dedupe:      cfg.Data.Dedupe,
		AllowImages: cfg.Data.AllowImages,
	}, blob)
	if err := store.Restore(); err != nil {
		slog.Warn("history not restored, starting empty", "path", blob.Path(), "err", err)
	}

	kb, err := input.Open()
	if err != nil {
		return err
	}
	defer kb.Close()

	writer, err := clip.New(cfg.Data.Writer, cfg.General.RoundtripTimeout)
	if err != nil {
		return err
	}
	defer writer.Close()

	pk, err := picker.New(cfg.General.Picker, picker.Options{
		Command:    cfg.Menu.Command,
		Title:      cfg.Menu.Title,
		Font:       cfg.Menu.Font,
		Lines:      cfg.Menu.Lines,
		Monitor:    cfg.Menu.Monitor,
		IgnoreCase: cfg.Menu.IgnoreCase,
	})
	if err != nil {
		return err
	}

	w, err := wayland.Connect(wayland.Options{
		PreferredMime:    cfg.Data.Mime,
		AllowImages:      cfg.Data.AllowImages,
		RoundtripTimeout: cfg.General.RoundtripTimeout,
		TransferTimeout:  cfg.General.TransferTimeout,
		MaxPayload:       cfg.General.MaxPayload,
	}, daemon.NewRecorder(store))
	if err != nil {
		return fmt.Errorf("wayland: %w", err)
	}
	defer w.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return daemon.New(daemon.Options{
		Store:      store,
		Watcher:    w,
		Listener:   ln,
		Picker:     pk,
		Writer:     writer,
		Injector:   kb,
		Mime:       cfg.Data.Mime,
		MaxPayload: cfg.General.MaxPayload,
		Version:    Version,
	}).Run(ctx)
}
