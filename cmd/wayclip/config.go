package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/wayclip/internal/config"
	"go.klb.dev/wayclip/internal/logging"
	"go.klb.dev/wayclip/internal/vault"
)

// bindViper wires a command's flags into a viper instance with the standard
// config file search order and WAYCLIP_* env var prefix.
//
// Precedence (lowest → highest): defaults → config file → WAYCLIP_* env vars → flags
func bindViper(cmd *cobra.Command, v *viper.Viper) error {
	configFlag, _ := cmd.Flags().GetString("config")
	if err := config.Prepare(v, configFlag); err != nil {
		return err
	}
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("binding flags: %w", err)
	}
	return nil
}

// bindKeys binds flags to nested config keys, e.g. --picker to
// general.picker.
func bindKeys(cmd *cobra.Command, v *viper.Viper, keys map[string]string) error {
	for key, flag := range keys {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return fmt.Errorf("binding --%s: %w", flag, err)
		}
	}
	return nil
}

// addLoggingFlags adds the standard logging flags to a command.
func addLoggingFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("no-background", false, "run interactively: tinter logs + debug level")
	cmd.Flags().String("log-format", "auto", "log format: auto|text|json")
	cmd.Flags().String("log-level", "", "log level: debug|info|warn|error (default: info for service, debug for interactive)")
}

// addConfigFlag adds the --config flag to a command.
func addConfigFlag(cmd *cobra.Command) {
	cmd.Flags().String("config", "", "path to config file (overrides auto-discovery)")
}

// setupLogging reads logging flags from viper and configures slog. The
// returned function flushes the log file.
func setupLogging(v *viper.Viper) func() {
	interactive := v.GetBool("no-background") || logging.IsTTY(os.Stderr)
	format := logging.ParseFormat(v.GetString("log-format"))
	levelStr := v.GetString("log-level")
	level := logging.ParseLevel(levelStr)
	if levelStr == "" {
		if interactive {
			level = logging.ParseLevel("debug")
		} else {
			level = logging.ParseLevel("info")
		}
	}
	closer := logging.Setup(format, level, logging.File{
		Path:       v.GetString("log-file"),
		MaxSizeMB:  10,
		MaxBackups: 3,
	})
	return func() { _ = closer.Close() }
}

// openVault opens the history blob described by cfg.
func openVault(cfg *config.Config) (*vault.Vault, error) {
	return vault.Open(vault.Options{
		Path:       config.HistoryPath(),
		SeedPath:   config.SeedPath(),
		Encrypt:    cfg.Encryption.Encrypt,
		Passphrase: cfg.Encryption.Key,
	})
}
