// Package config loads the wayclip configuration snapshot.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/google/renameio/v2"
	"github.com/spf13/viper"
)

// Name is used for the config file, directories and the env prefix.
const Name = "wayclip"

//go:embed default.toml
var defaultTOML []byte

// Config is the configuration snapshot. It is read-only after Load.
type Config struct {
	General    General    `mapstructure:"general"`
	Data       Data       `mapstructure:"data"`
	Encryption Encryption `mapstructure:"encryption"`
	Menu       Menu       `mapstructure:"menu"`
}

type General struct {
	MaxHistory       int           `mapstructure:"max_history"`
	Picker           string        `mapstructure:"picker"`
	RoundtripTimeout time.Duration `mapstructure:"roundtrip_timeout"`
	TransferTimeout  time.Duration `mapstructure:"transfer_timeout"`
	MaxPayload       int64         `mapstructure:"max_payload"`
}

type Data struct {
	Mime        string `mapstructure:"mime"`
	Dedupe      bool   `mapstructure:"dedupe"`
	AllowImages bool   `mapstructure:"allow_images"`
	Writer      string `mapstructure:"writer"`
}

type Encryption struct {
	Encrypt bool   `mapstructure:"encrypt"`
	Key     string `mapstructure:"key"`
}

type Menu struct {
	Command    string `mapstructure:"command"`
	Font       string `mapstructure:"font"`
	Title      string `mapstructure:"title"`
	Lines      int    `mapstructure:"lines"`
	Monitor    int    `mapstructure:"monitor"`
	IgnoreCase bool   `mapstructure:"ignore_case"`
}

// Default returns the embedded default configuration file.
func Default() []byte { return bytes.Clone(defaultTOML) }

// SetDefaults registers every key of the default file as a viper default.
func SetDefaults(v *viper.Viper) error {
	d := viper.New()
	d.SetConfigType("toml")
	if err := d.ReadConfig(bytes.NewReader(defaultTOML)); err != nil {
		return fmt.Errorf("default config: %w", err)
	}
	for _, k := range d.AllKeys() {
		v.SetDefault(k, d.Get(k))
	}
	return nil
}

// Prepare sets defaults, the config file search order and WAYCLIP_* env
// lookup on v, then reads the config file if one exists.
//
// Precedence (lowest → highest): defaults → config file → WAYCLIP_* env vars → flags
func Prepare(v *viper.Viper, configFile string) error {
	if err := SetDefaults(v); err != nil {
		return err
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(Name)
		v.SetConfigType("toml")
		v.AddConfigPath(filepath.Join("/etc", Name))
		v.AddConfigPath(Dir())
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("config: %w", err)
		}
	}

	v.SetEnvPrefix(strings.ToUpper(Name))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return nil
}

// Load decodes and validates the snapshot from v.
func Load(v *viper.Viper) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &c, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.General.MaxHistory < 0:
		return fmt.Errorf("general.max_history must be >= 0, got %d", c.General.MaxHistory)
	case c.General.Picker != "dmenu" && c.General.Picker != "tui":
		return fmt.Errorf("general.picker must be dmenu or tui, got %q", c.General.Picker)
	case c.General.RoundtripTimeout <= 0:
		return errors.New("general.roundtrip_timeout must be positive")
	case c.General.TransferTimeout <= 0:
		return errors.New("general.transfer_timeout must be positive")
	case c.General.MaxPayload < 0:
		return errors.New("general.max_payload must be >= 0")
	case c.Data.Mime == "":
		return errors.New("data.mime must not be empty")
	case c.Menu.Command == "" && c.General.Picker == "dmenu":
		return errors.New("menu.command must not be empty")
	}
	return nil
}

// Dir is the user config directory.
func Dir() string { return filepath.Join(xdg.ConfigHome, Name) }

// File is the user config file written on first start.
func File() string { return filepath.Join(Dir(), Name+".toml") }

// DataDir holds the history blob and the daemon log.
func DataDir() string { return filepath.Join(xdg.DataHome, Name) }

// HistoryPath is the history blob.
func HistoryPath() string { return filepath.Join(DataDir(), "history") }

// SeedPath is the encryption key seed, kept next to the config.
func SeedPath() string { return filepath.Join(Dir(), "seed") }

// LogPath is the default daemon log file.
func LogPath() string { return filepath.Join(DataDir(), Name+".log") }

// WriteDefault writes the default configuration to path unless a file is
// already there. It reports whether it wrote.
func WriteDefault(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return false, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return false, err
	}
	if err := renameio.WriteFile(path, defaultTOML, 0o600); err != nil {
		return false, fmt.Errorf("write default config: %w", err)
	}
	return true, nil
}
