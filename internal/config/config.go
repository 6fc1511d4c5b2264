// Package config handles configuration management using Viper
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	// Portal negotiation
	Portal PortalConfig `mapstructure:"portal" toml:"portal"`

	// EIS connection
	EI EIConfig `mapstructure:"ei" toml:"ei"`

	// Default keyboard layout, used when a device has no keymap
	Keymap KeymapConfig `mapstructure:"keymap" toml:"keymap"`

	// Local control socket
	IPC IPCConfig `mapstructure:"ipc" toml:"ipc"`

	// Logging configuration
	Logging LoggingConfig `mapstructure:"logging" toml:"logging"`
}

// PortalConfig contains portal negotiation settings
type PortalConfig struct {
	Enabled           bool   `mapstructure:"enabled" toml:"enabled"`                         // false connects straight to the EIS socket
	Variant           string `mapstructure:"variant" toml:"variant"`                         // "remote-desktop" or "input-capture"
	RetryDelayMS      int    `mapstructure:"retry_delay_ms" toml:"retry_delay_ms"`           // Re-enable delay after the compositor disabled capture
	FallbackSocketEnv string `mapstructure:"fallback_socket_env" toml:"fallback_socket_env"` // Variable naming the fallback EIS socket
}

// RetryDelay returns the re-enable delay as a duration.
func (p PortalConfig) RetryDelay() time.Duration {
	return time.Duration(p.RetryDelayMS) * time.Millisecond
}

// EIConfig contains EIS client settings
type EIConfig struct {
	ClientName string `mapstructure:"client_name" toml:"client_name"`
	Socket     string `mapstructure:"socket" toml:"socket"` // Direct mode socket, empty uses $LIBEI_SOCKET
}

// KeymapConfig names the XKB layout compiled when a keyboard has no keymap.
// Empty fields use the libxkbcommon defaults and XKB_DEFAULT_* variables.
type KeymapConfig struct {
	Rules   string `mapstructure:"rules" toml:"rules"`
	Model   string `mapstructure:"model" toml:"model"`
	Layout  string `mapstructure:"layout" toml:"layout"`
	Variant string `mapstructure:"variant" toml:"variant"`
	Options string `mapstructure:"options" toml:"options"`
}

// IPCConfig contains control socket settings
type IPCConfig struct {
	SocketPath string `mapstructure:"socket_path" toml:"socket_path"` // Empty uses $XDG_RUNTIME_DIR/eiscreen.sock
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	FileLogging bool   `mapstructure:"file_logging" toml:"file_logging"` // Enable/disable file logging
	LogLevel    string `mapstructure:"log_level" toml:"log_level"`       // Override LOG_LEVEL env var
}

var (
	// DefaultConfig provides sensible defaults
	DefaultConfig = Config{
		Portal: PortalConfig{
			Enabled:           true,
			Variant:           "remote-desktop",
			RetryDelayMS:      1000,
			FallbackSocketEnv: "LIBEI_SOCKET",
		},
		EI: EIConfig{
			ClientName: "eiscreen client",
		},
		Logging: LoggingConfig{
			FileLogging: false,
			LogLevel:    "", // Empty means use LOG_LEVEL env var
		},
	}

	mu sync.RWMutex

	// Global config instance
	cfg *Config

	// Override config path if set
	configPathOverride string
)

// SetConfigPath allows overriding the config path
func SetConfigPath(path string) {
	configPathOverride = path
}

// Init initializes the configuration system
func Init() error {
	viper.SetConfigName("eiscreen")
	viper.SetConfigType("toml")

	if configPathOverride != "" {
		viper.SetConfigFile(configPathOverride)
	} else {
		viper.AddConfigPath(userConfigDir())
		viper.AddConfigPath(".") // Current directory (lowest priority)
	}

	// Set defaults - need to set individual fields for proper merging
	viper.SetDefault("portal.enabled", DefaultConfig.Portal.Enabled)
	viper.SetDefault("portal.variant", DefaultConfig.Portal.Variant)
	viper.SetDefault("portal.retry_delay_ms", DefaultConfig.Portal.RetryDelayMS)
	viper.SetDefault("portal.fallback_socket_env", DefaultConfig.Portal.FallbackSocketEnv)

	viper.SetDefault("ei.client_name", DefaultConfig.EI.ClientName)
	viper.SetDefault("ei.socket", DefaultConfig.EI.Socket)

	viper.SetDefault("keymap.rules", DefaultConfig.Keymap.Rules)
	viper.SetDefault("keymap.model", DefaultConfig.Keymap.Model)
	viper.SetDefault("keymap.layout", DefaultConfig.Keymap.Layout)
	viper.SetDefault("keymap.variant", DefaultConfig.Keymap.Variant)
	viper.SetDefault("keymap.options", DefaultConfig.Keymap.Options)

	viper.SetDefault("ipc.socket_path", DefaultConfig.IPC.SocketPath)

	viper.SetDefault("logging.file_logging", DefaultConfig.Logging.FileLogging)
	viper.SetDefault("logging.log_level", DefaultConfig.Logging.LogLevel)

	// Read config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found, use defaults
	}

	next := &Config{}
	if err := viper.Unmarshal(next); err != nil {
		return fmt.Errorf("unable to unmarshal config: %w", err)
	}
	Set(next)

	return nil
}

// Watch reloads the configuration when the file changes and passes the
// new value to onChange. It does nothing if no file was loaded.
func Watch(onChange func(*Config, error)) {
	if viper.ConfigFileUsed() == "" {
		return
	}

	viper.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		next := &Config{}
		if err := viper.Unmarshal(next); err != nil {
			onChange(nil, fmt.Errorf("unable to unmarshal config: %w", err))
			return
		}
		Set(next)
		onChange(next, nil)
	})
	viper.WatchConfig()
}

// Get returns the current configuration
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	if cfg == nil {
		// Return defaults if not initialized
		d := DefaultConfig
		return &d
	}
	return cfg
}

// Set sets the current configuration
func Set(c *Config) {
	mu.Lock()
	cfg = c
	mu.Unlock()
}

// WriteFile writes c as TOML to path, creating the directory if needed.
func WriteFile(path string, c *Config) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0640); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// GetConfigPath returns the path to the config file
func GetConfigPath() string {
	if configPathOverride != "" {
		return configPathOverride
	}

	// Check if config file is already loaded
	if used := viper.ConfigFileUsed(); used != "" {
		return used
	}

	return filepath.Join(userConfigDir(), "eiscreen.toml")
}

func userConfigDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "eiscreen")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".config", "eiscreen")
	}
	return filepath.Join(home, ".config", "eiscreen")
}
