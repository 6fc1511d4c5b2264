package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func resetConfig(t *testing.T) {
	t.Helper()
	viper.Reset()
	SetConfigPath("")
	Set(nil)
	t.Cleanup(func() {
		viper.Reset()
		SetConfigPath("")
		Set(nil)
	})
}

func TestInit(t *testing.T) {
	t.Run("initializes with defaults when no config exists", func(t *testing.T) {
		resetConfig(t)
		t.Setenv("XDG_CONFIG_HOME", t.TempDir())
		wd, err := os.Getwd()
		if err != nil {
			t.Fatal(err)
		}
		if err := os.Chdir(t.TempDir()); err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { _ = os.Chdir(wd) })

		if err := Init(); err != nil {
			t.Fatalf("Init() failed: %v", err)
		}

		config := Get()
		if !config.Portal.Enabled {
			t.Error("Expected portal to be enabled by default")
		}
		if config.Portal.Variant != "remote-desktop" {
			t.Errorf("Expected default variant remote-desktop, got %s", config.Portal.Variant)
		}
		if config.Portal.RetryDelay() != time.Second {
			t.Errorf("Expected 1s retry delay, got %s", config.Portal.RetryDelay())
		}
		if config.Portal.FallbackSocketEnv != "LIBEI_SOCKET" {
			t.Errorf("Expected LIBEI_SOCKET fallback, got %s", config.Portal.FallbackSocketEnv)
		}
		if config.EI.ClientName != "eiscreen client" {
			t.Errorf("Expected default client name, got %s", config.EI.ClientName)
		}
	})

	t.Run("reads values from the override path", func(t *testing.T) {
		resetConfig(t)
		path := filepath.Join(t.TempDir(), "custom.toml")
		content := `[portal]
variant = "input-capture"
retry_delay_ms = 250

[keymap]
layout = "de"
variant = "nodeadkeys"

[logging]
log_level = "debug"
`
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
		SetConfigPath(path)

		if err := Init(); err != nil {
			t.Fatalf("Init() failed: %v", err)
		}

		config := Get()
		if config.Portal.Variant != "input-capture" {
			t.Errorf("variant = %s", config.Portal.Variant)
		}
		if config.Portal.RetryDelay() != 250*time.Millisecond {
			t.Errorf("retry delay = %s", config.Portal.RetryDelay())
		}
		if !config.Portal.Enabled {
			t.Error("unset keys should keep their defaults")
		}
		if config.Keymap.Layout != "de" || config.Keymap.Variant != "nodeadkeys" {
			t.Errorf("keymap = %+v", config.Keymap)
		}
		if config.Logging.LogLevel != "debug" {
			t.Errorf("log level = %s", config.Logging.LogLevel)
		}
	})

	t.Run("missing override file uses defaults", func(t *testing.T) {
		resetConfig(t)
		SetConfigPath(filepath.Join(t.TempDir(), "absent.toml"))

		if err := Init(); err != nil {
			t.Fatalf("Init() failed: %v", err)
		}
		if Get().Portal.Variant != "remote-desktop" {
			t.Errorf("variant = %s", Get().Portal.Variant)
		}
	})

	t.Run("handles invalid TOML gracefully", func(t *testing.T) {
		resetConfig(t)
		path := filepath.Join(t.TempDir(), "eiscreen.toml")
		if err := os.WriteFile(path, []byte("[portal\nenabled = true"), 0644); err != nil {
			t.Fatal(err)
		}
		SetConfigPath(path)

		err := Init()
		if err == nil {
			t.Fatal("Init() should fail on invalid TOML")
		}
		if !strings.Contains(err.Error(), "error reading config file") {
			t.Errorf("Expected read error, got: %v", err)
		}
	})
}

func TestConfigPathResolution(t *testing.T) {
	t.Run("override wins", func(t *testing.T) {
		resetConfig(t)
		SetConfigPath("/srv/eiscreen.toml")
		if got := GetConfigPath(); got != "/srv/eiscreen.toml" {
			t.Errorf("GetConfigPath() = %s", got)
		}
	})

	t.Run("XDG config home", func(t *testing.T) {
		resetConfig(t)
		t.Setenv("XDG_CONFIG_HOME", "/home/testuser/.xdg")
		if got := GetConfigPath(); got != "/home/testuser/.xdg/eiscreen/eiscreen.toml" {
			t.Errorf("GetConfigPath() = %s", got)
		}
	})

	t.Run("home directory", func(t *testing.T) {
		resetConfig(t)
		t.Setenv("XDG_CONFIG_HOME", "")
		t.Setenv("HOME", "/home/testuser")
		if got := GetConfigPath(); got != "/home/testuser/.config/eiscreen/eiscreen.toml" {
			t.Errorf("GetConfigPath() = %s", got)
		}
	})
}

func TestWriteFileIsReadableByInit(t *testing.T) {
	resetConfig(t)
	path := filepath.Join(t.TempDir(), "nested", "eiscreen.toml")

	want := DefaultConfig
	want.Portal.Variant = "input-capture"
	want.EI.Socket = "/run/user/1000/eis-0"
	want.IPC.SocketPath = "/tmp/custom.sock"
	if err := WriteFile(path, &want); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "[portal]") || !strings.Contains(string(data), "retry_delay_ms = 1000") {
		t.Errorf("unexpected file contents:\n%s", data)
	}

	SetConfigPath(path)
	if err := Init(); err != nil {
		t.Fatalf("Init() failed: %v", err)
	}
	if got := *Get(); got != want {
		t.Errorf("Get() = %+v, want %+v", got, want)
	}
}

func TestWatchReloads(t *testing.T) {
	resetConfig(t)
	path := filepath.Join(t.TempDir(), "eiscreen.toml")
	if err := WriteFile(path, &DefaultConfig); err != nil {
		t.Fatal(err)
	}
	SetConfigPath(path)
	if err := Init(); err != nil {
		t.Fatalf("Init() failed: %v", err)
	}

	changed := make(chan *Config, 4)
	Watch(func(c *Config, err error) {
		if err == nil {
			changed <- c
		}
	})

	next := DefaultConfig
	next.Logging.LogLevel = "debug"
	if err := WriteFile(path, &next); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(3 * time.Second)
	for {
		select {
		case c := <-changed:
			if c.Logging.LogLevel == "debug" {
				if Get().Logging.LogLevel != "debug" {
					t.Error("Get() not updated after reload")
				}
				return
			}
		case <-deadline:
			t.Fatal("config change was not observed")
		}
	}
}

func TestGetReturnsDefaultsCopy(t *testing.T) {
	resetConfig(t)
	c := Get()
	c.Portal.Variant = "changed"
	if DefaultConfig.Portal.Variant != "remote-desktop" {
		t.Error("Get() exposed DefaultConfig")
	}
}
