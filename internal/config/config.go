package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/muurk/qcdiag/internal/logging"
	"github.com/muurk/qcdiag/internal/transport"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	appName    = "qcdiag"
	configFile = "config.yaml"
	envPrefix  = "QCDIAG"
)

// Mutex for file writes
var fileMutex sync.Mutex

// GetConfigDir returns the OS-appropriate configuration directory for the application.
//   - Linux: $XDG_CONFIG_HOME/qcdiag or $HOME/.config/qcdiag
//   - macOS: $HOME/.config/qcdiag
//   - Windows: %LOCALAPPDATA%\qcdiag
func GetConfigDir() (string, error) {
	switch runtime.GOOS {
	case "windows":
		if dir := os.Getenv("LOCALAPPDATA"); dir != "" {
			return filepath.Join(dir, appName), nil
		}
		profile := os.Getenv("USERPROFILE")
		if profile == "" {
			return "", fmt.Errorf("cannot determine user profile directory (LOCALAPPDATA and USERPROFILE not set)")
		}
		return filepath.Join(profile, "AppData", "Local", appName), nil

	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		return filepath.Join(home, ".config", appName), nil

	default:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, appName), nil
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		return filepath.Join(home, ".config", appName), nil
	}
}

// GetConfigPath returns the full path to the configuration file.
func GetConfigPath() (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFile), nil
}

// NewViper returns a viper instance with defaults and environment binding
// set up. Callers bind flags into it before calling Load.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	d := Default()
	v.SetDefault("version", d.Version)
	v.SetDefault("transport.kind", d.Transport.Kind)
	v.SetDefault("serial.port", d.Serial.Port)
	v.SetDefault("serial.baud", d.Serial.Baud)
	v.SetDefault("serial.rts", d.Serial.RTS)
	v.SetDefault("usb.devices", d.USB.Devices)
	v.SetDefault("relay.address", "")
	v.SetDefault("timeouts.response", d.Timeouts.Response)
	v.SetDefault("nv.catalog", "")
	v.SetDefault("log.level", "")
	return v
}

// Load reads the configuration. path may be empty to use the default
// location; a missing file means defaults.
func Load(v *viper.Viper, path string) (*Config, error) {
	if v == nil {
		v = NewViper()
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		dir, err := GetConfigDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get config directory: %w", err)
		}
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail later at connect time.
func (c *Config) Validate() error {
	if c.Version != CurrentVersion {
		return fmt.Errorf("unsupported config version: %d (expected %d)", c.Version, CurrentVersion)
	}
	switch transport.Kind(c.Transport.Kind) {
	case transport.KindUSB, transport.KindSerial:
	case transport.KindRelay:
		if c.Relay.Address == "" {
			return fmt.Errorf("transport.kind is relay but relay.address is empty")
		}
	default:
		return fmt.Errorf("unknown transport.kind %q (want usb, serial or relay)", c.Transport.Kind)
	}
	if c.Serial.Baud <= 0 {
		return fmt.Errorf("serial.baud must be positive, got %d", c.Serial.Baud)
	}
	if c.Timeouts.Response <= 0 {
		return fmt.Errorf("timeouts.response must be positive, got %s", c.Timeouts.Response)
	}
	if c.Log.Level != "" {
		if _, err := logging.ParseLevel(c.Log.Level); err != nil {
			return fmt.Errorf("log.level: %w (want debug, info, warn or error)", err)
		}
	}
	return nil
}

// Save writes cfg to path, or to the default location when path is empty.
// The file is written to a temporary name and renamed into place.
func Save(cfg *Config, path string) (string, error) {
	fileMutex.Lock()
	defer fileMutex.Unlock()

	if path == "" {
		p, err := GetConfigPath()
		if err != nil {
			return "", fmt.Errorf("failed to get config path: %w", err)
		}
		path = p
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# qcdiag configuration file
#
# Every key can be overridden with a QCDIAG_ environment variable,
# e.g. QCDIAG_SERIAL_PORT=/dev/ttyUSB0, or with the matching flag.
#
# Location: ` + path + `

`)
	data = append(header, data...)

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write temporary config file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to save config file: %w", err)
	}
	return path, nil
}
