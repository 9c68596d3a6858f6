// Package config provides YAML-based configuration for the kiosk console.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Storage backends.
const (
	BackendFile   = "file"
	BackendDuckDB = "duckdb"
)

// AppConfig is the root of kiosk-console.yaml.
type AppConfig struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Device  DeviceConfig  `yaml:"device"`
	Log     LogConfig     `yaml:"log"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port         int    `yaml:"port"`
	BindAddress  string `yaml:"bind_address"`
	EnableCORS   bool   `yaml:"enable_cors"`
	AllowOrigins string `yaml:"allow_origins"`
	ReadTimeout  int    `yaml:"read_timeout_seconds"`
	WriteTimeout int    `yaml:"write_timeout_seconds"`
	IdleTimeout  int    `yaml:"idle_timeout_seconds"`
	BodyLimit    string `yaml:"body_limit"`
	// SessionTimeoutMinutes closes dashboards nobody has looked at.
	SessionTimeoutMinutes int `yaml:"session_timeout_minutes"`
}

// StorageConfig contains persistence settings.
type StorageConfig struct {
	DataDirectory string `yaml:"data_directory"`
	Backend       string `yaml:"backend"`
	DuckDBFile    string `yaml:"duckdb_file"`
	SnapshotLimit int    `yaml:"snapshot_limit"`
}

// DeviceConfig describes how the console reaches devices.
type DeviceConfig struct {
	WebSocketURL        string `yaml:"websocket_url"`
	WriteTimeoutSeconds int    `yaml:"write_timeout_seconds"`
	ReconnectSeconds    int    `yaml:"reconnect_seconds"`
	BinaryFrames        bool   `yaml:"binary_frames"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level                string `yaml:"level"`
	EnableRequestLogging bool   `yaml:"enable_request_logging"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:                  8090,
			BindAddress:           "0.0.0.0",
			EnableCORS:            true,
			AllowOrigins:          "*",
			ReadTimeout:           30,
			WriteTimeout:          30,
			IdleTimeout:           120,
			BodyLimit:             "4M",
			SessionTimeoutMinutes: 30,
		},
		Storage: StorageConfig{
			DataDirectory: "./data",
			Backend:       BackendFile,
			DuckDBFile:    "console.duckdb",
			SnapshotLimit: 500,
		},
		Device: DeviceConfig{
			WebSocketURL:        "wss://localhost:8000",
			WriteTimeoutSeconds: 10,
			ReconnectSeconds:    5,
			BinaryFrames:        false,
		},
		Log: LogConfig{
			Level:                "info",
			EnableRequestLogging: true,
		},
	}
}

// LoadConfig reads configPath, writing the defaults there first if the file
// does not exist yet.
func LoadConfig(configPath string) (*AppConfig, error) {
	config := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	} else {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	config.applyEnvironmentOverrides()
	config.resolvePaths(filepath.Dir(configPath))

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Save writes the configuration as YAML.
func (c *AppConfig) Save(configPath string) error {
	output, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte("# Kiosk console configuration\n# This file is auto-generated on first run\n\n")
	if err := os.WriteFile(configPath, append(header, output...), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate rejects settings the server cannot start with.
func (c *AppConfig) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	switch c.Storage.Backend {
	case BackendFile, BackendDuckDB:
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if !strings.HasPrefix(c.Device.WebSocketURL, "ws://") && !strings.HasPrefix(c.Device.WebSocketURL, "wss://") {
		return fmt.Errorf("device websocket url must start with ws:// or wss://, got %q", c.Device.WebSocketURL)
	}
	return nil
}

func (c *AppConfig) applyEnvironmentOverrides() {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}
	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		c.Storage.DataDirectory = dataDir
	}
	if url := os.Getenv("DEVICE_WS_URL"); url != "" {
		c.Device.WebSocketURL = url
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
}

// resolvePaths converts relative paths to absolute based on the config file location.
func (c *AppConfig) resolvePaths(configDir string) {
	if !filepath.IsAbs(c.Storage.DataDirectory) {
		c.Storage.DataDirectory = filepath.Join(configDir, c.Storage.DataDirectory)
	}
	if !filepath.IsAbs(c.Storage.DuckDBFile) {
		c.Storage.DuckDBFile = filepath.Join(c.Storage.DataDirectory, c.Storage.DuckDBFile)
	}
}

// ConfigDirectory is where per-device layout files live.
func (c *AppConfig) ConfigDirectory() string {
	return filepath.Join(c.Storage.DataDirectory, "ui_configs")
}

// GetServerAddr returns the server bind address.
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// EnsureDirectories creates all necessary directories.
func (c *AppConfig) EnsureDirectories() error {
	for _, dir := range []string{c.Storage.DataDirectory, c.ConfigDirectory()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
