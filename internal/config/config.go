package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the application configuration
type Config struct {
	Server  ServerConfig  `toml:"server"`
	State   StateConfig   `toml:"state"`
	Library LibraryConfig `toml:"library"`
	Player  PlayerConfig  `toml:"player"`
	Logging LoggingConfig `toml:"logging"`
	Tunnel  TunnelConfig  `toml:"tunnel"`
}

// ServerConfig contains server-related configuration
type ServerConfig struct {
	Port        string `toml:"port"`
	Host        string `toml:"host"`
	EnableCORS  bool   `toml:"enable_cors"`
	ReadTimeout int    `toml:"read_timeout_seconds"`

	// PasswordHash, when set, is a bcrypt hash required from clients on
	// every API request.
	PasswordHash string `toml:"password_hash"`
}

// StateConfig locates the persisted player state database
type StateConfig struct {
	Path string `toml:"path"`
}

// LibraryConfig contains media library configuration
type LibraryConfig struct {
	Path            string `toml:"path"`
	WatchForChanges bool   `toml:"watch_for_changes"`
	ScanOnStartup   bool   `toml:"scan_on_startup"`
}

// PlayerConfig contains playback defaults applied to a fresh state
type PlayerConfig struct {
	DefaultVolume float64 `toml:"default_volume"`

	// PersistDebounceMS batches state saves so rapid operations (volume
	// drags, queue edits) do not hammer the store.
	PersistDebounceMS int `toml:"persist_debounce_ms"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	File   string `toml:"file"`
}

// TunnelConfig contains ngrok tunnel configuration
type TunnelConfig struct {
	Enabled   bool   `toml:"enabled"`
	AuthToken string `toml:"auth_token"`
	Domain    string `toml:"domain"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        "8080",
			Host:        "0.0.0.0",
			EnableCORS:  true,
			ReadTimeout: 30,
		},
		State: StateConfig{
			Path: "./tonewiki.db",
		},
		Library: LibraryConfig{
			Path:            "./media",
			WatchForChanges: true,
			ScanOnStartup:   true,
		},
		Player: PlayerConfig{
			DefaultVolume:     0.8,
			PersistDebounceMS: 500,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			File:   "",
		},
		Tunnel: TunnelConfig{
			Enabled:   false,
			AuthToken: "",
			Domain:    "",
		},
	}
}

// LoadConfig loads configuration from a TOML file, creating the file with
// defaults when it does not exist yet.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := cfg.SaveToFile(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config file: %w", err)
		}
		fmt.Printf("Created default configuration file at: %s\n", configPath)
		return cfg, nil
	}

	if _, err := toml.DecodeFile(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// SaveToFile saves the configuration to a TOML file
func (c *Config) SaveToFile(configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	header := `# Tonewiki Media Player Configuration
# This file contains all configuration options for the tonewiki playback server.
# Edit the values below to customize your settings.

`
	if _, err := file.WriteString(header); err != nil {
		return fmt.Errorf("failed to write config header: %w", err)
	}

	encoder := toml.NewEncoder(file)
	if err := encoder.Encode(c); err != nil {
		return fmt.Errorf("failed to encode config to TOML: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port cannot be empty")
	}
	if c.Server.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}
	if c.Server.ReadTimeout < 0 {
		return fmt.Errorf("server read timeout must be positive")
	}

	if c.State.Path == "" {
		return fmt.Errorf("state database path cannot be empty")
	}

	if c.Library.Path == "" {
		return fmt.Errorf("media library path cannot be empty")
	}

	if c.Player.DefaultVolume < 0 || c.Player.DefaultVolume > 1 {
		return fmt.Errorf("default volume must be between 0 and 1")
	}
	if c.Player.PersistDebounceMS < 0 {
		return fmt.Errorf("persist debounce must be positive")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"text": true, "json": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (must be text or json)", c.Logging.Format)
	}

	return nil
}

// GetAddress returns the full server address
func (c *Config) GetAddress() string {
	return c.Server.Host + ":" + c.Server.Port
}
