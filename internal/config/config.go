package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration settings
type Config struct {
	// Deployment mode override; empty means detect
	Mode string `yaml:"mode" mapstructure:"mode"`

	Backend  BackendConfig  `yaml:"backend" mapstructure:"backend"`
	Callback CallbackConfig `yaml:"callback" mapstructure:"callback"`
	Channel  ChannelConfig  `yaml:"channel" mapstructure:"channel"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// BackendConfig points at the agent service
type BackendConfig struct {
	// URL is the websocket endpoint turns stream over
	URL string `yaml:"url" mapstructure:"url"`
	// APIBase serves the OAuth authorize endpoint
	APIBase string `yaml:"api_base" mapstructure:"api_base"`
	// Token and UserID normally live in the keychain
	Token  string `yaml:"token" mapstructure:"token"`
	UserID string `yaml:"user_id" mapstructure:"user_id"`
}

type CallbackConfig struct {
	Addr        string        `yaml:"addr" mapstructure:"addr"`
	HoldTimeout time.Duration `yaml:"hold_timeout" mapstructure:"hold_timeout"`
}

type ChannelConfig struct {
	ReconnectInterval time.Duration `yaml:"reconnect_interval" mapstructure:"reconnect_interval"`
	WriteTimeout      time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
}

type LogConfig struct {
	Level string `yaml:"level" mapstructure:"level"`
	// Dir receives one timestamped log file per run; empty disables file logging
	Dir   string `yaml:"dir" mapstructure:"dir"`
	JSON  bool   `yaml:"json" mapstructure:"json"`
}

// Default returns default configuration
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Backend: BackendConfig{
			URL:     "ws://localhost:8080/ws/chat",
			APIBase: "http://localhost:8080/api",
		},
		Callback: CallbackConfig{
			Addr:        "127.0.0.1:0",
			HoldTimeout: 2 * time.Minute,
		},
		Channel: ChannelConfig{
			ReconnectInterval: 2 * time.Second,
			WriteTimeout:      10 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
			Dir:   filepath.Join(homeDir, ".pipepilot", "logs"),
		},
	}
}

// Load loads configuration from file, .env files, the environment and the
// keychain, in increasing order of precedence (keychain only fills secrets
// nothing else set)
func Load(path string) (*Config, error) {
	loadEnvFiles()

	v := viper.New()
	v.SetConfigType("yaml")

	cfg := Default()
	v.SetDefault("mode", cfg.Mode)
	v.SetDefault("backend.url", cfg.Backend.URL)
	v.SetDefault("backend.api_base", cfg.Backend.APIBase)
	v.SetDefault("callback.addr", cfg.Callback.Addr)
	v.SetDefault("callback.hold_timeout", cfg.Callback.HoldTimeout)
	v.SetDefault("channel.reconnect_interval", cfg.Channel.ReconnectInterval)
	v.SetDefault("channel.write_timeout", cfg.Channel.WriteTimeout)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.dir", cfg.Log.Dir)
	v.SetDefault("log.json", cfg.Log.JSON)

	v.SetEnvPrefix("PILOT")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".pipepilot")
		v.AddConfigPath(".")
		homeDir, _ := os.UserHomeDir()
		v.AddConfigPath(filepath.Join(homeDir, ".pipepilot"))
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvOverrides(cfg, NewKeyringManager())

	return cfg, nil
}

// loadEnvFiles loads .env files in order of precedence. godotenv never
// overwrites a variable that is already set, so the first file wins.
func loadEnvFiles() {
	for _, file := range []string{".env.local", ".env"} {
		if _, err := os.Stat(file); err == nil {
			_ = godotenv.Load(file)
		}
	}

	homeDir, _ := os.UserHomeDir()
	homeEnvFile := filepath.Join(homeDir, ".pipepilot", ".env")
	if _, err := os.Stat(homeEnvFile); err == nil {
		_ = godotenv.Load(homeEnvFile)
	}
}

// secretStore is the part of KeyringManager overrides need
type secretStore interface {
	IsAvailable() bool
	GetToken() (string, error)
	GetUserID() (string, error)
}

// applyEnvOverrides applies environment variable overrides to config.
// Precedence for secrets: env var, then config file, then keychain.
func applyEnvOverrides(cfg *Config, secrets secretStore) {
	cfg.Mode = GetString("PILOT_MODE", cfg.Mode)

	cfg.Backend.URL = GetString("PILOT_BACKEND_URL", cfg.Backend.URL)
	cfg.Backend.APIBase = GetString("PILOT_API_BASE", cfg.Backend.APIBase)
	cfg.Backend.Token = GetString("PILOT_TOKEN", cfg.Backend.Token)
	cfg.Backend.UserID = GetString("PILOT_USER_ID", cfg.Backend.UserID)

	if secrets != nil && (cfg.Backend.Token == "" || cfg.Backend.UserID == "") && secrets.IsAvailable() {
		if cfg.Backend.Token == "" {
			if token, err := secrets.GetToken(); err == nil {
				cfg.Backend.Token = token
			}
		}
		if cfg.Backend.UserID == "" {
			if id, err := secrets.GetUserID(); err == nil {
				cfg.Backend.UserID = id
			}
		}
	}

	cfg.Callback.Addr = GetString("PILOT_CALLBACK_ADDR", cfg.Callback.Addr)
	cfg.Callback.HoldTimeout = GetDuration("PILOT_CALLBACK_HOLD_TIMEOUT", cfg.Callback.HoldTimeout)

	cfg.Channel.ReconnectInterval = GetDuration("PILOT_RECONNECT_INTERVAL", cfg.Channel.ReconnectInterval)
	cfg.Channel.WriteTimeout = GetDuration("PILOT_WRITE_TIMEOUT", cfg.Channel.WriteTimeout)

	cfg.Log.Level = GetString("PILOT_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Dir = expandPath(GetString("PILOT_LOG_DIR", cfg.Log.Dir))
	cfg.Log.JSON = GetBool("PILOT_LOG_JSON", cfg.Log.JSON)
}

// expandPath expands ~ to home directory
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[1:])
	}
	return path
}

// Settings flattens the configuration into viper keys. Durations are
// written as strings so they read back the way users type them. The token
// is left out.
func (c *Config) Settings() map[string]any {
	return map[string]any{
		"mode":                       c.Mode,
		"backend.url":                c.Backend.URL,
		"backend.api_base":           c.Backend.APIBase,
		"backend.user_id":            c.Backend.UserID,
		"callback.addr":              c.Callback.Addr,
		"callback.hold_timeout":      c.Callback.HoldTimeout.String(),
		"channel.reconnect_interval": c.Channel.ReconnectInterval.String(),
		"channel.write_timeout":      c.Channel.WriteTimeout.String(),
		"log.level":                  c.Log.Level,
		"log.dir":                    c.Log.Dir,
		"log.json":                   c.Log.JSON,
	}
}

// Save saves configuration to file. The token is never written; it belongs
// in the keychain.
func (c *Config) Save(path string) error {
	v := viper.New()
	v.SetConfigType("yaml")
	for k, val := range c.Settings() {
		v.Set(k, val)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// ResolvedMode is the configured mode, or the detected one
func (c *Config) ResolvedMode() DeploymentMode {
	if m, ok := parseMode(c.Mode); ok {
		return m
	}
	return DetectMode()
}
