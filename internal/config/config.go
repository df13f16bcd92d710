package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
)

// LocalConfigName is the project-local config file searched for upwards from the working directory
const LocalConfigName = ".vm-sentinel.toml"

// Oracle providers
const (
	ProviderClaude    = "claude"
	ProviderAnthropic = "anthropic"
	ProviderLocal     = "local"
)

// Config holds all application configuration
type Config struct {
	General       GeneralConfig       `toml:"general"`
	Oracle        OracleConfig        `toml:"oracle"`
	Notifications NotificationsConfig `toml:"notifications"`
	Web           WebConfig           `toml:"web"`
	Log           LogConfig           `toml:"log"`
}

// GeneralConfig holds general settings
type GeneralConfig struct {
	ProjectRoot string `toml:"project_root"`
	// SeedPath is the inventory file loaded at startup. Empty selects the built-in inventory.
	SeedPath string `toml:"seed_path"`
}

// OracleConfig selects and tunes the scoring oracle
type OracleConfig struct {
	Provider       string `toml:"provider"`
	Command        string `toml:"command"`
	Model          string `toml:"model"`
	MaxTokens      int    `toml:"max_tokens"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	BaseURL        string `toml:"base_url"`
	APIKeyEnv      string `toml:"api_key_env"`
	PromptsDir     string `toml:"prompts_dir"`
}

// NotificationsConfig holds notification settings
type NotificationsConfig struct {
	Desktop      bool   `toml:"desktop"`
	SlackWebhook string `toml:"slack_webhook"`
}

// WebConfig holds HTTP API settings
type WebConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level string `toml:"level"`
	JSON  bool   `toml:"json"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	return &Config{
		Oracle: OracleConfig{
			Provider:       ProviderLocal,
			Command:        "claude",
			Model:          "claude-sonnet-4-20250514",
			MaxTokens:      1024,
			TimeoutSeconds: 60,
			BaseURL:        "https://api.anthropic.com",
			APIKeyEnv:      "ANTHROPIC_API_KEY",
		},
		Notifications: NotificationsConfig{
			Desktop: false,
		},
		Web: WebConfig{
			Port: 8080,
			Host: "127.0.0.1",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration from a TOML file, falling back to defaults
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parse %s", path)
	}

	cfg.General.ProjectRoot = ExpandPath(cfg.General.ProjectRoot)
	cfg.General.SeedPath = ExpandPath(cfg.General.SeedPath)
	cfg.Oracle.Command = ExpandPath(cfg.Oracle.Command)
	cfg.Oracle.PromptsDir = ExpandPath(cfg.Oracle.PromptsDir)

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

// LoadWithLocalFallback loads path if given, otherwise the nearest
// LocalConfigName, otherwise DefaultConfigPath.
func LoadWithLocalFallback(path string) (*Config, error) {
	if path != "" {
		return Load(path)
	}
	if local := FindLocalConfig(); local != "" {
		return Load(local)
	}
	return Load(DefaultConfigPath())
}

// Validate rejects settings the oracle factory cannot act on
func (c *Config) Validate() error {
	switch c.Oracle.Provider {
	case ProviderClaude, ProviderAnthropic, ProviderLocal:
	default:
		return errors.Errorf("oracle.provider %q: want %s, %s or %s",
			c.Oracle.Provider, ProviderClaude, ProviderAnthropic, ProviderLocal)
	}
	if c.Oracle.TimeoutSeconds < 0 {
		return errors.New("oracle.timeout_seconds must not be negative")
	}
	if c.Web.Port < 0 || c.Web.Port > 65535 {
		return errors.Errorf("web.port %d out of range", c.Web.Port)
	}
	return nil
}

// ExpandPath expands ~ to the user's home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultConfigPath returns the default config file location
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "vm-sentinel", "config.toml")
}

// FindLocalConfig walks up from the working directory looking for LocalConfigName.
// Returns "" when none is found.
func FindLocalConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, LocalConfigName)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
