package app

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/vk/minemods/internal/hostsettings"
	"github.com/vk/minemods/internal/mods"
	"github.com/vk/minemods/internal/modsettings"
)

// Settings backends.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// Config holds all the necessary configuration for an App instance to run.
// Relative paths are resolved against Root.
type Config struct {
	// Root is the game directory. Its assets/ folder holds the base game
	// assets, registered under the core namespace.
	Root        string   `env:"MINEMODS_ROOT"         envDefault:"."`
	SearchPaths []string `env:"MINEMODS_SEARCH_PATHS" envSeparator:","`

	SettingsBackend string `env:"MINEMODS_SETTINGS_BACKEND"  envDefault:"json"`
	SettingsPath    string `env:"MINEMODS_SETTINGS_PATH"`
	ModSettingsPath string `env:"MINEMODS_MOD_SETTINGS_PATH"`
	// EnableModLoader is the master toggle used until the user saves one.
	EnableModLoader bool `env:"MINEMODS_ENABLE_MOD_LOADER" envDefault:"true"`

	DiscoveryTTL  time.Duration `env:"MINEMODS_DISCOVERY_TTL"  envDefault:"10m"`
	MaxModsLoaded int           `env:"MINEMODS_MAX_MODS"       envDefault:"50"`
	MaxAssetSize  int64         `env:"MINEMODS_MAX_ASSET_SIZE" envDefault:"52428800"`

	StatusPort    int    `env:"MINEMODS_STATUS_PORT"`
	RelayURL      string `env:"MINEMODS_RELAY_URL"`
	RelayNS       string `env:"MINEMODS_RELAY_NAMESPACE" envDefault:"/"`
	RelayInsecure bool   `env:"MINEMODS_RELAY_INSECURE"`

	LogFormat string `env:"MINEMODS_LOG_FORMAT" envDefault:"text"`
	LogLevel  string `env:"MINEMODS_LOG_LEVEL"  envDefault:"info"`
}

// LoadConfig returns a Config populated from MINEMODS_* environment variables
// and their defaults. The result still has to pass NewConfig.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// NewConfig validates cfg and fills in derived defaults.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.Root == "" {
		cfg.Root = "."
	}

	cfg.LogFormat = strings.ToLower(cfg.LogFormat)
	switch cfg.LogFormat {
	case "":
		cfg.LogFormat = "text"
	case "text", "json":
	default:
		return nil, fmt.Errorf("invalid log format %q: must be 'text' or 'json'", cfg.LogFormat)
	}

	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	switch cfg.LogLevel {
	case "":
		cfg.LogLevel = "info"
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("invalid log level %q: must be 'debug', 'info', 'warn', or 'error'", cfg.LogLevel)
	}

	cfg.SettingsBackend = strings.ToLower(cfg.SettingsBackend)
	switch cfg.SettingsBackend {
	case "", BackendJSON:
		cfg.SettingsBackend = BackendJSON
		if cfg.SettingsPath == "" {
			cfg.SettingsPath = hostsettings.DefaultPath
		}
	case BackendSQLite:
		if cfg.SettingsPath == "" {
			cfg.SettingsPath = "config/user_settings.db"
		}
	default:
		return nil, fmt.Errorf("invalid settings backend %q: must be 'json' or 'sqlite'", cfg.SettingsBackend)
	}
	if cfg.ModSettingsPath == "" {
		cfg.ModSettingsPath = modsettings.DefaultPath
	}

	if cfg.StatusPort < 0 || cfg.StatusPort > 65535 {
		return nil, fmt.Errorf("invalid status port %d", cfg.StatusPort)
	}
	if cfg.MaxModsLoaded < 0 {
		return nil, errors.New("max mods loaded cannot be negative")
	}
	if cfg.MaxAssetSize < 0 {
		return nil, errors.New("max asset size cannot be negative")
	}

	return &cfg, nil
}

// resolve joins a relative path onto Root.
func (c *Config) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Root, p)
}

// searchPaths returns the mod search directories resolved against Root.
func (c *Config) searchPaths() []string {
	paths := c.SearchPaths
	if len(paths) == 0 {
		paths = mods.DefaultSearchPaths
	}
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, c.resolve(p))
		}
	}
	return out
}
