package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
)

// FileEnv names the environment variable holding an optional config file path.
const FileEnv = "COPPER_CONFIG"

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Logging   LogConfig       `yaml:"logging" toml:"logging"`
	RateLimit RateLimitConfig `yaml:"rateLimit" toml:"rateLimit"`
	Session   SessionConfig   `yaml:"session" toml:"session"`
	Node      NodeConfig      `yaml:"node" toml:"node"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         string `envconfig:"PORT" yaml:"port" toml:"port"`
	Host         string `envconfig:"HOST" yaml:"host" toml:"host"`
	RoutesPrefix string `envconfig:"ROUTES_PREFIX" yaml:"routesPrefix" toml:"routesPrefix"`
	BodyLimit    int64  `envconfig:"BODY_LIMIT" yaml:"bodyLimit" toml:"bodyLimit"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" yaml:"level" toml:"level"`
	Development bool   `envconfig:"LOG_DEV" yaml:"development" toml:"development"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" yaml:"requestsPerSecond" toml:"requestsPerSecond"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" yaml:"burst" toml:"burst"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" yaml:"enabled" toml:"enabled"`

	// GlobalRequestsPerSecond caps the whole node on top of the per-IP limit; 0 disables it
	GlobalRequestsPerSecond int `envconfig:"RATE_LIMIT_GLOBAL_RPS" yaml:"globalRequestsPerSecond" toml:"globalRequestsPerSecond"`
	GlobalBurst             int `envconfig:"RATE_LIMIT_GLOBAL_BURST" yaml:"globalBurst" toml:"globalBurst"`
}

// SessionConfig holds session registry configuration.
type SessionConfig struct {
	EnableW3CProtocol bool          `envconfig:"ENABLE_W3C_PROTOCOL" yaml:"enableW3CProtocol" toml:"enableW3CProtocol"`
	ExtensionsDir     string        `envconfig:"EXTENSIONS_DIR" yaml:"extensionsDir" toml:"extensionsDir"`
	Defaults          LaunchDefault `yaml:"defaultSessionOptions" toml:"defaultSessionOptions"`
}

// LaunchDefault holds the launch options applied when a request carries none.
type LaunchDefault struct {
	ChromePath         string   `envconfig:"CHROME_PATH" yaml:"chromePath" toml:"chromePath"`
	ChromeFlags        []string `envconfig:"CHROME_FLAGS" yaml:"chromeFlags" toml:"chromeFlags"`
	Headless           bool     `envconfig:"CHROME_HEADLESS" yaml:"headless" toml:"headless"`
	IgnoreDefaultFlags bool     `envconfig:"CHROME_IGNORE_DEFAULT_FLAGS" yaml:"ignoreDefaultFlags" toml:"ignoreDefaultFlags"`
	UserDataDir        string   `envconfig:"CHROME_USER_DATA_DIR" yaml:"userDataDir" toml:"userDataDir"`
	Port               int      `envconfig:"CHROME_PORT" yaml:"port" toml:"port"`
}

// NodeConfig holds hub registration configuration.
type NodeConfig struct {
	Enabled            bool     `envconfig:"NODE_ENABLED" yaml:"enabled" toml:"enabled"`
	Host               string   `envconfig:"NODE_HOST" yaml:"host" toml:"host"`
	HubHost            string   `envconfig:"HUB_HOST" yaml:"hubHost" toml:"hubHost"`
	HubPort            int      `envconfig:"HUB_PORT" yaml:"hubPort" toml:"hubPort"`
	RegisterRetries    int      `envconfig:"REGISTER_RETRIES" yaml:"registerRetries" toml:"registerRetries"`
	RegisterInterval   Duration `envconfig:"REGISTER_INTERVAL" yaml:"registerInterval" toml:"registerInterval"`
	DeregisterRetries  int      `envconfig:"DEREGISTER_RETRIES" yaml:"deregisterRetries" toml:"deregisterRetries"`
	DeregisterInterval Duration `envconfig:"DEREGISTER_INTERVAL" yaml:"deregisterInterval" toml:"deregisterInterval"`
}

// Duration is a time.Duration that decodes from strings such as "5s" in
// environment variables, YAML and TOML alike.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Load builds configuration from defaults, then the optional config file,
// then environment variables.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv(FileEnv); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	default:
		return fmt.Errorf("unsupported config file extension %q", filepath.Ext(path))
	}
	if err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:      "9115",
			Host:      "0.0.0.0",
			BodyLimit: 100 << 20,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           false,
		},
		Session: SessionConfig{
			EnableW3CProtocol: false,
			ExtensionsDir:     filepath.Join(os.TempDir(), "copper-extensions"),
			Defaults: LaunchDefault{
				Headless: true,
			},
		},
		Node: NodeConfig{
			Enabled:            false,
			Host:               "localhost",
			HubHost:            "localhost",
			HubPort:            4444,
			RegisterRetries:    5,
			RegisterInterval:   Duration{5 * time.Second},
			DeregisterRetries:  5,
			DeregisterInterval: Duration{5 * time.Second},
		},
	}
}
