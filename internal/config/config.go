package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Session  SessionConfig  `yaml:"session"`
	Security SecurityConfig `yaml:"security"`
	Sim      SimConfig      `yaml:"sim"`
}

type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

type SessionConfig struct {
	// Dir is where credential material for this session is persisted.
	// Defaults to ~/.local/state/wabridge (respecting XDG_STATE_HOME).
	Dir string `yaml:"dir"`

	// ReconnectDelay is the fixed wait before retrying after a
	// non-logout disconnect.
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
}

type SecurityConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AuthToken      string   `yaml:"auth_token"`
}

// SimConfig tunes the simulated protocol client used with --sim.
type SimConfig struct {
	PairDelay       time.Duration `yaml:"pair_delay"`
	MessageInterval time.Duration `yaml:"message_interval"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8080,
			Host: "0.0.0.0",
		},
		Session: SessionConfig{
			Dir:            defaultSessionDir(),
			ReconnectDelay: 3 * time.Second,
		},
		Sim: SimConfig{
			PairDelay:       10 * time.Second,
			MessageInterval: 15 * time.Second,
		},
	}
}

func defaultSessionDir() string {
	if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
		return filepath.Join(xdg, "wabridge")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "wabridge-session"
	}
	return filepath.Join(home, ".local", "state", "wabridge")
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadOrDefault behaves like Load but returns the default config when the
// file does not exist, so the server can start without one.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		if os.IsNotExist(err) {
			return defaultConfig(), nil
		}
		return nil, err
	}
	return cfg, nil
}
