// Package config defines the nudge application configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "90s" or "2m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Config is the top-level nudge configuration.
type Config struct {
	DBPath string `yaml:"db_path"`

	// EvalInterval is the reminder evaluation cadence.
	EvalInterval Duration `yaml:"eval_interval"`

	// PermissionPollInterval re-checks notification permission; there
	// is no universal change event to subscribe to, so this is an
	// explicit platform-limitation workaround.
	PermissionPollInterval Duration `yaml:"permission_poll_interval"`

	// NotifyCommand overrides the native notification binary.
	NotifyCommand string `yaml:"notify_command"`

	LogLevel string `yaml:"log_level"`
}

// Default returns a config with sensible defaults.
func Default() *Config {
	return &Config{
		DBPath:                 ".nudge/nudge.db",
		EvalInterval:           Duration(time.Minute),
		PermissionPollInterval: Duration(5 * time.Second),
		NotifyCommand:          "notify-send",
		LogLevel:               "info",
	}
}

// Load reads a YAML config file over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Write serializes cfg to path.
func (c *Config) Write(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}
