// Package config loads the YAML configuration of the Common Interface host stack.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/gregLibert/en50221/pkg/en50221"
	"github.com/gregLibert/en50221/pkg/logging"
)

// Config is the top-level configuration document.
//
//	policy: clamp          # or reject
//	log:
//	  file: /var/log/ci.log
//	  maxSizeMB: 10
//	  maxBackups: 3
//	  maxAgeDays: 7
//	  compress: true
//	  debug: false
//	  console: true
type Config struct {
	Policy string    `yaml:"policy"`
	Log    LogConfig `yaml:"log"`
}

// LogConfig mirrors logging.Options.
type LogConfig struct {
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
	Compress   bool   `yaml:"compress"`
	Debug      bool   `yaml:"debug"`
	Console    bool   `yaml:"console"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Policy: en50221.PolicyClamp.String(),
		Log: LogConfig{
			MaxSizeMB: 100,
		},
	}
}

// Load reads and validates a configuration file. Missing fields keep their defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks value ranges and enumerations.
func (c Config) Validate() error {
	if _, err := en50221.ParseLengthPolicy(c.Policy); err != nil {
		return err
	}
	if c.Log.MaxSizeMB < 0 || c.Log.MaxBackups < 0 || c.Log.MaxAgeDays < 0 {
		return fmt.Errorf("log rotation values must not be negative")
	}
	return nil
}

// LengthPolicy returns the parsed policy. Validate must have succeeded.
func (c Config) LengthPolicy() en50221.LengthPolicy {
	p, _ := en50221.ParseLengthPolicy(c.Policy)
	return p
}

// LoggingOptions converts the log section for logging.New.
func (c Config) LoggingOptions() logging.Options {
	return logging.Options{
		File:       c.Log.File,
		MaxSize:    c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		MaxAge:     c.Log.MaxAgeDays,
		Compress:   c.Log.Compress,
		Debug:      c.Log.Debug,
		Console:    c.Log.Console,
	}
}
