// Package config loads the small runtime configuration the CLI needs:
// where persisted server-set data lives and which address to serve on.
// Style follows the example pack's YAML-plus-env-override convention
// (gopkg.in/yaml.v3, ULPSI_* env var overrides, defaults-then-override-then-validate).
// The file path itself is passed in by the caller.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds server-side runtime settings; PSI protocol parameters
// themselves live in params.PsiParams, persisted separately per server-set.
type Config struct {
	DataDir    string `yaml:"data_dir"`
	ListenAddr string `yaml:"listen_addr"`
	Debug      bool   `yaml:"debug"`
}

// Load reads configuration from configPath (falling back to defaults when
// the file does not exist) and applies environment variable overrides.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", configPath, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("config: reading %s: %w", configPath, err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Default returns the built-in configuration used when no file is present.
func Default() *Config {
	return &Config{
		DataDir:    "data",
		ListenAddr: "127.0.0.1:9444",
		Debug:      false,
	}
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("ULPSI_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("ULPSI_LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv("ULPSI_DEBUG"); v == "true" || v == "1" {
		c.Debug = true
	}
}

// Validate checks the configuration is usable.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr is required")
	}
	return nil
}
