// Package config loads and validates the memexpd configuration file.
package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	configSubdir   = "config"
	configFileName = "memexp_config.json"
)

//go:embed default_config.json
var defaultConfigJSON []byte

// Default returns the embedded default configuration.
func Default() (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(defaultConfigJSON, &cfg); err != nil {
		return nil, fmt.Errorf("invalid embedded default config: %w", err)
	}
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load reads <basePath>/config/memexp_config.json. A missing file yields the
// embedded defaults.
func Load(basePath string) (*Config, error) {
	path := filepath.Join(basePath, configSubdir, configFileName)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg, derr := Default()
			if derr != nil {
				return nil, derr
			}
			cfg.Home = basePath
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.Home == "" {
		cfg.Home = basePath
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Save writes the given config to <basePath>/config/memexp_config.json.
func Save(cfg *Config, basePath string) error {
	if err := validateConfig(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	configDir := filepath.Join(basePath, configSubdir)
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	path := filepath.Join(configDir, configFileName)
	if err := os.WriteFile(path, data, 0o640); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

func validateConfig(cfg *Config) error {
	if cfg.LogLevel < -1 || cfg.LogLevel > 5 {
		return fmt.Errorf("log level must be between -1 and 5")
	}

	if cfg.LogFormat == "" {
		cfg.LogFormat = "console"
	}
	if cfg.LogFormat != "json" && cfg.LogFormat != "console" {
		return fmt.Errorf("log format must be 'json' or 'console'")
	}

	if cfg.APIPort == 0 {
		cfg.APIPort = 8080
	}

	if len(cfg.RPCURLs) == 0 {
		cfg.RPCURLs = []string{"https://api.mainnet-beta.solana.com"}
	}

	if cfg.Commitment == "" {
		cfg.Commitment = "confirmed"
	}
	if cfg.Commitment != "confirmed" && cfg.Commitment != "finalized" {
		// Anything weaker than confirmed must never be treated as payment
		// evidence.
		return fmt.Errorf("commitment must be 'confirmed' or 'finalized'")
	}

	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelayMillis == 0 {
		cfg.RetryDelayMillis = 1000
	}
	if cfg.ExplorerClusterTag == "" {
		cfg.ExplorerClusterTag = "mainnet"
	}

	if cfg.Payment.RequiredTokenAmount == 0 {
		cfg.Payment.RequiredTokenAmount = 10000
	}
	if cfg.Payment.RequiredSolLamports == 0 {
		cfg.Payment.RequiredSolLamports = 100_000_000
	}

	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = "https://api.together.xyz"
	}
	if cfg.LLM.APIKeyEnvVar == "" {
		cfg.LLM.APIKeyEnvVar = "MEMEXP_LLM_API_KEY"
	}
	if cfg.LLM.TimeoutSecond == 0 {
		cfg.LLM.TimeoutSecond = 60
	}

	return nil
}

// RetryDelay returns the fixed inter-attempt delay as a duration.
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMillis) * time.Millisecond
}
