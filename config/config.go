// Copyright (C) 2025 sage-x-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for one device's verification core.
type Config struct {
	Environment  string              `yaml:"environment" json:"environment"`
	Identity     *IdentityConfig     `yaml:"identity" json:"identity"`
	Verification *VerificationConfig `yaml:"verification" json:"verification"`
	Transport    *TransportConfig    `yaml:"transport" json:"transport"`
	Logging      *LoggingConfig      `yaml:"logging" json:"logging"`
	Metrics      *MetricsConfig      `yaml:"metrics" json:"metrics"`
}

// IdentityConfig names this device and where its long-term Ed25519
// identity key comes from.
type IdentityConfig struct {
	UserID         string `yaml:"user_id" json:"user_id"`
	DeviceID       string `yaml:"device_id" json:"device_id"`
	Ed25519SeedEnv string `yaml:"ed25519_seed_env" json:"ed25519_seed_env"`
}

// VerificationConfig controls SAS negotiation defaults and optional
// transaction timeout.
type VerificationConfig struct {
	AllowEmoji     bool          `yaml:"allow_emoji" json:"allow_emoji"`
	TimeoutEnabled bool          `yaml:"timeout_enabled" json:"timeout_enabled"`
	Timeout        time.Duration `yaml:"timeout" json:"timeout"`
}

// TransportConfig configures the WebSocket transport.
type TransportConfig struct {
	ListenAddr string `yaml:"listen_addr" json:"listen_addr"`
	PeerURL    string `yaml:"peer_url" json:"peer_url"`
}

// LoggingConfig represents logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	Output string `yaml:"output" json:"output"`
}

// MetricsConfig represents Prometheus metrics server configuration.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Addr    string `yaml:"addr" json:"addr"`
	Path    string `yaml:"path" json:"path"`
}

// LoadFromFile loads configuration from a YAML (or JSON) file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file (tried YAML and JSON): %w", err)
		}
	}

	setDefaults(cfg)
	return cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	if cfg.Identity == nil {
		cfg.Identity = &IdentityConfig{}
	}
	if cfg.Identity.Ed25519SeedEnv == "" {
		cfg.Identity.Ed25519SeedEnv = "SASVERIFY_IDENTITY_SEED"
	}

	if cfg.Verification == nil {
		cfg.Verification = &VerificationConfig{}
	}
	if cfg.Verification.Timeout == 0 {
		cfg.Verification.Timeout = 10 * time.Minute
	}

	if cfg.Transport == nil {
		cfg.Transport = &TransportConfig{}
	}

	if cfg.Logging == nil {
		cfg.Logging = &LoggingConfig{}
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	if cfg.Metrics == nil {
		cfg.Metrics = &MetricsConfig{}
	}
	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9090"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}
