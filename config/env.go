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
	"os"
	"regexp"
	"strconv"
	"strings"
)

// envVarPattern matches ${VAR} or ${VAR:default}.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

// SubstituteEnvVars replaces ${VAR} or ${VAR:default} with environment
// variable values.
func SubstituteEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		parts := envVarPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		varName := parts[1]
		defaultValue := ""
		if len(parts) > 2 {
			defaultValue = parts[2]
		}
		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultValue
	})
}

// SubstituteEnvVarsInConfig recursively substitutes environment
// variables in string fields of cfg.
func SubstituteEnvVarsInConfig(cfg *Config) {
	if cfg == nil {
		return
	}
	if cfg.Identity != nil {
		cfg.Identity.UserID = SubstituteEnvVars(cfg.Identity.UserID)
		cfg.Identity.DeviceID = SubstituteEnvVars(cfg.Identity.DeviceID)
	}
	if cfg.Transport != nil {
		cfg.Transport.ListenAddr = SubstituteEnvVars(cfg.Transport.ListenAddr)
		cfg.Transport.PeerURL = SubstituteEnvVars(cfg.Transport.PeerURL)
	}
	if cfg.Logging != nil {
		cfg.Logging.Level = SubstituteEnvVars(cfg.Logging.Level)
		cfg.Logging.Format = SubstituteEnvVars(cfg.Logging.Format)
		cfg.Logging.Output = SubstituteEnvVars(cfg.Logging.Output)
	}
	if cfg.Metrics != nil {
		cfg.Metrics.Addr = SubstituteEnvVars(cfg.Metrics.Addr)
		cfg.Metrics.Path = SubstituteEnvVars(cfg.Metrics.Path)
	}
}

// applyEnvironmentOverrides overrides config fields with environment
// variables, the highest-priority source.
func applyEnvironmentOverrides(cfg *Config) {
	if v := os.Getenv("SASVERIFY_USER_ID"); v != "" && cfg.Identity != nil {
		cfg.Identity.UserID = v
	}
	if v := os.Getenv("SASVERIFY_DEVICE_ID"); v != "" && cfg.Identity != nil {
		cfg.Identity.DeviceID = v
	}
	if v := os.Getenv("SASVERIFY_ALLOW_EMOJI"); v != "" && cfg.Verification != nil {
		cfg.Verification.AllowEmoji = v == "true"
	}
	if v := os.Getenv("SASVERIFY_PEER_URL"); v != "" && cfg.Transport != nil {
		cfg.Transport.PeerURL = v
	}
	if v := os.Getenv("SASVERIFY_LISTEN_ADDR"); v != "" && cfg.Transport != nil {
		cfg.Transport.ListenAddr = v
	}
	if v := os.Getenv("SASVERIFY_LOG_LEVEL"); v != "" && cfg.Logging != nil {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SASVERIFY_LOG_FORMAT"); v != "" && cfg.Logging != nil {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("SASVERIFY_METRICS_ENABLED"); v != "" && cfg.Metrics != nil {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Metrics.Enabled = b
		}
	}
}

// GetEnvironment returns the current environment from SASVERIFY_ENV,
// falling back to ENVIRONMENT, defaulting to "development".
func GetEnvironment() string {
	env := os.Getenv("SASVERIFY_ENV")
	if env == "" {
		env = os.Getenv("ENVIRONMENT")
	}
	if env == "" {
		env = "development"
	}
	return strings.ToLower(env)
}

// IsProduction reports whether GetEnvironment is "production".
func IsProduction() bool {
	return GetEnvironment() == "production"
}
