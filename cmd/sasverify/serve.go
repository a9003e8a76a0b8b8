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

package main

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sas-verify/core/config"
	"github.com/sas-verify/core/crypto/keys"
	"github.com/sas-verify/core/internal/logger"
	"github.com/sas-verify/core/internal/metrics"
	"github.com/sas-verify/core/storage/memory"
	"github.com/sas-verify/core/transport/websocket"
	"github.com/sas-verify/core/verification"
)

var serveConfigDir string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Listen for inbound verification requests over WebSocket",
	Long: `serve loads configuration, derives this device's long-term
identity key, and listens for peers initiating SAS verification over
the WebSocket transport. Every inbound transaction is accepted
automatically; short-code confirmation still requires the peer-side
user, so this mode is meant for testing a deployment's wiring rather
than unattended production use.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveConfigDir, "config-dir", "config", "directory containing <env>.yaml configuration")
	rootCmd.AddCommand(serveCmd)
}

// identityFromConfig loads this device's Ed25519 identity key from the
// seed environment variable the config names, generating an ephemeral
// one when the variable is unset.
func identityFromConfig(cfg *config.Config, log logger.Logger) (string, error) {
	if seedB64 := os.Getenv(cfg.Identity.Ed25519SeedEnv); seedB64 != "" {
		seed, err := base64.StdEncoding.DecodeString(strings.TrimSpace(seedB64))
		if err != nil {
			return "", fmt.Errorf("decode %s: %w", cfg.Identity.Ed25519SeedEnv, err)
		}
		if len(seed) != ed25519.SeedSize {
			return "", fmt.Errorf("%s: want %d-byte seed, got %d", cfg.Identity.Ed25519SeedEnv, ed25519.SeedSize, len(seed))
		}
		kp, err := keys.NewEd25519KeyPair(ed25519.NewKeyFromSeed(seed), "")
		if err != nil {
			return "", fmt.Errorf("build identity key: %w", err)
		}
		return fingerprintOf(kp)
	}

	log.Warn("no identity seed in environment, generating an ephemeral identity key",
		logger.String("env", cfg.Identity.Ed25519SeedEnv))
	kp, err := keys.GenerateEd25519KeyPair()
	if err != nil {
		return "", fmt.Errorf("generate identity key: %w", err)
	}
	return fingerprintOf(kp)
}

func logLevelFromConfig(cfg *config.Config) logger.Level {
	switch strings.ToLower(cfg.Logging.Level) {
	case "debug":
		return logger.DebugLevel
	case "warn":
		return logger.WarnLevel
	case "error":
		return logger.ErrorLevel
	default:
		return logger.InfoLevel
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(config.LoaderOptions{ConfigDir: serveConfigDir, EnvFile: ".env"})
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Identity.UserID == "" || cfg.Identity.DeviceID == "" {
		return fmt.Errorf("identity.user_id and identity.device_id must be configured")
	}
	if cfg.Transport.ListenAddr == "" {
		return fmt.Errorf("transport.listen_addr must be configured")
	}

	log := logger.NewLogger(os.Stdout, logLevelFromConfig(cfg))
	logger.SetDefaultLogger(log)

	fingerprint, err := identityFromConfig(cfg, log)
	if err != nil {
		return err
	}

	var manager *verification.Manager
	if cfg.Verification.TimeoutEnabled {
		manager = verification.NewManagerWithTimeout(verification.TimeoutPolicy{MaxAge: cfg.Verification.Timeout}, log)
	} else {
		manager = verification.NewManager(log)
	}
	defer manager.Close()

	identityStore := memory.NewIdentityStore(cfg.Identity.UserID, verification.CrossSigningInfo{})
	crossSigning := memory.NewCrossSigningService()
	caps := verification.DefaultCapabilities(cfg.Verification.AllowEmoji)
	self := verification.Sender{UserID: cfg.Identity.UserID, DeviceID: cfg.Identity.DeviceID}

	if cfg.Metrics.Enabled {
		go func() {
			if err := metrics.StartServer(cfg.Metrics.Addr); err != nil {
				log.Error("metrics server failed", logger.Error(err))
			}
		}()
		log.Info("metrics server listening", logger.String("addr", cfg.Metrics.Addr))
	}

	// Incoming transactions need the adapter of the connection their
	// Start arrived on as their transport, so the dispatcher is bound
	// to the most recent connection via OnConnect.
	var current *websocket.Adapter
	dispatcher := dispatcherFunc(func(ctx context.Context, env websocket.Envelope) error {
		adapter := current
		if adapter == nil {
			return fmt.Errorf("no active connection")
		}
		err := websocket.ManagerDispatcher{
			Manager: manager,
			MakeIncoming: func(id string) *verification.Transaction {
				return verification.NewIncoming(id, self.UserID, self.DeviceID, caps, fingerprint, verification.Deps{
					Transport:     adapter,
					IdentityStore: identityStore,
					CrossSigning:  crossSigning,
					Logger:        log,
				})
			},
		}.Dispatch(ctx, env)
		if err != nil || env.Type != verification.MessageStart {
			return err
		}
		if t, ok := manager.Get(env.TransactionID); ok {
			return t.Accept(ctx)
		}
		return nil
	})
	server := websocket.NewServer(self, dispatcher, log)
	server.OnConnect = func(adapter *websocket.Adapter) {
		current = adapter
		log.Info("peer connected")
	}

	log.Info("verification server listening",
		logger.String("addr", cfg.Transport.ListenAddr),
		logger.String("user_id", cfg.Identity.UserID),
		logger.String("device_id", cfg.Identity.DeviceID))
	return server.ListenAndServe(cfg.Transport.ListenAddr, "/verify")
}

// dispatcherFunc adapts a function to the websocket.Dispatcher
// interface.
type dispatcherFunc func(ctx context.Context, env websocket.Envelope) error

func (f dispatcherFunc) Dispatch(ctx context.Context, env websocket.Envelope) error {
	return f(ctx, env)
}
