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

// Package sas is the opaque SAS engine: a Curve25519 ephemeral key pair
// plus the HKDF/HMAC derivations the transaction state machine treats
// as a black box. Callers never see key material directly; they call
// PublicKey, SetTheirPublicKey and CalculateMAC.
package sas

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"sync"

	"golang.org/x/crypto/hkdf"

	"github.com/sas-verify/core/crypto/keys"
)

// MACMethod selects the keyed-MAC derivation the engine uses.
type MACMethod string

const (
	// MACMethodHKDFHMACSHA256 is the preferred method: HKDF-Expand over
	// the ECDH-derived PRK, keyed by info, then HMAC-SHA256 over the
	// message with the expanded key.
	MACMethodHKDFHMACSHA256 MACMethod = "hkdf-hmac-sha256"
	// MACMethodHMACSHA256 is the legacy "long KDF" method, kept for
	// interop with peers that only offer it: HMAC-SHA256 keyed
	// directly by the PRK, over info||message.
	MACMethodHMACSHA256 MACMethod = "hmac-sha256"
)

var (
	// ErrNoSharedSecret is returned by CalculateMAC before SetTheirPublicKey
	// has established the shared secret.
	ErrNoSharedSecret = errors.New("sas: shared secret not established")
	// ErrReleased is returned by any operation on a released engine.
	ErrReleased = errors.New("sas: engine released")
	// ErrUnsupportedMACMethod is returned for a method outside the two above.
	ErrUnsupportedMACMethod = errors.New("sas: unsupported mac method")
)

// Engine is the per-transaction SAS key-agreement and derivation engine.
// It owns an ephemeral X25519 key pair for exactly one transaction and
// must be released no later than that transaction reaching a terminal
// state.
type Engine struct {
	mu       sync.Mutex
	method   MACMethod
	pair     *keys.X25519KeyPair
	prk      []byte
	released bool
}

// NewEngine generates a fresh ephemeral X25519 key pair for the given
// MAC method and returns the engine that will derive MACs and short
// codes from it once the peer's public key is known.
func NewEngine(method MACMethod) (*Engine, error) {
	if method != MACMethodHKDFHMACSHA256 && method != MACMethodHMACSHA256 {
		return nil, ErrUnsupportedMACMethod
	}
	kp, err := keys.GenerateX25519KeyPair()
	if err != nil {
		return nil, err
	}
	return &Engine{
		method: method,
		pair:   kp.(*keys.X25519KeyPair),
	}, nil
}

// PublicKey returns this engine's 32-byte Curve25519 public key as
// unpadded base64, the form carried on the wire by m.key.verification.key.
func (e *Engine) PublicKey() (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.released {
		return "", ErrReleased
	}
	return base64.RawStdEncoding.EncodeToString(e.pair.PublicBytesKey()), nil
}

// SetTheirPublicKey decodes the peer's unpadded-base64 Curve25519
// public key, performs the ECDH agreement, and extracts the
// pseudorandom key later MAC derivations expand from.
func (e *Engine) SetTheirPublicKey(theirPublicKey string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.released {
		return ErrReleased
	}

	raw, err := base64.RawStdEncoding.DecodeString(theirPublicKey)
	if err != nil {
		return err
	}
	shared, err := e.pair.ECDH(raw)
	if err != nil {
		return err
	}
	e.prk = hkdf.Extract(sha256.New, shared, nil)
	return nil
}

// CalculateMAC derives the negotiated MAC over message, keyed by info.
// An empty message is valid and used by the short-code derivation,
// which calls CalculateMAC with a zero-length message and reads the
// derived bytes directly rather than a MAC-of-something.
func (e *Engine) CalculateMAC(message []byte, info string) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.released {
		return nil, ErrReleased
	}
	if e.prk == nil {
		return nil, ErrNoSharedSecret
	}

	switch e.method {
	case MACMethodHKDFHMACSHA256:
		r := hkdf.Expand(sha256.New, e.prk, []byte(info))
		key := make([]byte, sha256.Size)
		if _, err := io.ReadFull(r, key); err != nil {
			return nil, err
		}
		mac := hmac.New(sha256.New, key)
		mac.Write(message)
		return mac.Sum(nil), nil
	case MACMethodHMACSHA256:
		mac := hmac.New(sha256.New, e.prk)
		mac.Write([]byte(info))
		mac.Write(message)
		return mac.Sum(nil), nil
	default:
		return nil, ErrUnsupportedMACMethod
	}
}

// Release destroys the ephemeral private key material this engine
// holds. It is idempotent and safe to call multiple times.
func (e *Engine) Release() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.released {
		return
	}
	for i := range e.prk {
		e.prk[i] = 0
	}
	e.prk = nil
	e.pair = nil
	e.released = true
}

// Released reports whether Release has already run.
func (e *Engine) Released() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.released
}
