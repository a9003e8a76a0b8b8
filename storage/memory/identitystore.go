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

// Package memory provides a non-persistent IdentityStore, useful for
// tests and for the demo CLI. A production deployment would back this
// with whatever already stores a homeserver's device list and
// cross-signing keys.
package memory

import (
	"context"
	"sync"

	"github.com/sas-verify/core/verification"
)

// IdentityStore is an in-memory, process-local catalog of device
// fingerprints and cross-signing master keys, keyed by user id.
type IdentityStore struct {
	mu sync.RWMutex

	devices      map[string]map[string]verification.DeviceInfo
	crossSigning map[string]verification.CrossSigningInfo
	verified     map[string]map[string]bool

	selfUserID       string
	selfCrossSigning verification.CrossSigningInfo
}

// NewIdentityStore creates an empty store. selfUserID and
// selfCrossSigning describe the local device's own cross-signing
// identity, returned by MyCrossSigning.
func NewIdentityStore(selfUserID string, selfCrossSigning verification.CrossSigningInfo) *IdentityStore {
	return &IdentityStore{
		devices:          make(map[string]map[string]verification.DeviceInfo),
		crossSigning:     make(map[string]verification.CrossSigningInfo),
		verified:         make(map[string]map[string]bool),
		selfUserID:       selfUserID,
		selfCrossSigning: selfCrossSigning,
	}
}

// PutDevice registers a known device fingerprint for userID.
func (s *IdentityStore) PutDevice(userID, deviceID string, info verification.DeviceInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.devices[userID] == nil {
		s.devices[userID] = make(map[string]verification.DeviceInfo)
	}
	s.devices[userID][deviceID] = info
}

// PutCrossSigning registers userID's cross-signing master key.
func (s *IdentityStore) PutCrossSigning(userID string, info verification.CrossSigningInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.crossSigning[userID] = info
}

// DevicesOf implements verification.IdentityStore.
func (s *IdentityStore) DevicesOf(_ context.Context, userID string) (map[string]verification.DeviceInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]verification.DeviceInfo, len(s.devices[userID]))
	for id, info := range s.devices[userID] {
		out[id] = info
	}
	return out, nil
}

// CrossSigningOf implements verification.IdentityStore.
func (s *IdentityStore) CrossSigningOf(_ context.Context, userID string) (*verification.CrossSigningInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info, ok := s.crossSigning[userID]
	if !ok {
		return nil, nil
	}
	return &info, nil
}

// MyCrossSigning implements verification.IdentityStore.
func (s *IdentityStore) MyCrossSigning(_ context.Context) (*verification.CrossSigningInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info := s.selfCrossSigning
	return &info, nil
}

// MarkDeviceVerified implements verification.IdentityStore.
func (s *IdentityStore) MarkDeviceVerified(_ context.Context, userID, deviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.verified[userID] == nil {
		s.verified[userID] = make(map[string]bool)
	}
	s.verified[userID][deviceID] = true
	return nil
}

// IsDeviceVerified reports whether MarkDeviceVerified has been called
// for this pair. Exposed for tests and the demo CLI; not part of the
// verification.IdentityStore contract.
func (s *IdentityStore) IsDeviceVerified(userID, deviceID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.verified[userID][deviceID]
}
