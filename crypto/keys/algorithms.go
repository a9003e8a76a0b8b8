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

package keys

import "encoding/base64"

// Ed25519Fingerprint renders a raw Ed25519 public key as unpadded
// base64, the fingerprint form that MAC attestation
// (verification/mac.go) signs and peers compare against their
// identity store, as opposed to KeyPair.ID's short hash used for
// local bookkeeping.
func Ed25519Fingerprint(pub []byte) string {
	return base64.RawStdEncoding.EncodeToString(pub)
}
