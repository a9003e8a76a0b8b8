package verification

import (
	"encoding/base64"
	"sort"
	"strings"

	"github.com/sas-verify/core/sas"
)

const macInfoPrefix = "MATRIX_KEY_VERIFICATION_MAC"

// macBaseInfo builds the per-direction info string MACs are keyed
// under. sender/receiver are swapped depending on whether this device
// is producing its own attestation or verifying the peer's.
func macBaseInfo(senderUser, senderDevice, receiverUser, receiverDevice, txID string) string {
	return macInfoPrefix + senderUser + senderDevice + receiverUser + receiverDevice + txID
}

// computeMAC builds this device's outbound attestation: always the
// device Ed25519 fingerprint, plus the cross-signing master key when
// locally trusted.
func computeMAC(engine *sas.Engine, myUserID, myDeviceID, otherUserID, otherDeviceID, txID, myFingerprint string, myCrossSigning *CrossSigningInfo) (*MACPayload, error) {
	baseInfo := macBaseInfo(myUserID, myDeviceID, otherUserID, otherDeviceID, txID)

	keyMap := make(map[string]string, 2)
	deviceKeyID := "ed25519:" + myDeviceID
	deviceMAC, err := engine.CalculateMAC([]byte(myFingerprint), baseInfo+deviceKeyID)
	if err != nil {
		return nil, err
	}
	keyMap[deviceKeyID] = base64.RawStdEncoding.EncodeToString(deviceMAC)

	if myCrossSigning != nil && myCrossSigning.Trusted && myCrossSigning.MasterPublicKey != "" {
		masterKeyID := "ed25519:" + myCrossSigning.MasterPublicKey
		masterMAC, err := engine.CalculateMAC([]byte(myCrossSigning.MasterPublicKey), baseInfo+masterKeyID)
		if err != nil {
			return nil, err
		}
		keyMap[masterKeyID] = base64.RawStdEncoding.EncodeToString(masterMAC)
	}

	sortedKeys := make([]string, 0, len(keyMap))
	for k := range keyMap {
		sortedKeys = append(sortedKeys, k)
	}
	sort.Strings(sortedKeys)

	keysMAC, err := engine.CalculateMAC([]byte(strings.Join(sortedKeys, ",")), baseInfo+"KEY_IDS")
	if err != nil {
		return nil, err
	}

	return &MACPayload{
		MAC:  keyMap,
		Keys: base64.RawStdEncoding.EncodeToString(keysMAC),
	}, nil
}

// verifyResult summarizes what verifyMAC established about the peer.
type verifyResult struct {
	VerifiedDevices   []string
	MasterKeyVerified bool
}

// verifyMAC checks the peer's attestation against locally-known
// fingerprints. The direction is reversed from computeMAC: the peer
// is "sender", this device is "receiver".
func verifyMAC(engine *sas.Engine, myUserID, myDeviceID, otherUserID, otherDeviceID, txID string, their *MACPayload, otherDevices map[string]DeviceInfo, otherCrossSigning *CrossSigningInfo) (*verifyResult, error) {
	baseInfo := macBaseInfo(otherUserID, otherDeviceID, myUserID, myDeviceID, txID)

	sortedKeys := make([]string, 0, len(their.MAC))
	for k := range their.MAC {
		sortedKeys = append(sortedKeys, k)
	}
	sort.Strings(sortedKeys)

	expectedKeysMAC, err := engine.CalculateMAC([]byte(strings.Join(sortedKeys, ",")), baseInfo+"KEY_IDS")
	if err != nil {
		return nil, err
	}
	if base64.RawStdEncoding.EncodeToString(expectedKeysMAC) != their.Keys {
		return nil, ErrMismatchedKeys
	}

	result := &verifyResult{}
	for _, keyID := range sortedKeys {
		macB64 := their.MAC[keyID]
		if !strings.HasPrefix(keyID, "ed25519:") {
			continue // unknown key kind, forward-compatible
		}
		bareID := strings.TrimPrefix(keyID, "ed25519:")

		if dev, ok := otherDevices[bareID]; ok {
			expected, err := engine.CalculateMAC([]byte(dev.Ed25519Fingerprint), baseInfo+keyID)
			if err != nil {
				return nil, err
			}
			if base64.RawStdEncoding.EncodeToString(expected) != macB64 {
				return nil, ErrMismatchedKeys
			}
			result.VerifiedDevices = append(result.VerifiedDevices, bareID)
			continue
		}

		if otherCrossSigning != nil && otherCrossSigning.MasterPublicKey != "" && bareID == otherCrossSigning.MasterPublicKey {
			expected, err := engine.CalculateMAC([]byte(otherCrossSigning.MasterPublicKey), baseInfo+keyID)
			if err != nil {
				return nil, err
			}
			if base64.RawStdEncoding.EncodeToString(expected) != macB64 {
				return nil, ErrMismatchedKeys
			}
			result.MasterKeyVerified = true
			continue
		}
		// else: unknown key id, ignored for forward compatibility
	}

	if len(result.VerifiedDevices) == 0 && !result.MasterKeyVerified {
		return nil, ErrMismatchedKeys
	}
	return result, nil
}
