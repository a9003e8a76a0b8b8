package verification

import (
	"encoding/base64"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sas-verify/core/sas"
)

func agreeEngines(t *testing.T) (*sas.Engine, *sas.Engine) {
	t.Helper()
	a, err := sas.NewEngine(sas.MACMethod("hkdf-hmac-sha256"))
	require.NoError(t, err)
	b, err := sas.NewEngine(sas.MACMethod("hkdf-hmac-sha256"))
	require.NoError(t, err)

	aPub, err := a.PublicKey()
	require.NoError(t, err)
	bPub, err := b.PublicKey()
	require.NoError(t, err)

	require.NoError(t, a.SetTheirPublicKey(bPub))
	require.NoError(t, b.SetTheirPublicKey(aPub))
	return a, b
}

func TestComputeAndVerifyMACRoundTrips(t *testing.T) {
	senderEngine, receiverEngine := agreeEngines(t)

	mac, err := computeMAC(senderEngine, aliceUser, aliceDevice, bobUser, bobDevice, txID, aliceFPSeed, nil)
	require.NoError(t, err)
	require.Contains(t, mac.MAC, "ed25519:"+aliceDevice)

	devices := map[string]DeviceInfo{aliceDevice: {Ed25519Fingerprint: aliceFPSeed}}
	result, err := verifyMAC(receiverEngine, bobUser, bobDevice, aliceUser, aliceDevice, txID, mac, devices, nil)
	require.NoError(t, err)
	require.Equal(t, []string{aliceDevice}, result.VerifiedDevices)
	require.False(t, result.MasterKeyVerified)
}

func TestVerifyMACFailsWhenKeysDigestTampered(t *testing.T) {
	senderEngine, receiverEngine := agreeEngines(t)

	mac, err := computeMAC(senderEngine, aliceUser, aliceDevice, bobUser, bobDevice, txID, aliceFPSeed, nil)
	require.NoError(t, err)
	mac.Keys = "tampered"

	devices := map[string]DeviceInfo{aliceDevice: {Ed25519Fingerprint: aliceFPSeed}}
	_, err = verifyMAC(receiverEngine, bobUser, bobDevice, aliceUser, aliceDevice, txID, mac, devices, nil)
	require.ErrorIs(t, err, ErrMismatchedKeys)
}

func TestVerifyMACFailsWhenFingerprintUnknown(t *testing.T) {
	senderEngine, receiverEngine := agreeEngines(t)

	mac, err := computeMAC(senderEngine, aliceUser, aliceDevice, bobUser, bobDevice, txID, aliceFPSeed, nil)
	require.NoError(t, err)

	// Receiver's identity store has a different fingerprint on file.
	devices := map[string]DeviceInfo{aliceDevice: {Ed25519Fingerprint: "some-other-fingerprint"}}
	_, err = verifyMAC(receiverEngine, bobUser, bobDevice, aliceUser, aliceDevice, txID, mac, devices, nil)
	require.ErrorIs(t, err, ErrMismatchedKeys)
}

func TestVerifyMACFailsWhenNoKeyVerifies(t *testing.T) {
	senderEngine, receiverEngine := agreeEngines(t)

	mac, err := computeMAC(senderEngine, aliceUser, aliceDevice, bobUser, bobDevice, txID, aliceFPSeed, nil)
	require.NoError(t, err)

	// Receiver knows no devices and has no cross-signing info for alice.
	_, err = verifyMAC(receiverEngine, bobUser, bobDevice, aliceUser, aliceDevice, txID, mac, map[string]DeviceInfo{}, nil)
	require.ErrorIs(t, err, ErrMismatchedKeys)
}

func TestVerifyMACIgnoresUnknownKeyKindsForwardCompatibly(t *testing.T) {
	senderEngine, receiverEngine := agreeEngines(t)

	mac, err := computeMAC(senderEngine, aliceUser, aliceDevice, bobUser, bobDevice, txID, aliceFPSeed, nil)
	require.NoError(t, err)
	mac.MAC["curve25519:future-key-kind"] = "deadbeef"

	// Redo the keys digest over the now-larger key set, exactly as the
	// sender's engine would for a real forward-compatible key kind, so
	// only the unknown-kind handling is under test here.
	baseInfo := macBaseInfo(aliceUser, aliceDevice, bobUser, bobDevice, txID)
	sortedKeys := make([]string, 0, len(mac.MAC))
	for k := range mac.MAC {
		sortedKeys = append(sortedKeys, k)
	}
	sort.Strings(sortedKeys)
	keysMAC, err := senderEngine.CalculateMAC([]byte(strings.Join(sortedKeys, ",")), baseInfo+"KEY_IDS")
	require.NoError(t, err)
	mac.Keys = base64.RawStdEncoding.EncodeToString(keysMAC)

	devices := map[string]DeviceInfo{aliceDevice: {Ed25519Fingerprint: aliceFPSeed}}
	result, err := verifyMAC(receiverEngine, bobUser, bobDevice, aliceUser, aliceDevice, txID, mac, devices, nil)
	require.NoError(t, err)
	require.Equal(t, []string{aliceDevice}, result.VerifiedDevices)
}

func TestComputeMACIncludesMasterKeyWhenTrusted(t *testing.T) {
	senderEngine, receiverEngine := agreeEngines(t)

	myCrossSigning := &CrossSigningInfo{MasterPublicKey: "master-pub-key", Trusted: true}
	mac, err := computeMAC(senderEngine, aliceUser, aliceDevice, bobUser, bobDevice, txID, aliceFPSeed, myCrossSigning)
	require.NoError(t, err)
	require.Contains(t, mac.MAC, "ed25519:master-pub-key")

	devices := map[string]DeviceInfo{aliceDevice: {Ed25519Fingerprint: aliceFPSeed}}
	otherCrossSigning := &CrossSigningInfo{MasterPublicKey: "master-pub-key"}
	result, err := verifyMAC(receiverEngine, bobUser, bobDevice, aliceUser, aliceDevice, txID, mac, devices, otherCrossSigning)
	require.NoError(t, err)
	require.True(t, result.MasterKeyVerified)
	require.Equal(t, []string{aliceDevice}, result.VerifiedDevices)
}

func TestComputeMACOmitsMasterKeyWhenNotTrusted(t *testing.T) {
	senderEngine, _ := agreeEngines(t)

	myCrossSigning := &CrossSigningInfo{MasterPublicKey: "master-pub-key", Trusted: false}
	mac, err := computeMAC(senderEngine, aliceUser, aliceDevice, bobUser, bobDevice, txID, aliceFPSeed, myCrossSigning)
	require.NoError(t, err)
	require.NotContains(t, mac.MAC, "ed25519:master-pub-key")
}
