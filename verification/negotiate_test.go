package verification

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNegotiateChoosesFirstCommonPerField(t *testing.T) {
	local := Capabilities{
		KeyAgreementProtocols:      []string{"curve25519"},
		Hashes:                     []string{"sha256"},
		MessageAuthenticationCodes: []string{"hkdf-hmac-sha256", "hmac-sha256"},
		ShortAuthenticationStrings: []string{"EMOJI", "DECIMAL"},
	}
	peer := Capabilities{
		KeyAgreementProtocols:      []string{"curve25519"},
		Hashes:                     []string{"sha256"},
		MessageAuthenticationCodes: []string{"hmac-sha256"},
		ShortAuthenticationStrings: []string{"DECIMAL"},
	}

	negotiated, err := Negotiate(local, peer)
	require.NoError(t, err)
	require.Equal(t, "curve25519", negotiated.KeyAgreementProtocol)
	require.Equal(t, "sha256", negotiated.Hash)
	require.Equal(t, "hmac-sha256", negotiated.MACMethod)
	require.Equal(t, []string{"DECIMAL"}, negotiated.ShortAuthenticationStrings)
}

func TestNegotiatePrefersHKDFWhenBothOffered(t *testing.T) {
	caps := DefaultCapabilities(true)
	negotiated, err := Negotiate(caps, caps)
	require.NoError(t, err)
	require.Equal(t, "hkdf-hmac-sha256", negotiated.MACMethod)
}

func TestNegotiateEmptyIntersectionFails(t *testing.T) {
	local := Capabilities{
		KeyAgreementProtocols:      []string{"curve25519"},
		Hashes:                     []string{"sha256"},
		MessageAuthenticationCodes: []string{"hkdf-hmac-sha256"},
		ShortAuthenticationStrings: []string{"DECIMAL"},
	}
	peer := Capabilities{
		KeyAgreementProtocols:      []string{"curve25519"},
		Hashes:                     []string{"sha256"},
		MessageAuthenticationCodes: []string{"hmac-sha256"},
		ShortAuthenticationStrings: []string{"DECIMAL"},
	}

	_, err := Negotiate(local, peer)
	require.ErrorIs(t, err, ErrUnknownMethod)
}

func TestNegotiateIsDeterministic(t *testing.T) {
	local := DefaultCapabilities(true)
	peer := DefaultCapabilities(false)

	a, err := Negotiate(local, peer)
	require.NoError(t, err)
	b, err := Negotiate(local, peer)
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestDefaultCapabilitiesGatesEmoji(t *testing.T) {
	require.Contains(t, DefaultCapabilities(true).ShortAuthenticationStrings, "EMOJI")
	require.NotContains(t, DefaultCapabilities(false).ShortAuthenticationStrings, "EMOJI")
}
