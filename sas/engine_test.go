package sas

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func agree(t *testing.T, method MACMethod) (*Engine, *Engine) {
	t.Helper()
	a, err := NewEngine(method)
	require.NoError(t, err)
	b, err := NewEngine(method)
	require.NoError(t, err)

	aPub, err := a.PublicKey()
	require.NoError(t, err)
	bPub, err := b.PublicKey()
	require.NoError(t, err)

	require.NoError(t, a.SetTheirPublicKey(bPub))
	require.NoError(t, b.SetTheirPublicKey(aPub))
	return a, b
}

func TestEngineAgreementAndMAC(t *testing.T) {
	for _, method := range []MACMethod{MACMethodHKDFHMACSHA256, MACMethodHMACSHA256} {
		t.Run(string(method), func(t *testing.T) {
			a, b := agree(t, method)
			defer a.Release()
			defer b.Release()

			macA, err := a.CalculateMAC([]byte("hello"), "info-string")
			require.NoError(t, err)
			macB, err := b.CalculateMAC([]byte("hello"), "info-string")
			require.NoError(t, err)

			require.Equal(t, macA, macB)
		})
	}
}

func TestEngineMACWithoutAgreementFails(t *testing.T) {
	e, err := NewEngine(MACMethodHKDFHMACSHA256)
	require.NoError(t, err)
	defer e.Release()

	_, err = e.CalculateMAC([]byte("x"), "info")
	require.ErrorIs(t, err, ErrNoSharedSecret)
}

func TestEngineReleaseIsIdempotentAndBlocksUse(t *testing.T) {
	e, err := NewEngine(MACMethodHKDFHMACSHA256)
	require.NoError(t, err)

	e.Release()
	e.Release()
	require.True(t, e.Released())

	_, err = e.PublicKey()
	require.ErrorIs(t, err, ErrReleased)
}

func TestEngineRejectsUnsupportedMethod(t *testing.T) {
	_, err := NewEngine(MACMethod("unsupported"))
	require.ErrorIs(t, err, ErrUnsupportedMACMethod)
}

func TestEngineEmptyMessageMAC(t *testing.T) {
	a, b := agree(t, MACMethodHKDFHMACSHA256)
	defer a.Release()
	defer b.Release()

	macA, err := a.CalculateMAC(nil, "MATRIX_KEY_VERIFICATION_SAS")
	require.NoError(t, err)
	macB, err := b.CalculateMAC(nil, "MATRIX_KEY_VERIFICATION_SAS")
	require.NoError(t, err)
	require.Equal(t, macA, macB)
	require.Len(t, macA, 32)
}
