package keys

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestX25519KeyPair(t *testing.T) {
	t.Run("GenerateKeyPair", func(t *testing.T) {
		keyPair, err := GenerateX25519KeyPair()
		require.NoError(t, err)
		assert.NotNil(t, keyPair)
		assert.NotNil(t, keyPair.PublicKey())
		assert.NotNil(t, keyPair.PrivateKey())
	})

	t.Run("ECDHAgreementMatches", func(t *testing.T) {
		a, err := GenerateX25519KeyPair()
		require.NoError(t, err)
		b, err := GenerateX25519KeyPair()
		require.NoError(t, err)

		aKey := a.(*X25519KeyPair)
		bKey := b.(*X25519KeyPair)

		raw1, err := aKey.ECDH(bKey.PublicBytesKey())
		require.NoError(t, err)
		raw2, err := bKey.ECDH(aKey.PublicBytesKey())
		require.NoError(t, err)

		assert.Equal(t, raw1, raw2)
	})

	t.Run("DifferentPeersDeriveDifferentSecrets", func(t *testing.T) {
		a, err := GenerateX25519KeyPair()
		require.NoError(t, err)
		b, err := GenerateX25519KeyPair()
		require.NoError(t, err)
		c, err := GenerateX25519KeyPair()
		require.NoError(t, err)

		aKey := a.(*X25519KeyPair)
		bKey := b.(*X25519KeyPair)
		cKey := c.(*X25519KeyPair)

		s1, err := aKey.ECDH(bKey.PublicBytesKey())
		require.NoError(t, err)
		s2, err := aKey.ECDH(cKey.PublicBytesKey())
		require.NoError(t, err)

		assert.NotEqual(t, s1, s2)
	})

	t.Run("SignVerifyUnsupported", func(t *testing.T) {
		kp, err := GenerateX25519KeyPair()
		require.NoError(t, err)

		_, err = kp.Sign([]byte("msg"))
		assert.Error(t, err)

		err = kp.Verify([]byte("msg"), []byte("sig"))
		assert.Error(t, err)
	})
}
