package shortcode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecimalBoundaries(t *testing.T) {
	t.Run("AllZeros", func(t *testing.T) {
		d, ok := Decimal([]byte{0, 0, 0, 0, 0})
		require.True(t, ok)
		assert.Equal(t, [3]int{1000, 1000, 1000}, d)
	})

	t.Run("AllOnes", func(t *testing.T) {
		d, ok := Decimal([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF})
		require.True(t, ok)
		assert.Equal(t, [3]int{9191, 9191, 9191}, d)
	})

	t.Run("TooFewBytes", func(t *testing.T) {
		_, ok := Decimal([]byte{1, 2, 3, 4})
		assert.False(t, ok)
	})

	t.Run("InRangeForAllByteValues", func(t *testing.T) {
		for b0 := 0; b0 < 256; b0 += 17 {
			d, ok := Decimal([]byte{byte(b0), byte(b0 + 1), byte(b0 + 2), byte(b0 + 3), byte(b0 + 4)})
			require.True(t, ok)
			for _, v := range d {
				assert.GreaterOrEqual(t, v, 1000)
				assert.LessOrEqual(t, v, 9191)
			}
		}
	})
}

func TestEmojiBoundaries(t *testing.T) {
	t.Run("AllZeros", func(t *testing.T) {
		e, ok := Emoji([]byte{0, 0, 0, 0, 0, 0})
		require.True(t, ok)
		assert.Equal(t, [7]int{0, 0, 0, 0, 0, 0, 0}, e)
	})

	t.Run("AllOnes", func(t *testing.T) {
		e, ok := Emoji([]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF})
		require.True(t, ok)
		assert.Equal(t, [7]int{63, 63, 63, 63, 63, 63, 63}, e)
	})

	t.Run("TooFewBytes", func(t *testing.T) {
		_, ok := Emoji([]byte{1, 2, 3, 4, 5})
		assert.False(t, ok)
	})

	t.Run("IndicesInRange", func(t *testing.T) {
		for b0 := 0; b0 < 256; b0 += 13 {
			bytes := []byte{byte(b0), byte(b0 + 1), byte(b0 + 2), byte(b0 + 3), byte(b0 + 4), byte(b0 + 5)}
			e, ok := Emoji(bytes)
			require.True(t, ok)
			for _, idx := range e {
				assert.GreaterOrEqual(t, idx, 0)
				assert.LessOrEqual(t, idx, 63)
			}
		}
	})
}

func TestEmojiNamesMapsEveryIndex(t *testing.T) {
	indices := [7]int{0, 1, 2, 3, 4, 5, 63}
	entries := EmojiNames(indices)
	for i, idx := range indices {
		assert.Equal(t, Table[idx], entries[i])
	}
}
