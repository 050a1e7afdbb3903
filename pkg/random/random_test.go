package random_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vndeals/backend/pkg/random"
)

func TestBytes_Length(t *testing.T) {
	b, err := random.Bytes(16)
	require.NoError(t, err)
	assert.Len(t, b, 16)
}

func TestHex_LengthAndUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		s, err := random.Hex(32)
		require.NoError(t, err)
		assert.Len(t, s, 64)
		assert.False(t, seen[s], "duplicate token generated")
		seen[s] = true
	}
}

func TestIntInRange_Bounds(t *testing.T) {
	for i := 0; i < 1000; i++ {
		v, err := random.IntInRange(10, 20)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, v, 10)
		assert.Less(t, v, 20)
	}
}

func TestIntInRange_InvalidRange(t *testing.T) {
	_, err := random.IntInRange(5, 5)
	assert.Error(t, err)
}
