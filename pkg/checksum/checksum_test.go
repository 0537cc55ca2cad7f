package checksum

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpen(t *testing.T) {
	for name, c := range map[string]*CRC32{"ieee": NewCRC32IEEE(), "castagnoli": NewCRC32Castagnoli()} {
		t.Run(name, func(t *testing.T) {
			sealed := c.Seal([]byte("manifest"))
			require.Len(t, sealed, len("manifest")+Size)

			payload, ok := c.Open(sealed)
			require.True(t, ok)
			assert.Equal(t, []byte("manifest"), payload)

			sealed[0] ^= 0xFF
			_, ok = c.Open(sealed)
			assert.False(t, ok)
		})
	}
}

func TestOpenShortBuffer(t *testing.T) {
	_, ok := NewCRC32IEEE().Open([]byte{1, 2})
	assert.False(t, ok)
}

func TestKnownValue(t *testing.T) {
	// CRC32/IEEE of "123456789".
	assert.Equal(t, uint32(0xCBF43926), NewCRC32IEEE().Calculate([]byte("123456789")))
	assert.True(t, NewCRC32IEEE().Verify([]byte("123456789"), 0xCBF43926))
}
