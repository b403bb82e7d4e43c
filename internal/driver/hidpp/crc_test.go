package hidpp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChecksumKnownVector(t *testing.T) {
	t.Parallel()

	// Standard CRC-16/CCITT-FALSE check value.
	require.Equal(t, uint16(0x29B1), Checksum([]byte("123456789")))
	require.Equal(t, uint16(0xFFFF), Checksum(nil))
}

func TestChecksumDetectsBitFlip(t *testing.T) {
	t.Parallel()

	data := make([]byte, 254)
	for i := range data {
		data[i] = byte(i * 7)
	}
	clean := Checksum(data)

	for _, pos := range []int{0, 100, 253} {
		corrupted := append([]byte(nil), data...)
		corrupted[pos] ^= 0x01
		require.NotEqual(t, clean, Checksum(corrupted), "flip at %d", pos)
	}
}
