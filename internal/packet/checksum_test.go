package packet

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// TestChecksumSensitivity is property 3 from spec.md 8: flipping any single
// bit in the checksummed window changes the computed checksum.
func TestChecksumSensitivity(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		words := rapid.IntRange(1, 32).Draw(t, "words")
		n := words * 2 // even length: every byte falls inside Checksum's word-aligned window
		data := rapid.SliceOfN(rapid.Byte(), n, n).Draw(t, "data")
		bit := rapid.IntRange(0, n*8-1).Draw(t, "bit")

		original := Checksum(data)

		flipped := make([]byte, len(data))
		copy(flipped, data)
		flipped[bit/8] ^= 1 << uint(bit%8)

		require.NotEqual(t, original, Checksum(flipped))
	})
}

// TestChecksumIsInvolutive exercises the one's-complement identity the
// implementation relies on: complementing the data's running sum and
// re-summing against the checksum always cancels to the all-ones word.
func TestChecksumIsInvolutive(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 32).Draw(t, "pairs")
		data := rapid.SliceOfN(rapid.Byte(), n*2, n*2).Draw(t, "data")
		cs := Checksum(data)

		var sum uint16
		for i := 0; i < len(data); i += 2 {
			sum += uint16(data[i]) | uint16(data[i+1])<<8
		}
		sum += cs
		require.Equal(t, uint16(0xFFFF), sum)
	})
}

func TestVerifyFixedRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 64).Draw(t, "n")
		body := rapid.SliceOfN(rapid.Byte(), n, n).Draw(t, "body")
		cs := Checksum(body)
		packet := append(append([]byte{}, body...), byte(cs), byte(cs>>8))
		require.True(t, VerifyFixed(packet))
	})
}
