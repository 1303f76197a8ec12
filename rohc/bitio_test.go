package rohc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func Test_SDVLRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		v := rapid.Uint32Range(0, 1<<29-1).Draw(t, "v")

		encoded, err := SDVLEncode(v)
		require.NoError(t, err)

		switch {
		case v <= sdvlMax1:
			assert.Len(t, encoded, 1)
		case v <= sdvlMax2:
			assert.Len(t, encoded, 2)
		case v <= sdvlMax3:
			assert.Len(t, encoded, 3)
		default:
			assert.Len(t, encoded, 4)
		}

		r := NewBitReader(encoded)
		decoded, n, err := SDVLDecode(r)
		require.NoError(t, err)
		assert.Equal(t, v, decoded)
		assert.Equal(t, len(encoded), n)
	})
}

func Test_SDVLEncode_RejectsOversized(t *testing.T) {
	_, err := SDVLEncode(1 << 29)
	assert.Error(t, err)
}

func Test_BitReader_ReadBitsRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		buf := rapid.SliceOfN(rapid.Byte(), 1, 16).Draw(t, "buf")
		r := NewBitReader(buf)

		var widths []int
		total := len(buf) * 8
		for total > 0 {
			w := rapid.IntRange(1, min(8, total)).Draw(t, "w")
			widths = append(widths, w)
			total -= w
		}

		for _, w := range widths {
			_, err := r.ReadBits(w)
			require.NoError(t, err)
		}
		assert.Equal(t, 0, r.BitsRemaining())
	})
}

func Test_BitWriter_ReadBack(t *testing.T) {
	w := NewBitWriter()
	w.WriteBits(0b101, 3)
	w.WriteBits(0xAB, 8)
	w.WriteBytes([]byte{0xCD})

	r := NewBitReader(w.Bytes())
	v, err := r.ReadBits(3)
	require.NoError(t, err)
	assert.Equal(t, uint32(0b101), v)

	v, err = r.ReadBits(8)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xAB), v)
}

func Test_AddCIDMapping(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cid := CID(rapid.IntRange(0, 15).Draw(t, "cid"))
		b := addCIDByte(cid)
		assert.Equal(t, byte(0xE0|byte(cid&0x0F)), b)
		assert.True(t, isAddCIDByte(b))
	})
}

