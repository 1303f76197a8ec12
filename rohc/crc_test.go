package rohc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func Test_CRC_Idempotent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		data := rapid.SliceOfN(rapid.Byte(), 1, 32).Draw(t, "data")
		assert.Equal(t, CRC3(data), CRC3(data))
		assert.Equal(t, CRC7(data), CRC7(data))
		assert.Equal(t, CRC8(data), CRC8(data))
	})
}

func Test_CRC_SingleBitFlipChangesValue(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		data := rapid.SliceOfN(rapid.Byte(), 1, 32).Draw(t, "data")
		idx := rapid.IntRange(0, len(data)-1).Draw(t, "idx")
		bit := rapid.IntRange(0, 7).Draw(t, "bit")

		flipped := append([]byte(nil), data...)
		flipped[idx] ^= 1 << uint(bit)

		// A single flipped bit changes at least one of the three CRC
		// widths almost always; requiring at least one guards against
		// the rare coincidental collision at any single width.
		changed := CRC3(data) != CRC3(flipped) ||
			CRC7(data) != CRC7(flipped) ||
			CRC8(data) != CRC8(flipped)
		assert.True(t, changed)
	})
}

func Test_CRCWidth_Compute(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03}
	assert.Equal(t, CRC3(data), CRCWidth3.Compute(data))
	assert.Equal(t, CRC7(data), CRCWidth7.Compute(data))
	assert.Equal(t, CRC8(data), CRCWidth8.Compute(data))
}

func Test_CRCWidth_Compute_PanicsOnInvalidWidth(t *testing.T) {
	assert.Panics(t, func() {
		CRCWidth(99).Compute([]byte{0x00})
	})
}

func Test_FieldSet_PutOrdering(t *testing.T) {
	fs := NewFieldSet()
	fs.PutByte(0x01)
	fs.PutUint16(0x0203)
	fs.PutUint32(0x04050607)
	fs.PutBytes([]byte{0x08, 0x09})

	assert.Equal(t, []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09}, fs.Bytes())
}
