package rohc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_OffsetReference_DecodeSequential_RoundTrip(t *testing.T) {
	var sn uint16 = 42
	var ipID uint16 = 1042

	ref := OffsetReference(ipID, sn)
	got := DecodeSequential(ref, sn, 16, uint32(ipID-sn), ipIDShiftParameter())
	assert.Equal(t, ipID, got)
}

func Test_DecodeSequential_AdvancesWithSN(t *testing.T) {
	ref := OffsetReference(1000, 10) // offset = 990
	got := DecodeSequential(ref, 11, 16, 990, ipIDShiftParameter())
	assert.Equal(t, uint16(1001), got)
}
