package rohc

// LSB decoder (C3): reconstructs a wide counter from its low k bits given
// a reference value and a shift p (RFC 3095 §4.5.1).
//
// Given v_ref, width w (16 or 32), k received bits m and shift p, there is
// exactly one value v in the window [v_ref - p, v_ref - p + 2^k - 1] (taken
// modulo 2^w) whose low k bits equal m. DecodeLSB always returns a
// candidate; it never fails — CRC validation downstream (C9) is what
// proves the candidate correct.

// LSBWidth is the modulus width of the counter being decoded: 16 for SN
// and IP-ID, 32 for RTP timestamps.
type LSBWidth uint

const (
	Width16 LSBWidth = 16
	Width32 LSBWidth = 32
)

func (w LSBWidth) modulus() uint64 {
	return uint64(1) << uint(w)
}

// DecodeLSB reconstructs the unique wide value matching m's low k bits
// within the interval implied by vRef and p.
func DecodeLSB(vRef uint64, k uint, m uint32, p int64, width LSBWidth) uint64 {
	mod := width.modulus()
	if k == 0 {
		return vRef % mod
	}
	mask := uint64(1)<<k - 1

	// interval lower bound, taken modulo 2^width; p may be negative (SN
	// decoding uses p = -1 once a context is in FULL_CONTEXT, see
	// snShiftParameter) so the subtraction is done in signed arithmetic
	// before normalising into [0, mod).
	diff := int64(vRef) - p
	modSigned := int64(mod)
	diff %= modSigned
	if diff < 0 {
		diff += modSigned
	}
	start := uint64(diff)

	mVal := uint64(m) & mask
	// The unique value in [start, start+2^k-1] (mod 2^width) whose low k
	// bits equal mVal is start plus the smallest non-negative delta that
	// makes the low k bits match.
	delta := (mVal - start) & mask
	return (start + delta) % mod
}

// snShiftParameter returns the profile-standard p value for SN decoding.
// RFC 3095 leaves p a negotiated parameter; the generic IP profile uses
// the conventional defaults also used by every open ROHC implementation:
// p=1 while a context is still establishing, giving a window that
// tolerates one step of reordering either side of v_ref, and p=-1 once
// FULL_CONTEXT is reached. SN only ever moves forward, so a negative p
// shifts the window to start just past v_ref, covering the next 2^k
// sequence numbers — the receiver's tolerance for consecutive packet
// loss before the window wraps back onto an already-seen value.
func snShiftParameter(establishing bool) int64 {
	if establishing {
		return 1
	}
	return -1
}

// tsShiftParameter implements the RFC 3095 §4.5.1 recommendation for
// unscaled timestamps: p = 2^(k-2) - 1.
func tsShiftParameter(k uint) int64 {
	if k < 2 {
		return 0
	}
	return int64(1)<<(k-2) - 1
}
