package rohc

// IP-ID decoder (C4). IPv4 IP-ID is either carried verbatim ("random",
// rnd=1) or reconstructed as an offset from the current SN ("sequential",
// rnd=0). NBO (network byte order) only affects how the literal 16-bit
// value is laid out on the wire when it is carried in full; it never
// changes the arithmetic below.

// IPIDRef is the per-direction (outer or inner) IP-ID reference state
// tracked by a Context.
type IPIDRef struct {
	Value  uint16 // last reconstructed IP-ID
	Random bool   // rnd flag from the last IR/IR-DYN or UO update
	NBO    bool   // nbo flag: literal IP-ID carried in network byte order
}

// DecodeSequential reconstructs the IP-ID for the sequential-offset case.
// offsetRef is the last reconstructed (ipID - sn) (mod 2^16); sn is the
// SN already decoded for this packet (C8 decodes SN before IP-ID). k/m/p
// describe the LSB-encoded offset bits carried on the wire.
func DecodeSequential(offsetRef uint16, sn uint16, k uint, m uint32, p int64) uint16 {
	offset := DecodeLSB(uint64(offsetRef), k, m, p, Width16)
	return uint16(uint32(sn) + uint32(offset))
}

// OffsetReference computes the (ipID - sn) reference value to feed into
// DecodeSequential / to store on successful commit.
func OffsetReference(ipID, sn uint16) uint16 {
	return uint16(uint32(ipID) - uint32(sn))
}

// ipIDShiftParameter is the conventional p for the IP-ID offset field:
// p = 0, so the decoding window starts at the reference offset and covers
// the 2^k values from there upwards; an offset below the reference is
// not reachable.
func ipIDShiftParameter() int64 {
	return 0
}
