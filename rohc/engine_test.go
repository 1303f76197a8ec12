package rohc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildIRv4UDP constructs a complete IR packet (type 0xFC, profile UDP)
// for an IPv4+UDP flow with no inner tunnel header, computing its CRC-8
// the same way the engine itself will check it.
func buildIRv4UDP(t *testing.T, outer IPv4Header, udp UDPHeader, sn uint16) []byte {
	t.Helper()

	w := NewBitWriter()
	w.WriteBits(0xFC, 8) // IR type octet
	w.WriteBits(uint32(ProfileUDP), 8)

	scratchCtx := &Context{
		CID:     0,
		Profile: udpProfile{lite: false},
		OuterIP: IPv4Or6{Version: IPv4, V4: outer},
		UDPRef:  &udp,
	}
	rp := &ReconstructedPacket{
		SN:    sn,
		Outer: IPHeader{Version: IPv4, V4: &outer},
		UDP:   &udp,
	}
	dv := DecodedValues{SN: sn, OuterIPID: outer.Identification}
	crc := CRCWidth8.Compute(buildCRCInput(scratchCtx, rp, dv))
	w.WriteBits(uint32(crc), 8)

	// static chain
	w.WriteBits(4, 4) // version
	w.WriteBits(0, 4) // reserved
	w.WriteBits(uint32(outer.Protocol), 8)
	w.WriteBytes(outer.SrcAddr[:])
	w.WriteBytes(outer.DstAddr[:])
	w.WriteBits(uint32(udp.SrcPort), 16)
	w.WriteBits(uint32(udp.DstPort), 16)

	// dynamic chain
	w.WriteBits(uint32(outer.TOS), 8)
	w.WriteBits(uint32(outer.TTL), 8)
	w.WriteBits(uint32(outer.Identification), 16)
	w.WriteBits(0, 8) // flags: sequential, not NBO, not SID
	w.WriteBits(uint32(udp.Checksum), 16)

	w.WriteBits(uint32(sn), 16)

	return w.Bytes()
}

// buildUO0 constructs a UO-0 packet carrying the low 4 bits of sn,
// computing CRC-3 against ctx's current reference state exactly the way
// BuildAndCheck will when it decodes this packet.
func buildUO0(t *testing.T, ctx *Context, sn uint16) []byte {
	t.Helper()

	bundle := BitBundle{Type: PacketUO0, SN: LSBField{Bits: uint32(sn), Width: 16}}
	dv, err := ctx.Profile.DecodeValuesFromBits(ctx, bundle)
	require.NoError(t, err)
	dv.SN = sn

	outer, err := buildIPHeader(ctx.OuterIP, ctx.OuterList, dv.OuterIPID, nil, ctx.CID)
	require.NoError(t, err)
	rp := &ReconstructedPacket{SN: sn, Outer: IPHeader{Version: IPv4, V4: outer.V4}, UDP: ctx.UDPRef}
	crc := CRCWidth3.Compute(buildCRCInput(ctx, rp, dv))

	w := NewBitWriter()
	w.WriteBits(0, 1)
	w.WriteBits(uint32(sn)&0xF, 4)
	w.WriteBits(uint32(crc), 3)
	return w.Bytes()
}

func testEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := DefaultConfig()
	cfg.EnabledProfiles = []string{"uncompressed", "ip", "udp"}
	e, err := NewEngine(cfg)
	require.NoError(t, err)
	return e
}

// Scenario 1 (spec.md §8): IR then UO-0 stream, SN advancing 1..20; all
// reconstructions must byte-equal the original headers, sn_ref == 20
// afterwards.
func Test_Scenario_IRThenUO0Stream(t *testing.T) {
	e := testEngine(t)
	now := time.Unix(1700000000, 0)

	outer := IPv4Header{Protocol: 17, SrcAddr: [4]byte{10, 0, 0, 1}, DstAddr: [4]byte{10, 0, 0, 2}, TOS: 0, TTL: 64, Identification: 1}
	udp := UDPHeader{SrcPort: 5000, DstPort: 6000, Checksum: 0xABCD}

	irPacket := buildIRv4UDP(t, outer, udp, 1)
	rp, err := e.Decompress(irPacket, now)
	require.NoError(t, err)
	assert.Equal(t, uint16(1), rp.SN)
	assert.Equal(t, outer.SrcAddr, rp.Outer.V4.SrcAddr)

	ctx, ok := e.Registry().Get(0)
	require.True(t, ok)
	assert.Equal(t, StateFullContext, ctx.State)

	for sn := uint16(2); sn <= 20; sn++ {
		pkt := buildUO0(t, ctx, sn)
		rp, err := e.Decompress(pkt, now.Add(time.Duration(sn)*time.Millisecond))
		require.NoError(t, err, "sn=%d", sn)
		assert.Equal(t, sn, rp.SN)
		assert.Equal(t, outer.SrcAddr, rp.Outer.V4.SrcAddr)
		assert.Equal(t, outer.DstAddr, rp.Outer.V4.DstAddr)
	}

	assert.Equal(t, uint16(20), ctx.SNRef)
	assert.Equal(t, uint64(20), ctx.Stats.Accepted)
}

// Scenario 2 (spec.md §8): a UO-0 carrying only the low 4 bits of SN
// must resolve to the unique value in the LSB window, not merely the
// numerically closest candidate sharing those bits.
func Test_Scenario_MissedPackets_LSBWindowResolution(t *testing.T) {
	e := testEngine(t)
	now := time.Unix(1700000000, 0)

	outer := IPv4Header{Protocol: 17, SrcAddr: [4]byte{192, 168, 1, 1}, DstAddr: [4]byte{192, 168, 1, 2}, TTL: 64, Identification: 50}
	udp := UDPHeader{SrcPort: 1, DstPort: 2}

	irPacket := buildIRv4UDP(t, outer, udp, 100)
	_, err := e.Decompress(irPacket, now)
	require.NoError(t, err)

	ctx, _ := e.Registry().Get(0)
	pkt := buildUO0(t, ctx, 116) // 116 & 0xF == 4, matches "SN-LSB=0b0100"
	rp, err := e.Decompress(pkt, now.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, uint16(116), rp.SN)
}

// Scenario 3 (spec.md §8): IR establishes SN=100; the compressor then
// advances two full cycles of the UO-0 4-bit SN field (to SN=132) before
// the next packet is sent, so the wire only carries SN-LSB=4. The initial
// LSB decode resolves that to the nearest in-window candidate (116), CRC
// fails, and the wraparound repair hypothesis (116+16=132) must succeed.
func Test_Scenario_SNWrapRepair(t *testing.T) {
	e := testEngine(t)
	now := time.Unix(1700000000, 0)

	outer := IPv4Header{Protocol: 17, SrcAddr: [4]byte{10, 2, 2, 1}, DstAddr: [4]byte{10, 2, 2, 2}, TTL: 64, Identification: 5}
	udp := UDPHeader{SrcPort: 7, DstPort: 8}

	_, err := e.Decompress(buildIRv4UDP(t, outer, udp, 100), now)
	require.NoError(t, err)

	ctx, ok := e.Registry().Get(0)
	require.True(t, ok)
	require.Equal(t, uint16(100), ctx.SNRef)

	pkt := buildUO0(t, ctx, 132)

	rp, err := e.Decompress(pkt, now.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, uint16(132), rp.SN)
	assert.Equal(t, uint16(132), ctx.SNRef)
	assert.Equal(t, uint64(1), ctx.Stats.RepairedWrap)
}

// Scenario 6 (spec.md §8): large-CID framing routes a packet with
// CID=300 (SDVL 0x81 0x2C) to the right context.
func Test_Scenario_LargeCID(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CIDType = "large"
	cfg.MaxCID = 1000
	cfg.EnabledProfiles = []string{"uncompressed", "ip", "udp"}
	e, err := NewEngine(cfg)
	require.NoError(t, err)

	hdr, err := ParseFrameHeader(LargeCID, []byte{0xFC, 0x81, 0x2C})
	require.NoError(t, err)
	assert.Equal(t, CID(300), hdr.CID)

	outer := IPv4Header{Protocol: 17, SrcAddr: [4]byte{1, 1, 1, 1}, DstAddr: [4]byte{2, 2, 2, 2}, TTL: 32, Identification: 7}
	udp := UDPHeader{SrcPort: 10, DstPort: 20}
	irBody := buildIRv4UDP(t, outer, udp, 1)

	sdvl, err := SDVLEncode(300)
	require.NoError(t, err)
	frame := append([]byte{irBody[0]}, sdvl...)
	frame = append(frame, irBody[1:]...)

	now := time.Unix(1700000000, 0)
	rp, err := e.Decompress(frame, now)
	require.NoError(t, err)
	assert.Equal(t, uint16(1), rp.SN)

	ctx, ok := e.Registry().Get(300)
	require.True(t, ok)
	assert.Equal(t, StateFullContext, ctx.State)
}

// Context demotion (spec.md §8 scenario 4): repeated corrupted-CRC UO-0
// packets exhaust the repair budget, after which an IR-DYN restores
// FULL_CONTEXT.
func Test_Scenario_ContextDemotionAndRecovery(t *testing.T) {
	e := testEngine(t)
	now := time.Unix(1700000000, 0)

	outer := IPv4Header{Protocol: 17, SrcAddr: [4]byte{10, 1, 1, 1}, DstAddr: [4]byte{10, 1, 1, 2}, TTL: 64, Identification: 1}
	udp := UDPHeader{SrcPort: 1, DstPort: 2}
	_, err := e.Decompress(buildIRv4UDP(t, outer, udp, 1), now)
	require.NoError(t, err)

	ctx, _ := e.Registry().Get(0)
	ctx.CorrectionCounterMax = 3

	corrupted := buildUO0(t, ctx, 2)
	// Flip a CRC bit. Bit 0 would not do: the flipped CRC-3 would then
	// equal the one of the SN=18 wraparound repair hypothesis.
	corrupted[len(corrupted)-1] ^= 0x02

	for i := 0; i < 4; i++ {
		_, err := e.Decompress(corrupted, now)
		assert.Error(t, err)
	}

	assert.Equal(t, StateStaticContext, ctx.State)

	// STATIC_CONTEXT accepts only IR/IR-DYN: a further UO-0 — even one
	// that would otherwise CRC-validate — must fail NO_CONTEXT rather
	// than silently resurrecting FULL_CONTEXT against stale references.
	wouldHaveValidated := buildUO0(t, ctx, 2)
	_, err = e.Decompress(wouldHaveValidated, now)
	require.Error(t, err)
	assert.True(t, IsKind(err, NoContext))
	assert.Equal(t, StateStaticContext, ctx.State)

	// A fresh IR-DYN restores FULL_CONTEXT.
	w := NewBitWriter()
	w.WriteBits(0xFE, 8)
	w.WriteBits(uint32(ProfileUDP), 8)

	rp := &ReconstructedPacket{SN: 50, Outer: IPHeader{Version: IPv4, V4: &outer}, UDP: &udp}
	dv := DecodedValues{SN: 50, OuterIPID: outer.Identification}
	crc := CRCWidth8.Compute(buildCRCInput(ctx, rp, dv))
	w.WriteBits(uint32(crc), 8)
	w.WriteBits(uint32(outer.TOS), 8)
	w.WriteBits(uint32(outer.TTL), 8)
	w.WriteBits(uint32(outer.Identification), 16)
	w.WriteBits(0, 8)
	w.WriteBits(uint32(udp.Checksum), 16)
	w.WriteBits(50, 16)

	rp2, err := e.Decompress(w.Bytes(), now)
	require.NoError(t, err)
	assert.Equal(t, uint16(50), rp2.SN)
	assert.Equal(t, StateFullContext, ctx.State)
}

// buildIRv6IP constructs a complete IR packet (profile IP, no next
// header) for an IPv6 flow whose dynamic chain establishes a list
// compression generation via the given update.
func buildIRv6IP(t *testing.T, outer IPv6Header, sn uint16, listUpdate func(w *BitWriter)) []byte {
	t.Helper()

	w := NewBitWriter()
	w.WriteBits(0xFC, 8) // IR type octet
	w.WriteBits(uint32(ProfileIP), 8)

	scratchCtx := &Context{CID: 0, Profile: ipProfile{}, OuterIP: IPv4Or6{Version: IPv6, V6: outer}}
	rp := &ReconstructedPacket{SN: sn, Outer: IPHeader{Version: IPv6, V6: &outer}}
	dv := DecodedValues{SN: sn}
	crc := CRCWidth8.Compute(buildCRCInput(scratchCtx, rp, dv))
	w.WriteBits(uint32(crc), 8)

	// static chain
	w.WriteBits(6, 4)
	w.WriteBits(uint32(outer.TrafficClass), 8)
	w.WriteBits(outer.FlowLabel, 20)
	w.WriteBits(uint32(outer.NextHeader), 8)
	w.WriteBytes(outer.SrcAddr[:])
	w.WriteBytes(outer.DstAddr[:])

	// dynamic chain
	w.WriteBits(uint32(outer.HopLimit), 8)
	if listUpdate != nil {
		w.WriteBits(1, 1) // hasList
		listUpdate(w)
	} else {
		w.WriteBits(0, 1)
	}

	w.WriteBits(uint32(sn), 16)

	return w.Bytes()
}

// Scenario 5 (spec.md §8): an IR carrying a Hop-by-Hop + Destination
// chain establishes gen_id=0; a subsequent UOR-2 with an Ext-3
// list-insertion extension publishes gen_id=1 adding an AH item, and
// the builder resolves the new chain with the AH appended in order.
func Test_Scenario_IPv6ListExt3Insertion(t *testing.T) {
	e := testEngine(t)
	now := time.Unix(1700000000, 0)

	outer := IPv6Header{
		NextHeader: 0, // Hop-by-Hop Options
		HopLimit:   64,
		SrcAddr:    [16]byte{0x20, 0x01, 0x0d, 0xb8},
		DstAddr:    [16]byte{0x20, 0x01, 0x0d, 0xb8, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1},
	}

	hbhBytes := []byte{0x3A, 0x00}
	destBytes := []byte{0x3B, 0x00}

	irPacket := buildIRv6IP(t, outer, 1, func(w *BitWriter) {
		w.WriteBits(uint32(ET1Insert), 2)
		w.WriteBits(1, 1) // PS=1: 4-bit XI indices
		w.WriteBits(0, 8) // gen_id=0
		w.WriteBits(0, 8) // ref_gen_id (unused: first-ever list)
		w.WriteBits(2, 8) // 2 insertions
		w.WriteBits(0, 4) // slot 0: Hop-by-Hop
		w.WriteBits(1, 1) // has bytes
		w.WriteBits(uint32(len(hbhBytes)), 8)
		w.WriteBytes(hbhBytes)
		w.WriteBits(1, 4) // slot 1: Destination
		w.WriteBits(1, 1)
		w.WriteBits(uint32(len(destBytes)), 8)
		w.WriteBytes(destBytes)
	})

	rp, err := e.Decompress(irPacket, now)
	require.NoError(t, err)
	require.Equal(t, uint16(1), rp.SN)

	ctx, ok := e.Registry().Get(0)
	require.True(t, ok)
	require.NotNil(t, ctx.OuterIP.V6.ExtList)
	assert.Equal(t, []int{0, 1}, ctx.OuterIP.V6.ExtList.Items)

	// Now a UOR-2 with an Ext-3 list-insertion adding an AH item (slot 2)
	// on top of gen_id=0.
	ahBytes := []byte{0x06, 0x04}

	scratchCtx2 := &Context{CID: 0, Profile: ipProfile{}, OuterIP: ctx.OuterIP}
	rp2 := &ReconstructedPacket{SN: 2, Outer: IPHeader{Version: IPv6, V6: &outer}}
	dv2 := DecodedValues{SN: 2}
	crc7 := CRCWidth7.Compute(buildCRCInput(scratchCtx2, rp2, dv2))

	w := NewBitWriter()
	w.WriteBits(0b110, 3)
	w.WriteBits(2, 5) // SN low 5 bits == 2
	w.WriteBits(1, 1) // X: extension follows
	w.WriteBits(uint32(crc7), 7)

	w.WriteBits(0b11, 2) // Ext-3 selector
	w.WriteBits(0, 1)    // S: no extra SN bits
	w.WriteBits(0, 1)    // R: no RTP fields
	w.WriteBits(0, 1)    // T: no TS
	w.WriteBits(0, 1)    // I: no outer IP-ID bits
	w.WriteBits(0, 1)    // I2: no inner IP-ID bits
	w.WriteBits(1, 1)    // list update present

	w.WriteBits(uint32(ET3RemoveInsert), 2)
	w.WriteBits(1, 1) // PS=1
	w.WriteBits(1, 8) // gen_id=1
	w.WriteBits(0, 8) // ref_gen_id=0
	w.WriteBits(0, 8) // 0 removals
	w.WriteBits(1, 8) // 1 insertion
	w.WriteBits(2, 4) // slot 2: AH
	w.WriteBits(1, 1) // has bytes
	w.WriteBits(uint32(len(ahBytes)), 8)
	w.WriteBytes(ahBytes)

	rp3, err := e.Decompress(w.Bytes(), now.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, uint16(2), rp3.SN)

	gen, ok := ctx.OuterList.Lookup(1)
	require.True(t, ok)
	assert.Equal(t, []int{0, 1, 2}, gen.Items)

	resolved, err := ctx.OuterList.Resolve(gen, 0)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{hbhBytes, destBytes, ahBytes}, resolved)
}
