package rohc

// Packet parser (C7): dispatch on the ROHC type octet (already past CID
// framing) to IR / IR-DYN / UO-0 / UO-1 / UOR-2, parsing base plus
// optional extensions 0..3 and extracting bit bundles and/or static and
// dynamic chains. Nothing here resolves a bit bundle against a
// reference value — that is C8's job.

// IRChains is everything an IR or IR-DYN packet carries beyond its type
// octet and profile/CRC bytes: the static (IR only) and dynamic IP
// chains, plus the trailing SN field this profile family always
// transmits in the dynamic chain.
type IRChains struct {
	HasStatic bool
	Outer     IPv4Or6
	HasInner  bool
	Inner     IPv4Or6
	SN        uint16

	OuterListUpdate *Update
	InnerListUpdate *Update
}

// ParseIRType reads the first octet of an IR or IR-DYN packet and
// reports which it is and whether a dynamic chain follows. The low (D)
// bit of the IR octet "1111110D" is not inspected: both IR encodings are
// reported, and parsed, as carrying a dynamic chain.
func ParseIRType(r *BitReader, cid CID) (isIR bool, hasDynamic bool, err error) {
	b, err := r.ReadBits(8)
	if err != nil {
		return false, false, err
	}
	switch {
	case b == 0xFE: // 1111 1110: IR-DYN
		return false, true, nil
	case b&0xFE == 0xFC: // 1111 110x: IR
		return true, true, nil // IR always carries a dynamic chain
	default:
		return false, false, errorf(Malformed, cid, "not an IR/IR-DYN type octet: 0x%02x", b)
	}
}

// ParseIRChains parses the profile id, CRC-8 byte, and (for IR) the
// static chain followed by the dynamic chain, or (for IR-DYN) just the
// dynamic chain, for a single- or double-IP-header flow. Next-header
// static/dynamic fields are installed directly onto ctx by the profile
// hooks, since that is where their reference state lives (profile.go).
func ParseIRChains(r *BitReader, isIR bool, profile Profile, ctx *Context, cid CID) (*IRChains, byte, error) {
	profileByte, err := r.ReadBits(8)
	if err != nil {
		return nil, 0, err
	}
	if ProfileID(profileByte) != profile.ID() {
		return nil, 0, errorf(UnsupportedProfile, cid, "IR profile byte 0x%02x does not match context profile", profileByte)
	}

	crcByte, err := r.ReadBits(8)
	if err != nil {
		return nil, 0, err
	}

	chains := &IRChains{}

	if isIR {
		outerVersion, err := r.PeekBits(4)
		if err != nil {
			return nil, 0, err
		}
		chains.Outer, err = parseStaticIP(r, IPVersion(outerVersion), cid)
		if err != nil {
			return nil, 0, err
		}

		if isTunnelProtocol(chains.Outer) {
			innerVersion, err := r.PeekBits(4)
			if err != nil {
				return nil, 0, err
			}
			chains.Inner, err = parseStaticIP(r, IPVersion(innerVersion), cid)
			if err != nil {
				return nil, 0, err
			}
			chains.HasInner = true
		}

		if err := profile.ParseStaticNextHeader(ctx, r); err != nil {
			return nil, 0, err
		}

		chains.HasStatic = true
	} else {
		chains.HasInner = ctx.HasInner
		chains.Outer = ctx.OuterIP
		chains.Inner = ctx.InnerIP
	}

	if err := parseDynamicIP(r, &chains.Outer, cid, &chains.OuterListUpdate); err != nil {
		return nil, 0, err
	}
	if chains.HasInner {
		if err := parseDynamicIP(r, &chains.Inner, cid, &chains.InnerListUpdate); err != nil {
			return nil, 0, err
		}
	}

	if profile.Kind() != NextHeaderNone {
		if err := profile.ParseDynNextHeader(ctx, r); err != nil {
			return nil, 0, err
		}
	}

	sn, err := r.ReadBits(16)
	if err != nil {
		return nil, 0, err
	}
	chains.SN = uint16(sn)

	return chains, byte(crcByte), nil
}

func parseStaticIP(r *BitReader, version IPVersion, cid CID) (IPv4Or6, error) {
	var out IPv4Or6
	switch version {
	case IPv4:
		h, err := parseIPv4Static(r, cid)
		if err != nil {
			return out, err
		}
		out.Version = IPv4
		out.V4 = *h
	case IPv6:
		h, err := parseIPv6Static(r, cid)
		if err != nil {
			return out, err
		}
		out.Version = IPv6
		out.V6 = *h
	default:
		return out, errorf(Malformed, cid, "unsupported IP version %d in static chain", version)
	}
	return out, nil
}

func parseDynamicIP(r *BitReader, h *IPv4Or6, cid CID, update **Update) error {
	switch h.Version {
	case IPv4:
		return parseIPv4Dynamic(r, &h.V4, cid)
	case IPv6:
		u, err := parseIPv6Dynamic(r, &h.V6, nil, cid)
		if err != nil {
			return err
		}
		*update = u
		return nil
	default:
		return errorf(Malformed, cid, "unknown IP version in dynamic chain")
	}
}

func isTunnelProtocol(h IPv4Or6) bool {
	switch h.Version {
	case IPv4:
		return h.V4.Protocol == 4 || h.V4.Protocol == 41
	case IPv6:
		return h.V6.NextHeader == 4 || h.V6.NextHeader == 41
	default:
		return false
	}
}

// ParseCompressed dispatches UO-0 / UO-1 / UOR-2 (+ extensions) and
// extracts their bit bundles. r must be positioned at the start of the
// ROHC type octet, which is peeked here to select the packet type.
func ParseCompressed(r *BitReader, cid CID) (BitBundle, error) {
	first, err := r.PeekBits(8)
	if err != nil {
		return BitBundle{}, err
	}
	b := byte(first)

	switch {
	case b&0x80 == 0x00: // 0xxxxxxx: UO-0
		return parseUO0(r, cid)
	case b&0xC0 == 0x80: // 10xxxxxx: UO-1 family
		return parseUO1(r, cid)
	case b&0xE0 == 0xC0: // 110xxxxx: UOR-2 family
		return parseUOR2(r, cid)
	default:
		return BitBundle{}, errorf(Malformed, cid, "unrecognised packet-type octet 0x%02x", b)
	}
}

func parseUO0(r *BitReader, cid CID) (BitBundle, error) {
	if _, err := r.ReadBits(1); err != nil { // leading 0
		return BitBundle{}, err
	}
	sn, err := r.ReadBits(4)
	if err != nil {
		return BitBundle{}, err
	}
	crc, err := r.ReadBits(3)
	if err != nil {
		return BitBundle{}, err
	}
	return BitBundle{
		Type:          PacketUO0,
		SN:            LSBField{Bits: sn, Width: 4},
		CRCValue:      byte(crc),
		CRCWidth:      CRCWidth3,
		ExtensionType: -1,
	}, nil
}

func parseUO1(r *BitReader, cid CID) (BitBundle, error) {
	if _, err := r.ReadBits(2); err != nil { // leading 10
		return BitBundle{}, err
	}
	idBits, err := r.ReadBits(6)
	if err != nil {
		return BitBundle{}, err
	}
	crc, err := r.ReadBits(8) // T(1)+CRC-7 packed in the trailing octet
	if err != nil {
		return BitBundle{}, err
	}
	tBit := crc & 0x80
	crc7 := byte(crc & 0x7F)

	bundle := BitBundle{
		Type:          PacketUO1,
		CRCValue:      crc7,
		CRCWidth:      CRCWidth7,
		ExtensionType: -1,
	}
	if tBit != 0 {
		bundle.TS = LSBField{Bits: idBits, Width: 6}
	} else {
		bundle.IPID = LSBField{Bits: idBits, Width: 6}
	}
	_ = cid
	return bundle, nil
}

func parseUOR2(r *BitReader, cid CID) (BitBundle, error) {
	if _, err := r.ReadBits(3); err != nil { // leading 110
		return BitBundle{}, err
	}
	sn, err := r.ReadBits(5)
	if err != nil {
		return BitBundle{}, err
	}
	xFlag, err := r.ReadBits(1)
	if err != nil {
		return BitBundle{}, err
	}
	crc, err := r.ReadBits(7)
	if err != nil {
		return BitBundle{}, err
	}

	bundle := BitBundle{
		Type:          PacketUOR2,
		SN:            LSBField{Bits: sn, Width: 5},
		CRCValue:      byte(crc),
		CRCWidth:      CRCWidth7,
		ExtensionType: -1,
	}

	if xFlag == 0 {
		return bundle, nil
	}

	extType, err := r.PeekBits(2)
	if err != nil {
		return BitBundle{}, err
	}
	bundle.ExtensionType = int(extType)
	if err := parseExtension(r, &bundle, cid); err != nil {
		return BitBundle{}, err
	}
	return bundle, nil
}

// parseExtension parses UOR-2 extensions 0..3 (RFC 3095 §5.7.5), merging
// their extra bits into bundle.
func parseExtension(r *BitReader, bundle *BitBundle, cid CID) error {
	switch bundle.ExtensionType {
	case 0:
		if _, err := r.ReadBits(2); err != nil { // "00" selector
			return err
		}
		snExt, err := r.ReadBits(3)
		if err != nil {
			return err
		}
		ipidExt, err := r.ReadBits(3)
		if err != nil {
			return err
		}
		bundle.SN = widenLSB(bundle.SN, snExt, 3)
		bundle.IPID = widenLSB(bundle.IPID, ipidExt, 3)
		return nil

	case 1:
		if _, err := r.ReadBits(2); err != nil { // "01" selector
			return err
		}
		snExt, err := r.ReadBits(11)
		if err != nil {
			return err
		}
		ipidExt, err := r.ReadBits(8)
		if err != nil {
			return err
		}
		bundle.SN = LSBField{Bits: snExt, Width: 11}
		bundle.IPID = LSBField{Bits: ipidExt, Width: 8}
		return nil

	case 2:
		if _, err := r.ReadBits(2); err != nil { // "10" selector
			return err
		}
		snExt, err := r.ReadBits(11)
		if err != nil {
			return err
		}
		outerExt, err := r.ReadBits(8)
		if err != nil {
			return err
		}
		innerExt, err := r.ReadBits(8)
		if err != nil {
			return err
		}
		bundle.SN = LSBField{Bits: snExt, Width: 11}
		bundle.IPID = LSBField{Bits: outerExt, Width: 8}
		bundle.IPID2 = LSBField{Bits: innerExt, Width: 8}
		return nil

	case 3:
		return parseExtension3(r, bundle, cid)

	default:
		return errorf(Malformed, cid, "impossible extension type %d", bundle.ExtensionType)
	}
}

// parseExtension3 implements the flag-directed Ext-3 (RFC 3095 §5.7.5,
// the most general extension): a mode byte selects which optional fields
// follow.
func parseExtension3(r *BitReader, bundle *BitBundle, cid CID) error {
	if _, err := r.ReadBits(2); err != nil { // "11" selector
		return err
	}
	sBit, err := r.ReadBits(1) // SN present
	if err != nil {
		return err
	}
	rBit, err := r.ReadBits(1) // RTP fields present
	if err != nil {
		return err
	}
	tBit, err := r.ReadBits(1) // TS present
	if err != nil {
		return err
	}
	iBit, err := r.ReadBits(1) // outer IP-ID present
	if err != nil {
		return err
	}
	i2Bit, err := r.ReadBits(1) // inner IP-ID present
	if err != nil {
		return err
	}
	listBit, err := r.ReadBits(1) // list update present
	if err != nil {
		return err
	}

	if sBit != 0 {
		snExt, err := r.ReadBits(8)
		if err != nil {
			return err
		}
		bundle.SN = LSBField{Bits: snExt, Width: 8}
	}
	if tBit != 0 {
		tsExt, err := r.ReadBits(16)
		if err != nil {
			return err
		}
		bundle.TS = LSBField{Bits: tsExt, Width: 16}
	}
	if iBit != 0 {
		ipidExt, err := r.ReadBits(8)
		if err != nil {
			return err
		}
		bundle.IPID = LSBField{Bits: ipidExt, Width: 8}
	}
	if i2Bit != 0 {
		ipid2Ext, err := r.ReadBits(8)
		if err != nil {
			return err
		}
		bundle.IPID2 = LSBField{Bits: ipid2Ext, Width: 8}
	}
	if rBit != 0 {
		flags, err := r.ReadBits(8)
		if err != nil {
			return err
		}
		bundle.RTPMarker = BoolField{Value: flags&0x80 != 0, Present: true}
		bundle.RTPExtBit = BoolField{Value: flags&0x40 != 0, Present: true}
		bundle.RTPPadBit = BoolField{Value: flags&0x20 != 0, Present: true}
		bundle.RTPPT = LSBField{Bits: uint32(flags & 0x1F), Width: 5}
	}
	if listBit != 0 {
		u, err := parseListUpdate(r, cid)
		if err != nil {
			return err
		}
		bundle.Ext3List = u
	}

	return nil
}

// widenLSB prepends extraWidth more-significant extra bits onto an
// existing LSB field (used by Ext-0, which adds a few extra bits on top
// of the base UOR-2 field rather than replacing it outright).
func widenLSB(base LSBField, extra uint32, extraWidth uint) LSBField {
	return LSBField{
		Bits:  (extra << base.Width) | base.Bits,
		Width: base.Width + extraWidth,
	}
}
