package rohc

// Header builder and CRC check (C9): turns a candidate DecodedValues into
// a full ReconstructedPacket, computes the CRC the packet type calls for
// over the right field selection, and compares it against the value the
// packet carried. Nothing is written back to ctx until the comparison
// succeeds — a failed or cancelled build never mutates context state
// (spec.md §5).

// buildIPHeader materialises outer/inner IP headers from decoded IP-ID
// values layered onto ctx's current reference fields, resolving any list
// update against the owning ListState.
func buildIPHeader(ref IPv4Or6, list *ListState, ipid uint16, update *Update, cid CID) (IPHeader, error) {
	var out IPHeader
	out.Version = ref.Version

	switch ref.Version {
	case IPv4:
		v4 := ref.V4
		v4.Identification = ipid
		out.V4 = &v4

	case IPv6:
		v6 := ref.V6
		if update != nil && list != nil {
			gen, err := list.Apply(*update, cid)
			if err != nil {
				return out, err
			}
			v6.ExtList = gen
		}
		out.V6 = &v6

	default:
		return out, errorf(Malformed, cid, "context has no established IP version")
	}

	return out, nil
}

// buildCRCInput assembles the CRC-STATIC || CRC-DYNAMIC field selection
// (RFC 3095 §5.9.1) for a candidate reconstruction: IP static fields
// first (version, protocol/next-header, addresses — never IP-ID), then
// the active profile's next-header static fields, then IP dynamic fields
// (TOS/TTL/flags, IP-ID included here), then the profile's next-header
// dynamic fields.
func buildCRCInput(ctx *Context, rp *ReconstructedPacket, dv DecodedValues) []byte {
	fs := NewFieldSet()

	putIPv4Static := func(h *IPv4Header) {
		fs.PutByte(4 << 4)
		fs.PutByte(h.Protocol)
		fs.PutBytes(h.SrcAddr[:])
		fs.PutBytes(h.DstAddr[:])
	}
	putIPv4Dynamic := func(h *IPv4Header) {
		fs.PutByte(h.TOS)
		fs.PutByte(h.TTL)
		fs.PutUint16(h.Identification)
		var flags byte
		if h.DontFrag {
			flags |= 0x80
		}
		if h.RND {
			flags |= 0x40
		}
		if h.NBO {
			flags |= 0x20
		}
		if h.SID {
			flags |= 0x10
		}
		fs.PutByte(flags)
	}
	putIPv6Static := func(h *IPv6Header) {
		fs.PutByte(6 << 4)
		fs.PutByte(h.TrafficClass)
		fs.PutUint32(h.FlowLabel)
		fs.PutByte(h.NextHeader)
		fs.PutBytes(h.SrcAddr[:])
		fs.PutBytes(h.DstAddr[:])
	}
	putIPv6Dynamic := func(h *IPv6Header) {
		fs.PutByte(h.HopLimit)
	}

	if rp.Outer.V4 != nil {
		putIPv4Static(rp.Outer.V4)
	} else if rp.Outer.V6 != nil {
		putIPv6Static(rp.Outer.V6)
	}
	if rp.Inner != nil {
		if rp.Inner.V4 != nil {
			putIPv4Static(rp.Inner.V4)
		} else if rp.Inner.V6 != nil {
			putIPv6Static(rp.Inner.V6)
		}
	}

	ctx.Profile.CRCStaticFields(ctx, fs)

	if rp.Outer.V4 != nil {
		putIPv4Dynamic(rp.Outer.V4)
	} else if rp.Outer.V6 != nil {
		putIPv6Dynamic(rp.Outer.V6)
	}
	if rp.Inner != nil {
		if rp.Inner.V4 != nil {
			putIPv4Dynamic(rp.Inner.V4)
		} else if rp.Inner.V6 != nil {
			putIPv6Dynamic(rp.Inner.V6)
		}
	}

	ctx.Profile.CRCDynamicFields(ctx, dv, fs)

	return fs.Bytes()
}

// BuildAndCheck runs C9 for a single candidate SN hypothesis: it builds
// the full reconstructed packet from dv, computes the packet type's CRC
// over the right field selection, and compares it against crcReceived.
// On success it returns the reconstruction and commits it to ctx; on
// CRC mismatch it returns CRCFailureUnrepairable without mutating ctx,
// leaving the caller (repair.go) free to retry with a different SN
// hypothesis. It may be called more than once per incoming packet (one
// attempt, then one per repair hypothesis), so it never counts a failure
// in ctx.Stats — the caller that knows whether the *packet* as a whole
// ultimately failed is the one that counts it. A success is counted in
// Stats.Accepted by commit.
func BuildAndCheck(ctx *Context, dv DecodedValues, crcWidth CRCWidth, crcReceived byte, now Clock) (*ReconstructedPacket, error) {
	rp := &ReconstructedPacket{SN: dv.SN}

	outer, err := buildIPHeader(ctx.OuterIP, ctx.OuterList, dv.OuterIPID, dv.ListUpdateOuter, ctx.CID)
	if err != nil {
		return nil, err
	}
	rp.Outer = outer

	if ctx.HasInner {
		inner, err := buildIPHeader(ctx.InnerIP, ctx.InnerList, dv.InnerIPID, dv.ListUpdateInner, ctx.CID)
		if err != nil {
			return nil, err
		}
		rp.Inner = &inner
	}

	rp.Next = ctx.Profile.Kind()
	if ctx.UDPRef != nil {
		udp := *ctx.UDPRef
		rp.UDP = &udp
	}
	if ctx.RTPRef != nil {
		rtp := *ctx.RTPRef
		rp.RTP = &rtp
	}

	input := buildCRCInput(ctx, rp, dv)
	computed := crcWidth.Compute(input)
	if computed != crcReceived {
		return nil, errorf(CRCFailureUnrepairable, ctx.CID, "CRC-%d mismatch: computed 0x%02x, received 0x%02x", int(crcWidth), computed, crcReceived)
	}

	ctx.commit(rp, dv, now)
	return rp, nil
}
