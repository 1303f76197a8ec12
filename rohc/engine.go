package rohc

// Engine (C6/C7 entrypoint): owns one Registry plus the set of profiles
// a channel has enabled, and exposes the single Decompress call a caller
// drives per spec.md §5 ("the core is a pure function of Config, the
// registry's current state, and the packet bytes; nothing it does
// blocks or spawns").
type Engine struct {
	cfg      Config
	registry *Registry
	enabled  map[ProfileID]bool
}

// NewEngine builds an Engine from a validated Config.
func NewEngine(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	enabled := make(map[ProfileID]bool, len(cfg.EnabledProfiles))
	for _, name := range cfg.EnabledProfiles {
		id, err := profileIDForName(name)
		if err != nil {
			return nil, err
		}
		enabled[id] = true
	}
	return &Engine{
		cfg:      cfg,
		registry: NewRegistry(cfg.cidType(), CID(cfg.MaxCID)),
		enabled:  enabled,
	}, nil
}

// Registry exposes the underlying context registry, e.g. for explicit
// teardown or inspection by a caller's management plane.
func (e *Engine) Registry() *Registry { return e.registry }

// Decompress routes buf to its context via CID framing and drives the
// packet-type dispatch (C7) through value decode (C8), header build and
// CRC check (C9), and the repair loop (C10).
func (e *Engine) Decompress(buf []byte, now Clock) (*ReconstructedPacket, error) {
	hdr, err := ParseFrameHeader(e.cfg.cidType(), buf)
	if err != nil {
		return nil, err
	}
	if hdr.TypeOctet+1+hdr.CIDLen > len(buf) {
		return nil, errorf(Malformed, hdr.CID, "frame header consumed past end of packet")
	}

	r := NewBitReader(hdr.Body(buf))
	first, err := r.PeekBits(8)
	if err != nil {
		return nil, err
	}
	b := byte(first)

	switch {
	case b == 0xFE || b&0xFE == 0xFC: // IR-DYN or IR
		return e.decompressIR(hdr.CID, r, now)
	default:
		ctx, ok := e.registry.Get(hdr.CID)
		if !ok || ctx.State != StateFullContext {
			return nil, errorf(NoContext, hdr.CID, "compressed packet for unestablished context")
		}
		bundle, err := ParseCompressed(r, hdr.CID)
		if err != nil {
			ctx.Stats.Malformed++
			return nil, err
		}
		return DecodeCompressed(ctx, bundle, now)
	}
}

// decompressIR handles both IR and IR-DYN: IR establishes (or
// re-establishes) the static chain and always carries a dynamic chain;
// IR-DYN refreshes reference state for an already-established context
// without re-sending static fields.
func (e *Engine) decompressIR(cid CID, r *BitReader, now Clock) (*ReconstructedPacket, error) {
	isIR, _, err := ParseIRType(r, cid)
	if err != nil {
		return nil, err
	}

	var ctx *Context
	if isIR {
		profileByte, err := r.PeekBits(8)
		if err != nil {
			return nil, err
		}
		if !e.enabled[ProfileID(profileByte)] {
			return nil, errorf(UnsupportedProfile, cid, "profile 0x%02x not enabled on this channel", profileByte)
		}
		profile, err := profileFor(ProfileID(profileByte), cid)
		if err != nil {
			return nil, err
		}
		ctx = NewContext(cid, e.cfg.CorrectionCounterMax)
		ctx.ProfileID = profile.ID()
		ctx.Profile = profile
		ctx.OuterList = NewListState(e.cfg.ListWindow)
		ctx.InnerList = NewListState(e.cfg.ListWindow)
	} else {
		existing, ok := e.registry.Get(cid)
		if !ok {
			return nil, errorf(NoContext, cid, "IR-DYN references an unestablished context")
		}
		ctx = existing
	}

	chains, crcByte, err := ParseIRChains(r, isIR, ctx.Profile, ctx, cid)
	if err != nil {
		return nil, err
	}

	ctx.HasInner = chains.HasInner
	ctx.OuterIP = chains.Outer
	if chains.HasInner {
		ctx.InnerIP = chains.Inner
	}
	ctx.State = StateStaticContext

	dv := DecodedValues{
		SN:        chains.SN,
		OuterIPID: outerIPIDFromChains(chains.Outer),
		InnerIPID: innerIPIDFromChains(chains.HasInner, chains.Inner),
		TS:        ctx.TSRef,
	}
	if rtpRef := ctx.RTPRef; rtpRef != nil {
		dv.RTPMarker = rtpRef.Marker
		dv.RTPExt = rtpRef.Extension
		dv.RTPPad = rtpRef.Padding
		dv.RTPPT = rtpRef.PayloadType
	}

	if chains.OuterListUpdate != nil {
		gen, err := ctx.OuterList.Apply(*chains.OuterListUpdate, cid)
		if err != nil {
			return nil, err
		}
		dv.ListUpdateOuter = chains.OuterListUpdate
		ctx.OuterIP.V6.ExtList = gen
	}
	if chains.InnerListUpdate != nil && ctx.HasInner {
		gen, err := ctx.InnerList.Apply(*chains.InnerListUpdate, cid)
		if err != nil {
			return nil, err
		}
		dv.ListUpdateInner = chains.InnerListUpdate
		ctx.InnerIP.V6.ExtList = gen
	}

	rp := &ReconstructedPacket{SN: dv.SN}
	rp.Outer = IPHeader{Version: ctx.OuterIP.Version}
	if ctx.OuterIP.Version == IPv4 {
		v4 := ctx.OuterIP.V4
		rp.Outer.V4 = &v4
	} else {
		v6 := ctx.OuterIP.V6
		rp.Outer.V6 = &v6
	}
	if ctx.HasInner {
		inner := IPHeader{Version: ctx.InnerIP.Version}
		if ctx.InnerIP.Version == IPv4 {
			v4 := ctx.InnerIP.V4
			inner.V4 = &v4
		} else {
			v6 := ctx.InnerIP.V6
			inner.V6 = &v6
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
	computed := CRCWidth8.Compute(input)
	if computed != crcByte {
		ctx.Stats.CRCFailed++
		return nil, errorf(CRCFailureUnrepairable, cid, "IR CRC-8 mismatch: computed 0x%02x, received 0x%02x", computed, crcByte)
	}

	ctx.commit(rp, dv, now)
	e.registry.Bind(cid, ctx)
	return rp, nil
}

func outerIPIDFromChains(h IPv4Or6) uint16 {
	if h.Version == IPv4 {
		return h.V4.Identification
	}
	return 0
}

func innerIPIDFromChains(hasInner bool, h IPv4Or6) uint16 {
	if hasInner && h.Version == IPv4 {
		return h.V4.Identification
	}
	return 0
}
