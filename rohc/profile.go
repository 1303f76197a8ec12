package rohc

// Profile is the per-profile handler set named in spec.md §3 as the
// "variant axis" of the core: parse_static_next_hdr, parse_dyn_next_hdr,
// decode_values_from_bits, build_next_header, compute_crc_static and
// compute_crc_dynamic all vary by profile. Dispatch is per-packet (one
// Profile implementation per Context), never per-field.
type Profile interface {
	ID() ProfileID
	Kind() NextHeaderKind

	// ParseStaticNextHeader reads the next-header's static fields from
	// an IR packet's static chain and installs them on ctx.
	ParseStaticNextHeader(ctx *Context, r *BitReader) error

	// ParseDynNextHeader reads the next-header's dynamic fields from an
	// IR or IR-DYN packet's dynamic chain and installs them on ctx.
	ParseDynNextHeader(ctx *Context, r *BitReader) error

	// DecodeValuesFromBits turns a parsed BitBundle plus ctx's current
	// reference values into a candidate DecodedValues record (C8).
	DecodeValuesFromBits(ctx *Context, bundle BitBundle) (DecodedValues, error)

	// BuildNextHeader materialises the next-header bytes for a
	// candidate reconstruction (C9), without committing them to ctx.
	BuildNextHeader(ctx *Context, decoded DecodedValues) ([]byte, error)

	// CRCStaticFields appends this profile's next-header static field
	// selection to fs (C2/C9). The IP-ID is never included here for
	// IPv4, per RFC 3095 §5.9.1.
	CRCStaticFields(ctx *Context, fs *FieldSet)

	// CRCDynamicFields appends this profile's next-header dynamic field
	// selection, evaluated against the candidate decoded values.
	CRCDynamicFields(ctx *Context, decoded DecodedValues, fs *FieldSet)
}

// ipProfile implements the generic IP profile: no transport header is
// compressed, the IP payload is opaque to the engine.
type ipProfile struct{}

func (ipProfile) ID() ProfileID          { return ProfileIP }
func (ipProfile) Kind() NextHeaderKind   { return NextHeaderNone }
func (ipProfile) ParseStaticNextHeader(*Context, *BitReader) error { return nil }
func (ipProfile) ParseDynNextHeader(*Context, *BitReader) error    { return nil }

func (ipProfile) DecodeValuesFromBits(ctx *Context, bundle BitBundle) (DecodedValues, error) {
	return decodeCommonValues(ctx, bundle)
}

func (ipProfile) BuildNextHeader(*Context, DecodedValues) ([]byte, error) { return nil, nil }
func (ipProfile) CRCStaticFields(*Context, *FieldSet)                     {}
func (ipProfile) CRCDynamicFields(*Context, DecodedValues, *FieldSet)     {}

// udpProfile implements the UDP and UDP-Lite next-header profiles: a
// fixed 8-byte transport header (ports, length, checksum) following the
// IP chain.
type udpProfile struct {
	lite bool
}

func (p udpProfile) ID() ProfileID {
	if p.lite {
		return ProfileUDPLite
	}
	return ProfileUDP
}
func (udpProfile) Kind() NextHeaderKind { return NextHeaderUDP }

func (udpProfile) ParseStaticNextHeader(ctx *Context, r *BitReader) error {
	srcPort, err := r.ReadBits(16)
	if err != nil {
		return err
	}
	dstPort, err := r.ReadBits(16)
	if err != nil {
		return err
	}
	ctx.UDPRef = &UDPHeader{SrcPort: uint16(srcPort), DstPort: uint16(dstPort)}
	return nil
}

func (udpProfile) ParseDynNextHeader(ctx *Context, r *BitReader) error {
	if ctx.UDPRef == nil {
		ctx.UDPRef = &UDPHeader{}
	}
	checksum, err := r.ReadBits(16)
	if err != nil {
		return err
	}
	ctx.UDPRef.Checksum = uint16(checksum)
	return nil
}

func (udpProfile) DecodeValuesFromBits(ctx *Context, bundle BitBundle) (DecodedValues, error) {
	return decodeCommonValues(ctx, bundle)
}

func (udpProfile) BuildNextHeader(ctx *Context, decoded DecodedValues) ([]byte, error) {
	if ctx.UDPRef == nil {
		return nil, errorf(Malformed, ctx.CID, "UDP profile context has no UDP reference")
	}
	fs := NewFieldSet()
	fs.PutUint16(ctx.UDPRef.SrcPort)
	fs.PutUint16(ctx.UDPRef.DstPort)
	// Length is recomputed by the caller once the payload is appended;
	// the engine emits 0 here as a placeholder the caller must fill in.
	fs.PutUint16(0)
	fs.PutUint16(ctx.UDPRef.Checksum)
	return fs.Bytes(), nil
}

func (udpProfile) CRCStaticFields(ctx *Context, fs *FieldSet) {
	if ctx.UDPRef == nil {
		return
	}
	fs.PutUint16(ctx.UDPRef.SrcPort)
	fs.PutUint16(ctx.UDPRef.DstPort)
}

func (udpProfile) CRCDynamicFields(ctx *Context, _ DecodedValues, fs *FieldSet) {
	if ctx.UDPRef == nil {
		return
	}
	fs.PutUint16(ctx.UDPRef.Checksum)
}

// rtpProfile implements the RTP-over-UDP next-header profile: a 12-byte
// fixed RTP header (no CSRC list; CSRC-list compression is out of scope
// per spec.md §9) layered over UDP, with TS either LSB-decoded directly
// or via TS_SCALED.
type rtpProfile struct{}

func (rtpProfile) ID() ProfileID        { return ProfileRTP }
func (rtpProfile) Kind() NextHeaderKind { return NextHeaderRTP }

func (rtpProfile) ParseStaticNextHeader(ctx *Context, r *BitReader) error {
	srcPort, err := r.ReadBits(16)
	if err != nil {
		return err
	}
	dstPort, err := r.ReadBits(16)
	if err != nil {
		return err
	}
	ssrc, err := r.ReadBits(32)
	if err != nil {
		return err
	}
	ctx.UDPRef = &UDPHeader{SrcPort: uint16(srcPort), DstPort: uint16(dstPort)}
	ctx.RTPRef = &RTPHeader{Version: 2, SSRC: ssrc}
	return nil
}

func (rtpProfile) ParseDynNextHeader(ctx *Context, r *BitReader) error {
	if ctx.UDPRef == nil {
		ctx.UDPRef = &UDPHeader{}
	}
	if ctx.RTPRef == nil {
		ctx.RTPRef = &RTPHeader{Version: 2}
	}
	checksum, err := r.ReadBits(16)
	if err != nil {
		return err
	}
	ctx.UDPRef.Checksum = uint16(checksum)

	flags, err := r.ReadBits(8) // P, X, CC(unused: always 0), M, PT top bit packing
	if err != nil {
		return err
	}
	ctx.RTPRef.Padding = flags&0x80 != 0
	ctx.RTPRef.Extension = flags&0x40 != 0
	ctx.RTPRef.Marker = flags&0x20 != 0
	ctx.RTPRef.PayloadType = byte(flags & 0x7F)

	seq, err := r.ReadBits(16)
	if err != nil {
		return err
	}
	ctx.RTPRef.SequenceNumber = uint16(seq)

	tsStride, err := r.ReadBits(32)
	if err != nil {
		return err
	}
	ctx.RTPRef.TSStride = tsStride

	return nil
}

func (rtpProfile) DecodeValuesFromBits(ctx *Context, bundle BitBundle) (DecodedValues, error) {
	dv, err := decodeCommonValues(ctx, bundle)
	if err != nil {
		return dv, err
	}

	if bundle.TSScaled && ctx.RTPRef != nil && ctx.RTPRef.TSStride != 0 {
		// TS_SCALED: TS = (TS_SCALED_decoded * TS_STRIDE) + TS_OFFSET.
		scaledRef := uint64(ctx.TSRef-ctx.RTPRef.TSOffset) / uint64(ctx.RTPRef.TSStride)
		p := tsShiftParameter(bundle.TS.Width)
		scaled := DecodeLSB(scaledRef, bundle.TS.Width, bundle.TS.Bits, p, Width32)
		dv.TS = uint32(scaled)*ctx.RTPRef.TSStride + ctx.RTPRef.TSOffset
	}

	if bundle.RTPMarker.Present {
		dv.RTPMarker = bundle.RTPMarker.Value
	} else if ctx.RTPRef != nil {
		dv.RTPMarker = ctx.RTPRef.Marker
	}
	if bundle.RTPExtBit.Present {
		dv.RTPExt = bundle.RTPExtBit.Value
	} else if ctx.RTPRef != nil {
		dv.RTPExt = ctx.RTPRef.Extension
	}
	if bundle.RTPPadBit.Present {
		dv.RTPPad = bundle.RTPPadBit.Value
	} else if ctx.RTPRef != nil {
		dv.RTPPad = ctx.RTPRef.Padding
	}
	if bundle.RTPPT.present() {
		dv.RTPPT = byte(bundle.RTPPT.Bits)
	} else if ctx.RTPRef != nil {
		dv.RTPPT = ctx.RTPRef.PayloadType
	}

	return dv, nil
}

func (rtpProfile) BuildNextHeader(ctx *Context, decoded DecodedValues) ([]byte, error) {
	if ctx.UDPRef == nil || ctx.RTPRef == nil {
		return nil, errorf(Malformed, ctx.CID, "RTP profile context missing UDP/RTP reference")
	}
	fs := NewFieldSet()
	fs.PutUint16(ctx.UDPRef.SrcPort)
	fs.PutUint16(ctx.UDPRef.DstPort)
	fs.PutUint16(0) // length placeholder, filled by caller
	fs.PutUint16(ctx.UDPRef.Checksum)

	var b0 byte = 0x80 // version 2, no padding/extension/csrc by default
	if decoded.RTPPad {
		b0 |= 0x20
	}
	if decoded.RTPExt {
		b0 |= 0x10
	}
	fs.PutByte(b0)

	var b1 byte = decoded.RTPPT & 0x7F
	if decoded.RTPMarker {
		b1 |= 0x80
	}
	fs.PutByte(b1)

	fs.PutUint16(ctx.RTPRef.SequenceNumber)
	fs.PutUint32(decoded.TS)
	fs.PutUint32(ctx.RTPRef.SSRC)
	return fs.Bytes(), nil
}

func (rtpProfile) CRCStaticFields(ctx *Context, fs *FieldSet) {
	if ctx.UDPRef == nil || ctx.RTPRef == nil {
		return
	}
	fs.PutUint16(ctx.UDPRef.SrcPort)
	fs.PutUint16(ctx.UDPRef.DstPort)
	fs.PutUint32(ctx.RTPRef.SSRC)
}

func (rtpProfile) CRCDynamicFields(ctx *Context, decoded DecodedValues, fs *FieldSet) {
	if ctx.UDPRef == nil || ctx.RTPRef == nil {
		return
	}
	fs.PutUint16(ctx.UDPRef.Checksum)
	var b byte
	if decoded.RTPMarker {
		b |= 0x80
	}
	b |= decoded.RTPPT & 0x7F
	fs.PutByte(b)
	fs.PutUint32(decoded.TS)
}

// profileFor resolves the Profile implementation for an enabled profile
// ID, or reports UnsupportedProfile.
func profileFor(id ProfileID, cid CID) (Profile, error) {
	switch id {
	case ProfileIP, ProfileUncompressed:
		return ipProfile{}, nil
	case ProfileUDP:
		return udpProfile{lite: false}, nil
	case ProfileUDPLite:
		return udpProfile{lite: true}, nil
	case ProfileRTP:
		return rtpProfile{}, nil
	default:
		return nil, errorf(UnsupportedProfile, cid, "profile 0x%02x not implemented", byte(id))
	}
}
