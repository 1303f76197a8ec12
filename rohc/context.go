package rohc

import (
	"sync"
	"time"

	"github.com/openrohc/rohc/rohc/feedback"
)

// Context is a Decompression Context (spec.md §3): the per-flow state a
// Registry routes packets to. It is processed by one caller at a time
// (spec.md §5 cooperative scheduling model); the mutex here only guards
// against accidental concurrent misuse, it is not a point of blocking
// contention in the intended usage pattern.
type Context struct {
	mu sync.Mutex

	CID       CID
	ProfileID ProfileID
	Profile   Profile

	State ContextState

	OuterIP  IPv4Or6
	HasInner bool
	InnerIP  IPv4Or6

	OuterList *ListState
	InnerList *ListState

	SNRef        uint16
	SNShiftWide  bool // false while establishing: p=1; true once FULL_CONTEXT
	OuterIPIDRef uint16
	InnerIPIDRef uint16
	TSRef        uint32

	UDPRef *UDPHeader
	RTPRef *RTPHeader

	CorrectionCounter    int
	CorrectionCounterMax int

	LastOKTime       time.Time
	CurrentTime      time.Time
	InterArrivalTime time.Duration

	Stats Stats
}

// IPv4Or6 is a small tagged union avoiding a pointer-to-interface for the
// hot path; exactly one of V4/V6 is meaningful, selected by Version.
type IPv4Or6 struct {
	Version IPVersion
	V4      IPv4Header
	V6      IPv6Header
}

// Stats are per-context operational counters (SPEC_FULL.md §4
// supplemented feature): not part of spec.md's data model, but a
// low-risk addition any production decompressor context exposes.
type Stats struct {
	Accepted      uint64
	RepairedWrap  uint64
	RepairedClock uint64
	Demoted       uint64
	Malformed     uint64
	CRCFailed     uint64 // counted once per packet, not once per repair hypothesis tried
}

// NewContext constructs a fresh context for cid with the given
// correction-counter budget; the caller installs its profile. It starts
// in NO_CONTEXT: only
// an IR packet will be accepted until its static chain parses.
func NewContext(cid CID, correctionCounterMax int) *Context {
	return &Context{
		CID:                  cid,
		State:                StateNoContext,
		CorrectionCounterMax: correctionCounterMax,
	}
}

// snShiftParam returns the profile-standard p for SN LSB decoding,
// narrow while the context is still establishing itself and wide once
// FULL_CONTEXT has been reached (lsb.go).
func (c *Context) snShiftParam() int64 {
	return snShiftParameter(!c.SNShiftWide)
}

// decodeCommonValues implements the profile-independent portion of C8:
// SN first (since IP-ID depends on it), then outer/inner IP-ID.
func decodeCommonValues(ctx *Context, bundle BitBundle) (DecodedValues, error) {
	sn := ctx.SNRef
	if bundle.SN.present() {
		sn = uint16(DecodeLSB(uint64(ctx.SNRef), bundle.SN.Width, bundle.SN.Bits, ctx.snShiftParam(), Width16))
	}
	return decodeCommonValuesFrom(ctx, bundle, sn), nil
}

// decodeCommonValuesFrom is decodeCommonValues parameterised over an
// already-resolved SN, letting the repair loop (C10) re-derive IP-ID and
// TS under a hypothesised SN without re-running the bit-level SN decode.
func decodeCommonValuesFrom(ctx *Context, bundle BitBundle, sn uint16) DecodedValues {
	dv := DecodedValues{SN: sn}

	if bundle.IPID.present() {
		dv.OuterIPID = DecodeSequential(ctx.OuterIPIDRef, sn, bundle.IPID.Width, bundle.IPID.Bits, ipIDShiftParameter())
	} else if ctx.OuterIP.Version == IPv4 && !ctx.OuterIP.V4.RND {
		dv.OuterIPID = uint16(uint32(sn) + uint32(ctx.OuterIPIDRef))
	} else if ctx.OuterIP.Version == IPv4 {
		dv.OuterIPID = ctx.OuterIP.V4.Identification
	}

	if bundle.IPID2.present() && ctx.HasInner {
		dv.InnerIPID = DecodeSequential(ctx.InnerIPIDRef, sn, bundle.IPID2.Width, bundle.IPID2.Bits, ipIDShiftParameter())
	} else if ctx.HasInner && ctx.InnerIP.Version == IPv4 && !ctx.InnerIP.V4.RND {
		dv.InnerIPID = uint16(uint32(sn) + uint32(ctx.InnerIPIDRef))
	} else if ctx.HasInner && ctx.InnerIP.Version == IPv4 {
		dv.InnerIPID = ctx.InnerIP.V4.Identification
	}

	if bundle.TS.present() && !bundle.TSScaled {
		p := tsShiftParameter(bundle.TS.Width)
		dv.TS = uint32(DecodeLSB(uint64(ctx.TSRef), bundle.TS.Width, bundle.TS.Bits, p, Width32))
	} else if !bundle.TSScaled {
		dv.TS = ctx.TSRef
	}

	if bundle.Ext3List != nil {
		// The wire carries a single list-update flag in Ext-3; route it
		// to whichever header currently owns an IPv6 extension chain,
		// preferring the inner header on a tunnelled flow since that is
		// the header nearest the transport payload RFC 3095 §5.8.6
		// expects list updates to track.
		switch {
		case ctx.HasInner && ctx.InnerIP.Version == IPv6:
			dv.ListUpdateInner = bundle.Ext3List
		case ctx.OuterIP.Version == IPv6:
			dv.ListUpdateOuter = bundle.Ext3List
		}
	}

	return dv
}

// commit installs a CRC-validated reconstruction as the new reference
// state (C9's final step) and resets repair bookkeeping. Commit is
// always the last action of a successful decode, so a canceled or
// failed call never mutates ctx (spec.md §5 cancellation guarantee).
func (c *Context) commit(rp *ReconstructedPacket, dv DecodedValues, now time.Time) {
	c.OuterIP.Version = rp.Outer.Version
	if rp.Outer.V4 != nil {
		c.OuterIP.V4 = *rp.Outer.V4
		c.OuterIPIDRef = OffsetReference(dv.OuterIPID, dv.SN)
	}
	if rp.Outer.V6 != nil {
		c.OuterIP.V6 = *rp.Outer.V6
	}

	if rp.Inner != nil {
		c.HasInner = true
		c.InnerIP.Version = rp.Inner.Version
		if rp.Inner.V4 != nil {
			c.InnerIP.V4 = *rp.Inner.V4
			c.InnerIPIDRef = OffsetReference(dv.InnerIPID, dv.SN)
		}
		if rp.Inner.V6 != nil {
			c.InnerIP.V6 = *rp.Inner.V6
		}
	}

	c.SNRef = dv.SN
	c.TSRef = dv.TS
	if rp.UDP != nil {
		udp := *rp.UDP
		c.UDPRef = &udp
	}
	if rp.RTP != nil {
		rtp := *rp.RTP
		c.RTPRef = &rtp
	}

	if dv.ListUpdateOuter != nil && c.OuterList != nil {
		if gen, ok := c.OuterList.Lookup(dv.ListUpdateOuter.GenID); ok {
			c.OuterList.MarkKnown(gen)
		}
	}
	if dv.ListUpdateInner != nil && c.InnerList != nil {
		if gen, ok := c.InnerList.Lookup(dv.ListUpdateInner.GenID); ok {
			c.InnerList.MarkKnown(gen)
		}
	}

	c.CorrectionCounter = 0
	c.SNShiftWide = true
	c.State = StateFullContext
	if !c.LastOKTime.IsZero() {
		c.InterArrivalTime = now.Sub(c.LastOKTime)
	}
	c.LastOKTime = now
	c.CurrentTime = now
	c.Stats.Accepted++
}

// Feedback builds a FEEDBACK-1 or FEEDBACK-2 payload (SPEC_FULL.md §4)
// reporting this context's current state back towards the compressor.
// kind == feedback.ACK selects FEEDBACK-1 (a bare CRC-7 ack); any other
// kind selects a
// FEEDBACK-2 carrying the requested kind, the last-known SN, and a
// SN option so the compressor can resynchronise. smallCID selects the
// channel's CID framing for Frame.
func (c *Context) Feedback(kind feedback.Kind, smallCID bool) []byte {
	if kind == feedback.ACK {
		crc := CRC7(buildSNCRCInput(c))
		return feedback.Frame(uint32(c.CID), smallCID, feedback.Build1(crc))
	}
	opts := []feedback.Option{{
		Type: feedback.OptionSN,
		Data: []byte{byte(c.SNRef >> 8), byte(c.SNRef)},
	}}
	payload := feedback.Build2(kind, c.SNRef, opts)
	return feedback.Frame(uint32(c.CID), smallCID, payload)
}

// buildSNCRCInput is the minimal field selection FEEDBACK-1's CRC-7
// covers: just the current SN reference, enough to let a compressor
// detect a stale acknowledgement.
func buildSNCRCInput(c *Context) []byte {
	return []byte{byte(c.SNRef >> 8), byte(c.SNRef)}
}
