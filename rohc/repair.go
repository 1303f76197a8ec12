package rohc

// Correction loop and state machine (C10). A compressed packet (UO-0,
// UO-1, UOR-2) is decoded against the context's current reference values
// and CRC-checked (C9). If the CRC fails, two narrowly scoped repair
// hypotheses are tried in turn before giving up:
//
//  1. SN-LSB wraparound: the transmitted SN bits matched the low k bits
//     of a value outside the decoder's assumed window because the true
//     counter wrapped past 2^k since the reference was last updated.
//  2. Clock-based SN repair: when packets arrive at roughly the cadence
//     of ctx.InterArrivalTime, the number of elapsed intervals since
//     LastOKTime bounds how far SN could plausibly have advanced.
//
// Each failing packet that enters the repair loop costs one point against
// CorrectionCounter, however many hypotheses it tries; once the counter
// exceeds CorrectionCounterMax the context is demoted rather than kept
// guessing indefinitely (spec.md §4.10).

// DecodeCompressed runs C7's already-parsed bundle through C8, C9 and,
// on CRC failure, the C10 repair loop, returning the first hypothesis
// that validates. On failure the SN/IP-ID/TS references are left as they
// were; the correction counter, the statistics and, on demotion, State
// do change.
func DecodeCompressed(ctx *Context, bundle BitBundle, now Clock) (*ReconstructedPacket, error) {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()

	if ctx.State != StateFullContext {
		return nil, errorf(NoContext, ctx.CID, "no established context for compressed packet")
	}

	dv, err := ctx.Profile.DecodeValuesFromBits(ctx, bundle)
	if err != nil {
		return nil, err
	}

	rp, err := BuildAndCheck(ctx, dv, bundle.CRCWidth, bundle.CRCValue, now)
	if err == nil {
		return rp, nil
	}
	if !IsKind(err, CRCFailureUnrepairable) {
		return nil, err
	}

	rp, err = ctx.repair(bundle, dv, now, err)
	if err != nil {
		ctx.Stats.CRCFailed++
	}
	return rp, err
}

// repair tries the bounded set of C10 hypotheses in turn. firstErr is
// returned verbatim if every hypothesis (or the counter budget) is
// exhausted.
func (c *Context) repair(bundle BitBundle, dv DecodedValues, now Clock, firstErr error) (*ReconstructedPacket, error) {
	if c.CorrectionCounter > c.CorrectionCounterMax {
		c.demote(now)
		return nil, firstErr
	}
	c.CorrectionCounter++

	if !bundle.SN.present() {
		return nil, firstErr
	}

	if rp, ok := c.tryWrapRepair(bundle, dv, now); ok {
		c.Stats.RepairedWrap++
		return rp, nil
	}

	if rp, ok := c.tryClockRepair(bundle, now); ok {
		c.Stats.RepairedClock++
		return rp, nil
	}

	if c.CorrectionCounter > c.CorrectionCounterMax {
		c.demote(now)
	}
	return nil, firstErr
}

// tryWrapRepair re-derives SN as if the counter had wrapped one more cycle
// than the narrow LSB window around SNRef assumed. The first (failed)
// attempt already found the unique value in [SNRef-p, SNRef-p+2^k-1] whose
// low k bits match the wire bits — dv.SN here is that candidate. Adding
// 2^k preserves the low k bits (RFC 3095 §5.3.2.2.4's wraparound
// hypothesis), reaching the next window out, which SN-LSB decoding alone
// can never select since it is restricted to the single interval holding
// a unique match.
func (c *Context) tryWrapRepair(bundle BitBundle, dv DecodedValues, now Clock) (*ReconstructedPacket, bool) {
	if !bundle.SN.present() {
		return nil, false
	}
	cycle := uint16(1) << bundle.SN.Width
	hypothesis := dv.SN + cycle

	hdv, err := c.Profile.DecodeValuesFromBits(c, withSNHint(bundle, hypothesis))
	if err != nil {
		return nil, false
	}
	hdv.SN = hypothesis

	rp, err := BuildAndCheck(c, hdv, bundle.CRCWidth, bundle.CRCValue, now)
	if err != nil {
		return nil, false
	}
	return rp, true
}

// tryClockRepair bounds the SN search to the handful of values reachable
// within the elapsed wall-clock interval since the last accepted packet,
// scaled by the context's observed inter-arrival time. A zero
// InterArrivalTime (no prior packet pair to measure from) makes this a
// no-op rather than an unbounded search, per spec.md's guidance that an
// unmeasured cadence must never be guessed at.
func (c *Context) tryClockRepair(bundle BitBundle, now Clock) (*ReconstructedPacket, bool) {
	if c.InterArrivalTime <= 0 || c.LastOKTime.IsZero() {
		return nil, false
	}
	elapsed := now.Sub(c.LastOKTime)
	if elapsed <= 0 {
		return nil, false
	}
	maxSteps := int(elapsed/c.InterArrivalTime) + 1
	if maxSteps > 64 {
		maxSteps = 64 // bound the search regardless of a wildly large gap
	}

	mask := uint32(1)<<bundle.SN.Width - 1
	for step := 1; step <= maxSteps; step++ {
		hypothesis := c.SNRef + uint16(step)
		if uint32(hypothesis)&mask != bundle.SN.Bits&mask {
			continue
		}
		dv, err := c.Profile.DecodeValuesFromBits(c, withSNHint(bundle, hypothesis))
		if err != nil {
			continue
		}
		dv.SN = hypothesis

		rp, err := BuildAndCheck(c, dv, bundle.CRCWidth, bundle.CRCValue, now)
		if err != nil {
			continue
		}
		return rp, true
	}
	return nil, false
}

// withSNHint widens the bundle's SN field to its full reference width so
// DecodeValuesFromBits resolves IP-ID/TS relative to the hypothesised SN
// verbatim rather than re-running the k-bit LSB search.
func withSNHint(bundle BitBundle, sn uint16) BitBundle {
	out := bundle
	out.SN = LSBField{Bits: uint32(sn), Width: 16}
	return out
}

// demote drops the context back to STATIC_CONTEXT: static chain fields
// (addresses, protocol, SSRC, ...) remain trustworthy, but SN/IP-ID/TS
// reference state must be re-established by a fresh IR-DYN before any
// further compressed packet will be accepted.
func (c *Context) demote(now Clock) {
	c.State = StateStaticContext
	c.CorrectionCounter = 0
	c.CurrentTime = now
	c.Stats.Demoted++
}
