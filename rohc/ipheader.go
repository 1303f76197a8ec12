package rohc

// IPv4/IPv6 static and dynamic chain parsing, shared by IR and IR-DYN
// packets (RFC 3095 §5.7.7.3/§5.7.7.4). The IP-ID is deliberately never
// part of the static chain for IPv4 — it belongs to the dynamic chain
// and is excluded from CRC-STATIC (spec.md §4.2).

func parseIPv4Static(r *BitReader, cid CID) (*IPv4Header, error) {
	version, err := r.ReadBits(4)
	if err != nil {
		return nil, err
	}
	if version != 4 {
		return nil, errorf(Malformed, cid, "expected IPv4 static chain, got version %d", version)
	}
	if _, err := r.ReadBits(4); err != nil { // reserved
		return nil, err
	}
	protocol, err := r.ReadBits(8)
	if err != nil {
		return nil, err
	}
	src, err := r.ReadRawBytes(4)
	if err != nil {
		return nil, err
	}
	dst, err := r.ReadRawBytes(4)
	if err != nil {
		return nil, err
	}
	h := &IPv4Header{Protocol: byte(protocol)}
	copy(h.SrcAddr[:], src)
	copy(h.DstAddr[:], dst)
	return h, nil
}

func parseIPv4Dynamic(r *BitReader, h *IPv4Header, cid CID) error {
	tos, err := r.ReadBits(8)
	if err != nil {
		return err
	}
	ttl, err := r.ReadBits(8)
	if err != nil {
		return err
	}
	id, err := r.ReadBits(16)
	if err != nil {
		return err
	}
	flags, err := r.ReadBits(8)
	if err != nil {
		return err
	}
	h.TOS = byte(tos)
	h.TTL = byte(ttl)
	h.Identification = uint16(id)
	h.DontFrag = flags&0x80 != 0
	h.RND = flags&0x40 != 0
	h.NBO = flags&0x20 != 0
	h.SID = flags&0x10 != 0
	_ = cid
	return nil
}

func parseIPv6Static(r *BitReader, cid CID) (*IPv6Header, error) {
	version, err := r.ReadBits(4)
	if err != nil {
		return nil, err
	}
	if version != 6 {
		return nil, errorf(Malformed, cid, "expected IPv6 static chain, got version %d", version)
	}
	tc, err := r.ReadBits(8)
	if err != nil {
		return nil, err
	}
	fl, err := r.ReadBits(20)
	if err != nil {
		return nil, err
	}
	nh, err := r.ReadBits(8)
	if err != nil {
		return nil, err
	}
	src, err := r.ReadRawBytes(16)
	if err != nil {
		return nil, err
	}
	dst, err := r.ReadRawBytes(16)
	if err != nil {
		return nil, err
	}
	h := &IPv6Header{TrafficClass: byte(tc), FlowLabel: fl, NextHeader: byte(nh)}
	copy(h.SrcAddr[:], src)
	copy(h.DstAddr[:], dst)
	return h, nil
}

// parseIPv6Dynamic reads the hop limit plus an optional extension-header
// list update (C5), returning the update unapplied if present; list is
// not used here, the caller applies the update.
func parseIPv6Dynamic(r *BitReader, h *IPv6Header, list *ListState, cid CID) (*Update, error) {
	hopLimit, err := r.ReadBits(8)
	if err != nil {
		return nil, err
	}
	h.HopLimit = byte(hopLimit)

	hasList, err := r.ReadBits(1)
	if err != nil {
		return nil, err
	}
	if hasList == 0 {
		return nil, nil
	}
	return parseListUpdate(r, cid)
}

// parseListUpdate reads one list-compression update (C5 wire format):
//
//	1 bit   ET-present flag (already consumed by caller)
//	2 bits  ET (0..3)
//	1 bit   PS (1: 4-bit XI indices, 0: 8-bit XI indices)
//	8 bits  gen_id
//	8 bits  ref_gen_id
//	8 bits  removal count (ET2/ET3 only)
//	        removal indices, each PS-width
//	8 bits  insertion count (ET0/ET1/ET3 only)
//	        for each: PS-width index, 1 bit has-bytes, [8 bits length, bytes] if present
func parseListUpdate(r *BitReader, cid CID) (*Update, error) {
	etBits, err := r.ReadBits(2)
	if err != nil {
		return nil, err
	}
	psBit, err := r.ReadBits(1)
	if err != nil {
		return nil, err
	}
	genID, err := r.ReadBits(8)
	if err != nil {
		return nil, err
	}
	refGenID, err := r.ReadBits(8)
	if err != nil {
		return nil, err
	}

	u := Update{ET: ET(etBits), PS: psBit != 0, GenID: byte(genID), RefGenID: byte(refGenID)}
	idxWidth := 8
	if u.PS {
		idxWidth = 4
	}

	if u.ET == ET2Remove || u.ET == ET3RemoveInsert {
		count, err := r.ReadBits(8)
		if err != nil {
			return nil, err
		}
		for i := uint32(0); i < count; i++ {
			idx, err := r.ReadBits(idxWidth)
			if err != nil {
				return nil, err
			}
			u.RemoveSet = append(u.RemoveSet, int(idx))
		}
	}

	if u.ET == ET0Generic || u.ET == ET1Insert || u.ET == ET3RemoveInsert {
		count, err := r.ReadBits(8)
		if err != nil {
			return nil, err
		}
		for i := uint32(0); i < count; i++ {
			idx, err := r.ReadBits(idxWidth)
			if err != nil {
				return nil, err
			}
			hasBytes, err := r.ReadBits(1)
			if err != nil {
				return nil, err
			}
			xi := XI{Index: int(idx)}
			if hasBytes != 0 {
				length, err := r.ReadBits(8)
				if err != nil {
					return nil, err
				}
				itemBytes, err := r.ReadRawBytes(int(length))
				if err != nil {
					return nil, err
				}
				xi.HasBytes = true
				xi.ItemBytes = itemBytes
			}
			u.XIs = append(u.XIs, xi)
		}
	}

	_ = cid
	return &u, nil
}
