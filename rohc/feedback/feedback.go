// Package feedback constructs ROHC FEEDBACK-1 and FEEDBACK-2 payloads
// (RFC 3095 §5.7.6.1/§5.7.6.2). It only builds byte slices; sending them
// back to a compressor over whatever channel a deployment uses is the
// caller's concern (spec.md §1, §7).
package feedback

// Kind selects the feedback-2 ACK/NACK code (RFC 3095 §5.7.6.2, field
// "Ack_Type").
type Kind byte

const (
	ACK        Kind = 0
	NACK       Kind = 1
	STATICNACK Kind = 2
)

// OptionType names a FEEDBACK-2 option's TYPE field (RFC 3095 §5.7.6.3).
type OptionType byte

const (
	OptionCRC       OptionType = 1
	OptionRejectSN  OptionType = 2 // "SN-NOT-VALID" style reject
	OptionSN        OptionType = 3
	OptionClock     OptionType = 4
	OptionJitter    OptionType = 5
	OptionLossCount OptionType = 6
)

// Option is one FEEDBACK-2 option: a TYPE/LENGTH/DATA triple.
type Option struct {
	Type OptionType
	Data []byte
}

// Build1 constructs a FEEDBACK-1 payload: the compressor's last-known
// CRC-7, used as a lightweight positive acknowledgement.
func Build1(crc7 byte) []byte {
	return []byte{crc7 & 0x7F}
}

// Build2 constructs a FEEDBACK-2 payload: a 1-byte header carrying Kind
// (top 2 bits) and SN bits 8..13 (low 6 bits), a second byte for the low
// 8 bits of SN, then
// TYPE/LENGTH/DATA options in order, each no longer than 255 bytes.
func Build2(kind Kind, sn uint16, opts []Option) []byte {
	out := make([]byte, 2, 2+4*len(opts))
	out[0] = (byte(kind) << 6) | byte((sn>>8)&0x3F)
	out[1] = byte(sn)
	for _, opt := range opts {
		out = append(out, byte(opt.Type), byte(len(opt.Data)))
		out = append(out, opt.Data...)
	}
	return out
}

// Frame wraps a FEEDBACK-1 or FEEDBACK-2 payload for the channel's CID
// framing (RFC 3095 §5.7.6): CID 0 gets no prefix; other CIDs get the
// add-CID octet on small-CID channels and the SDVL-encoded CID on
// large-CID channels.
func Frame(cid uint32, smallCID bool, payload []byte) []byte {
	if cid == 0 {
		return payload
	}
	if smallCID {
		return append([]byte{0xE0 | byte(cid&0x0F)}, payload...)
	}
	out := sdvlEncode(cid)
	return append(out, payload...)
}

func sdvlEncode(v uint32) []byte {
	switch {
	case v <= 1<<7-1:
		return []byte{byte(v)}
	case v <= 1<<14-1:
		return []byte{0x80 | byte(v>>8), byte(v)}
	case v <= 1<<21-1:
		return []byte{0xC0 | byte(v>>16), byte(v >> 8), byte(v)}
	default:
		return []byte{0xE0 | byte(v>>24), byte(v >> 16), byte(v >> 8), byte(v)}
	}
}
