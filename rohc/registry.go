package rohc

import (
	"github.com/puzpuzpuz/xsync/v4"
)

// Context registry (C6): CID -> *Context, plus the small/large CID wire
// framing (RFC 3095 §5.2).
//
// Lookups dominate mutations by a wide margin — every packet looks its
// context up, but a context is only inserted/removed on IR success or
// teardown — so the registry is backed by xsync.Map, a lock-striped
// concurrent map tuned for read-heavy access, rather than a bare
// sync.RWMutex + map[CID]*Context.

// CIDType selects which CID wire encoding a channel uses.
type CIDType int

const (
	// SmallCID: 0..15, routed via an optional add-CID byte.
	SmallCID CIDType = iota
	// LargeCID: 0..2^14-1, SDVL-encoded after the ROHC type octet.
	LargeCID
)

// CID is a non-negative Context IDentifier.
type CID uint32

// addCIDByte builds the small-CID add-CID octet: 0xE0 | (cid & 0x0F).
func addCIDByte(cid CID) byte {
	return 0xE0 | byte(cid&0x0F)
}

// isAddCIDByte reports whether b is an add-CID prefix octet (1110 cccc).
func isAddCIDByte(b byte) bool {
	return b&0xF0 == 0xE0
}

// Registry maps CID to Context for one channel (one CIDType, one
// max_cid). It is safe for concurrent use by multiple goroutines
// provided distinct contexts are not shared (spec.md §5).
type Registry struct {
	cidType CIDType
	maxCID  CID
	ctxs    *xsync.Map[CID, *Context]
}

// NewRegistry returns an empty registry for the given channel
// configuration.
func NewRegistry(cidType CIDType, maxCID CID) *Registry {
	return &Registry{
		cidType: cidType,
		maxCID:  maxCID,
		ctxs:    xsync.NewMap[CID, *Context](),
	}
}

// Get returns the context bound to cid, if any.
func (r *Registry) Get(cid CID) (*Context, bool) {
	return r.ctxs.Load(cid)
}

// Bind installs ctx under cid, replacing any previous binding. Called
// only after an IR packet's static chain parses without error (spec.md
// §3: Decompression Context lifecycle).
func (r *Registry) Bind(cid CID, ctx *Context) {
	r.ctxs.Store(cid, ctx)
}

// Teardown removes the context bound to cid, e.g. on explicit channel
// teardown or after the repair budget demotes a context to
// STATIC_CONTEXT and the caller decides to drop it entirely.
func (r *Registry) Teardown(cid CID) {
	r.ctxs.Delete(cid)
}

// FrameHeader is the result of parsing the CID-framing prefix of an
// incoming packet: the routed CID, the byte offset of the ROHC type
// octet, the number of bytes the CID field itself occupies immediately
// *after* the type octet (large-CID only — small-CID's add-CID byte
// sits before the type octet, so it never needs stitching out), and
// whether a small-CID add-CID byte was present.
type FrameHeader struct {
	CID       CID
	TypeOctet int // byte offset of the ROHC packet-type octet
	CIDLen    int // bytes occupied by an inline CID field following TypeOctet (large-CID only)
	HadAddCID bool
}

// Body returns the packet bytes the C7 parser should read, starting at
// the type octet with any inline CID field (large-CID's SDVL bytes)
// stitched out so the type octet and the profile/CRC/chain bytes that
// follow it appear contiguous, exactly as the small-CID encoding already
// presents them.
func (h FrameHeader) Body(buf []byte) []byte {
	if h.CIDLen == 0 {
		return buf[h.TypeOctet:]
	}
	out := make([]byte, 0, len(buf)-h.TypeOctet-h.CIDLen)
	out = append(out, buf[h.TypeOctet:h.TypeOctet+1]...)
	out = append(out, buf[h.TypeOctet+1+h.CIDLen:]...)
	return out
}

// ParseFrameHeader consumes the CID-framing prefix of buf per §4.6/§6.
//
// Small-CID channel: if the first byte is 0xE0..0xEF, CID is its low
// nibble and the ROHC type octet follows immediately; otherwise CID is 0
// and the type octet is the first byte.
//
// Large-CID channel: the ROHC type octet comes first, then CID is
// SDVL-decoded from what follows (per spec.md §8 scenario 6: "the ROHC
// type byte is read at offset 1 (before CID) per framing rule" — for
// large CID the type octet precedes the CID field on the wire, so the
// SDVL CID bytes sit *between* the type octet and the rest of the body
// and must be skipped, not just CID-decoded).
func ParseFrameHeader(cidType CIDType, buf []byte) (FrameHeader, error) {
	if len(buf) == 0 {
		return FrameHeader{}, errorf(Malformed, 0, "empty packet")
	}

	switch cidType {
	case SmallCID:
		if isAddCIDByte(buf[0]) {
			if len(buf) < 2 {
				return FrameHeader{}, errorf(Malformed, 0, "add-CID byte with no type octet")
			}
			return FrameHeader{CID: CID(buf[0] & 0x0F), TypeOctet: 1, HadAddCID: true}, nil
		}
		return FrameHeader{CID: 0, TypeOctet: 0}, nil

	case LargeCID:
		if len(buf) < 2 {
			return FrameHeader{}, errorf(Malformed, 0, "large-CID packet too short")
		}
		r := NewBitReader(buf[1:])
		cidVal, cidLen, err := SDVLDecode(r)
		if err != nil {
			return FrameHeader{}, err
		}
		return FrameHeader{CID: CID(cidVal), TypeOctet: 0, CIDLen: cidLen}, nil

	default:
		return FrameHeader{}, errorf(Malformed, 0, "unknown CID type")
	}
}
