package rohc

import "time"

// ProfileID names a ROHC profile (RFC 3095 / RFC 3843 / RFC 3095bis).
// Only the generic IP / IP-in-IP family is fully implemented; UDP-Lite
// and RTP get minimal next-header support; ESP and TCP are out of scope
// (spec.md §1 Non-goals) and always fail UnsupportedProfile.
type ProfileID byte

const (
	ProfileUncompressed ProfileID = 0x00
	ProfileIP           ProfileID = 0x02
	ProfileUDP          ProfileID = 0x01
	ProfileUDPLite      ProfileID = 0x14
	ProfileRTP          ProfileID = 0x03
	ProfileESP          ProfileID = 0x04
)

func (p ProfileID) String() string {
	switch p {
	case ProfileUncompressed:
		return "UNCOMPRESSED"
	case ProfileIP:
		return "IP"
	case ProfileUDP:
		return "UDP"
	case ProfileUDPLite:
		return "UDP-LITE"
	case ProfileRTP:
		return "RTP"
	case ProfileESP:
		return "ESP"
	default:
		return "UNKNOWN"
	}
}

// IPVersion distinguishes outer/inner header shape.
type IPVersion int

const (
	IPv4 IPVersion = 4
	IPv6 IPVersion = 6
)

// IPv4Header is the subset of IPv4 header fields the engine tracks as
// "reference" state and reconstructs on every successful decode.
type IPv4Header struct {
	TOS        byte
	Identification uint16 // IP-ID
	DontFrag   bool
	MoreFrag   bool
	FragOffset uint16
	TTL        byte
	Protocol   byte
	SrcAddr    [4]byte
	DstAddr    [4]byte

	RND bool // IP-ID carried verbatim (random) rather than sequential
	NBO bool // literal IP-ID carried in network byte order
	SID bool // static-identification flag from the dynamic chain; only fed into the CRC flags byte, IP-ID decoding does not consult it
}

// IPv6Header is the subset of IPv6 header fields tracked as context
// reference state, plus list-compressed extension headers.
type IPv6Header struct {
	TrafficClass byte
	FlowLabel    uint32
	NextHeader   byte
	HopLimit     byte
	SrcAddr      [16]byte
	DstAddr      [16]byte

	ExtList *Generation // resolved via the context's ListState
}

// IPHeader is a version-tagged union of the two header shapes.
type IPHeader struct {
	Version IPVersion
	V4      *IPv4Header
	V6      *IPv6Header
}

// NextHeaderKind selects which transport/next-header the profile
// reconstructs after the IP chain.
type NextHeaderKind int

const (
	NextHeaderNone NextHeaderKind = iota
	NextHeaderUDP
	NextHeaderRTP
)

// UDPHeader is the reference state for a UDP (or UDP-Lite) next header.
type UDPHeader struct {
	SrcPort  uint16
	DstPort  uint16
	Checksum uint16 // 0 means "not transmitted" under checksum suppression
}

// RTPHeader is the reference state for a (simplified, CSRC-less) RTP
// next header layered over UDP. CSRC-list compression is explicitly out
// of scope (spec.md §9 Open Questions).
type RTPHeader struct {
	Version        byte
	Padding        bool
	Extension      bool
	Marker         bool
	PayloadType    byte
	SequenceNumber uint16
	SSRC           uint32

	TSStride     uint32
	TSOffset     uint32
	TSScaledMode bool
}

// BitBundle is everything the packet parser (C7) extracts from a
// compressed packet before any reference resolution: raw bit widths and
// values, ready for C8 to turn into decoded values.
type BitBundle struct {
	Type PacketType

	SN    LSBField
	IPID  LSBField // outer IP-ID offset bits
	IPID2 LSBField // inner IP-ID offset bits (ext 2/3 only)
	TS    LSBField
	TSScaled bool

	RTPMarker  BoolField
	RTPExtBit  BoolField
	RTPPadBit  BoolField
	RTPPT      LSBField

	CRCValue byte
	CRCWidth CRCWidth

	ExtensionType int // -1 if no UOR-2 extension present, else 0..3

	// Ext3List is the parsed (but not yet applied) list-compression
	// update carried by an Ext-3's list flag, or nil if absent. It is
	// applied against the context's ListState by the value decoder
	// (C8), which knows which header (outer/inner) currently owns an
	// IPv6 extension chain.
	Ext3List *Update
}

// LSBField is a (value, width) pair extracted from the wire; Width == 0
// means the field was absent from this packet.
type LSBField struct {
	Bits  uint32
	Width uint
}

func (f LSBField) present() bool { return f.Width > 0 }

// BoolField is a tri-state flag: present-and-true, present-and-false, or
// absent (zero value).
type BoolField struct {
	Value   bool
	Present bool
}

// PacketType enumerates the packet-type families of RFC 3095 §5.2
// relevant to the generic IP profile family.
type PacketType int

const (
	PacketIRDyn PacketType = iota
	PacketIR
	PacketUO0
	PacketUO1
	PacketUOR2
)

func (t PacketType) String() string {
	switch t {
	case PacketIRDyn:
		return "IR-DYN"
	case PacketIR:
		return "IR"
	case PacketUO0:
		return "UO-0"
	case PacketUO1:
		return "UO-1"
	case PacketUOR2:
		return "UOR-2"
	default:
		return "UNKNOWN"
	}
}

// DecodedValues is the fully expanded candidate reconstruction produced
// by the value decoder (C8), ready to be compared against CRC inputs by
// the header builder (C9).
type DecodedValues struct {
	SN uint16

	OuterIPID uint16
	InnerIPID uint16

	TS uint32

	RTPMarker bool
	RTPExt    bool
	RTPPad    bool
	RTPPT     byte

	ListUpdateOuter *Update
	ListUpdateInner *Update
}

// ReconstructedPacket is the output of a successful decode: a fully
// formed IP header chain plus next-header bytes, ready for the caller to
// append the payload bytes carried in the ROHC packet's trailer.
type ReconstructedPacket struct {
	Outer IPHeader
	Inner *IPHeader
	Next  NextHeaderKind
	UDP   *UDPHeader
	RTP   *RTPHeader

	SN uint16
}

// ContextState is the visible position in the spec.md §4.10 state
// machine.
type ContextState int

const (
	StateNoContext ContextState = iota
	StateStaticContext
	StateFullContext
)

func (s ContextState) String() string {
	switch s {
	case StateNoContext:
		return "NO_CONTEXT"
	case StateStaticContext:
		return "STATIC_CONTEXT"
	case StateFullContext:
		return "FULL_CONTEXT"
	default:
		return "UNKNOWN"
	}
}

// Clock is the monotonic time source a caller supplies per spec.md §5:
// "Time enters only as current_time; the core never blocks on the
// clock." Decode calls take an explicit timestamp rather than reading
// one, keeping the engine a pure function of its inputs.
type Clock = time.Time
