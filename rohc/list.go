package rohc

// List compression (C5): IPv6 extension-header chain compression per
// RFC 3095 §5.8.6. A context holds a sliding window of past "generations"
// (an ordered sequence of extension-header items), each published
// immutably and addressed by an 8-bit gen_id. Items themselves live in a
// small based_table of slots; a generation is just a list of slot
// indices, so republishing a chain that reuses known items costs nothing
// but index bytes.

const (
	// MaxItem bounds the based_table: slot indices must fit a 4-bit XI
	// field (PS=1) on the wire, so only indices < MaxItem are valid.
	MaxItem = 15
	// DefaultListWindow is the default number of past generations kept,
	// per spec.md §6 (list_window, must be >= 2).
	DefaultListWindow = 100
)

// ItemType identifies the IPv6 extension header kind stored in a based_table slot.
type ItemType byte

const (
	ItemHopByHop    ItemType = 0
	ItemRouting     ItemType = 43
	ItemAuth        ItemType = 51
	ItemDestination ItemType = 60
)

// Slot is one entry of the based_table: the type and raw bytes of an
// extension header item. Whether the decompressor is confirmed to hold
// it is tracked separately, in the matching TransEntry.
type Slot struct {
	Type  ItemType
	Bytes []byte
}

// TransEntry tracks whether a based_table slot is "known" to the
// decompressor — i.e. whether the compressor may omit the item bytes and
// reference the slot by index alone.
type TransEntry struct {
	Known bool
}

// Generation is one immutable, published version of an extension-header
// chain: an ordered sequence of based_table slot indices.
type Generation struct {
	GenID byte
	Items []int // ordered based_table slot indices
}

// ListState is the per-direction (outer or inner) list compression state
// held by a Context.
type ListState struct {
	window     int // configured list_window
	gens       []*Generation
	genByID    map[byte]*Generation
	BasedTable [MaxItem]Slot
	TransTable [MaxItem]TransEntry
	RefList    *Generation
}

// NewListState returns an empty list compression state with the given
// sliding-window size.
func NewListState(window int) *ListState {
	if window < 2 {
		window = DefaultListWindow
	}
	return &ListState{
		window:  window,
		genByID: make(map[byte]*Generation),
	}
}

// Lookup returns the generation published under genID, if still held in
// the window.
func (l *ListState) Lookup(genID byte) (*Generation, bool) {
	g, ok := l.genByID[genID]
	return g, ok
}

// Publish adds a new generation to the window, evicting the oldest entry
// if the window is full. Generations are never mutated after publication
// (spec.md §5: shared-resource policy).
func (l *ListState) Publish(g *Generation) {
	if len(l.gens) >= l.window {
		oldest := l.gens[0]
		l.gens = l.gens[1:]
		delete(l.genByID, oldest.GenID)
	}
	l.gens = append(l.gens, g)
	l.genByID[g.GenID] = g
	l.RefList = g
}

// ET names the four list encoding schemes of RFC 3095 §5.8.6.
type ET int

const (
	ET0Generic ET = iota // insertions only, handled like ET1; no removals are read or applied
	ET1Insert            // insertion-only
	ET2Remove            // removal-only
	ET3RemoveInsert      // removal mask then insertion mask
)

// XI is one "eXtension Item" reference: a based_table slot index plus
// whether new item bytes accompany it on the wire.
type XI struct {
	Index     int
	HasBytes  bool
	ItemBytes []byte
}

// Update describes a parsed list-compression update extracted from a
// packet, before it has been applied to a ListState.
type Update struct {
	ET        ET
	PS        bool // true: 4-bit XI indices; false: 8-bit XI indices
	GenID     byte
	RefGenID  byte
	RemoveSet []int // indices removed from the referenced generation (ET2/ET3)
	XIs       []XI  // items inserted, in final order (ET0/ET1/ET3)
}

// Apply decodes an Update against the list state, publishing the new
// generation on success. It implements RFC 3095 §5.8.6:
//
//  1. if the referenced generation is unknown, fail with
//     ListReferenceMissing;
//  2. copy the referenced generation;
//  3. apply removals (ET2/ET3) then insertions (ET0/ET1/ET3);
//  4. publish under the new gen_id.
//
// The new generation's based_table slots are populated here but their
// TransTable Known bit is left untouched — C9 sets it only once the
// generation this update belongs to has been CRC-validated.
func (l *ListState) Apply(u Update, cid CID) (*Generation, error) {
	var base []int
	if u.ET != ET1Insert || u.RefGenID != 0 || len(l.gens) > 0 {
		ref, ok := l.Lookup(u.RefGenID)
		if !ok {
			if u.ET == ET1Insert && l.RefList == nil {
				// First-ever list for this context: nothing to
				// reference yet, which is valid.
				base = nil
			} else {
				return nil, errorf(ListReferenceMissing, cid,
					"gen_id %d not in window", u.RefGenID)
			}
		} else {
			base = append(base, ref.Items...)
		}
	}

	switch u.ET {
	case ET2Remove, ET3RemoveInsert:
		base = removeIndices(base, u.RemoveSet)
	}

	for _, slotIdx := range u.XIs {
		if slotIdx.Index < 0 || slotIdx.Index >= MaxItem {
			return nil, errorf(Malformed, cid, "list item index %d out of range", slotIdx.Index)
		}
		if slotIdx.HasBytes {
			l.BasedTable[slotIdx.Index] = Slot{Bytes: slotIdx.ItemBytes}
		}
		base = append(base, slotIdx.Index)
	}

	gen := &Generation{GenID: u.GenID, Items: base}
	l.Publish(gen)
	return gen, nil
}

func removeIndices(items []int, remove []int) []int {
	if len(remove) == 0 {
		return items
	}
	removeSet := make(map[int]bool, len(remove))
	for _, r := range remove {
		removeSet[r] = true
	}
	out := make([]int, 0, len(items))
	for _, it := range items {
		if !removeSet[it] {
			out = append(out, it)
		}
	}
	return out
}

// MarkKnown sets the TransTable Known bit for every slot referenced by
// gen. Called by C9 once gen's generation has been accepted by a
// CRC-validated reconstruction.
func (l *ListState) MarkKnown(gen *Generation) {
	for _, idx := range gen.Items {
		if idx >= 0 && idx < MaxItem {
			l.TransTable[idx].Known = true
		}
	}
}

// Resolve returns the ordered extension header item bytes for gen,
// failing if any referenced slot was never given bytes.
func (l *ListState) Resolve(gen *Generation, cid CID) ([][]byte, error) {
	if gen == nil {
		return nil, nil
	}
	out := make([][]byte, 0, len(gen.Items))
	for _, idx := range gen.Items {
		slot := l.BasedTable[idx]
		if slot.Bytes == nil {
			return nil, errorf(Malformed, cid, "list item slot %d has no known bytes", idx)
		}
		out = append(out, slot.Bytes)
	}
	return out, nil
}
