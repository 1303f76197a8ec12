package rohc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_ListState_FirstInsertNeedsNoReference(t *testing.T) {
	l := NewListState(4)

	u := Update{
		ET:    ET1Insert,
		GenID: 0,
		XIs: []XI{
			{Index: 0, HasBytes: true, ItemBytes: []byte{0x00, 0x01, 0x02}},
		},
	}

	gen, err := l.Apply(u, 1)
	require.NoError(t, err)
	assert.Equal(t, byte(0), gen.GenID)
	assert.Equal(t, []int{0}, gen.Items)

	bytes, err := l.Resolve(gen, 1)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{{0x00, 0x01, 0x02}}, bytes)
}

func Test_ListState_InsertThenRemove(t *testing.T) {
	l := NewListState(4)

	first, err := l.Apply(Update{
		ET:    ET1Insert,
		GenID: 0,
		XIs: []XI{
			{Index: 0, HasBytes: true, ItemBytes: []byte{0xAA}},
			{Index: 1, HasBytes: true, ItemBytes: []byte{0xBB}},
		},
	}, 1)
	require.NoError(t, err)
	l.MarkKnown(first)

	second, err := l.Apply(Update{
		ET:        ET2Remove,
		GenID:     1,
		RefGenID:  0,
		RemoveSet: []int{0},
	}, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, second.Items)
}

func Test_ListState_ReferenceMissing(t *testing.T) {
	l := NewListState(4)
	_, err := l.Apply(Update{ET: ET2Remove, GenID: 1, RefGenID: 99, RemoveSet: []int{0}}, 7)
	require.Error(t, err)
	assert.True(t, IsKind(err, ListReferenceMissing))
}

func Test_ListState_IndexOutOfRangeIsMalformed(t *testing.T) {
	l := NewListState(4)
	_, err := l.Apply(Update{
		ET:    ET1Insert,
		GenID: 0,
		XIs:   []XI{{Index: MaxItem, HasBytes: true, ItemBytes: []byte{0x01}}},
	}, 3)
	require.Error(t, err)
	assert.True(t, IsKind(err, Malformed))
}

func Test_ListState_WindowEviction(t *testing.T) {
	l := NewListState(2)
	for i := 0; i < 3; i++ {
		l.Publish(&Generation{GenID: byte(i), Items: []int{i}})
	}
	_, ok := l.Lookup(0)
	assert.False(t, ok, "oldest generation should have been evicted once window exceeded")
	_, ok = l.Lookup(2)
	assert.True(t, ok)
}

func Test_ListState_ResolveFailsOnUnknownSlot(t *testing.T) {
	l := NewListState(4)
	gen := &Generation{GenID: 0, Items: []int{5}}
	_, err := l.Resolve(gen, 1)
	require.Error(t, err)
	assert.True(t, IsKind(err, Malformed))
}
