package qao

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func names(seq func(func(Object) bool)) []string {
	var out []string
	for obj := range seq {
		out = append(out, obj.ObjectBase().Name())
	}
	return out
}

// insert mirrors what the Runtime does: store the entry back on the object.
func insert(o *Orderer, obj Object) {
	e, _ := o.Insert(obj)
	obj.ObjectBase().entry = e
}

func TestOrdererDescendingPriority(t *testing.T) {
	o := NewOrderer()
	insert(o, newStub("low", 1))
	insert(o, newStub("high", 9))
	insert(o, newStub("mid", 5))
	insert(o, newStub("neg", -4))

	assert.Equal(t, []string{"high", "mid", "low", "neg"}, names(o.All()))
	assert.Equal(t, []string{"neg", "low", "mid", "high"}, names(o.Backward()))
	assert.Equal(t, 4, o.Len())
}

func TestOrdererStableAmongPeers(t *testing.T) {
	o := NewOrderer()
	insert(o, newStub("a", 2))
	insert(o, newStub("x", 5))
	insert(o, newStub("b", 2))
	insert(o, newStub("c", 2))
	insert(o, newStub("y", 5))

	assert.Equal(t, []string{"x", "y", "a", "b", "c"}, names(o.All()))
}

func TestOrdererInsertTwiceIsNoop(t *testing.T) {
	o := NewOrderer()
	s := newStub("s", 0)
	insert(o, s)
	e, isNew := o.Insert(s)
	assert.False(t, isNew)
	assert.Same(t, s.entry, e)
	assert.Equal(t, 1, o.Len())
}

func TestOrdererErase(t *testing.T) {
	o := NewOrderer()
	a, b, c := newStub("a", 3), newStub("b", 3), newStub("c", 1)
	for _, s := range []*stub{a, b, c} {
		insert(o, s)
	}

	require.True(t, o.Erase(b))
	assert.False(t, o.Erase(b), "second erase finds nothing")
	assert.Nil(t, b.entry.Next())
	assert.Equal(t, []string{"a", "c"}, names(o.All()))

	// The group tail moved back to a, so a new peer lands after it.
	insert(o, newStub("d", 3))
	assert.Equal(t, []string{"a", "d", "c"}, names(o.All()))

	require.True(t, o.Erase(c))
	assert.Equal(t, []int{3}, o.prios)
	_, ok := o.tails[1]
	assert.False(t, ok)
}

func TestOrdererReorderGoesLastAmongNewPeers(t *testing.T) {
	o := NewOrderer()
	a, b, c := newStub("a", 5), newStub("b", 2), newStub("c", 2)
	for _, s := range []*stub{a, b, c} {
		insert(o, s)
	}

	a.entry = o.Reorder(a, 2)
	assert.Equal(t, 2, a.ExecutionPriority())
	assert.Equal(t, []string{"b", "c", "a"}, names(o.All()))
	assert.True(t, slices.Equal([]int{2}, o.prios))

	c.entry = o.Reorder(c, 7)
	assert.Equal(t, []string{"c", "b", "a"}, names(o.All()))
	assert.Equal(t, []int{7, 2}, o.prios)
}

func TestOrdererAllToleratesRemovingYielded(t *testing.T) {
	o := NewOrderer()
	for _, n := range []string{"a", "b", "c", "d"} {
		insert(o, newStub(n, 0))
	}

	var seen []string
	for obj := range o.All() {
		seen = append(seen, obj.ObjectBase().Name())
		o.Erase(obj)
	}
	assert.Equal(t, []string{"a", "b", "c", "d"}, seen)
	assert.Equal(t, 0, o.Len())
	assert.Nil(t, o.Front())
	assert.Nil(t, o.Back())
}

func TestEntryNavigation(t *testing.T) {
	o := NewOrderer()
	a, b := newStub("a", 1), newStub("b", 0)
	insert(o, a)
	insert(o, b)

	assert.Same(t, a.entry, o.Front())
	assert.Same(t, b.entry, o.Back())
	assert.Same(t, b.entry, a.entry.Next())
	assert.Nil(t, b.entry.Next())
	assert.Same(t, a.entry, b.entry.Prev())
	assert.Nil(t, a.entry.Prev())
	assert.Same(t, Object(a), a.entry.Object())
}
