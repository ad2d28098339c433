package qao

import (
	"iter"
	"sort"
)

// Entry is a position in an Orderer. Entries stay valid until their object is
// erased; after that Next and Prev return nil.
type Entry struct {
	obj        Object
	priority   int
	prev, next *Entry
	orderer    *Orderer
}

func (e *Entry) Object() Object { return e.obj }

// Next returns the following entry, or nil at the end.
func (e *Entry) Next() *Entry {
	if e.orderer == nil || e.next == &e.orderer.root {
		return nil
	}
	return e.next
}

// Prev returns the preceding entry, or nil at the front.
func (e *Entry) Prev() *Entry {
	if e.orderer == nil || e.prev == &e.orderer.root {
		return nil
	}
	return e.prev
}

// Orderer keeps live objects sorted by descending execution priority. Objects
// with equal priority keep their insertion order.
type Orderer struct {
	root  Entry
	len   int
	tails map[int]*Entry // last entry of each priority group
	prios []int          // distinct priorities, descending
}

func NewOrderer() *Orderer {
	o := &Orderer{tails: make(map[int]*Entry, 16)}
	o.root.next = &o.root
	o.root.prev = &o.root
	return o
}

func (o *Orderer) Len() int { return o.len }

func (o *Orderer) Front() *Entry {
	if o.len == 0 {
		return nil
	}
	return o.root.next
}

func (o *Orderer) Back() *Entry {
	if o.len == 0 {
		return nil
	}
	return o.root.prev
}

// Insert places obj after every object whose priority is greater or equal.
// It returns the entry and false if obj was already present.
func (o *Orderer) Insert(obj Object) (*Entry, bool) {
	b := obj.ObjectBase()
	if b.entry != nil && b.entry.orderer == o {
		return b.entry, false
	}
	p := b.priority
	e := &Entry{obj: obj, priority: p, orderer: o}

	at := &o.root
	if tail, ok := o.tails[p]; ok {
		at = tail
	} else {
		i := sort.Search(len(o.prios), func(i int) bool { return o.prios[i] < p })
		if i > 0 {
			at = o.tails[o.prios[i-1]]
		}
		o.prios = append(o.prios, 0)
		copy(o.prios[i+1:], o.prios[i:])
		o.prios[i] = p
	}
	o.tails[p] = e

	e.prev = at
	e.next = at.next
	at.next.prev = e
	at.next = e
	o.len++
	return e, true
}

// Erase removes obj by identity. Any cursor designating obj must be moved off
// it before calling Erase.
func (o *Orderer) Erase(obj Object) bool {
	e := obj.ObjectBase().entry
	if e == nil || e.orderer != o {
		return false
	}
	o.unlink(e)
	return true
}

func (o *Orderer) unlink(e *Entry) {
	p := e.priority
	if o.tails[p] == e {
		if e.prev != &o.root && e.prev.priority == p {
			o.tails[p] = e.prev
		} else {
			delete(o.tails, p)
			i := sort.Search(len(o.prios), func(i int) bool { return o.prios[i] <= p })
			o.prios = append(o.prios[:i], o.prios[i+1:]...)
		}
	}
	e.prev.next = e.next
	e.next.prev = e.prev
	e.prev = nil
	e.next = nil
	e.orderer = nil
	o.len--
}

// Reorder moves obj to the position for newPriority and returns its new entry,
// which the caller stores back onto the object.
func (o *Orderer) Reorder(obj Object, newPriority int) *Entry {
	b := obj.ObjectBase()
	if b.entry != nil && b.entry.orderer == o {
		o.unlink(b.entry)
	}
	b.entry = nil
	b.priority = newPriority
	e, _ := o.Insert(obj)
	return e
}

// All yields objects front to back. Removing the yielded object is safe.
func (o *Orderer) All() iter.Seq[Object] {
	return func(yield func(Object) bool) {
		for e := o.Front(); e != nil; {
			next := e.Next()
			if !yield(e.obj) {
				return
			}
			e = next
		}
	}
}

// Backward yields objects back to front. Removing the yielded object is safe.
func (o *Orderer) Backward() iter.Seq[Object] {
	return func(yield func(Object) bool) {
		for e := o.Back(); e != nil; {
			prev := e.Prev()
			if !yield(e.obj) {
				return
			}
			e = prev
		}
	}
}
