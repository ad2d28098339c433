package qao

import "fmt"

type slot struct {
	obj        Object
	generation uint32
	owned      bool
}

// Registry is a generational slot arena mapping ObjectID to Object.
// Released slots go on a free list and are reused, lowest index first, before
// the arena grows; each release bumps the slot generation so outstanding ids
// stop resolving.
type Registry struct {
	slots    []slot
	freeList []uint32
	count    int
}

func NewRegistry() *Registry {
	return &Registry{
		slots:    make([]slot, 0, 64),
		freeList: make([]uint32, 0, 16),
	}
}

// Insert places obj in the first free slot and returns its id.
func (r *Registry) Insert(obj Object, owned bool) ObjectID {
	var idx uint32
	if len(r.freeList) > 0 {
		lowest := 0
		for i, f := range r.freeList {
			if f < r.freeList[lowest] {
				lowest = i
			}
		}
		idx = r.freeList[lowest]
		r.freeList = append(r.freeList[:lowest], r.freeList[lowest+1:]...)
	} else {
		idx = uint32(len(r.slots))
		r.slots = append(r.slots, slot{generation: 1})
	}
	s := &r.slots[idx]
	s.obj = obj
	s.owned = owned
	r.count++
	return NewObjectID(idx, s.generation)
}

// InsertAt places obj in the slot named by id, advancing the slot generation
// to the requested one. Used when restoring persisted state.
func (r *Registry) InsertAt(obj Object, id ObjectID, owned bool) error {
	const op = "registry.InsertAt"
	if id.IsNull() {
		return validationError(op, id, ErrNullID, "cannot restore object")
	}
	idx := id.Index()
	for uint32(len(r.slots)) <= idx {
		r.freeList = append(r.freeList, uint32(len(r.slots)))
		r.slots = append(r.slots, slot{generation: 1})
	}
	s := &r.slots[idx]
	if s.obj != nil {
		return validationError(op, id, ErrSlotOccupied, "index %d", idx)
	}
	if s.generation > id.Generation() {
		return validationError(op, id, ErrStaleGeneration,
			"slot %d at generation %d", idx, s.generation)
	}
	r.removeFree(idx)
	s.obj = obj
	s.owned = owned
	s.generation = id.Generation()
	r.count++
	return nil
}

func (r *Registry) removeFree(idx uint32) {
	for i, f := range r.freeList {
		if f == idx {
			r.freeList = append(r.freeList[:i], r.freeList[i+1:]...)
			return
		}
	}
}

// SealEmptySlots advances every empty slot past the highest generation in
// use. Persisted state records only live ids, so after a restore an empty
// slot may still be named by a stale id held in some object's state; sealing
// keeps such ids from resolving to a later occupant.
func (r *Registry) SealEmptySlots() {
	var highest uint32
	for _, s := range r.slots {
		if s.generation > highest {
			highest = s.generation
		}
	}
	next := highest + 1
	if next == 0 {
		next = 1
	}
	for i := range r.slots {
		if r.slots[i].obj == nil && r.slots[i].generation < next {
			r.slots[i].generation = next
		}
	}
}

// Release empties the slot at index. It returns the object and whether the
// registry owned it; callers take over ownership of owned objects.
func (r *Registry) Release(index uint32) (Object, bool) {
	if index >= uint32(len(r.slots)) {
		return nil, false
	}
	s := &r.slots[index]
	if s.obj == nil {
		return nil, false
	}
	obj, owned := s.obj, s.owned
	s.obj = nil
	s.owned = false
	s.generation++
	if s.generation == 0 {
		s.generation = 1
	}
	r.freeList = append(r.freeList, index)
	r.count--
	return obj, owned
}

// Lookup resolves id. A stale or unknown id yields (nil, false).
func (r *Registry) Lookup(id ObjectID) (Object, bool) {
	idx := id.Index()
	if id.IsNull() || idx >= uint32(len(r.slots)) {
		return nil, false
	}
	s := r.slots[idx]
	if s.obj == nil || s.generation != id.Generation() {
		return nil, false
	}
	return s.obj, true
}

// Size returns the number of slots, occupied or not.
func (r *Registry) Size() int { return len(r.slots) }

// InstanceCount returns the number of occupied slots.
func (r *Registry) InstanceCount() int { return r.count }

func (r *Registry) IsSlotEmpty(index int) bool {
	return r.slots[index].obj == nil
}

func (r *Registry) ObjectAt(index int) Object {
	return r.slots[index].obj
}

// SerialAt returns the current generation of the slot at index.
func (r *Registry) SerialAt(index int) uint32 {
	return r.slots[index].generation
}

func (r *Registry) IsOwned(index int) bool {
	return r.slots[index].owned
}

func (r *Registry) String() string {
	return fmt.Sprintf("Registry(slots=%d, live=%d, free=%d)", len(r.slots), r.count, len(r.freeList))
}
