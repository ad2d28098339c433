package qao

import (
	"iter"
	"math"

	"go.uber.org/zap"
)

// Listener observes structural changes to a Runtime. Calls happen
// synchronously, possibly from inside a dispatch.
type Listener interface {
	ObjectAdded(obj Object)
	ObjectReleased(id ObjectID, obj Object)
	PriorityChanged(obj Object, old int)
}

type Option func(*Runtime)

func WithLogger(log *zap.Logger) Option {
	return func(rt *Runtime) { rt.log = log }
}

func WithUserData(v any) Option {
	return func(rt *Runtime) { rt.userData = v }
}

func WithListener(l Listener) Option {
	return func(rt *Runtime) { rt.listener = l }
}

// Runtime owns a set of active objects and dispatches them, in priority order,
// once per event kind per step. Objects may add, remove and reorder objects
// (including themselves) from inside their hooks.
//
// A Runtime is single-goroutine: all calls must come from the goroutine that
// drives StartStep/AdvanceStep.
type Runtime struct {
	registry *Registry
	orderer  *Orderer

	stepCounter  int64
	currentEvent EventKind
	cursor       *Entry // next entry to visit; nil means end of pass
	iteration    int64
	dispatching  bool

	userData any
	listener Listener
	log      *zap.Logger
}

func NewRuntime(opts ...Option) *Runtime {
	rt := &Runtime{
		registry:     NewRegistry(),
		orderer:      NewOrderer(),
		stepCounter:  math.MinInt64 + 1,
		currentEvent: EventNone,
		log:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

// ── Object manipulation ───────────────────────────────────────────

// AddObject registers obj; the runtime owns it from now on.
func (rt *Runtime) AddObject(obj Object) (ObjectID, error) {
	return rt.add(obj, true)
}

// AddObjectNonOwning registers obj without taking ownership.
func (rt *Runtime) AddObjectNonOwning(obj Object) (ObjectID, error) {
	return rt.add(obj, false)
}

func (rt *Runtime) add(obj Object, owned bool) (ObjectID, error) {
	b := obj.ObjectBase()
	if b.runtime != nil {
		return NullID, logicError("runtime.AddObject", b.id, ErrAlreadyAdded)
	}
	id := rt.registry.Insert(obj, owned)
	rt.link(obj, id)
	return id, nil
}

// AddObjectAt registers obj under a previously recorded id. Restore paths use
// it so that stored references to obj stay valid.
func (rt *Runtime) AddObjectAt(obj Object, id ObjectID, owned bool) error {
	b := obj.ObjectBase()
	if b.runtime != nil {
		return logicError("runtime.AddObjectAt", b.id, ErrAlreadyAdded)
	}
	if err := rt.registry.InsertAt(obj, id, owned); err != nil {
		return err
	}
	rt.link(obj, id)
	return nil
}

func (rt *Runtime) link(obj Object, id ObjectID) {
	e, _ := rt.orderer.Insert(obj)
	b := obj.ObjectBase()
	b.attach(rt, id, e)

	rt.log.Debug("object added",
		zap.Stringer("id", id),
		zap.String("name", b.name),
		zap.Int("priority", b.priority),
	)
	if rt.listener != nil {
		rt.listener.ObjectAdded(obj)
	}
}

// ReleaseObject unregisters obj. If the runtime owned it, obj is returned and
// the caller now owns it; otherwise the result is nil.
func (rt *Runtime) ReleaseObject(obj Object) (Object, error) {
	b := obj.ObjectBase()
	if b.runtime != rt {
		return nil, logicError("runtime.ReleaseObject", b.id, ErrNotOwned)
	}
	id := b.id

	if rt.cursor != nil && rt.cursor == b.entry {
		rt.cursor = rt.cursor.Next()
	}
	rt.orderer.Erase(obj)
	_, owned := rt.registry.Release(id.Index())
	b.detach()

	rt.log.Debug("object released",
		zap.Stringer("id", id),
		zap.String("name", b.name),
		zap.Bool("owned", owned),
	)
	if rt.listener != nil {
		rt.listener.ObjectReleased(id, obj)
	}
	if owned {
		return obj, nil
	}
	return nil, nil
}

// ReleaseByID releases the object with the given id. A stale or unknown id
// yields (nil, nil).
func (rt *Runtime) ReleaseByID(id ObjectID) (Object, error) {
	obj, ok := rt.registry.Lookup(id)
	if !ok {
		return nil, nil
	}
	return rt.ReleaseObject(obj)
}

// EraseObject releases obj and, if it was owned, destroys it.
func (rt *Runtime) EraseObject(obj Object) error {
	released, err := rt.ReleaseObject(obj)
	if err != nil {
		return err
	}
	if d, ok := released.(Destroyer); ok {
		d.Destroy()
	}
	return nil
}

// EraseByID erases the object with the given id. A stale or unknown id is
// not an error; the result reports whether anything was erased.
func (rt *Runtime) EraseByID(id ObjectID) bool {
	obj, ok := rt.registry.Lookup(id)
	if !ok {
		return false
	}
	return rt.EraseObject(obj) == nil
}

// DestroyAllOwnedObjects erases every owned object. Non-owned objects stay.
func (rt *Runtime) DestroyAllOwnedObjects() {
	var owned []Object
	for i := 0; i < rt.registry.Size(); i++ {
		if !rt.registry.IsSlotEmpty(i) && rt.registry.IsOwned(i) {
			owned = append(owned, rt.registry.ObjectAt(i))
		}
	}
	for _, obj := range owned {
		// A Destroy hook may already have erased a later object.
		if obj.ObjectBase().runtime != rt {
			continue
		}
		_ = rt.EraseObject(obj)
	}
}

// SetExecutionPriority reorders obj to newPriority.
func (rt *Runtime) SetExecutionPriority(obj Object, newPriority int) error {
	b := obj.ObjectBase()
	if b.runtime != rt {
		return logicError("runtime.SetExecutionPriority", b.id, ErrNotOwned)
	}
	if b.priority != newPriority {
		rt.reorder(obj, newPriority)
	}
	return nil
}

func (rt *Runtime) reorder(obj Object, newPriority int) {
	b := obj.ObjectBase()
	if rt.cursor != nil && rt.cursor == b.entry {
		rt.cursor = rt.cursor.Next()
	}
	old := b.priority
	b.entry = rt.orderer.Reorder(obj, newPriority)

	rt.log.Debug("object reordered",
		zap.Stringer("id", b.id),
		zap.Int("from", old),
		zap.Int("to", newPriority),
	)
	if rt.listener != nil {
		rt.listener.PriorityChanged(obj, old)
	}
}

// ── Lookup ────────────────────────────────────────────────────────

// Find resolves id, returning nil for stale or unknown ids.
func (rt *Runtime) Find(id ObjectID) Object {
	obj, _ := rt.registry.Lookup(id)
	return obj
}

// FindByName returns the first object in dispatch order with the given name.
func (rt *Runtime) FindByName(name string) Object {
	for obj := range rt.orderer.All() {
		if obj.ObjectBase().name == name {
			return obj
		}
	}
	return nil
}

// FindAs resolves id and asserts the object's concrete type.
func FindAs[T Object](rt *Runtime, id ObjectID) (T, bool) {
	obj, ok := rt.registry.Lookup(id)
	if !ok {
		var zero T
		return zero, false
	}
	t, ok := obj.(T)
	return t, ok
}

func (rt *Runtime) ObjectCount() int { return rt.registry.InstanceCount() }

// OwnsObject reports whether obj is registered with rt as owned.
func (rt *Runtime) OwnsObject(obj Object) bool {
	b := obj.ObjectBase()
	if b.runtime != rt {
		return false
	}
	return rt.registry.IsOwned(int(b.id.Index()))
}

// All yields live objects in dispatch order.
func (rt *Runtime) All() iter.Seq[Object] { return rt.orderer.All() }

// Backward yields live objects in reverse dispatch order.
func (rt *Runtime) Backward() iter.Seq[Object] { return rt.orderer.Backward() }

// Broadcast delivers a message to every Messenger in dispatch order and
// returns how many handled it.
func (rt *Runtime) Broadcast(tag int, payload any) int {
	handled := 0
	for obj := range rt.orderer.All() {
		if m, ok := obj.(Messenger); ok && m.Message(tag, payload) {
			handled++
		}
	}
	return handled
}

func (rt *Runtime) UserData() any      { return rt.userData }
func (rt *Runtime) SetUserData(v any)  { rt.userData = v }
func (rt *Runtime) StepCounter() int64 { return rt.stepCounter }
func (rt *Runtime) Iteration() int64   { return rt.iteration }

// CurrentEvent returns the kind being dispatched, or EventNone when idle.
func (rt *Runtime) CurrentEvent() EventKind { return rt.currentEvent }

// Dispatching reports whether a hook is currently running.
func (rt *Runtime) Dispatching() bool { return rt.dispatching }

// ── Execution ─────────────────────────────────────────────────────

// StartStep begins a new pass at the first event kind.
func (rt *Runtime) StartStep() error {
	if rt.dispatching {
		return logicError("runtime.StartStep", NullID, ErrReentrantStep)
	}
	rt.currentEvent = EventStartFrame
	rt.cursor = rt.orderer.Front()
	rt.iteration++
	return nil
}

// AdvanceStep dispatches every kind in mask, in canonical order, starting at
// the current kind. Each object receives at most one call per kind.
func (rt *Runtime) AdvanceStep(mask EventMask) (bool, error) {
	if rt.dispatching {
		return false, logicError("runtime.AdvanceStep", NullID, ErrReentrantStep)
	}
	if rt.currentEvent == EventNone {
		return false, logicError("runtime.AdvanceStep", NullID, ErrNotStarted)
	}

	rt.dispatching = true
	finished := false
	defer func() {
		rt.dispatching = false
		if !finished {
			// A hook panicked: retire the interrupted pass's counter value.
			rt.stepCounter++
		}
	}()

	for ev := rt.currentEvent; int(ev) < EventCount; ev++ {
		if !mask.Has(ev) {
			continue
		}
		rt.currentEvent = ev

		for rt.cursor != nil {
			obj := rt.cursor.obj
			// Advance first: the hook may remove obj or the entry after it.
			rt.cursor = rt.cursor.Next()

			b := obj.ObjectBase()
			if b.stepOrdinal < rt.stepCounter {
				b.stepOrdinal = rt.stepCounter
				dispatch(obj, ev)
			}
		}

		rt.cursor = rt.orderer.Front()
		rt.stepCounter++
	}

	rt.currentEvent = EventNone
	finished = true
	return true, nil
}

// Close destroys every owned object and detaches every non-owned one.
func (rt *Runtime) Close() error {
	if rt.dispatching {
		return logicError("runtime.Close", NullID, ErrReentrantStep)
	}
	rt.DestroyAllOwnedObjects()
	for i := 0; i < rt.registry.Size(); i++ {
		if rt.registry.IsSlotEmpty(i) {
			continue
		}
		_, _ = rt.ReleaseObject(rt.registry.ObjectAt(i))
	}
	rt.cursor = nil
	rt.currentEvent = EventNone
	return nil
}
