package qao

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/hobgoblin/qao/internal/codec"
)

// Persistable objects are written by Save and rebuilt by a Factory registered
// under their TypeTag.
type Persistable interface {
	Object
	TypeTag() string
	// Persist writes the type-specific fields that follow the object header.
	Persist(w *codec.Writer) error
}

// Factory rebuilds one object from its record payload, positioned at the
// object header, and registers it with rt under the recorded id.
type Factory func(r *codec.Reader, rt *Runtime, ctx any) error

// ObjectHeader is the common prefix of every persisted object payload.
type ObjectHeader struct {
	Name     string
	ID       ObjectID
	Priority int
}

// WriteObjectHeader writes the header for b. The priority is stored as a
// 32-bit field; wider values are rejected rather than truncated.
func WriteObjectHeader(w *codec.Writer, b *Base) error {
	if b.priority < math.MinInt32 || b.priority > math.MaxInt32 {
		return validationError("qao.WriteObjectHeader", b.id, ErrPriorityRange, "priority %d", b.priority)
	}
	w.WriteS(b.name)
	w.WriteQU(uint64(b.id))
	w.WriteD(int32(b.priority))
	return nil
}

func ReadObjectHeader(r *codec.Reader) (ObjectHeader, error) {
	h := ObjectHeader{
		Name:     r.ReadS(),
		ID:       ObjectID(r.ReadQU()),
		Priority: int(r.ReadD()),
	}
	if err := r.Err(); err != nil {
		return ObjectHeader{}, validationError("qao.ReadObjectHeader", NullID, ErrTruncated, "%v", err)
	}
	return h, nil
}

// Restore copies the persisted name and priority onto a detached Base.
func (b *Base) Restore(h ObjectHeader) {
	b.name = h.Name
	b.priority = h.Priority
}

// RestoreObject applies h to obj and registers it with rt under h.ID.
func RestoreObject(rt *Runtime, obj Object, h ObjectHeader, owned bool) error {
	obj.ObjectBase().Restore(h)
	return rt.AddObjectAt(obj, h.ID, owned)
}

// TypeRegistry maps type tags to factories.
type TypeRegistry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{factories: make(map[string]Factory)}
}

// Register binds tag to f, replacing any previous factory.
func (tr *TypeRegistry) Register(tag string, f Factory) {
	tr.mu.Lock()
	tr.factories[tag] = f
	tr.mu.Unlock()
}

func (tr *TypeRegistry) lookup(tag string) (Factory, bool) {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	f, ok := tr.factories[tag]
	return f, ok
}

// Tags returns the registered tags in sorted order.
func (tr *TypeRegistry) Tags() []string {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	tags := make([]string, 0, len(tr.factories))
	for t := range tr.factories {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}

// Restore reads one (tag, payload) record and runs the matching factory.
// A panicking factory is reported as a ValidationError.
func (tr *TypeRegistry) Restore(r *codec.Reader, rt *Runtime, ctx any) (err error) {
	const op = "qao.Restore"
	tag := r.ReadS()
	payload := r.ReadBlob()
	if rerr := r.Err(); rerr != nil {
		return validationError(op, NullID, ErrTruncated, "record: %v", rerr)
	}
	f, ok := tr.lookup(tag)
	if !ok {
		return validationError(op, NullID, ErrUnknownTypeTag, "%q", tag)
	}

	defer func() {
		if p := recover(); p != nil {
			err = validationError(op, NullID, ErrTruncated, "factory %q panicked: %v", tag, p)
		}
	}()
	if err := f(codec.NewReader(payload), rt, ctx); err != nil {
		return fmt.Errorf("restore %q: %w", tag, err)
	}
	return nil
}

var defaultTypes = NewTypeRegistry()

// RegisterType registers f in the process-wide registry.
func RegisterType(tag string, f Factory) { defaultTypes.Register(tag, f) }

// DefaultTypes returns the process-wide registry.
func DefaultTypes() *TypeRegistry { return defaultTypes }

// WriteHeader writes (stepCounter, currentEvent).
func (rt *Runtime) WriteHeader(w *codec.Writer) {
	w.WriteQ(rt.stepCounter)
	w.WriteD(int32(rt.currentEvent))
}

// ReadHeader restores the step counter and current event kind.
func (rt *Runtime) ReadHeader(r *codec.Reader) error {
	const op = "runtime.ReadHeader"
	step := r.ReadQ()
	ev := EventKind(r.ReadD())
	if err := r.Err(); err != nil {
		return validationError(op, NullID, ErrTruncated, "header: %v", err)
	}
	if ev != EventNone && !ev.Valid() {
		return validationError(op, NullID, ErrInvalidEvent, "event kind %d", int32(ev))
	}
	rt.stepCounter = step
	rt.currentEvent = ev
	rt.rewind()
	return nil
}

func (rt *Runtime) rewind() {
	if !rt.dispatching {
		rt.cursor = rt.orderer.Front()
	}
}

// Save writes the runtime header followed by one record per Persistable
// object, in dispatch order. Objects that are not Persistable are skipped.
func Save(rt *Runtime, w *codec.Writer) error {
	rt.WriteHeader(w)
	payload := codec.NewWriter()
	for obj := range rt.All() {
		p, ok := obj.(Persistable)
		if !ok {
			continue
		}
		payload.Reset()
		if err := WriteObjectHeader(payload, obj.ObjectBase()); err != nil {
			return err
		}
		if err := p.Persist(payload); err != nil {
			return fmt.Errorf("persist %s %s: %w", p.TypeTag(), obj.ObjectBase().id, err)
		}
		w.WriteS(p.TypeTag())
		w.WriteBlob(payload.Bytes())
	}
	return nil
}

// Load reads a stream produced by Save into rt. A nil types uses DefaultTypes.
func Load(rt *Runtime, r *codec.Reader, types *TypeRegistry, ctx any) error {
	if types == nil {
		types = defaultTypes
	}
	if err := rt.ReadHeader(r); err != nil {
		return err
	}
	for r.Remaining() > 0 {
		if err := types.Restore(r, rt, ctx); err != nil {
			return err
		}
	}
	rt.registry.SealEmptySlots()
	rt.rewind()
	return nil
}
