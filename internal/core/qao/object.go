package qao

import "math"

// MinStepOrdinal is stamped onto newly added objects so they are eligible for
// dispatch in the first pass they experience.
const MinStepOrdinal int64 = math.MinInt64

// Object is the unit of scheduling. Concrete types embed Base, which supplies
// no-op hooks, and override the hooks they care about.
type Object interface {
	StartFrame()
	PreUpdate()
	Update1()
	Update2()
	PostUpdate()
	Draw1()
	Draw2()
	DrawGUI()
	FinalizeFrame()

	ObjectBase() *Base
}

// Destroyer is implemented by objects that need cleanup when the runtime
// that owns them erases them.
type Destroyer interface {
	Destroy()
}

// Messenger is implemented by objects that respond to Runtime.Broadcast.
type Messenger interface {
	Message(tag int, payload any) bool
}

// Base carries the identity and scheduling state of an Object.
type Base struct {
	name     string
	priority int

	id          ObjectID
	stepOrdinal int64
	entry       *Entry
	runtime     *Runtime
}

// NewBase returns a detached Base with the given name and execution priority.
func NewBase(name string, priority int) Base {
	return Base{name: name, priority: priority}
}

func (b *Base) ObjectBase() *Base { return b }

func (b *Base) StartFrame()    {}
func (b *Base) PreUpdate()     {}
func (b *Base) Update1()       {}
func (b *Base) Update2()       {}
func (b *Base) PostUpdate()    {}
func (b *Base) Draw1()         {}
func (b *Base) Draw2()         {}
func (b *Base) DrawGUI()       {}
func (b *Base) FinalizeFrame() {}

func (b *Base) Name() string           { return b.name }
func (b *Base) SetName(name string)    { b.name = name }
func (b *Base) ExecutionPriority() int { return b.priority }
func (b *Base) ID() ObjectID           { return b.id }
func (b *Base) Runtime() *Runtime      { return b.runtime }
func (b *Base) StepOrdinal() int64     { return b.stepOrdinal }

// SetExecutionPriority changes the priority, reordering the object inside its
// runtime when it is registered with one.
func (b *Base) SetExecutionPriority(p int) {
	if b.priority == p {
		return
	}
	if b.runtime != nil && b.entry != nil {
		b.runtime.reorder(b.entry.obj, p)
		return
	}
	b.priority = p
}

func (b *Base) attach(rt *Runtime, id ObjectID, e *Entry) {
	b.runtime = rt
	b.id = id
	b.entry = e
	b.stepOrdinal = MinStepOrdinal
}

func (b *Base) detach() {
	b.runtime = nil
	b.id = NullID
	b.entry = nil
	b.stepOrdinal = MinStepOrdinal
}

func dispatch(obj Object, ev EventKind) {
	switch ev {
	case EventStartFrame:
		obj.StartFrame()
	case EventPreUpdate:
		obj.PreUpdate()
	case EventUpdate1:
		obj.Update1()
	case EventUpdate2:
		obj.Update2()
	case EventPostUpdate:
		obj.PostUpdate()
	case EventDraw1:
		obj.Draw1()
	case EventDraw2:
		obj.Draw2()
	case EventDrawGUI:
		obj.DrawGUI()
	case EventFinalizeFrame:
		obj.FinalizeFrame()
	}
}
