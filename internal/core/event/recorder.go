package event

import "github.com/hobgoblin/qao/internal/core/qao"

// Recorder is a qao.Listener that turns runtime changes into bus events.
type Recorder struct {
	bus *Bus
}

func NewRecorder(bus *Bus) *Recorder {
	return &Recorder{bus: bus}
}

func (r *Recorder) ObjectAdded(obj qao.Object) {
	b := obj.ObjectBase()
	Emit(r.bus, ObjectAdded{ID: b.ID(), Name: b.Name(), Priority: b.ExecutionPriority()})
}

func (r *Recorder) ObjectReleased(id qao.ObjectID, obj qao.Object) {
	Emit(r.bus, ObjectReleased{ID: id, Name: obj.ObjectBase().Name()})
}

func (r *Recorder) PriorityChanged(obj qao.Object, old int) {
	b := obj.ObjectBase()
	Emit(r.bus, PriorityChanged{ID: b.ID(), Name: b.Name(), From: old, To: b.ExecutionPriority()})
}
