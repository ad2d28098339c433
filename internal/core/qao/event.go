package qao

import "fmt"

// EventKind is one stage of the fixed per-tick dispatch sequence.
type EventKind int32

const (
	EventNone EventKind = -1

	EventStartFrame    EventKind = iota - 1 // 0: frame bookkeeping
	EventPreUpdate                          // 1: read inputs
	EventUpdate1                            // 2: main logic
	EventUpdate2                            // 3: logic depending on Update1
	EventPostUpdate                         // 4: settle state
	EventDraw1                              // 5
	EventDraw2                              // 6
	EventDrawGUI                            // 7
	EventFinalizeFrame                      // 8: present / flush

	EventCount = int(EventFinalizeFrame) + 1
)

var eventNames = [EventCount]string{
	"StartFrame",
	"PreUpdate",
	"Update1",
	"Update2",
	"PostUpdate",
	"Draw1",
	"Draw2",
	"DrawGUI",
	"FinalizeFrame",
}

func (k EventKind) String() string {
	if k == EventNone {
		return "None"
	}
	if k < 0 || int(k) >= EventCount {
		return fmt.Sprintf("Unknown(%d)", int32(k))
	}
	return eventNames[k]
}

// Valid reports whether k is one of the canonical kinds.
func (k EventKind) Valid() bool {
	return k >= 0 && int(k) < EventCount
}

// EventKinds returns the canonical kinds in dispatch order.
func EventKinds() []EventKind {
	kinds := make([]EventKind, EventCount)
	for i := range kinds {
		kinds[i] = EventKind(i)
	}
	return kinds
}

// EventMask selects which kinds an AdvanceStep call dispatches.
type EventMask uint32

// MaskOf returns the mask containing exactly the given kinds.
func MaskOf(kinds ...EventKind) EventMask {
	var m EventMask
	for _, k := range kinds {
		m |= 1 << uint32(k)
	}
	return m
}

func (m EventMask) Has(k EventKind) bool {
	return k.Valid() && m&(1<<uint32(k)) != 0
}

const AllEvents EventMask = 1<<EventCount - 1

var (
	DrawEvents     = MaskOf(EventDraw1, EventDraw2, EventDrawGUI)
	FinalizeEvents = MaskOf(EventFinalizeFrame)
	StepEvents     = AllEvents &^ DrawEvents &^ FinalizeEvents
)
