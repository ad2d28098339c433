package event

import "github.com/hobgoblin/qao/internal/core/qao"

// Runtime lifecycle events, emitted by Recorder.

type ObjectAdded struct {
	ID       qao.ObjectID
	Name     string
	Priority int
}

type ObjectReleased struct {
	ID   qao.ObjectID
	Name string
}

type PriorityChanged struct {
	ID   qao.ObjectID
	Name string
	From int
	To   int
}

// FrameCompleted is emitted by the loop driver after every frame.
type FrameCompleted struct {
	Frame       int64
	Steps       int
	StepCounter int64
	Objects     int
}
