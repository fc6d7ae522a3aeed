package event

import (
	"time"

	"go.uber.org/atomic"
)

type State uint32

const (
	INITIALIZE State = iota
	PROGRESS
	FINALIZE
	COMPLETE
)

// StateEvent is the base for multi-phase events. Embedders drive
// the phase forward from their own Update implementation.
type StateEvent struct {
	Base
	value atomic.Uint32
}

func (e *StateEvent) Load() uint32 {
	return e.value.Load()
}

func (e *StateEvent) Store(value uint32) {
	e.value.Store(value)
}

func (e *StateEvent) Valid() bool {
	return e.Load() != uint32(COMPLETE)
}

func (e *StateEvent) Continue() bool {
	return e.Load() != uint32(COMPLETE)
}

func (e *StateEvent) Update(elapse time.Duration) error {
	switch State(e.Load()) {
	case INITIALIZE:
		e.Store(uint32(PROGRESS))
	case PROGRESS:
		e.Store(uint32(FINALIZE))
	case FINALIZE:
		e.Store(uint32(COMPLETE))
	case COMPLETE:

	}
	return nil
}

func (e *StateEvent) Stop() {
	e.Store(uint32(COMPLETE))
}
