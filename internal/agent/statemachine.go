// File: internal/agent/statemachine.go
package agent

import (
	"fmt"

	"github.com/quantum-agi/sdk-go/api/schemas"
)

// Event is a state machine input. Transitions are driven exclusively by the
// orchestration loop; external callers only inject signals, which the loop
// converts into events at its suspension points.
type Event string

const (
	EventStart               Event = "start"
	EventPause               Event = "pause"
	EventResume              Event = "resume"
	EventAwaitConfirmation   Event = "await_confirmation"
	EventConfirmationResolve Event = "confirmation_resolved"
	EventFinish              Event = "finish"
	EventFail                Event = "fail"
)

// transitions is the complete legal transition set. Idle is the only initial
// state; Finished and Failed are terminal.
var transitions = map[schemas.AgentStatus]map[Event]schemas.AgentStatus{
	schemas.StatusIdle: {
		EventStart: schemas.StatusRunning,
	},
	schemas.StatusRunning: {
		EventPause:             schemas.StatusPaused,
		EventAwaitConfirmation: schemas.StatusAwaitingConfirmation,
		EventFinish:            schemas.StatusFinished,
		EventFail:              schemas.StatusFailed,
	},
	schemas.StatusPaused: {
		EventResume: schemas.StatusRunning,
	},
	schemas.StatusAwaitingConfirmation: {
		EventConfirmationResolve: schemas.StatusRunning,
		EventFail:                schemas.StatusFailed,
	},
	// No transitions out of Finished or Failed.
}

// Transition is the pure, total transition function. Every (state, event)
// pair not explicitly allowed is rejected with ErrInvalidTransition rather
// than silently ignored; this is what prevents the loop from executing
// actions while paused or finishing twice.
func Transition(current schemas.AgentStatus, ev Event) (schemas.AgentStatus, error) {
	if next, ok := transitions[current][ev]; ok {
		return next, nil
	}
	return current, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, ev, current)
}
