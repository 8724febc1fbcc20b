package eventgate

// file: internal/eventgate/lifecycle.go
//
// Per-event lifecycle classification built on the generic internal/fsm
// wrapper, the way internal/mcp/state/machine.go builds the MCP connection
// lifecycle: AddTransition calls followed by one Build(). Here the machine
// tracks a single event's progress through spec §4.6's states rather than
// a whole connection's.

import (
	"github.com/dkoosis/cowgnition/internal/fsm"
	"github.com/dkoosis/cowgnition/internal/logging"
)

const (
	stateNew       fsm.State = "new"
	stateReceived  fsm.State = "received"
	stateValidated fsm.State = "validated"
	stateInvalid   fsm.State = "invalid"
	stateErrored   fsm.State = "errored"
	stateProduced  fsm.State = "produced"
)

const (
	eventReceived    fsm.Event = "received"
	eventValidated   fsm.Event = "validated"
	eventInvalidated fsm.Event = "invalidated"
	eventErrored     fsm.Event = "errored"
	eventProduced    fsm.Event = "produced"
)

// newLifecycle builds a fresh per-event state machine seeded at stateNew.
// One instance is built per processOne call; the underlying looplab/fsm
// machine is cheap to construct and carries no shared state across events.
func newLifecycle(logger logging.Logger) fsm.FSM {
	builder := fsm.NewFSM(stateNew, logger)

	builder.AddTransition(fsm.Transition{From: []fsm.State{stateNew}, Event: eventReceived, To: stateReceived})
	builder.AddTransition(fsm.Transition{From: []fsm.State{stateReceived}, Event: eventValidated, To: stateValidated})
	builder.AddTransition(fsm.Transition{From: []fsm.State{stateReceived}, Event: eventInvalidated, To: stateInvalid})
	builder.AddTransition(fsm.Transition{From: []fsm.State{stateReceived}, Event: eventErrored, To: stateErrored})
	builder.AddTransition(fsm.Transition{From: []fsm.State{stateValidated}, Event: eventProduced, To: stateProduced})
	builder.AddTransition(fsm.Transition{From: []fsm.State{stateValidated}, Event: eventErrored, To: stateErrored})

	if err := builder.Build(); err != nil {
		logger.Warn("Failed to build per-event lifecycle machine; classification proceeds without state tracking.", "error", err)
	}
	return builder
}
