package orchestrator

import (
	"context"

	"github.com/orbital-ai/orbital/internal/types"
)

// State tracks where a turn is in its lifecycle. States only move forward;
// a turn never re-enters an earlier state.
type State string

const (
	StateAssemblingContext State = "ASSEMBLING_CONTEXT"
	StateAwaitingModel     State = "AWAITING_MODEL"
	StateExecutingTool     State = "EXECUTING_TOOL"
	StateFinalizing        State = "FINALIZING"
	StateDone              State = "DONE"
	StateFailed            State = "FAILED"
)

// Turn is one queued unit of work: a user message against a session.
type Turn struct {
	ID        types.TurnID
	SessionID types.SessionID
	UserText  string

	// Model overrides the configured model for this turn when non-empty.
	Model string

	// Ctx is the caller's context. Cancellation (client disconnect) stops
	// the loop at the next step boundary.
	Ctx context.Context

	// OnComplete receives the outcome exactly once, for both success and
	// failure paths.
	OnComplete func(*Outcome)
}

// Outcome is what a finished turn hands back to the caller.
type Outcome struct {
	State   State
	Session *types.Session
	Message *types.Message
	Err     error
}

func (t *Turn) complete(o *Outcome) {
	if t.OnComplete != nil {
		t.OnComplete(o)
	}
}
