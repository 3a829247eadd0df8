package hearth

import (
	"errors"
	"fmt"
)

// ErrTaskNotFound is returned by TaskManager lookups for unknown task ids.
var ErrTaskNotFound = errors.New("task not found")

// ErrTaskFinal is returned when a task that received a final status update
// is mutated again.
var ErrTaskFinal = errors.New("task is final")

// ErrInvalidTransition reports a task state change the state machine forbids.
type ErrInvalidTransition struct {
	TaskID string
	From   TaskState
	To     TaskState
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("task %s: invalid transition %s -> %s", e.TaskID, e.From, e.To)
}

// ErrAgentUnavailable reports a dispatched agent with no matching invoker.
// Its text is user-facing: the dispatcher surfaces it verbatim as the
// agent's error message.
type ErrAgentUnavailable struct {
	AgentID string
}

func (e *ErrAgentUnavailable) Error() string {
	return fmt.Sprintf("Agent '%s' is not available.", e.AgentID)
}
