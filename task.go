package hearth

import "strings"

// TaskState is a node in the task lifecycle state machine.
type TaskState string

const (
	TaskStateWorking       TaskState = "working"
	TaskStateInputRequired TaskState = "input-required"
	TaskStateCompleted     TaskState = "completed"
	TaskStateFailed        TaskState = "failed"
	TaskStateCanceled      TaskState = "canceled"
)

// Terminal reports whether the state admits no further transitions.
func (s TaskState) Terminal() bool {
	switch s {
	case TaskStateCompleted, TaskStateFailed, TaskStateCanceled:
		return true
	}
	return false
}

// ValidTransition reports whether the state machine allows from -> to.
//
//	working        -> working, input-required, completed, failed, canceled
//	input-required -> working, canceled
//	terminal       -> (none)
func ValidTransition(from, to TaskState) bool {
	switch from {
	case TaskStateWorking:
		switch to {
		case TaskStateWorking, TaskStateInputRequired, TaskStateCompleted,
			TaskStateFailed, TaskStateCanceled:
			return true
		}
	case TaskStateInputRequired:
		switch to {
		case TaskStateWorking, TaskStateCanceled:
			return true
		}
	}
	return false
}

// MessagePart is one content part of a task message. Only text parts exist
// today; the struct leaves room for richer parts later.
type MessagePart struct {
	Text string `json:"text"`
}

// AgentMessage is one entry in a task's message history.
type AgentMessage struct {
	MessageID string        `json:"message_id"`
	Role      string        `json:"role"`
	TaskID    string        `json:"task_id,omitempty"`
	ContextID string        `json:"context_id,omitempty"`
	Parts     []MessagePart `json:"parts"`
	CreatedAt int64         `json:"created_at"`
}

// Text joins the message's text parts.
func (m AgentMessage) Text() string {
	if len(m.Parts) == 1 {
		return m.Parts[0].Text
	}
	var b strings.Builder
	for _, p := range m.Parts {
		b.WriteString(p.Text)
	}
	return b.String()
}

// NewUserAgentMessage builds a user-role message with a fresh id.
func NewUserAgentMessage(text string) AgentMessage {
	return AgentMessage{
		MessageID: NewID(),
		Role:      RoleUser,
		Parts:     []MessagePart{{Text: text}},
		CreatedAt: NowUnix(),
	}
}

// Task is the durable record of one orchestration run: its lifecycle state
// and the ordered message history appended as the run progresses.
type Task struct {
	ID        string    `json:"id"`
	ContextID string    `json:"context_id"`
	State     TaskState `json:"state"`
	// Final marks the task closed to further status updates even when the
	// state itself is non-terminal.
	Final     bool           `json:"final"`
	History   []AgentMessage `json:"history"`
	CreatedAt int64          `json:"created_at"`
	UpdatedAt int64          `json:"updated_at"`
}
