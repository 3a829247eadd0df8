package hearth

import (
	"context"
	"sync"
)

// SendMessageParams carries one message toward a task-managed agent.
// An empty TaskID starts a new task; ContextID groups tasks by
// conversation.
type SendMessageParams struct {
	TaskID    string
	ContextID string
	Message   AgentMessage
}

// SendResult is the task manager's reply to SendMessage: the task after
// processing plus the agent's answer message, when one was produced.
type SendResult struct {
	Task    Task
	Message *AgentMessage
}

// TaskManager owns the durable task log and its state machine. All methods
// are safe for concurrent use.
type TaskManager interface {
	// CreateTask opens a new task in the working state.
	CreateTask(ctx context.Context, contextID string) (Task, error)
	// GetTask returns a copy of the task, or ErrTaskNotFound.
	GetTask(ctx context.Context, taskID string) (Task, error)
	// UpdateStatus moves the task to state, appending msg to its history
	// when non-nil. final closes the task to further updates. Transitions
	// the state machine forbids return *ErrInvalidTransition; updates to an
	// already-final task return ErrTaskFinal.
	UpdateStatus(ctx context.Context, taskID string, state TaskState, msg *AgentMessage, final bool) (Task, error)
	// SendMessage routes a message to the agent behind the task, creating
	// the task first when params.TaskID is empty.
	SendMessage(ctx context.Context, params SendMessageParams) (*SendResult, error)
}

// MessageHandler processes one delivered message for MemoryTaskManager.
// It returns the resulting task state, an optional answer message, and
// whether the state is final for this task.
type MessageHandler func(ctx context.Context, task Task, msg AgentMessage) (TaskState, *AgentMessage, bool, error)

// MemoryTaskManager is an in-process TaskManager. It keeps every task in a
// map and hands copies out, so callers can never mutate stored state.
// Without a handler, SendMessage records the message and completes the
// task, which is enough for tests and for local echo-style agents.
type MemoryTaskManager struct {
	mu      sync.RWMutex
	tasks   map[string]*Task
	handler MessageHandler
}

// NewMemoryTaskManager builds an empty in-memory task manager.
func NewMemoryTaskManager() *MemoryTaskManager {
	return &MemoryTaskManager{tasks: make(map[string]*Task)}
}

// SetHandler installs the message handler invoked by SendMessage.
func (m *MemoryTaskManager) SetHandler(h MessageHandler) { m.handler = h }

func (m *MemoryTaskManager) CreateTask(_ context.Context, contextID string) (Task, error) {
	now := NowUnix()
	t := &Task{
		ID:        NewID(),
		ContextID: contextID,
		State:     TaskStateWorking,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.mu.Lock()
	m.tasks[t.ID] = t
	m.mu.Unlock()
	return cloneTask(t), nil
}

func (m *MemoryTaskManager) GetTask(_ context.Context, taskID string) (Task, error) {
	m.mu.RLock()
	t, ok := m.tasks[taskID]
	m.mu.RUnlock()
	if !ok {
		return Task{}, ErrTaskNotFound
	}
	return cloneTask(t), nil
}

func (m *MemoryTaskManager) UpdateStatus(_ context.Context, taskID string, state TaskState, msg *AgentMessage, final bool) (Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[taskID]
	if !ok {
		return Task{}, ErrTaskNotFound
	}
	if t.Final {
		return Task{}, ErrTaskFinal
	}
	if !ValidTransition(t.State, state) {
		return Task{}, &ErrInvalidTransition{TaskID: taskID, From: t.State, To: state}
	}
	t.State = state
	t.Final = final || state.Terminal()
	t.UpdatedAt = NowUnix()
	if msg != nil {
		mm := *msg
		if mm.MessageID == "" {
			mm.MessageID = NewID()
		}
		if mm.CreatedAt == 0 {
			mm.CreatedAt = t.UpdatedAt
		}
		mm.TaskID = t.ID
		mm.ContextID = t.ContextID
		t.History = append(t.History, mm)
	}
	return cloneTask(t), nil
}

func (m *MemoryTaskManager) SendMessage(ctx context.Context, params SendMessageParams) (*SendResult, error) {
	var task Task
	var err error
	if params.TaskID == "" {
		task, err = m.CreateTask(ctx, params.ContextID)
	} else {
		task, err = m.GetTask(ctx, params.TaskID)
	}
	if err != nil {
		return nil, err
	}
	if task.Final {
		return nil, ErrTaskFinal
	}
	// Record the inbound message. Re-opening from input-required counts as
	// a transition back to working.
	task, err = m.UpdateStatus(ctx, task.ID, TaskStateWorking, &params.Message, false)
	if err != nil {
		return nil, err
	}

	state := TaskStateCompleted
	var answer *AgentMessage
	final := true
	if m.handler != nil {
		state, answer, final, err = m.handler(ctx, task, params.Message)
		if err != nil {
			errMsg := AgentMessage{Role: RoleAgent, Parts: []MessagePart{{Text: err.Error()}}}
			task, uerr := m.UpdateStatus(ctx, task.ID, TaskStateFailed, &errMsg, true)
			if uerr != nil {
				return nil, uerr
			}
			return &SendResult{Task: task}, nil
		}
	}
	if answer != nil {
		answer.Role = RoleAgent
	}
	task, err = m.UpdateStatus(ctx, task.ID, state, answer, final)
	if err != nil {
		return nil, err
	}
	res := &SendResult{Task: task}
	if answer != nil && len(task.History) > 0 {
		last := task.History[len(task.History)-1]
		res.Message = &last
	}
	return res, nil
}

var _ TaskManager = (*MemoryTaskManager)(nil)

func cloneTask(t *Task) Task {
	out := *t
	out.History = append([]AgentMessage(nil), t.History...)
	return out
}
