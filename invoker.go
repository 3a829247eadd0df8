package hearth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// DefaultInvokeTimeout bounds one agent invocation.
const DefaultInvokeTimeout = 30 * time.Second

// AgentInvoker executes one agent. Invoke is total: every failure mode,
// including timeout and panic, comes back as an unsuccessful AgentResponse
// rather than an error, so one bad agent can never sink a dispatch.
type AgentInvoker interface {
	AgentID() string
	Invoke(ctx context.Context, message string) AgentResponse
}

// InvokerOptions tune an invoker.
type InvokerOptions struct {
	// Timeout bounds one invocation; zero takes DefaultInvokeTimeout.
	Timeout time.Duration
	// SessionID scopes thread persistence for local invokers.
	SessionID string
}

func (o *InvokerOptions) defaults() {
	if o.Timeout <= 0 {
		o.Timeout = DefaultInvokeTimeout
	}
}

// timeoutMessage is the error text of a timed-out invocation.
func timeoutMessage(timeout time.Duration) string {
	return fmt.Sprintf("Agent execution timed out after %dms", timeout.Milliseconds())
}

// detectNeedsInput reports whether an agent's reply is a question back to
// the user.
func detectNeedsInput(content string) bool {
	return strings.HasSuffix(strings.TrimSpace(content), "?")
}

// LocalInvoker runs an in-process AIAgent, restoring its thread from the
// session store before the call and persisting it after.
type LocalInvoker struct {
	agent  AIAgent
	store  SessionStore
	opts   InvokerOptions
	logger *slog.Logger
}

// NewLocalInvoker builds an invoker for agent. A nil store disables thread
// persistence.
func NewLocalInvoker(agent AIAgent, store SessionStore, opts InvokerOptions, logger *slog.Logger) *LocalInvoker {
	opts.defaults()
	if store == nil {
		store = NopSessionStore{}
	}
	if logger == nil {
		logger = nopLogger()
	}
	return &LocalInvoker{agent: agent, store: store, opts: opts, logger: logger}
}

func (l *LocalInvoker) AgentID() string { return l.agent.Name() }

func (l *LocalInvoker) Invoke(ctx context.Context, message string) AgentResponse {
	start := time.Now()
	agentID := l.agent.Name()

	thread := l.loadThread(ctx)

	ctx, cancel := context.WithTimeout(ctx, l.opts.Timeout)
	defer cancel()

	type runResult struct {
		resp AgentRunResponse
		err  error
	}
	done := make(chan runResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- runResult{err: fmt.Errorf("agent panicked: %v", r)}
			}
		}()
		resp, err := l.agent.Run(ctx, thread, message)
		done <- runResult{resp: resp, err: err}
	}()

	var res runResult
	select {
	case res = <-done:
	case <-ctx.Done():
		l.logger.Warn("agent invocation timed out", "agent", agentID, "timeout", l.opts.Timeout)
		return AgentResponse{
			AgentID:         agentID,
			Success:         false,
			ErrorMessage:    timeoutMessage(l.opts.Timeout),
			ExecutionTimeMS: time.Since(start).Milliseconds(),
		}
	}

	elapsed := time.Since(start).Milliseconds()
	if res.err != nil {
		errText := res.err.Error()
		// Agents that honor cancellation report the deadline themselves;
		// normalize to the same timeout message either way.
		if errors.Is(res.err, context.DeadlineExceeded) {
			errText = timeoutMessage(l.opts.Timeout)
		}
		l.logger.Error("agent invocation failed", "agent", agentID, "error", res.err)
		return AgentResponse{
			AgentID:         agentID,
			Success:         false,
			ErrorMessage:    errText,
			ExecutionTimeMS: elapsed,
		}
	}

	l.persistThread(ctx, thread)
	return AgentResponse{
		AgentID:         agentID,
		Content:         res.resp.Content,
		Success:         true,
		ExecutionTimeMS: elapsed,
		NeedsInput:      detectNeedsInput(res.resp.Content),
	}
}

func (l *LocalInvoker) loadThread(ctx context.Context) AgentThread {
	if l.opts.SessionID != "" {
		data, ok, err := l.store.Thread(ctx, l.opts.SessionID, l.agent.Name())
		if err != nil {
			l.logger.Warn("thread load failed", "agent", l.agent.Name(), "error", err)
		} else if ok {
			thread, err := l.agent.DeserializeThread(data)
			if err == nil {
				return thread
			}
			l.logger.Warn("thread deserialize failed", "agent", l.agent.Name(), "error", err)
		}
	}
	return l.agent.NewThread()
}

func (l *LocalInvoker) persistThread(ctx context.Context, thread AgentThread) {
	if l.opts.SessionID == "" || thread == nil {
		return
	}
	data, err := thread.Serialize()
	if err != nil {
		l.logger.Warn("thread serialize failed", "agent", l.agent.Name(), "error", err)
		return
	}
	if err := l.store.SaveThread(ctx, l.opts.SessionID, l.agent.Name(), data); err != nil {
		l.logger.Warn("thread save failed", "agent", l.agent.Name(), "error", err)
	}
}

var _ AgentInvoker = (*LocalInvoker)(nil)

// RemoteInvoker reaches an agent through a TaskManager bridge, typically
// backed by an external agent endpoint named by the card's URL.
type RemoteInvoker struct {
	card   AgentCard
	tasks  TaskManager
	opts   InvokerOptions
	logger *slog.Logger
}

// NewRemoteInvoker builds an invoker that relays messages via tasks.
func NewRemoteInvoker(card AgentCard, tasks TaskManager, opts InvokerOptions, logger *slog.Logger) *RemoteInvoker {
	opts.defaults()
	if logger == nil {
		logger = nopLogger()
	}
	return &RemoteInvoker{card: card, tasks: tasks, opts: opts, logger: logger}
}

func (r *RemoteInvoker) AgentID() string { return r.card.Name }

func (r *RemoteInvoker) Invoke(ctx context.Context, message string) AgentResponse {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	res, err := r.tasks.SendMessage(ctx, SendMessageParams{
		ContextID: r.opts.SessionID,
		Message:   NewUserAgentMessage(message),
	})
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		if ctx.Err() != nil {
			err = fmt.Errorf("%s", timeoutMessage(r.opts.Timeout))
		}
		r.logger.Error("remote agent invocation failed", "agent", r.card.Name, "error", err)
		return AgentResponse{
			AgentID:         r.card.Name,
			Success:         false,
			ErrorMessage:    err.Error(),
			ExecutionTimeMS: elapsed,
		}
	}

	// A direct agent message is a successful reply on its own; only
	// message-less results are judged by the task's state.
	if res.Message != nil {
		content := res.Message.Text()
		if res.Task.State == TaskStateInputRequired {
			return AgentResponse{
				AgentID:         r.card.Name,
				Content:         content,
				Success:         true,
				ExecutionTimeMS: elapsed,
				NeedsInput:      true,
			}
		}
		return AgentResponse{
			AgentID:         r.card.Name,
			Content:         content,
			Success:         true,
			ExecutionTimeMS: elapsed,
			NeedsInput:      detectNeedsInput(content),
		}
	}

	content := ""
	if n := len(res.Task.History); n > 0 {
		content = res.Task.History[n-1].Text()
	}

	switch res.Task.State {
	case TaskStateCompleted, TaskStateWorking:
		return AgentResponse{
			AgentID:         r.card.Name,
			Content:         content,
			Success:         true,
			ExecutionTimeMS: elapsed,
			NeedsInput:      detectNeedsInput(content),
		}
	case TaskStateInputRequired:
		return AgentResponse{
			AgentID:         r.card.Name,
			Content:         content,
			Success:         true,
			ExecutionTimeMS: elapsed,
			NeedsInput:      true,
		}
	default:
		if content == "" {
			content = "Unknown error"
		}
		return AgentResponse{
			AgentID:         r.card.Name,
			Success:         false,
			ErrorMessage:    content,
			ExecutionTimeMS: elapsed,
		}
	}
}

var _ AgentInvoker = (*RemoteInvoker)(nil)
