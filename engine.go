package hearth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
)

// Canned user-facing texts. The engine never surfaces raw errors.
const (
	apologyText  = "I'm sorry, something went wrong while handling your request. Please try again."
	noAgentsText = "I'm sorry, I don't have any assistants available to help with that right now."
	canceledText = "That request was canceled."
)

// Request is one user request entering the engine. An empty TaskID starts
// a new task; an empty SessionID gets a generated one, losing multi-turn
// continuity.
type Request struct {
	Text      string
	TaskID    string
	SessionID string
}

// EngineConfig wires the engine's collaborators. Registry and a chat
// source (Chat or ChatResolver) are required; everything else defaults to
// in-memory implementations.
type EngineConfig struct {
	// Registry exposes the agent catalog.
	Registry AgentRegistry
	// Agents supplies local in-process agent implementations.
	Agents AgentProvider
	// Chat is the shared LLM client. ChatResolver, when set, overrides it
	// per purpose so routing can use a cheaper model than agents.
	Chat         ChatClient
	ChatResolver ChatClientResolver
	// Sessions caches multi-turn history; Threads persists per-agent
	// thread state; Tasks is the durable task log.
	Sessions SessionCache
	Threads  SessionStore
	Tasks    TaskManager
	// RemoteTasks bridges cards with a URL to their remote endpoint. Nil
	// makes remote cards undispatchable.
	RemoteTasks TaskManager
	// RoutingCache short-circuits repeated routing decisions.
	RoutingCache RoutingDecisionCache
	// Observers receive lifecycle events for every request.
	Observers []Observer

	Tracer Tracer
	Logger *slog.Logger

	Router        RouterOptions
	Aggregator    AggregatorOptions
	InvokeTimeout time.Duration
}

// Engine is the orchestration entry point. One Engine serves concurrent
// requests; each ProcessRequest call is an isolated task.
type Engine struct {
	cfg        EngineConfig
	router     *RouterExecutor
	aggregator *AggregatorExecutor
	bus        *ObserverBus
	logger     *slog.Logger
}

// NewEngine validates the configuration and builds the engine.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Registry == nil {
		return nil, errors.New("hearth: engine requires an agent registry")
	}
	if cfg.Chat == nil && cfg.ChatResolver == nil {
		return nil, errors.New("hearth: engine requires a chat client or resolver")
	}
	if cfg.Logger == nil {
		cfg.Logger = nopLogger()
	}
	if cfg.Sessions == nil {
		cfg.Sessions = NewMemorySessionCache(SessionCacheOptions{})
	}
	if cfg.Threads == nil {
		cfg.Threads = NewMemorySessionStore()
	}
	if cfg.Tasks == nil {
		cfg.Tasks = NewMemoryTaskManager()
	}

	bus := NewObserverBus(cfg.Logger)
	for _, o := range cfg.Observers {
		bus.Register(o)
	}

	e := &Engine{
		cfg:    cfg,
		bus:    bus,
		logger: cfg.Logger,
	}
	e.router = NewRouterExecutor(cfg.Registry, e.routingChat(), cfg.Router,
		RouterWithCache(cfg.RoutingCache),
		RouterWithTracer(cfg.Tracer),
		RouterWithLogger(cfg.Logger),
	)
	e.aggregator = NewAggregatorExecutor(cfg.Aggregator, cfg.Logger)
	return e, nil
}

// RegisterObserver adds an observer after construction.
func (e *Engine) RegisterObserver(o Observer) { e.bus.Register(o) }

func (e *Engine) routingChat() ChatClient {
	if e.cfg.ChatResolver != nil {
		if c := e.cfg.ChatResolver(ChatPurposeRouting); c != nil {
			return c
		}
	}
	return e.cfg.Chat
}

// ProcessRequest orchestrates one request end-to-end and never returns an
// error: every failure mode maps to a canned reply, and the backing task
// records what actually happened.
func (e *Engine) ProcessRequest(ctx context.Context, req Request) (result OrchestratorResult) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return OrchestratorResult{Text: apologyText}
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = NewID()
	}

	history := e.loadHistory(ctx, sessionID)
	task, ok := e.prepareTask(ctx, req.TaskID, sessionID, text)
	if !ok {
		return OrchestratorResult{Text: apologyText}
	}

	// Nothing past this point may escape to the caller.
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("request processing panicked", "task", task.ID, "panic", r)
			e.finalize(task.ID, TaskStateFailed, apologyText)
			result = OrchestratorResult{Text: apologyText}
		}
	}()

	invokers, ok := e.buildInvokers(ctx, sessionID)
	if !ok {
		e.finalize(task.ID, TaskStateFailed, noAgentsText)
		return OrchestratorResult{Text: noAgentsText}
	}

	e.bus.OnRequestStarted(task.ID, sessionID, text)

	dispatcher := NewDispatchExecutor(invokers,
		DispatchWithObserver(e.bus),
		DispatchWithTracer(e.cfg.Tracer),
		DispatchWithLogger(e.logger),
		DispatchWithClarificationAgent(e.cfg.Router.ClarificationAgentID),
	)
	pipeline := NewPipeline(e.router, dispatcher, e.aggregator,
		PipelineWithObserver(e.bus),
		PipelineWithTracer(e.cfg.Tracer),
		PipelineWithLogger(e.logger),
	)

	out := pipeline.Run(ctx, task.ID, text, history)

	if ctx.Err() != nil {
		e.finalize(task.ID, TaskStateCanceled, canceledText)
		return OrchestratorResult{Text: canceledText}
	}
	if out.Err != nil {
		e.logger.Error("pipeline failed", "task", task.ID, "error", out.Err)
		e.finalize(task.ID, TaskStateFailed, apologyText)
		return OrchestratorResult{Text: apologyText}
	}

	agg := out.Aggregation
	result = OrchestratorResult{Text: agg.Message, NeedsInput: agg.NeedsInput}

	switch {
	case agg.NeedsInput:
		e.appendAssistant(task.ID, TaskStateInputRequired, agg.Message, false)
	case len(agg.SuccessfulAgents) == 0 && len(agg.FailedAgents) > 0:
		// Every agent failed; the message is pure failure composition.
		e.finalize(task.ID, TaskStateFailed, agg.Message)
	default:
		e.appendAssistant(task.ID, TaskStateCompleted, agg.Message, true)
	}

	e.saveSession(ctx, sessionID, history, text, agg.Message)
	return result
}

// loadHistory returns the session's prior turns, or nil on miss or error.
func (e *Engine) loadHistory(ctx context.Context, sessionID string) []SessionTurn {
	data, ok, err := e.cfg.Sessions.Get(ctx, sessionID)
	if err != nil {
		e.logger.Warn("session load failed", "session", sessionID, "error", err)
		return nil
	}
	if !ok {
		return nil
	}
	return data.History
}

// prepareTask loads or creates the task and appends the user message,
// transitioning to Working. A final or unknown task id starts a fresh
// task.
func (e *Engine) prepareTask(ctx context.Context, taskID, sessionID, text string) (Task, bool) {
	var task Task
	var err error
	if taskID != "" {
		task, err = e.cfg.Tasks.GetTask(ctx, taskID)
		if err != nil || task.Final {
			task = Task{}
		}
	}
	if task.ID == "" {
		task, err = e.cfg.Tasks.CreateTask(ctx, sessionID)
		if err != nil {
			e.logger.Error("task creation failed", "session", sessionID, "error", err)
			return Task{}, false
		}
	}
	userMsg := NewUserAgentMessage(text)
	task, err = e.cfg.Tasks.UpdateStatus(ctx, task.ID, TaskStateWorking, &userMsg, false)
	if err != nil {
		e.logger.Error("user message append failed", "task", task.ID, "error", err)
		return Task{}, false
	}
	return task, true
}

// buildInvokers resolves the catalog into invokers: local agents matched
// by name, remote cards bridged through RemoteTasks. ok is false when the
// catalog or the invoker set comes up empty.
func (e *Engine) buildInvokers(ctx context.Context, sessionID string) ([]AgentInvoker, bool) {
	cards, err := e.cfg.Registry.ListAgents(ctx)
	if err != nil {
		e.logger.Error("agent catalog unavailable", "error", err)
		return nil, false
	}
	if len(cards) == 0 {
		return nil, false
	}

	opts := InvokerOptions{Timeout: e.cfg.InvokeTimeout, SessionID: sessionID}

	var local map[string]AIAgent
	if e.cfg.Agents != nil {
		agents := e.cfg.Agents.Agents()
		local = make(map[string]AIAgent, len(agents))
		for _, a := range agents {
			local[lower(a.Name())] = a
		}
	}

	var invokers []AgentInvoker
	for _, card := range cards {
		if equalFold(card.Name, orchestratorAgentName) {
			continue
		}
		if agent, ok := local[lower(card.Name)]; ok {
			invokers = append(invokers, NewLocalInvoker(agent, e.cfg.Threads, opts, e.logger))
			continue
		}
		if card.Remote() && e.cfg.RemoteTasks != nil {
			invokers = append(invokers, NewRemoteInvoker(card, e.cfg.RemoteTasks, opts, e.logger))
			continue
		}
		e.logger.Warn("card has no agent implementation", "agent", card.Name)
	}
	if len(invokers) == 0 {
		return nil, false
	}
	return invokers, true
}

// appendAssistant appends an assistant message and moves the task to
// state. Failures are logged, not surfaced; the reply already exists.
func (e *Engine) appendAssistant(taskID string, state TaskState, text string, final bool) {
	msg := AgentMessage{
		MessageID: NewID(),
		Role:      RoleAssistant,
		Parts:     []MessagePart{{Text: text}},
		CreatedAt: NowUnix(),
	}
	// Detached context: the task record should reflect the outcome even
	// when the caller's context is gone.
	if _, err := e.cfg.Tasks.UpdateStatus(context.Background(), taskID, state, &msg, final); err != nil {
		e.logger.Error("assistant message append failed", "task", taskID, "state", state, "error", err)
	}
}

// finalize best-effort moves the task to a terminal state with a closing
// message.
func (e *Engine) finalize(taskID string, state TaskState, text string) {
	e.appendAssistant(taskID, state, text, true)
}

// saveSession appends the user and assistant turns and writes the session
// back. The cache trims to its history cap.
func (e *Engine) saveSession(ctx context.Context, sessionID string, history []SessionTurn, userText, assistantText string) {
	now := NowUnix()
	turns := append(history,
		SessionTurn{Role: RoleUser, Content: userText, Timestamp: now},
		SessionTurn{Role: RoleAssistant, Content: assistantText, Timestamp: now},
	)
	err := e.cfg.Sessions.Save(ctx, SessionData{
		SessionID:   sessionID,
		History:     turns,
		LastUpdated: now,
	})
	if err != nil {
		e.logger.Warn("session save failed", "session", sessionID, "error", err)
	}
}
