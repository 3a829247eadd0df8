package hearth

import (
	"context"
	"log/slog"
	"sync"
)

// Observer receives lifecycle notifications for one orchestration run.
// Implementations must not block; slow consumers should buffer internally
// (see LiveActivityChannel). Panics in observers are recovered and logged,
// never propagated into the pipeline.
type Observer interface {
	// OnRequestStarted fires once per engine call, before routing.
	OnRequestStarted(taskID, sessionID, text string)
	// OnRoutingCompleted fires once with the final routing decision.
	OnRoutingCompleted(taskID string, choice AgentChoice)
	// OnAgentExecutionCompleted fires once per dispatched agent.
	OnAgentExecutionCompleted(taskID string, resp AgentResponse)
	// OnResponseAggregated fires once with the merged result.
	OnResponseAggregated(taskID string, result AggregationResult)
}

// ObserverBus fans notifications out to registered observers. Registration
// is concurrency-safe; delivery is synchronous and in registration order,
// with per-observer panic isolation.
type ObserverBus struct {
	logger *slog.Logger

	mu        sync.RWMutex
	observers []Observer
}

// NewObserverBus builds a bus. A nil logger discards recovery logs.
func NewObserverBus(logger *slog.Logger) *ObserverBus {
	if logger == nil {
		logger = nopLogger()
	}
	return &ObserverBus{logger: logger}
}

// Register adds an observer to the bus.
func (b *ObserverBus) Register(o Observer) {
	if o == nil {
		return
	}
	b.mu.Lock()
	b.observers = append(b.observers, o)
	b.mu.Unlock()
}

func (b *ObserverBus) snapshot() []Observer {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]Observer(nil), b.observers...)
}

func (b *ObserverBus) notify(event string, fn func(Observer)) {
	for _, o := range b.snapshot() {
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error("observer panicked", "event", event, "panic", r)
				}
			}()
			fn(o)
		}()
	}
}

func (b *ObserverBus) OnRequestStarted(taskID, sessionID, text string) {
	b.notify("request_started", func(o Observer) { o.OnRequestStarted(taskID, sessionID, text) })
}

func (b *ObserverBus) OnRoutingCompleted(taskID string, choice AgentChoice) {
	b.notify("routing_completed", func(o Observer) { o.OnRoutingCompleted(taskID, choice) })
}

func (b *ObserverBus) OnAgentExecutionCompleted(taskID string, resp AgentResponse) {
	b.notify("agent_execution_completed", func(o Observer) { o.OnAgentExecutionCompleted(taskID, resp) })
}

func (b *ObserverBus) OnResponseAggregated(taskID string, result AggregationResult) {
	b.notify("response_aggregated", func(o Observer) { o.OnResponseAggregated(taskID, result) })
}

var _ Observer = (*ObserverBus)(nil)

// ActivityKind labels one live activity event.
type ActivityKind string

const (
	ActivityRequestStarted ActivityKind = "request_started"
	ActivityRouting        ActivityKind = "routing_completed"
	ActivityAgentCompleted ActivityKind = "agent_execution_completed"
	ActivityAggregated     ActivityKind = "response_aggregated"
)

// ActivityEvent is one entry on a live activity stream.
type ActivityEvent struct {
	Kind      ActivityKind       `json:"kind"`
	TaskID    string             `json:"task_id"`
	SessionID string             `json:"session_id,omitempty"`
	Text      string             `json:"text,omitempty"`
	Choice    *AgentChoice       `json:"choice,omitempty"`
	Response  *AgentResponse     `json:"response,omitempty"`
	Result    *AggregationResult `json:"result,omitempty"`
	Timestamp int64              `json:"timestamp"`
}

// DefaultActivityBuffer is the channel capacity of a LiveActivityChannel.
const DefaultActivityBuffer = 100

// LiveActivityChannel buffers activity events for one streaming consumer.
// When the buffer fills, the oldest event is dropped to admit the newest,
// so publishers never block and consumers always see the freshest tail.
type LiveActivityChannel struct {
	mu     sync.Mutex
	ch     chan ActivityEvent
	closed bool
}

// NewLiveActivityChannel builds a channel with the given capacity; zero or
// negative takes DefaultActivityBuffer.
func NewLiveActivityChannel(capacity int) *LiveActivityChannel {
	if capacity <= 0 {
		capacity = DefaultActivityBuffer
	}
	return &LiveActivityChannel{ch: make(chan ActivityEvent, capacity)}
}

// Subscribe returns the receive side of the stream. The channel closes
// when Close is called.
func (l *LiveActivityChannel) Subscribe() <-chan ActivityEvent { return l.ch }

// Publish enqueues an event, evicting the oldest buffered event if the
// channel is full. Publishing after Close is a no-op.
func (l *LiveActivityChannel) Publish(ev ActivityEvent) {
	if ev.Timestamp == 0 {
		ev.Timestamp = NowUnix()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	for {
		select {
		case l.ch <- ev:
			return
		default:
		}
		select {
		case <-l.ch:
		default:
		}
	}
}

// Close ends the stream. Safe to call more than once.
func (l *LiveActivityChannel) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	close(l.ch)
}

// AsObserver adapts the channel into an Observer that publishes one event
// per notification.
func (l *LiveActivityChannel) AsObserver() Observer { return activityObserver{l} }

type activityObserver struct {
	ch *LiveActivityChannel
}

func (a activityObserver) OnRequestStarted(taskID, sessionID, text string) {
	a.ch.Publish(ActivityEvent{Kind: ActivityRequestStarted, TaskID: taskID, SessionID: sessionID, Text: text})
}

func (a activityObserver) OnRoutingCompleted(taskID string, choice AgentChoice) {
	c := choice
	a.ch.Publish(ActivityEvent{Kind: ActivityRouting, TaskID: taskID, Choice: &c})
}

func (a activityObserver) OnAgentExecutionCompleted(taskID string, resp AgentResponse) {
	r := resp
	a.ch.Publish(ActivityEvent{Kind: ActivityAgentCompleted, TaskID: taskID, Response: &r})
}

func (a activityObserver) OnResponseAggregated(taskID string, result AggregationResult) {
	r := result
	a.ch.Publish(ActivityEvent{Kind: ActivityAggregated, TaskID: taskID, Result: &r})
}

var _ Observer = activityObserver{}

// Drain is used by tests and shutdown paths to collect everything buffered
// without blocking.
func (l *LiveActivityChannel) Drain() []ActivityEvent {
	var out []ActivityEvent
	for {
		select {
		case ev, ok := <-l.ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}

// nopLogger returns a logger that discards all records, so call sites can
// log unconditionally.
func nopLogger() *slog.Logger {
	return slog.New(discardHandler{})
}

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (discardHandler) WithAttrs([]slog.Attr) slog.Handler        { return discardHandler{} }
func (discardHandler) WithGroup(string) slog.Handler             { return discardHandler{} }
