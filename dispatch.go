package hearth

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// DispatchExecutor fans a routing decision out to agent invokers. The
// primary agent runs first so its session state settles before secondary
// agents start; additional agents then run in parallel. Results come back
// in dispatch order regardless of completion order, one AgentResponse per
// dispatched agent, failures included.
type DispatchExecutor struct {
	invokers map[string]AgentInvoker

	clarificationAgentID string
	observer             Observer
	tracer               Tracer
	logger               *slog.Logger
}

// DispatchOption configures a DispatchExecutor.
type DispatchOption func(*DispatchExecutor)

// DispatchWithObserver streams per-agent completion events.
func DispatchWithObserver(o Observer) DispatchOption {
	return func(d *DispatchExecutor) { d.observer = o }
}

// DispatchWithTracer installs a tracer for dispatch spans.
func DispatchWithTracer(t Tracer) DispatchOption {
	return func(d *DispatchExecutor) { d.tracer = t }
}

// DispatchWithLogger installs a structured logger.
func DispatchWithLogger(l *slog.Logger) DispatchOption {
	return func(d *DispatchExecutor) {
		if l != nil {
			d.logger = l
		}
	}
}

// DispatchWithClarificationAgent overrides the synthetic clarification
// agent id; it must match the router's.
func DispatchWithClarificationAgent(id string) DispatchOption {
	return func(d *DispatchExecutor) {
		if id != "" {
			d.clarificationAgentID = id
		}
	}
}

// NewDispatchExecutor builds the executor over the given invokers. Invoker
// ids are matched case-insensitively.
func NewDispatchExecutor(invokers []AgentInvoker, options ...DispatchOption) *DispatchExecutor {
	d := &DispatchExecutor{
		invokers:             make(map[string]AgentInvoker, len(invokers)),
		clarificationAgentID: DefaultClarificationAgent,
		logger:               nopLogger(),
	}
	for _, inv := range invokers {
		d.invokers[lower(inv.AgentID())] = inv
	}
	for _, o := range options {
		o(d)
	}
	return d
}

// Execute runs the decision. taskID tags observer events; originalRequest
// is sent to agents without a routed instruction.
func (d *DispatchExecutor) Execute(ctx context.Context, taskID string, choice AgentChoice, originalRequest string) []AgentResponse {
	if d.tracer != nil {
		var span Span
		ctx, span = d.tracer.Start(ctx, "dispatch.execute",
			StringAttr("agent.primary", choice.AgentID),
			IntAttr("agent.additional", len(choice.AdditionalAgents)))
		defer span.End()
	}

	// A clarification decision never reaches an agent; the question to the
	// user is already in the decision's reasoning.
	if equalFold(choice.AgentID, d.clarificationAgentID) {
		resp := AgentResponse{
			AgentID:    d.clarificationAgentID,
			Content:    choice.Reasoning,
			Success:    true,
			NeedsInput: true,
		}
		d.emit(taskID, resp)
		return []AgentResponse{resp}
	}

	responses := make([]AgentResponse, 1+len(choice.AdditionalAgents))
	responses[0] = d.invokeOne(ctx, choice.AgentID, choice, originalRequest)
	d.emit(taskID, responses[0])

	if len(choice.AdditionalAgents) > 0 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(len(choice.AdditionalAgents))
		for i, agentID := range choice.AdditionalAgents {
			i, agentID := i, agentID
			g.Go(func() error {
				responses[i+1] = d.invokeOne(gctx, agentID, choice, originalRequest)
				d.emit(taskID, responses[i+1])
				return nil
			})
		}
		// Workers never return errors; Wait only fences completion.
		_ = g.Wait()
	}
	return responses
}

func (d *DispatchExecutor) invokeOne(ctx context.Context, agentID string, choice AgentChoice, originalRequest string) AgentResponse {
	inv, ok := d.invokers[lower(agentID)]
	if !ok {
		d.logger.Warn("no invoker for routed agent", "agent", agentID)
		return AgentResponse{
			AgentID:      agentID,
			Success:      false,
			ErrorMessage: (&ErrAgentUnavailable{AgentID: agentID}).Error(),
		}
	}
	message := originalRequest
	if text, ok := choice.InstructionFor(agentID); ok && text != "" {
		message = text
	}
	d.logger.Debug("invoking agent", "agent", agentID)
	return inv.Invoke(ctx, message)
}

func (d *DispatchExecutor) emit(taskID string, resp AgentResponse) {
	if d.observer == nil {
		return
	}
	d.observer.OnAgentExecutionCompleted(taskID, resp)
}
