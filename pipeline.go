package hearth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// pipelineName tags workflow spans.
const pipelineName = "orchestrator"

// PipelineOutcome is everything one pipeline run produced. Err is non-nil
// only when a stage broke so badly that no aggregated message exists.
type PipelineOutcome struct {
	Choice      AgentChoice
	Responses   []AgentResponse
	Aggregation AggregationResult
	Err         error
}

// Pipeline wires the three executors into the fixed routing -> dispatch ->
// aggregation sequence and owns the per-run workflow span. Stages are
// panic-isolated: a crashing stage is recorded and the run degrades
// instead of unwinding into the caller.
type Pipeline struct {
	router     *RouterExecutor
	dispatcher *DispatchExecutor
	aggregator *AggregatorExecutor

	observer Observer
	tracer   Tracer
	logger   *slog.Logger
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// PipelineWithObserver streams routing and aggregation events.
func PipelineWithObserver(o Observer) PipelineOption {
	return func(p *Pipeline) { p.observer = o }
}

// PipelineWithTracer installs a tracer for workflow spans.
func PipelineWithTracer(t Tracer) PipelineOption {
	return func(p *Pipeline) { p.tracer = t }
}

// PipelineWithLogger installs a structured logger.
func PipelineWithLogger(l *slog.Logger) PipelineOption {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewPipeline builds the pipeline over the three executors.
func NewPipeline(router *RouterExecutor, dispatcher *DispatchExecutor, aggregator *AggregatorExecutor, options ...PipelineOption) *Pipeline {
	p := &Pipeline{
		router:     router,
		dispatcher: dispatcher,
		aggregator: aggregator,
		logger:     nopLogger(),
	}
	for _, o := range options {
		o(p)
	}
	return p
}

// Run executes one request through the pipeline. taskID tags observer
// events and spans; history carries prior session turns.
func (p *Pipeline) Run(ctx context.Context, taskID, request string, history []SessionTurn) PipelineOutcome {
	start := time.Now()
	var span Span
	if p.tracer != nil {
		ctx, span = p.tracer.Start(ctx, "workflow.run",
			StringAttr("workflow.name", pipelineName),
			StringAttr("workflow.start.executor", "router"))
	}

	var out PipelineOutcome
	var stageErrs []string

	routed := p.runStage("router", &stageErrs, func() {
		out.Choice = p.router.Route(ctx, request, history)
	})
	if routed {
		if p.observer != nil {
			p.observer.OnRoutingCompleted(taskID, out.Choice)
		}
		// Agents without a routed instruction receive the history-aware
		// request, so follow-up turns keep their context.
		composed := ComposeHistoryRequest(history, request)
		p.runStage("dispatch", &stageErrs, func() {
			out.Responses = p.dispatcher.Execute(ctx, taskID, out.Choice, composed)
		})
	}
	if len(out.Responses) > 0 {
		p.runStage("aggregator", &stageErrs, func() {
			out.Aggregation = p.aggregator.Aggregate(out.Choice, out.Responses)
		})
	}

	if out.Aggregation.Message == "" && len(stageErrs) > 0 {
		out.Err = errors.New(strings.Join(stageErrs, "; "))
	}
	if p.observer != nil && out.Err == nil {
		p.observer.OnResponseAggregated(taskID, out.Aggregation)
	}

	if span != nil {
		span.SetAttr(
			BoolAttr("success", out.Err == nil),
			Int64Attr("execution.time.ms", time.Since(start).Milliseconds()),
			IntAttr("output.length", len(out.Aggregation.Message)),
		)
		if out.Err != nil {
			span.SetAttr(StringAttr("error.message", out.Err.Error()))
			span.Error(out.Err)
		}
		span.End()
	}
	return out
}

// ComposeHistoryRequest folds prior session turns into one request text:
//
//	Previous conversation:
//	user: Which room?
//	assistant: Which room did you mean?
//
//	Current request: the living room
//
// Without history, the text passes through unchanged.
func ComposeHistoryRequest(history []SessionTurn, text string) string {
	if len(history) == 0 {
		return text
	}
	var b strings.Builder
	b.WriteString("Previous conversation:\n")
	for _, turn := range history {
		b.WriteString(turn.Role)
		b.WriteString(": ")
		b.WriteString(turn.Content)
		b.WriteByte('\n')
	}
	b.WriteString("\nCurrent request: ")
	b.WriteString(text)
	return b.String()
}

// runStage executes one stage with panic isolation. It reports whether the
// stage completed.
func (p *Pipeline) runStage(name string, errs *[]string, fn func()) (completed bool) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("pipeline stage panicked", "stage", name, "panic", r)
			*errs = append(*errs, fmt.Sprintf("%s: %v", name, r))
		}
	}()
	fn()
	return true
}
