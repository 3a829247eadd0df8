package observer

import (
	"context"

	hearth "github.com/hearthkit/hearth"

	"go.opentelemetry.io/otel/metric"
)

// Orchestrator is a hearth.Observer that records orchestration metrics.
// Register it on the engine:
//
//	inst, shutdown, _ := observer.Init(ctx)
//	engine.RegisterObserver(observer.NewOrchestrator(inst))
type Orchestrator struct {
	inst *Instruments
}

// NewOrchestrator builds the metric-recording observer.
func NewOrchestrator(inst *Instruments) *Orchestrator {
	return &Orchestrator{inst: inst}
}

func (o *Orchestrator) OnRequestStarted(taskID, sessionID, _ string) {
	o.inst.Requests.Add(context.Background(), 1)
}

func (o *Orchestrator) OnRoutingCompleted(_ string, choice hearth.AgentChoice) {
	o.inst.RoutingDecisions.Add(context.Background(), 1,
		metric.WithAttributes(
			AttrRoutingAgent.String(choice.AgentID),
			AttrRoutingFanout.Int(1+len(choice.AdditionalAgents)),
		))
}

func (o *Orchestrator) OnAgentExecutionCompleted(_ string, resp hearth.AgentResponse) {
	status := "success"
	if !resp.Success {
		status = "error"
	}
	attrs := metric.WithAttributes(
		AttrAgentID.String(resp.AgentID),
		AttrAgentStatus.String(status),
	)
	o.inst.AgentExecutions.Add(context.Background(), 1, attrs)
	o.inst.AgentDuration.Record(context.Background(), float64(resp.ExecutionTimeMS), attrs)
}

func (o *Orchestrator) OnResponseAggregated(_ string, result hearth.AggregationResult) {
	if result.NeedsInput {
		o.inst.Clarifications.Add(context.Background(), 1)
	}
	o.inst.RequestDuration.Record(context.Background(), float64(result.TotalExecutionTimeMS),
		metric.WithAttributes(
			AttrNeedsInput.Bool(result.NeedsInput),
			AttrFailedAgents.Int(len(result.FailedAgents)),
		))
}

var _ hearth.Observer = (*Orchestrator)(nil)
