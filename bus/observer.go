package bus

import (
	"context"
	"log/slog"

	hearth "github.com/hearthkit/hearth"
)

// Subjects published by the observer bridge.
const (
	SubjectRequestStarted = "hearth.request.started"
	SubjectRouting        = "hearth.routing.completed"
	SubjectAgentCompleted = "hearth.agent.completed"
	SubjectAggregated     = "hearth.response.aggregated"

	bridgeSource = "hearth-engine"
)

// ObserverBridge is a hearth.Observer that republishes lifecycle events
// onto an EventBus, letting external services follow orchestration
// activity.
type ObserverBridge struct {
	bus    EventBus
	logger *slog.Logger
}

// NewObserverBridge builds the bridge. A nil logger uses the default.
func NewObserverBridge(b EventBus, logger *slog.Logger) *ObserverBridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &ObserverBridge{bus: b, logger: logger}
}

func (o *ObserverBridge) publish(subject string, data map[string]any) {
	if err := o.bus.Publish(context.Background(), subject, NewEvent(subject, bridgeSource, data)); err != nil {
		o.logger.Warn("event publish failed", "subject", subject, "error", err)
	}
}

func (o *ObserverBridge) OnRequestStarted(taskID, sessionID, text string) {
	o.publish(SubjectRequestStarted, map[string]any{
		"task_id":    taskID,
		"session_id": sessionID,
		"text":       text,
	})
}

func (o *ObserverBridge) OnRoutingCompleted(taskID string, choice hearth.AgentChoice) {
	o.publish(SubjectRouting, map[string]any{
		"task_id":           taskID,
		"agent_id":          choice.AgentID,
		"confidence":        choice.Confidence,
		"additional_agents": choice.AdditionalAgents,
	})
}

func (o *ObserverBridge) OnAgentExecutionCompleted(taskID string, resp hearth.AgentResponse) {
	o.publish(SubjectAgentCompleted, map[string]any{
		"task_id":           taskID,
		"agent_id":          resp.AgentID,
		"success":           resp.Success,
		"needs_input":       resp.NeedsInput,
		"execution_time_ms": resp.ExecutionTimeMS,
		"error_message":     resp.ErrorMessage,
	})
}

func (o *ObserverBridge) OnResponseAggregated(taskID string, result hearth.AggregationResult) {
	o.publish(SubjectAggregated, map[string]any{
		"task_id":                 taskID,
		"needs_input":             result.NeedsInput,
		"successful_agents":       result.SuccessfulAgents,
		"failed_agents":           len(result.FailedAgents),
		"total_execution_time_ms": result.TotalExecutionTimeMS,
	})
}

var _ hearth.Observer = (*ObserverBridge)(nil)
