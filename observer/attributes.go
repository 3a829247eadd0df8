package observer

import "go.opentelemetry.io/otel/attribute"

// Attribute keys for orchestration spans and metrics.
var (
	AttrTaskID    = attribute.Key("task.id")
	AttrSessionID = attribute.Key("session.id")

	AttrAgentID     = attribute.Key("agent.id")
	AttrAgentStatus = attribute.Key("agent.status")

	AttrRoutingAgent      = attribute.Key("routing.agent")
	AttrRoutingConfidence = attribute.Key("routing.confidence")
	AttrRoutingFanout     = attribute.Key("routing.fanout")

	AttrNeedsInput   = attribute.Key("aggregation.needs_input")
	AttrFailedAgents = attribute.Key("aggregation.failed_agents")
	AttrOutputLength = attribute.Key("aggregation.output_length")
)
