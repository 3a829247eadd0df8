package hearth

// --- Routing types ---

// AgentInstruction is a per-agent rewrite of the user request produced by
// the router. The dispatcher sends Instruction to AgentID instead of the
// raw user text.
type AgentInstruction struct {
	AgentID     string `json:"agent_id"`
	Instruction string `json:"instruction"`
}

// AgentChoice is the router's decision for one request.
type AgentChoice struct {
	// AgentID is the primary agent. Always matches a registered card after
	// router normalization (or the configured clarification/fallback id).
	AgentID string `json:"agent_id"`
	// Confidence is the router's self-reported confidence in [0,1].
	Confidence float64 `json:"confidence"`
	// Reasoning explains the choice. A clarification choice carries the
	// question to the user here, ending with "?".
	Reasoning string `json:"reasoning"`
	// AdditionalAgents are secondary agents, ordered, distinct, and never
	// containing AgentID.
	AdditionalAgents []string `json:"additional_agents,omitempty"`
	// AgentInstructions holds one entry per dispatched agent.
	AgentInstructions []AgentInstruction `json:"agent_instructions,omitempty"`
}

// InstructionFor returns the instruction text for the given agent, matched
// case-insensitively. The second return is false when no entry exists.
func (c AgentChoice) InstructionFor(agentID string) (string, bool) {
	for _, in := range c.AgentInstructions {
		if equalFold(in.AgentID, agentID) {
			return in.Instruction, true
		}
	}
	return "", false
}

// DispatchedAgents returns the ordered invocation list: the primary agent
// followed by the additional agents.
func (c AgentChoice) DispatchedAgents() []string {
	out := make([]string, 0, 1+len(c.AdditionalAgents))
	out = append(out, c.AgentID)
	out = append(out, c.AdditionalAgents...)
	return out
}

// --- Execution types ---

// AgentResponse is the isolated result of one agent invocation.
type AgentResponse struct {
	AgentID string `json:"agent_id"`
	// Content is the agent's reply text. May be empty on success.
	Content string `json:"content"`
	Success bool   `json:"success"`
	// ErrorMessage is set iff Success is false.
	ErrorMessage    string `json:"error_message,omitempty"`
	ExecutionTimeMS int64  `json:"execution_time_ms"`
	// NeedsInput marks Content as a clarifying question to the user.
	NeedsInput bool `json:"needs_input"`
}

// AgentFailure pairs a failed agent with its error text.
type AgentFailure struct {
	AgentID string `json:"agent_id"`
	Error   string `json:"error"`
}

// AggregationResult is the aggregator's merged view of all agent responses.
type AggregationResult struct {
	// Message is the final user-facing text.
	Message string `json:"message"`
	// SuccessfulAgents lists succeeding agents in aggregation order.
	SuccessfulAgents []string `json:"successful_agents,omitempty"`
	// FailedAgents lists failing agents with their errors.
	FailedAgents []AgentFailure `json:"failed_agents,omitempty"`
	// TotalExecutionTimeMS sums the per-agent execution times.
	TotalExecutionTimeMS int64 `json:"total_execution_time_ms"`
	// NeedsInput is true when any successful response was a clarification.
	NeedsInput bool `json:"needs_input"`
}

// OrchestratorResult is the public return type of one engine call.
type OrchestratorResult struct {
	Text       string `json:"text"`
	NeedsInput bool   `json:"needs_input"`
}

// --- Session types ---

// Turn roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	// RoleAgent marks task-log messages produced by the orchestrator side.
	RoleAgent = "agent"
)

// SessionTurn is one user or assistant turn in a short-lived session.
type SessionTurn struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}

// SessionData is the multi-turn history for one session id.
// History holds at most the cache's MaxHistoryItems newest turns.
type SessionData struct {
	SessionID   string        `json:"session_id"`
	History     []SessionTurn `json:"history"`
	LastUpdated int64         `json:"last_updated"`
}

// TrimHistory returns the newest max turns, dropping the oldest first.
// A max of zero or less leaves the history untouched.
func TrimHistory(turns []SessionTurn, max int) []SessionTurn {
	if max <= 0 || len(turns) <= max {
		return turns
	}
	return turns[len(turns)-max:]
}
