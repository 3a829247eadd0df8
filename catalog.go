package hearth

import (
	"context"
	"sort"
	"strings"
)

// AgentCard describes one routable agent: identity, a routing-facing
// description, and optional capability metadata that enriches the catalog
// shown to the router LLM.
type AgentCard struct {
	// Name is the agent id the router selects by. Matching is
	// case-insensitive everywhere in the core.
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Capabilities []string `json:"capabilities,omitempty"`
	// SkillExamples are short sample requests the agent handles well.
	SkillExamples []string `json:"skill_examples,omitempty"`
	// URL is set for remote agents reached through a task manager bridge.
	URL string `json:"url,omitempty"`
}

// Remote reports whether the card points at an agent outside this process.
func (c AgentCard) Remote() bool { return c.URL != "" }

// AgentRegistry exposes the live agent catalog. Implementations may be
// static or backed by discovery; ListAgents is called on every routing
// decision and should be cheap.
type AgentRegistry interface {
	ListAgents(ctx context.Context) ([]AgentCard, error)
}

// StaticRegistry is an AgentRegistry over a fixed card list.
type StaticRegistry struct {
	cards []AgentCard
}

// NewStaticRegistry copies cards into a fixed registry.
func NewStaticRegistry(cards ...AgentCard) *StaticRegistry {
	return &StaticRegistry{cards: append([]AgentCard(nil), cards...)}
}

func (r *StaticRegistry) ListAgents(_ context.Context) ([]AgentCard, error) {
	return append([]AgentCard(nil), r.cards...), nil
}

var _ AgentRegistry = (*StaticRegistry)(nil)

// AgentThread is an agent's private conversation state. Serialize returns
// an opaque blob the session store can persist between turns.
type AgentThread interface {
	Serialize() ([]byte, error)
}

// AgentRunResponse is what a local agent returns for one instruction.
type AgentRunResponse struct {
	Content string `json:"content"`
	Usage   Usage  `json:"usage"`
}

// AIAgent is a locally hosted agent: a named skill that runs one
// instruction against its thread state. Implementations own their tools,
// prompts, and model calls; the orchestrator only sees text in, text out.
type AIAgent interface {
	Name() string
	Run(ctx context.Context, thread AgentThread, instruction string) (AgentRunResponse, error)
	NewThread() AgentThread
	DeserializeThread(data []byte) (AgentThread, error)
}

// AgentProvider supplies the local agent implementations the dispatcher
// can invoke in-process.
type AgentProvider interface {
	Agents() []AIAgent
}

// equalFold is strings.EqualFold, kept as a local alias because agent id
// comparison is the single most repeated operation in the core.
func equalFold(a, b string) bool { return strings.EqualFold(a, b) }

// findCard locates a card by case-insensitive name.
func findCard(cards []AgentCard, name string) (AgentCard, bool) {
	for _, c := range cards {
		if equalFold(c.Name, name) {
			return c, true
		}
	}
	return AgentCard{}, false
}

// renderCatalog formats cards for the router prompt, one block per agent:
//
//	- weather: Forecasts and current conditions
//	  capabilities: forecast, alerts
//	  examples: "will it rain tomorrow"
func renderCatalog(cards []AgentCard, includeCapabilities, includeSkillExamples bool) string {
	var b strings.Builder
	for i, c := range cards {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- ")
		b.WriteString(c.Name)
		b.WriteString(": ")
		b.WriteString(c.Description)
		if includeCapabilities && len(c.Capabilities) > 0 {
			b.WriteString("\n  capabilities: ")
			b.WriteString(strings.Join(c.Capabilities, ", "))
		}
		if includeSkillExamples && len(c.SkillExamples) > 0 {
			b.WriteString("\n  examples: ")
			for j, ex := range c.SkillExamples {
				if j > 0 {
					b.WriteString(", ")
				}
				b.WriteString(`"` + ex + `"`)
			}
		}
	}
	return b.String()
}

// catalogSignature derives a stable fingerprint component from the set of
// registered agent names. Routing cache entries are keyed on it so catalog
// changes invalidate cached decisions.
func catalogSignature(cards []AgentCard) string {
	names := make([]string, len(cards))
	for i, c := range cards {
		names[i] = strings.ToLower(c.Name)
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}
