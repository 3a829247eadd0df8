package hearth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Router defaults.
const (
	DefaultConfidenceThreshold = 0.7
	DefaultRouterMaxAttempts   = 2
	DefaultRouterTemperature   = 1.0
	DefaultRouterMaxTokens     = 512
	DefaultClarificationAgent  = "clarification"
	DefaultFallbackAgent       = "general-assistant"

	// orchestratorAgentName is excluded from the routable catalog so the
	// router can never select itself.
	orchestratorAgentName = "orchestrator"
)

// RouterOptions tune the routing executor. Zero values take the defaults.
type RouterOptions struct {
	// ConfidenceThreshold below which the router asks for clarification.
	ConfidenceThreshold float64
	// MaxAttempts caps routing LLM calls per request.
	MaxAttempts int
	// SystemPrompt overrides DefaultSystemPrompt.
	SystemPrompt string
	// Temperature and MaxOutputTokens for the routing call.
	Temperature     float64
	MaxOutputTokens int
	// ClarificationAgentID is the synthetic primary of a clarification
	// decision; FallbackAgentID receives unroutable requests.
	ClarificationAgentID string
	FallbackAgentID      string
	// IncludeAgentCapabilities enriches the catalog with capability tags.
	// Nil means true.
	IncludeAgentCapabilities *bool
	// IncludeSkillExamples adds each agent's sample requests to the catalog.
	IncludeSkillExamples bool
	// AgentCatalogHeader precedes the rendered catalog; UserPromptTemplate,
	// ClarificationPromptTemplate, and FallbackReasonTemplate override the
	// prompt constants of the same names. Empty takes the default.
	AgentCatalogHeader          string
	UserPromptTemplate          string
	ClarificationPromptTemplate string
	FallbackReasonTemplate      string
}

func (o *RouterOptions) defaults() {
	if o.ConfidenceThreshold <= 0 {
		o.ConfidenceThreshold = DefaultConfidenceThreshold
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultRouterMaxAttempts
	}
	if o.SystemPrompt == "" {
		o.SystemPrompt = DefaultSystemPrompt
	}
	if o.Temperature <= 0 {
		o.Temperature = DefaultRouterTemperature
	}
	if o.MaxOutputTokens <= 0 {
		o.MaxOutputTokens = DefaultRouterMaxTokens
	}
	if o.ClarificationAgentID == "" {
		o.ClarificationAgentID = DefaultClarificationAgent
	}
	if o.FallbackAgentID == "" {
		o.FallbackAgentID = DefaultFallbackAgent
	}
	if o.IncludeAgentCapabilities == nil {
		include := true
		o.IncludeAgentCapabilities = &include
	}
	if o.AgentCatalogHeader == "" {
		o.AgentCatalogHeader = AgentCatalogHeader
	}
	if o.UserPromptTemplate == "" {
		o.UserPromptTemplate = DefaultUserPromptTemplate
	}
	if o.ClarificationPromptTemplate == "" {
		o.ClarificationPromptTemplate = ClarificationPromptTemplate
	}
	if o.FallbackReasonTemplate == "" {
		o.FallbackReasonTemplate = FallbackReasonTemplate
	}
}

// RouterExecutor decides which agents handle a request. It is total: every
// failure mode degrades to a fallback or clarification decision instead of
// an error, so the pipeline always has an agent to dispatch.
type RouterExecutor struct {
	registry AgentRegistry
	chat     ChatClient
	opts     RouterOptions

	cache  RoutingDecisionCache
	tracer Tracer
	logger *slog.Logger
}

// RouterOption configures a RouterExecutor.
type RouterOption func(*RouterExecutor)

// RouterWithCache installs a routing-decision cache.
func RouterWithCache(c RoutingDecisionCache) RouterOption {
	return func(r *RouterExecutor) { r.cache = c }
}

// RouterWithTracer installs a tracer for routing spans.
func RouterWithTracer(t Tracer) RouterOption {
	return func(r *RouterExecutor) { r.tracer = t }
}

// RouterWithLogger installs a structured logger.
func RouterWithLogger(l *slog.Logger) RouterOption {
	return func(r *RouterExecutor) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRouterExecutor builds the routing executor.
func NewRouterExecutor(registry AgentRegistry, chat ChatClient, opts RouterOptions, options ...RouterOption) *RouterExecutor {
	opts.defaults()
	r := &RouterExecutor{
		registry: registry,
		chat:     chat,
		opts:     opts,
		logger:   nopLogger(),
	}
	for _, o := range options {
		o(r)
	}
	return r
}

// Route picks the agent(s) for one request. history carries prior session
// turns for context; it may be empty. Route never returns an error: on any
// failure the decision degrades to the fallback agent, and low confidence
// degrades to a clarification question.
func (r *RouterExecutor) Route(ctx context.Context, request string, history []SessionTurn) AgentChoice {
	var span Span
	if r.tracer != nil {
		ctx, span = r.tracer.Start(ctx, "router.route")
		defer span.End()
	}
	choice := r.route(ctx, request, history)
	if span != nil {
		span.SetAttr(
			StringAttr("agent.primary", choice.AgentID),
			Float64Attr("routing.confidence", choice.Confidence),
		)
	}
	return choice
}

func (r *RouterExecutor) route(ctx context.Context, request string, history []SessionTurn) AgentChoice {
	cards, err := r.routableAgents(ctx)
	if err != nil || len(cards) == 0 {
		if err != nil {
			r.logger.Error("agent catalog unavailable", "error", err)
		}
		return r.fallbackChoice("No registered agents available for routing.")
	}

	key := NewRoutingKey(request, catalogSignature(cards))
	if cached, ok := r.cacheLookup(ctx, key, cards); ok {
		r.logger.Debug("routing cache hit", "agent", cached.AgentID)
		return cached
	}

	choice, err := r.routeWithModel(ctx, request, history, cards)
	if err != nil {
		r.logger.Error("routing model failed", "error", err)
		return r.fallbackChoice(fmt.Sprintf(r.opts.FallbackReasonTemplate, "the routing model did not produce a usable decision"))
	}

	primary, ok := findCard(cards, choice.AgentID)
	if !ok {
		r.logger.Warn("router chose unknown agent", "agent", choice.AgentID)
		return r.fallbackChoice(fmt.Sprintf(r.opts.FallbackReasonTemplate,
			fmt.Sprintf("the router selected %q, which is not a registered agent", choice.AgentID)))
	}
	choice.AgentID = primary.Name

	// Low confidence always clarifies, even when the model's own pick was
	// the fallback agent; only router-synthesized fallbacks skip this.
	choice, clean := r.normalize(choice, request, cards)
	if choice.Confidence < r.opts.ConfidenceThreshold {
		return r.clarificationChoice(request, choice, cards)
	}
	if clean && r.cache != nil {
		if err := r.cache.Put(ctx, key, choice); err != nil {
			r.logger.Warn("routing cache store failed", "error", err)
		}
	}
	return choice
}

// routableAgents returns the catalog minus the orchestrator's own card.
func (r *RouterExecutor) routableAgents(ctx context.Context) ([]AgentCard, error) {
	cards, err := r.registry.ListAgents(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]AgentCard, 0, len(cards))
	for _, c := range cards {
		if equalFold(c.Name, orchestratorAgentName) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// cacheLookup consults the decision cache and revalidates the hit against
// the current catalog. Stale hits naming vanished agents are discarded.
func (r *RouterExecutor) cacheLookup(ctx context.Context, key RoutingKey, cards []AgentCard) (AgentChoice, bool) {
	if r.cache == nil {
		return AgentChoice{}, false
	}
	choice, ok, err := r.cache.Get(ctx, key)
	if err != nil || !ok {
		if err != nil {
			r.logger.Warn("routing cache lookup failed", "error", err)
		}
		return AgentChoice{}, false
	}
	if _, found := findCard(cards, choice.AgentID); !found {
		return AgentChoice{}, false
	}
	for _, extra := range choice.AdditionalAgents {
		if _, found := findCard(cards, extra); !found {
			return AgentChoice{}, false
		}
	}
	return choice, true
}

// routeWithModel runs the routing LLM call, retrying malformed output up
// to MaxAttempts times.
func (r *RouterExecutor) routeWithModel(ctx context.Context, request string, history []SessionTurn, cards []AgentCard) (AgentChoice, error) {
	catalog := r.opts.AgentCatalogHeader + "\n" +
		renderCatalog(cards, *r.opts.IncludeAgentCapabilities, r.opts.IncludeSkillExamples)
	messages := make([]ChatMessage, 0, len(history)+2)
	messages = append(messages, SystemMessage(r.opts.SystemPrompt))
	for _, turn := range history {
		switch turn.Role {
		case RoleAssistant:
			messages = append(messages, AssistantMessage(turn.Content))
		default:
			messages = append(messages, UserMessage(turn.Content))
		}
	}
	messages = append(messages, UserMessage(fmt.Sprintf(r.opts.UserPromptTemplate, catalog, request)))

	req := ChatRequest{
		Messages: messages,
		Params: GenerationParams{
			Temperature:     r.opts.Temperature,
			MaxOutputTokens: r.opts.MaxOutputTokens,
		},
		ResponseSchema: &ResponseSchema{
			Name:   "agent_choice",
			Schema: agentChoiceSchemaJSON,
			Strict: true,
		},
	}

	var lastErr error
	for attempt := 1; attempt <= r.opts.MaxAttempts; attempt++ {
		resp, err := r.chat.Chat(ctx, req)
		if err != nil {
			lastErr = err
			continue
		}
		choice, err := parseAgentChoice(resp.Content)
		if err != nil {
			lastErr = err
			r.logger.Warn("malformed routing response", "attempt", attempt, "error", err)
			continue
		}
		return choice, nil
	}
	return AgentChoice{}, lastErr
}

// normalize deduplicates additional agents against the catalog and fills in
// missing per-agent instructions from the original request. The primary is
// already canonicalized by the caller. The second return reports whether
// the decision came back clean, making it safe to cache.
func (r *RouterExecutor) normalize(choice AgentChoice, request string, cards []AgentCard) (AgentChoice, bool) {
	clean := true

	seen := map[string]bool{lower(choice.AgentID): true}
	extras := choice.AdditionalAgents[:0]
	for _, name := range choice.AdditionalAgents {
		card, ok := findCard(cards, name)
		if !ok {
			r.logger.Warn("dropping unknown additional agent", "agent", name)
			clean = false
			continue
		}
		if seen[lower(card.Name)] {
			clean = false
			continue
		}
		seen[lower(card.Name)] = true
		extras = append(extras, card.Name)
	}
	choice.AdditionalAgents = extras

	// One instruction per dispatched agent: keep the first model-provided
	// entry, synthesize from the raw request for the rest.
	dispatched := choice.DispatchedAgents()
	instructions := make([]AgentInstruction, 0, len(dispatched))
	for _, agentID := range dispatched {
		text, ok := choice.InstructionFor(agentID)
		if !ok || text == "" {
			text = request
		}
		instructions = append(instructions, AgentInstruction{AgentID: agentID, Instruction: text})
	}
	choice.AgentInstructions = instructions

	if choice.Confidence < 0 {
		choice.Confidence = 0
	} else if choice.Confidence > 1 {
		choice.Confidence = 1
	}
	return choice, clean
}

// fallbackChoice routes to the fallback agent with zero confidence.
func (r *RouterExecutor) fallbackChoice(reason string) AgentChoice {
	return AgentChoice{
		AgentID:    r.opts.FallbackAgentID,
		Confidence: 0,
		Reasoning:  reason,
	}
}

// clarificationChoice converts a low-confidence decision into a question
// back to the user. The question lives in Reasoning and always ends with a
// question mark so downstream clarification detection fires.
func (r *RouterExecutor) clarificationChoice(request string, low AgentChoice, cards []AgentCard) AgentChoice {
	r.logger.Info("routing confidence below threshold",
		"agent", low.AgentID, "confidence", low.Confidence)
	names := make([]string, len(cards))
	for i, c := range cards {
		names[i] = c.Name
	}
	return AgentChoice{
		AgentID:    r.opts.ClarificationAgentID,
		Confidence: low.Confidence,
		Reasoning:  fmt.Sprintf(r.opts.ClarificationPromptTemplate, strings.Join(names, ", "), request, low.AgentID),
	}
}

func lower(s string) string { return strings.ToLower(s) }
