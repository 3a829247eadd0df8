package hearth

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Aggregator defaults.
const (
	DefaultEmptySuccessTemplate = "%s completed successfully."
	DefaultPendingMessage       = "I'm still working on that request."
	DefaultUnknownError         = "Unknown error"
)

// AggregatorOptions tune result merging. Zero values take the defaults.
type AggregatorOptions struct {
	// EmptySuccessTemplate renders a success that produced no content; %s
	// is the formatted agent name.
	EmptySuccessTemplate string
	// PendingMessage is the fallback when no response carries anything to
	// say.
	PendingMessage string
	// UnknownError replaces an empty failure message.
	UnknownError string
	// AgentPriority orders responses ahead of the routing decision's
	// dispatch order; agents absent from the list rank after listed ones.
	AgentPriority []string
	// PlainTextOutput flattens markdown in the final message to plain text,
	// for voice-style surfaces.
	PlainTextOutput bool
}

func (o *AggregatorOptions) defaults() {
	if o.EmptySuccessTemplate == "" {
		o.EmptySuccessTemplate = DefaultEmptySuccessTemplate
	}
	if o.PendingMessage == "" {
		o.PendingMessage = DefaultPendingMessage
	}
	if o.UnknownError == "" {
		o.UnknownError = DefaultUnknownError
	}
}

// AggregatorExecutor merges per-agent responses into one user-facing
// message. Ordering is deterministic: responses sort by the configured
// agent priority, then the routing decision's dispatch order, with agents
// outside both last by name.
type AggregatorExecutor struct {
	opts   AggregatorOptions
	logger *slog.Logger
	titler cases.Caser
}

// NewAggregatorExecutor builds the aggregator.
func NewAggregatorExecutor(opts AggregatorOptions, logger *slog.Logger) *AggregatorExecutor {
	opts.defaults()
	if logger == nil {
		logger = nopLogger()
	}
	return &AggregatorExecutor{
		opts:   opts,
		logger: logger,
		titler: cases.Title(language.English),
	}
}

// Aggregate merges responses for the given routing decision.
func (a *AggregatorExecutor) Aggregate(choice AgentChoice, responses []AgentResponse) AggregationResult {
	sorted := a.sortResponses(choice, responses)

	var result AggregationResult
	var parts []string
	var silentSuccesses []string

	for _, resp := range sorted {
		result.TotalExecutionTimeMS += resp.ExecutionTimeMS
		if !resp.Success {
			errText := resp.ErrorMessage
			if errText == "" {
				errText = a.opts.UnknownError
			}
			result.FailedAgents = append(result.FailedAgents, AgentFailure{
				AgentID: resp.AgentID,
				Error:   errText,
			})
			continue
		}
		result.SuccessfulAgents = append(result.SuccessfulAgents, resp.AgentID)
		if resp.NeedsInput && !result.NeedsInput {
			// The first clarifying question wins and is passed through
			// verbatim; mixing it with other content would bury the
			// question.
			result.NeedsInput = true
			result.Message = resp.Content
		}
		if content := strings.TrimSpace(resp.Content); content != "" {
			parts = append(parts, content)
		} else {
			silentSuccesses = append(silentSuccesses, a.FormatAgentName(resp.AgentID))
		}
	}

	if result.NeedsInput {
		return a.finish(result)
	}

	for _, name := range silentSuccesses {
		parts = append(parts, fmt.Sprintf(a.opts.EmptySuccessTemplate, name))
	}
	if failure := a.failureSentence(result.FailedAgents); failure != "" {
		parts = append(parts, failure)
	}
	if len(parts) == 0 {
		a.logger.Warn("nothing to aggregate", "responses", len(responses))
		parts = append(parts, a.opts.PendingMessage)
	}
	result.Message = strings.Join(parts, " ")
	return a.finish(result)
}

// finish applies the output rendering mode to the assembled message.
func (a *AggregatorExecutor) finish(result AggregationResult) AggregationResult {
	if a.opts.PlainTextOutput && result.Message != "" {
		result.Message = RenderPlainText(result.Message)
	}
	return result
}

// sortResponses orders responses by the configured agent priority, then
// the decision's dispatch order, pushing unknown agents to the end sorted
// by lowercased id.
func (a *AggregatorExecutor) sortResponses(choice AgentChoice, responses []AgentResponse) []AgentResponse {
	priority := make(map[string]int)
	for _, agentID := range a.opts.AgentPriority {
		if _, ok := priority[lower(agentID)]; !ok {
			priority[lower(agentID)] = len(priority)
		}
	}
	for _, agentID := range choice.DispatchedAgents() {
		if _, ok := priority[lower(agentID)]; !ok {
			priority[lower(agentID)] = len(priority)
		}
	}
	rank := func(r AgentResponse) int {
		if p, ok := priority[lower(r.AgentID)]; ok {
			return p
		}
		return len(priority)
	}
	out := append([]AgentResponse(nil), responses...)
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := rank(out[i]), rank(out[j])
		if ri != rj {
			return ri < rj
		}
		return lower(out[i].AgentID) < lower(out[j].AgentID)
	})
	return out
}

// failureSentence renders the failed agents into one sentence.
func (a *AggregatorExecutor) failureSentence(failures []AgentFailure) string {
	if len(failures) == 0 {
		return ""
	}
	if len(failures) == 1 {
		f := failures[0]
		return fmt.Sprintf("However, I couldn't complete %s: %s.",
			a.FormatAgentName(f.AgentID), strings.TrimSuffix(f.Error, "."))
	}
	described := make([]string, len(failures))
	for i, f := range failures {
		described[i] = fmt.Sprintf("%s (%s)", a.FormatAgentName(f.AgentID), strings.TrimSuffix(f.Error, "."))
	}
	return fmt.Sprintf("However, I ran into issues with %s.", strings.Join(described, ", "))
}

// FormatAgentName turns an agent id like "smart-home_lights" into a
// human-readable "Smart Home Lights".
func (a *AggregatorExecutor) FormatAgentName(agentID string) string {
	words := strings.FieldsFunc(agentID, func(r rune) bool {
		return r == '-' || r == '_'
	})
	if len(words) == 0 {
		return agentID
	}
	return a.titler.String(strings.Join(words, " "))
}
