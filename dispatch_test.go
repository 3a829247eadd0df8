package hearth

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

// scriptedInvoker returns a fixed response after an optional delay.
type scriptedInvoker struct {
	id      string
	resp    AgentResponse
	delay   time.Duration
	mu      sync.Mutex
	lastMsg string
}

func (s *scriptedInvoker) AgentID() string { return s.id }

func (s *scriptedInvoker) Invoke(_ context.Context, message string) AgentResponse {
	s.mu.Lock()
	s.lastMsg = message
	s.mu.Unlock()
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	resp := s.resp
	resp.AgentID = s.id
	return resp
}

func (s *scriptedInvoker) received() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastMsg
}

func okInvoker(id, content string) *scriptedInvoker {
	return &scriptedInvoker{id: id, resp: AgentResponse{Content: content, Success: true}}
}

// recordingObserver collects events for assertions.
type recordingObserver struct {
	mu        sync.Mutex
	started   []string
	choices   []AgentChoice
	responses []AgentResponse
	results   []AggregationResult
}

func (r *recordingObserver) OnRequestStarted(taskID, _, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, taskID)
}

func (r *recordingObserver) OnRoutingCompleted(_ string, choice AgentChoice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.choices = append(r.choices, choice)
}

func (r *recordingObserver) OnAgentExecutionCompleted(_ string, resp AgentResponse) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responses = append(r.responses, resp)
}

func (r *recordingObserver) OnResponseAggregated(_ string, result AggregationResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result)
}

func TestDispatchSingleAgent(t *testing.T) {
	light := okInvoker("light-agent", "Done.")
	d := NewDispatchExecutor([]AgentInvoker{light})

	choice := AgentChoice{
		AgentID:           "light-agent",
		Confidence:        0.94,
		AgentInstructions: []AgentInstruction{{AgentID: "light-agent", Instruction: "Turn on the lights"}},
	}
	responses := d.Execute(context.Background(), "t1", choice, "original")
	if len(responses) != 1 {
		t.Fatalf("responses = %d, want 1", len(responses))
	}
	if !responses[0].Success || responses[0].Content != "Done." {
		t.Errorf("response = %+v", responses[0])
	}
	if got := light.received(); got != "Turn on the lights" {
		t.Errorf("agent received %q, want routed instruction", got)
	}
}

func TestDispatchFallsBackToOriginalRequest(t *testing.T) {
	light := okInvoker("light-agent", "Done.")
	d := NewDispatchExecutor([]AgentInvoker{light})

	_ = d.Execute(context.Background(), "t1", AgentChoice{AgentID: "light-agent"}, "raw request text")
	if got := light.received(); got != "raw request text" {
		t.Errorf("agent received %q, want original request", got)
	}
}

func TestDispatchOrderMatchesDecision(t *testing.T) {
	// The slower additional agent must not displace its slot.
	light := okInvoker("light-agent", "Lights dimmed.")
	music := &scriptedInvoker{id: "music-agent", resp: AgentResponse{Content: "Playing.", Success: true}, delay: 30 * time.Millisecond}
	climate := okInvoker("climate-agent", "Set to 21C.")
	d := NewDispatchExecutor([]AgentInvoker{light, music, climate})

	choice := AgentChoice{
		AgentID:          "light-agent",
		AdditionalAgents: []string{"music-agent", "climate-agent"},
	}
	responses := d.Execute(context.Background(), "t1", choice, "do the evening routine")
	if len(responses) != 3 {
		t.Fatalf("responses = %d, want 3", len(responses))
	}
	want := []string{"light-agent", "music-agent", "climate-agent"}
	for i, id := range want {
		if responses[i].AgentID != id {
			t.Errorf("responses[%d] = %s, want %s", i, responses[i].AgentID, id)
		}
	}
}

func TestDispatchMissingInvokerSynthesizesFailure(t *testing.T) {
	light := okInvoker("light-agent", "Done.")
	d := NewDispatchExecutor([]AgentInvoker{light})

	choice := AgentChoice{AgentID: "light-agent", AdditionalAgents: []string{"ghost-agent"}}
	responses := d.Execute(context.Background(), "t1", choice, "x")
	if len(responses) != 2 {
		t.Fatalf("responses = %d, want 2", len(responses))
	}
	ghost := responses[1]
	if ghost.Success {
		t.Fatal("missing invoker reported success")
	}
	if want := "Agent 'ghost-agent' is not available."; ghost.ErrorMessage != want {
		t.Errorf("error = %q, want %q", ghost.ErrorMessage, want)
	}
}

func TestDispatchClarificationShortCircuits(t *testing.T) {
	light := okInvoker("light-agent", "Done.")
	d := NewDispatchExecutor([]AgentInvoker{light})

	choice := AgentChoice{
		AgentID:   DefaultClarificationAgent,
		Reasoning: "Which room did you mean?",
	}
	responses := d.Execute(context.Background(), "t1", choice, "lights")
	if len(responses) != 1 {
		t.Fatalf("responses = %d, want 1", len(responses))
	}
	resp := responses[0]
	if !resp.Success || !resp.NeedsInput || resp.Content != "Which room did you mean?" {
		t.Errorf("clarification response = %+v", resp)
	}
	if light.received() != "" {
		t.Error("agent invoked for a clarification decision")
	}
}

func TestDispatchEmitsPerAgentEvents(t *testing.T) {
	obs := &recordingObserver{}
	d := NewDispatchExecutor(
		[]AgentInvoker{okInvoker("light-agent", "ok"), okInvoker("music-agent", "ok")},
		DispatchWithObserver(obs),
	)

	choice := AgentChoice{AgentID: "light-agent", AdditionalAgents: []string{"music-agent"}}
	_ = d.Execute(context.Background(), "t1", choice, "x")

	obs.mu.Lock()
	defer obs.mu.Unlock()
	if len(obs.responses) != 2 {
		t.Errorf("agent events = %d, want 2", len(obs.responses))
	}
}

func TestDispatchIsolatesFailures(t *testing.T) {
	failing := &scriptedInvoker{id: "broken-agent", resp: AgentResponse{Success: false, ErrorMessage: "backend 500"}}
	d := NewDispatchExecutor([]AgentInvoker{okInvoker("light-agent", "Done."), failing})

	choice := AgentChoice{AgentID: "light-agent", AdditionalAgents: []string{"broken-agent"}}
	responses := d.Execute(context.Background(), "t1", choice, "x")
	if !responses[0].Success {
		t.Error("healthy agent affected by failing sibling")
	}
	if responses[1].Success || responses[1].ErrorMessage != "backend 500" {
		t.Errorf("failure not preserved: %+v", responses[1])
	}
}

func TestDispatchParallelAdditionalAgents(t *testing.T) {
	const delay = 40 * time.Millisecond
	mk := func(id string) *scriptedInvoker {
		return &scriptedInvoker{id: id, resp: AgentResponse{Success: true}, delay: delay}
	}
	invokers := []AgentInvoker{okInvoker("primary", "ok")}
	var extras []string
	for i := 0; i < 4; i++ {
		id := fmt.Sprintf("extra-%d", i)
		invokers = append(invokers, mk(id))
		extras = append(extras, id)
	}
	d := NewDispatchExecutor(invokers)

	start := time.Now()
	_ = d.Execute(context.Background(), "t1", AgentChoice{AgentID: "primary", AdditionalAgents: extras}, "x")
	elapsed := time.Since(start)
	// Serial execution would take 4*delay; parallel stays well under.
	if elapsed > 3*delay {
		t.Errorf("additional agents appear serialized: %v", elapsed)
	}
}

func TestDispatchCaseInsensitiveInvokerLookup(t *testing.T) {
	light := okInvoker("Light-Agent", "Done.")
	d := NewDispatchExecutor([]AgentInvoker{light})

	responses := d.Execute(context.Background(), "t1", AgentChoice{AgentID: "light-agent"}, "x")
	if !responses[0].Success {
		t.Error("case difference broke invoker lookup")
	}
	if strings.Contains(responses[0].ErrorMessage, "not available") {
		t.Error("synthetic failure for a present invoker")
	}
}
