package hearth

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// staticAgents is a fixed AgentProvider.
type staticAgents []AIAgent

func (s staticAgents) Agents() []AIAgent { return []AIAgent(s) }

// taskRecorder tracks task creation so tests can find engine-made tasks.
type taskRecorder struct {
	*MemoryTaskManager
	created []string
}

func (r *taskRecorder) CreateTask(ctx context.Context, contextID string) (Task, error) {
	task, err := r.MemoryTaskManager.CreateTask(ctx, contextID)
	if err == nil {
		r.created = append(r.created, task.ID)
	}
	return task, err
}

func newTaskRecorder() *taskRecorder {
	return &taskRecorder{MemoryTaskManager: NewMemoryTaskManager()}
}

func mustGetTask(t *testing.T, tm TaskManager, id string) Task {
	t.Helper()
	task, err := tm.GetTask(context.Background(), id)
	if err != nil {
		t.Fatalf("GetTask(%s): %v", id, err)
	}
	return task
}

func TestEngineSingleAgentSuccess(t *testing.T) {
	chat := &fakeChat{responses: []ChatResponse{chatReply(
		`{"agent_id": "light-agent", "confidence": 0.94, "reasoning": "lighting",
		  "agent_instructions": [{"agent_id": "light-agent", "instruction": "Turn on the lights"}]}`,
	)}}
	tasks := newTaskRecorder()
	obs := &recordingObserver{}
	engine, err := NewEngine(EngineConfig{
		Registry:  testCatalog(),
		Agents:    staticAgents{&stubAgent{name: "light-agent", reply: "Lights are on."}},
		Chat:      chat,
		Tasks:     tasks,
		Observers: []Observer{obs},
	})
	if err != nil {
		t.Fatal(err)
	}

	result := engine.ProcessRequest(context.Background(), Request{Text: "turn on the lights", SessionID: "s1"})
	if result.Text != "Lights are on." {
		t.Errorf("text = %q", result.Text)
	}
	if result.NeedsInput {
		t.Error("needs_input = true")
	}

	if len(tasks.created) != 1 {
		t.Fatalf("tasks created = %d, want 1", len(tasks.created))
	}
	task := mustGetTask(t, tasks, tasks.created[0])
	if task.State != TaskStateCompleted || !task.Final {
		t.Errorf("task = %s final=%v, want completed final", task.State, task.Final)
	}
	if len(task.History) != 2 {
		t.Fatalf("history = %d messages, want user + assistant", len(task.History))
	}
	if task.History[0].Text() != "turn on the lights" || task.History[1].Text() != "Lights are on." {
		t.Errorf("history = %q, %q", task.History[0].Text(), task.History[1].Text())
	}

	if len(obs.started) != 1 || len(obs.choices) != 1 || len(obs.responses) != 1 || len(obs.results) != 1 {
		t.Errorf("observer events: started=%d choices=%d responses=%d results=%d",
			len(obs.started), len(obs.choices), len(obs.responses), len(obs.results))
	}
}

func TestEngineEmptyRequest(t *testing.T) {
	tasks := newTaskRecorder()
	engine, err := NewEngine(EngineConfig{
		Registry: testCatalog(),
		Chat:     &fakeChat{},
		Tasks:    tasks,
	})
	if err != nil {
		t.Fatal(err)
	}

	result := engine.ProcessRequest(context.Background(), Request{Text: "   \n\t  "})
	if result.Text != apologyText {
		t.Errorf("text = %q, want apology", result.Text)
	}
	if len(tasks.created) != 0 {
		t.Errorf("tasks created = %d for empty request", len(tasks.created))
	}
}

func TestEngineNoAgentsAvailable(t *testing.T) {
	tasks := newTaskRecorder()
	engine, err := NewEngine(EngineConfig{
		Registry: NewStaticRegistry(),
		Chat:     &fakeChat{},
		Tasks:    tasks,
	})
	if err != nil {
		t.Fatal(err)
	}

	result := engine.ProcessRequest(context.Background(), Request{Text: "turn on the lights"})
	if result.Text != noAgentsText {
		t.Errorf("text = %q", result.Text)
	}
	task := mustGetTask(t, tasks, tasks.created[0])
	if task.State != TaskStateFailed || !task.Final {
		t.Errorf("task = %s final=%v, want failed final", task.State, task.Final)
	}
}

func TestEngineClarification(t *testing.T) {
	chat := &fakeChat{responses: []ChatResponse{chatReply(
		`{"agent_id": "music-agent", "confidence": 0.5, "reasoning": "ambiguous"}`,
	)}}
	tasks := newTaskRecorder()
	engine, err := NewEngine(EngineConfig{
		Registry: testCatalog(),
		Agents:   staticAgents{&stubAgent{name: "music-agent", reply: "Playing."}},
		Chat:     chat,
		Tasks:    tasks,
	})
	if err != nil {
		t.Fatal(err)
	}

	result := engine.ProcessRequest(context.Background(), Request{Text: "play music", SessionID: "s1"})
	if !result.NeedsInput {
		t.Fatal("needs_input = false for a clarification")
	}
	if !strings.HasSuffix(result.Text, "?") {
		t.Errorf("text = %q, want a question", result.Text)
	}
	task := mustGetTask(t, tasks, tasks.created[0])
	if task.State != TaskStateInputRequired || task.Final {
		t.Errorf("task = %s final=%v, want input-required non-final", task.State, task.Final)
	}
	if got := task.History[len(task.History)-1].Text(); got != result.Text {
		t.Errorf("task message %q != returned text %q", got, result.Text)
	}
}

func TestEngineAllAgentsFailed(t *testing.T) {
	chat := &fakeChat{responses: []ChatResponse{chatReply(
		`{"agent_id": "light-agent", "confidence": 0.9, "reasoning": "lighting"}`,
	)}}
	tasks := newTaskRecorder()
	engine, err := NewEngine(EngineConfig{
		Registry: testCatalog(),
		Agents:   staticAgents{&stubAgent{name: "light-agent", err: errors.New("bulb offline")}},
		Chat:     chat,
		Tasks:    tasks,
	})
	if err != nil {
		t.Fatal(err)
	}

	result := engine.ProcessRequest(context.Background(), Request{Text: "turn on the lights"})
	want := "However, I couldn't complete Light Agent: bulb offline."
	if result.Text != want {
		t.Errorf("text = %q\nwant %q", result.Text, want)
	}
	task := mustGetTask(t, tasks, tasks.created[0])
	if task.State != TaskStateFailed || !task.Final {
		t.Errorf("task = %s final=%v, want failed final", task.State, task.Final)
	}
}

func TestEngineCanceledRequest(t *testing.T) {
	chat := &fakeChat{responses: []ChatResponse{chatReply(
		`{"agent_id": "light-agent", "confidence": 0.9, "reasoning": "lighting"}`,
	)}}
	tasks := newTaskRecorder()
	engine, err := NewEngine(EngineConfig{
		Registry: testCatalog(),
		Agents:   staticAgents{&stubAgent{name: "light-agent", reply: "Done."}},
		Chat:     chat,
		Tasks:    tasks,
	})
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result := engine.ProcessRequest(ctx, Request{Text: "turn on the lights"})
	if result.Text != canceledText {
		t.Errorf("text = %q", result.Text)
	}
	task := mustGetTask(t, tasks, tasks.created[0])
	if task.State != TaskStateCanceled || !task.Final {
		t.Errorf("task = %s final=%v, want canceled final", task.State, task.Final)
	}
}

func TestEngineMalformedRoutingFallsBack(t *testing.T) {
	chat := &fakeChat{responses: []ChatResponse{
		chatReply("definitely not json"),
		chatReply("still not json"),
	}}
	tasks := newTaskRecorder()
	engine, err := NewEngine(EngineConfig{
		Registry: testCatalog(),
		Agents:   staticAgents{&stubAgent{name: "general-assistant", reply: "Here to help."}},
		Chat:     chat,
		Tasks:    tasks,
	})
	if err != nil {
		t.Fatal(err)
	}

	result := engine.ProcessRequest(context.Background(), Request{Text: "do something"})
	if result.Text != "Here to help." {
		t.Errorf("text = %q, want fallback agent reply", result.Text)
	}
	task := mustGetTask(t, tasks, tasks.created[0])
	if task.State != TaskStateCompleted {
		t.Errorf("task = %s, want completed", task.State)
	}
}

func TestEngineSessionContinuity(t *testing.T) {
	chat := &fakeChat{responses: []ChatResponse{
		chatReply(`{"agent_id": "light-agent", "confidence": 0.9, "reasoning": "lighting"}`),
		chatReply(`{"agent_id": "light-agent", "confidence": 0.9, "reasoning": "follow-up"}`),
	}}
	agent := &stubAgent{name: "light-agent", reply: "Done."}
	sessions := NewMemorySessionCache(SessionCacheOptions{})
	engine, err := NewEngine(EngineConfig{
		Registry: testCatalog(),
		Agents:   staticAgents{agent},
		Chat:     chat,
		Sessions: sessions,
	})
	if err != nil {
		t.Fatal(err)
	}

	_ = engine.ProcessRequest(context.Background(), Request{Text: "turn on the lights", SessionID: "s1"})
	_ = engine.ProcessRequest(context.Background(), Request{Text: "a bit dimmer", SessionID: "s1"})

	// The second routing call carries both prior turns.
	second := chat.requests[1]
	if len(second.Messages) != 4 {
		t.Errorf("second routing call has %d messages, want system + 2 turns + prompt", len(second.Messages))
	}
	// The agent's second instruction is history-aware.
	if !strings.Contains(agent.lastMsg, "Previous conversation:") ||
		!strings.Contains(agent.lastMsg, "Current request: a bit dimmer") {
		t.Errorf("agent message missing session context:\n%s", agent.lastMsg)
	}

	data, ok, err := sessions.Get(context.Background(), "s1")
	if err != nil || !ok {
		t.Fatalf("session gone: ok=%v err=%v", ok, err)
	}
	if len(data.History) != 4 {
		t.Errorf("session turns = %d, want 4", len(data.History))
	}
}

func TestEngineReusesOpenTask(t *testing.T) {
	chat := &fakeChat{responses: []ChatResponse{chatReply(
		`{"agent_id": "light-agent", "confidence": 0.9, "reasoning": "lighting"}`,
	)}}
	tasks := newTaskRecorder()
	engine, err := NewEngine(EngineConfig{
		Registry: testCatalog(),
		Agents:   staticAgents{&stubAgent{name: "light-agent", reply: "Done."}},
		Chat:     chat,
		Tasks:    tasks,
	})
	if err != nil {
		t.Fatal(err)
	}

	open, err := tasks.CreateTask(context.Background(), "s1")
	if err != nil {
		t.Fatal(err)
	}
	_ = engine.ProcessRequest(context.Background(), Request{Text: "turn on the lights", TaskID: open.ID, SessionID: "s1"})

	if len(tasks.created) != 1 {
		t.Errorf("tasks created = %d, want the open task reused", len(tasks.created))
	}
	task := mustGetTask(t, tasks, open.ID)
	if task.State != TaskStateCompleted {
		t.Errorf("task = %s, want completed on the original id", task.State)
	}
}

func TestEngineRequiresRegistryAndChat(t *testing.T) {
	if _, err := NewEngine(EngineConfig{Chat: &fakeChat{}}); err == nil {
		t.Error("no error without a registry")
	}
	if _, err := NewEngine(EngineConfig{Registry: testCatalog()}); err == nil {
		t.Error("no error without a chat source")
	}
}
