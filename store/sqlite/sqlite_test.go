package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	hearth "github.com/hearthkit/hearth"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := New(filepath.Join(t.TempDir(), "hearth.db"))
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestTaskLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	task, err := s.CreateTask(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if task.State != hearth.TaskStateWorking || task.Final {
		t.Fatalf("new task = %s final=%v", task.State, task.Final)
	}

	user := hearth.NewUserAgentMessage("turn on the lights")
	task, err = s.UpdateStatus(ctx, task.ID, hearth.TaskStateWorking, &user, false)
	if err != nil {
		t.Fatal(err)
	}
	reply := hearth.AgentMessage{Role: hearth.RoleAssistant, Parts: []hearth.MessagePart{{Text: "Done."}}}
	task, err = s.UpdateStatus(ctx, task.ID, hearth.TaskStateCompleted, &reply, true)
	if err != nil {
		t.Fatal(err)
	}

	got, err := s.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.State != hearth.TaskStateCompleted || !got.Final {
		t.Errorf("task = %s final=%v", got.State, got.Final)
	}
	if len(got.History) != 2 || got.History[1].Text() != "Done." {
		t.Errorf("history = %+v", got.History)
	}
}

func TestTaskNotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.GetTask(context.Background(), "missing"); !errors.Is(err, hearth.ErrTaskNotFound) {
		t.Errorf("err = %v, want ErrTaskNotFound", err)
	}
}

func TestTaskFinalRejectsUpdates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	task, _ := s.CreateTask(ctx, "s1")
	if _, err := s.UpdateStatus(ctx, task.ID, hearth.TaskStateCompleted, nil, true); err != nil {
		t.Fatal(err)
	}
	_, err := s.UpdateStatus(ctx, task.ID, hearth.TaskStateWorking, nil, false)
	if !errors.Is(err, hearth.ErrTaskFinal) {
		t.Errorf("err = %v, want ErrTaskFinal", err)
	}
}

func TestTaskInvalidTransition(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	task, _ := s.CreateTask(ctx, "s1")
	if _, err := s.UpdateStatus(ctx, task.ID, hearth.TaskStateInputRequired, nil, false); err != nil {
		t.Fatal(err)
	}
	_, err := s.UpdateStatus(ctx, task.ID, hearth.TaskStateCompleted, nil, true)
	var inv *hearth.ErrInvalidTransition
	if !errors.As(err, &inv) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
	if inv.From != hearth.TaskStateInputRequired || inv.To != hearth.TaskStateCompleted {
		t.Errorf("transition = %s -> %s", inv.From, inv.To)
	}
}

func TestSendMessageCompletesTask(t *testing.T) {
	s := newTestStore(t)

	res, err := s.SendMessage(context.Background(), hearth.SendMessageParams{
		ContextID: "s1",
		Message:   hearth.NewUserAgentMessage("hello"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Task.State != hearth.TaskStateCompleted || !res.Task.Final {
		t.Errorf("task = %s final=%v", res.Task.State, res.Task.Final)
	}
	if len(res.Task.History) != 1 || res.Task.History[0].Text() != "hello" {
		t.Errorf("history = %+v", res.Task.History)
	}
}

func TestSessionRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, ok, err := s.Get(ctx, "s1"); err != nil || ok {
		t.Fatalf("miss = (%v, %v)", ok, err)
	}

	data := hearth.SessionData{
		SessionID: "s1",
		History: []hearth.SessionTurn{
			{Role: hearth.RoleUser, Content: "turn on the lights", Timestamp: 1},
			{Role: hearth.RoleAssistant, Content: "Done.", Timestamp: 2},
		},
	}
	if err := s.Save(ctx, data); err != nil {
		t.Fatal(err)
	}
	got, ok, err := s.Get(ctx, "s1")
	if err != nil || !ok {
		t.Fatalf("get = (%v, %v)", ok, err)
	}
	if len(got.History) != 2 || got.History[1].Content != "Done." {
		t.Errorf("history = %+v", got.History)
	}
}

func TestSessionExpiry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now()
	s.now = func() time.Time { return base }
	if err := s.Save(ctx, hearth.SessionData{SessionID: "s1"}); err != nil {
		t.Fatal(err)
	}

	s.now = func() time.Time { return base.Add(hearth.DefaultSessionTTL + time.Second) }
	if _, ok, err := s.Get(ctx, "s1"); err != nil || ok {
		t.Errorf("expired session still returned: ok=%v err=%v", ok, err)
	}
}

func TestSessionTrimsHistory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	turns := make([]hearth.SessionTurn, 30)
	for i := range turns {
		turns[i] = hearth.SessionTurn{Role: hearth.RoleUser, Content: "x", Timestamp: int64(i)}
	}
	if err := s.Save(ctx, hearth.SessionData{SessionID: "s1", History: turns}); err != nil {
		t.Fatal(err)
	}
	got, _, err := s.Get(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got.History) != hearth.DefaultMaxHistoryItems {
		t.Fatalf("history = %d turns, want %d", len(got.History), hearth.DefaultMaxHistoryItems)
	}
	// Oldest turns are dropped first.
	if got.History[0].Timestamp != 10 {
		t.Errorf("first kept turn = %d, want 10", got.History[0].Timestamp)
	}
}

func TestThreadRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, ok, err := s.Thread(ctx, "s1", "light-agent"); err != nil || ok {
		t.Fatalf("miss = (%v, %v)", ok, err)
	}
	if err := s.SaveThread(ctx, "s1", "light-agent", []byte(`{"turns":1}`)); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveThread(ctx, "s1", "light-agent", []byte(`{"turns":2}`)); err != nil {
		t.Fatal(err)
	}
	data, ok, err := s.Thread(ctx, "s1", "light-agent")
	if err != nil || !ok {
		t.Fatalf("get = (%v, %v)", ok, err)
	}
	if string(data) != `{"turns":2}` {
		t.Errorf("data = %s, want the upserted blob", data)
	}

	// Threads are scoped per agent within a session.
	if _, ok, _ := s.Thread(ctx, "s1", "music-agent"); ok {
		t.Error("thread leaked across agents")
	}
}
