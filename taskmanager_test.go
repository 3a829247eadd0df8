package hearth

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryTaskManagerCreateAndGet(t *testing.T) {
	tm := NewMemoryTaskManager()
	ctx := context.Background()

	task, err := tm.CreateTask(ctx, "session-1")
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if task.State != TaskStateWorking {
		t.Errorf("state = %s, want %s", task.State, TaskStateWorking)
	}
	if task.ContextID != "session-1" {
		t.Errorf("context id = %q, want %q", task.ContextID, "session-1")
	}

	got, err := tm.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if got.ID != task.ID {
		t.Errorf("id = %q, want %q", got.ID, task.ID)
	}

	if _, err := tm.GetTask(ctx, "nope"); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("GetTask(unknown) = %v, want ErrTaskNotFound", err)
	}
}

func TestMemoryTaskManagerAppendRoundTrip(t *testing.T) {
	tm := NewMemoryTaskManager()
	ctx := context.Background()
	task, _ := tm.CreateTask(ctx, "s")

	userMsg := NewUserAgentMessage("turn on the lights")
	task, err := tm.UpdateStatus(ctx, task.ID, TaskStateWorking, &userMsg, false)
	if err != nil {
		t.Fatalf("UpdateStatus(user): %v", err)
	}
	assistant := AgentMessage{Role: RoleAssistant, Parts: []MessagePart{{Text: "Done."}}}
	task, err = tm.UpdateStatus(ctx, task.ID, TaskStateCompleted, &assistant, true)
	if err != nil {
		t.Fatalf("UpdateStatus(assistant): %v", err)
	}

	reloaded, err := tm.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if len(reloaded.History) != 2 {
		t.Fatalf("history length = %d, want 2", len(reloaded.History))
	}
	if reloaded.History[0].Role != RoleUser || reloaded.History[0].Text() != "turn on the lights" {
		t.Errorf("first message = %s %q", reloaded.History[0].Role, reloaded.History[0].Text())
	}
	if reloaded.History[1].Role != RoleAssistant || reloaded.History[1].Text() != "Done." {
		t.Errorf("second message = %s %q", reloaded.History[1].Role, reloaded.History[1].Text())
	}
	if reloaded.State != TaskStateCompleted || !reloaded.Final {
		t.Errorf("state = %s final=%v, want completed final", reloaded.State, reloaded.Final)
	}
}

func TestMemoryTaskManagerRejectsFinalUpdates(t *testing.T) {
	tm := NewMemoryTaskManager()
	ctx := context.Background()
	task, _ := tm.CreateTask(ctx, "s")

	if _, err := tm.UpdateStatus(ctx, task.ID, TaskStateCompleted, nil, true); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if _, err := tm.UpdateStatus(ctx, task.ID, TaskStateWorking, nil, false); !errors.Is(err, ErrTaskFinal) {
		t.Errorf("update after final = %v, want ErrTaskFinal", err)
	}
}

func TestMemoryTaskManagerInvalidTransition(t *testing.T) {
	tm := NewMemoryTaskManager()
	ctx := context.Background()
	task, _ := tm.CreateTask(ctx, "s")

	// input-required, non-final so the task stays open.
	if _, err := tm.UpdateStatus(ctx, task.ID, TaskStateInputRequired, nil, false); err != nil {
		t.Fatalf("to input-required: %v", err)
	}
	_, err := tm.UpdateStatus(ctx, task.ID, TaskStateCompleted, nil, true)
	var invalid *ErrInvalidTransition
	if !errors.As(err, &invalid) {
		t.Fatalf("input-required -> completed = %v, want ErrInvalidTransition", err)
	}
	if invalid.From != TaskStateInputRequired || invalid.To != TaskStateCompleted {
		t.Errorf("transition = %s -> %s", invalid.From, invalid.To)
	}
}

func TestMemoryTaskManagerCloneOnRead(t *testing.T) {
	tm := NewMemoryTaskManager()
	ctx := context.Background()
	task, _ := tm.CreateTask(ctx, "s")
	msg := NewUserAgentMessage("hi")
	_, _ = tm.UpdateStatus(ctx, task.ID, TaskStateWorking, &msg, false)

	got, _ := tm.GetTask(ctx, task.ID)
	got.History[0].Parts[0].Text = "mutated"
	got.State = TaskStateFailed

	fresh, _ := tm.GetTask(ctx, task.ID)
	if fresh.State != TaskStateWorking {
		t.Errorf("stored state changed by caller mutation: %s", fresh.State)
	}
}

func TestMemoryTaskManagerSendMessage(t *testing.T) {
	tm := NewMemoryTaskManager()
	tm.SetHandler(func(_ context.Context, _ Task, msg AgentMessage) (TaskState, *AgentMessage, bool, error) {
		reply := AgentMessage{Parts: []MessagePart{{Text: "echo: " + msg.Text()}}}
		return TaskStateCompleted, &reply, true, nil
	})

	res, err := tm.SendMessage(context.Background(), SendMessageParams{
		ContextID: "s",
		Message:   NewUserAgentMessage("hello"),
	})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if res.Task.State != TaskStateCompleted {
		t.Errorf("state = %s, want completed", res.Task.State)
	}
	if res.Message == nil || res.Message.Text() != "echo: hello" {
		t.Errorf("answer = %+v, want echo: hello", res.Message)
	}
}

func TestMemoryTaskManagerSendMessageHandlerError(t *testing.T) {
	tm := NewMemoryTaskManager()
	tm.SetHandler(func(_ context.Context, _ Task, _ AgentMessage) (TaskState, *AgentMessage, bool, error) {
		return "", nil, false, errors.New("backend down")
	})

	res, err := tm.SendMessage(context.Background(), SendMessageParams{
		ContextID: "s",
		Message:   NewUserAgentMessage("hello"),
	})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if res.Task.State != TaskStateFailed {
		t.Errorf("state = %s, want failed", res.Task.State)
	}
	last := res.Task.History[len(res.Task.History)-1]
	if last.Text() != "backend down" {
		t.Errorf("failure message = %q", last.Text())
	}
}
