// Package sqlite implements durable hearth task and session storage using
// pure-Go SQLite. Zero CGO required.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	hearth "github.com/hearthkit/hearth"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// StoreOption configures a SQLite Store.
type StoreOption func(*Store)

// WithLogger sets a structured logger for the store.
// When set, the store emits debug logs for operations. If not set, no logs
// are emitted.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// WithSessionOptions overrides the session TTL and history cap. Zero
// values keep the defaults.
func WithSessionOptions(opts hearth.SessionCacheOptions) StoreOption {
	return func(s *Store) {
		if opts.TTL > 0 {
			s.sessionOpts.TTL = opts.TTL
		}
		if opts.MaxHistoryItems > 0 {
			s.sessionOpts.MaxHistoryItems = opts.MaxHistoryItems
		}
	}
}

// Store backs hearth.TaskManager, hearth.SessionCache, and
// hearth.SessionStore with a local SQLite file, so tasks and sessions
// survive process restarts.
type Store struct {
	db          *sql.DB
	logger      *slog.Logger
	sessionOpts hearth.SessionCacheOptions
	now         func() time.Time
}

var (
	_ hearth.TaskManager  = (*Store)(nil)
	_ hearth.SessionCache = (*Store)(nil)
	_ hearth.SessionStore = (*Store)(nil)
)

// nopLogger is a logger that discards all output.
var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// New creates a Store using a local SQLite file at dbPath.
// It opens a single shared connection pool with SetMaxOpenConns(1) so that
// all goroutines serialize through one connection, eliminating SQLITE_BUSY
// errors caused by concurrent writers opening independent connections.
func New(dbPath string, opts ...StoreOption) *Store {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		// sql.Open only fails when the driver is not registered; with the
		// blank import above that never happens.
		panic(fmt.Sprintf("sqlite: open driver: %v", err))
	}
	db.SetMaxOpenConns(1)
	s := &Store{
		db:     db,
		logger: nopLogger,
		sessionOpts: hearth.SessionCacheOptions{
			TTL:             hearth.DefaultSessionTTL,
			MaxHistoryItems: hearth.DefaultMaxHistoryItems,
		},
		now: time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	s.logger.Debug("sqlite: store opened", "path", dbPath)
	return s
}

// Init creates all required tables.
func (s *Store) Init(ctx context.Context) error {
	start := time.Now()
	s.logger.Debug("sqlite: init started")
	tables := []string{
		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			context_id TEXT NOT NULL,
			state TEXT NOT NULL,
			final INTEGER NOT NULL DEFAULT 0,
			history TEXT NOT NULL DEFAULT '[]',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			history TEXT NOT NULL DEFAULT '[]',
			last_updated INTEGER NOT NULL,
			expires_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS threads (
			session_id TEXT NOT NULL,
			agent_id TEXT NOT NULL,
			data BLOB NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (session_id, agent_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_context ON tasks(context_id)`,
	}
	for _, ddl := range tables {
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("sqlite: init: %w", err)
		}
	}
	s.logger.Debug("sqlite: init finished", "elapsed", time.Since(start))
	return nil
}

// Close releases the underlying connection.
func (s *Store) Close() error { return s.db.Close() }

// --- TaskManager ---

func (s *Store) CreateTask(ctx context.Context, contextID string) (hearth.Task, error) {
	now := hearth.NowUnix()
	t := hearth.Task{
		ID:        hearth.NewID(),
		ContextID: contextID,
		State:     hearth.TaskStateWorking,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (id, context_id, state, final, history, created_at, updated_at)
		 VALUES (?, ?, ?, 0, '[]', ?, ?)`,
		t.ID, t.ContextID, string(t.State), t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return hearth.Task{}, fmt.Errorf("sqlite: create task: %w", err)
	}
	s.logger.Debug("sqlite: task created", "task", t.ID, "context", contextID)
	return t, nil
}

func (s *Store) GetTask(ctx context.Context, taskID string) (hearth.Task, error) {
	return s.getTask(ctx, taskID)
}

func (s *Store) getTask(ctx context.Context, taskID string) (hearth.Task, error) {
	var t hearth.Task
	var state, history string
	var final int
	err := s.db.QueryRowContext(ctx,
		`SELECT id, context_id, state, final, history, created_at, updated_at
		 FROM tasks WHERE id = ?`, taskID).
		Scan(&t.ID, &t.ContextID, &state, &final, &history, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return hearth.Task{}, hearth.ErrTaskNotFound
	}
	if err != nil {
		return hearth.Task{}, fmt.Errorf("sqlite: get task: %w", err)
	}
	t.State = hearth.TaskState(state)
	t.Final = final != 0
	if err := json.Unmarshal([]byte(history), &t.History); err != nil {
		return hearth.Task{}, fmt.Errorf("sqlite: decode task history: %w", err)
	}
	return t, nil
}

func (s *Store) UpdateStatus(ctx context.Context, taskID string, state hearth.TaskState, msg *hearth.AgentMessage, final bool) (hearth.Task, error) {
	t, err := s.getTask(ctx, taskID)
	if err != nil {
		return hearth.Task{}, err
	}
	if t.Final {
		return hearth.Task{}, hearth.ErrTaskFinal
	}
	if !hearth.ValidTransition(t.State, state) {
		return hearth.Task{}, &hearth.ErrInvalidTransition{TaskID: taskID, From: t.State, To: state}
	}
	t.State = state
	t.Final = final || state.Terminal()
	t.UpdatedAt = hearth.NowUnix()
	if msg != nil {
		mm := *msg
		if mm.MessageID == "" {
			mm.MessageID = hearth.NewID()
		}
		if mm.CreatedAt == 0 {
			mm.CreatedAt = t.UpdatedAt
		}
		mm.TaskID = t.ID
		mm.ContextID = t.ContextID
		t.History = append(t.History, mm)
	}
	history, err := json.Marshal(t.History)
	if err != nil {
		return hearth.Task{}, fmt.Errorf("sqlite: encode task history: %w", err)
	}
	finalInt := 0
	if t.Final {
		finalInt = 1
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE tasks SET state = ?, final = ?, history = ?, updated_at = ? WHERE id = ?`,
		string(t.State), finalInt, string(history), t.UpdatedAt, t.ID)
	if err != nil {
		return hearth.Task{}, fmt.Errorf("sqlite: update task: %w", err)
	}
	return t, nil
}

func (s *Store) SendMessage(ctx context.Context, params hearth.SendMessageParams) (*hearth.SendResult, error) {
	var task hearth.Task
	var err error
	if params.TaskID == "" {
		task, err = s.CreateTask(ctx, params.ContextID)
	} else {
		task, err = s.getTask(ctx, params.TaskID)
	}
	if err != nil {
		return nil, err
	}
	if task.Final {
		return nil, hearth.ErrTaskFinal
	}
	task, err = s.UpdateStatus(ctx, task.ID, hearth.TaskStateWorking, &params.Message, false)
	if err != nil {
		return nil, err
	}
	// The durable store has no agent behind it; delivered messages simply
	// complete the task. Remote bridges layer their own delivery on top.
	task, err = s.UpdateStatus(ctx, task.ID, hearth.TaskStateCompleted, nil, true)
	if err != nil {
		return nil, err
	}
	return &hearth.SendResult{Task: task}, nil
}

// --- SessionCache ---

func (s *Store) Get(ctx context.Context, sessionID string) (hearth.SessionData, bool, error) {
	var history string
	var lastUpdated, expiresAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT history, last_updated, expires_at FROM sessions WHERE id = ?`, sessionID).
		Scan(&history, &lastUpdated, &expiresAt)
	if err == sql.ErrNoRows {
		return hearth.SessionData{}, false, nil
	}
	if err != nil {
		return hearth.SessionData{}, false, fmt.Errorf("sqlite: get session: %w", err)
	}
	if s.now().Unix() > expiresAt {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sessionID)
		return hearth.SessionData{}, false, nil
	}
	data := hearth.SessionData{SessionID: sessionID, LastUpdated: lastUpdated}
	if err := json.Unmarshal([]byte(history), &data.History); err != nil {
		return hearth.SessionData{}, false, fmt.Errorf("sqlite: decode session history: %w", err)
	}
	return data, true, nil
}

func (s *Store) Save(ctx context.Context, data hearth.SessionData) error {
	data.History = hearth.TrimHistory(data.History, s.sessionOpts.MaxHistoryItems)
	history, err := json.Marshal(data.History)
	if err != nil {
		return fmt.Errorf("sqlite: encode session history: %w", err)
	}
	now := s.now()
	if data.LastUpdated == 0 {
		data.LastUpdated = now.Unix()
	}
	expiresAt := now.Add(s.sessionOpts.TTL).Unix()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, history, last_updated, expires_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET history = excluded.history,
			last_updated = excluded.last_updated, expires_at = excluded.expires_at`,
		data.SessionID, string(history), data.LastUpdated, expiresAt)
	if err != nil {
		return fmt.Errorf("sqlite: save session: %w", err)
	}
	return nil
}

// --- SessionStore ---

func (s *Store) Thread(ctx context.Context, sessionID, agentID string) ([]byte, bool, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM threads WHERE session_id = ? AND agent_id = ?`, sessionID, agentID).
		Scan(&data)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("sqlite: get thread: %w", err)
	}
	return data, true, nil
}

func (s *Store) SaveThread(ctx context.Context, sessionID, agentID string, data []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO threads (session_id, agent_id, data, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(session_id, agent_id) DO UPDATE SET data = excluded.data,
			updated_at = excluded.updated_at`,
		sessionID, agentID, data, hearth.NowUnix())
	if err != nil {
		return fmt.Errorf("sqlite: save thread: %w", err)
	}
	return nil
}
