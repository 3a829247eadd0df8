// Package postgres implements durable hearth task and session storage
// using PostgreSQL.
//
// The Store accepts an externally-owned *pgxpool.Pool via constructor
// injection. The caller creates and closes the pool.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	hearth "github.com/hearthkit/hearth"
)

// Store backs hearth.TaskManager, hearth.SessionCache, and
// hearth.SessionStore with PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
	cfg  pgConfig
}

// pgConfig holds store configuration set via Option functions.
type pgConfig struct {
	sessionTTL      time.Duration
	maxHistoryItems int
}

// Option configures a PostgreSQL Store.
type Option func(*pgConfig)

// WithSessionTTL sets the sliding session expiry. Default: 5 minutes.
func WithSessionTTL(ttl time.Duration) Option {
	return func(c *pgConfig) {
		if ttl > 0 {
			c.sessionTTL = ttl
		}
	}
}

// WithMaxHistoryItems caps stored session turns. Default: 20.
func WithMaxHistoryItems(n int) Option {
	return func(c *pgConfig) {
		if n > 0 {
			c.maxHistoryItems = n
		}
	}
}

var (
	_ hearth.TaskManager  = (*Store)(nil)
	_ hearth.SessionCache = (*Store)(nil)
	_ hearth.SessionStore = (*Store)(nil)
)

// New creates a Store using an existing pgxpool.Pool.
// The caller owns the pool and is responsible for closing it.
func New(pool *pgxpool.Pool, opts ...Option) *Store {
	cfg := pgConfig{
		sessionTTL:      hearth.DefaultSessionTTL,
		maxHistoryItems: hearth.DefaultMaxHistoryItems,
	}
	for _, o := range opts {
		o(&cfg)
	}
	return &Store{pool: pool, cfg: cfg}
}

// Init creates all required tables.
func (s *Store) Init(ctx context.Context) error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			context_id TEXT NOT NULL,
			state TEXT NOT NULL,
			final BOOLEAN NOT NULL DEFAULT FALSE,
			history JSONB NOT NULL DEFAULT '[]',
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			history JSONB NOT NULL DEFAULT '[]',
			last_updated BIGINT NOT NULL,
			expires_at BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS threads (
			session_id TEXT NOT NULL,
			agent_id TEXT NOT NULL,
			data BYTEA NOT NULL,
			updated_at BIGINT NOT NULL,
			PRIMARY KEY (session_id, agent_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_context ON tasks(context_id)`,
	}
	for _, ddl := range tables {
		if _, err := s.pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("postgres: init: %w", err)
		}
	}
	return nil
}

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
	_, err := s.pool.Exec(ctx,
		`INSERT INTO tasks (id, context_id, state, final, history, created_at, updated_at)
		 VALUES ($1, $2, $3, FALSE, '[]', $4, $5)`,
		t.ID, t.ContextID, string(t.State), t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return hearth.Task{}, fmt.Errorf("postgres: create task: %w", err)
	}
	return t, nil
}

func (s *Store) GetTask(ctx context.Context, taskID string) (hearth.Task, error) {
	var t hearth.Task
	var state string
	var history []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, context_id, state, final, history, created_at, updated_at
		 FROM tasks WHERE id = $1`, taskID).
		Scan(&t.ID, &t.ContextID, &state, &t.Final, &history, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return hearth.Task{}, hearth.ErrTaskNotFound
	}
	if err != nil {
		return hearth.Task{}, fmt.Errorf("postgres: get task: %w", err)
	}
	t.State = hearth.TaskState(state)
	if err := json.Unmarshal(history, &t.History); err != nil {
		return hearth.Task{}, fmt.Errorf("postgres: decode task history: %w", err)
	}
	return t, nil
}

func (s *Store) UpdateStatus(ctx context.Context, taskID string, state hearth.TaskState, msg *hearth.AgentMessage, final bool) (hearth.Task, error) {
	t, err := s.GetTask(ctx, taskID)
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
		return hearth.Task{}, fmt.Errorf("postgres: encode task history: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`UPDATE tasks SET state = $1, final = $2, history = $3, updated_at = $4 WHERE id = $5`,
		string(t.State), t.Final, history, t.UpdatedAt, t.ID)
	if err != nil {
		return hearth.Task{}, fmt.Errorf("postgres: update task: %w", err)
	}
	return t, nil
}

func (s *Store) SendMessage(ctx context.Context, params hearth.SendMessageParams) (*hearth.SendResult, error) {
	var task hearth.Task
	var err error
	if params.TaskID == "" {
		task, err = s.CreateTask(ctx, params.ContextID)
	} else {
		task, err = s.GetTask(ctx, params.TaskID)
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
	var history []byte
	var lastUpdated, expiresAt int64
	err := s.pool.QueryRow(ctx,
		`SELECT history, last_updated, expires_at FROM sessions WHERE id = $1`, sessionID).
		Scan(&history, &lastUpdated, &expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return hearth.SessionData{}, false, nil
	}
	if err != nil {
		return hearth.SessionData{}, false, fmt.Errorf("postgres: get session: %w", err)
	}
	if time.Now().Unix() > expiresAt {
		_, _ = s.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, sessionID)
		return hearth.SessionData{}, false, nil
	}
	data := hearth.SessionData{SessionID: sessionID, LastUpdated: lastUpdated}
	if err := json.Unmarshal(history, &data.History); err != nil {
		return hearth.SessionData{}, false, fmt.Errorf("postgres: decode session history: %w", err)
	}
	return data, true, nil
}

func (s *Store) Save(ctx context.Context, data hearth.SessionData) error {
	data.History = hearth.TrimHistory(data.History, s.cfg.maxHistoryItems)
	history, err := json.Marshal(data.History)
	if err != nil {
		return fmt.Errorf("postgres: encode session history: %w", err)
	}
	now := time.Now()
	if data.LastUpdated == 0 {
		data.LastUpdated = now.Unix()
	}
	expiresAt := now.Add(s.cfg.sessionTTL).Unix()
	_, err = s.pool.Exec(ctx,
		`INSERT INTO sessions (id, history, last_updated, expires_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE SET history = EXCLUDED.history,
			last_updated = EXCLUDED.last_updated, expires_at = EXCLUDED.expires_at`,
		data.SessionID, history, data.LastUpdated, expiresAt)
	if err != nil {
		return fmt.Errorf("postgres: save session: %w", err)
	}
	return nil
}

// --- SessionStore ---

func (s *Store) Thread(ctx context.Context, sessionID, agentID string) ([]byte, bool, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM threads WHERE session_id = $1 AND agent_id = $2`, sessionID, agentID).
		Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("postgres: get thread: %w", err)
	}
	return data, true, nil
}

func (s *Store) SaveThread(ctx context.Context, sessionID, agentID string, data []byte) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO threads (session_id, agent_id, data, updated_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (session_id, agent_id) DO UPDATE SET data = EXCLUDED.data,
			updated_at = EXCLUDED.updated_at`,
		sessionID, agentID, data, hearth.NowUnix())
	if err != nil {
		return fmt.Errorf("postgres: save thread: %w", err)
	}
	return nil
}
