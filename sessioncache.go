package hearth

import (
	"context"
	"sync"
	"time"
)

// Session cache defaults.
const (
	DefaultSessionTTL      = 5 * time.Minute
	DefaultMaxHistoryItems = 20
)

// SessionCache holds short-lived multi-turn conversation history keyed by
// session id. Entries expire on a sliding TTL; Get on an expired or unknown
// session returns ok=false.
type SessionCache interface {
	Get(ctx context.Context, sessionID string) (SessionData, bool, error)
	Save(ctx context.Context, data SessionData) error
}

// SessionCacheOptions tune a session cache.
type SessionCacheOptions struct {
	// TTL is the sliding expiry measured from the last save.
	TTL time.Duration
	// MaxHistoryItems caps stored turns; the oldest are dropped first.
	MaxHistoryItems int
}

func (o *SessionCacheOptions) defaults() {
	if o.TTL <= 0 {
		o.TTL = DefaultSessionTTL
	}
	if o.MaxHistoryItems <= 0 {
		o.MaxHistoryItems = DefaultMaxHistoryItems
	}
}

// MemorySessionCache is an in-process SessionCache. Expired entries are
// dropped lazily on access.
type MemorySessionCache struct {
	opts SessionCacheOptions
	now  func() time.Time

	mu       sync.Mutex
	sessions map[string]memorySession
}

type memorySession struct {
	data     SessionData
	deadline time.Time
}

// NewMemorySessionCache builds a cache with the given options; zero values
// take the defaults.
func NewMemorySessionCache(opts SessionCacheOptions) *MemorySessionCache {
	opts.defaults()
	return &MemorySessionCache{
		opts:     opts,
		now:      time.Now,
		sessions: make(map[string]memorySession),
	}
}

func (c *MemorySessionCache) Get(_ context.Context, sessionID string) (SessionData, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[sessionID]
	if !ok {
		return SessionData{}, false, nil
	}
	if c.now().After(s.deadline) {
		delete(c.sessions, sessionID)
		return SessionData{}, false, nil
	}
	out := s.data
	out.History = append([]SessionTurn(nil), s.data.History...)
	return out, true, nil
}

func (c *MemorySessionCache) Save(_ context.Context, data SessionData) error {
	data.History = TrimHistory(data.History, c.opts.MaxHistoryItems)
	data.History = append([]SessionTurn(nil), data.History...)
	if data.LastUpdated == 0 {
		data.LastUpdated = c.now().Unix()
	}
	c.mu.Lock()
	c.sessions[data.SessionID] = memorySession{
		data:     data,
		deadline: c.now().Add(c.opts.TTL),
	}
	c.mu.Unlock()
	return nil
}

var _ SessionCache = (*MemorySessionCache)(nil)
