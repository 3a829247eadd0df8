package hearth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"math"
	"strings"
	"sync"
	"time"
)

// DefaultSimilarityThreshold is the minimum cosine similarity for a
// semantic routing-cache hit.
const DefaultSimilarityThreshold = 0.92

// DefaultRoutingCacheTTL bounds how long a cached routing decision stays
// valid.
const DefaultRoutingCacheTTL = 24 * time.Hour

// RoutingKey identifies one cached routing decision. Fingerprint is exact;
// Request carries the normalized text so semantic caches can match near
// duplicates; CatalogSignature ties the entry to the agent set it was
// decided against.
type RoutingKey struct {
	Fingerprint      string
	Request          string
	CatalogSignature string
}

// NewRoutingKey normalizes the request and derives the exact fingerprint.
func NewRoutingKey(request, catalogSig string) RoutingKey {
	norm := normalizeRequest(request)
	sum := sha256.Sum256([]byte(norm + "\x00" + catalogSig))
	return RoutingKey{
		Fingerprint:      hex.EncodeToString(sum[:]),
		Request:          norm,
		CatalogSignature: catalogSig,
	}
}

// normalizeRequest lowercases and collapses runs of whitespace so trivial
// variants of a request share a fingerprint.
func normalizeRequest(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// RoutingCacheEntry is one stored decision.
type RoutingCacheEntry struct {
	Key    RoutingKey
	Choice AgentChoice
	// Embedding of Key.Request, present when the cache embeds entries.
	Embedding []float64
	CreatedAt int64
	// ExpiresAt is the Unix second past which the entry is stale.
	ExpiresAt int64
}

// RoutingDecisionCache remembers router decisions so repeated requests skip
// the routing LLM call. Implementations never return clarification or
// fallback decisions; the router also refuses to store them.
type RoutingDecisionCache interface {
	// Get returns a cached choice for the key, or ok=false. A miss is never
	// an error; lookup failures degrade to a miss.
	Get(ctx context.Context, key RoutingKey) (AgentChoice, bool, error)
	// Put stores the decision for the key.
	Put(ctx context.Context, key RoutingKey, choice AgentChoice) error
}

// MemoryRoutingCache is an in-process RoutingDecisionCache with exact
// fingerprint matching and, when an EmbeddingClient is set, semantic
// matching over entries sharing the catalog signature.
type MemoryRoutingCache struct {
	embedder  EmbeddingClient
	threshold float64
	ttl       time.Duration
	now       func() time.Time

	mu      sync.RWMutex
	entries map[string]*RoutingCacheEntry
}

// MemoryRoutingCacheOptions tune the in-memory routing cache.
type MemoryRoutingCacheOptions struct {
	// Embedder enables semantic matching when non-nil.
	Embedder EmbeddingClient
	// SimilarityThreshold in (0,1]; zero takes the default.
	SimilarityThreshold float64
	// TTL bounds entry lifetime; zero takes DefaultRoutingCacheTTL.
	TTL time.Duration
}

// NewMemoryRoutingCache builds the cache. Expired entries are evicted
// lazily on lookup.
func NewMemoryRoutingCache(opts MemoryRoutingCacheOptions) *MemoryRoutingCache {
	if opts.SimilarityThreshold <= 0 {
		opts.SimilarityThreshold = DefaultSimilarityThreshold
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultRoutingCacheTTL
	}
	return &MemoryRoutingCache{
		embedder:  opts.Embedder,
		threshold: opts.SimilarityThreshold,
		ttl:       opts.TTL,
		now:       time.Now,
		entries:   make(map[string]*RoutingCacheEntry),
	}
}

func (c *MemoryRoutingCache) Get(ctx context.Context, key RoutingKey) (AgentChoice, bool, error) {
	now := c.now().Unix()

	c.mu.Lock()
	if e, ok := c.entries[key.Fingerprint]; ok {
		if now >= e.ExpiresAt {
			delete(c.entries, key.Fingerprint)
		} else {
			choice := e.Choice
			c.mu.Unlock()
			return choice, true, nil
		}
	}
	c.mu.Unlock()

	if c.embedder == nil {
		return AgentChoice{}, false, nil
	}
	vec, err := c.embedder.Embed(ctx, key.Request)
	if err != nil {
		// Embedding trouble degrades to a miss.
		return AgentChoice{}, false, nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	var best *RoutingCacheEntry
	bestScore := c.threshold
	for _, e := range c.entries {
		if e.Key.CatalogSignature != key.CatalogSignature || len(e.Embedding) == 0 {
			continue
		}
		if now >= e.ExpiresAt {
			continue
		}
		score := cosineSimilarity(vec, e.Embedding)
		if score >= bestScore {
			best, bestScore = e, score
		}
	}
	if best == nil {
		return AgentChoice{}, false, nil
	}
	return best.Choice, true, nil
}

func (c *MemoryRoutingCache) Put(ctx context.Context, key RoutingKey, choice AgentChoice) error {
	created := c.now()
	e := &RoutingCacheEntry{
		Key:       key,
		Choice:    choice,
		CreatedAt: created.Unix(),
		ExpiresAt: created.Add(c.ttl).Unix(),
	}
	if c.embedder != nil {
		if vec, err := c.embedder.Embed(ctx, key.Request); err == nil {
			e.Embedding = vec
		}
	}
	c.mu.Lock()
	c.entries[key.Fingerprint] = e
	c.mu.Unlock()
	return nil
}

var _ RoutingDecisionCache = (*MemoryRoutingCache)(nil)

// cosineSimilarity of two vectors; zero when lengths differ or either
// vector is all zeros.
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
