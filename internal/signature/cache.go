package signature

import (
	"context"
	"sync"
	"sync/atomic"

	"callgen/internal/trace"
	"callgen/internal/types"
)

// Cache memoizes one Signature per function type. Safe for concurrent use;
// every caller observes the same *Signature for a given type.
type Cache struct {
	x *Expander

	mu   sync.RWMutex
	sigs map[types.TypeID]*Signature

	hits   atomic.Int64
	misses atomic.Int64
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Hits    int64
	Misses  int64
	Entries int
}

func NewCache(x *Expander) *Cache {
	return &Cache{x: x, sigs: make(map[types.TypeID]*Signature, 32)}
}

// Expander returns the expander behind c.
func (c *Cache) Expander() *Expander { return c.x }

// Get returns the signature of fnType, expanding it on first use.
func (c *Cache) Get(ctx context.Context, fnType types.TypeID) *Signature {
	tracer := trace.FromContext(ctx)
	c.mu.RLock()
	sig, ok := c.sigs[fnType]
	c.mu.RUnlock()
	if ok {
		c.hits.Add(1)
		if tracer.Enabled() {
			trace.Point(tracer, trace.ScopeNode, "sig.hit", c.x.Infos.Types.TypeString(fnType))
		}
		return sig
	}

	// expansion runs unlocked; a racing writer may win and its result is kept
	computed := c.x.Expand(fnType)

	c.mu.Lock()
	sig, ok = c.sigs[fnType]
	if !ok {
		c.sigs[fnType] = computed
		sig = computed
	}
	c.mu.Unlock()
	if ok {
		// lost the race: the stored signature is served like any hit
		c.hits.Add(1)
		return sig
	}
	c.misses.Add(1)
	if tracer.Enabled() {
		trace.Point(tracer, trace.ScopeNode, "sig.miss", c.x.Infos.Types.TypeString(fnType))
	}
	return sig
}

// Lookup returns a cached signature without expanding.
func (c *Cache) Lookup(fnType types.TypeID) (*Signature, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sig, ok := c.sigs[fnType]
	return sig, ok
}

func (c *Cache) Stats() Stats {
	c.mu.RLock()
	n := len(c.sigs)
	c.mu.RUnlock()
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load(), Entries: n}
}
