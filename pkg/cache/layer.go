package cache

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"github.com/matzehuels/imgembed/pkg/observability"
)

// DefaultMaxAge is the default TTL of persisted entries (7 days).
const DefaultMaxAge = 7 * 24 * time.Hour

// Outcome describes how [Layer.Do] produced its result.
type Outcome int

const (
	// Computed means fn ran for this caller.
	Computed Outcome = iota
	// Shared means the caller joined a computation already in flight.
	Shared
	// MemoryHit means a settled result from this process was reused.
	MemoryHit
	// StoreHit means the persistent store had a fresh entry.
	StoreHit
)

func (o Outcome) String() string {
	switch o {
	case Computed:
		return "computed"
	case Shared:
		return "inflight"
	case MemoryHit:
		return "memory"
	case StoreHit:
		return "store"
	}
	return "unknown"
}

// Hit reports whether the result came from a cache tier.
func (o Outcome) Hit() bool { return o != Computed }

// ComputeFunc produces the value for a key. cacheable=false keeps the value
// out of both the memo and the store (used for placeholder results).
type ComputeFunc func(ctx context.Context) (data []byte, cacheable bool, err error)

// LayerOptions configures a [Layer].
type LayerOptions struct {
	// MaxAge is the TTL of stored entries; 0 selects DefaultMaxAge.
	MaxAge time.Duration
	// Prefix limits Sweep to keys starting with it; empty selects "img:".
	Prefix string
	// Memo keeps settled results in process so repeated requests skip the
	// store. Disable it when caching is turned off.
	Memo bool
	// Logger receives store failures at Warn and hits at Debug.
	Logger *log.Logger
	// Now overrides the clock in tests.
	Now func() time.Time
}

// Layer coalesces concurrent requests per key and fronts a persistent store.
// Resolution order: memo, in-flight, store, compute. Store failures are
// logged and treated as a miss or a no-op; they never fail a request.
type Layer struct {
	store  Cache
	group  singleflight.Group
	maxAge time.Duration
	prefix string
	logger *log.Logger
	now    func() time.Time

	memoOn bool
	mu     sync.RWMutex
	memo   map[string]Entry
}

// NewLayer wraps store. A nil store selects NullCache.
func NewLayer(store Cache, opts LayerOptions) *Layer {
	if store == nil {
		store = NewNullCache()
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = DefaultMaxAge
	}
	if opts.Prefix == "" {
		opts.Prefix = Namespace + ":"
	}
	if opts.Logger == nil {
		opts.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Layer{
		store:  store,
		maxAge: opts.MaxAge,
		prefix: opts.Prefix,
		logger: opts.Logger,
		now:    opts.Now,
		memoOn: opts.Memo,
		memo:   make(map[string]Entry),
	}
}

// Store returns the persistent store.
func (l *Layer) Store() Cache { return l.store }

// MaxAge returns the entry TTL.
func (l *Layer) MaxAge() time.Duration { return l.maxAge }

type flight struct {
	data    []byte
	outcome Outcome
}

// Do returns the value for key, computing it at most once across concurrent
// callers. fn runs detached from ctx cancellation so an abandoned request
// still populates the cache; a cancelled caller stops waiting and gets
// ctx.Err().
func (l *Layer) Do(ctx context.Context, key string, fn ComputeFunc) ([]byte, Outcome, error) {
	if data, ok := l.memoGet(key); ok {
		l.logger.Debug("cache hit", "tier", MemoryHit, "key", short(key))
		observability.Cache().OnCacheHit(ctx, MemoryHit.String())
		return data, MemoryHit, nil
	}

	leader := false
	ch := l.group.DoChan(key, func() (any, error) {
		leader = true
		return l.load(context.WithoutCancel(ctx), key, fn)
	})

	select {
	case <-ctx.Done():
		return nil, Computed, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, Computed, res.Err
		}
		f := res.Val.(flight)
		if !leader {
			l.logger.Debug("cache hit", "tier", Shared, "key", short(key))
			observability.Cache().OnCacheHit(ctx, Shared.String())
			return f.data, Shared, nil
		}
		return f.data, f.outcome, nil
	}
}

func (l *Layer) load(ctx context.Context, key string, fn ComputeFunc) (flight, error) {
	e, hit, err := l.store.Get(ctx, key)
	if err != nil {
		l.logger.Warn("cache read failed", "key", short(key), "err", err)
		hit = false
	}
	if hit && l.fresh(e) {
		l.memoSet(key, e)
		l.logger.Debug("cache hit", "tier", StoreHit, "key", short(key))
		observability.Cache().OnCacheHit(ctx, StoreHit.String())
		return flight{data: e.Data, outcome: StoreHit}, nil
	}
	observability.Cache().OnCacheMiss(ctx)

	data, cacheable, err := fn(ctx)
	if err != nil {
		return flight{}, err
	}
	if cacheable {
		e := Entry{Data: data, StoredAt: l.now()}
		if err := l.store.Set(ctx, key, e); err != nil {
			l.logger.Warn("cache write failed", "key", short(key), "err", err)
		} else {
			observability.Cache().OnCacheSet(ctx, len(data))
		}
		l.memoSet(key, e)
	}
	return flight{data: data, outcome: Computed}, nil
}

// Sweep removes stored entries older than MaxAge and prunes the memo.
func (l *Layer) Sweep(ctx context.Context) (int, error) {
	start := time.Now()
	cutoff := l.now().Add(-l.maxAge)

	l.mu.Lock()
	for k, e := range l.memo {
		if e.StoredAt.Before(cutoff) {
			delete(l.memo, k)
		}
	}
	l.mu.Unlock()

	n, err := l.store.Sweep(ctx, l.prefix, cutoff)
	if err != nil {
		l.logger.Warn("cache sweep failed", "err", err)
		return n, err
	}
	l.logger.Debug("cache sweep", "removed", n, "duration", time.Since(start))
	observability.Cache().OnCacheSweep(ctx, n, time.Since(start))
	return n, nil
}

// Forget drops key from the memo and the store.
func (l *Layer) Forget(ctx context.Context, key string) error {
	l.mu.Lock()
	delete(l.memo, key)
	l.mu.Unlock()
	l.group.Forget(key)
	return l.store.Delete(ctx, key)
}

func (l *Layer) fresh(e Entry) bool {
	return !e.StoredAt.Before(l.now().Add(-l.maxAge))
}

func (l *Layer) memoGet(key string) ([]byte, bool) {
	if !l.memoOn {
		return nil, false
	}
	l.mu.RLock()
	e, ok := l.memo[key]
	l.mu.RUnlock()
	if !ok || !l.fresh(e) {
		return nil, false
	}
	return e.Data, true
}

func (l *Layer) memoSet(key string, e Entry) {
	if !l.memoOn {
		return
	}
	l.mu.Lock()
	l.memo[key] = e
	l.mu.Unlock()
}

// short trims a key for log output.
func short(key string) string {
	if i := strings.LastIndexByte(key, ':'); i >= 0 && len(key)-i > 13 {
		return key[:i+13]
	}
	return key
}
