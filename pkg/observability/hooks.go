// Package observability provides hooks for metrics, progress and tracing.
//
// Libraries emit events through the registered hooks; nothing is recorded
// unless an application installs its own implementation. The defaults are
// no-ops, so library code can call hooks unconditionally.
//
// # Usage
//
// Register hooks at application startup:
//
//	func main() {
//	    observability.SetResolveHooks(&progressHooks{})
//	    observability.SetCacheHooks(&cacheCounters{})
//	    // ... run application
//	}
//
// Libraries call hooks to emit events:
//
//	observability.Resolve().OnResolveStart(ctx, "remote", src)
//	// ... fetch, decode, fit ...
//	observability.Resolve().OnResolveComplete(ctx, "remote", src, duration, fallback)
package observability

import (
	"context"
	"sync"
	"time"
)

// =============================================================================
// Resolve Hooks
// =============================================================================

// ResolveHooks receives events for every image reference that is resolved.
type ResolveHooks interface {
	// OnDiscover is called once per document with the number of image
	// nodes about to be resolved.
	OnDiscover(ctx context.Context, count int)

	OnResolveStart(ctx context.Context, kind, source string)

	// OnResolveComplete reports whether the placeholder path was taken.
	OnResolveComplete(ctx context.Context, kind, source string, duration time.Duration, fallback bool)
}

// =============================================================================
// Cache Hooks
// =============================================================================

// CacheHooks receives events from the image cache layer.
type CacheHooks interface {
	// OnCacheHit records a hit. tier is "memory", "store" or "inflight".
	OnCacheHit(ctx context.Context, tier string)

	// OnCacheMiss records a miss in every tier.
	OnCacheMiss(ctx context.Context)

	// OnCacheSet records a persistent write.
	OnCacheSet(ctx context.Context, size int)

	// OnCacheSweep records a TTL sweep.
	OnCacheSweep(ctx context.Context, removed int, duration time.Duration)
}

// =============================================================================
// HTTP Hooks
// =============================================================================

// HTTPHooks receives events from the remote image fetcher.
type HTTPHooks interface {
	// OnRequest records an outgoing HTTP request.
	OnRequest(ctx context.Context, method, host, path string)

	// OnResponse records an HTTP response.
	OnResponse(ctx context.Context, method, host, path string, statusCode int, duration time.Duration)

	// OnError records an HTTP error (network failure, timeout).
	OnError(ctx context.Context, method, host, path string, err error)
}

// =============================================================================
// No-op Implementations
// =============================================================================

// NoopResolveHooks is a no-op implementation of ResolveHooks.
type NoopResolveHooks struct{}

func (NoopResolveHooks) OnDiscover(context.Context, int)                                        {}
func (NoopResolveHooks) OnResolveStart(context.Context, string, string)                         {}
func (NoopResolveHooks) OnResolveComplete(context.Context, string, string, time.Duration, bool) {}

// NoopCacheHooks is a no-op implementation of CacheHooks.
type NoopCacheHooks struct{}

func (NoopCacheHooks) OnCacheHit(context.Context, string)               {}
func (NoopCacheHooks) OnCacheMiss(context.Context)                      {}
func (NoopCacheHooks) OnCacheSet(context.Context, int)                  {}
func (NoopCacheHooks) OnCacheSweep(context.Context, int, time.Duration) {}

// NoopHTTPHooks is a no-op implementation of HTTPHooks.
type NoopHTTPHooks struct{}

func (NoopHTTPHooks) OnRequest(context.Context, string, string, string)                      {}
func (NoopHTTPHooks) OnResponse(context.Context, string, string, string, int, time.Duration) {}
func (NoopHTTPHooks) OnError(context.Context, string, string, string, error)                 {}

// =============================================================================
// Global Hook Registry
// =============================================================================

var (
	resolveHooks ResolveHooks = NoopResolveHooks{}
	cacheHooks   CacheHooks   = NoopCacheHooks{}
	httpHooks    HTTPHooks    = NoopHTTPHooks{}
	hooksMu      sync.RWMutex
)

// SetResolveHooks registers custom resolve hooks.
// This should be called once at application startup before any resolution.
func SetResolveHooks(h ResolveHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		resolveHooks = h
	}
}

// SetCacheHooks registers custom cache hooks.
// This should be called once at application startup before any cache operations.
func SetCacheHooks(h CacheHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		cacheHooks = h
	}
}

// SetHTTPHooks registers custom HTTP hooks.
// This should be called once at application startup before any HTTP operations.
func SetHTTPHooks(h HTTPHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		httpHooks = h
	}
}

// Resolve returns the registered resolve hooks.
func Resolve() ResolveHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return resolveHooks
}

// Cache returns the registered cache hooks.
func Cache() CacheHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return cacheHooks
}

// HTTP returns the registered HTTP hooks.
func HTTP() HTTPHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return httpHooks
}

// Reset restores all hooks to their no-op defaults.
// This is primarily useful for testing.
func Reset() {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	resolveHooks = NoopResolveHooks{}
	cacheHooks = NoopCacheHooks{}
	httpHooks = NoopHTTPHooks{}
}
