package providers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
)

// CacheObserver is notified about exchange cache activity, e.g. for metrics.
type CacheObserver interface {
	CacheHit(system string)
	CacheMiss(system string)
}

type cacheKey struct {
	system string
	key    string
}

// entry is a single-assignment slot. done is closed once value/err are final.
type entry struct {
	done  chan struct{}
	value any
	err   error
}

// Context is the request-scoped state shared by every provider in one
// verification batch.
//
// It memoizes expensive external exchanges (OAuth code → token, token
// introspection, stake lookups) so that each (system, key) pair is fetched at
// most once per batch, including under concurrent first access. Failures are
// memoized too. A Context must not outlive its batch.
type Context struct {
	mu       sync.Mutex
	entries  map[cacheKey]*entry
	observer CacheObserver
}

// ContextOption configures a Context.
type ContextOption func(*Context)

// WithCacheObserver reports hits and misses to o.
func WithCacheObserver(o CacheObserver) ContextOption {
	return func(c *Context) {
		c.observer = o
	}
}

// NewContext creates an empty batch context. Only the verification service
// should call this; providers receive the Context they are given.
func NewContext(opts ...ContextOption) *Context {
	c := &Context{entries: make(map[cacheKey]*entry)}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Len returns the number of cached or in-flight entries.
func (c *Context) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// slot returns the entry for k and whether the caller owns it and must fill it.
func (c *Context) slot(k cacheKey) (*entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[k]; ok {
		return e, false
	}
	e := &entry{done: make(chan struct{})}
	c.entries[k] = e
	return e, true
}

func (c *Context) do(ctx context.Context, system, key string, fetch func(context.Context) (any, error)) (any, error) {
	e, owner := c.slot(cacheKey{system: system, key: key})
	if owner {
		c.observe(system, false)
		fill(ctx, e, fetch)
		return e.value, e.err
	}

	c.observe(system, true)
	select {
	case <-e.done:
		return e.value, e.err
	case <-ctx.Done():
		// The entry stays in flight for everyone else.
		return nil, ctx.Err()
	}
}

// fill runs fetch and publishes its outcome. A panic becomes the cached error so
// waiters are never left blocked.
func fill(ctx context.Context, e *entry, fetch func(context.Context) (any, error)) {
	defer close(e.done)
	defer func() {
		if r := recover(); r != nil {
			e.value = nil
			e.err = fmt.Errorf("exchange panicked: %v", r)
		}
	}()
	e.value, e.err = fetch(ctx)
}

func (c *Context) observe(system string, hit bool) {
	if c.observer == nil {
		return
	}
	if hit {
		c.observer.CacheHit(system)
	} else {
		c.observer.CacheMiss(system)
	}
}

// ExchangeOrFetch returns the memoized outcome for (system, key), running fetch
// only if no caller has done so yet in this Context. Concurrent callers for the
// same key block until the first one finishes and then observe the same value
// or the same error.
//
// fetch runs with the first caller's ctx. A waiter whose own ctx ends first gets
// ctx.Err() and the entry is left untouched.
func ExchangeOrFetch[T any](ctx context.Context, pc *Context, system, key string, fetch func(context.Context) (T, error)) (T, error) {
	var zero T
	if pc == nil {
		return fetch(ctx)
	}
	v, err := pc.do(ctx, system, key, func(ctx context.Context) (any, error) {
		return fetch(ctx)
	})
	if err != nil {
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		return zero, NewProviderError(ErrorInternal, system, fmt.Sprintf("cached value has type %T", v), nil)
	}
	return typed, nil
}

// HashKey derives a cache key from secret material so raw codes and tokens are
// never used as map keys.
func HashKey(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
