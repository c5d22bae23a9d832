package renderer

import (
	"CityBuilder/internal/logger"
	"sync"

	"go.uber.org/zap"
)

// disposer is a scene resource pointer with dispose events.
type disposer interface {
	comparable
	OnDispose(fn func())
	Disposed() bool
}

type CacheStats struct {
	Uploads  int
	Hits     int
	Live     int
	Released int
}

// handleCache maps scene resources to GPU handles. Dispose listeners may fire
// on any goroutine, so released handles are queued and only freed when the
// render thread calls Drain.
type handleCache[K disposer, V any] struct {
	name    string
	mu      sync.Mutex
	handles map[K]V
	pending []V
	stats   CacheStats
}

func newHandleCache[K disposer, V any](name string) *handleCache[K, V] {
	return &handleCache[K, V]{name: name, handles: make(map[K]V)}
}

func (c *handleCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.handles[key]
	if ok {
		c.stats.Hits++
	}
	return v, ok
}

// Put stores the handle and frees it when key is disposed. Putting a key
// that is already disposed queues the handle straight away.
func (c *handleCache[K, V]) Put(key K, v V) {
	c.mu.Lock()
	c.handles[key] = v
	c.stats.Uploads++
	c.mu.Unlock()
	key.OnDispose(func() { c.release(key) })
}

// Replace swaps the handle of key, queueing the old one for deletion.
func (c *handleCache[K, V]) Replace(key K, v V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.handles[key]; ok {
		c.pending = append(c.pending, old)
	}
	c.handles[key] = v
	c.stats.Uploads++
}

func (c *handleCache[K, V]) release(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.handles[key]
	if !ok {
		return
	}
	delete(c.handles, key)
	c.pending = append(c.pending, v)
	c.stats.Released++
}

// Drain returns the handles waiting to be freed and clears the queue.
func (c *handleCache[K, V]) Drain() []V {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.pending
	c.pending = nil
	if len(out) > 0 {
		logger.Log.Debug("GPU handles released", zap.String("cache", c.name), zap.Int("count", len(out)))
	}
	return out
}

// All removes and returns every live and pending handle.
func (c *handleCache[K, V]) All() []V {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.pending
	for k, v := range c.handles {
		out = append(out, v)
		delete(c.handles, k)
	}
	c.pending = nil
	return out
}

func (c *handleCache[K, V]) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Live = len(c.handles)
	return s
}
