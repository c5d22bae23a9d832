package scene

import (
	"sync"
	"sync/atomic"
)

var nextID atomic.Uint64

func newID() uint64 {
	return nextID.Add(1)
}

// disposable tracks the disposed state of a GPU-backed resource and the
// listeners a render backend registers to free its own objects.
type disposable struct {
	mu        sync.Mutex
	disposed  bool
	listeners []func()
}

// OnDispose registers fn to run once when the resource is disposed.
// Registering on an already disposed resource runs fn immediately.
func (d *disposable) OnDispose(fn func()) {
	d.mu.Lock()
	if d.disposed {
		d.mu.Unlock()
		fn()
		return
	}
	d.listeners = append(d.listeners, fn)
	d.mu.Unlock()
}

// Disposed reports whether Dispose has been called.
func (d *disposable) Disposed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.disposed
}

func (d *disposable) dispose() bool {
	d.mu.Lock()
	if d.disposed {
		d.mu.Unlock()
		return false
	}
	d.disposed = true
	listeners := d.listeners
	d.listeners = nil
	d.mu.Unlock()

	for _, fn := range listeners {
		fn()
	}
	return true
}
