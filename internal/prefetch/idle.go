package prefetch

import (
	"net/http"
	"sync"
	"time"
)

// ActivityTracker counts in-flight HTTP requests and implements IdleNotifier:
// the server is idle when no request is being served.
type ActivityTracker struct {
	mu       sync.Mutex
	inflight int
	waiters  map[*idleWaiter]struct{}
}

type idleWaiter struct {
	once  sync.Once
	fn    func()
	timer *time.Timer
}

func (w *idleWaiter) fire() {
	w.once.Do(func() {
		if w.timer != nil {
			w.timer.Stop()
		}
		w.fn()
	})
}

// NewActivityTracker returns a tracker with nothing in flight.
func NewActivityTracker() *ActivityTracker {
	return &ActivityTracker{
		waiters: make(map[*idleWaiter]struct{}),
	}
}

// Begin marks one unit of work as started. The returned func marks it done
// and must be called exactly once.
func (a *ActivityTracker) Begin() (end func()) {
	a.mu.Lock()
	a.inflight++
	a.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(a.end)
	}
}

func (a *ActivityTracker) end() {
	a.mu.Lock()
	a.inflight--
	if a.inflight > 0 {
		a.mu.Unlock()
		return
	}

	ready := make([]*idleWaiter, 0, len(a.waiters))
	for w := range a.waiters {
		ready = append(ready, w)
	}
	clear(a.waiters)
	a.mu.Unlock()

	for _, w := range ready {
		go w.fire()
	}
}

// InFlight returns the number of requests currently being served.
func (a *ActivityTracker) InFlight() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.inflight
}

// RequestIdle implements IdleNotifier. fn runs on its own goroutine exactly
// once: right away when nothing is in flight, otherwise when the last
// in-flight request finishes or timeout elapses.
func (a *ActivityTracker) RequestIdle(fn func(), timeout time.Duration) {
	w := &idleWaiter{fn: fn}

	a.mu.Lock()
	if a.inflight == 0 {
		a.mu.Unlock()
		go w.fire()
		return
	}

	a.waiters[w] = struct{}{}
	if timeout > 0 {
		w.timer = time.AfterFunc(timeout, func() {
			a.mu.Lock()
			delete(a.waiters, w)
			a.mu.Unlock()
			w.fire()
		})
	}
	a.mu.Unlock()
}

// Middleware counts every request passing through next.
func (a *ActivityTracker) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		end := a.Begin()
		defer end()

		next.ServeHTTP(w, r)
	})
}
