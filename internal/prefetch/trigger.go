// Package prefetch warms the chunk cache ahead of navigation. It offers a
// timer-gated trigger for hover intent, an idle-time batch prefetcher for
// links on the current page, and an activity tracker that tells the batch
// prefetcher when the server has no requests in flight.
//
// Prefetching is best effort: loader errors and panics are logged at debug
// level and never reach the caller.
package prefetch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/conneroisu/brokerage/internal/logging"
)

// LoaderFunc loads something into a cache. Its result is only used for its
// side effect; prefetchers only look at whether it failed.
type LoaderFunc func(ctx context.Context) error

// Option configures a Trigger or Batch.
type Option func(*options)

type options struct {
	ctx    context.Context
	logger logging.Logger
}

// WithContext sets the context loaders run under. Defaults to context.Background.
func WithContext(ctx context.Context) Option {
	return func(o *options) { o.ctx = ctx }
}

// WithLogger sets the logger used to report swallowed failures.
func WithLogger(logger logging.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func buildOptions(opts []Option) options {
	o := options{ctx: context.Background(), logger: logging.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.ctx == nil {
		o.ctx = context.Background()
	}
	if o.logger == nil {
		o.logger = logging.NewNop()
	}

	return o
}

// Trigger runs a loader once a delay has passed since Start, unless Cancel
// is called first.
//
// A Trigger tracks a single pending timer. Calling Start again while a timer
// is pending does not stop the earlier one; callers that re-arm must Cancel
// first.
type Trigger struct {
	loader LoaderFunc
	delay  time.Duration
	opts   options

	mu    sync.Mutex
	timer *time.Timer

	fired    atomic.Int64
	inflight sync.WaitGroup
}

// Arm returns a Trigger for loader. Nothing is scheduled until Start.
// A negative delay is treated as zero.
func Arm(loader LoaderFunc, delay time.Duration, opts ...Option) *Trigger {
	if delay < 0 {
		delay = 0
	}

	return &Trigger{
		loader: loader,
		delay:  delay,
		opts:   buildOptions(opts),
	}
}

// Delay returns the configured delay.
func (t *Trigger) Delay() time.Duration {
	return t.delay
}

// Start schedules the loader to run after the delay, measured from now.
func (t *Trigger) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()

	// Counted from scheduling so Wait never races a timer that fires late.
	t.inflight.Add(1)

	var timer *time.Timer
	timer = time.AfterFunc(t.delay, func() {
		t.mu.Lock()
		if t.timer == timer {
			t.timer = nil
		}
		t.mu.Unlock()

		defer t.inflight.Done()
		t.fired.Add(1)
		run(t.opts, t.loader)
	})
	t.timer = timer
}

// Cancel stops the pending timer, if any. It does nothing once the loader
// has started and is safe to call repeatedly.
func (t *Trigger) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.timer != nil {
		if t.timer.Stop() {
			t.inflight.Done()
		}
		t.timer = nil
	}
}

// Pending reports whether a timer is waiting to fire.
func (t *Trigger) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.timer != nil
}

// Fired returns how many times the loader has been invoked.
func (t *Trigger) Fired() int {
	return int(t.fired.Load())
}

// Wait blocks until every scheduled invocation has returned or been
// cancelled.
func (t *Trigger) Wait() {
	t.inflight.Wait()
}

// run invokes loader behind a recover boundary and swallows its outcome.
func run(o options, loader LoaderFunc) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Debug(o.ctx, "prefetch loader panicked", "panic", fmt.Sprint(r))
		}
	}()

	if loader == nil {
		return
	}
	if err := loader(o.ctx); err != nil {
		o.logger.Debug(o.ctx, "prefetch failed", "error", err.Error())
	}
}
