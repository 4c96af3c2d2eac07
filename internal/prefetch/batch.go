package prefetch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sourcegraph/conc"
)

// FallbackDelay is how long a batch waits when no IdleNotifier is available.
const FallbackDelay = 200 * time.Millisecond

// IdleNotifier runs fn once the host is idle, or once timeout has elapsed,
// whichever happens first. A zero timeout waits for idle only.
type IdleNotifier interface {
	RequestIdle(fn func(), timeout time.Duration)
}

// Options controls a single Schedule call.
type Options struct {
	// Immediate runs the batch now and blocks until every loader settles.
	Immediate bool
	// Timeout bounds the wait for idle.
	Timeout time.Duration
}

// Batch runs groups of loaders concurrently at idle time. There is no limit
// on fan-out and no ordering between the loaders of a batch.
type Batch struct {
	notifier IdleNotifier
	opts     options

	pending sync.WaitGroup
}

// NewBatch returns a Batch. A nil notifier makes every deferred batch run
// after FallbackDelay.
func NewBatch(notifier IdleNotifier, opts ...Option) *Batch {
	return &Batch{
		notifier: notifier,
		opts:     buildOptions(opts),
	}
}

// Schedule runs loaders according to o. Failures are logged and dropped.
// The loaders run under ctx, which should outlive the batch; a request
// context is usually the wrong choice for deferred batches.
func (b *Batch) Schedule(ctx context.Context, loaders []LoaderFunc, o Options) {
	if len(loaders) == 0 {
		return
	}
	if ctx == nil {
		ctx = b.opts.ctx
	}

	batch := make([]LoaderFunc, len(loaders))
	copy(batch, loaders)

	if o.Immediate {
		b.runAll(ctx, batch)
		return
	}

	b.pending.Add(1)
	fire := func() {
		defer b.pending.Done()
		b.runAll(ctx, batch)
	}

	if b.notifier != nil {
		b.notifier.RequestIdle(fire, o.Timeout)
		return
	}

	time.AfterFunc(FallbackDelay, fire)
}

// Wait blocks until every deferred batch scheduled so far has settled.
func (b *Batch) Wait() {
	b.pending.Wait()
}

func (b *Batch) runAll(ctx context.Context, loaders []LoaderFunc) {
	var wg conc.WaitGroup
	for _, loader := range loaders {
		if loader == nil {
			continue
		}
		wg.Go(func() {
			if err := loader(ctx); err != nil {
				b.opts.logger.Debug(ctx, "prefetch failed", "error", err.Error())
			}
		})
	}

	if recovered := wg.WaitAndRecover(); recovered != nil {
		b.opts.logger.Debug(ctx, "prefetch loader panicked", "panic", fmt.Sprint(recovered.Value))
	}
}
