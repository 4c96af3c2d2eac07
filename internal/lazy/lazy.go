// Package lazy defers loading a templ component until it is first rendered.
//
// A wrapped component shows its fallback while the loader runs, then the
// loaded component on every later render. The loader runs at most once per
// wrapper; a failed load stays failed and is reported by Render so the
// caller's error page can take over.
package lazy

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/a-h/templ"
)

// State is the load state of a Component.
type State int32

const (
	NotStarted State = iota
	Loading
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not-started"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// LoaderFunc produces the real component.
type LoaderFunc func(ctx context.Context) (templ.Component, error)

// Component is a templ.Component whose content is loaded on first render.
type Component struct {
	loader   LoaderFunc
	fallback templ.Component

	once  sync.Once
	done  chan struct{}
	state atomic.Int32
	loads atomic.Int32

	// value and err are written once before done is closed.
	value templ.Component
	err   error
}

var _ templ.Component = (*Component)(nil)

// Wrap returns a Component that loads through loader and renders fallback
// until the load settles. fallback may be nil.
func Wrap(loader LoaderFunc, fallback templ.Component) *Component {
	return &Component{
		loader:   loader,
		fallback: fallback,
		done:     make(chan struct{}),
	}
}

// Render writes the loaded component, or the fallback while loading. The
// render that starts the load always writes the fallback. Once the load has
// failed Render returns the load error.
func (c *Component) Render(ctx context.Context, w io.Writer) error {
	if c.start(ctx) {
		return c.renderFallback(ctx, w)
	}

	switch c.State() {
	case Ready:
		return c.value.Render(ctx, w)
	case Failed:
		return fmt.Errorf("lazy component: %w", c.err)
	default:
		return c.renderFallback(ctx, w)
	}
}

// Load starts loading without rendering anything. It is a no-op after the
// first call to Load or Render.
func (c *Component) Load(ctx context.Context) {
	c.start(ctx)
}

// Wait starts the load if needed and blocks until it settles or ctx is done.
// It returns the resulting state and, for Failed, the load error.
func (c *Component) Wait(ctx context.Context) (State, error) {
	c.start(ctx)

	select {
	case <-c.done:
	case <-ctx.Done():
		return c.State(), ctx.Err()
	}

	if c.State() == Failed {
		return Failed, c.err
	}

	return Ready, nil
}

// State reports the current load state.
func (c *Component) State() State {
	return State(c.state.Load())
}

// Loads reports how many times the loader has been invoked: 0 or 1.
func (c *Component) Loads() int {
	return int(c.loads.Load())
}

// start kicks off the load exactly once and reports whether this call did.
// The load is detached from ctx's cancellation so an abandoned request does
// not leave the wrapper failed for everyone else.
func (c *Component) start(ctx context.Context) bool {
	started := false
	c.once.Do(func() {
		started = true
		c.state.Store(int32(Loading))
		c.loads.Add(1)

		loadCtx := context.WithoutCancel(ctx)
		go c.load(loadCtx)
	})

	return started
}

func (c *Component) load(ctx context.Context) {
	defer close(c.done)
	defer func() {
		if r := recover(); r != nil {
			c.err = fmt.Errorf("loader panicked: %v", r)
			c.state.Store(int32(Failed))
		}
	}()

	if c.loader == nil {
		c.err = fmt.Errorf("no loader")
		c.state.Store(int32(Failed))
		return
	}

	value, err := c.loader(ctx)
	switch {
	case err != nil:
		c.err = err
		c.state.Store(int32(Failed))
	case value == nil:
		c.err = fmt.Errorf("loader returned no component")
		c.state.Store(int32(Failed))
	default:
		c.value = value
		c.state.Store(int32(Ready))
	}
}

func (c *Component) renderFallback(ctx context.Context, w io.Writer) error {
	if c.fallback == nil {
		return nil
	}

	return c.fallback.Render(ctx, w)
}
