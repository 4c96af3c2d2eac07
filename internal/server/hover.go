package server

import (
	"context"
	"sync"
	"time"

	"github.com/conneroisu/brokerage/internal/logging"
	"github.com/conneroisu/brokerage/internal/prefetch"
)

// hoverTriggers holds the pending hover prefetch of each session and chunk.
// A pointer resting on a link arms one; leaving the link cancels it.
type hoverTriggers struct {
	ctx    context.Context
	logger logging.Logger

	mu       sync.Mutex
	triggers map[string]*prefetch.Trigger
}

func newHoverTriggers(ctx context.Context, logger logging.Logger) *hoverTriggers {
	return &hoverTriggers{
		ctx:      ctx,
		logger:   logger,
		triggers: make(map[string]*prefetch.Trigger),
	}
}

func hoverKey(sessionID, chunk string) string {
	return sessionID + "/" + chunk
}

// arm starts a trigger for key, replacing any still pending one.
func (h *hoverTriggers) arm(key string, loader prefetch.LoaderFunc, delay time.Duration) *prefetch.Trigger {
	t := prefetch.Arm(loader, delay,
		prefetch.WithContext(h.ctx),
		prefetch.WithLogger(h.logger))

	h.mu.Lock()
	if old, ok := h.triggers[key]; ok {
		old.Cancel()
	}
	h.triggers[key] = t
	t.Start()
	h.mu.Unlock()

	h.forgetWhenFired(key, t, delay+time.Second)

	return t
}

// forgetWhenFired drops t from the table once its timer is no longer
// pending, checking again later if it has not fired yet.
func (h *hoverTriggers) forgetWhenFired(key string, t *prefetch.Trigger, after time.Duration) {
	time.AfterFunc(after, func() {
		h.mu.Lock()
		defer h.mu.Unlock()

		if h.triggers[key] != t {
			return
		}
		if t.Pending() {
			h.forgetWhenFired(key, t, time.Second)
			return
		}
		delete(h.triggers, key)
	})
}

// cancel stops the pending trigger for key and reports whether one was
// still waiting.
func (h *hoverTriggers) cancel(key string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	t, ok := h.triggers[key]
	if !ok {
		return false
	}
	pending := t.Pending()
	t.Cancel()
	delete(h.triggers, key)

	return pending
}

func (h *hoverTriggers) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.triggers)
}

func (h *hoverTriggers) cancelAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for key, t := range h.triggers {
		t.Cancel()
		delete(h.triggers, key)
	}
}
