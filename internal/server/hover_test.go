package server

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/brokerage/internal/logging"
)

func TestHoverTriggers_ForgetsFiredTriggers(t *testing.T) {
	h := newHoverTriggers(context.Background(), logging.NewNop())
	var calls atomic.Int32
	loader := func(context.Context) error {
		calls.Add(1)
		return nil
	}

	trigger := h.arm(hoverKey("s", "about"), loader, 10*time.Millisecond)
	assert.Equal(t, 1, h.len())

	trigger.Wait()
	assert.Equal(t, int32(1), calls.Load())
	require.Eventually(t, func() bool { return h.len() == 0 }, 3*time.Second, 20*time.Millisecond)
}

func TestHoverTriggers_RearmReplacesPending(t *testing.T) {
	h := newHoverTriggers(context.Background(), logging.NewNop())
	var calls atomic.Int32
	loader := func(context.Context) error {
		calls.Add(1)
		return nil
	}
	key := hoverKey("s", "contact")

	first := h.arm(key, loader, time.Hour)
	second := h.arm(key, loader, time.Hour)
	assert.False(t, first.Pending())
	assert.True(t, second.Pending())
	assert.Equal(t, 1, h.len())

	assert.True(t, h.cancel(key))
	assert.False(t, h.cancel(key))
	assert.Equal(t, 0, h.len())

	first.Wait()
	second.Wait()
	assert.Equal(t, int32(0), calls.Load())
}
