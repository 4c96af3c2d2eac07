package prefetch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countingLoader(counter *atomic.Int32, err error) LoaderFunc {
	return func(ctx context.Context) error {
		counter.Add(1)
		return err
	}
}

func TestTrigger_FiresAfterDelay(t *testing.T) {
	var calls atomic.Int32
	trigger := Arm(countingLoader(&calls, nil), 20*time.Millisecond)

	trigger.Start()
	assert.True(t, trigger.Pending())
	assert.Equal(t, int32(0), calls.Load())

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	trigger.Wait()
	assert.False(t, trigger.Pending())
	assert.Equal(t, 1, trigger.Fired())
}

func TestTrigger_CancelBeforeDelay(t *testing.T) {
	var calls atomic.Int32
	delay := 30 * time.Millisecond
	trigger := Arm(countingLoader(&calls, nil), delay)

	trigger.Start()
	trigger.Cancel()
	assert.False(t, trigger.Pending())

	time.Sleep(delay + 50*time.Millisecond)
	assert.Equal(t, int32(0), calls.Load())
	assert.Equal(t, 0, trigger.Fired())
}

func TestTrigger_CancelIsIdempotent(t *testing.T) {
	trigger := Arm(func(ctx context.Context) error { return nil }, time.Hour)

	assert.NotPanics(t, func() {
		trigger.Cancel()
		trigger.Start()
		trigger.Cancel()
		trigger.Cancel()
	})
	assert.False(t, trigger.Pending())
}

func TestTrigger_CancelAfterFireIsNoop(t *testing.T) {
	var calls atomic.Int32
	trigger := Arm(countingLoader(&calls, nil), time.Millisecond)

	trigger.Start()
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	trigger.Cancel()
	assert.Equal(t, int32(1), calls.Load())
}

func TestTrigger_SwallowsFailures(t *testing.T) {
	var calls atomic.Int32
	failing := Arm(countingLoader(&calls, errors.New("network down")), time.Millisecond)
	panicking := Arm(func(ctx context.Context) error {
		calls.Add(1)
		panic("loader exploded")
	}, time.Millisecond)

	assert.NotPanics(t, func() {
		failing.Start()
		panicking.Start()
		require.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, time.Millisecond)
		failing.Wait()
		panicking.Wait()
	})
}

func TestTrigger_WaitCoversScheduledRuns(t *testing.T) {
	var calls atomic.Int32
	trigger := Arm(countingLoader(&calls, nil), 20*time.Millisecond)

	trigger.Start()
	trigger.Wait()
	assert.Equal(t, int32(1), calls.Load())

	// A cancelled timer releases Wait without running.
	cancelled := Arm(countingLoader(&calls, nil), time.Hour)
	cancelled.Start()
	cancelled.Cancel()

	done := make(chan struct{})
	go func() {
		cancelled.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait blocked on a cancelled timer")
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestTrigger_WaitWhileTimersFire(t *testing.T) {
	var calls atomic.Int32
	trigger := Arm(countingLoader(&calls, nil), 0)

	for range 20 {
		trigger.Start()
		trigger.Wait()
	}
	assert.Equal(t, int32(20), calls.Load())
	assert.Equal(t, 20, trigger.Fired())
}

func TestTrigger_RestartWithoutCancelKeepsEarlierTimer(t *testing.T) {
	var calls atomic.Int32
	trigger := Arm(countingLoader(&calls, nil), 10*time.Millisecond)

	trigger.Start()
	trigger.Start()

	require.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, time.Millisecond)
}

func TestBatch_EmptyListInvokesNothing(t *testing.T) {
	batch := NewBatch(nil)

	assert.NotPanics(t, func() {
		batch.Schedule(context.Background(), nil, Options{Immediate: true})
		batch.Schedule(context.Background(), []LoaderFunc{}, Options{})
	})
	batch.Wait()
}

func TestBatch_ImmediateWaitsForAll(t *testing.T) {
	var calls atomic.Int32
	loaders := []LoaderFunc{
		countingLoader(&calls, nil),
		countingLoader(&calls, errors.New("failed")),
		func(ctx context.Context) error {
			calls.Add(1)
			panic("boom")
		},
		countingLoader(&calls, nil),
	}

	batch := NewBatch(nil)
	assert.NotPanics(t, func() {
		batch.Schedule(context.Background(), loaders, Options{Immediate: true})
	})
	assert.Equal(t, int32(4), calls.Load())
}

func TestBatch_FallbackDelayWithoutNotifier(t *testing.T) {
	var calls atomic.Int32
	batch := NewBatch(nil)

	start := time.Now()
	batch.Schedule(context.Background(), []LoaderFunc{countingLoader(&calls, nil)}, Options{})
	assert.Equal(t, int32(0), calls.Load())

	batch.Wait()
	assert.Equal(t, int32(1), calls.Load())
	assert.GreaterOrEqual(t, time.Since(start), FallbackDelay)
}

func TestBatch_RunsWhenIdle(t *testing.T) {
	var calls atomic.Int32
	tracker := NewActivityTracker()
	batch := NewBatch(tracker)

	end := tracker.Begin()
	batch.Schedule(context.Background(), []LoaderFunc{
		countingLoader(&calls, nil),
		countingLoader(&calls, nil),
	}, Options{Timeout: time.Hour})

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), calls.Load(), "batch must wait while a request is in flight")

	end()
	batch.Wait()
	assert.Equal(t, int32(2), calls.Load())
}

func TestBatch_RunsAfterIdleTimeout(t *testing.T) {
	var calls atomic.Int32
	tracker := NewActivityTracker()
	batch := NewBatch(tracker)

	end := tracker.Begin()
	defer end()

	batch.Schedule(context.Background(), []LoaderFunc{countingLoader(&calls, nil)}, Options{Timeout: 20 * time.Millisecond})
	batch.Wait()
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 1, tracker.InFlight())
}

func TestActivityTracker_FiresOnce(t *testing.T) {
	tracker := NewActivityTracker()
	var calls atomic.Int32

	end := tracker.Begin()
	tracker.RequestIdle(func() { calls.Add(1) }, 10*time.Millisecond)

	time.Sleep(30 * time.Millisecond)
	end()
	end()
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, 0, tracker.InFlight())
}

func TestActivityTracker_IdleRunsRightAway(t *testing.T) {
	tracker := NewActivityTracker()
	done := make(chan struct{})

	tracker.RequestIdle(func() { close(done) }, 0)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("idle callback did not run")
	}
}
