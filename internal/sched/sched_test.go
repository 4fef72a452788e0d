package sched

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEveryRunsAndStops(t *testing.T) {
	s := New(testLogger())
	ctx, cancel := context.WithCancel(context.Background())

	var runs atomic.Int32
	s.Every(ctx, "tick", 10*time.Millisecond, func(context.Context) {
		runs.Add(1)
	})

	assert.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	s.Wait()

	after := runs.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, runs.Load())
}

func TestEveryDynamicHonorsEnabledFlag(t *testing.T) {
	s := New(testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var enabled atomic.Bool
	var runs atomic.Int32
	s.EveryDynamic(ctx, "scan", func() (time.Duration, bool) {
		return 10 * time.Millisecond, enabled.Load()
	}, func(context.Context) {
		runs.Add(1)
	})

	time.Sleep(60 * time.Millisecond)
	assert.Zero(t, runs.Load())

	enabled.Store(true)
	assert.Eventually(t, func() bool { return runs.Load() >= 2 }, time.Second, 5*time.Millisecond)
}

func TestRunOnceRecoversPanic(t *testing.T) {
	s := New(testLogger())
	ctx, cancel := context.WithCancel(context.Background())

	var runs atomic.Int32
	s.Every(ctx, "flaky", 5*time.Millisecond, func(context.Context) {
		if runs.Add(1) == 1 {
			panic("boom")
		}
	})

	// The loop survives the first panic and keeps running.
	assert.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	s.Wait()
}
