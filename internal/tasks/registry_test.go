package tasks

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestScheduleRunsWork(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	done := make(chan struct{})
	registry.Schedule(context.Background(), "verify_1_2", 10*time.Millisecond, func(ctx context.Context) error {
		close(done)
		return nil
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task never ran")
	}
	registry.Cleanup()
	assert.False(t, registry.Pending("verify_1_2"))
}

func TestScheduleSameIDReplacesPending(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	var first, second atomic.Int32
	done := make(chan struct{})

	registry.Schedule(context.Background(), "group_mute_1", 50*time.Millisecond, func(ctx context.Context) error {
		first.Add(1)
		return nil
	})
	registry.Schedule(context.Background(), "group_mute_1", 10*time.Millisecond, func(ctx context.Context) error {
		second.Add(1)
		close(done)
		return nil
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("replacement task never ran")
	}
	time.Sleep(100 * time.Millisecond)
	registry.Cleanup()

	assert.Equal(t, int32(0), first.Load(), "replaced task must not run")
	assert.Equal(t, int32(1), second.Load())
}

func TestCancelStopsPendingTask(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	var ran atomic.Int32
	registry.Schedule(context.Background(), "user_mute_1_2", 50*time.Millisecond, func(ctx context.Context) error {
		ran.Add(1)
		return nil
	})

	assert.True(t, registry.Cancel("user_mute_1_2"))
	assert.False(t, registry.Cancel("user_mute_1_2"))

	time.Sleep(100 * time.Millisecond)
	registry.Cleanup()
	assert.Equal(t, int32(0), ran.Load())
}

func TestCleanupCancelsEverything(t *testing.T) {
	t.Parallel()

	registry := NewRegistry()
	var ran atomic.Int32
	for _, id := range []string{"a", "b", "c"} {
		registry.Schedule(context.Background(), id, time.Minute, func(ctx context.Context) error {
			ran.Add(1)
			return nil
		})
	}
	registry.Cleanup()
	assert.Equal(t, int32(0), ran.Load())
	assert.False(t, registry.Pending("a"))
}
