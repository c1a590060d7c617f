package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLockWrapper(t *testing.T) {
	locker := NewMemoryLocker()
	ctx := context.Background()

	first := NewLock(locker, "uid-alloc")
	acquired, err := first.Acquire(ctx, time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)
	require.True(t, first.IsHeld())

	// The same key is exclusive across wrapper instances.
	second := NewLock(locker, "uid-alloc")
	acquired, err = second.Acquire(ctx, time.Minute)
	require.NoError(t, err)
	require.False(t, acquired)
	require.False(t, second.IsHeld())

	require.NoError(t, first.Release(ctx))
	require.False(t, first.IsHeld())

	acquired, err = second.AcquireWithRetry(ctx, time.Minute, 3, time.Millisecond)
	require.NoError(t, err)
	require.True(t, acquired)
	require.True(t, second.IsHeld())
}

func TestLockWrapperReleaseWhenNotHeld(t *testing.T) {
	l := NewLock(NewMemoryLocker(), "uid-alloc")
	require.NoError(t, l.Release(context.Background()))
}

func TestLockWrapperDistinctKeys(t *testing.T) {
	locker := NewMemoryLocker()
	ctx := context.Background()

	a := NewLock(locker, "uid-alloc")
	b := NewLock(locker, "other")

	acquired, err := a.Acquire(ctx, time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)

	acquired, err = b.Acquire(ctx, time.Minute)
	require.NoError(t, err)
	require.True(t, acquired, "locks on different keys are independent")
}
