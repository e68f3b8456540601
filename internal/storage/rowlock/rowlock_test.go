package rowlock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_AcquireSortsAndDedupes(t *testing.T) {
	m := New()
	set, err := m.Acquire(context.Background(), "carol", "alice", "bob", "alice")
	require.NoError(t, err)
	defer set.Release()

	assert.Equal(t, []string{"alice", "bob", "carol"}, set.Keys())
	assert.True(t, set.Contains("bob"))
	assert.False(t, set.Contains("dave"))
	assert.Equal(t, 3, m.Len())
}

func TestManager_ExclusiveUntilRelease(t *testing.T) {
	m := New()
	first, err := m.Acquire(context.Background(), "alice")
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		second, err := m.Acquire(context.Background(), "alice")
		if err == nil {
			close(acquired)
			second.Release()
		}
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire must wait for release")
	case <-time.After(50 * time.Millisecond):
	}

	first.Release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second acquire did not proceed after release")
	}
}

func TestManager_ContextCancelReleasesPartialSet(t *testing.T) {
	m := New()
	blocker, err := m.Acquire(context.Background(), "bob")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = m.Acquire(ctx, "alice", "bob")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// alice must have been released by the failed acquire
	other, err := m.Acquire(context.Background(), "alice")
	require.NoError(t, err)
	other.Release()
	blocker.Release()

	assert.Equal(t, 0, m.Len())
}

func TestManager_OppositeOrderNoDeadlock(t *testing.T) {
	m := New()
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s, err := m.Acquire(context.Background(), "alice", "bob")
			if err == nil {
				s.Release()
			}
		}()
		go func() {
			defer wg.Done()
			s, err := m.Acquire(context.Background(), "bob", "alice")
			if err == nil {
				s.Release()
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("deadlock between opposite-order acquisitions")
	}
	assert.Equal(t, 0, m.Len())
}

func TestSet_ReleaseIdempotent(t *testing.T) {
	m := New()
	s, err := m.Acquire(context.Background(), "alice")
	require.NoError(t, err)
	s.Release()
	s.Release()
	assert.Equal(t, 0, m.Len())
}
