package wave

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSynchronizerRange(t *testing.T) {
	_, err := NewSynchronizer(0)
	assert.ErrorIs(t, err, ErrMaxInFlight)

	_, err = NewSynchronizer(MaxBuffers + 1)
	assert.ErrorIs(t, err, ErrMaxInFlight)

	s, err := NewSynchronizer(MaxBuffers)
	require.NoError(t, err)
	assert.Equal(t, MaxBuffers, s.Capacity())
	assert.Equal(t, 0, s.InFlight())
}

func TestSynchronizerSlots(t *testing.T) {
	s, err := NewSynchronizer(3)
	require.NoError(t, err)
	ctx := context.Background()

	seen := map[int]bool{}
	for want := range 3 {
		slot, err := s.Acquire(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, slot)
		seen[slot] = true
	}
	assert.Len(t, seen, 3)
	assert.Equal(t, 3, s.InFlight())

	s.Release(1)
	slot, err := s.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, slot)
}

func TestSynchronizerBlocksAtCapacity(t *testing.T) {
	s, err := NewSynchronizer(1)
	require.NoError(t, err)

	slot, err := s.Acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = s.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, s.InFlight())

	acquired := make(chan int)
	go func() {
		next, err := s.Acquire(context.Background())
		if err == nil {
			acquired <- next
		}
	}()

	select {
	case <-acquired:
		t.Fatal("acquired a slot while none were free")
	case <-time.After(20 * time.Millisecond):
	}

	s.Release(slot)
	select {
	case next := <-acquired:
		assert.Equal(t, slot, next)
	case <-time.After(time.Second):
		t.Fatal("acquire did not unblock after release")
	}
}

func TestSynchronizerReleaseUnheld(t *testing.T) {
	s, err := NewSynchronizer(2)
	require.NoError(t, err)

	assert.Panics(t, func() { s.Release(0) })
	assert.Panics(t, func() { s.Release(5) })

	slot, err := s.Acquire(context.Background())
	require.NoError(t, err)
	s.Release(slot)
	assert.Panics(t, func() { s.Release(slot) })
}
