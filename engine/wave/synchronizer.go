package wave

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"
)

type synchronizer struct {
	mu   *sync.Mutex
	sem  *semaphore.Weighted
	free []int
	held []bool
}

// Synchronizer bounds the number of frames whose GPU work is outstanding. Each acquired slot
// indexes the per-slot resources of a frame.
type Synchronizer interface {
	// Acquire blocks until a slot is free or ctx is done.
	//
	// Parameters:
	//   - ctx: the context bounding the wait
	//
	// Returns:
	//   - int: the acquired slot index in [0, Capacity())
	//   - error: the context error if ctx ended first
	Acquire(ctx context.Context) (int, error)

	// Release returns a slot after its GPU work is confirmed complete.
	// It panics if the slot is not held.
	//
	// Parameters:
	//   - slot: a slot returned by Acquire
	Release(slot int)

	// Capacity returns the number of slots.
	Capacity() int

	// InFlight returns the number of held slots.
	InFlight() int
}

var _ Synchronizer = &synchronizer{}

// NewSynchronizer creates a synchronizer with capacity slots. The first Acquire returns slot 0.
//
// Parameters:
//   - capacity: the slot count, in [1, MaxBuffers]
//
// Returns:
//   - Synchronizer: the synchronizer
//   - error: ErrMaxInFlight if capacity is out of range
func NewSynchronizer(capacity int) (Synchronizer, error) {
	if capacity < 1 || capacity > MaxBuffers {
		return nil, fmt.Errorf("%w: %d, want 1..%d", ErrMaxInFlight, capacity, MaxBuffers)
	}
	s := &synchronizer{
		mu:   &sync.Mutex{},
		sem:  semaphore.NewWeighted(int64(capacity)),
		free: make([]int, capacity),
		held: make([]bool, capacity),
	}
	// popped from the back
	for i := range s.free {
		s.free[i] = capacity - 1 - i
	}
	return s, nil
}

func (s *synchronizer) Acquire(ctx context.Context) (int, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return -1, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	slot := s.free[len(s.free)-1]
	s.free = s.free[:len(s.free)-1]
	s.held[slot] = true
	return slot, nil
}

func (s *synchronizer) Release(slot int) {
	s.mu.Lock()
	if slot < 0 || slot >= len(s.held) || !s.held[slot] {
		s.mu.Unlock()
		panic(fmt.Sprintf("wave: release of slot %d which is not held", slot))
	}
	s.held[slot] = false
	s.free = append(s.free, slot)
	s.mu.Unlock()

	s.sem.Release(1)
}

func (s *synchronizer) Capacity() int {
	return len(s.held)
}

func (s *synchronizer) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.held) - len(s.free)
}
