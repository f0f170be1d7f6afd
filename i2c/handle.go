package i2c

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"
)

// Handle grants exclusive ownership of a bus for the duration of a
// multi-step transaction (e.g. trigger, poll, read). Drivers sharing a bus
// must run their transactions through the same Handle. Waiters are served in
// arrival order.
type Handle struct {
	sem *semaphore.Weighted
}

func NewHandle() *Handle {
	return &Handle{sem: semaphore.NewWeighted(1)}
}

// Acquire blocks until the bus is free or ctx is done. A ctx that is already
// done never acquires.
func (h *Handle) Acquire(ctx context.Context) error {
	return h.sem.Acquire(ctx, 1)
}

// Release panics when the bus is not held.
func (h *Handle) Release() {
	h.sem.Release(1)
}

// Held reports whether some transaction currently owns the bus.
func (h *Handle) Held() bool {
	if h.sem.TryAcquire(1) {
		h.sem.Release(1)
		return false
	}
	return true
}

// Do runs fn as one transaction. The bus is released on every exit path.
func (h *Handle) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := h.Acquire(ctx); err != nil {
		return fmt.Errorf("could not acquire bus: %w", err)
	}
	defer h.Release()
	return fn(ctx)
}
