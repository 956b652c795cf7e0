package scheduler

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Factory loads the scheduler document and builds a Scheduler around it.
type Factory func(ctx context.Context) (*Scheduler, error)

// Holder owns the process-wide Scheduler. The first Get builds it; concurrent
// callers share that one initialization. A failed initialization is not
// remembered, so the next Get tries again.
type Holder struct {
	factory       Factory
	intervalHours int

	group singleflight.Group
	mu    sync.RWMutex
	sched *Scheduler
}

func NewHolder(factory Factory, intervalHours int) *Holder {
	return &Holder{factory: factory, intervalHours: intervalHours}
}

const initKey = "scheduler"

// Get returns the scheduler, initializing it on first use. Cancelling ctx
// abandons this caller's wait but not the initialization itself.
func (h *Holder) Get(ctx context.Context) (*Scheduler, error) {
	if s, ok := h.Peek(); ok {
		return s, nil
	}
	ch := h.group.DoChan(initKey, func() (any, error) {
		if s, ok := h.Peek(); ok {
			return s, nil
		}
		s, err := h.factory(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		h.mu.Lock()
		h.sched = s
		h.mu.Unlock()
		return s, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Scheduler), nil
	}
}

// Peek returns the scheduler if it has been initialized. It never blocks on
// initialization.
func (h *Holder) Peek() (*Scheduler, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sched, h.sched != nil
}

// StatusOrDefault reports the live status, or the empty default state when
// the scheduler has not been loaded yet.
func (h *Holder) StatusOrDefault() StatusView {
	if s, ok := h.Peek(); ok {
		return s.Status()
	}
	return DefaultStatus(h.intervalHours)
}

// Wait blocks until the scheduler's background runs finish.
func (h *Holder) Wait() {
	if s, ok := h.Peek(); ok {
		s.Wait()
	}
}

// Reset drops the cached scheduler. Tests use it between cases.
func (h *Holder) Reset() {
	h.mu.Lock()
	h.sched = nil
	h.mu.Unlock()
	h.group.Forget(initKey)
}
