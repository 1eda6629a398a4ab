/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package slots provides a channel-based pool of concurrency slots for components
// that bound how many operations may be in flight at once.
package slots

import (
	"context"
	"fmt"
)

// Pool is a fixed-size pool of concurrency slots.
// A slot must be acquired before starting an operation and released when it finishes.
type Pool struct {
	slots chan struct{}
}

// NewPool creates a pool with the given capacity.
func NewPool(capacity int) (*Pool, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("capacity should be positive, got %d", capacity)
	}
	return &Pool{slots: make(chan struct{}, capacity)}, nil
}

// TryAcquire takes a slot without blocking and reports whether one was taken.
func (p *Pool) TryAcquire() bool {
	select {
	case p.slots <- struct{}{}:
		return true
	default:
		return false
	}
}

// Acquire blocks until a slot is available or ctx is done.
func (p *Pool) Acquire(ctx context.Context) error {
	select {
	case p.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release returns a previously acquired slot to the pool.
func (p *Pool) Release() {
	select {
	case <-p.slots:
	default:
		panic("slots: Release called without a matching Acquire")
	}
}

// InUse returns the number of currently acquired slots.
func (p *Pool) InUse() int {
	return len(p.slots)
}

// Capacity returns the total number of slots.
func (p *Pool) Capacity() int {
	return cap(p.slots)
}
