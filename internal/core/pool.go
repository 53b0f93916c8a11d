// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Pool implements the unbounded, fixed-size-object allocator backing the
// frame and packet pools (internal/packet, internal/audio).
package core

import "sync"

// Pool hands out reusable *T values with no upper bound. Objects are
// ordinary Go heap values and Put is advisory: the GC reclaims anything a
// caller forgets to return, so a missed Put degrades to an extra allocation
// rather than a leak or a stuck pipeline.
type Pool[T any] struct {
	new  func() *T
	pool sync.Pool

	mu          sync.Mutex
	outstanding int
	capacity    int // 0 means unbounded
}

// NewPool returns a Pool that creates new values with newFn on demand.
// capacity is stored but never read: it does not block Get, does not limit
// outstanding (not yet Put back) objects, and no accessor reports it.
func NewPool[T any](newFn func() *T, capacity int) *Pool[T] {
	p := &Pool[T]{new: newFn, capacity: capacity}
	p.pool.New = func() any { return newFn() }
	return p
}

// Get returns a value from the pool, allocating a new one if none is free.
func (p *Pool[T]) Get() *T {
	v := p.pool.Get().(*T)
	p.mu.Lock()
	p.outstanding++
	p.mu.Unlock()
	return v
}

// Put returns a value to the pool for reuse. The caller must not use v
// again after calling Put.
func (p *Pool[T]) Put(v *T) {
	p.mu.Lock()
	if p.outstanding > 0 {
		p.outstanding--
	}
	p.mu.Unlock()
	p.pool.Put(v)
}

// Outstanding reports how many values are currently checked out, for
// metrics and tests; it is advisory since Put is not mandatory.
func (p *Pool[T]) Outstanding() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outstanding
}
