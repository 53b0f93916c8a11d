// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
//
// The Dmitry Vyukov MPSC algorithm. Intrusive variants store nodes inside
// the carried object to avoid a per-push allocation; Go has no portable
// container_of, so this version wraps each pushed value in a small node
// allocated on push. Packets and frames that flow through these queues are
// themselves pool-allocated (see internal/packet, internal/audio), so the
// queue node is the only incidental allocation on the hot path.
package core

import (
	"runtime"
	"sync/atomic"
)

type mpscNode[T any] struct {
	next atomic.Pointer[mpscNode[T]]
	val  T
}

// MpscQueue is a lock-free multi-producer, single-consumer FIFO queue.
// PushBack may be called concurrently from any number of goroutines.
// TryPopFront/PopFront must only be called from a single consumer at a time
// (per goroutine, not necessarily the same one across calls).
type MpscQueue[T any] struct {
	tail atomic.Pointer[mpscNode[T]]
	head *mpscNode[T]
	stub mpscNode[T]
}

// NewMpscQueue returns an empty queue.
func NewMpscQueue[T any]() *MpscQueue[T] {
	q := &MpscQueue[T]{}
	q.head = &q.stub
	q.tail.Store(&q.stub)
	return q
}

// PushBack adds val to the end of the queue. Wait-free on platforms with an
// atomic exchange (amd64, arm64); lock-free everywhere else.
func (q *MpscQueue[T]) PushBack(val T) {
	n := &mpscNode[T]{val: val}
	prev := q.tail.Swap(n)
	prev.next.Store(n)
}

// TryPopFront removes and returns the value at the front of the queue.
// Returns false if the queue is empty, or (rarely) if a concurrent
// PushBack is mid-flight and hasn't published its node's predecessor link
// yet (the caller is expected to retry or treat it as transiently empty).
// Wait-free: never spins indefinitely.
func (q *MpscQueue[T]) TryPopFront() (T, bool) {
	return q.popFront(false)
}

// PopFront removes and returns the value at the front of the queue,
// blocking (spinning) if necessary to wait out an in-flight PushBack.
// Returns false only when the queue is genuinely empty.
func (q *MpscQueue[T]) PopFront() (T, bool) {
	return q.popFront(true)
}

func (q *MpscQueue[T]) popFront(canSpin bool) (T, bool) {
	var zero T

	head := q.head
	next := head.next.Load()

	if head == &q.stub {
		if next == nil {
			if q.tail.Load() == head {
				return zero, false // queue is empty
			}
			var ok bool
			if next, ok = q.waitNext(head, canSpin); !ok {
				return zero, false
			}
		}
		// remove stub from the front of the list
		q.head = next
		head = next
		next = head.next.Load()
	}

	if next == nil {
		if q.tail.Load() == head {
			// queue appears empty: push the stub to the back so head
			// always has a next pointer once more data arrives.
			q.pushStub()
		}
		var ok bool
		if next, ok = q.waitNext(head, canSpin); !ok {
			return zero, false
		}
	}

	q.head = next
	return head.val, true
}

func (q *MpscQueue[T]) pushStub() {
	stub := &q.stub
	stub.next.Store(nil)
	prev := q.tail.Swap(stub)
	prev.next.Store(stub)
}

// waitNext waits until node.next becomes non-nil, i.e. a concurrent
// PushBack that had already exchanged the tail pointer finishes publishing
// the predecessor link. With canSpin=false it gives up after a few retries;
// the spin window is intentionally short, tunable via retryBudget.
func (q *MpscQueue[T]) waitNext(node *mpscNode[T], canSpin bool) (*mpscNode[T], bool) {
	const retryBudget = 32

	for i := 0; i < retryBudget; i++ {
		if next := node.next.Load(); next != nil {
			return next, true
		}
		runtime.Gosched()
	}
	if !canSpin {
		return nil, false
	}
	for {
		if next := node.next.Load(); next != nil {
			return next, true
		}
		runtime.Gosched()
	}
}
