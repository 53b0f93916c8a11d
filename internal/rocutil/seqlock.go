// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package rocutil

import "sync/atomic"

// Seqlock publishes a 64-bit value that is written by one thread and read by
// many without a mutex. Seqlocks exist because 32-bit hosts can't atomically
// load/store 64 bits; Go's sync/atomic guarantees atomic 64-bit operations on
// every architecture it supports, so TryLoad/ExclusiveStore are a thin,
// always-successful wrapper keeping the pipeline loop's call sites uniform.
type Seqlock struct {
	v atomic.Int64
}

// TryLoad reads the published value. It always succeeds in this
// implementation; the bool return is kept so call sites stay uniform with
// a retrying seqlock.
func (s *Seqlock) TryLoad() (int64, bool) {
	return s.v.Load(), true
}

// ExclusiveStore publishes a new value. Must only be called by the single
// writer (the thread currently holding the pipeline mutex).
func (s *Seqlock) ExclusiveStore(val int64) {
	s.v.Store(val)
}
