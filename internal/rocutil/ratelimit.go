// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package rocutil

import (
	"sync"
	"time"
)

// RateLimiter allows at most one "allowed" event per interval, used to
// throttle the per-call stats log lines the pipeline and network loops emit.
type RateLimiter struct {
	interval time.Duration

	mu   sync.Mutex
	next time.Time
}

// NewRateLimiter returns a limiter that allows its first Allow() call
// immediately and subsequent ones no more than once per interval.
func NewRateLimiter(interval time.Duration) *RateLimiter {
	return &RateLimiter{interval: interval}
}

// WouldAllow reports whether Allow would currently succeed, without
// consuming the slot. Used as a cheap pre-check before taking a lock that
// might be contended.
func (r *RateLimiter) WouldAllow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return time.Now().After(r.next) || r.next.IsZero()
}

// Allow reports whether the caller may proceed, and if so advances the
// internal deadline by one interval from now.
func (r *RateLimiter) Allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	if !r.next.IsZero() && now.Before(r.next) {
		return false
	}
	r.next = now.Add(r.interval)
	return true
}
