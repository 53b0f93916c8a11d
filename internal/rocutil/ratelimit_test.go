// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package rocutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterAllowsFirstCall(t *testing.T) {
	r := NewRateLimiter(time.Hour)
	assert.True(t, r.WouldAllow())
	assert.True(t, r.Allow())
	assert.False(t, r.Allow())
	assert.False(t, r.WouldAllow())
}

func TestRateLimiterAllowsAfterInterval(t *testing.T) {
	r := NewRateLimiter(10 * time.Millisecond)
	require.True(t, r.Allow())
	require.False(t, r.Allow())

	time.Sleep(15 * time.Millisecond)
	assert.True(t, r.Allow())
}

func TestSeqlockStoresAndLoads(t *testing.T) {
	var s Seqlock
	v, ok := s.TryLoad()
	require.True(t, ok)
	assert.Zero(t, v)

	s.ExclusiveStore(42)
	v, ok = s.TryLoad()
	require.True(t, ok)
	assert.Equal(t, int64(42), v)
}
