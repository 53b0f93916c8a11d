// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFrameFlagsCombine(t *testing.T) {
	f := &Frame{Flags: FlagHasSignal | FlagHasGaps}
	assert.True(t, f.HasFlags(FlagHasSignal))
	assert.True(t, f.HasFlags(FlagHasGaps))
	assert.False(t, f.HasFlags(FlagHasDrops))
}

func TestFrameCaptureTimestamp(t *testing.T) {
	f := &Frame{}
	assert.False(t, f.HasCaptureTimestamp())
}

func TestFramePoolResets(t *testing.T) {
	pool := NewFramePool()

	f := pool.Get()
	f.Raw = append(f.Raw, 1, 2, 3)
	f.Flags = FlagHasSignal
	pool.Put(f)

	f2 := pool.Get()
	assert.Equal(t, Flags(0), f2.Flags)
	assert.Len(t, f2.Raw, 0)
}
