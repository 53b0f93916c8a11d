// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type poolItem struct {
	buf [16]byte
}

func TestPoolGetPutTracksOutstanding(t *testing.T) {
	allocs := 0
	p := NewPool(func() *poolItem {
		allocs++
		return &poolItem{}
	}, 4)

	a := p.Get()
	require.Equal(t, 1, p.Outstanding())
	p.Put(a)
	require.Equal(t, 0, p.Outstanding())

	b := p.Get()
	assert.Equal(t, 1, p.Outstanding())
	p.Put(b)
}
