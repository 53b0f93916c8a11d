// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package core

import (
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMpscQueueFifoSingleProducer(t *testing.T) {
	q := NewMpscQueue[int]()

	_, ok := q.TryPopFront()
	require.False(t, ok)

	for i := 0; i < 10; i++ {
		q.PushBack(i)
	}
	for i := 0; i < 10; i++ {
		v, ok := q.TryPopFront()
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
	_, ok = q.TryPopFront()
	require.False(t, ok)
}

func TestMpscQueueConcurrentProducers(t *testing.T) {
	const producers = 8
	const perProducer = 2000

	q := NewMpscQueue[int]()

	var wg sync.WaitGroup
	wg.Add(producers)
	for p := 0; p < producers; p++ {
		go func(base int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.PushBack(base*perProducer + i)
			}
		}(p)
	}
	wg.Wait()

	var got []int
	for {
		v, ok := q.PopFront()
		if !ok {
			break
		}
		got = append(got, v)

		if len(got) == producers*perProducer {
			break
		}
	}

	require.Len(t, got, producers*perProducer)
	sort.Ints(got)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestMpscQueueInterleavedPushPop(t *testing.T) {
	q := NewMpscQueue[string]()

	q.PushBack("a")
	v, ok := q.TryPopFront()
	require.True(t, ok)
	assert.Equal(t, "a", v)

	q.PushBack("b")
	q.PushBack("c")
	v, ok = q.TryPopFront()
	require.True(t, ok)
	assert.Equal(t, "b", v)

	q.PushBack("d")
	v, ok = q.TryPopFront()
	require.True(t, ok)
	assert.Equal(t, "c", v)
	v, ok = q.TryPopFront()
	require.True(t, ok)
	assert.Equal(t, "d", v)

	_, ok = q.TryPopFront()
	require.False(t, ok)
}
