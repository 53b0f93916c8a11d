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

func TestListPushRemove(t *testing.T) {
	var l List[string]

	ea := l.PushBack("a")
	eb := l.PushBack("b")
	ec := l.PushBack("c")
	require.Equal(t, 3, l.Len())

	var got []string
	l.Each(func(v string) { got = append(got, v) })
	assert.Equal(t, []string{"a", "b", "c"}, got)

	l.Remove(eb)
	require.Equal(t, 2, l.Len())

	got = nil
	l.Each(func(v string) { got = append(got, v) })
	assert.Equal(t, []string{"a", "c"}, got)

	l.Remove(ea)
	l.Remove(ec)
	require.Equal(t, 0, l.Len())
	_, ok := l.Front()
	require.False(t, ok)
}

func TestListRemoveWrongListPanics(t *testing.T) {
	var l1, l2 List[int]
	e := l1.PushBack(1)

	assert.Panics(t, func() {
		l2.Remove(e)
	})
}
