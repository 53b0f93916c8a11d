// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDelayedReaderHoldsUntilTargetLatency(t *testing.T) {
	q := NewSortedQueue()
	d := NewDelayedReader(q, 100*time.Millisecond, 8000)

	base := time.Now()
	d.now = func() time.Time { return base }

	pkt := seqPacket(1)
	pkt.UDP.QueueTime = base
	q.Push(pkt)

	assert.Nil(t, d.ReadPacket())

	d.now = func() time.Time { return base.Add(50 * time.Millisecond) }
	assert.Nil(t, d.ReadPacket())

	d.now = func() time.Time { return base.Add(150 * time.Millisecond) }
	got := d.ReadPacket()
	require.NotNil(t, got)
	assert.Equal(t, uint16(1), got.RTP.Header.SequenceNumber)
	assert.Nil(t, d.ReadPacket())
}

func TestDelayedReaderZeroLatencyPassesThrough(t *testing.T) {
	q := NewSortedQueue()
	d := NewDelayedReader(q, 0, 8000)

	pkt := seqPacket(7)
	pkt.UDP.QueueTime = time.Now()
	q.Push(pkt)

	require.NotNil(t, d.ReadPacket())
	assert.Nil(t, d.ReadPacket())
}

func TestDelayedReaderEmptyQueue(t *testing.T) {
	d := NewDelayedReader(NewSortedQueue(), 10*time.Millisecond, 8000)
	assert.Nil(t, d.ReadPacket())
}
