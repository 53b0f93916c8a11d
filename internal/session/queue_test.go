// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roc-streaming/roc-toolkit-sub007/internal/packet"
)

func seqPacket(seq uint16) *packet.Packet {
	p := &packet.Packet{Flags: packet.FlagRTP}
	p.RTP.Header.SequenceNumber = seq
	return p
}

func TestSortedQueueReordersBySeqnum(t *testing.T) {
	q := NewSortedQueue()
	for _, seq := range []uint16{5, 3, 4, 6} {
		q.Push(seqPacket(seq))
	}
	require.Equal(t, 4, q.Len())

	var got []uint16
	for q.Len() > 0 {
		got = append(got, q.Pop().RTP.Header.SequenceNumber)
	}
	assert.Equal(t, []uint16{3, 4, 5, 6}, got)
}

func TestSortedQueueHandlesSeqnumWraparound(t *testing.T) {
	q := NewSortedQueue()
	// 0xFFFF -> 0x0000 is a small forward step, not a 65535-step rewind.
	q.Push(seqPacket(0x0001))
	q.Push(seqPacket(0xFFFF))
	q.Push(seqPacket(0x0000))

	assert.Equal(t, uint16(0xFFFF), q.Pop().RTP.Header.SequenceNumber)
	assert.Equal(t, uint16(0x0000), q.Pop().RTP.Header.SequenceNumber)
	assert.Equal(t, uint16(0x0001), q.Pop().RTP.Header.SequenceNumber)
}

func TestSortedQueueHeadDoesNotRemove(t *testing.T) {
	q := NewSortedQueue()
	assert.Nil(t, q.Head())
	assert.Nil(t, q.Pop())

	q.Push(seqPacket(10))
	require.NotNil(t, q.Head())
	assert.Equal(t, uint16(10), q.Head().RTP.Header.SequenceNumber)
	assert.Equal(t, 1, q.Len())
}
