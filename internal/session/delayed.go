// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package session

import (
	"time"

	"github.com/roc-streaming/roc-toolkit-sub007/internal/packet"
)

// DelayedReader holds packets in its upstream SortedQueue until they've
// sat for at least targetLatency, trading end-to-end delay for tolerance
// of late arrivals.
type DelayedReader struct {
	queue         *SortedQueue
	targetLatency time.Duration
	sampleRate    uint32
	now           func() time.Time
}

// NewDelayedReader returns a DelayedReader draining queue once each
// packet's age (derived from its UDP queue-time) reaches targetLatency.
func NewDelayedReader(queue *SortedQueue, targetLatency time.Duration, sampleRate uint32) *DelayedReader {
	return &DelayedReader{queue: queue, targetLatency: targetLatency, sampleRate: sampleRate, now: time.Now}
}

// ReadPacket implements PacketReader. Returns nil if the head packet
// hasn't aged past targetLatency yet, or the queue is empty.
func (d *DelayedReader) ReadPacket() *packet.Packet {
	head := d.queue.Head()
	if head == nil {
		return nil
	}
	if d.targetLatency > 0 && d.now().Sub(head.UDP.QueueTime) < d.targetLatency {
		return nil
	}
	return d.queue.Pop()
}
