// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package session wires the receiver and sender session pipelines:
// ReceiverSession's RTP filter -> reorder queue -> delayed reader ->
// watchdog -> FEC reader -> depacketizer -> channel mapper -> resampler
// chain, and SenderSession's packetizer.
package session

import (
	"container/heap"

	"github.com/roc-streaming/roc-toolkit-sub007/internal/packet"
)

// SortedQueue is the receiver's reorder + jitter buffer: packets arriving
// out of order off the wire are held and released to the rest of the
// chain in ascending RTP sequence-number order. Backed by container/heap
// rather than a sorted list, so insertion stays O(log n) under bursts.
type SortedQueue struct {
	h    packetHeap
	head *packet.Packet
}

// NewSortedQueue returns an empty SortedQueue.
func NewSortedQueue() *SortedQueue {
	return &SortedQueue{}
}

// Push inserts pkt in sequence-number order. Packets are ordered by
// 16-bit modular seqnum distance from the queue's current head (or from
// pkt itself if the queue is empty), so a single wraparound doesn't
// invert the order.
func (q *SortedQueue) Push(pkt *packet.Packet) {
	heap.Push(&q.h, pkt)
}

// Len reports how many packets are currently queued.
func (q *SortedQueue) Len() int { return q.h.Len() }

// Head returns the earliest-sequenced packet without removing it, or nil
// if the queue is empty.
func (q *SortedQueue) Head() *packet.Packet {
	if q.h.Len() == 0 {
		return nil
	}
	return q.h[0]
}

// Pop removes and returns the earliest-sequenced packet, or nil if empty.
func (q *SortedQueue) Pop() *packet.Packet {
	if q.h.Len() == 0 {
		return nil
	}
	return heap.Pop(&q.h).(*packet.Packet)
}

// packetHeap orders packets by signed 16-bit seqnum distance from the
// current root h[0], giving a consistent order across a single
// wraparound of the 16-bit RTP sequence space.
type packetHeap []*packet.Packet

func (h packetHeap) Len() int { return len(h) }

func (h packetHeap) Less(i, j int) bool {
	// Compare both elements' distance from h[0] rather than from each
	// other, so heap re-balancing after arbitrary pops stays consistent
	// even as the nominal "first" element changes.
	base := h[0].RTP.Header.SequenceNumber
	di := int16(h[i].RTP.Header.SequenceNumber - base)
	dj := int16(h[j].RTP.Header.SequenceNumber - base)
	return di < dj
}

func (h packetHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *packetHeap) Push(x any) {
	*h = append(*h, x.(*packet.Packet))
}

func (h *packetHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}
