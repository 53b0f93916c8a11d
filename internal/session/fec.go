// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package session

import "github.com/roc-streaming/roc-toolkit-sub007/internal/packet"

// FECDecoder is the block-codec interface the session consumes: given the
// repair packets received on the parallel repair endpoint, it may produce
// synthesized packets to fill gaps in the source sequence.
// Reed-Solomon(m=8) and LDPC implementations live outside this tree.
type FECDecoder interface {
	// Repair is called once per repair-endpoint packet. It returns any
	// source packets it was able to reconstruct as a result, in sequence
	// order, or nil if none.
	Repair(repairPacket *packet.Packet) []*packet.Packet
}

// FECReader sits between the delayed reader and the depacketizer: it
// passes source packets straight through from reader, and splices in any
// packets a FECDecoder synthesizes from the repair stream, in sequence
// order. With a nil FECDecoder it is a transparent passthrough (no
// repair/source split configured for this session).
type FECReader struct {
	source  PacketReader
	decoder FECDecoder
	queue   *SortedQueue
	pending *packet.Packet // a source packet read ahead to compare against queue.Head
}

// NewFECReader returns a FECReader reading source packets from source and
// consulting decoder (if non-nil) for loss repair.
func NewFECReader(source PacketReader, decoder FECDecoder) *FECReader {
	return &FECReader{source: source, decoder: decoder, queue: NewSortedQueue()}
}

// HandleRepairPacket feeds a packet received on the session's repair
// endpoint to the FECDecoder and enqueues any packets it reconstructs.
func (r *FECReader) HandleRepairPacket(repairPacket *packet.Packet) {
	if r.decoder == nil {
		return
	}
	for _, restored := range r.decoder.Repair(repairPacket) {
		restored.Flags |= packet.FlagRestored
		r.queue.Push(restored)
	}
}

// ReadPacket implements PacketReader: it prefers a restored packet over a
// source packet whenever the restored one is due first.
func (r *FECReader) ReadPacket() *packet.Packet {
	if r.pending == nil {
		r.pending = r.source.ReadPacket()
	}

	head := r.queue.Head()
	if head == nil {
		p := r.pending
		r.pending = nil
		return p
	}
	if r.pending == nil {
		return r.queue.Pop()
	}

	restoredTS := packet.StreamTimestamp(head.RTP.Header.Timestamp)
	srcTS := packet.StreamTimestamp(r.pending.RTP.Header.Timestamp)
	if restoredTS.Diff(srcTS) <= 0 {
		return r.queue.Pop()
	}
	p := r.pending
	r.pending = nil
	return p
}
