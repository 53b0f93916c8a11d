// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package session

import (
	"github.com/pion/interceptor"
	"github.com/pion/rtp"

	"github.com/roc-streaming/roc-toolkit-sub007/internal/packet"
	"github.com/roc-streaming/roc-toolkit-sub007/internal/rocerr"
)

// InterceptorChain adapts a github.com/pion/interceptor Registry's built
// chain to this package's PacketReader interface, so RTCP-feedback-driven
// interceptors (NACK generation, receiver reports, ...) can sit in front
// of the FEC reader stage without the receiver session depending on any
// specific interceptor implementation.
type InterceptorChain struct {
	chain  interceptor.Interceptor
	reader interceptor.RTPReader
}

// NewInterceptorChain builds registry's chain and binds it to a remote
// stream backed by source.
func NewInterceptorChain(registry *interceptor.Registry, source PacketReader, ssrc uint32, payloadType uint8) (*InterceptorChain, error) {
	chain, err := registry.Build("receiver-session")
	if err != nil {
		return nil, err
	}
	info := &interceptor.StreamInfo{SSRC: ssrc, PayloadType: payloadType}
	reader := chain.BindRemoteStream(info, &packetRTPReader{source: source})
	return &InterceptorChain{chain: chain, reader: reader}, nil
}

// ReadPacket implements PacketReader, routing each read through the bound
// interceptor chain.
func (c *InterceptorChain) ReadPacket() *packet.Packet {
	buf := make([]byte, packet.DefaultPacketBufSize)
	n, _, err := c.reader.Read(buf, interceptor.Attributes{})
	if err != nil {
		return nil
	}

	var hdr rtp.Header
	off, err := hdr.Unmarshal(buf[:n])
	if err != nil {
		return nil
	}

	p := &packet.Packet{Flags: packet.FlagRTP}
	p.Buf = buf[:n]
	p.RTP.Header = hdr
	p.RTP.Payload = buf[off:n]
	return p
}

// Close releases the chain's resources.
func (c *InterceptorChain) Close() error {
	return c.chain.Close()
}

// packetRTPReader adapts a PacketReader's pull interface to
// interceptor.RTPReader, marshaling each packet back to raw RTP bytes
// since the interceptor chain operates on wire bytes, not parsed views.
type packetRTPReader struct {
	source PacketReader
}

func (r *packetRTPReader) Read(buf []byte, attrs interceptor.Attributes) (int, interceptor.Attributes, error) {
	pkt := r.source.ReadPacket()
	if pkt == nil {
		return 0, attrs, rocerr.ErrDrain
	}
	if len(pkt.Buf) > 0 {
		n := copy(buf, pkt.Buf)
		return n, attrs, nil
	}

	wire := rtp.Packet{Header: pkt.RTP.Header, Payload: pkt.RTP.Payload}
	n, err := wire.MarshalTo(buf)
	if err != nil {
		return 0, attrs, err
	}
	return n, attrs, nil
}
