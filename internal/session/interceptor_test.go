// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package session

import (
	"testing"

	"github.com/pion/interceptor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roc-streaming/roc-toolkit-sub007/internal/packet"
)

func TestInterceptorChainPassesPacketsThrough(t *testing.T) {
	source := &queuePacketReader{packets: []*packet.Packet{
		rtpDataPacket(100, []byte{1, 2, 3}),
	}}

	chain, err := NewInterceptorChain(&interceptor.Registry{}, source, 0xABCD, 0)
	require.NoError(t, err)
	defer chain.Close()

	p := chain.ReadPacket()
	require.NotNil(t, p)
	assert.Equal(t, uint32(100), p.RTP.Header.Timestamp)
	assert.Equal(t, []byte{1, 2, 3}, p.RTP.Payload)

	assert.Nil(t, chain.ReadPacket())
}
