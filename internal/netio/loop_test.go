// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package netio

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roc-streaming/roc-toolkit-sub007/internal/packet"
)

func TestScheduleAndWaitRunsTaskOnLoop(t *testing.T) {
	loop, err := New(nil)
	require.NoError(t, err)
	defer loop.Close()

	ran := false
	ok := loop.ScheduleAndWait(context.Background(), func(l *Loop, task *Task) bool {
		ran = true
		return true
	})
	require.True(t, ok)
	require.True(t, ran)
	assert.Equal(t, uint64(1), loop.TasksProcessed())
	assert.Equal(t, uint64(0), loop.TasksFailed())
}

func TestScheduleNotifiesCompleterWithFailure(t *testing.T) {
	loop, err := New(nil)
	require.NoError(t, err)
	defer loop.Close()

	done := make(chan *Task, 1)
	loop.Schedule(func(l *Loop, task *Task) bool {
		return false
	}, completerFunc(func(task *Task) { done <- task }))

	select {
	case task := <-done:
		assert.Equal(t, TaskFinished, task.State())
		assert.False(t, task.Success())
	case <-time.After(2 * time.Second):
		t.Fatal("completer never invoked")
	}
	assert.Equal(t, uint64(1), loop.TasksFailed())
}

type completerFunc func(*Task)

func (f completerFunc) NetworkTaskCompleted(task *Task) { f(task) }

type chanPacketWriter struct {
	ch chan []byte
}

func (w chanPacketWriter) WritePacket(p *packet.Packet) error {
	b := make([]byte, len(p.Buf))
	copy(b, p.Buf)
	w.ch <- b
	return nil
}

func TestUDPPortSendReceiveAndRemove(t *testing.T) {
	ctx := context.Background()

	loop, err := New(nil)
	require.NoError(t, err)
	defer loop.Close()

	inbound := make(chan []byte, 16)
	recvPort, err := OpenUDP(ctx, loop, UDPConfig{
		BindAddr:      &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)},
		InboundWriter: chanPacketWriter{ch: inbound},
	}, nil)
	require.NoError(t, err)

	sendPort, err := OpenUDP(ctx, loop, UDPConfig{
		BindAddr: &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)},
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, loop.NumPorts())
	assert.NotZero(t, recvPort.LocalAddr().Port)

	const sent = 20
	pool := packet.NewPacketPool()
	for i := 0; i < sent; i++ {
		pkt := pool.Get()
		pkt.Buf = append(pkt.Buf[:0], byte(i), 0xAB, 0xCD)
		pkt.RTP.Payload = pkt.Buf
		pkt.UDP.DstAddr = recvPort.LocalAddr()
		require.NoError(t, sendPort.Write(pkt))
	}

	for i := 0; i < sent; i++ {
		select {
		case b := <-inbound:
			require.Len(t, b, 3)
			assert.Equal(t, byte(i), b[0])
		case <-time.After(2 * time.Second):
			t.Fatalf("datagram %d never arrived", i)
		}
	}

	require.Eventually(t, func() bool {
		return sendPort.PendingPackets() == 0
	}, 2*time.Second, 10*time.Millisecond)

	require.True(t, loop.RemovePort(ctx, sendPort.Handle()))
	require.Eventually(t, func() bool {
		return loop.NumPorts() == 1 && loop.ClosingPorts() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestUDPPortRejectsWritesAfterClose(t *testing.T) {
	ctx := context.Background()

	loop, err := New(nil)
	require.NoError(t, err)
	defer loop.Close()

	port, err := OpenUDP(ctx, loop, UDPConfig{
		BindAddr: &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)},
	}, nil)
	require.NoError(t, err)

	dst := port.LocalAddr()
	require.True(t, loop.RemovePort(ctx, port.Handle()))

	pkt := packet.NewPacketPool().Get()
	pkt.Buf = append(pkt.Buf[:0], 1, 2, 3)
	pkt.RTP.Payload = pkt.Buf
	pkt.UDP.DstAddr = dst
	assert.Error(t, port.Write(pkt))
}

func TestResolveHostnameLoopback(t *testing.T) {
	loop, err := New(nil)
	require.NoError(t, err)
	defer loop.Close()

	ips, err := loop.ResolveHostname(context.Background(), "localhost")
	require.NoError(t, err)
	require.NotEmpty(t, ips)
}
