// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package netio

import (
	"bytes"
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roc-streaming/roc-toolkit-sub007/internal/rocerr"
)

// acceptHandler records lifecycle callbacks and hands accepted connections
// to the test goroutine.
type acceptHandler struct {
	established chan *TCPConnectionPort
	terminated  chan *TCPConnectionPort
}

func newAcceptHandler() *acceptHandler {
	return &acceptHandler{
		established: make(chan *TCPConnectionPort, 4),
		terminated:  make(chan *TCPConnectionPort, 4),
	}
}

func (h *acceptHandler) OnRefused(c *TCPConnectionPort)     {}
func (h *acceptHandler) OnEstablished(c *TCPConnectionPort) { h.established <- c }
func (h *acceptHandler) OnWritable(c *TCPConnectionPort)    {}
func (h *acceptHandler) OnReadable(c *TCPConnectionPort)    {}
func (h *acceptHandler) OnTerminated(c *TCPConnectionPort)  { h.terminated <- c }
func (h *acceptHandler) OnCloseCompleted(c *TCPConnectionPort) {
}

type singleHandlerServer struct {
	h ConnHandler
}

func (s singleHandlerServer) ControlConnHandler() ConnHandler { return s.h }
func (s singleHandlerServer) MediaConnHandler() ConnHandler   { return s.h }

// writeAll/readAll drive the non-blocking TryWrite/TryRead surface with
// retries, the way a readiness-edge-driven caller would.
func writeAll(t *testing.T, c *TCPConnectionPort, data []byte) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for len(data) > 0 {
		require.True(t, time.Now().Before(deadline), "write stalled")
		n, err := c.TryWrite(data)
		if err != nil && !errors.Is(err, rocerr.ErrWouldBlock) {
			t.Fatalf("try_write: %v", err)
		}
		data = data[n:]
		if errors.Is(err, rocerr.ErrWouldBlock) {
			time.Sleep(time.Millisecond)
		}
	}
}

func readAll(t *testing.T, c *TCPConnectionPort, total int) []byte {
	t.Helper()
	out := make([]byte, 0, total)
	buf := make([]byte, 1024)
	deadline := time.Now().Add(5 * time.Second)
	for len(out) < total {
		require.True(t, time.Now().Before(deadline), "read stalled at %d/%d bytes", len(out), total)
		n, err := c.TryRead(buf)
		out = append(out, buf[:n]...)
		if err != nil && !errors.Is(err, rocerr.ErrWouldBlock) {
			t.Fatalf("try_read: %v", err)
		}
		if n == 0 {
			time.Sleep(time.Millisecond)
		}
	}
	return out
}

func TestTCPConnectionExchangeAndGracefulShutdown(t *testing.T) {
	ctx := context.Background()

	loop, err := New(nil)
	require.NoError(t, err)
	defer loop.Close()

	handler := newAcceptHandler()
	srv, err := ListenTCP(ctx, loop, &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)}, singleHandlerServer{h: handler}, nil)
	require.NoError(t, err)

	client, err := DialTCP(ctx, loop, srv.LocalAddr().(*net.TCPAddr), newAcceptHandler(), nil)
	require.NoError(t, err)
	assert.Equal(t, ConnEstablished, client.State())

	var server *TCPConnectionPort
	select {
	case server = <-handler.established:
	case <-time.After(2 * time.Second):
		t.Fatal("server never accepted the connection")
	}

	// Bidirectional exchange: every byte must arrive intact, in order.
	toServer := patternBytes(4096, 3)
	toClient := patternBytes(4096, 7)

	writeAll(t, client, toServer)
	got := readAll(t, server, len(toServer))
	require.True(t, bytes.Equal(toServer, got))

	writeAll(t, server, toClient)
	got = readAll(t, client, len(toClient))
	require.True(t, bytes.Equal(toClient, got))

	// Graceful termination from the client: the server observes exactly
	// one StreamEnd on its next read, and its writes keep working.
	client.AsyncTerminate(TermNormal)
	assert.Equal(t, ConnTerminated, client.State())
	assert.False(t, client.WasFailed())

	buf := make([]byte, 16)
	var readErr error
	require.Eventually(t, func() bool {
		_, readErr = server.TryRead(buf)
		return !errors.Is(readErr, rocerr.ErrWouldBlock)
	}, 2*time.Second, 5*time.Millisecond)
	require.ErrorIs(t, readErr, rocerr.ErrStreamEnd)

	n, err := server.TryWrite([]byte("still open"))
	if err != nil {
		require.ErrorIs(t, err, rocerr.ErrWouldBlock)
	} else {
		assert.Equal(t, len("still open"), n)
	}
	assert.False(t, server.WasFailed())

	server.AsyncTerminate(TermNormal)
	client.AsyncClose()
	server.AsyncClose()
	assert.Equal(t, ConnClosed, client.State())
	assert.Equal(t, ConnClosed, server.State())
}

func TestTCPConnectionFailureLatches(t *testing.T) {
	ctx := context.Background()

	loop, err := New(nil)
	require.NoError(t, err)
	defer loop.Close()

	handler := newAcceptHandler()
	srv, err := ListenTCP(ctx, loop, &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)}, singleHandlerServer{h: handler}, nil)
	require.NoError(t, err)

	client, err := DialTCP(ctx, loop, srv.LocalAddr().(*net.TCPAddr), newAcceptHandler(), nil)
	require.NoError(t, err)

	var server *TCPConnectionPort
	select {
	case server = <-handler.established:
	case <-time.After(2 * time.Second):
		t.Fatal("server never accepted the connection")
	}

	client.AsyncTerminate(TermFailure)
	require.True(t, client.WasFailed())

	_, err = client.TryRead(make([]byte, 4))
	require.ErrorIs(t, err, rocerr.ErrFailure)
	_, err = client.TryWrite([]byte("x"))
	require.ErrorIs(t, err, rocerr.ErrFailure)

	assert.Panics(t, func() {
		client.AsyncTerminate(TermFailure)
	})

	server.AsyncTerminate(TermNormal)
	client.AsyncClose()
	server.AsyncClose()
}

func TestDialRefusedConnection(t *testing.T) {
	loop, err := New(nil)
	require.NoError(t, err)
	defer loop.Close()

	// Grab a port that nothing is listening on.
	ln, err := net.ListenTCP("tcp", &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	addr := ln.Addr().(*net.TCPAddr)
	require.NoError(t, ln.Close())

	_, err = DialTCP(context.Background(), loop, addr, nil, nil)
	require.Error(t, err)
	assert.Equal(t, 0, loop.NumPorts())
}

func patternBytes(n int, seed byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i)*seed + seed
	}
	return b
}
