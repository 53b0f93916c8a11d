// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package socket wraps the non-blocking UDP syscalls the network loop's
// UDP port needs. TCP sockets are opened through the standard net package
// (see internal/netio/tcp_connection.go and tcp_server.go) since Go's
// runtime netpoller already gives TCP the non-blocking behavior this
// package hand-rolls for UDP.
package socket

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// UDPOptions configures OpenUDP.
type UDPOptions struct {
	// ReuseAddr sets SO_REUSEADDR before bind, letting multiple sockets
	// share a multicast group's port.
	ReuseAddr bool
	// MulticastGroup, when non-nil, is joined via IP_ADD_MEMBERSHIP (or
	// IPV6_JOIN_GROUP) after bind.
	MulticastGroup net.IP
	// MulticastInterface selects the interface used to join
	// MulticastGroup; the zero IP means "any".
	MulticastInterface net.IP
}

// OpenUDP creates a non-blocking UDP socket bound to bindAddr, applying
// opts. It returns the raw file descriptor and the address actually bound
// (resolving port 0 to the kernel-assigned port).
func OpenUDP(bindAddr *net.UDPAddr, opts UDPOptions) (fd int, bound *net.UDPAddr, err error) {
	domain := unix.AF_INET
	sa, err := toSockaddr(bindAddr)
	if err != nil {
		return -1, nil, err
	}
	if _, ok := sa.(*unix.SockaddrInet6); ok {
		domain = unix.AF_INET6
	}

	fd, err = unix.Socket(domain, unix.SOCK_DGRAM, unix.IPPROTO_UDP)
	if err != nil {
		return -1, nil, fmt.Errorf("socket: open udp socket: %w", err)
	}

	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, nil, fmt.Errorf("socket: set nonblock: %w", err)
	}

	if opts.ReuseAddr {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
			unix.Close(fd)
			return -1, nil, fmt.Errorf("socket: SO_REUSEADDR: %w", err)
		}
	}

	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return -1, nil, fmt.Errorf("socket: bind: %w", err)
	}

	if opts.MulticastGroup != nil {
		if err := joinMulticast(fd, opts.MulticastGroup, opts.MulticastInterface); err != nil {
			unix.Close(fd)
			return -1, nil, err
		}
	}

	laddr, err := localUDPAddr(fd)
	if err != nil {
		unix.Close(fd)
		return -1, nil, err
	}
	return fd, laddr, nil
}

// Close closes fd.
func Close(fd int) error {
	return unix.Close(fd)
}

// SendTo sends buf to dst on fd. A false ok with a nil error means the
// socket would block and the caller should queue the packet for later
// retry (mirrors sendto() returning EWOULDBLOCK/EAGAIN).
func SendTo(fd int, buf []byte, dst *net.UDPAddr) (ok bool, err error) {
	sa, err := toSockaddr(dst)
	if err != nil {
		return false, err
	}
	err = unix.Sendto(fd, buf, 0, sa)
	if err == nil {
		return true, nil
	}
	if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
		return false, nil
	}
	return false, fmt.Errorf("socket: sendto: %w", err)
}

// RecvFrom reads one datagram from fd into buf. A false ok with a nil
// error means the socket would block (no datagram currently available).
func RecvFrom(fd int, buf []byte) (n int, src *net.UDPAddr, ok bool, err error) {
	n, from, err := unix.Recvfrom(fd, buf, 0)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return 0, nil, false, nil
		}
		return 0, nil, false, fmt.Errorf("socket: recvfrom: %w", err)
	}
	src, err = fromSockaddr(from)
	if err != nil {
		return 0, nil, false, err
	}
	return n, src, true, nil
}

func joinMulticast(fd int, group, iface net.IP) error {
	if ip4 := group.To4(); ip4 != nil {
		mreq := &unix.IPMreq{}
		copy(mreq.Multiaddr[:], ip4)
		if iface != nil {
			if i4 := iface.To4(); i4 != nil {
				copy(mreq.Interface[:], i4)
			}
		}
		return unix.SetsockoptIPMreq(fd, unix.IPPROTO_IP, unix.IP_ADD_MEMBERSHIP, mreq)
	}
	mreq := &unix.IPv6Mreq{}
	copy(mreq.Multiaddr[:], group.To16())
	return unix.SetsockoptIPv6Mreq(fd, unix.IPPROTO_IPV6, unix.IPV6_JOIN_GROUP, mreq)
}

func localUDPAddr(fd int) (*net.UDPAddr, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return nil, fmt.Errorf("socket: getsockname: %w", err)
	}
	return fromSockaddr(sa)
}

func toSockaddr(a *net.UDPAddr) (unix.Sockaddr, error) {
	if ip4 := a.IP.To4(); ip4 != nil {
		sa := &unix.SockaddrInet4{Port: a.Port}
		copy(sa.Addr[:], ip4)
		return sa, nil
	}
	if a.IP == nil || a.IP.Equal(net.IPv6zero) || a.IP.Equal(net.IPv4zero) {
		return &unix.SockaddrInet4{Port: a.Port}, nil
	}
	sa := &unix.SockaddrInet6{Port: a.Port}
	copy(sa.Addr[:], a.IP.To16())
	return sa, nil
}

func fromSockaddr(sa unix.Sockaddr) (*net.UDPAddr, error) {
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		ip := make(net.IP, net.IPv4len)
		copy(ip, v.Addr[:])
		return &net.UDPAddr{IP: ip, Port: v.Port}, nil
	case *unix.SockaddrInet6:
		ip := make(net.IP, net.IPv6len)
		copy(ip, v.Addr[:])
		return &net.UDPAddr{IP: ip, Port: v.Port}, nil
	default:
		return nil, fmt.Errorf("socket: unsupported sockaddr type %T", sa)
	}
}
