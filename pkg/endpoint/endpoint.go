// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package endpoint parses URI-form network endpoints
// (`<proto>://<host>:<port>`) and groups them into the
// source/repair/control "slot" corresponding to one remote peer. It does
// the minimum the slot wiring needs, on top of net/url, and is
// deliberately not a general-purpose URI library.
package endpoint

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Protocol is one of the supported wire protocols.
type Protocol string

const (
	// ProtoRTP is plain RTP audio, no FEC.
	ProtoRTP Protocol = "rtp"
	// ProtoRTPRS8M is RTP audio protected by the rs8m (Reed-Solomon m=8)
	// FEC scheme; its repair packets travel on a ProtoRS8M endpoint.
	ProtoRTPRS8M Protocol = "rtp+rs8m"
	// ProtoRS8M carries rs8m repair packets for a ProtoRTPRS8M source.
	ProtoRS8M Protocol = "rs8m"
	// ProtoRTPLDPC is RTP audio protected by the ldpc FEC scheme.
	ProtoRTPLDPC Protocol = "rtp+ldpc"
	// ProtoLDPC carries ldpc repair packets for a ProtoRTPLDPC source.
	ProtoLDPC Protocol = "ldpc"
	// ProtoRTCP is the out-of-band control protocol.
	ProtoRTCP Protocol = "rtcp"
)

// Valid reports whether p is one of the supported protocols.
func (p Protocol) Valid() bool {
	switch p {
	case ProtoRTP, ProtoRTPRS8M, ProtoRS8M, ProtoRTPLDPC, ProtoLDPC, ProtoRTCP:
		return true
	default:
		return false
	}
}

// FECScheme names the FEC codec a source protocol is paired with, or
// FECNone if the protocol carries no FEC.
type FECScheme string

const (
	FECNone FECScheme = ""
	FECRS8M FECScheme = "rs8m"
	FECLDPC FECScheme = "ldpc"
)

// FEC returns the FEC scheme implied by p, or FECNone.
func (p Protocol) FEC() FECScheme {
	switch p {
	case ProtoRTPRS8M, ProtoRS8M:
		return FECRS8M
	case ProtoRTPLDPC, ProtoLDPC:
		return FECLDPC
	default:
		return FECNone
	}
}

// IsSource reports whether p is a protocol carrying audio (rtp or
// rtp+<fec>), as opposed to a repair or control protocol.
func (p Protocol) IsSource() bool {
	return p == ProtoRTP || p == ProtoRTPRS8M || p == ProtoRTPLDPC
}

// IsRepair reports whether p is a bare FEC repair protocol (rs8m, ldpc).
func (p Protocol) IsRepair() bool {
	return p == ProtoRS8M || p == ProtoLDPC
}

// Endpoint is one parsed `<proto>://<host>:<port>` network address.
type Endpoint struct {
	Protocol Protocol
	Addr     *net.UDPAddr
}

// Parse parses uri into an Endpoint. Only the scheme, host, and port are
// meaningful; any path/query is rejected as malformed.
func Parse(uri string) (Endpoint, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return Endpoint{}, fmt.Errorf("endpoint: parse %q: %w", uri, err)
	}
	proto := Protocol(strings.ToLower(u.Scheme))
	if !proto.Valid() {
		return Endpoint{}, fmt.Errorf("endpoint: %q: unsupported protocol %q", uri, u.Scheme)
	}
	if u.Host == "" {
		return Endpoint{}, fmt.Errorf("endpoint: %q: missing host:port", uri)
	}
	if u.Path != "" || u.RawQuery != "" {
		return Endpoint{}, fmt.Errorf("endpoint: %q: unexpected path or query", uri)
	}

	addr, err := net.ResolveUDPAddr("udp", u.Host)
	if err != nil {
		return Endpoint{}, fmt.Errorf("endpoint: %q: resolve %q: %w", uri, u.Host, err)
	}
	return Endpoint{Protocol: proto, Addr: addr}, nil
}

// String renders the endpoint back in `<proto>://<host>:<port>` form.
func (e Endpoint) String() string {
	return fmt.Sprintf("%s://%s", e.Protocol, e.Addr)
}

// Slot groups the endpoints corresponding to one remote peer: a
// mandatory Source, and an optional Repair/Control pair. A receiver
// binds a Slot's endpoints; a sender connects to them.
type Slot struct {
	Source  Endpoint
	Repair  *Endpoint
	Control *Endpoint
}

// NewSlot validates and assembles a Slot from URI strings. repairURI and
// controlURI may be empty, meaning the slot has no FEC repair channel or
// no control channel respectively. If source carries a FEC scheme,
// repairURI is required and must carry a matching bare-repair protocol.
func NewSlot(sourceURI, repairURI, controlURI string) (Slot, error) {
	source, err := Parse(sourceURI)
	if err != nil {
		return Slot{}, err
	}
	if !source.Protocol.IsSource() {
		return Slot{}, fmt.Errorf("endpoint: source %q: protocol %q is not a source protocol", sourceURI, source.Protocol)
	}

	slot := Slot{Source: source}

	scheme := source.Protocol.FEC()
	if scheme != FECNone {
		if repairURI == "" {
			return Slot{}, fmt.Errorf("endpoint: source protocol %q requires a repair endpoint", source.Protocol)
		}
		repair, err := Parse(repairURI)
		if err != nil {
			return Slot{}, err
		}
		if !repair.Protocol.IsRepair() || FECScheme(repair.Protocol) != scheme {
			return Slot{}, fmt.Errorf("endpoint: repair %q: protocol %q does not match source FEC scheme %q", repairURI, repair.Protocol, scheme)
		}
		slot.Repair = &repair
	} else if repairURI != "" {
		return Slot{}, fmt.Errorf("endpoint: source protocol %q carries no FEC, repair endpoint not allowed", source.Protocol)
	}

	if controlURI != "" {
		control, err := Parse(controlURI)
		if err != nil {
			return Slot{}, err
		}
		if control.Protocol != ProtoRTCP {
			return Slot{}, fmt.Errorf("endpoint: control %q: protocol %q is not rtcp", controlURI, control.Protocol)
		}
		slot.Control = &control
	}

	return slot, nil
}
