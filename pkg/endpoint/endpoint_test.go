// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package endpoint

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParsePlainRTP(t *testing.T) {
	e, err := Parse("rtp://127.0.0.1:4010")
	require.NoError(t, err)
	require.Equal(t, ProtoRTP, e.Protocol)
	require.Equal(t, "127.0.0.1", e.Addr.IP.String())
	require.Equal(t, 4010, e.Addr.Port)
}

func TestParseRejectsUnknownProtocol(t *testing.T) {
	_, err := Parse("http://127.0.0.1:4010")
	require.Error(t, err)
}

func TestParseRejectsPath(t *testing.T) {
	_, err := Parse("rtp://127.0.0.1:4010/extra")
	require.Error(t, err)
}

func TestNewSlotPlainRTPNoRepair(t *testing.T) {
	slot, err := NewSlot("rtp://127.0.0.1:4010", "", "rtcp://127.0.0.1:4011")
	require.NoError(t, err)
	require.Equal(t, ProtoRTP, slot.Source.Protocol)
	require.Nil(t, slot.Repair)
	require.NotNil(t, slot.Control)
	require.Equal(t, ProtoRTCP, slot.Control.Protocol)
}

func TestNewSlotRequiresRepairForFEC(t *testing.T) {
	_, err := NewSlot("rtp+rs8m://127.0.0.1:4010", "", "")
	require.Error(t, err)
}

func TestNewSlotRejectsMismatchedRepairScheme(t *testing.T) {
	_, err := NewSlot("rtp+rs8m://127.0.0.1:4010", "ldpc://127.0.0.1:4012", "")
	require.Error(t, err)
}

func TestNewSlotWithMatchingRepair(t *testing.T) {
	slot, err := NewSlot("rtp+rs8m://127.0.0.1:4010", "rs8m://127.0.0.1:4012", "")
	require.NoError(t, err)
	require.NotNil(t, slot.Repair)
	require.Equal(t, ProtoRS8M, slot.Repair.Protocol)
	require.Nil(t, slot.Control)
}

func TestNewSlotRejectsRepairWithoutFEC(t *testing.T) {
	_, err := NewSlot("rtp://127.0.0.1:4010", "rs8m://127.0.0.1:4012", "")
	require.Error(t, err)
}
