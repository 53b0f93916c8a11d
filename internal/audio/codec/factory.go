// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package codec

import "fmt"

// Name identifies a configured payload codec, e.g. from
// internal/rocconfig.SenderConfig.Codec / ReceiverConfig.Codec.
type Name string

const (
	// PCMU is G.711 mu-law, always 8kHz mono (github.com/zaf/g711).
	PCMU Name = "pcmu"
	// Opus is gopkg.in/hraban/opus.v2, any of its supported sample
	// rates and up to 2 channels.
	Opus Name = "opus"
)

// NewEncoder builds the FrameEncoder named by name for sampleRate and
// channels. PCMU ignores sampleRate/channels: it is always 8kHz mono, and
// the caller is expected to have chosen a matching wire SampleSpec (see
// cmd/roc-send).
func NewEncoder(name Name, sampleRate, channels int) (FrameEncoder, error) {
	switch name {
	case PCMU:
		return NewPCMUEncoder(), nil
	case Opus:
		return NewOpusEncoder(sampleRate, channels)
	default:
		return nil, fmt.Errorf("codec: unknown encoder %q", name)
	}
}

// NewDecoder builds the FrameDecoder named by name for sampleRate and
// channels, mirroring NewEncoder.
func NewDecoder(name Name, sampleRate, channels int) (FrameDecoder, error) {
	switch name {
	case PCMU:
		return NewPCMUDecoder(), nil
	case Opus:
		return NewOpusDecoder(sampleRate, channels)
	default:
		return nil, fmt.Errorf("codec: unknown decoder %q", name)
	}
}
