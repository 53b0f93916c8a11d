// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package session

import (
	"time"

	"github.com/roc-streaming/roc-toolkit-sub007/internal/audio"
)

// Watchdog detects two receiver failure conditions: prolonged no-signal
// (every frame in a window was silence, no packets arriving at all) and
// prolonged gaps (frames arriving but mostly concealment-filled).
type Watchdog struct {
	noSignalTimeout time.Duration
	gapTimeout      time.Duration

	sinceSignal  time.Duration
	sinceGapFree time.Duration
	broken       bool
}

// NewWatchdog returns a Watchdog that considers the stream broken after
// noSignalTimeout with no HasSignal frame, or gapTimeout with no frame
// free of HasGaps.
func NewWatchdog(noSignalTimeout, gapTimeout time.Duration) *Watchdog {
	return &Watchdog{noSignalTimeout: noSignalTimeout, gapTimeout: gapTimeout}
}

// Update accounts for one more frame of the given duration, latching
// Broken if either timeout has now elapsed. Returns whether the stream is
// still considered alive.
func (w *Watchdog) Update(frame *audio.Frame, duration time.Duration) bool {
	if w.broken {
		return false
	}

	if frame.HasFlags(audio.FlagHasSignal) {
		w.sinceSignal = 0
	} else {
		w.sinceSignal += duration
	}

	if !frame.HasFlags(audio.FlagHasGaps) {
		w.sinceGapFree = 0
	} else {
		w.sinceGapFree += duration
	}

	if w.noSignalTimeout > 0 && w.sinceSignal >= w.noSignalTimeout {
		w.broken = true
	}
	if w.gapTimeout > 0 && w.sinceGapFree >= w.gapTimeout {
		w.broken = true
	}
	return !w.broken
}

// Broken reports whether the watchdog has latched a failure. Once true it
// never clears; the owning session should tear down and let the endpoint
// re-establish from scratch.
func (w *Watchdog) Broken() bool { return w.broken }
