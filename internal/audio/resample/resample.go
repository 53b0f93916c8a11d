// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package resample wires the session chain's sample-rate conversion
// stage to github.com/tphakala/go-audio-resampler, wrapping its
// resampler.New/Process surface behind a narrow Resampler type so the
// rest of the session layer depends only on the type below.
package resample

import resampler "github.com/tphakala/go-audio-resampler"

// Resampler converts interleaved float32 samples from one sample rate to
// another, preserving the channel count.
type Resampler struct {
	r        *resampler.Resampler
	channels int
}

// New returns a Resampler converting channels-interleaved audio from
// inRate to outRate.
func New(inRate, outRate, channels int) (*Resampler, error) {
	r, err := resampler.New(channels, float64(inRate), float64(outRate), resampler.QualityMedium)
	if err != nil {
		return nil, err
	}
	return &Resampler{r: r, channels: channels}, nil
}

// Process resamples in and returns the converted samples. The returned
// slice is owned by the caller; Process does not retain in or its result.
func (r *Resampler) Process(in []float32) ([]float32, error) {
	return r.r.Process(in)
}

// Reset clears any internal filter history, used when a session restarts
// after a stream discontinuity.
func (r *Resampler) Reset() {
	r.r.Reset()
}
