// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

package rocconfig

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roc-streaming/roc-toolkit-sub007/internal/pipeline"
)

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	def := pipeline.DefaultConfig()
	assert.Equal(t, def.MaxFrameLengthBetweenTasks, cfg.Pipeline.MaxFrameLengthBetweenTasks)
	assert.True(t, cfg.Pipeline.EnablePreciseTaskScheduling)

	assert.Equal(t, "pcmu", cfg.Sender.Codec)
	assert.Equal(t, uint32(8000), cfg.Sender.SampleRate)
	assert.Equal(t, 160, cfg.Sender.SamplesPerPacket)

	assert.Equal(t, 200*time.Millisecond, cfg.Receiver.TargetLatency)
	assert.Equal(t, 100, cfg.Receiver.MaxSnJump)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	t.Setenv("ROC_SENDER__CODEC", "opus")
	t.Setenv("ROC_RECEIVER__TARGET_LATENCY", "50ms")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "opus", cfg.Sender.Codec)
	assert.Equal(t, 50*time.Millisecond, cfg.Receiver.TargetLatency)
}

func TestToPipelineConfigRoundTrips(t *testing.T) {
	in := PipelineLoopConfig{
		EnablePreciseTaskScheduling:      true,
		MinFrameLengthBetweenTasks:       time.Millisecond,
		MaxFrameLengthBetweenTasks:       2 * time.Millisecond,
		MaxInframeTaskProcessing:         30 * time.Microsecond,
		TaskProcessingProhibitedInterval: 100 * time.Microsecond,
	}
	out := in.ToPipelineConfig()
	assert.Equal(t, in.MinFrameLengthBetweenTasks, out.MinFrameLengthBetweenTasks)
	assert.Equal(t, in.MaxFrameLengthBetweenTasks, out.MaxFrameLengthBetweenTasks)
	assert.Equal(t, in.TaskProcessingProhibitedInterval, out.TaskProcessingProhibitedInterval)
}
