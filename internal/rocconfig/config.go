// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package rocconfig loads the tunables of the pipeline loop, network
// loop, sender and receiver sessions through github.com/spf13/viper: a
// flat, mapstructure-tagged struct populated from environment variables
// and an optional config file, with every field given an explicit
// default.
package rocconfig

import (
	"os"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/roc-streaming/roc-toolkit-sub007/internal/pipeline"
)

// PipelineLoopConfig mirrors pipeline.Config with mapstructure tags so it
// can be populated from the environment; ToPipelineConfig converts it.
type PipelineLoopConfig struct {
	EnablePreciseTaskScheduling      bool          `mapstructure:"enable_precise_task_scheduling"`
	MinFrameLengthBetweenTasks       time.Duration `mapstructure:"min_frame_length_between_tasks"`
	MaxFrameLengthBetweenTasks       time.Duration `mapstructure:"max_frame_length_between_tasks"`
	MaxInframeTaskProcessing         time.Duration `mapstructure:"max_inframe_task_processing"`
	TaskProcessingProhibitedInterval time.Duration `mapstructure:"task_processing_prohibited_interval"`
}

// ToPipelineConfig converts to the type internal/pipeline.New expects.
func (c PipelineLoopConfig) ToPipelineConfig() pipeline.Config {
	return pipeline.Config{
		EnablePreciseTaskScheduling:      c.EnablePreciseTaskScheduling,
		MinFrameLengthBetweenTasks:       c.MinFrameLengthBetweenTasks,
		MaxFrameLengthBetweenTasks:       c.MaxFrameLengthBetweenTasks,
		MaxInframeTaskProcessing:         c.MaxInframeTaskProcessing,
		TaskProcessingProhibitedInterval: c.TaskProcessingProhibitedInterval,
	}
}

// NetworkConfig controls the per-interface socket options: multicast
// group/interface, address reuse, outgoing bind address, and
// non-blocking send.
type NetworkConfig struct {
	BindHost           string `mapstructure:"bind_host"`
	ReuseAddress       bool   `mapstructure:"reuse_address"`
	MulticastGroup     string `mapstructure:"multicast_group"`
	MulticastInterface string `mapstructure:"multicast_interface"`
	NonBlockingSend    bool   `mapstructure:"non_blocking_send"`
}

// SenderConfig holds a sender slot's endpoint wiring and wire format.
type SenderConfig struct {
	SourceEndpoint  string `mapstructure:"source_endpoint"`
	RepairEndpoint  string `mapstructure:"repair_endpoint"`
	ControlEndpoint string `mapstructure:"control_endpoint"`

	Codec            string `mapstructure:"codec"`
	SampleRate       uint32 `mapstructure:"sample_rate"`
	Channels         uint32 `mapstructure:"channels"`
	PayloadType      uint8  `mapstructure:"payload_type"`
	SamplesPerPacket int    `mapstructure:"samples_per_packet"`
}

// ReceiverConfig holds a receiver slot's endpoint wiring, jitter/watchdog
// tunables, and output format.
type ReceiverConfig struct {
	SourceEndpoint  string `mapstructure:"source_endpoint"`
	RepairEndpoint  string `mapstructure:"repair_endpoint"`
	ControlEndpoint string `mapstructure:"control_endpoint"`

	Codec           string        `mapstructure:"codec"`
	SampleRate      uint32        `mapstructure:"sample_rate"`
	Channels        uint32        `mapstructure:"channels"`
	TargetLatency   time.Duration `mapstructure:"target_latency"`
	NoSignalTimeout time.Duration `mapstructure:"no_signal_timeout"`
	GapTimeout      time.Duration `mapstructure:"gap_timeout"`
	LossBeep        bool          `mapstructure:"loss_beep"`
	MaxSnJump       int           `mapstructure:"max_sn_jump"`
	MaxTsJump       time.Duration `mapstructure:"max_ts_jump"`
}

// Config is the complete process configuration for either a roc-send or
// roc-recv binary; both read the sections that apply to them and ignore
// the rest.
type Config struct {
	Pipeline PipelineLoopConfig `mapstructure:"pipeline"`
	Network  NetworkConfig      `mapstructure:"network"`
	Sender   SenderConfig       `mapstructure:"sender"`
	Receiver ReceiverConfig     `mapstructure:"receiver"`

	LogFile  string `mapstructure:"log_file"`
	LogLevel string `mapstructure:"log_level"`
}

// Load reads configFile (if non-empty) plus environment variables of the
// form ROC_<SECTION>__<FIELD> (double underscore between section and
// field) into a Config, falling back to DefaultConfig's values for
// anything unset.
func Load(configFile string) (*Config, error) {
	v := viper.NewWithOptions(viper.KeyDelimiter("__"))
	v.SetEnvPrefix("ROC")
	v.AutomaticEnv()

	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil && !os.IsNotExist(err) {
			return nil, err
		}
	}

	var cfg Config
	decodeHook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHook)); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DefaultConfig returns a Config with the same defaults Load applies when
// nothing overrides them; useful for tests and for cmd/roc-send,
// cmd/roc-recv flag defaults.
func DefaultConfig() Config {
	v := viper.NewWithOptions(viper.KeyDelimiter("__"))
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.StringToTimeDurationHookFunc()))
	return cfg
}

func setDefaults(v *viper.Viper) {
	def := pipeline.DefaultConfig()
	v.SetDefault("pipeline__enable_precise_task_scheduling", def.EnablePreciseTaskScheduling)
	v.SetDefault("pipeline__min_frame_length_between_tasks", def.MinFrameLengthBetweenTasks)
	v.SetDefault("pipeline__max_frame_length_between_tasks", def.MaxFrameLengthBetweenTasks)
	v.SetDefault("pipeline__max_inframe_task_processing", def.MaxInframeTaskProcessing)
	v.SetDefault("pipeline__task_processing_prohibited_interval", def.TaskProcessingProhibitedInterval)

	v.SetDefault("network__bind_host", "0.0.0.0")
	v.SetDefault("network__reuse_address", true)
	v.SetDefault("network__non_blocking_send", true)

	v.SetDefault("sender__codec", "pcmu")
	v.SetDefault("sender__sample_rate", 8000)
	v.SetDefault("sender__channels", 1)
	v.SetDefault("sender__payload_type", 0) // PCMU
	v.SetDefault("sender__samples_per_packet", 160)

	v.SetDefault("receiver__codec", "pcmu")
	v.SetDefault("receiver__sample_rate", 8000)
	v.SetDefault("receiver__channels", 1)
	v.SetDefault("receiver__target_latency", 200*time.Millisecond)
	v.SetDefault("receiver__no_signal_timeout", 2*time.Second)
	v.SetDefault("receiver__gap_timeout", 1*time.Second)
	v.SetDefault("receiver__loss_beep", false)
	v.SetDefault("receiver__max_sn_jump", 100)
	v.SetDefault("receiver__max_ts_jump", 1*time.Second)

	v.SetDefault("log_file", "")
	v.SetDefault("log_level", "info")
}
