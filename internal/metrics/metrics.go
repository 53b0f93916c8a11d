// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package metrics exposes the toolkit's report-metrics surface: pending
// outbound packets, port open/close counts, and pipeline task throughput,
// as a pull-based prometheus.Collector whose Collect reads fresh values
// off the live loops on every scrape instead of maintaining its own
// running counters.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Snapshot is the instantaneous state a Sampler reports; Collect reads
// one fresh Snapshot per scrape.
type Snapshot struct {
	// PendingPackets is the sum of every UDP port's pending-packets
	// counter.
	PendingPackets int
	// OpenPorts / ClosingPorts are internal/netio.Loop.NumPorts()-style
	// counts split by lifecycle phase.
	OpenPorts    int
	ClosingPorts int
	// TasksProcessed / TasksFailed count tasks completed since process
	// start; the cmd binaries fill them from their ctl.Queue only.
	TasksProcessed uint64
	TasksFailed    uint64
}

// Sampler returns the current Snapshot; called once per Collect. The cmd
// binaries close over their *netio.Loop, a UDP port and their *ctl.Queue.
type Sampler func() Snapshot

// Collector is a prometheus.Collector exposing one toolkit instance's
// Snapshot as gauges/counters.
type Collector struct {
	sample Sampler

	pendingPackets *prometheus.Desc
	openPorts      *prometheus.Desc
	closingPorts   *prometheus.Desc
	tasksProcessed *prometheus.Desc
	tasksFailed    *prometheus.Desc
}

// NewCollector returns a Collector that calls sample on every scrape.
// constLabels are constant for the whole process (e.g. hostname or
// instance name).
func NewCollector(sample Sampler, constLabels prometheus.Labels) *Collector {
	return &Collector{
		sample: sample,
		pendingPackets: prometheus.NewDesc(
			"roc_pending_packets", "Outbound packets queued but not yet sent.", nil, constLabels),
		openPorts: prometheus.NewDesc(
			"roc_open_ports", "Network ports currently open.", nil, constLabels),
		closingPorts: prometheus.NewDesc(
			"roc_closing_ports", "Network ports in the async-close phase.", nil, constLabels),
		tasksProcessed: prometheus.NewDesc(
			"roc_tasks_processed_total", "Pipeline/control tasks completed.", nil, constLabels),
		tasksFailed: prometheus.NewDesc(
			"roc_tasks_failed_total", "Pipeline/control tasks completed with success=false.", nil, constLabels),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.pendingPackets
	ch <- c.openPorts
	ch <- c.closingPorts
	ch <- c.tasksProcessed
	ch <- c.tasksFailed
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.sample()
	ch <- prometheus.MustNewConstMetric(c.pendingPackets, prometheus.GaugeValue, float64(s.PendingPackets))
	ch <- prometheus.MustNewConstMetric(c.openPorts, prometheus.GaugeValue, float64(s.OpenPorts))
	ch <- prometheus.MustNewConstMetric(c.closingPorts, prometheus.GaugeValue, float64(s.ClosingPorts))
	ch <- prometheus.MustNewConstMetric(c.tasksProcessed, prometheus.CounterValue, float64(s.TasksProcessed))
	ch <- prometheus.MustNewConstMetric(c.tasksFailed, prometheus.CounterValue, float64(s.TasksFailed))
}
