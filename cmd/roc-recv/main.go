// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Command roc-recv binds a source (plus optional repair and control)
// endpoint, runs a receiver-side pipeline.Loop, and writes decoded
// interleaved float32 PCM to stdout.
package main

import (
	"context"
	"encoding/binary"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roc-streaming/roc-toolkit-sub007/internal/audio"
	"github.com/roc-streaming/roc-toolkit-sub007/internal/audio/codec"
	"github.com/roc-streaming/roc-toolkit-sub007/internal/ctl"
	"github.com/roc-streaming/roc-toolkit-sub007/internal/metrics"
	"github.com/roc-streaming/roc-toolkit-sub007/internal/netio"
	"github.com/roc-streaming/roc-toolkit-sub007/internal/packet"
	"github.com/roc-streaming/roc-toolkit-sub007/internal/pipeline"
	"github.com/roc-streaming/roc-toolkit-sub007/internal/rocconfig"
	"github.com/roc-streaming/roc-toolkit-sub007/internal/rocutil"
	"github.com/roc-streaming/roc-toolkit-sub007/internal/rtpvalidate"
	"github.com/roc-streaming/roc-toolkit-sub007/internal/session"
	"github.com/roc-streaming/roc-toolkit-sub007/pkg/endpoint"
)

func main() {
	configFile := flag.String("config", "", "optional config file (env ROC_... overrides take precedence)")
	source := flag.String("source", "", "source endpoint URI to bind, e.g. rtp://0.0.0.0:10001 (required)")
	repair := flag.String("repair", "", "repair endpoint URI to bind, required if source carries a FEC scheme")
	control := flag.String("control", "", "control (rtcp) endpoint URI to bind")
	metricsAddr := flag.String("metrics-addr", "", "if set, serve Prometheus metrics on this address")
	flag.Parse()

	cfg, err := rocconfig.Load(*configFile)
	if err != nil {
		log.Fatalf("roc-recv: load config: %v", err)
	}

	if *source == "" {
		*source = cfg.Receiver.SourceEndpoint
	}
	if *repair == "" {
		*repair = cfg.Receiver.RepairEndpoint
	}
	if *control == "" {
		*control = cfg.Receiver.ControlEndpoint
	}
	if *source == "" {
		log.Fatal("roc-recv: -source is required (or receiver.source_endpoint in config)")
	}

	logger, err := rocutil.NewZapLogger(cfg.LogFile, cfg.LogFile == "")
	if err != nil {
		log.Fatalf("roc-recv: build logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Infow("roc-recv: shutting down")
		cancel()
	}()

	if err := run(ctx, cfg, logger, *source, *repair, *control, *metricsAddr); err != nil && !errors.Is(err, context.Canceled) {
		logger.Errorw("roc-recv: fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *rocconfig.Config, logger rocutil.Logger, sourceURI, repairURI, controlURI, metricsAddr string) error {
	slot, err := endpoint.NewSlot(sourceURI, repairURI, controlURI)
	if err != nil {
		return fmt.Errorf("roc-recv: %w", err)
	}

	decoder, err := codec.NewDecoder(codec.Name(cfg.Receiver.Codec), int(cfg.Receiver.SampleRate), int(cfg.Receiver.Channels))
	if err != nil {
		return fmt.Errorf("roc-recv: %w", err)
	}

	decoderSpec := audio.SampleSpec{SampleRate: cfg.Receiver.SampleRate, ChannelMask: channelMask(cfg.Receiver.Channels)}
	outputSpec := decoderSpec

	sessCfg := session.ReceiverConfig{
		Validate: rtpvalidate.Config{
			MaxSnJump: uint16(cfg.Receiver.MaxSnJump),
			MaxTsJump: cfg.Receiver.MaxTsJump,
		},
		TargetLatency:   cfg.Receiver.TargetLatency,
		NoSignalTimeout: cfg.Receiver.NoSignalTimeout,
		GapTimeout:      cfg.Receiver.GapTimeout,
		LossBeep:        cfg.Receiver.LossBeep,
	}

	sess, err := session.NewReceiverSession(sessCfg, decoder, decoderSpec, outputSpec, nil, logger)
	if err != nil {
		return fmt.Errorf("roc-recv: %w", err)
	}

	netLoop, err := netio.New(logger)
	if err != nil {
		return fmt.Errorf("roc-recv: start network loop: %w", err)
	}
	defer netLoop.Close()

	sourcePort, err := netio.OpenUDP(ctx, netLoop, netio.UDPConfig{
		BindAddr:      slot.Source.Addr,
		ReuseAddr:     cfg.Network.ReuseAddress,
		InboundWriter: sess,
	}, logger)
	if err != nil {
		return fmt.Errorf("roc-recv: open source port: %w", err)
	}

	if slot.Repair != nil {
		_, err := netio.OpenUDP(ctx, netLoop, netio.UDPConfig{
			BindAddr:      slot.Repair.Addr,
			ReuseAddr:     cfg.Network.ReuseAddress,
			InboundWriter: repairWriter{sess: sess},
		}, logger)
		if err != nil {
			return fmt.Errorf("roc-recv: open repair port: %w", err)
		}
	}

	var controlPort *netio.UDPPort
	if slot.Control != nil {
		controlPort, err = netio.OpenUDP(ctx, netLoop, netio.UDPConfig{
			BindAddr:      slot.Control.Addr,
			ReuseAddr:     cfg.Network.ReuseAddress,
			InboundWriter: controlWriter{logger: logger},
		}, logger)
		if err != nil {
			return fmt.Errorf("roc-recv: open control port: %w", err)
		}
	}

	queue := ctl.NewQueue(logger)
	defer queue.Close()
	scheduler := ctl.NewPipelineScheduler(queue)

	delegate := &receiverDelegate{sess: sess, out: os.Stdout, spec: outputSpec, logger: logger}
	ploop := pipeline.New(scheduler, cfg.Pipeline.ToPipelineConfig(), outputSpec, pipeline.DirReadFrames, delegate, logger, time.Now())

	if metricsAddr != "" {
		collector := metrics.NewCollector(func() metrics.Snapshot {
			return metrics.Snapshot{
				PendingPackets: sourcePort.PendingPackets(),
				OpenPorts:      netLoop.NumPorts(),
				ClosingPorts:   netLoop.ClosingPorts(),
				TasksProcessed: queue.TasksProcessed(),
				TasksFailed:    queue.TasksFailed(),
			}
		}, prometheus.Labels{"role": "receiver"})
		reg := prometheus.NewRegistry()
		reg.MustRegister(collector)
		go serveMetrics(metricsAddr, reg, logger)
	}

	if controlPort != nil {
		go sendReceiverReportsLoop(ctx, controlPort, slot.Control.Addr, logger)
	}

	samplesPerFrame := int(outputSpec.NsToSamplesPerChan(20 * time.Millisecond))
	return recvLoop(ctx, ploop, outputSpec, samplesPerFrame, logger)
}

func recvLoop(ctx context.Context, ploop *pipeline.Loop, spec audio.SampleSpec, samplesPerFrame int, logger rocutil.Logger) error {
	ticker := time.NewTicker(spec.SamplesPerChanToNs(uint64(samplesPerFrame)))
	defer ticker.Stop()

	frame := &audio.Frame{Raw: make([]float32, samplesPerFrame*spec.NumChannels())}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			frame.Raw = frame.Raw[:samplesPerFrame*spec.NumChannels()]
			if err := ploop.ProcessSubframesAndTasks(frame, packet.StreamTimestamp(samplesPerFrame), audio.ModeHard); err != nil {
				return fmt.Errorf("roc-recv: process frame: %w", err)
			}
		}
	}
}

// receiverDelegate implements pipeline.Delegate, reading exactly
// subframeDuration samples-per-channel of decoded audio per call and
// writing them as raw float32 LE samples to stdout.
type receiverDelegate struct {
	sess   *session.ReceiverSession
	out    io.Writer
	spec   audio.SampleSpec
	logger rocutil.Logger
}

func (d *receiverDelegate) Timestamp() time.Time { return time.Now() }
func (d *receiverDelegate) ThreadID() uint64     { return 1 }

func (d *receiverDelegate) ProcessSubframe(frame *audio.Frame, subframeDuration packet.StreamTimestamp, mode audio.ReadMode) error {
	dur := d.spec.StreamTimestampDeltaToNs(packet.StreamTimestampDiff(subframeDuration))
	alive, err := d.sess.ReadFrame(frame, dur)
	if err != nil {
		return err
	}
	if !alive {
		d.logger.Warnw("roc-recv: session watchdog declared stream dead")
	}
	return writeFloat32LE(d.out, frame.Raw)
}

func (d *receiverDelegate) ProcessTask(task *pipeline.Task) bool {
	return true
}

type repairWriter struct {
	sess *session.ReceiverSession
}

func (r repairWriter) WritePacket(pkt *packet.Packet) error {
	r.sess.HandleRepairPacket(pkt)
	return nil
}

type controlWriter struct {
	logger rocutil.Logger
}

func (c controlWriter) WritePacket(pkt *packet.Packet) error {
	pkts, err := ctl.ParseReports(pkt.Buf)
	if err != nil {
		c.logger.Debugw("roc-recv: dropping unparseable rtcp packet", "err", err)
		return nil
	}
	c.logger.Debugw("roc-recv: received rtcp report", "packets", len(pkts))
	return nil
}

func sendReceiverReportsLoop(ctx context.Context, controlPort *netio.UDPPort, dst *net.UDPAddr, logger rocutil.Logger) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Per-source reception stats (FractionLost/TotalLost/Jitter)
			// aren't currently exposed off ReceiverSession; report a
			// zeroed block rather than fabricate plausible-looking
			// numbers.
			b, err := ctl.BuildReceiverReport(0, ctl.ReceiverStats{})
			if err != nil {
				logger.Warnw("roc-recv: build receiver report", "err", err)
				continue
			}
			pkt := packet.Packet{Flags: packet.FlagUDP | packet.FlagRTCP, Buf: b}
			pkt.UDP.DstAddr = dst
			pkt.RTP.Payload = b
			if err := controlPort.Write(&pkt); err != nil {
				logger.Warnw("roc-recv: write receiver report", "err", err)
			}
		}
	}
}

func serveMetrics(addr string, reg *prometheus.Registry, logger rocutil.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Warnw("roc-recv: metrics server", "err", err)
	}
}

func writeFloat32LE(w io.Writer, samples []float32) error {
	raw := make([]byte, 4*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint32(raw[i*4:], math.Float32bits(s))
	}
	_, err := w.Write(raw)
	return err
}

func channelMask(channels uint32) audio.ChannelMask {
	if channels >= 2 {
		return audio.ChannelStereo
	}
	return audio.ChannelMono
}
