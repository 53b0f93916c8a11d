// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Command roc-send reads raw interleaved float32 PCM from stdin and
// streams it as RTP audio to a remote receiver, driving a sender-side
// pipeline.Loop over a netio.Loop UDP port.
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
	"github.com/roc-streaming/roc-toolkit-sub007/internal/session"
	"github.com/roc-streaming/roc-toolkit-sub007/pkg/endpoint"
)

func main() {
	configFile := flag.String("config", "", "optional config file (env ROC_... overrides take precedence)")
	source := flag.String("source", "", "source endpoint URI, e.g. rtp://239.0.0.1:10001 (required)")
	repair := flag.String("repair", "", "repair endpoint URI, required if source carries a FEC scheme")
	control := flag.String("control", "", "control (rtcp) endpoint URI")
	metricsAddr := flag.String("metrics-addr", "", "if set, serve Prometheus metrics on this address")
	flag.Parse()

	cfg, err := rocconfig.Load(*configFile)
	if err != nil {
		log.Fatalf("roc-send: load config: %v", err)
	}

	if *source == "" {
		*source = cfg.Sender.SourceEndpoint
	}
	if *repair == "" {
		*repair = cfg.Sender.RepairEndpoint
	}
	if *control == "" {
		*control = cfg.Sender.ControlEndpoint
	}
	if *source == "" {
		log.Fatal("roc-send: -source is required (or sender.source_endpoint in config)")
	}

	logger, err := rocutil.NewZapLogger(cfg.LogFile, cfg.LogFile == "")
	if err != nil {
		log.Fatalf("roc-send: build logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Infow("roc-send: shutting down")
		cancel()
	}()

	if err := run(ctx, cfg, logger, *source, *repair, *control, *metricsAddr); err != nil && !errors.Is(err, context.Canceled) {
		logger.Errorw("roc-send: fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *rocconfig.Config, logger rocutil.Logger, sourceURI, repairURI, controlURI, metricsAddr string) error {
	slot, err := endpoint.NewSlot(sourceURI, repairURI, controlURI)
	if err != nil {
		return fmt.Errorf("roc-send: %w", err)
	}

	netLoop, err := netio.New(logger)
	if err != nil {
		return fmt.Errorf("roc-send: start network loop: %w", err)
	}
	defer netLoop.Close()

	sourcePort, err := netio.OpenUDP(ctx, netLoop, netio.UDPConfig{
		BindAddr:  &net.UDPAddr{IP: net.ParseIP(cfg.Network.BindHost)},
		ReuseAddr: cfg.Network.ReuseAddress,
	}, logger)
	if err != nil {
		return fmt.Errorf("roc-send: open source port: %w", err)
	}

	var controlPort *netio.UDPPort
	if slot.Control != nil {
		controlPort, err = netio.OpenUDP(ctx, netLoop, netio.UDPConfig{
			BindAddr:  &net.UDPAddr{IP: net.ParseIP(cfg.Network.BindHost)},
			ReuseAddr: cfg.Network.ReuseAddress,
		}, logger)
		if err != nil {
			return fmt.Errorf("roc-send: open control port: %w", err)
		}
	}

	encoder, err := codec.NewEncoder(codec.Name(cfg.Sender.Codec), int(cfg.Sender.SampleRate), int(cfg.Sender.Channels))
	if err != nil {
		return fmt.Errorf("roc-send: %w", err)
	}

	wireSpec := audio.SampleSpec{SampleRate: cfg.Sender.SampleRate, ChannelMask: channelMask(cfg.Sender.Channels)}
	sink := &connectedSink{port: sourcePort, dst: slot.Source.Addr}

	sess, err := session.NewSenderSession(wireSpec, wireSpec, encoder, sink, cfg.Sender.PayloadType, cfg.Sender.SamplesPerPacket, nil)
	if err != nil {
		return fmt.Errorf("roc-send: %w", err)
	}

	queue := ctl.NewQueue(logger)
	defer queue.Close()
	scheduler := ctl.NewPipelineScheduler(queue)

	delegate := &senderDelegate{sess: sess, in: os.Stdin, spec: wireSpec}
	ploop := pipeline.New(scheduler, cfg.Pipeline.ToPipelineConfig(), wireSpec, pipeline.DirWriteFrames, delegate, logger, time.Now())

	if metricsAddr != "" {
		collector := metrics.NewCollector(func() metrics.Snapshot {
			return metrics.Snapshot{
				PendingPackets: sourcePort.PendingPackets(),
				OpenPorts:      netLoop.NumPorts(),
				ClosingPorts:   netLoop.ClosingPorts(),
				TasksProcessed: queue.TasksProcessed(),
				TasksFailed:    queue.TasksFailed(),
			}
		}, prometheus.Labels{"role": "sender"})
		reg := prometheus.NewRegistry()
		reg.MustRegister(collector)
		go serveMetrics(metricsAddr, reg, logger)
	}

	if slot.Control != nil {
		go sendSenderReportsLoop(ctx, controlPort, slot.Control.Addr, logger)
	}

	return sendLoop(ctx, ploop, wireSpec, cfg.Sender.SamplesPerPacket, sess, logger)
}

func sendLoop(ctx context.Context, ploop *pipeline.Loop, spec audio.SampleSpec, samplesPerPacket int, sess *session.SenderSession, logger rocutil.Logger) error {
	ticker := time.NewTicker(spec.SamplesPerChanToNs(uint64(samplesPerPacket)))
	defer ticker.Stop()

	frame := &audio.Frame{Raw: make([]float32, samplesPerPacket*spec.NumChannels())}

	for {
		select {
		case <-ctx.Done():
			_ = sess.Flush()
			return ctx.Err()
		case <-ticker.C:
			frame.Raw = frame.Raw[:samplesPerPacket*spec.NumChannels()]
			err := ploop.ProcessSubframesAndTasks(frame, packet.StreamTimestamp(samplesPerPacket), audio.ModeHard)
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				logger.Infow("roc-send: input exhausted, flushing and exiting")
				_ = sess.Flush()
				return nil
			}
			if err != nil {
				return fmt.Errorf("roc-send: process frame: %w", err)
			}
		}
	}
}

// senderDelegate implements pipeline.Delegate, pulling exactly
// subframeDuration samples-per-channel of raw audio from stdin per call
// and writing them through the session into the wire.
type senderDelegate struct {
	sess *session.SenderSession
	in   io.Reader
	spec audio.SampleSpec
	buf  []float32
}

func (d *senderDelegate) Timestamp() time.Time { return time.Now() }
func (d *senderDelegate) ThreadID() uint64     { return 1 }

func (d *senderDelegate) ProcessSubframe(frame *audio.Frame, subframeDuration packet.StreamTimestamp, mode audio.ReadMode) error {
	n := int(subframeDuration) * d.spec.NumChannels()
	if cap(d.buf) < n {
		d.buf = make([]float32, n)
	}
	buf := d.buf[:n]
	if err := readFloat32LE(d.in, buf); err != nil {
		return err
	}
	frame.IsRaw = true
	frame.Raw = buf
	frame.Duration = subframeDuration
	return d.sess.WriteFrame(frame)
}

func (d *senderDelegate) ProcessTask(task *pipeline.Task) bool {
	return true
}

// connectedSink adapts a netio.UDPPort into a session.PacketSink: the
// packetizer's emit() never sets pkt.UDP.DstAddr (that's a transport
// concern), so the sink stamps the configured remote address before
// handing the packet to the port.
type connectedSink struct {
	port *netio.UDPPort
	dst  *net.UDPAddr
}

func (s *connectedSink) Write(pkt *packet.Packet) error {
	pkt.Flags |= packet.FlagUDP
	pkt.UDP.DstAddr = s.dst
	pkt.UDP.QueueTime = time.Now()
	return s.port.Write(pkt)
}

func readFloat32LE(r io.Reader, buf []float32) error {
	raw := make([]byte, 4*len(buf))
	if _, err := io.ReadFull(r, raw); err != nil {
		return err
	}
	for i := range buf {
		bits := binary.LittleEndian.Uint32(raw[i*4:])
		buf[i] = math.Float32frombits(bits)
	}
	return nil
}

func sendSenderReportsLoop(ctx context.Context, controlPort *netio.UDPPort, dst *net.UDPAddr, logger rocutil.Logger) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// SenderStats is per-session bookkeeping the toolkit doesn't
			// currently expose off SenderSession; report zeros rather than
			// fabricate a plausible-looking counter.
			b, err := ctl.BuildSenderReport(ctl.SenderStats{ReportTime: time.Now()})
			if err != nil {
				logger.Warnw("roc-send: build sender report", "err", err)
				continue
			}
			pkt := packet.Packet{Flags: packet.FlagUDP | packet.FlagRTCP, Buf: b}
			pkt.UDP.DstAddr = dst
			pkt.RTP.Payload = b
			if err := controlPort.Write(&pkt); err != nil {
				logger.Warnw("roc-send: write sender report", "err", err)
			}
		}
	}
}

func serveMetrics(addr string, reg *prometheus.Registry, logger rocutil.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Warnw("roc-send: metrics server", "err", err)
	}
}

func channelMask(channels uint32) audio.ChannelMask {
	if channels >= 2 {
		return audio.ChannelStereo
	}
	return audio.ChannelMono
}
