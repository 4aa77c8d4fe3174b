package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"

	"github.com/swarmguard/dpi-sniffer/internal/corelog"
	"github.com/swarmguard/dpi-sniffer/internal/resilience"
	"github.com/swarmguard/dpi-sniffer/scanner"
)

// injectRetryMaxDelay caps backoff on the packet-injection hot path: a
// write failure must not stall the capture loop behind a growing sleep, so
// this is far below resilience.Retry's generic default.
const injectRetryMaxDelay = 20 * time.Millisecond

// injectLogSampleRate logs at most 1-in-200 packet injection failures and
// breaker-open drops, since a dead output device can fail every packet at
// line rate and logging each one would itself become a bottleneck.
const injectLogSampleRate = 200

const bpfFilter = "ip"

// ErrCaptureRuntimeError is returned by Run when the underlying packet
// source stops delivering packets without a clean context cancellation —
// the pcap equivalent of pcap_loop returning a negative, non-break result.
var ErrCaptureRuntimeError = errors.New("capture: packet source terminated unexpectedly")

// Config holds the pipeline's capture-side settings.
type Config struct {
	InIface  string
	OutIface string
	Snaplen  int32
	Promisc  bool

	ReportCap    int
	OnInjectFail func(error)
}

// Pipeline owns the input/output pcap handles and runs the scan-and-forward
// loop against live capture handles opened by Open.
type Pipeline struct {
	in, out *pcap.Handle

	linkType   layers.LinkType
	linkHdrLen int

	matcher *scanner.ReloadableMatcher

	injectBreaker *resilience.CircuitBreaker
	injectLog     *corelog.SampledLogger
	metrics       *PipelineMetrics
	alerts        *AlertPublisher

	reportCap    int
	onInjectFail func(error)
}

// Open creates the input and output capture handles, applies the ingress
// filter/direction, and resolves the shared link-header length.
func Open(cfg Config, matcher *scanner.ReloadableMatcher, alerts *AlertPublisher) (*Pipeline, error) {
	snaplen := cfg.Snaplen
	if snaplen <= 0 {
		snaplen = 65535
	}

	in, err := pcap.OpenLive(cfg.InIface, snaplen, cfg.Promisc, time.Second)
	if err != nil {
		return nil, fmt.Errorf("capture: open input %q: %w", cfg.InIface, err)
	}
	if err := in.SetDirection(pcap.DirectionIn); err != nil {
		in.Close()
		return nil, fmt.Errorf("capture: set direction: %w", err)
	}
	if err := in.SetBPFFilter(bpfFilter); err != nil {
		in.Close()
		return nil, fmt.Errorf("capture: set filter: %w", err)
	}

	out, err := pcap.OpenLive(cfg.OutIface, snaplen, cfg.Promisc, time.Second)
	if err != nil {
		in.Close()
		return nil, fmt.Errorf("capture: open output %q: %w", cfg.OutIface, err)
	}

	inType := in.LinkType()
	outType := out.LinkType()
	if inType != outType {
		in.Close()
		out.Close()
		return nil, fmt.Errorf("capture: incompatible link types (input=%d, output=%d)", inType, outType)
	}

	hdrLen, err := LinkHeaderLen(int(inType))
	if err != nil {
		in.Close()
		out.Close()
		return nil, err
	}

	reportCap := cfg.ReportCap
	if reportCap <= 0 {
		reportCap = scanner.MaxReports
	}

	slog.Info("capture pipeline opened",
		"in", cfg.InIface, "out", cfg.OutIface, "link_type", inType, "link_hdr_len", hdrLen)

	return &Pipeline{
		in:            in,
		out:           out,
		linkType:      inType,
		linkHdrLen:    hdrLen,
		matcher:       matcher,
		injectBreaker: resilience.NewCircuitBreakerAdaptive(30*time.Second, 6, 5, 0.5, 10*time.Second, 2),
		injectLog:     corelog.NewSampledLogger(slog.Default(), injectLogSampleRate),
		metrics:       NewPipelineMetrics(),
		alerts:        alerts,
		reportCap:     reportCap,
		onInjectFail:  cfg.OnInjectFail,
	}, nil
}

// Run drives the capture loop until ctx is cancelled or the packet source
// stops unexpectedly.
func (p *Pipeline) Run(ctx context.Context) error {
	src := gopacket.NewPacketSource(p.in, p.in.LinkType())
	packets := src.Packets()

	for {
		select {
		case <-ctx.Done():
			return nil
		case pk, ok := <-packets:
			if !ok {
				return ErrCaptureRuntimeError
			}
			p.process(ctx, pk)
		}
	}
}

func (p *Pipeline) process(ctx context.Context, pk gopacket.Packet) {
	frame := pk.Data()
	pkt, ok := ParseFrameLayers(frame, p.linkType)
	if !ok {
		// Malformed or unrecognized frame: forward unchanged rather than drop.
		p.inject(ctx, frame)
		return
	}

	tm := p.matcher.Current()
	var reports []scanner.MatchReport
	if tm != nil && pkt.PayloadLen > 0 {
		reports = tm.ScanUpTo(pkt.Payload, p.reportCap)
	}

	if len(reports) == 0 {
		p.metrics.RecordPacket(pkt.PayloadLen, nil)
		p.inject(ctx, frame)
		return
	}

	resolved := ResolveReports(tm, reports)
	p.metrics.RecordPacket(pkt.PayloadLen, resolved)
	result := BuildResultFrame(frame, pkt.PayloadLen, resolved)
	p.inject(ctx, result)

	if p.alerts != nil {
		p.alerts.Publish(ctx, tm.BuildHash, resolved)
	}
}

// inject writes buf to the output handle, retrying transient failures and
// tripping the circuit breaker on sustained ones so a dead output device
// stops being hammered every packet.
func (p *Pipeline) inject(ctx context.Context, buf []byte) {
	if !p.injectBreaker.Allow() {
		p.metrics.RecordInjectError()
		p.injectLog.Warn("breaker_open", "packet dropped: injection circuit breaker open")
		return
	}
	_, err := resilience.Retry(ctx, 2, 5*time.Millisecond, injectRetryMaxDelay, func() (struct{}, error) {
		return struct{}{}, p.out.WritePacketData(buf)
	})
	p.injectBreaker.RecordResult(err == nil)
	if err != nil {
		p.metrics.RecordInjectError()
		if p.onInjectFail != nil {
			p.onInjectFail(err)
		} else {
			p.injectLog.Warn("write_failed", "packet injection failed", "error", err)
		}
	}
}

// Stats returns a snapshot of the running pipeline counters.
func (p *Pipeline) Stats() Snapshot {
	snap := p.metrics.Snapshot()
	snap.TotalBreakerDrops = p.injectBreaker.DroppedPackets()
	return snap
}

// Close releases both capture handles.
func (p *Pipeline) Close() {
	p.in.Close()
	p.out.Close()
}
