package network

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/banshee-data/simbridge/internal/monitoring"
)

// Ingester accepts raw payloads as if they had arrived on the bridge's
// sockets. *Poller implements it by handing the payloads to its own
// goroutine.
type Ingester interface {
	IngestControl(payload []byte)
	IngestTelemetry(payload []byte)
}

// ReplaySummary reports what a capture replay fed into the bridge.
type ReplaySummary struct {
	Packets   int
	Control   int
	Telemetry int
	Skipped   int
}

// ReplayPCAP reads a pcap capture and feeds every UDP payload addressed to
// controlPort or telemetryPort into sink, in capture order. Other traffic is
// counted as skipped. Packets are replayed as fast as they can be read.
func ReplayPCAP(ctx context.Context, path string, controlPort, telemetryPort int, sink Ingester) (ReplaySummary, error) {
	var summary ReplaySummary

	f, err := os.Open(path)
	if err != nil {
		return summary, fmt.Errorf("failed to open capture %s: %w", path, err)
	}
	defer f.Close()

	r, err := pcapgo.NewReader(f)
	if err != nil {
		return summary, fmt.Errorf("failed to read capture header: %w", err)
	}
	linkType := r.LinkType()

	for {
		if err := ctx.Err(); err != nil {
			monitoring.Opsf("capture replay stopping due to context cancellation (processed %d packets)", summary.Packets)
			return summary, err
		}

		data, _, err := r.ReadPacketData()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return summary, fmt.Errorf("failed to read packet %d: %w", summary.Packets+1, err)
		}
		summary.Packets++

		packet := gopacket.NewPacket(data, linkType, gopacket.Default)
		udpLayer := packet.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			summary.Skipped++
			continue
		}
		udp, ok := udpLayer.(*layers.UDP)
		if !ok {
			summary.Skipped++
			continue
		}

		switch int(udp.DstPort) {
		case controlPort:
			summary.Control++
			sink.IngestControl(udp.Payload)
		case telemetryPort:
			summary.Telemetry++
			sink.IngestTelemetry(udp.Payload)
		default:
			summary.Skipped++
		}
	}

	monitoring.Opsf("capture replay complete: %d packets, %d control, %d telemetry, %d skipped",
		summary.Packets, summary.Control, summary.Telemetry, summary.Skipped)
	return summary, nil
}
