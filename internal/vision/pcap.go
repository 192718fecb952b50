//go:build pcap
// +build pcap

package vision

import (
	"context"
	"fmt"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
)

// ReadPCAPFile replays SSL-Vision packets captured on udpPort into sink.
// When realtime is set, packets are paced by their capture timestamps.
// This function is only available when building with the 'pcap' build tag.
func ReadPCAPFile(ctx context.Context, pcapFile string, udpPort int, sink FrameSink, stats *PacketStats, realtime bool) error {
	handle, err := pcap.OpenOffline(pcapFile)
	if err != nil {
		return fmt.Errorf("failed to open PCAP file %s: %w", pcapFile, err)
	}
	defer handle.Close()

	filterStr := fmt.Sprintf("udp port %d", udpPort)
	if err := handle.SetBPFFilter(filterStr); err != nil {
		return fmt.Errorf("failed to set BPF filter '%s': %w", filterStr, err)
	}
	diagf("PCAP BPF filter set: %s", filterStr)

	l := NewListener(ListenerConfig{Sink: sink, Stats: stats})
	packetSource := gopacket.NewPacketSource(handle, handle.LinkType())
	packetCount := 0
	startTime := time.Now()
	var firstCapture time.Time

	for {
		select {
		case <-ctx.Done():
			diagf("PCAP reader stopping due to context cancellation (processed %d packets)", packetCount)
			return ctx.Err()
		case packet := <-packetSource.Packets():
			if packet == nil {
				diagf("PCAP file reading complete: %d packets processed in %v", packetCount, time.Since(startTime))
				return nil
			}
			packetCount++

			udp, ok := packet.Layer(layers.LayerTypeUDP).(*layers.UDP)
			if !ok || len(udp.Payload) == 0 {
				continue
			}

			if realtime {
				captured := packet.Metadata().Timestamp
				if firstCapture.IsZero() {
					firstCapture = captured
				}
				if wait := captured.Sub(firstCapture) - time.Since(startTime); wait > 0 {
					select {
					case <-ctx.Done():
						return ctx.Err()
					case <-time.After(wait):
					}
				}
			}

			if err := l.handlePacket(udp.Payload); err != nil {
				diagf("PCAP packet %d: %v", packetCount, err)
			}
		}
	}
}
