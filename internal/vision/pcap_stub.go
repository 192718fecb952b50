//go:build !pcap
// +build !pcap

package vision

import (
	"context"
	"errors"
)

// ErrPCAPDisabled is returned by ReadPCAPFile in builds without the pcap tag.
var ErrPCAPDisabled = errors.New("PCAP support not enabled: rebuild with -tags=pcap to enable PCAP file reading")

// ReadPCAPFile is a stub implementation when PCAP support is disabled.
// Build with -tags=pcap to enable PCAP file reading.
func ReadPCAPFile(ctx context.Context, pcapFile string, udpPort int, sink FrameSink, stats *PacketStats, realtime bool) error {
	return ErrPCAPDisabled
}
