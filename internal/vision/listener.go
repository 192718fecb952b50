package vision

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

// FrameSink receives decoded frames. Batcher is the production sink.
type FrameSink interface {
	AddFrame(f Frame)
}

// PacketStats counts what the listener has received. Safe for concurrent
// use.
type PacketStats struct {
	mu           sync.Mutex
	packets      uint64
	bytes        uint64
	frames       uint64
	nonDetection uint64
	decodeErrors uint64
}

// PacketStatsSnapshot is a point-in-time copy of PacketStats.
type PacketStatsSnapshot struct {
	Packets      uint64
	Bytes        uint64
	Frames       uint64
	NonDetection uint64
	DecodeErrors uint64
}

func (s *PacketStats) addPacket(n int) {
	s.mu.Lock()
	s.packets++
	s.bytes += uint64(n)
	s.mu.Unlock()
}

func (s *PacketStats) addFrame() {
	s.mu.Lock()
	s.frames++
	s.mu.Unlock()
}

func (s *PacketStats) addNonDetection() {
	s.mu.Lock()
	s.nonDetection++
	s.mu.Unlock()
}

func (s *PacketStats) addDecodeError() {
	s.mu.Lock()
	s.decodeErrors++
	s.mu.Unlock()
}

// Snapshot returns the current counters.
func (s *PacketStats) Snapshot() PacketStatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return PacketStatsSnapshot{
		Packets:      s.packets,
		Bytes:        s.bytes,
		Frames:       s.frames,
		NonDetection: s.nonDetection,
		DecodeErrors: s.decodeErrors,
	}
}

// LogStats writes the counters to the diag stream.
func (s *PacketStats) LogStats() {
	snap := s.Snapshot()
	diagf("packets=%d bytes=%d frames=%d non_detection=%d decode_errors=%d",
		snap.Packets, snap.Bytes, snap.Frames, snap.NonDetection, snap.DecodeErrors)
}

// ListenerConfig contains configuration options for the UDP listener.
type ListenerConfig struct {
	Address     string // host:port; a multicast group joins that group
	Interface   string // multicast interface name, empty for the system default
	RcvBuf      int
	LogInterval time.Duration
	Sink        FrameSink
	Stats       *PacketStats
}

// Listener receives SSL-Vision packets over UDP and passes decoded
// detection frames to its sink.
type Listener struct {
	address     string
	iface       string
	rcvBuf      int
	logInterval time.Duration
	sink        FrameSink
	stats       *PacketStats

	mu   sync.Mutex
	conn *net.UDPConn
}

// NewListener creates a listener with the provided configuration.
func NewListener(cfg ListenerConfig) *Listener {
	stats := cfg.Stats
	if stats == nil {
		stats = &PacketStats{}
	}
	logInterval := cfg.LogInterval
	if logInterval == 0 {
		logInterval = time.Minute
	}
	return &Listener{
		address:     cfg.Address,
		iface:       cfg.Interface,
		rcvBuf:      cfg.RcvBuf,
		logInterval: logInterval,
		sink:        cfg.Sink,
		stats:       stats,
	}
}

// Stats returns the listener's packet counters.
func (l *Listener) Stats() *PacketStats {
	return l.stats
}

// Addr returns the bound local address, or nil before Start has bound.
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return nil
	}
	return l.conn.LocalAddr()
}

func (l *Listener) listen() (*net.UDPConn, error) {
	addr, err := net.ResolveUDPAddr("udp", l.address)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve UDP address: %w", err)
	}
	if addr.IP != nil && addr.IP.IsMulticast() {
		var ifi *net.Interface
		if l.iface != "" {
			ifi, err = net.InterfaceByName(l.iface)
			if err != nil {
				return nil, fmt.Errorf("failed to find interface %q: %w", l.iface, err)
			}
		}
		conn, err := net.ListenMulticastUDP("udp4", ifi, addr)
		if err != nil {
			return nil, fmt.Errorf("failed to join multicast group %s: %w", addr, err)
		}
		return conn, nil
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on UDP address: %w", err)
	}
	return conn, nil
}

// Start receives packets until ctx is cancelled.
func (l *Listener) Start(ctx context.Context) error {
	conn, err := l.listen()
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.conn = conn
	l.mu.Unlock()
	defer conn.Close()

	if l.rcvBuf > 0 {
		if err := conn.SetReadBuffer(l.rcvBuf); err != nil {
			opsf("failed to set UDP receive buffer size to %d: %v", l.rcvBuf, err)
		}
	}
	diagf("listening on %s", conn.LocalAddr())

	go l.startStatsLogging(ctx)

	// SSL-Vision packets stay well under one Ethernet MTU.
	buffer := make([]byte, 4096)
	for {
		select {
		case <-ctx.Done():
			diagf("listener stopping: %v", ctx.Err())
			return ctx.Err()
		default:
		}

		// Read deadline lets the loop notice cancellation.
		conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		n, addr, err := conn.ReadFromUDP(buffer)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			opsf("UDP read error: %v", err)
			continue
		}

		if err := l.handlePacket(buffer[:n]); err != nil {
			diagf("dropped packet from %v: %v", addr, err)
		}
	}
}

func (l *Listener) startStatsLogging(ctx context.Context) {
	ticker := time.NewTicker(l.logInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.stats.LogStats()
		}
	}
}

// handlePacket decodes one packet and forwards its frame to the sink.
// Geometry packets are counted and ignored.
func (l *Listener) handlePacket(packet []byte) error {
	l.stats.addPacket(len(packet))

	frame, err := DecodeWrapper(packet)
	if errors.Is(err, ErrNoDetection) {
		l.stats.addNonDetection()
		return nil
	}
	if err != nil {
		l.stats.addDecodeError()
		return err
	}

	l.stats.addFrame()
	tracef("frame %d camera %d t=%.6f balls=%d yellow=%d blue=%d",
		frame.FrameNumber, frame.CameraID, frame.CaptureTime, len(frame.Balls), len(frame.Yellow), len(frame.Blue))
	if l.sink != nil {
		l.sink.AddFrame(*frame)
	}
	return nil
}

// Close closes the UDP socket.
func (l *Listener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn != nil {
		return l.conn.Close()
	}
	return nil
}
