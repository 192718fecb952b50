package vision

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func sampleFrame() *Frame {
	return &Frame{
		FrameNumber: 4711,
		CaptureTime: 1712345678.125,
		SentTime:    1712345678.25,
		CameraID:    2,
		Balls: []BallDetection{
			{Confidence: 0.75, Area: 86, X: 500, Y: -250.5, Z: 21.5, PixelX: 320, PixelY: 240},
		},
		Yellow: []RobotDetection{
			{Confidence: 1, ID: 5, X: 2000, Y: 0, Orientation: 1.5, PixelX: 10, PixelY: 20, Height: 140},
		},
		Blue: []RobotDetection{
			{Confidence: 0.5, ID: 3, X: 1000, Y: 0, Orientation: 0},
			{Confidence: 0.5, ID: 0, X: -3000, Y: 1500, Orientation: -3},
		},
	}
}

// ---------------------------------------------------------------------------
// Decoding
// ---------------------------------------------------------------------------

func TestDecodeWrapper(t *testing.T) {
	t.Parallel()

	t.Run("encoded frame decodes to the same value", func(t *testing.T) {
		t.Parallel()
		want := sampleFrame()
		got, err := DecodeWrapper(EncodeWrapper(want))
		require.NoError(t, err)
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("DecodeWrapper mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("geometry-only packet", func(t *testing.T) {
		t.Parallel()
		var b []byte
		b = protowire.AppendTag(b, wrapperGeometry, protowire.BytesType)
		b = protowire.AppendBytes(b, []byte{0x08, 0x01})

		_, err := DecodeWrapper(b)
		assert.ErrorIs(t, err, ErrNoDetection)
	})

	t.Run("empty packet", func(t *testing.T) {
		t.Parallel()
		_, err := DecodeWrapper(nil)
		assert.ErrorIs(t, err, ErrNoDetection)
	})

	t.Run("truncated packet", func(t *testing.T) {
		t.Parallel()
		b := EncodeWrapper(sampleFrame())
		_, err := DecodeWrapper(b[:len(b)-3])
		assert.ErrorIs(t, err, ErrMalformedPacket)
	})

	t.Run("garbage", func(t *testing.T) {
		t.Parallel()
		_, err := DecodeWrapper([]byte{0xff, 0xff, 0xff})
		assert.ErrorIs(t, err, ErrMalformedPacket)
	})

	t.Run("robot without id", func(t *testing.T) {
		t.Parallel()
		f := &Frame{Blue: []RobotDetection{{ID: -1, X: 10}}}
		got, err := DecodeWrapper(EncodeWrapper(f))
		require.NoError(t, err)
		require.Len(t, got.Blue, 1)
		assert.Equal(t, -1, got.Blue[0].ID)
		assert.Equal(t, 10.0, got.Blue[0].X)
	})

	t.Run("ball area and height fields", func(t *testing.T) {
		t.Parallel()
		got, err := DecodeWrapper(EncodeWrapper(sampleFrame()))
		require.NoError(t, err)
		require.Len(t, got.Balls, 1)
		assert.Equal(t, uint32(86), got.Balls[0].Area)
		assert.Equal(t, 21.5, got.Balls[0].Z)
		require.Len(t, got.Yellow, 1)
		assert.Equal(t, 140.0, got.Yellow[0].Height)
	})

	t.Run("unknown fields are skipped", func(t *testing.T) {
		t.Parallel()
		b := EncodeWrapper(sampleFrame())
		b = protowire.AppendTag(b, 99, protowire.VarintType)
		b = protowire.AppendVarint(b, 12345)
		b = protowire.AppendTag(b, 100, protowire.Fixed32Type)
		b = protowire.AppendFixed32(b, 7)

		got, err := DecodeWrapper(b)
		require.NoError(t, err)
		assert.Equal(t, uint32(4711), got.FrameNumber)
	})
}

func TestFrameTeams(t *testing.T) {
	t.Parallel()
	f := sampleFrame()

	self, opp := f.Teams(true)
	assert.Equal(t, f.Blue, self)
	assert.Equal(t, f.Yellow, opp)

	self, opp = f.Teams(false)
	assert.Equal(t, f.Yellow, self)
	assert.Equal(t, f.Blue, opp)

	assert.Equal(t, 4, f.DetectionCount())
}

// ---------------------------------------------------------------------------
// Batcher
// ---------------------------------------------------------------------------

func TestBatcher(t *testing.T) {
	t.Parallel()

	t.Run("drain returns frames in order and empties", func(t *testing.T) {
		t.Parallel()
		b := NewBatcher(4)
		b.AddFrame(Frame{FrameNumber: 1})
		b.AddFrame(Frame{FrameNumber: 2})

		got := b.Drain()
		require.Len(t, got, 2)
		assert.Equal(t, uint32(1), got[0].FrameNumber)
		assert.Equal(t, uint32(2), got[1].FrameNumber)
		assert.Nil(t, b.Drain())
	})

	t.Run("full batcher drops the oldest", func(t *testing.T) {
		t.Parallel()
		b := NewBatcher(2)
		for i := uint32(1); i <= 3; i++ {
			b.AddFrame(Frame{FrameNumber: i})
		}

		got := b.Drain()
		require.Len(t, got, 2)
		assert.Equal(t, uint32(2), got[0].FrameNumber)
		assert.Equal(t, uint32(3), got[1].FrameNumber)
		assert.Equal(t, uint64(1), b.Dropped())
	})

	t.Run("zero capacity uses default", func(t *testing.T) {
		t.Parallel()
		b := NewBatcher(0)
		assert.Equal(t, DefaultBatchCapacity, b.capacity)
	})
}

// ---------------------------------------------------------------------------
// Listener
// ---------------------------------------------------------------------------

type chanSink chan Frame

func (c chanSink) AddFrame(f Frame) { c <- f }

func TestListener_HandlePacket(t *testing.T) {
	t.Parallel()
	b := NewBatcher(8)
	l := NewListener(ListenerConfig{Sink: b})

	require.NoError(t, l.handlePacket(EncodeWrapper(sampleFrame())))

	var geometry []byte
	geometry = protowire.AppendTag(geometry, wrapperGeometry, protowire.BytesType)
	geometry = protowire.AppendBytes(geometry, nil)
	require.NoError(t, l.handlePacket(geometry))

	err := l.handlePacket([]byte{0xff})
	assert.True(t, errors.Is(err, ErrMalformedPacket))

	snap := l.Stats().Snapshot()
	assert.Equal(t, uint64(3), snap.Packets)
	assert.Equal(t, uint64(1), snap.Frames)
	assert.Equal(t, uint64(1), snap.NonDetection)
	assert.Equal(t, uint64(1), snap.DecodeErrors)
	assert.Len(t, b.Drain(), 1)
}

func TestListener_Start(t *testing.T) {
	t.Parallel()
	sink := make(chanSink, 1)
	l := NewListener(ListenerConfig{Address: "127.0.0.1:0", Sink: sink})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- l.Start(ctx) }()

	require.Eventually(t, func() bool { return l.Addr() != nil }, 2*time.Second, 10*time.Millisecond)

	conn, err := net.Dial("udp", l.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write(EncodeWrapper(sampleFrame()))
	require.NoError(t, err)

	select {
	case f := <-sink:
		assert.Equal(t, uint32(4711), f.FrameNumber)
		assert.Len(t, f.Blue, 2)
	case <-time.After(2 * time.Second):
		t.Fatal("no frame received")
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not stop")
	}
}

func TestListener_BadAddress(t *testing.T) {
	t.Parallel()
	l := NewListener(ListenerConfig{Address: "not-an-address"})
	err := l.Start(context.Background())
	assert.Error(t, err)
	assert.NoError(t, l.Close())
}
