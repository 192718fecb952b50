package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRealClock_Now(t *testing.T) {
	clock := RealClock{}
	before := time.Now()
	now := clock.Now()
	after := time.Now()

	assert.False(t, now.Before(before) || now.After(after))
}

func TestRealClock_NewTicker(t *testing.T) {
	clock := RealClock{}
	ticker := clock.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	select {
	case <-ticker.C():
	case <-time.After(time.Second):
		t.Error("ticker did not fire")
	}
}

func TestNowMicros(t *testing.T) {
	start := time.Unix(1700000000, 123456000)
	clock := NewMockClock(start)
	assert.Equal(t, int64(1700000000123456), NowMicros(clock))
}

func TestMockClock_Advance(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := NewMockClock(start)

	clock.Advance(5 * time.Second)
	assert.Equal(t, start.Add(5*time.Second), clock.Now())
	assert.Equal(t, 5*time.Second, clock.Since(start))
}

func TestMockTicker(t *testing.T) {
	clock := NewMockClock(time.Unix(0, 0))
	ticker := clock.NewTicker(10 * time.Millisecond)
	require.Equal(t, 1, clock.TickerCount())

	t.Run("does not fire early", func(t *testing.T) {
		clock.Advance(5 * time.Millisecond)
		select {
		case <-ticker.C():
			t.Fatal("ticker fired before its interval")
		default:
		}
	})

	t.Run("fires once due", func(t *testing.T) {
		clock.Advance(5 * time.Millisecond)
		select {
		case got := <-ticker.C():
			assert.Equal(t, time.Unix(0, 0).Add(10*time.Millisecond), got)
		default:
			t.Fatal("ticker did not fire")
		}
	})

	t.Run("stopped ticker is silent", func(t *testing.T) {
		ticker.Stop()
		clock.Advance(time.Second)
		select {
		case <-ticker.C():
			t.Fatal("stopped ticker fired")
		default:
		}
	})
}
