package radio

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrMalformedLine is returned by ParseTelemetry for lines that are not a
// robot report.
var ErrMalformedLine = errors.New("radio: malformed telemetry line")

// Telemetry is the latest report received from one of our robots.
type Telemetry struct {
	ID      int     `json:"id"`
	HasBall bool    `json:"ball"`
	Battery float64 `json:"batt,omitempty"` // volts
	RSSI    int     `json:"rssi,omitempty"`

	// ReceivedAt is stamped by the receiver (Unix microseconds).
	ReceivedAt int64 `json:"-"`
}

// ParseTelemetry decodes one base-station line of the form
// {"id":3,"ball":true,"batt":15.8,"rssi":-61}.
func ParseTelemetry(line string) (Telemetry, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "{") {
		return Telemetry{}, ErrMalformedLine
	}

	// id is required; a pointer tells absent apart from zero.
	var raw struct {
		ID *int `json:"id"`
		Telemetry
	}
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return Telemetry{}, fmt.Errorf("%w: %v", ErrMalformedLine, err)
	}
	if raw.ID == nil {
		return Telemetry{}, fmt.Errorf("%w: missing id", ErrMalformedLine)
	}
	if *raw.ID < 0 {
		return Telemetry{}, fmt.Errorf("%w: negative id %d", ErrMalformedLine, *raw.ID)
	}
	t := raw.Telemetry
	t.ID = *raw.ID
	return t, nil
}

// TelemetryBuffer keeps the most recent report per robot between cycles.
// Safe for concurrent use: the radio monitor writes, the cycle loop drains.
type TelemetryBuffer struct {
	mu     sync.Mutex
	latest map[int]Telemetry
}

// NewTelemetryBuffer returns an empty buffer.
func NewTelemetryBuffer() *TelemetryBuffer {
	return &TelemetryBuffer{latest: make(map[int]Telemetry)}
}

// Update records t, replacing any older report for the same robot.
func (b *TelemetryBuffer) Update(t Telemetry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if prev, ok := b.latest[t.ID]; ok && prev.ReceivedAt > t.ReceivedAt {
		return
	}
	b.latest[t.ID] = t
}

// Drain returns the buffered reports ordered by robot id and empties the
// buffer.
func (b *TelemetryBuffer) Drain() []Telemetry {
	b.mu.Lock()
	latest := b.latest
	b.latest = make(map[int]Telemetry, len(latest))
	b.mu.Unlock()

	out := make([]Telemetry, 0, len(latest))
	for _, t := range latest {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
