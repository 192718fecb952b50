package radio

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"

	"github.com/banshee-data/fieldstate/internal/timeutil"
	"tailscale.com/tsweb"
)

// ReceiverStats counts what the receiver has seen since it started.
type ReceiverStats struct {
	Lines     uint64 `json:"lines"`
	Reports   uint64 `json:"reports"`
	Malformed uint64 `json:"malformed"`
}

// Receiver turns base-station lines into Telemetry. Each parsed report is
// stamped with the clock and pushed into the buffer the cycle loop drains.
type Receiver struct {
	mux   Muxer
	buf   *TelemetryBuffer
	clock timeutil.Clock

	mu     sync.Mutex
	stats  ReceiverStats
	latest map[int]Telemetry
}

// NewReceiver returns a receiver reading from mux into buf. A nil clock
// uses the wall clock.
func NewReceiver(mux Muxer, buf *TelemetryBuffer, clock timeutil.Clock) *Receiver {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Receiver{
		mux:    mux,
		buf:    buf,
		clock:  clock,
		latest: make(map[int]Telemetry),
	}
}

// Run consumes lines until ctx is cancelled or the mux closes the
// subscription.
func (r *Receiver) Run(ctx context.Context) error {
	id, lines := r.mux.Subscribe()
	defer r.mux.Unsubscribe(id)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			r.handleLine(line)
		}
	}
}

func (r *Receiver) handleLine(line string) {
	t, err := ParseTelemetry(line)

	r.mu.Lock()
	r.stats.Lines++
	if err != nil {
		r.stats.Malformed++
		r.mu.Unlock()
		diagf("ignoring line %q: %v", line, err)
		return
	}
	t.ReceivedAt = timeutil.NowMicros(r.clock)
	r.stats.Reports++
	r.latest[t.ID] = t
	r.mu.Unlock()

	tracef("robot %d ball=%t batt=%.2f rssi=%d", t.ID, t.HasBall, t.Battery, t.RSSI)
	r.buf.Update(t)
}

// Stats returns a copy of the counters.
func (r *Receiver) Stats() ReceiverStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// Latest returns the most recent report per robot, ordered by id. Unlike
// the buffer it is never drained.
func (r *Receiver) Latest() []Telemetry {
	r.mu.Lock()
	out := make([]Telemetry, 0, len(r.latest))
	for _, t := range r.latest {
		out = append(out, t)
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AttachAdminRoutes adds /debug/radio-robots (latest report per robot) and
// the mux's own routes.
func (r *Receiver) AttachAdminRoutes(mux *http.ServeMux) {
	r.mux.AttachAdminRoutes(mux)

	debug := tsweb.Debugger(mux)
	debug.HandleFunc("radio-robots", "latest radio report per robot", func(w http.ResponseWriter, req *http.Request) {
		type robotReport struct {
			Telemetry
			ReceivedAt int64 `json:"received_at_us"`
		}
		latest := r.Latest()
		reports := make([]robotReport, len(latest))
		for i, t := range latest {
			reports[i] = robotReport{Telemetry: t, ReceivedAt: t.ReceivedAt}
		}

		w.Header().Set("Content-Type", "application/json")
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(struct {
			Stats  ReceiverStats `json:"stats"`
			Robots []robotReport `json:"robots"`
		}{r.Stats(), reports}); err != nil {
			opsf("radio-robots: %v", err)
		}
	})
}
