// Package pipeline drives the world model at a fixed cadence: each tick it
// drains buffered vision frames and radio telemetry, runs one cycle, and
// hands the published state to the recorder, monitor and metrics.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/banshee-data/fieldstate/internal/monitor"
	"github.com/banshee-data/fieldstate/internal/radio"
	"github.com/banshee-data/fieldstate/internal/state"
	"github.com/banshee-data/fieldstate/internal/timeutil"
	"github.com/banshee-data/fieldstate/internal/vision"
	"github.com/banshee-data/fieldstate/internal/worldmodel"
)

// DefaultInterval matches a 60 Hz vision feed.
const DefaultInterval = 16 * time.Millisecond

// FrameSource yields the frames received since the last call.
type FrameSource interface {
	Drain() []vision.Frame
}

// TelemetrySource yields the telemetry received since the last call.
type TelemetrySource interface {
	Drain() []radio.Telemetry
}

// CycleRecorder persists finished cycles. *db.DB implements it.
type CycleRecorder interface {
	RecordCycle(ctx context.Context, runID string, st *state.SystemState, stats worldmodel.CycleStats) error
}

// Publisher receives every finished cycle. *monitor.WebServer implements it.
type Publisher interface {
	Publish(st *state.SystemState, stats worldmodel.CycleStats)
}

// Config wires the pipeline. WorldModel and Frames are required.
type Config struct {
	WorldModel *worldmodel.WorldModel
	Frames     FrameSource
	Telemetry  TelemetrySource // nil when no radio is attached
	BlueTeam   bool
	Interval   time.Duration
	Clock      timeutil.Clock

	Recorder CycleRecorder
	RunID    string

	Publisher   Publisher
	Metrics     *monitor.Metrics
	VisionStats *vision.PacketStats

	// OnCycle, when set, is called with the live state after each cycle.
	// It runs on the cycle goroutine and must not retain st.
	OnCycle func(st *state.SystemState, stats worldmodel.CycleStats)
}

// Pipeline runs cycles. Step and Run must not be called concurrently.
type Pipeline struct {
	cfg Config

	mu           sync.Mutex
	cycles       uint64
	recordErrors uint64
	running      bool
}

// New validates cfg and applies defaults.
func New(cfg Config) (*Pipeline, error) {
	if cfg.WorldModel == nil {
		return nil, errors.New("pipeline: world model is required")
	}
	if cfg.Frames == nil {
		return nil, errors.New("pipeline: frame source is required")
	}
	if cfg.Recorder != nil && cfg.RunID == "" {
		return nil, errors.New("pipeline: recorder needs a run id")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	return &Pipeline{cfg: cfg}, nil
}

// Step runs a single cycle with whatever input is buffered.
func (p *Pipeline) Step(ctx context.Context) worldmodel.CycleStats {
	start := p.cfg.Clock.Now()

	frames := p.cfg.Frames.Drain()
	var telemetry []radio.Telemetry
	if p.cfg.Telemetry != nil {
		telemetry = p.cfg.Telemetry.Drain()
	}

	stats := p.cfg.WorldModel.Run(p.cfg.BlueTeam, frames, telemetry)
	st := p.cfg.WorldModel.State()

	if p.cfg.OnCycle != nil {
		p.cfg.OnCycle(st, stats)
	}
	if p.cfg.Recorder != nil {
		if err := p.cfg.Recorder.RecordCycle(ctx, p.cfg.RunID, st, stats); err != nil {
			p.mu.Lock()
			p.recordErrors++
			n := p.recordErrors
			p.mu.Unlock()
			// One line per hundred failures keeps a dead disk from flooding ops.
			if n%100 == 1 {
				opsf("record cycle failed (%d so far): %v", n, err)
			}
		}
	}
	if p.cfg.Publisher != nil {
		p.cfg.Publisher.Publish(st, stats)
	}
	if p.cfg.Metrics != nil {
		p.cfg.Metrics.ObserveCycle(stats, p.cfg.Clock.Since(start))
		if p.cfg.VisionStats != nil {
			p.cfg.Metrics.ObserveVision(p.cfg.VisionStats.Snapshot())
		}
	}

	p.mu.Lock()
	p.cycles++
	p.mu.Unlock()

	tracef("cycle t=%d frames=%d telemetry=%d ball=%s self=%d opp=%d",
		stats.Timestamp, stats.Frames, len(telemetry), stats.BallMode, stats.LiveSelf, stats.LiveOpp)
	return stats
}

// Run steps once per interval until ctx is cancelled. Returns nil on clean
// shutdown.
func (p *Pipeline) Run(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return errors.New("pipeline: already running")
	}
	p.running = true
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
	}()

	ticker := p.cfg.Clock.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	opsf("cycle loop started: interval=%v blue_team=%t", p.cfg.Interval, p.cfg.BlueTeam)
	for {
		select {
		case <-ctx.Done():
			opsf("cycle loop stopping after %d cycles", p.Cycles())
			return nil
		case <-ticker.C():
			p.Step(ctx)
		}
	}
}

// Cycles returns how many cycles have completed.
func (p *Pipeline) Cycles() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cycles
}

// RecordErrors returns how many cycles failed to persist.
func (p *Pipeline) RecordErrors() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.recordErrors
}
