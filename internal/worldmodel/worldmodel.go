package worldmodel

import (
	"github.com/banshee-data/fieldstate/internal/config"
	"github.com/banshee-data/fieldstate/internal/radio"
	"github.com/banshee-data/fieldstate/internal/state"
	"github.com/banshee-data/fieldstate/internal/units"
	"github.com/banshee-data/fieldstate/internal/vision"
)

// Config holds the world model's structural settings. Filter tuning lives
// with the filter implementations.
type Config struct {
	// RobotsPerTeam is the number of track slots per team. Detections of
	// new ids beyond this are dropped.
	RobotsPerTeam int

	// BallSensorFusion turns robots' ball-sensor reports into ball
	// observations placed at the front of the robot.
	BallSensorFusion bool
	// RobotRadius (metres) places sensor-inferred balls.
	RobotRadius float64

	// PublishCoastingTracks marks live tracks visible even when no
	// detection matched them this cycle.
	PublishCoastingTracks bool
}

// DefaultConfig returns the configuration from the canonical tuning
// defaults file. Panics if the file cannot be found; intended for tests.
func DefaultConfig() Config {
	return ConfigFromTuning(config.MustLoadDefaultConfig())
}

// ConfigFromTuning builds a Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		RobotsPerTeam:         cfg.GetRobotsPerTeam(),
		BallSensorFusion:      cfg.GetBallSensorFusion(),
		RobotRadius:           cfg.GetRobotRadiusM(),
		PublishCoastingTracks: cfg.GetPublishCoastingTracks(),
	}
}

// BallMode says which estimate was published for the ball.
type BallMode string

const (
	BallPredicted BallMode = "predicted" // filter estimate
	BallRaw       BallMode = "raw"       // last raw observation, zero derivatives
)

// CycleStats summarises one Run.
type CycleStats struct {
	Timestamp int64 `json:"timestamp_us"` // cycle time
	Frames    int   `json:"frames"`

	BallDetections  int `json:"ball_detections"`
	RobotDetections int `json:"robot_detections"`

	TracksCreated      int `json:"tracks_created"`
	TracksEvicted      int `json:"tracks_evicted"`
	DroppedSaturated   int `json:"dropped_saturated"`
	DroppedOutOfRoster int `json:"dropped_out_of_roster"`
	TelemetryDropped   int `json:"telemetry_dropped"`

	BallSensorObservations int      `json:"ball_sensor_observations"`
	BallMode               BallMode `json:"ball_mode"`

	LiveSelf int `json:"live_self"`
	LiveOpp  int `json:"live_opp"`
}

// WorldModel fuses vision frames and robot telemetry into a SystemState.
//
// A WorldModel owns its track tables and ball filter outright and is not
// safe for concurrent use. The SystemState is owned by the caller; Run
// writes every published field before returning.
type WorldModel struct {
	cfg   Config
	state *state.SystemState
	ball  BallFilter
	self  *trackTable
	opp   *trackTable

	// cycleTime is the running maximum of frame capture times.
	cycleTime int64
	// hasBall is the last possession flag reported by each of our robots.
	hasBall []bool
}

// New creates a world model publishing into st. The roster size is taken
// from st; robot ids outside it are ignored.
func New(cfg Config, st *state.SystemState, ball BallFilter, newRobot RobotFilterFactory) *WorldModel {
	capacity := cfg.RobotsPerTeam
	if capacity < 1 {
		capacity = 1
	}
	return &WorldModel{
		cfg:     cfg,
		state:   st,
		ball:    ball,
		self:    newTrackTable("self", capacity, newRobot),
		opp:     newTrackTable("opp", capacity, newRobot),
		hasBall: make([]bool, len(st.Self)),
	}
}

// State returns the state container this model publishes into.
func (wm *WorldModel) State() *state.SystemState {
	return wm.state
}

// CycleTime returns the timestamp of the most recent cycle.
func (wm *WorldModel) CycleTime() int64 {
	return wm.cycleTime
}

// Run processes one control cycle: every frame received since the last
// cycle plus any telemetry, then publishes the result. blueTeam selects
// which color group is ours for the whole batch.
func (wm *WorldModel) Run(blueTeam bool, frames []vision.Frame, telemetry []radio.Telemetry) CycleStats {
	wm.self.beginCycle()
	wm.opp.beginCycle()

	in := ingest(frames, blueTeam, len(wm.state.Self))
	if in.frameTime > wm.cycleTime {
		wm.cycleTime = in.frameTime
	}
	now := wm.cycleTime

	stats := CycleStats{
		Timestamp:          now,
		Frames:             len(frames),
		BallDetections:     len(in.balls),
		RobotDetections:    len(in.self) + len(in.opp) + in.outOfRoster,
		DroppedOutOfRoster: in.outOfRoster,
	}

	for _, b := range in.balls {
		wm.ball.Observe(b.t, b.pos, SourceVision)
	}
	wm.associateAll(wm.self, in.self, &stats)
	wm.associateAll(wm.opp, in.opp, &stats)

	wm.fuseTelemetry(telemetry, &stats)

	for _, id := range wm.self.advance(now) {
		tracef("cycle %d: evicted self %d", now, id)
		stats.TracksEvicted++
	}
	for _, id := range wm.opp.advance(now) {
		tracef("cycle %d: evicted opp %d", now, id)
		stats.TracksEvicted++
	}

	if wm.cfg.BallSensorFusion {
		stats.BallSensorObservations = wm.observeBallSensors(now)
	}

	stats.BallMode = wm.resolveBall(now)
	wm.publish(now)

	stats.LiveSelf = wm.self.live()
	stats.LiveOpp = wm.opp.live()
	if traceEnabled() {
		tracef("cycle %d: frames=%d balls=%d robots=%d created=%d evicted=%d dropped=%d/%d ball=%s live=%d/%d",
			now, stats.Frames, stats.BallDetections, stats.RobotDetections,
			stats.TracksCreated, stats.TracksEvicted, stats.DroppedSaturated, stats.DroppedOutOfRoster,
			stats.BallMode, stats.LiveSelf, stats.LiveOpp)
	}
	return stats
}

func (wm *WorldModel) associateAll(tt *trackTable, obs []robotObs, stats *CycleStats) {
	for _, o := range obs {
		switch tt.associate(o.id, o.t, o.pos, o.angleDeg) {
		case associateCreated:
			tracef("t=%d: new %s track %d", o.t, tt.team, o.id)
			stats.TracksCreated++
		case associateDropped:
			tracef("t=%d: %s table full, dropped id %d", o.t, tt.team, o.id)
			stats.DroppedSaturated++
		}
	}
}

// fuseTelemetry records each report's possession flag, then pushes the
// last known flag into every live own track. Tracks created after a
// robot's last report still carry its flag.
func (wm *WorldModel) fuseTelemetry(telemetry []radio.Telemetry, stats *CycleStats) {
	for _, rx := range telemetry {
		if rx.ID < 0 || rx.ID >= len(wm.hasBall) {
			stats.TelemetryDropped++
			continue
		}
		wm.hasBall[rx.ID] = rx.HasBall
		if wm.self.find(rx.ID) == nil {
			stats.TelemetryDropped++
		}
	}
	for id, hasBall := range wm.hasBall {
		wm.self.fuseHasBall(id, hasBall)
	}
}

// observeBallSensors adds a ball observation in front of every valid own
// robot reporting possession.
func (wm *WorldModel) observeBallSensors(now int64) int {
	n := 0
	for i := range wm.self.slots {
		s := &wm.self.slots[i]
		if !s.live() || !s.filter.Valid(now) || !s.filter.HasBall() {
			continue
		}
		offset := units.Direction(s.filter.Angle() * units.DegreesToRadians).Scale(wm.cfg.RobotRadius)
		wm.ball.Observe(now, s.filter.Pos().Add(offset), SourceBallSensor)
		n++
	}
	return n
}

// resolveBall decides between the filter estimate and the raw observation.
// Validity is judged before the filter advances; the filter advances either
// way.
func (wm *WorldModel) resolveBall(now int64) BallMode {
	valid := wm.ball.Valid(now)
	wm.ball.Update(now)

	b := &wm.state.Ball
	mode := BallRaw
	if valid {
		mode = BallPredicted
		b.Pos = wm.ball.Pos()
		b.Vel = wm.ball.Vel()
		b.Accel = wm.ball.Accel()
	} else {
		b.Pos = wm.ball.ObservedPos()
		b.Vel = units.Point{}
		b.Accel = units.Point{}
	}
	// TODO(ball-validity): publish the real validity once planning handles
	// a lost ball.
	b.Valid = true
	return mode
}

// publish copies track estimates into the caller's state.
func (wm *WorldModel) publish(now int64) {
	st := wm.state
	st.Timestamp = now

	for _, r := range st.Self {
		r.Visible = false
	}
	for _, r := range st.Opp {
		r.Visible = false
	}

	wm.publishTable(wm.self, st.Self)
	wm.publishTable(wm.opp, st.Opp)

	for id, r := range st.Self {
		r.HasBall = wm.hasBall[id]
	}
}

func (wm *WorldModel) publishTable(tt *trackTable, roster []*state.Robot) {
	for i := range tt.slots {
		s := &tt.slots[i]
		if !s.live() {
			continue
		}
		if !s.seen && !wm.cfg.PublishCoastingTracks {
			continue
		}
		id := s.filter.ID()
		if id < 0 || id >= len(roster) {
			continue
		}
		r := roster[id]
		r.Visible = true
		r.Pos = s.filter.Pos()
		r.Vel = s.filter.Vel()
		r.Angle = s.filter.Angle()
		r.AngleVel = s.filter.AngleVel()
	}
}
