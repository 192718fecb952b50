package worldmodel

import (
	"github.com/banshee-data/fieldstate/internal/units"
	"github.com/banshee-data/fieldstate/internal/vision"
)

// ballObs is a ball detection in metres at its frame's capture time.
type ballObs struct {
	t   int64
	pos units.Point
}

// robotObs is a robot detection in metres and degrees at its frame's
// capture time.
type robotObs struct {
	t        int64
	id       int
	pos      units.Point
	angleDeg float64
}

// cycleInput is one cycle's detections after the team split and unit
// conversion.
type cycleInput struct {
	// frameTime is the latest capture time across the batch, zero when
	// the batch is empty.
	frameTime int64
	balls     []ballObs
	self      []robotObs
	opp       []robotObs

	// outOfRoster counts robot detections whose id has no roster entry.
	outOfRoster int
}

// ingest flattens a batch of frames. blueTeam selects which color group is
// ours for every frame in the batch. Each detection keeps its own frame's
// timestamp. This is the only place detection units are converted.
func ingest(frames []vision.Frame, blueTeam bool, rosterSize int) cycleInput {
	var in cycleInput
	for i := range frames {
		f := &frames[i]
		t := units.SecondsToMicros(f.CaptureTime)
		if t > in.frameTime {
			in.frameTime = t
		}

		for _, b := range f.Balls {
			in.balls = append(in.balls, ballObs{t: t, pos: units.PointFromMillimetres(b.X, b.Y)})
		}

		self, opp := f.Teams(blueTeam)
		in.self = appendRobots(in.self, self, t, rosterSize, &in.outOfRoster)
		in.opp = appendRobots(in.opp, opp, t, rosterSize, &in.outOfRoster)
	}
	return in
}

func appendRobots(dst []robotObs, dets []vision.RobotDetection, t int64, rosterSize int, dropped *int) []robotObs {
	for _, d := range dets {
		if d.ID < 0 || d.ID >= rosterSize {
			*dropped++
			continue
		}
		dst = append(dst, robotObs{
			t:        t,
			id:       d.ID,
			pos:      units.PointFromMillimetres(d.X, d.Y),
			angleDeg: d.Orientation * units.RadiansToDegrees,
		})
	}
	return dst
}
