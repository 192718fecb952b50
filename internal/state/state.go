// Package state holds the published world state: one roster of robot
// entries per team plus the ball. The container is allocated once by the
// caller and lives across cycles; the world model only writes its fields.
package state

import "github.com/banshee-data/fieldstate/internal/units"

// Robot is the published estimate for one robot identifier.
type Robot struct {
	ID       int         `json:"id"`
	Visible  bool        `json:"visible"`
	Pos      units.Point `json:"pos"`
	Vel      units.Point `json:"vel"`
	Angle    float64     `json:"angle_deg"`
	AngleVel float64     `json:"angle_vel_dps"`
	HasBall  bool        `json:"has_ball"`
}

// Ball is the published ball estimate.
type Ball struct {
	Pos   units.Point `json:"pos"`
	Vel   units.Point `json:"vel"`
	Accel units.Point `json:"accel"`
	Valid bool        `json:"valid"`
}

// SystemState is the world state consumed by planning once per cycle.
// Self and Opp are indexed by robot identifier.
type SystemState struct {
	Timestamp int64    `json:"timestamp_us"`
	Self      []*Robot `json:"self"`
	Opp       []*Robot `json:"opp"`
	Ball      Ball     `json:"ball"`
}

// New allocates a state with rosterSize entries per team, ids 0..rosterSize-1.
func New(rosterSize int) *SystemState {
	s := &SystemState{
		Self: make([]*Robot, rosterSize),
		Opp:  make([]*Robot, rosterSize),
	}
	for i := 0; i < rosterSize; i++ {
		s.Self[i] = &Robot{ID: i}
		s.Opp[i] = &Robot{ID: i}
	}
	return s
}

// Clone returns a deep copy safe to hand to another goroutine.
func (s *SystemState) Clone() *SystemState {
	out := &SystemState{
		Timestamp: s.Timestamp,
		Self:      make([]*Robot, len(s.Self)),
		Opp:       make([]*Robot, len(s.Opp)),
		Ball:      s.Ball,
	}
	for i, r := range s.Self {
		cp := *r
		out.Self[i] = &cp
	}
	for i, r := range s.Opp {
		cp := *r
		out.Opp[i] = &cp
	}
	return out
}

// VisibleRobots returns the visible entries of a roster in id order.
func VisibleRobots(roster []*Robot) []*Robot {
	out := make([]*Robot, 0, len(roster))
	for _, r := range roster {
		if r.Visible {
			out = append(out, r)
		}
	}
	return out
}
