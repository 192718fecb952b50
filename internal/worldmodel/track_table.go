package worldmodel

import "github.com/banshee-data/fieldstate/internal/units"

// slot holds zero or one robot filter. An empty slot has a nil filter.
type slot struct {
	filter RobotFilter
	// seen is set when the slot received a vision observation this cycle.
	seen bool
}

func (s *slot) live() bool { return s.filter != nil }

func (s *slot) clear() {
	s.filter = nil
	s.seen = false
}

// trackTable is one team's fixed-capacity set of track slots.
// Identifiers are matched by linear scan; the table is at most a few
// robots wide.
type trackTable struct {
	team      string
	slots     []slot
	newFilter RobotFilterFactory
}

func newTrackTable(team string, capacity int, newFilter RobotFilterFactory) *trackTable {
	return &trackTable{
		team:      team,
		slots:     make([]slot, capacity),
		newFilter: newFilter,
	}
}

// find returns the live slot tracking id, or nil.
func (tt *trackTable) find(id int) *slot {
	for i := range tt.slots {
		s := &tt.slots[i]
		if s.live() && s.filter.ID() == id {
			return s
		}
	}
	return nil
}

// associateResult says what happened to one detection.
type associateResult int

const (
	associateMatched associateResult = iota
	associateCreated
	associateDropped
)

// associate feeds one detection to the track for its id, creating the track
// in the first empty slot if needed. With no match and no empty slot the
// detection is dropped.
func (tt *trackTable) associate(id int, t int64, pos units.Point, angleDeg float64) associateResult {
	if s := tt.find(id); s != nil {
		s.filter.Observe(t, pos, angleDeg)
		s.seen = true
		return associateMatched
	}

	for i := range tt.slots {
		s := &tt.slots[i]
		if s.live() {
			continue
		}
		s.filter = tt.newFilter(id)
		s.filter.Observe(t, pos, angleDeg)
		s.seen = true
		return associateCreated
	}

	return associateDropped
}

// fuseHasBall pushes a possession flag into the track for id. It reports
// false when no live track exists; telemetry never creates tracks.
func (tt *trackTable) fuseHasBall(id int, hasBall bool) bool {
	s := tt.find(id)
	if s == nil {
		return false
	}
	s.filter.SetHasBall(hasBall)
	return true
}

// advance runs the time-advance pass: valid tracks are updated to t, the
// rest are evicted. It returns the ids evicted.
func (tt *trackTable) advance(t int64) []int {
	var evicted []int
	for i := range tt.slots {
		s := &tt.slots[i]
		if !s.live() {
			continue
		}
		if s.filter.Valid(t) {
			s.filter.Update(t)
			continue
		}
		evicted = append(evicted, s.filter.ID())
		s.clear()
	}
	return evicted
}

// beginCycle resets the per-cycle matched marks.
func (tt *trackTable) beginCycle() {
	for i := range tt.slots {
		tt.slots[i].seen = false
	}
}

// live returns the number of live slots.
func (tt *trackTable) live() int {
	n := 0
	for i := range tt.slots {
		if tt.slots[i].live() {
			n++
		}
	}
	return n
}

// ids returns the identifiers of live slots in slot order.
func (tt *trackTable) ids() []int {
	out := make([]int, 0, len(tt.slots))
	for i := range tt.slots {
		if tt.slots[i].live() {
			out = append(out, tt.slots[i].filter.ID())
		}
	}
	return out
}
