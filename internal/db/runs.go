package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/fieldstate/internal/state"
	"github.com/banshee-data/fieldstate/internal/worldmodel"
	"github.com/google/uuid"
)

// ErrRunNotFound is returned when a run id has no row.
var ErrRunNotFound = errors.New("run not found")

// Team labels stored in robot_states.team.
const (
	TeamSelf = "self"
	TeamOpp  = "opp"
)

// Run summarises one recorded session.
type Run struct {
	RunID      string `json:"run_id"`
	StartedAt  int64  `json:"started_at_us"`
	EndedAt    int64  `json:"ended_at_us,omitempty"` // 0 while running
	BlueTeam   bool   `json:"blue_team"`
	RosterSize int    `json:"roster_size"`
	Notes      string `json:"notes,omitempty"`
	Cycles     int64  `json:"cycles"`
}

// BallSample is one recorded ball estimate.
type BallSample struct {
	Timestamp int64 `json:"timestamp_us"`
	state.Ball
}

// RobotSample is one recorded robot estimate.
type RobotSample struct {
	Timestamp int64 `json:"timestamp_us"`
	state.Robot
}

// StartRun inserts a run row and returns its generated id.
func (db *DB) StartRun(startedAt time.Time, blueTeam bool, rosterSize int, notes string) (string, error) {
	runID := uuid.NewString()
	_, err := db.Exec(
		`INSERT INTO runs (run_id, started_at, blue_team, roster_size, notes) VALUES (?, ?, ?, ?, ?)`,
		runID, startedAt.UnixMicro(), blueTeam, rosterSize, notes,
	)
	if err != nil {
		return "", fmt.Errorf("failed to start run: %w", err)
	}
	return runID, nil
}

// EndRun stamps the run's end time.
func (db *DB) EndRun(runID string, endedAt time.Time) error {
	res, err := db.Exec(`UPDATE runs SET ended_at = ? WHERE run_id = ?`, endedAt.UnixMicro(), runID)
	if err != nil {
		return fmt.Errorf("failed to end run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

// RecordCycle stores one cycle's statistics with the published state. Only
// visible robots are written.
func (db *DB) RecordCycle(ctx context.Context, runID string, st *state.SystemState, stats worldmodel.CycleStats) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO cycles (
			run_id, timestamp_us, frames, ball_detections, robot_detections,
			tracks_created, tracks_evicted, dropped_saturated, dropped_out_of_roster,
			telemetry_dropped, ball_sensor_observations, ball_mode, live_self, live_opp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, st.Timestamp, stats.Frames, stats.BallDetections, stats.RobotDetections,
		stats.TracksCreated, stats.TracksEvicted, stats.DroppedSaturated, stats.DroppedOutOfRoster,
		stats.TelemetryDropped, stats.BallSensorObservations, string(stats.BallMode), stats.LiveSelf, stats.LiveOpp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert cycle: %w", err)
	}
	cycleID, err := res.LastInsertId()
	if err != nil {
		return err
	}

	b := st.Ball
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO ball_states (cycle_id, x, y, vx, vy, ax, ay, valid) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		cycleID, b.Pos.X, b.Pos.Y, b.Vel.X, b.Vel.Y, b.Accel.X, b.Accel.Y, b.Valid,
	); err != nil {
		return fmt.Errorf("failed to insert ball state: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO robot_states (cycle_id, team, robot_id, x, y, vx, vy, angle, angle_vel, has_ball)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, roster := range []struct {
		team   string
		robots []*state.Robot
	}{{TeamSelf, st.Self}, {TeamOpp, st.Opp}} {
		for _, r := range state.VisibleRobots(roster.robots) {
			if _, err := stmt.ExecContext(ctx,
				cycleID, roster.team, r.ID, r.Pos.X, r.Pos.Y, r.Vel.X, r.Vel.Y, r.Angle, r.AngleVel, r.HasBall,
			); err != nil {
				return fmt.Errorf("failed to insert %s robot %d: %w", roster.team, r.ID, err)
			}
		}
	}

	return tx.Commit()
}

// ListRuns returns all runs, newest first.
func (db *DB) ListRuns() ([]Run, error) {
	rows, err := db.Query(`
		SELECT r.run_id, r.started_at, COALESCE(r.ended_at, 0), r.blue_team, r.roster_size, r.notes,
			(SELECT COUNT(*) FROM cycles c WHERE c.run_id = r.run_id)
		FROM runs r
		ORDER BY r.started_at DESC, r.run_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.RunID, &r.StartedAt, &r.EndedAt, &r.BlueTeam, &r.RosterSize, &r.Notes, &r.Cycles); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRun returns a single run by id.
func (db *DB) GetRun(runID string) (*Run, error) {
	var r Run
	err := db.QueryRow(`
		SELECT run_id, started_at, COALESCE(ended_at, 0), blue_team, roster_size, notes,
			(SELECT COUNT(*) FROM cycles WHERE run_id = ?)
		FROM runs WHERE run_id = ?`, runID, runID,
	).Scan(&r.RunID, &r.StartedAt, &r.EndedAt, &r.BlueTeam, &r.RosterSize, &r.Notes, &r.Cycles)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// LoadBallTrajectory returns the ball estimate for every cycle of a run in
// recording order.
func (db *DB) LoadBallTrajectory(runID string) ([]BallSample, error) {
	rows, err := db.Query(`
		SELECT c.timestamp_us, b.x, b.y, b.vx, b.vy, b.ax, b.ay, b.valid
		FROM cycles c JOIN ball_states b ON b.cycle_id = c.cycle_id
		WHERE c.run_id = ?
		ORDER BY c.cycle_id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BallSample
	for rows.Next() {
		var s BallSample
		if err := rows.Scan(&s.Timestamp, &s.Pos.X, &s.Pos.Y, &s.Vel.X, &s.Vel.Y, &s.Accel.X, &s.Accel.Y, &s.Valid); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// LoadRobotTrajectory returns the cycles in which robot id of team was
// visible, in recording order.
func (db *DB) LoadRobotTrajectory(runID, team string, id int) ([]RobotSample, error) {
	if team != TeamSelf && team != TeamOpp {
		return nil, fmt.Errorf("unknown team %q", team)
	}
	rows, err := db.Query(`
		SELECT c.timestamp_us, r.x, r.y, r.vx, r.vy, r.angle, r.angle_vel, r.has_ball
		FROM cycles c JOIN robot_states r ON r.cycle_id = c.cycle_id
		WHERE c.run_id = ? AND r.team = ? AND r.robot_id = ?
		ORDER BY c.cycle_id`, runID, team, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RobotSample
	for rows.Next() {
		s := RobotSample{Robot: state.Robot{ID: id, Visible: true}}
		if err := rows.Scan(&s.Timestamp, &s.Pos.X, &s.Pos.Y, &s.Vel.X, &s.Vel.Y, &s.Angle, &s.AngleVel, &s.HasBall); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
