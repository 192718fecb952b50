package main

import (
	"errors"
	"fmt"
	"image/color"

	"github.com/banshee-data/fieldstate/internal/db"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

var (
	selfColor = color.RGBA{R: 47, G: 111, B: 219, A: 255}
	oppColor  = color.RGBA{R: 224, G: 180, B: 0, A: 255}
	ballColor = color.RGBA{R: 242, G: 107, B: 29, A: 255}
)

// selectRun returns the named run, or the most recent one when runID is empty.
func selectRun(database *db.DB, runID string) (*db.Run, error) {
	if runID != "" {
		return database.GetRun(runID)
	}
	runs, err := database.ListRuns()
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, errors.New("no recorded runs")
	}
	return &runs[0], nil
}

// plotRun draws every recorded trajectory of run into outPath and returns
// how many trajectories were drawn.
func plotRun(database *db.DB, run *db.Run, outPath string) (int, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("Run %s (%d cycles)", run.RunID, run.Cycles)
	p.X.Label.Text = "X (m)"
	p.Y.Label.Text = "Y (m)"
	p.Add(plotter.NewGrid())

	series := 0
	for _, team := range []string{db.TeamSelf, db.TeamOpp} {
		c := selfColor
		if team == db.TeamOpp {
			c = oppColor
		}
		for id := 0; id < run.RosterSize; id++ {
			samples, err := database.LoadRobotTrajectory(run.RunID, team, id)
			if err != nil {
				return series, err
			}
			if len(samples) == 0 {
				continue
			}
			pts := make(plotter.XYs, len(samples))
			for i, s := range samples {
				pts[i] = plotter.XY{X: s.Pos.X, Y: s.Pos.Y}
			}
			line, err := plotter.NewLine(pts)
			if err != nil {
				return series, err
			}
			line.Color = c
			line.Width = vg.Points(1)
			p.Add(line)
			p.Legend.Add(fmt.Sprintf("%s %d", team, id), line)
			series++
		}
	}

	ball, err := database.LoadBallTrajectory(run.RunID)
	if err != nil {
		return series, err
	}
	if len(ball) > 0 {
		pts := make(plotter.XYs, len(ball))
		for i, s := range ball {
			pts[i] = plotter.XY{X: s.Pos.X, Y: s.Pos.Y}
		}
		scatter, err := plotter.NewScatter(pts)
		if err != nil {
			return series, err
		}
		scatter.Color = ballColor
		scatter.Radius = vg.Points(1.5)
		p.Add(scatter)
		p.Legend.Add("ball", scatter)
		series++
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	if err := p.Save(12*vg.Inch, 8*vg.Inch, outPath); err != nil {
		return series, fmt.Errorf("save plot: %w", err)
	}
	return series, nil
}
