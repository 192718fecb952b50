package monitor

import (
	"bytes"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/banshee-data/fieldstate/internal/state"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// Half extents of a division B field plus boundary, metres.
const (
	fieldHalfLength = 5.2
	fieldHalfWidth  = 3.7
)

func robotPoints(team string, roster []*state.Robot) ([]opts.ScatterData, float64) {
	data := make([]opts.ScatterData, 0, len(roster))
	maxAbs := 0.0
	for _, r := range state.VisibleRobots(roster) {
		data = append(data, opts.ScatterData{
			Name:  fmt.Sprintf("%s %d", team, r.ID),
			Value: []interface{}{r.Pos.X, r.Pos.Y, r.Angle},
		})
		maxAbs = math.Max(maxAbs, math.Max(math.Abs(r.Pos.X), math.Abs(r.Pos.Y)))
	}
	return data, maxAbs
}

// handleFieldChart renders the latest published state as a scatter plot.
// This is a debugging-only endpoint (no auth).
func (ws *WebServer) handleFieldChart(w http.ResponseWriter, r *http.Request) {
	st, _, _ := ws.snapshot()
	if st == nil {
		ws.writeJSONError(w, http.StatusServiceUnavailable, "no cycle has run yet")
		return
	}

	self, selfMax := robotPoints("self", st.Self)
	opp, oppMax := robotPoints("opp", st.Opp)
	ballName := "ball"
	if !st.Ball.Valid {
		ballName = "ball (invalid)"
	}
	ball := []opts.ScatterData{{Name: ballName, Value: []interface{}{st.Ball.Pos.X, st.Ball.Pos.Y}}}

	// Grow the axes when something is tracked outside the field.
	halfX := math.Max(fieldHalfLength, 1.05*math.Max(selfMax, math.Max(oppMax, math.Abs(st.Ball.Pos.X))))
	halfY := math.Max(fieldHalfWidth, 1.05*math.Max(selfMax, math.Max(oppMax, math.Abs(st.Ball.Pos.Y))))

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Field", Width: "1040px", Height: "740px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "World state", Subtitle: fmt.Sprintf("t=%dus self=%d opp=%d", st.Timestamp, len(self), len(opp))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: -halfX, Max: halfX, Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: -halfY, Max: halfY, Name: "Y (m)", NameLocation: "middle", NameGap: 30}),
	)
	scatter.AddSeries("self", self,
		charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 14}),
		charts.WithItemStyleOpts(opts.ItemStyle{Color: "#2f6fdb"}),
	)
	scatter.AddSeries("opp", opp,
		charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 14}),
		charts.WithItemStyleOpts(opts.ItemStyle{Color: "#e0b400"}),
	)
	scatter.AddSeries("ball", ball,
		charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 8}),
		charts.WithItemStyleOpts(opts.ItemStyle{Color: "#f26b1d"}),
	)

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleCycleChart renders per-cycle detection and track counts for the
// retained history.
func (ws *WebServer) handleCycleChart(w http.ResponseWriter, r *http.Request) {
	history := ws.recentCycles()

	x := make([]string, len(history))
	detections := make([]opts.LineData, len(history))
	liveSelf := make([]opts.LineData, len(history))
	liveOpp := make([]opts.LineData, len(history))
	dropped := make([]opts.LineData, len(history))
	for i, c := range history {
		x[i] = strconv.FormatInt(c.Timestamp, 10)
		detections[i] = opts.LineData{Value: c.BallDetections + c.RobotDetections}
		liveSelf[i] = opts.LineData{Value: c.LiveSelf}
		liveOpp[i] = opts.LineData{Value: c.LiveOpp}
		dropped[i] = opts.LineData{Value: c.DroppedSaturated + c.DroppedOutOfRoster + c.TelemetryDropped}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "600px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Cycles", Subtitle: fmt.Sprintf("last %d cycles", len(history))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "cycle time (us)"}),
	)
	line.SetXAxis(x).
		AddSeries("detections", detections).
		AddSeries("live self", liveSelf).
		AddSeries("live opp", liveOpp).
		AddSeries("dropped", dropped)

	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsPrefix)
	page.AddCharts(line)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("render error: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
