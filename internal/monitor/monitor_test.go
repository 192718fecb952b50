package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/fieldstate/internal/db"
	"github.com/banshee-data/fieldstate/internal/state"
	"github.com/banshee-data/fieldstate/internal/units"
	"github.com/banshee-data/fieldstate/internal/vision"
	"github.com/banshee-data/fieldstate/internal/worldmodel"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func publishedState() *state.SystemState {
	st := state.New(4)
	st.Timestamp = 1_000_000
	st.Self[2].Visible = true
	st.Self[2].Pos = units.Point{X: 1, Y: 1}
	st.Opp[0].Visible = true
	st.Opp[0].Pos = units.Point{X: -7, Y: 0}
	st.Ball = state.Ball{Pos: units.Point{X: 0.5}, Valid: true}
	return st
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

func TestWebServer_State(t *testing.T) {
	ws := NewWebServer(WebServerConfig{})
	h := ws.Handler()

	assert.Equal(t, http.StatusServiceUnavailable, get(t, h, "/api/state").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, h, "/charts/field").Code)

	st := publishedState()
	ws.Publish(st, worldmodel.CycleStats{Timestamp: st.Timestamp, LiveSelf: 1, LiveOpp: 1, BallMode: worldmodel.BallPredicted})
	// Mutating the caller's state must not leak into the snapshot.
	st.Self[2].Pos.X = 99

	w := get(t, h, "/api/state")
	require.Equal(t, http.StatusOK, w.Code)
	var got state.SystemState
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, int64(1_000_000), got.Timestamp)
	assert.Equal(t, 1.0, got.Self[2].Pos.X)
	assert.True(t, got.Ball.Valid)

	w = get(t, h, "/api/status")
	require.Equal(t, http.StatusOK, w.Code)
	var status struct {
		Cycles    uint64                `json:"cycles"`
		LastCycle worldmodel.CycleStats `json:"last_cycle"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, uint64(1), status.Cycles)
	assert.Equal(t, worldmodel.BallPredicted, status.LastCycle.BallMode)

	assert.Equal(t, "ok", get(t, h, "/health").Body.String())
}

func TestWebServer_Charts(t *testing.T) {
	ws := NewWebServer(WebServerConfig{History: 2})
	for i := int64(1); i <= 3; i++ {
		ws.Publish(publishedState(), worldmodel.CycleStats{Timestamp: i, RobotDetections: 2})
	}
	assert.Len(t, ws.recentCycles(), 2)
	assert.Equal(t, int64(2), ws.recentCycles()[0].Timestamp)

	w := get(t, ws.Handler(), "/charts/field")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "self 2")
	assert.Contains(t, w.Body.String(), "opp 0")

	w = get(t, ws.Handler(), "/charts/cycles")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "live self")
}

func TestWebServer_Runs(t *testing.T) {
	t.Run("recording disabled", func(t *testing.T) {
		h := NewWebServer(WebServerConfig{}).Handler()
		assert.Equal(t, http.StatusNotFound, get(t, h, "/api/runs").Code)
		assert.Equal(t, http.StatusNotFound, get(t, h, "/api/runs/ball?run_id=x").Code)
		assert.Equal(t, http.StatusNotFound, get(t, h, "/api/runs/robot?run_id=x&id=1").Code)
	})

	database, err := db.NewDB(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	defer database.Close()

	runID, err := database.StartRun(time.Now(), true, 4, "")
	require.NoError(t, err)
	st := publishedState()
	require.NoError(t, database.RecordCycle(context.Background(), runID, st, worldmodel.CycleStats{Timestamp: st.Timestamp, BallMode: worldmodel.BallRaw}))

	h := NewWebServer(WebServerConfig{DB: database}).Handler()

	w := get(t, h, "/api/runs")
	require.Equal(t, http.StatusOK, w.Code)
	var runs []db.Run
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, runID, runs[0].RunID)

	w = get(t, h, "/api/runs/ball?run_id="+runID)
	require.Equal(t, http.StatusOK, w.Code)
	var ball []db.BallSample
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ball))
	require.Len(t, ball, 1)
	assert.Equal(t, 0.5, ball[0].Pos.X)

	w = get(t, h, "/api/runs/robot?run_id="+runID+"&team=opp&id=0")
	require.Equal(t, http.StatusOK, w.Code)
	var robot []db.RobotSample
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &robot))
	require.Len(t, robot, 1)
	assert.Equal(t, -7.0, robot[0].Pos.X)

	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/runs/ball").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/runs/robot?run_id="+runID+"&id=abc").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/runs/robot?run_id="+runID+"&team=ref&id=1").Code)
}

func TestMetrics(t *testing.T) {
	m := NewMetrics()
	m.ObserveCycle(worldmodel.CycleStats{
		Timestamp:          2_500_000,
		Frames:             3,
		BallDetections:     2,
		RobotDetections:    7,
		TracksCreated:      4,
		DroppedOutOfRoster: 1,
		BallMode:           worldmodel.BallPredicted,
		LiveSelf:           3,
		LiveOpp:            1,
	}, 200*time.Microsecond)
	m.ObserveCycle(worldmodel.CycleStats{Timestamp: 2_516_000, BallMode: worldmodel.BallRaw, LiveSelf: 2}, time.Millisecond)
	m.ObserveVision(vision.PacketStatsSnapshot{Packets: 10, DecodeErrors: 1})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.cycles))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.frames))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.detections.WithLabelValues("robot")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dropped.WithLabelValues("out_of_roster")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.liveTracks.WithLabelValues("self")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ballPredicted))
	assert.InDelta(t, 2.516, testutil.ToFloat64(m.cycleTimestamp), 1e-9)
	assert.Equal(t, 10.0, testutil.ToFloat64(m.visionPackets))

	h := NewWebServer(WebServerConfig{Metrics: m}).Handler()
	w := get(t, h, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "fieldstate_cycle_total 2"))
}

type fakeRouter struct{ attached bool }

func (f *fakeRouter) AttachAdminRoutes(mux *http.ServeMux) {
	f.attached = true
	mux.HandleFunc("/debug/fake", func(w http.ResponseWriter, r *http.Request) {})
}

func TestWebServer_AdminRoutesAndStart(t *testing.T) {
	r := &fakeRouter{}
	ws := NewWebServer(WebServerConfig{Address: "127.0.0.1:0", AdminRoutes: []AdminRouter{r}})
	assert.True(t, r.attached)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ws.Start(ctx) }()

	require.Eventually(t, func() bool { return ws.Addr() != nil }, 2*time.Second, 10*time.Millisecond)
	resp, err := http.Get("http://" + ws.Addr().String() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
}
