// Package monitor serves the operator-facing HTTP surface: health, the
// latest published state as JSON, go-echarts debug charts, recorded runs
// and Prometheus metrics.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/banshee-data/fieldstate/internal/db"
	"github.com/banshee-data/fieldstate/internal/state"
	"github.com/banshee-data/fieldstate/internal/worldmodel"
)

// DefaultHistory is the number of cycles kept for the cycle chart.
const DefaultHistory = 600

// AdminRouter is implemented by components that mount /debug/ routes.
type AdminRouter interface {
	AttachAdminRoutes(*http.ServeMux)
}

// WebServerConfig contains configuration options for the web server
type WebServerConfig struct {
	Address     string
	Metrics     *Metrics
	DB          *db.DB
	History     int
	AdminRoutes []AdminRouter
}

// WebServer serves the monitor endpoints. Publish is called by the cycle
// loop; handlers only read copies.
type WebServer struct {
	address string
	metrics *Metrics
	db      *db.DB
	server  *http.Server
	started time.Time

	mu      sync.RWMutex
	latest  *state.SystemState
	stats   worldmodel.CycleStats
	cycles  uint64
	history []worldmodel.CycleStats
	histCap int
	listen  net.Addr
}

// NewWebServer creates a new web server with the provided configuration
func NewWebServer(config WebServerConfig) *WebServer {
	if config.History <= 0 {
		config.History = DefaultHistory
	}
	ws := &WebServer{
		address: config.Address,
		metrics: config.Metrics,
		db:      config.DB,
		started: time.Now(),
		histCap: config.History,
	}

	mux := ws.setupRoutes()
	for _, r := range config.AdminRoutes {
		r.AttachAdminRoutes(mux)
	}
	ws.server = &http.Server{
		Addr:              ws.address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return ws
}

// Handler returns the root handler, for tests and embedding.
func (ws *WebServer) Handler() http.Handler {
	return ws.server.Handler
}

// Publish records the state and statistics of a finished cycle.
func (ws *WebServer) Publish(st *state.SystemState, stats worldmodel.CycleStats) {
	snap := st.Clone()

	ws.mu.Lock()
	defer ws.mu.Unlock()
	ws.latest = snap
	ws.stats = stats
	ws.cycles++
	if len(ws.history) == ws.histCap {
		copy(ws.history, ws.history[1:])
		ws.history = ws.history[:len(ws.history)-1]
	}
	ws.history = append(ws.history, stats)
}

func (ws *WebServer) snapshot() (*state.SystemState, worldmodel.CycleStats, uint64) {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	return ws.latest, ws.stats, ws.cycles
}

func (ws *WebServer) recentCycles() []worldmodel.CycleStats {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	return append([]worldmodel.CycleStats(nil), ws.history...)
}

// Addr returns the bound address once Start is listening.
func (ws *WebServer) Addr() net.Addr {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	return ws.listen
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (ws *WebServer) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", ws.address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", ws.address, err)
	}
	ws.mu.Lock()
	ws.listen = ln.Addr()
	ws.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		opsf("Starting HTTP server on %s", ln.Addr())
		if err := ws.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	opsf("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		opsf("HTTP server shutdown error: %v", err)
		if err := ws.server.Close(); err != nil {
			opsf("HTTP server force close error: %v", err)
		}
	}
	return nil
}

// setupRoutes configures the HTTP routes and handlers
func (ws *WebServer) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", ws.handleHealth)
	mux.HandleFunc("/api/status", ws.handleStatus)
	mux.HandleFunc("/api/state", ws.handleState)
	mux.HandleFunc("/api/runs", ws.handleRuns)
	mux.HandleFunc("/api/runs/ball", ws.handleRunBall)
	mux.HandleFunc("/api/runs/robot", ws.handleRunRobot)
	mux.HandleFunc("/charts/field", ws.handleFieldChart)
	mux.HandleFunc("/charts/cycles", ws.handleCycleChart)
	if ws.metrics != nil {
		mux.Handle("/metrics", ws.metrics.Handler())
	}

	return mux
}

func (ws *WebServer) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		diagf("encode response: %v", err)
	}
}

func (ws *WebServer) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("ok"))
}

func (ws *WebServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	_, stats, cycles := ws.snapshot()
	ws.writeJSON(w, struct {
		Uptime    string                `json:"uptime"`
		Cycles    uint64                `json:"cycles"`
		LastCycle worldmodel.CycleStats `json:"last_cycle"`
	}{
		Uptime:    time.Since(ws.started).Round(time.Second).String(),
		Cycles:    cycles,
		LastCycle: stats,
	})
}

func (ws *WebServer) handleState(w http.ResponseWriter, r *http.Request) {
	st, _, _ := ws.snapshot()
	if st == nil {
		ws.writeJSONError(w, http.StatusServiceUnavailable, "no cycle has run yet")
		return
	}
	ws.writeJSON(w, st)
}

func (ws *WebServer) handleRuns(w http.ResponseWriter, r *http.Request) {
	if ws.db == nil {
		ws.writeJSONError(w, http.StatusNotFound, "recording disabled")
		return
	}
	runs, err := ws.db.ListRuns()
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("list runs: %v", err))
		return
	}
	if runs == nil {
		runs = []db.Run{}
	}
	ws.writeJSON(w, runs)
}

// handleRunBall returns the recorded ball trajectory.
// Query params:
//   - run_id (required)
func (ws *WebServer) handleRunBall(w http.ResponseWriter, r *http.Request) {
	if ws.db == nil {
		ws.writeJSONError(w, http.StatusNotFound, "recording disabled")
		return
	}
	runID := r.URL.Query().Get("run_id")
	if runID == "" {
		ws.writeJSONError(w, http.StatusBadRequest, "missing 'run_id' parameter")
		return
	}
	samples, err := ws.db.LoadBallTrajectory(runID)
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("load ball trajectory: %v", err))
		return
	}
	if samples == nil {
		samples = []db.BallSample{}
	}
	ws.writeJSON(w, samples)
}

// handleRunRobot returns one robot's recorded trajectory.
// Query params:
//   - run_id (required)
//   - team (self|opp, default self)
//   - id (required)
func (ws *WebServer) handleRunRobot(w http.ResponseWriter, r *http.Request) {
	if ws.db == nil {
		ws.writeJSONError(w, http.StatusNotFound, "recording disabled")
		return
	}
	q := r.URL.Query()
	runID := q.Get("run_id")
	if runID == "" {
		ws.writeJSONError(w, http.StatusBadRequest, "missing 'run_id' parameter")
		return
	}
	id, err := strconv.Atoi(q.Get("id"))
	if err != nil {
		ws.writeJSONError(w, http.StatusBadRequest, "invalid 'id' parameter")
		return
	}
	team := q.Get("team")
	if team == "" {
		team = db.TeamSelf
	}
	samples, err := ws.db.LoadRobotTrajectory(runID, team, id)
	if err != nil {
		ws.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if samples == nil {
		samples = []db.RobotSample{}
	}
	ws.writeJSON(w, samples)
}

// Close stops the server immediately.
func (ws *WebServer) Close() error {
	return ws.server.Close()
}
