package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/fieldstate/internal/config"
	"github.com/banshee-data/fieldstate/internal/db"
	"github.com/banshee-data/fieldstate/internal/filter"
	"github.com/banshee-data/fieldstate/internal/monitor"
	"github.com/banshee-data/fieldstate/internal/pipeline"
	"github.com/banshee-data/fieldstate/internal/radio"
	"github.com/banshee-data/fieldstate/internal/state"
	"github.com/banshee-data/fieldstate/internal/timeutil"
	"github.com/banshee-data/fieldstate/internal/vision"
	"github.com/banshee-data/fieldstate/internal/worldmodel"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// healthService is the name reported on the gRPC health endpoint.
const healthService = "fieldstate.WorldModel"

var (
	configPath      = flag.String("config", config.DefaultConfigPath, "Path to the tuning JSON file")
	listen          = flag.String("listen", ":8080", "HTTP listen address for the monitor")
	grpcListen      = flag.String("grpc-listen", ":50051", "gRPC health listen address (empty to disable)")
	team            = flag.String("team", "", "Our team colour: blue or yellow (default from config)")
	visionAddress   = flag.String("vision-address", "", "SSL-Vision multicast group:port (default from config)")
	visionInterface = flag.String("vision-interface", "", "Network interface for multicast (default: system choice)")
	pcapFile        = flag.String("pcap", "", "Replay SSL-Vision packets from a PCAP file instead of listening")
	pcapRealtime    = flag.Bool("pcap-realtime", true, "Pace PCAP replay by capture timestamps")
	radioPort       = flag.String("radio-port", "", "Base station serial device (default from config)")
	disableRadio    = flag.Bool("disable-radio", false, "Run without the radio base station")
	dbPath          = flag.String("db", "fieldstate.db", "SQLite file for recorded runs")
	disableRecord   = flag.Bool("disable-record", false, "Do not record cycles to the database")
	runNotes        = flag.String("notes", "", "Free-form notes stored with the recorded run")
	debug           = flag.Bool("debug", false, "Enable the diagnostic log stream")
	trace           = flag.Bool("trace", false, "Enable the per-cycle trace log stream (verbose)")
)

// resolveTeam maps the -team flag onto the blue_team setting.
func resolveTeam(flagValue string, configBlue bool) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(flagValue)) {
	case "":
		return configBlue, nil
	case "blue":
		return true, nil
	case "yellow":
		return false, nil
	default:
		return false, fmt.Errorf("unknown team %q: expected blue or yellow", flagValue)
	}
}

// portOf returns the numeric port of a host:port address.
func portOf(addr string) (int, error) {
	_, p, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, err
	}
	port, err := strconv.Atoi(p)
	if err != nil || port <= 0 || port > 65535 {
		return 0, fmt.Errorf("invalid port in %q", addr)
	}
	return port, nil
}

// logWriters returns the ops, diag and trace writers for the requested
// verbosity. Disabled streams are nil.
func logWriters(w io.Writer, debug, trace bool) (ops, diag, tr io.Writer) {
	ops = w
	if debug || trace {
		diag = w
	}
	if trace {
		tr = w
	}
	return ops, diag, tr
}

func setLogWriters(ops, diag, tr io.Writer) {
	vision.SetLogWriters(ops, diag, tr)
	radio.SetLogWriters(ops, diag, tr)
	worldmodel.SetLogWriters(ops, diag, tr)
	filter.SetLogWriters(ops, diag, tr)
	monitor.SetLogWriters(ops, diag, tr)
	pipeline.SetLogWriters(ops, diag, tr)
}

func main() {
	flag.Parse()

	if *listen == "" {
		log.Fatal("Listen address is required")
	}
	setLogWriters(logWriters(os.Stderr, *debug, *trace))

	tuning, err := config.LoadTuningConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load tuning config: %v", err)
	}
	blueTeam, err := resolveTeam(*team, tuning.GetBlueTeam())
	if err != nil {
		log.Fatal(err)
	}

	st := state.New(tuning.GetRosterSize())
	wm := worldmodel.New(
		worldmodel.ConfigFromTuning(tuning),
		st,
		filter.NewBallKalman(filter.BallConfigFromTuning(tuning)),
		filter.RobotFactory(filter.RobotConfigFromTuning(tuning)),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Vision: live multicast or PCAP replay, both feeding the batcher.
	frames := vision.NewBatcher(vision.DefaultBatchCapacity)
	visionStats := &vision.PacketStats{}
	addr := *visionAddress
	if addr == "" {
		addr = tuning.GetVisionAddress()
	}
	listener := vision.NewListener(vision.ListenerConfig{
		Address:     addr,
		Interface:   *visionInterface,
		LogInterval: 10 * time.Second,
		Sink:        frames,
		Stats:       visionStats,
	})

	// Radio: the base station when configured, otherwise a disabled mux.
	var mux radio.Muxer
	port := *radioPort
	if port == "" {
		port = tuning.GetRadioPort()
	}
	if *disableRadio || port == "" {
		log.Printf("radio disabled")
		mux = radio.NewDisabledMux()
	} else {
		m, err := radio.Open(port, radio.PortOptions{BaudRate: tuning.GetRadioBaudRate()})
		if err != nil {
			log.Fatalf("failed to open radio: %v", err)
		}
		mux = m
	}
	defer mux.Close()
	telemetry := radio.NewTelemetryBuffer()
	receiver := radio.NewReceiver(mux, telemetry, timeutil.RealClock{})

	// Recording.
	var database *db.DB
	var runID string
	if !*disableRecord {
		database, err = db.NewDB(*dbPath)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer database.Close()
		runID, err = database.StartRun(time.Now(), blueTeam, tuning.GetRosterSize(), *runNotes)
		if err != nil {
			log.Fatalf("failed to start run: %v", err)
		}
		log.Printf("recording run %s to %s", runID, *dbPath)
	}

	metrics := monitor.NewMetrics()
	routes := []monitor.AdminRouter{receiver}
	if database != nil {
		routes = append(routes, database)
	}
	web := monitor.NewWebServer(monitor.WebServerConfig{
		Address:     *listen,
		Metrics:     metrics,
		DB:          database,
		AdminRoutes: routes,
	})

	pcfg := pipeline.Config{
		WorldModel:  wm,
		Frames:      frames,
		Telemetry:   telemetry,
		BlueTeam:    blueTeam,
		Interval:    tuning.GetCycleInterval(),
		Publisher:   web,
		Metrics:     metrics,
		VisionStats: visionStats,
	}
	if database != nil {
		pcfg.Recorder = database
		pcfg.RunID = runID
	}
	loop, err := pipeline.New(pcfg)
	if err != nil {
		log.Fatal(err)
	}

	healthServer := health.NewServer()
	var grpcServer *grpc.Server
	if *grpcListen != "" {
		grpcServer = grpc.NewServer()
		healthpb.RegisterHealthServer(grpcServer, healthServer)
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		var err error
		if *pcapFile != "" {
			var udpPort int
			if udpPort, err = portOf(addr); err == nil {
				err = vision.ReadPCAPFile(ctx, *pcapFile, udpPort, frames, visionStats, *pcapRealtime)
			}
		} else {
			err = listener.Start(ctx)
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("vision input stopped: %v", err)
		}
		log.Print("vision routine terminated")
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := mux.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("failed to monitor radio port: %v", err)
		}
		log.Print("radio monitor routine terminated")
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := receiver.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("telemetry receiver stopped: %v", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := web.Start(ctx); err != nil {
			log.Printf("HTTP server error: %v", err)
		}
		log.Printf("HTTP server routine stopped")
	}()

	if grpcServer != nil {
		ln, err := net.Listen("tcp", *grpcListen)
		if err != nil {
			log.Fatalf("failed to listen for gRPC on %s: %v", *grpcListen, err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Printf("gRPC health listening on %s", ln.Addr())
			if err := grpcServer.Serve(ln); err != nil {
				log.Printf("gRPC server error: %v", err)
			}
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-ctx.Done()
			healthServer.Shutdown()
			grpcServer.GracefulStop()
		}()
	}

	healthServer.SetServingStatus(healthService, healthpb.HealthCheckResponse_SERVING)
	if err := loop.Run(ctx); err != nil {
		log.Printf("cycle loop error: %v", err)
	}

	wg.Wait()
	if database != nil {
		if err := database.EndRun(runID, time.Now()); err != nil {
			log.Printf("failed to close run: %v", err)
		}
	}
	log.Printf("Graceful shutdown complete after %d cycles", loop.Cycles())
}
