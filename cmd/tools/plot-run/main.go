// Command plot-run renders the ball and robot trajectories of a recorded run
// to a PNG.
package main

import (
	"flag"
	"log"

	"github.com/banshee-data/fieldstate/internal/db"
)

func main() {
	dbPath := flag.String("db", "fieldstate.db", "SQLite file with recorded runs")
	runID := flag.String("run", "", "run id to plot (default: most recent)")
	output := flag.String("o", "run.png", "output PNG path")
	flag.Parse()

	database, err := db.OpenDB(*dbPath)
	if err != nil {
		log.Fatalf("failed to open %s: %v", *dbPath, err)
	}
	defer database.Close()

	run, err := selectRun(database, *runID)
	if err != nil {
		log.Fatal(err)
	}

	series, err := plotRun(database, run, *output)
	if err != nil {
		log.Fatalf("failed to plot run %s: %v", run.RunID, err)
	}
	log.Printf("wrote %s: run %s, %d cycles, %d trajectories", *output, run.RunID, run.Cycles, series)
}
