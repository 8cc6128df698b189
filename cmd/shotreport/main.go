// shotreport renders offline session reports from a launchmon shot
// database: an HTML page of session charts, and optionally a trajectory
// PNG for a single shot.
package main

import (
	"context"
	"flag"
	"log"
	"os"

	_ "modernc.org/sqlite"

	"github.com/fairway-data/launch.report/internal/capture"
	"github.com/fairway-data/launch.report/internal/report"
	"github.com/fairway-data/launch.report/internal/store"
)

var (
	dbPath    = flag.String("db", "launchmon.db", "Path to the shot database")
	outPath   = flag.String("out", "session.html", "Output path for the session HTML report")
	profileID = flag.String("profile", "", "Restrict the report to one profile ID")
	limit     = flag.Int("limit", 200, "Maximum number of shots to include")
	shotID    = flag.String("shot", "", "Render a trajectory PNG for this shot ID instead of a session report")
	pngPath   = flag.String("png", "trajectory.png", "Output path for the trajectory PNG (with -shot)")
)

func main() {
	flag.Parse()

	st, err := store.Open(*dbPath)
	if err != nil {
		log.Fatalf("failed to open shot database %s: %v", *dbPath, err)
	}
	defer st.Close()

	ctx := context.Background()

	if *shotID != "" {
		shot, err := st.GetShot(ctx, *shotID)
		if err != nil {
			log.Fatalf("failed to load shot %s: %v", *shotID, err)
		}
		if err := report.SaveTrajectoryPNG(*shot, *pngPath); err != nil {
			log.Fatalf("failed to render trajectory: %v", err)
		}
		log.Printf("wrote %s", *pngPath)
		return
	}

	var list []capture.Shot
	if *profileID != "" {
		list, err = st.ShotsByProfile(ctx, *profileID, *limit)
	} else {
		list, err = st.RecentShots(ctx, *limit)
	}
	if err != nil {
		log.Fatalf("failed to load shots: %v", err)
	}
	if len(list) == 0 {
		log.Fatal("no shots found")
	}

	f, err := os.Create(*outPath)
	if err != nil {
		log.Fatalf("failed to create %s: %v", *outPath, err)
	}
	defer f.Close()

	if err := report.RenderSessionHTML(f, list); err != nil {
		log.Fatalf("failed to render report: %v", err)
	}
	log.Printf("wrote %s (%d shots)", *outPath, len(list))
}
