package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/fairway-data/launch.report/internal/api"
	"github.com/fairway-data/launch.report/internal/camera"
	"github.com/fairway-data/launch.report/internal/capture"
	"github.com/fairway-data/launch.report/internal/config"
	"github.com/fairway-data/launch.report/internal/events"
	"github.com/fairway-data/launch.report/internal/exposure"
	"github.com/fairway-data/launch.report/internal/monitoring"
	"github.com/fairway-data/launch.report/internal/radar"
	"github.com/fairway-data/launch.report/internal/serialio"
	"github.com/fairway-data/launch.report/internal/store"
	"github.com/fairway-data/launch.report/internal/version"
	"github.com/fairway-data/launch.report/internal/vision"
)

var (
	configPath = flag.String("config", config.DefaultConfigPath, "Path to the tuning config file")
	devMode    = flag.Bool("dev", false, "Run with a simulated radar and synthetic camera")
	listen     = flag.String("listen", ":8080", "HTTP listen address")
	serialPort = flag.String("port", "/dev/ttyUSB0", "Radar serial port (ignored in dev mode)")
	cameraDev  = flag.String("camera", "0", "Camera device index or path (ignored in dev mode)")
	dbPath     = flag.String("db", "launchmon.db", "Path to the shot database")
	debugLog   = flag.Bool("debug", false, "Enable per-frame debug logging")
)

func main() {
	flag.Parse()
	monitoring.SetDebug(*debugLog)

	if *listen == "" {
		log.Fatal("listen address is required")
	}

	log.Printf("starting %s", version.String())

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config %s: %v", *configPath, err)
	}

	st, err := store.Open(*dbPath)
	if err != nil {
		log.Fatalf("failed to open shot database: %v", err)
	}
	defer st.Close()

	// Radar side: a serial connection, real or simulated, feeding the
	// trigger poller.
	var conn *serialio.Conn
	if *devMode {
		conn = serialio.NewConn(radar.NewSimulatedModule())
		log.Print("dev mode: using simulated radar module")
	} else {
		conn, err = serialio.Open(*serialPort, serialio.PortOptions{})
		if err != nil {
			log.Fatalf("failed to open radar serial port %s: %v", *serialPort, err)
		}
	}
	conn.AllowCommand = radar.IsAllowedCommand
	defer conn.Close()

	bus := events.NewBus(64)
	defer bus.Close()

	poller := radar.NewPoller(radar.PollerOptions{
		Conn: conn,
		Gate: radar.TriggerGate{
			MinSpeedMph:    cfg.GetMinTriggerSpeedMph(),
			MinMagnitudeDB: cfg.GetMinMagnitudeDB(),
			Direction:      cfg.GetDirectionFilter(),
		},
		Bus:                 bus,
		SampleRateHz:        cfg.GetRadarSampleRateHz(),
		HighRangeMultiplier: cfg.GetHighRangeMultiplier(),
		TriggerQueueSize:    cfg.GetTriggerQueueSize(),
	})

	// Camera side: frame source, detector, tracker, exposure loop.
	preview := camera.StreamConfig{
		Width:         cfg.GetCameraWidth(),
		Height:        cfg.GetCameraHeight(),
		FPS:           cfg.GetPreviewFPS(),
		ShutterMicros: cfg.GetShutterMaxMicros(),
		Gain:          cfg.GetGainMin(),
	}

	var source camera.FrameSource
	if *devMode {
		synth := camera.NewSynthetic(preview)
		synth.SetScript(camera.RestingBall(preview.Width, preview.Height))
		source = synth
		log.Print("dev mode: using synthetic camera")
	} else {
		source = camera.NewWebcam(*cameraDev)
	}

	detector := vision.NewDetector(vision.DetectorParams{
		CLAHEClipLimit:    cfg.GetCLAHEClipLimit(),
		CLAHETileSize:     cfg.GetCLAHETileSize(),
		BrightnessFloor:   cfg.GetBrightnessFloor(),
		CannyLow:          cfg.GetCannyLow(),
		CannyHigh:         cfg.GetCannyHigh(),
		MorphKernelSize:   cfg.GetMorphKernelSize(),
		BlurKernelSize:    cfg.GetBlurKernelSize(),
		HoughDP:           cfg.GetHoughDP(),
		HoughMinDist:      cfg.GetHoughMinDist(),
		Param2Ladder:      cfg.GetHoughParam2Ladder(),
		RadiusMin:         cfg.GetBallRadiusMin(),
		RadiusMax:         cfg.GetBallRadiusMax(),
		DedupeRadius:      cfg.GetDedupeRadius(),
		EdgeMargin:        cfg.GetEdgeMargin(),
		MeanBrightnessMin: cfg.GetMeanBrightnessMin(),
		ContrastMin:       cfg.GetContrastMin(),
	})

	tracker := vision.NewTracker(vision.TrackerParams{
		TemplateSize:     cfg.GetTemplateSize(),
		SearchRadius:     cfg.GetSearchRadius(),
		StrongMatchScore: cfg.GetStrongMatchScore(),
		WeakMatchScore:   cfg.GetWeakMatchScore(),
		OcclusionBudget:  cfg.GetOcclusionBudget(),
		ProcessNoisePos:  cfg.GetProcessNoisePos(),
		ProcessNoiseVel:  cfg.GetProcessNoiseVel(),
		MeasurementNoise: cfg.GetMeasurementNoise(),
	})

	exposureCtrl := exposure.NewController(exposure.Params{
		TargetBrightness:  cfg.GetTargetBrightness(),
		Tolerance:         cfg.GetBrightnessTol(),
		Alpha:             cfg.GetBrightnessAlpha(),
		AdjustSpeed:       cfg.GetAdjustSpeed(),
		MinAdjustInterval: cfg.GetMinAdjustInterval(),
		ShutterMinMicros:  cfg.GetShutterMinMicros(),
		ShutterMaxMicros:  cfg.GetShutterMaxMicros(),
		GainMin:           cfg.GetGainMin(),
		GainMax:           cfg.GetGainMax(),
	}, exposure.Setting{ShutterMicros: preview.ShutterMicros, Gain: preview.Gain})

	holder := vision.NewSnapshotHolder()

	loop := capture.NewLoop(capture.LoopOptions{
		Source:       source,
		Detector:     detector,
		Tracker:      tracker,
		Exposure:     exposureCtrl,
		Applier:      camera.NewExposureApplier(source, preview),
		Holder:       holder,
		Bus:          bus,
		Preview:      preview,
		BurstFPS:     cfg.GetBurstFPS(),
		DetectEvery:  cfg.GetDetectEvery(),
		MinLockScore: cfg.GetMinLockScore(),
	})

	orch := capture.NewOrchestrator(capture.OrchestratorOptions{
		Triggers:          poller.Triggers(),
		Holder:            holder,
		Burster:           loop,
		Sink:              st,
		Profile:           st,
		Bus:               bus,
		BurstFrames:       cfg.GetBurstFrames(),
		MinLockConfidence: cfg.GetMinLockConfidence(),
	})

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// serial monitor routine
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := conn.Monitor(ctx); err != nil && err != context.Canceled {
			log.Printf("serial monitor: %v", err)
		}
	}()

	// trigger poll routine
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := poller.Run(ctx, cfg.GetRadarPollInterval()); err != nil && err != context.Canceled {
			log.Printf("radar poller: %v", err)
		}
	}()

	// camera loop routine
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := loop.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("camera loop: %v", err)
		}
	}()

	// orchestrator routine
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := orch.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("orchestrator: %v", err)
		}
	}()

	// HTTP server routine
	wg.Add(1)
	go func() {
		defer wg.Done()

		server := api.NewServer(bus, st, holder, cfg)
		server.AddStatusField("trigger_state", func() interface{} { return poller.State() })
		server.AddStatusField("missed_captures", func() interface{} { return orch.MissedCount() })
		server.AddStatusField("exposure", func() interface{} { return exposureCtrl.Current() })

		mux := server.ServeMux()
		conn.AttachAdminRoutes(mux)
		if err := st.AttachAdminRoutes(mux); err != nil {
			log.Printf("failed to attach db admin routes: %v", err)
		}

		httpServer := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		go func() {
			log.Printf("listening on %s", *listen)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := httpServer.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}
	}()

	wg.Wait()
	log.Print("graceful shutdown complete")
}
