package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/courtside-data/replay.vision/internal/config"
	"github.com/courtside-data/replay.vision/internal/db"
	"github.com/courtside-data/replay.vision/internal/version"
	"github.com/courtside-data/replay.vision/internal/video"
	"github.com/courtside-data/replay.vision/internal/video/l1ingest"
	"github.com/courtside-data/replay.vision/internal/video/l2detect"
	"github.com/courtside-data/replay.vision/internal/video/l3embed"
	"github.com/courtside-data/replay.vision/internal/video/l5tracks"
	"github.com/courtside-data/replay.vision/internal/video/l6replay"
	"github.com/courtside-data/replay.vision/internal/video/monitor"
	"github.com/courtside-data/replay.vision/internal/video/pipeline"
	"github.com/courtside-data/replay.vision/internal/video/storage/sqlite"
)

var (
	listen      = flag.String("listen", ":8080", "HTTP listen address")
	streamID    = flag.String("stream", "court-1", "Stream identifier for this capture box")
	dbFile      = flag.String("db", "replay.db", "Path to the SQLite results database (empty disables persistence)")
	detlogPath  = flag.String("detlog", "", "Replay detections from a JSONL log instead of listening on UDP")
	pcapFile    = flag.String("pcap", "", "Replay detections from a pcap capture (requires a -tags=pcap build)")
	udpPort     = flag.Int("udp-port", 9999, "UDP port to listen on for detection datagrams")
	udpAddress  = flag.String("udp-addr", "", "UDP bind address (default: listen on all interfaces)")
	rcvBuf      = flag.Int("rcvbuf", 4<<20, "UDP receive buffer size in bytes (default 4MB)")
	framesDir   = flag.String("frames", "", "Directory of decoded frames for appearance embedding")
	tuningPath  = flag.String("tuning", "", "Path to a tuning config JSON file")
	runLabel    = flag.String("label", "", "Start a replay run with this label at startup (requires -db)")
	logInterval = flag.Int("log-interval", 60, "Ingest statistics logging interval in seconds")
	pprofAddr   = flag.String("pprof", "", "Serve pprof on this address (e.g. localhost:6060)")
	showVersion = flag.Bool("version", false, "Print version information and exit")
)

// parseMigrateArgs strips an optional --db-path flag out of the migrate
// subcommand arguments, falling back to def when absent.
func parseMigrateArgs(args []string, def string) ([]string, string) {
	out := make([]string, 0, len(args))
	dbPath := def
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--db-path" || arg == "-db-path":
			if i+1 < len(args) {
				dbPath = args[i+1]
				i++
			}
		case strings.HasPrefix(arg, "--db-path="):
			dbPath = strings.TrimPrefix(arg, "--db-path=")
		case strings.HasPrefix(arg, "-db-path="):
			dbPath = strings.TrimPrefix(arg, "-db-path=")
		default:
			out = append(out, arg)
		}
	}
	return out, dbPath
}

// resolveSource validates the source flags and names the detection source
// for run provenance.
func resolveSource(detlog, pcap, udpAddr string) (sourceType, sourcePath string, err error) {
	if detlog != "" && pcap != "" {
		return "", "", fmt.Errorf("-detlog and -pcap are mutually exclusive")
	}
	switch {
	case detlog != "":
		return "detlog", detlog, nil
	case pcap != "":
		return "pcap", pcap, nil
	default:
		return "live", udpAddr, nil
	}
}

// buildRunParams snapshots the effective layer configs for run provenance.
func buildRunParams(cfg *config.TuningConfig) sqlite.RunParams {
	return sqlite.RunParams{
		Version:   "1.0",
		Timestamp: time.Now().UTC(),
		Filter:    sqlite.FromFilterConfig(l2detect.ConfigFromTuning(cfg)),
		Tracking:  sqlite.FromTrackerConfig(l5tracks.TrackerConfigFromTuning(cfg)),
		Replay:    sqlite.FromAugmentConfig(l6replay.AugmentConfigFromTuning(cfg), cfg.GetFrameInterval()),
	}
}

// replayDetectionLog feeds a recorded JSONL detection log through the
// pipeline callback as fast as it reads. One log line counts as one packet
// for rate logging; replayed logs carry no transport bytes.
func replayDetectionLog(ctx context.Context, reader *l1ingest.LogReader, handler l1ingest.FrameHandler, stats *video.IngestStats, logEvery time.Duration) (int64, error) {
	var frames int64
	lastLog := time.Now()
	for {
		select {
		case <-ctx.Done():
			return frames, ctx.Err()
		default:
		}

		fd, ok, err := reader.Next()
		if err != nil {
			return frames, err
		}
		if !ok {
			if skipped := reader.SkippedLines(); skipped > 0 {
				log.Printf("Skipped %d malformed detection log lines", skipped)
			}
			return frames, nil
		}

		stats.AddPacket(0)
		stats.AddDetections(len(fd.Detections))
		handler(fd)
		frames++

		if time.Since(lastLog) >= logEvery {
			stats.LogStats()
			lastLog = time.Now()
		}
	}
}

// Main
func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("replay-vision %s\n", version.String())
		return
	}

	// The migrate subcommand manages the results database schema and exits.
	if args := flag.Args(); len(args) > 0 && args[0] == "migrate" {
		migrateArgs, dbPath := parseMigrateArgs(args[1:], *dbFile)
		db.RunMigrateCommand(migrateArgs, dbPath)
		return
	}

	if *listen == "" {
		log.Fatal("HTTP listen address is required")
	}
	if *streamID == "" {
		log.Fatal("Stream identifier is required")
	}

	// Pipeline diagnostics: operational messages to stderr by default, all
	// three streams to the REPLAY_DEBUG_LOG target when set.
	pipeline.SetLogWriters(os.Stderr, nil, nil)
	if target := os.Getenv("REPLAY_DEBUG_LOG"); target != "" {
		if target == "stderr" {
			pipeline.SetLegacyLogger(os.Stderr)
		} else {
			f, err := os.OpenFile(target, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
			if err != nil {
				log.Fatalf("Failed to open REPLAY_DEBUG_LOG %s: %v", target, err)
			}
			defer f.Close()
			pipeline.SetLegacyLogger(f)
		}
	}

	tuning := config.EmptyTuningConfig()
	if *tuningPath != "" {
		loaded, err := config.LoadTuningConfig(*tuningPath)
		if err != nil {
			log.Fatalf("Failed to load tuning config: %v", err)
		}
		tuning = loaded
	}
	applyTuningFlags(tuning)
	if err := tuning.Validate(); err != nil {
		log.Fatalf("Invalid tuning configuration: %v", err)
	}

	udpListenAddr := fmt.Sprintf(":%d", *udpPort)
	if *udpAddress != "" {
		udpListenAddr = fmt.Sprintf("%s:%d", *udpAddress, *udpPort)
	}

	sourceType, sourcePath, err := resolveSource(*detlogPath, *pcapFile, udpListenAddr)
	if err != nil {
		log.Fatal(err)
	}

	// Source open failures are fatal before any tracking work starts.
	var logReader *l1ingest.LogReader
	switch sourceType {
	case "detlog":
		logReader, err = l1ingest.OpenLog(*detlogPath)
		if err != nil {
			log.Fatalf("Failed to open detection log: %v", err)
		}
		defer logReader.Close()
	case "pcap":
		if _, err := os.Stat(*pcapFile); err != nil {
			log.Fatalf("Failed to open pcap file: %v", err)
		}
	default:
		if _, err := net.ResolveUDPAddr("udp", udpListenAddr); err != nil {
			log.Fatalf("Invalid UDP listen address %s: %v", udpListenAddr, err)
		}
	}

	var database *db.DB
	if *dbFile != "" {
		database, err = db.NewDBWithMigrationCheck(*dbFile, true)
		if err != nil {
			log.Fatalf("Failed to open results database: %v", err)
		}
		defer database.Close()
	} else if *runLabel != "" {
		log.Fatal("-label requires a results database (-db)")
	}

	var frameSource video.FrameSource
	var embedder l3embed.Embedder
	if *framesDir != "" {
		src, err := l1ingest.NewFrameDirSource(*framesDir)
		if err != nil {
			log.Fatalf("Failed to open frame directory: %v", err)
		}
		frameSource = src
		embedder = l3embed.NewHistogramEmbedder()
		log.Printf("Appearance embedding enabled over %d frames from %s", src.Len(), *framesDir)
	} else {
		log.Println("No frame directory; association runs on motion and overlap alone")
	}

	stats := video.NewIngestStats()
	filterStats := &l2detect.FilterStats{}
	filter := l2detect.StandardChain(l2detect.ConfigFromTuning(tuning), filterStats)
	tracker := l5tracks.NewTracker(l5tracks.TrackerConfigFromTuning(tuning))
	augment := l6replay.AugmentConfigFromTuning(tuning)

	var runManager *sqlite.RunManager
	if database != nil {
		runManager = sqlite.NewRunManager(database.DB, *streamID)
		sqlite.RegisterRunManager(*streamID, runManager)
	}

	// Finite sources get a timeline builder; a live stream would grow one
	// without bound, and the observation store already covers that need.
	var timeline *l6replay.TimelineBuilder
	if sourceType != "live" {
		timeline = l6replay.NewTimelineBuilder()
	}

	pipelineCfg := &pipeline.ReplayPipelineConfig{
		StreamID:      *streamID,
		Filter:        filter,
		FilterStats:   filterStats,
		Embedder:      embedder,
		Frames:        frameSource,
		Tracker:       tracker,
		Timeline:      timeline,
		Augment:       &augment,
		RunManager:    runManager,
		FrameInterval: tuning.GetFrameInterval(),
	}
	callback := pipelineCfg.NewFrameCallback()

	var listener *l1ingest.DetectionListener
	if sourceType == "live" {
		listener = l1ingest.NewDetectionListener(l1ingest.DetectionListenerConfig{
			Address:     udpListenAddr,
			RcvBuf:      *rcvBuf,
			LogInterval: time.Duration(*logInterval) * time.Second,
			Handler:     callback,
			Stats:       stats,
		})
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start the replay run before the first frame so every observation
	// lands in it.
	if *runLabel != "" {
		runID, err := runManager.StartRun(sourceType, sourcePath, *runLabel, buildRunParams(tuning))
		if err != nil {
			log.Fatalf("Failed to start replay run: %v", err)
		}
		log.Printf("Recording replay run %s (%q)", runID, *runLabel)
	}

	var wg sync.WaitGroup

	// Monitor server goroutine.
	ws := monitor.NewWebServer(monitor.WebServerConfig{
		Address:  *listen,
		StreamID: *streamID,
		Stats:    stats,
		DB:       database,
		Runtime: &pipeline.StreamRuntime{
			StreamID:   *streamID,
			Listener:   listener,
			Tracker:    tracker,
			RunManager: runManager,
		},
		Tuning: tuning,
	})
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := ws.Start(ctx); err != nil {
			log.Printf("Monitor server error: %v", err)
		}
	}()

	if *pprofAddr != "" {
		go func() {
			log.Printf("pprof listening on %s", *pprofAddr)
			if err := http.ListenAndServe(*pprofAddr, nil); err != nil {
				log.Printf("pprof listener error: %v", err)
			}
		}()
	}

	// Detection source goroutine.
	wg.Add(1)
	go func() {
		defer wg.Done()
		var srcErr error
		switch sourceType {
		case "detlog":
			var frames int64
			frames, srcErr = replayDetectionLog(ctx, logReader, callback, stats, time.Duration(*logInterval)*time.Second)
			if srcErr == nil {
				stats.LogStats()
				log.Printf("Replayed %d frames from %s", frames, *detlogPath)
			}
		case "pcap":
			srcErr = l1ingest.ReadPCAPFile(ctx, *pcapFile, *udpPort, callback, stats)
		default:
			srcErr = listener.Start(ctx)
		}
		if srcErr != nil && srcErr != context.Canceled {
			log.Printf("Detection source error: %v", srcErr)
		}

		// Close out the startup run once the source is done. A run already
		// stopped via the monitor is left alone.
		if runManager != nil && runManager.IsRunActive() && *runLabel != "" {
			if err := runManager.CompleteRun(); err != nil {
				log.Printf("Failed to complete replay run: %v", err)
			} else {
				log.Print("Replay run completed")
			}
		}

		if sourceType != "live" && ctx.Err() == nil {
			m := tracker.Metrics()
			log.Printf("Source complete: %d frames, %d tracks created, %d confirmed; monitor serving on %s until interrupted",
				m.FramesProcessed, m.TracksCreated, m.TracksPromoted, *listen)
		}
	}()

	wg.Wait()
	if frameSource != nil {
		frameSource.Close()
	}
	log.Printf("Graceful shutdown complete")
}
