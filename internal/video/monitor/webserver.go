package monitor

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"time"

	"github.com/courtside-data/replay.vision/internal/config"
	"github.com/courtside-data/replay.vision/internal/db"
	"github.com/courtside-data/replay.vision/internal/httputil"
	"github.com/courtside-data/replay.vision/internal/version"
	"github.com/courtside-data/replay.vision/internal/video"
	"github.com/courtside-data/replay.vision/internal/video/pipeline"
)

//go:embed status.html
var statusHTML embed.FS

// WebServer handles the HTTP interface for monitoring one replay stream.
// It provides endpoints for health checks, run inspection, live track
// state, tuning, and debugging charts.
type WebServer struct {
	address   string
	streamID  string
	stats     *video.IngestStats
	db        *db.DB
	server    *http.Server
	startTime time.Time

	runAPI    *RunAPI
	trackAPI  *TrackAPI
	tuningAPI *TuningAPI
}

// WebServerConfig contains configuration options for the web server.
type WebServerConfig struct {
	Address  string
	StreamID string
	Stats    *video.IngestStats
	DB       *db.DB

	// Runtime carries the live per-stream dependencies. Nil runs the
	// monitor in results-only mode over the database.
	Runtime *pipeline.StreamRuntime

	// Tuning seeds the tuning API with the operator's loaded config.
	// Nil starts from an empty override set.
	Tuning *config.TuningConfig
}

// NewWebServer creates a new web server with the provided configuration.
func NewWebServer(cfg WebServerConfig) *WebServer {
	ws := &WebServer{
		address:   cfg.Address,
		streamID:  cfg.StreamID,
		stats:     cfg.Stats,
		db:        cfg.DB,
		startTime: time.Now(),
	}

	var sqlDB *sql.DB
	if cfg.DB != nil {
		sqlDB = cfg.DB.DB
	}

	ws.runAPI = NewRunAPI(sqlDB, cfg.StreamID)
	ws.trackAPI = NewTrackAPI(sqlDB, cfg.StreamID)
	ws.tuningAPI = NewTuningAPI(cfg.StreamID, cfg.Tuning)
	ws.runAPI.SetParamsSource(ws.tuningAPI.RunParams)

	if cfg.Runtime != nil {
		if cfg.Runtime.Tracker != nil {
			ws.trackAPI.SetTracker(cfg.Runtime.Tracker)
			ws.tuningAPI.SetTracker(cfg.Runtime.Tracker)
		}
		if cfg.Runtime.RunManager != nil {
			ws.runAPI.SetRunManager(cfg.Runtime.RunManager)
		}
	}

	ws.server = &http.Server{
		Addr:    ws.address,
		Handler: ws.setupRoutes(),
	}

	return ws
}

// Start begins the HTTP server in a goroutine and handles graceful shutdown.
func (ws *WebServer) Start(ctx context.Context) error {
	go func() {
		log.Printf("Starting HTTP server on %s", ws.address)
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		// Force close the server if graceful shutdown fails
		if err := ws.server.Close(); err != nil {
			log.Printf("HTTP server force close error: %v", err)
		}
	}

	log.Printf("HTTP server routine stopped")
	return nil
}

// setupRoutes configures the HTTP routes and handlers.
func (ws *WebServer) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", ws.handleHealth)
	mux.HandleFunc("/", ws.handleStatus)
	mux.HandleFunc("/api/replay/version", ws.handleVersion)
	mux.HandleFunc("/api/replay/stats", ws.handleStats)

	ws.runAPI.RegisterRoutes(mux)
	ws.trackAPI.RegisterRoutes(mux)
	ws.tuningAPI.RegisterRoutes(mux)

	mux.HandleFunc("/charts/trails", ws.handleTrailsChart)
	mux.HandleFunc("/charts/counts", ws.handleCountsChart)
	mux.HandleFunc("/charts/frames", ws.handleFramesChart)

	if ws.db != nil {
		ws.db.AttachAdminRoutes(mux)
	}

	return mux
}

// handleHealth handles the health check endpoint.
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status": "ok", "service": "replay", "timestamp": "%s"}`, time.Now().UTC().Format(time.RFC3339))
}

// handleVersion reports the build identification of the running binary.
func (ws *WebServer) handleVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, map[string]string{
		"version":    version.Version,
		"git_sha":    version.GitSHA,
		"build_time": version.BuildTime,
		"full":       version.String(),
	})
}

// handleStats reports transport rates and tracker counters as one JSON
// document for dashboards that poll.
func (ws *WebServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	resp := map[string]interface{}{
		"stream_id":      ws.streamID,
		"uptime_seconds": time.Since(ws.startTime).Seconds(),
	}

	if ws.stats != nil {
		if snap := ws.stats.GetLatestSnapshot(); snap != nil {
			resp["ingest"] = map[string]interface{}{
				"packets_per_sec":    snap.PacketsPerSec,
				"kb_per_sec":         snap.KBPerSec,
				"detections_per_sec": snap.DetectionsPerSec,
				"dropped":            snap.DroppedCount,
				"timestamp":          snap.Timestamp.UTC().Format(time.RFC3339),
			}
		}
	}

	if tracker := ws.trackAPI.currentTracker(); tracker != nil {
		resp["tracker"] = tracker.Metrics()
	}

	httputil.WriteJSONOK(w, resp)
}

// handleStatus handles the main status page endpoint.
func (ws *WebServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html")

	tmpl, err := template.ParseFS(statusHTML, "status.html")
	if err != nil {
		http.Error(w, "Error loading template: "+err.Error(), http.StatusInternalServerError)
		return
	}

	uptime := time.Since(ws.startTime).Round(time.Second).String()

	var snap *video.StatsSnapshot
	if ws.stats != nil {
		snap = ws.stats.GetLatestSnapshot()
	}

	var metrics *video.TrackerMetrics
	if tracker := ws.trackAPI.currentTracker(); tracker != nil {
		m := tracker.Metrics()
		metrics = &m
	}

	activeRunID := ""
	if rm := ws.runAPI.manager(); rm != nil {
		activeRunID = rm.CurrentRunID()
	}

	data := struct {
		StreamID    string
		HTTPAddress string
		Uptime      string
		Version     string
		Stats       *video.StatsSnapshot
		Metrics     *video.TrackerMetrics
		ActiveRunID string
		HasDB       bool
	}{
		StreamID:    ws.streamID,
		HTTPAddress: ws.address,
		Uptime:      uptime,
		Version:     version.String(),
		Stats:       snap,
		Metrics:     metrics,
		ActiveRunID: activeRunID,
		HasDB:       ws.db != nil,
	}

	if err := tmpl.Execute(w, data); err != nil {
		http.Error(w, "Error executing template: "+err.Error(), http.StatusInternalServerError)
		return
	}
}

// Close shuts down the web server.
func (ws *WebServer) Close() error {
	if ws.server != nil {
		return ws.server.Close()
	}
	return nil
}
