package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/courtside-data/replay.vision/internal/deploy"
	"github.com/courtside-data/replay.vision/internal/httputil"
)

// journalErrorLimit is how many "error" lines in the recent journal the
// health check tolerates before flagging the service.
const journalErrorLimit = 5

// Monitor inspects a deployed replay-vision service over SSH and its
// HTTP monitor endpoints.
type Monitor struct {
	Exec    *deploy.Executor
	APIPort int
	Client  httputil.HTTPClient
}

// HealthStatus is the outcome of CheckHealth: an overall verdict plus a
// per-check report for the operator.
type HealthStatus struct {
	Healthy bool
	Message string
	Details string
}

func (m *Monitor) client() httputil.HTTPClient {
	if m.Client != nil {
		return m.Client
	}
	return httputil.NewStandardClient(&http.Client{Timeout: 5 * time.Second})
}

// GetStatus returns the raw systemctl status report.
func (m *Monitor) GetStatus() (string, error) {
	output, err := m.Exec.RunSudo(fmt.Sprintf("systemctl status %s.service --no-pager", serviceName))
	// systemctl status exits non-zero for inactive units while still
	// printing the report, so the output is returned either way.
	if err != nil && strings.TrimSpace(output) == "" {
		return "", fmt.Errorf("failed to get status: %w", err)
	}
	return output, nil
}

// CheckHealth runs the full health battery: unit state, journal errors,
// monitor API, and the results database.
func (m *Monitor) CheckHealth() (*HealthStatus, error) {
	status := &HealthStatus{Healthy: true}
	var checks []string

	fail := func(message string) {
		if status.Healthy {
			status.Message = message
		}
		status.Healthy = false
	}

	output, err := m.Exec.RunSudo(fmt.Sprintf("systemctl is-active %s.service", serviceName))
	if err == nil && strings.TrimSpace(output) == "active" {
		checks = append(checks, "✓ Service: RUNNING")
	} else {
		fail("Service is not running")
		checks = append(checks, "✗ Service: NOT RUNNING")
	}

	output, err = m.Exec.RunSudo(fmt.Sprintf("systemctl show %s.service --property=ActiveEnterTimestamp --value", serviceName))
	if err == nil && strings.TrimSpace(output) != "" {
		checks = append(checks, fmt.Sprintf("✓ Started: %s", strings.TrimSpace(output)))
	}

	output, err = m.Exec.RunSudo(fmt.Sprintf("journalctl -u %s.service -n 20 --no-pager", serviceName))
	if err == nil {
		errorCount := strings.Count(strings.ToLower(output), "error")
		if errorCount > journalErrorLimit {
			fail(fmt.Sprintf("Too many errors in logs (%d)", errorCount))
			checks = append(checks, fmt.Sprintf("✗ Logs: %d errors found", errorCount))
		} else {
			checks = append(checks, fmt.Sprintf("✓ Logs: %d errors (acceptable)", errorCount))
		}
	}

	checks = append(checks, m.checkAPI(fail)...)

	output, err = m.Exec.Run(fmt.Sprintf("test -f %s && echo 'exists' || echo 'missing'", dbPath))
	if err == nil && strings.TrimSpace(output) == "exists" {
		size, err := m.Exec.Run(fmt.Sprintf("du -h %s | cut -f1", dbPath))
		if err == nil && strings.TrimSpace(size) != "" {
			checks = append(checks, fmt.Sprintf("✓ Database: %s", strings.TrimSpace(size)))
		} else {
			checks = append(checks, "✓ Database: EXISTS")
		}
	} else {
		fail("Results database not found")
		checks = append(checks, "✗ Database: MISSING")
	}

	status.Details = strings.Join(checks, "\n")
	if status.Healthy {
		status.Message = "All checks passed"
	}
	return status, nil
}

// checkAPI probes the monitor HTTP endpoints and summarizes the stream
// the box is tracking.
func (m *Monitor) checkAPI(fail func(string)) []string {
	var checks []string
	base := fmt.Sprintf("http://%s:%d", m.apiHost(), m.apiPort())

	resp, err := m.client().Get(base + "/health")
	if err != nil {
		fail("API endpoint not responding")
		return append(checks, "✗ API: NOT RESPONDING")
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		fail(fmt.Sprintf("API returned status %d", resp.StatusCode))
		return append(checks, fmt.Sprintf("✗ API: Status %d", resp.StatusCode))
	}
	checks = append(checks, "✓ API: RESPONDING")

	resp, err = m.client().Get(base + "/api/replay/stats")
	if err != nil {
		return checks
	}
	defer resp.Body.Close()

	var stats struct {
		StreamID      string  `json:"stream_id"`
		UptimeSeconds float64 `json:"uptime_seconds"`
		Tracker       *struct {
			ActiveTracks    int   `json:"active_tracks"`
			ConfirmedTracks int   `json:"confirmed_tracks"`
			FramesProcessed int64 `json:"frames_processed"`
		} `json:"tracker"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return checks
	}

	uptime := time.Duration(stats.UptimeSeconds * float64(time.Second)).Round(time.Second)
	checks = append(checks, fmt.Sprintf("  Stream: %s (up %s)", stats.StreamID, uptime))
	if stats.Tracker != nil {
		checks = append(checks, fmt.Sprintf("  Tracker: %d active, %d confirmed, %d frames",
			stats.Tracker.ActiveTracks, stats.Tracker.ConfirmedTracks, stats.Tracker.FramesProcessed))
	}
	return checks
}

// apiHost is the host the monitor API is reachable on. Local deploys
// probe localhost; remote targets may carry a user@ prefix to strip.
func (m *Monitor) apiHost() string {
	target := m.Exec.Target
	if target == "" || m.Exec.IsLocal() {
		return "localhost"
	}
	if idx := strings.Index(target, "@"); idx >= 0 {
		return target[idx+1:]
	}
	return target
}

func (m *Monitor) apiPort() int {
	if m.APIPort == 0 {
		return 8080
	}
	return m.APIPort
}
