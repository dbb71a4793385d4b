package main

import (
	"fmt"
	"strings"

	"github.com/courtside-data/replay.vision/internal/deploy"
)

// Grace periods let systemd finish the state transition before the next
// step asserts on it.
const (
	serviceStopGracePeriod  = 2
	serviceStartGracePeriod = 3
)

func stopService(ex *deploy.Executor) error {
	fmt.Println("Stopping service...")

	if _, err := ex.RunSudo(fmt.Sprintf("systemctl stop %s.service", serviceName)); err != nil {
		return fmt.Errorf("failed to stop service: %w", err)
	}
	if !ex.DryRun {
		ex.Run(fmt.Sprintf("sleep %d", serviceStopGracePeriod))
	}
	fmt.Println("  ✓ Service stopped")
	return nil
}

func startService(ex *deploy.Executor) error {
	fmt.Println("Starting service...")

	if _, err := ex.RunSudo(fmt.Sprintf("systemctl start %s.service", serviceName)); err != nil {
		return fmt.Errorf("failed to start service: %w", err)
	}
	if !ex.DryRun {
		ex.Run(fmt.Sprintf("sleep %d", serviceStartGracePeriod))
	}
	fmt.Println("  ✓ Service started")
	return nil
}

func verifyActive(ex *deploy.Executor) error {
	if ex.DryRun {
		ex.RunSudo(fmt.Sprintf("systemctl is-active %s.service", serviceName))
		return nil
	}

	output, err := ex.RunSudo(fmt.Sprintf("systemctl is-active %s.service", serviceName))
	if err != nil || strings.TrimSpace(output) != "active" {
		return fmt.Errorf("service is not active: %s", strings.TrimSpace(output))
	}
	fmt.Println("  ✓ Service is running")
	return nil
}
