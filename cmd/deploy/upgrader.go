package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/courtside-data/replay.vision/internal/deploy"
)

// Upgrader swaps the installed replay-vision binary for a new one,
// taking a dated backup of the old binary and database first.
type Upgrader struct {
	Exec       *deploy.Executor
	BinaryPath string
	NoBackup   bool
}

// Upgrade runs the upgrade sequence: backup, stop, swap, start, verify.
func (u *Upgrader) Upgrade() error {
	fmt.Printf("Upgrading %s on %s...\n", serviceName, u.Exec.Target)

	if err := validateBinaryFile(u.BinaryPath, u.Exec.DryRun); err != nil {
		return err
	}

	installed, err := u.checkInstalled()
	if err != nil {
		return err
	}
	if !installed {
		return fmt.Errorf("%s is not installed, run 'install' first", serviceName)
	}

	current, err := u.getCurrentVersion()
	if err != nil {
		fmt.Printf("  ⚠ Could not determine current version: %v\n", err)
	} else {
		fmt.Printf("Current version: %s\n", current)
	}

	if u.NoBackup {
		fmt.Println("Skipping backup (--no-backup flag set)")
	} else {
		if err := u.backupCurrent(current); err != nil {
			return err
		}
	}

	if err := stopService(u.Exec); err != nil {
		return err
	}
	if err := u.installNewBinary(); err != nil {
		return err
	}
	if err := startService(u.Exec); err != nil {
		return err
	}
	if err := verifyActive(u.Exec); err != nil {
		fmt.Println("  ⚠ Warning: service health check failed!")
		fmt.Println("  You may want to roll back using: replay-deploy rollback")
		return err
	}

	fmt.Println()
	fmt.Println("✓ Upgrade completed successfully!")
	return nil
}

func (u *Upgrader) checkInstalled() (bool, error) {
	if u.Exec.DryRun {
		u.Exec.Run(fmt.Sprintf("test -f %s && echo 'exists' || echo 'not found'", installPath))
		return true, nil
	}

	output, err := u.Exec.Run(fmt.Sprintf("test -f %s && echo 'exists' || echo 'not found'", installPath))
	if err != nil {
		return false, fmt.Errorf("failed to check for installed binary: %w", err)
	}
	return strings.TrimSpace(output) == "exists", nil
}

// getCurrentVersion asks the installed binary for its version, falling
// back to the binary's mtime when it predates the --version flag.
func (u *Upgrader) getCurrentVersion() (string, error) {
	output, err := u.Exec.Run(fmt.Sprintf("%s --version 2>&1 || echo 'unknown'", installPath))
	if err != nil {
		return "", err
	}
	version := strings.TrimSpace(output)
	if version == "" || strings.Contains(version, "unknown") {
		output, err := u.Exec.Run(fmt.Sprintf("stat -c %%Y %s 2>/dev/null || echo '0'", installPath))
		if err != nil {
			return "unknown", nil
		}
		ts := strings.TrimSpace(output)
		if ts == "" || ts == "0" {
			return "unknown", nil
		}
		return "installed-" + ts, nil
	}
	return version, nil
}

func (u *Upgrader) backupCurrent(currentVersion string) error {
	timestamp := time.Now().Format("20060102-150405")
	backupDir := backupsDir + "/" + timestamp
	fmt.Printf("Backing up to %s...\n", backupDir)

	if _, err := u.Exec.RunSudo(fmt.Sprintf("mkdir -p %s", backupDir)); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}
	if _, err := u.Exec.RunSudo(fmt.Sprintf("cp %s %s/replay-vision", installPath, backupDir)); err != nil {
		return fmt.Errorf("failed to back up binary: %w", err)
	}
	// The database may not exist yet on a fresh box; tolerate that.
	if _, err := u.Exec.RunSudo(fmt.Sprintf("test -f %s && cp %s %s/replay.db || true", dbPath, dbPath, backupDir)); err != nil {
		return fmt.Errorf("failed to back up database: %w", err)
	}

	info := fmt.Sprintf("version: %s\ndate: %s\n", currentVersion, time.Now().Format(time.RFC3339))
	tmpInfo := "/tmp/replay-vision-backup.txt"
	if err := u.Exec.WriteFile(tmpInfo, info); err != nil {
		fmt.Printf("  ⚠ Could not write backup info: %v\n", err)
	} else if _, err := u.Exec.RunSudo(fmt.Sprintf("mv %s %s/backup.txt", tmpInfo, backupDir)); err != nil {
		fmt.Printf("  ⚠ Could not save backup info: %v\n", err)
	}

	fmt.Printf("  ✓ Backup saved to: %s\n", backupDir)
	return nil
}

func (u *Upgrader) installNewBinary() error {
	fmt.Println("Installing new binary...")

	tmpPath := "/tmp/replay-vision-new"
	if err := u.Exec.CopyFile(u.BinaryPath, tmpPath); err != nil {
		return fmt.Errorf("failed to copy new binary: %w", err)
	}
	if _, err := u.Exec.RunSudo(fmt.Sprintf("mv %s %s", tmpPath, installPath)); err != nil {
		return fmt.Errorf("failed to install new binary: %w", err)
	}
	if _, err := u.Exec.RunSudo(fmt.Sprintf("chown root:root %s && chmod 0755 %s", installPath, installPath)); err != nil {
		return fmt.Errorf("failed to set binary permissions: %w", err)
	}
	fmt.Println("  ✓ New binary installed")
	return nil
}
