package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/courtside-data/replay.vision/internal/deploy"
)

const (
	serviceName = "replay-vision"
	servicePath = "/etc/systemd/system/replay-vision.service"
	installPath = "/usr/local/bin/replay-vision"
	dataDir     = "/var/lib/replay-vision"
	backupsDir  = "/var/lib/replay-vision/backups"
	dbPath      = "/var/lib/replay-vision/replay.db"
	serviceUser = "replay"
)

// The server listens on :8080 and ingests detector datagrams on :9999 by
// default, so only the database path needs spelling out.
const serviceContent = `[Unit]
Description=Replay.vision track replay service
After=network.target

[Service]
Type=simple
User=replay
Group=replay
ExecStart=/usr/local/bin/replay-vision --db /var/lib/replay-vision/replay.db
WorkingDirectory=/var/lib/replay-vision
Restart=on-failure
RestartSec=5
StandardOutput=journal
StandardError=journal
SyslogIdentifier=replay-vision

[Install]
WantedBy=multi-user.target
`

// Installer performs a first-time install of replay-vision on a capture
// box: service user, data directory, binary, systemd unit, and an
// optional seed database.
type Installer struct {
	Exec       *deploy.Executor
	BinaryPath string
	DBPath     string
}

// Install runs the full installation sequence. It refuses to run when
// the service is already installed; use Upgrader for that.
func (i *Installer) Install() error {
	fmt.Printf("Installing %s to %s...\n", serviceName, i.Exec.Target)

	if err := validateBinaryFile(i.BinaryPath, i.Exec.DryRun); err != nil {
		return err
	}

	installed, err := i.checkExisting()
	if err != nil {
		return err
	}
	if installed {
		return fmt.Errorf("%s is already installed. Use 'upgrade' to update it", serviceName)
	}

	if err := i.createServiceUser(); err != nil {
		return err
	}
	if err := i.createDataDirectory(); err != nil {
		return err
	}
	if err := i.installBinary(); err != nil {
		return err
	}
	if err := i.installService(); err != nil {
		return err
	}
	if i.DBPath != "" {
		if err := i.seedDatabase(); err != nil {
			return err
		}
	}
	if err := startService(i.Exec); err != nil {
		return err
	}
	if err := verifyActive(i.Exec); err != nil {
		return err
	}

	fmt.Println()
	fmt.Println("✓ Installation completed successfully!")
	fmt.Println()
	fmt.Println("Useful commands:")
	fmt.Printf("  replay-deploy status --target %s\n", i.Exec.Target)
	fmt.Printf("  replay-deploy health --target %s\n", i.Exec.Target)
	fmt.Printf("  journalctl -u %s.service -f\n", serviceName)
	return nil
}

// validateBinaryFile checks the binary exists and is executable before
// any remote work starts. Dry runs with --build tolerate the binary not
// existing yet since the build itself was skipped.
func validateBinaryFile(path string, dryRun bool) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		if dryRun {
			fmt.Println("  ⊘ Binary not built yet, skipping validation (dry-run)")
			return nil
		}
		return fmt.Errorf("binary not found: %s", path)
	}
	if err != nil {
		return fmt.Errorf("cannot stat binary: %w", err)
	}
	if info.Mode()&0111 == 0 {
		return fmt.Errorf("binary is not executable: %s", path)
	}
	return nil
}

func (i *Installer) checkExisting() (bool, error) {
	output, err := i.Exec.Run(fmt.Sprintf("test -f %s && echo 'exists' || echo 'not found'", servicePath))
	if err != nil {
		return false, fmt.Errorf("failed to check for existing install: %w", err)
	}
	return strings.TrimSpace(output) == "exists", nil
}

func (i *Installer) createServiceUser() error {
	fmt.Printf("Creating service user '%s'...\n", serviceUser)

	output, err := i.Exec.Run(fmt.Sprintf("id %s 2>/dev/null && echo 'exists' || echo 'not found'", serviceUser))
	if err != nil {
		return fmt.Errorf("failed to check for service user: %w", err)
	}
	// A present user prints its id line before the marker, so look for
	// the marker anywhere in the output.
	if strings.Contains(output, "exists") {
		fmt.Printf("  ✓ User '%s' already exists\n", serviceUser)
		return nil
	}

	_, err = i.Exec.RunSudo(fmt.Sprintf("useradd --system --no-create-home --shell /usr/sbin/nologin %s", serviceUser))
	if err != nil {
		return fmt.Errorf("failed to create service user: %w", err)
	}
	fmt.Printf("  ✓ Created user '%s'\n", serviceUser)
	return nil
}

func (i *Installer) createDataDirectory() error {
	fmt.Printf("Creating data directory %s...\n", dataDir)

	_, err := i.Exec.RunSudo(fmt.Sprintf("mkdir -p %s %s && chown -R %s:%s %s",
		dataDir, backupsDir, serviceUser, serviceUser, dataDir))
	if err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	fmt.Println("  ✓ Data directory ready")
	return nil
}

func (i *Installer) installBinary() error {
	fmt.Printf("Installing binary to %s...\n", installPath)

	if err := i.Exec.CopyFile(i.BinaryPath, installPath); err != nil {
		return fmt.Errorf("failed to copy binary: %w", err)
	}
	_, err := i.Exec.RunSudo(fmt.Sprintf("chown root:root %s && chmod 0755 %s", installPath, installPath))
	if err != nil {
		return fmt.Errorf("failed to set binary permissions: %w", err)
	}
	fmt.Println("  ✓ Binary installed")
	return nil
}

func (i *Installer) installService() error {
	fmt.Printf("Installing systemd unit %s...\n", servicePath)

	tmpPath := "/tmp/replay-vision.service"
	if err := i.Exec.WriteFile(tmpPath, serviceContent); err != nil {
		return fmt.Errorf("failed to write service file: %w", err)
	}
	if _, err := i.Exec.RunSudo(fmt.Sprintf("mv %s %s", tmpPath, servicePath)); err != nil {
		return fmt.Errorf("failed to install service file: %w", err)
	}
	if _, err := i.Exec.RunSudo("systemctl daemon-reload"); err != nil {
		return fmt.Errorf("failed to reload systemd: %w", err)
	}
	if _, err := i.Exec.RunSudo(fmt.Sprintf("systemctl enable %s", serviceName)); err != nil {
		return fmt.Errorf("failed to enable service: %w", err)
	}
	fmt.Println("  ✓ Service installed and enabled")
	return nil
}

func (i *Installer) seedDatabase() error {
	fmt.Printf("Seeding database from %s...\n", i.DBPath)

	if err := i.Exec.CopyFile(i.DBPath, dbPath); err != nil {
		return fmt.Errorf("failed to copy database: %w", err)
	}
	_, err := i.Exec.RunSudo(fmt.Sprintf("chown %s:%s %s", serviceUser, serviceUser, dbPath))
	if err != nil {
		return fmt.Errorf("failed to set database ownership: %w", err)
	}
	fmt.Println("  ✓ Database seeded")
	return nil
}
