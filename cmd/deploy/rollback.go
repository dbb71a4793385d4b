package main

import (
	"fmt"
	"strings"

	"github.com/courtside-data/replay.vision/internal/deploy"
)

// Rollback restores the most recent backup taken by Upgrader. The
// binary always comes back; the database only with RestoreDB, since
// rolling the database back discards tracks recorded since the backup.
type Rollback struct {
	Exec      *deploy.Executor
	AssumeYes bool
	RestoreDB bool
}

// Execute finds the latest backup and restores it.
func (r *Rollback) Execute() error {
	fmt.Printf("Rolling back %s on %s...\n", serviceName, r.Exec.Target)

	backupDir, err := r.findLatestBackup()
	if err != nil {
		return err
	}
	fmt.Printf("Found backup: %s\n", backupDir)

	if !r.AssumeYes && !r.Exec.DryRun {
		fmt.Print("Proceed with rollback? [y/N] ")
		var answer string
		fmt.Scanln(&answer)
		if !strings.EqualFold(strings.TrimSpace(answer), "y") {
			fmt.Println("Rollback cancelled")
			return nil
		}
	}

	if err := stopService(r.Exec); err != nil {
		return err
	}
	if err := r.restoreBinary(backupDir); err != nil {
		return err
	}
	if r.RestoreDB {
		if err := r.restoreDatabase(backupDir); err != nil {
			fmt.Printf("  ⚠ Database restore failed: %v\n", err)
		}
	}
	if err := startService(r.Exec); err != nil {
		return err
	}
	if err := verifyActive(r.Exec); err != nil {
		return err
	}

	fmt.Println()
	fmt.Println("✓ Rollback completed successfully!")
	return nil
}

func (r *Rollback) findLatestBackup() (string, error) {
	if r.Exec.DryRun {
		r.Exec.RunSudo(fmt.Sprintf("ls -1t %s/ 2>/dev/null | head -1", backupsDir))
		return backupsDir + "/<latest>", nil
	}

	output, err := r.Exec.RunSudo(fmt.Sprintf("ls -1t %s/ 2>/dev/null | head -1", backupsDir))
	if err != nil {
		return "", fmt.Errorf("failed to list backups: %w", err)
	}
	latest := strings.TrimSpace(output)
	if latest == "" {
		return "", fmt.Errorf("no backups found in %s/", backupsDir)
	}
	backupDir := backupsDir + "/" + latest

	check, err := r.Exec.RunSudo(fmt.Sprintf("test -f %s/replay-vision && echo 'exists' || echo 'missing'", backupDir))
	if err != nil {
		return "", fmt.Errorf("failed to verify backup: %w", err)
	}
	if strings.TrimSpace(check) != "exists" {
		return "", fmt.Errorf("backup %s exists but binary missing", backupDir)
	}
	return backupDir, nil
}

func (r *Rollback) restoreBinary(backupDir string) error {
	fmt.Println("Restoring binary...")

	if _, err := r.Exec.RunSudo(fmt.Sprintf("cp %s/replay-vision %s", backupDir, installPath)); err != nil {
		return fmt.Errorf("failed to restore binary: %w", err)
	}
	if _, err := r.Exec.RunSudo(fmt.Sprintf("chown root:root %s && chmod 0755 %s", installPath, installPath)); err != nil {
		return fmt.Errorf("failed to set binary permissions: %w", err)
	}
	fmt.Println("  ✓ Binary restored")
	return nil
}

func (r *Rollback) restoreDatabase(backupDir string) error {
	if r.Exec.DryRun {
		fmt.Printf("[DRY-RUN] Would restore database from %s/replay.db\n", backupDir)
		return nil
	}

	check, err := r.Exec.RunSudo(fmt.Sprintf("test -f %s/replay.db && echo 'exists' || echo 'missing'", backupDir))
	if err != nil {
		return fmt.Errorf("failed to check database backup: %w", err)
	}
	if strings.TrimSpace(check) != "exists" {
		fmt.Println("  ⊘ No database backup found, keeping current database")
		return nil
	}

	if _, err := r.Exec.RunSudo(fmt.Sprintf("cp %s/replay.db %s", backupDir, dbPath)); err != nil {
		return fmt.Errorf("failed to restore database: %w", err)
	}
	if _, err := r.Exec.RunSudo(fmt.Sprintf("chown %s:%s %s", serviceUser, serviceUser, dbPath)); err != nil {
		return fmt.Errorf("failed to set database ownership: %w", err)
	}
	fmt.Println("  ✓ Database restored")
	return nil
}
