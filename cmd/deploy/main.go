// Command replay-deploy manages replay-vision installations on venue
// capture boxes: first install, binary upgrades, rollback, and health
// monitoring, locally or over SSH.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/courtside-data/replay.vision/internal/deploy"
	"github.com/courtside-data/replay.vision/internal/monitoring"
)

const deployVersion = "0.2.0"

const usageText = `replay-deploy - deployment manager for replay-vision capture boxes

Usage: replay-deploy <command> [options]

Commands:
  install    Install the replay-vision service on a capture box
  upgrade    Upgrade replay-vision to a new binary
  status     Show the systemd status of the service
  health     Run a health check against the running service
  rollback   Roll back to the most recent backup
  version    Show replay-deploy version
  help       Show this help message

Common flags:
  --target <host>      Target capture box (default: localhost)
                       Accepts a hostname, IP, user@host, or an SSH config alias
  --ssh-user <user>    SSH user for remote targets
  --ssh-key <path>     SSH private key path
  --dry-run            Print the commands without executing them
  --debug              Log every command the deploy runs

Binary selection (install and upgrade):
  --binary <path>      Use an already built replay-vision binary
  --build              Cross-compile ./cmd/replay for the box instead
  --goos / --goarch    Build target platform (default: linux/arm64)

SSH config:
  replay-deploy reads ~/.ssh/config for the target host. HostName, User,
  IdentityFile, IdentityAgent, and Port all apply; command-line flags
  override them.

Examples:
  replay-deploy install --target court-pi4 --build
  replay-deploy upgrade --target ops@10.0.0.44 --binary ./replay-vision-linux-arm64
  replay-deploy status --target court-pi4
  replay-deploy rollback --target court-pi4 --yes`

func main() {
	flag.Usage = printUsage
	flag.Parse()

	if flag.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}

	command := flag.Arg(0)
	args := flag.Args()[1:]

	switch command {
	case "install":
		handleInstall(args)
	case "upgrade":
		handleUpgrade(args)
	case "status":
		handleStatus(args)
	case "health":
		handleHealth(args)
	case "rollback":
		handleRollback(args)
	case "version":
		fmt.Printf("replay-deploy version %s\n", deployVersion)
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(usageText)
}

// targetFlags is the flag cluster every subcommand shares.
type targetFlags struct {
	target  *string
	sshUser *string
	sshKey  *string
	debug   *bool
}

func addTargetFlags(fs *flag.FlagSet) targetFlags {
	return targetFlags{
		target:  fs.String("target", "localhost", "Target capture box (hostname, IP, user@host, or SSH alias)"),
		sshUser: fs.String("ssh-user", "", "SSH user (defaults to ~/.ssh/config or current user)"),
		sshKey:  fs.String("ssh-key", "", "SSH private key path (defaults to ~/.ssh/config)"),
		debug:   fs.Bool("debug", false, "Log every command the deploy runs"),
	}
}

// newExecutor resolves the target against ~/.ssh/config and builds the
// executor the subcommand will drive.
func newExecutor(tf targetFlags, dryRun bool) (*deploy.Executor, error) {
	rt, err := deploy.ResolveTarget(*tf.target, *tf.sshUser, *tf.sshKey)
	if err != nil {
		return nil, err
	}
	if rt.User == "" {
		rt.User = os.Getenv("USER")
	}

	ex := deploy.NewExecutor(rt, dryRun)
	if *tf.debug {
		ex.SetLogger(monitoring.Tagged("deploy"))
	}
	return ex, nil
}

// resolveBinary returns the binary to ship, cross-compiling it first
// when --build is set. Exactly one of binary and build must be chosen.
func resolveBinary(binary string, build bool, goos, goarch string, dryRun, debug bool) (string, error) {
	if binary != "" && build {
		return "", fmt.Errorf("--binary and --build are mutually exclusive")
	}
	if binary == "" && !build {
		return "", fmt.Errorf("either --binary or --build is required")
	}
	if binary != "" {
		return binary, nil
	}

	// Builds always run on the operator's machine, never the target.
	local := deploy.NewExecutor(deploy.ResolvedTarget{}, dryRun)
	if debug {
		local.SetLogger(monitoring.Tagged("deploy"))
	}
	return buildBinary(local, goos, goarch)
}

func handleInstall(args []string) {
	fs := flag.NewFlagSet("install", flag.ExitOnError)
	tf := addTargetFlags(fs)
	binary := fs.String("binary", "", "Path to a built replay-vision binary")
	build := fs.Bool("build", false, "Cross-compile ./cmd/replay for the target instead of --binary")
	goos := fs.String("goos", "linux", "GOOS for --build")
	goarch := fs.String("goarch", "arm64", "GOARCH for --build")
	dbPath := fs.String("db-path", "", "Existing results database to seed onto the box")
	dryRun := fs.Bool("dry-run", false, "Show what would be done")
	fs.Parse(args)

	binaryPath, err := resolveBinary(*binary, *build, *goos, *goarch, *dryRun, *tf.debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		fs.Usage()
		os.Exit(1)
	}

	ex, err := newExecutor(tf, *dryRun)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to resolve SSH config: %v\n", err)
		os.Exit(1)
	}

	installer := &Installer{Exec: ex, BinaryPath: binaryPath, DBPath: *dbPath}
	if err := installer.Install(); err != nil {
		fmt.Fprintf(os.Stderr, "Installation failed: %v\n", err)
		os.Exit(1)
	}
}

func handleUpgrade(args []string) {
	fs := flag.NewFlagSet("upgrade", flag.ExitOnError)
	tf := addTargetFlags(fs)
	binary := fs.String("binary", "", "Path to a built replay-vision binary")
	build := fs.Bool("build", false, "Cross-compile ./cmd/replay for the target instead of --binary")
	goos := fs.String("goos", "linux", "GOOS for --build")
	goarch := fs.String("goarch", "arm64", "GOARCH for --build")
	noBackup := fs.Bool("no-backup", false, "Skip the backup before upgrading")
	dryRun := fs.Bool("dry-run", false, "Show what would be done")
	fs.Parse(args)

	binaryPath, err := resolveBinary(*binary, *build, *goos, *goarch, *dryRun, *tf.debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		fs.Usage()
		os.Exit(1)
	}

	ex, err := newExecutor(tf, *dryRun)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to resolve SSH config: %v\n", err)
		os.Exit(1)
	}

	upgrader := &Upgrader{Exec: ex, BinaryPath: binaryPath, NoBackup: *noBackup}
	if err := upgrader.Upgrade(); err != nil {
		fmt.Fprintf(os.Stderr, "Upgrade failed: %v\n", err)
		os.Exit(1)
	}
}

func handleStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	tf := addTargetFlags(fs)
	fs.Parse(args)

	ex, err := newExecutor(tf, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to resolve SSH config: %v\n", err)
		os.Exit(1)
	}

	monitor := &Monitor{Exec: ex}
	status, err := monitor.GetStatus()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to get status: %v\n", err)
		os.Exit(1)
	}
	fmt.Print(status)
}

func handleHealth(args []string) {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	tf := addTargetFlags(fs)
	apiPort := fs.Int("api-port", 8080, "Monitor HTTP port on the box")
	fs.Parse(args)

	ex, err := newExecutor(tf, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to resolve SSH config: %v\n", err)
		os.Exit(1)
	}

	monitor := &Monitor{Exec: ex, APIPort: *apiPort}
	health, err := monitor.CheckHealth()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}

	if !health.Healthy {
		fmt.Printf("Service is UNHEALTHY: %s\n%s\n", health.Message, health.Details)
		os.Exit(1)
	}
	fmt.Printf("Service is HEALTHY\n%s\n", health.Details)
}

func handleRollback(args []string) {
	fs := flag.NewFlagSet("rollback", flag.ExitOnError)
	tf := addTargetFlags(fs)
	yes := fs.Bool("yes", false, "Skip the confirmation prompt")
	withDB := fs.Bool("with-db", false, "Also restore the backed up results database")
	dryRun := fs.Bool("dry-run", false, "Show what would be done")
	fs.Parse(args)

	ex, err := newExecutor(tf, *dryRun)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to resolve SSH config: %v\n", err)
		os.Exit(1)
	}

	rollback := &Rollback{Exec: ex, AssumeYes: *yes, RestoreDB: *withDB}
	if err := rollback.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Rollback failed: %v\n", err)
		os.Exit(1)
	}
}
