package deploy

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// SSHConfig holds the options parsed from ssh_config for one host.
type SSHConfig struct {
	Host          string
	HostName      string
	User          string
	IdentityFile  string
	IdentityAgent string
	Port          string
}

// ParseSSHConfig reads ~/.ssh/config and returns the options that apply
// to host. Returns nil without error when no config file exists or no
// Host block matches.
func ParseSSHConfig(host string) (*SSHConfig, error) {
	return ParseSSHConfigFrom(host, "")
}

// ParseSSHConfigFrom parses the named ssh config file. An empty
// configPath means ~/.ssh/config.
func ParseSSHConfigFrom(host, configPath string) (*SSHConfig, error) {
	// HOME is checked before os.UserHomeDir so tests can redirect it.
	homeDir := os.Getenv("HOME")
	if homeDir == "" {
		homeDir, _ = os.UserHomeDir()
	}
	if configPath == "" {
		if homeDir == "" {
			return nil, fmt.Errorf("cannot locate home directory for ~/.ssh/config")
		}
		configPath = filepath.Join(homeDir, ".ssh", "config")
	}

	file, err := os.Open(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open ssh config: %w", err)
	}
	defer file.Close()

	return parseSSHConfig(host, file, homeDir)
}

// parseSSHConfig scans Host blocks in r. Like ssh itself, the first
// matching block wins per option; later matching blocks only fill
// options still unset.
func parseSSHConfig(host string, r io.Reader, homeDir string) (*SSHConfig, error) {
	cfg := &SSHConfig{Host: host}
	matching := false
	found := false

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.Fields(line)
		if len(parts) < 2 {
			continue
		}
		keyword := strings.ToLower(parts[0])
		value := strings.Join(parts[1:], " ")

		if keyword == "host" {
			matching = false
			for _, pattern := range parts[1:] {
				if MatchHost(host, pattern) {
					matching = true
					found = true
					break
				}
			}
			continue
		}
		if !matching {
			continue
		}

		switch keyword {
		case "hostname":
			if cfg.HostName == "" {
				cfg.HostName = value
			}
		case "user":
			if cfg.User == "" {
				cfg.User = value
			}
		case "identityfile":
			if cfg.IdentityFile == "" {
				cfg.IdentityFile = expandTilde(value, homeDir)
			}
		case "identityagent":
			if cfg.IdentityAgent == "" {
				cfg.IdentityAgent = expandTilde(strings.Trim(value, `"`), homeDir)
			}
		case "port":
			if cfg.Port == "" {
				cfg.Port = value
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read ssh config: %w", err)
	}

	if !found {
		return nil, nil
	}
	return cfg, nil
}

func expandTilde(value, homeDir string) string {
	if strings.HasPrefix(value, "~/") && homeDir != "" {
		return filepath.Join(homeDir, value[2:])
	}
	return value
}

// MatchHost reports whether target matches an ssh_config host pattern.
// Patterns may use the * and ? wildcards.
func MatchHost(target, pattern string) bool {
	if !strings.ContainsAny(pattern, "*?[") {
		return target == pattern
	}
	ok, err := path.Match(pattern, target)
	return err == nil && ok
}

// ResolvedTarget is the final connection recipe for one capture box
// after merging command-line flags with ~/.ssh/config.
type ResolvedTarget struct {
	Host          string
	User          string
	KeyPath       string
	IdentityAgent string
	Port          string
}

// ResolveTarget merges the target, user, and key flags with
// ~/.ssh/config. Explicit flags win over config values, and a user
// embedded in a user@host target wins over both.
func ResolveTarget(target, user, keyPath string) (ResolvedTarget, error) {
	rt := ResolvedTarget{Host: target, User: user, KeyPath: keyPath}
	if at := strings.Index(target, "@"); at >= 0 {
		rt.User = target[:at]
		rt.Host = target[at+1:]
	}

	cfg, err := ParseSSHConfig(rt.Host)
	if err != nil {
		return ResolvedTarget{}, fmt.Errorf("resolve ssh config: %w", err)
	}
	if cfg == nil {
		return rt, nil
	}

	if cfg.HostName != "" {
		rt.Host = cfg.HostName
	}
	if rt.User == "" {
		rt.User = cfg.User
	}
	if rt.KeyPath == "" {
		rt.KeyPath = cfg.IdentityFile
	}
	rt.IdentityAgent = cfg.IdentityAgent
	if rt.Port == "" {
		rt.Port = cfg.Port
	}
	return rt, nil
}
