package deploy

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writeSSHConfig sets HOME to a temp dir containing .ssh/config with the
// given content and returns the config path.
func writeSSHConfig(t *testing.T, content string) string {
	t.Helper()

	home := t.TempDir()
	t.Setenv("HOME", home)

	sshDir := filepath.Join(home, ".ssh")
	if err := os.MkdirAll(sshDir, 0700); err != nil {
		t.Fatalf("Failed to create .ssh dir: %v", err)
	}

	configPath := filepath.Join(sshDir, "config")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("Failed to write ssh config: %v", err)
	}
	return configPath
}

func TestParseSSHConfigFrom_Basic(t *testing.T) {
	configPath := writeSSHConfig(t, `# venue boxes
Host court-pi4
    HostName 10.0.0.44
    User ops
    IdentityFile ~/.ssh/court_key
    IdentityAgent "~/.ssh/agent.sock"
    Port 2222
`)

	cfg, err := ParseSSHConfigFrom("court-pi4", configPath)
	if err != nil {
		t.Fatalf("ParseSSHConfigFrom() error: %v", err)
	}
	if cfg == nil {
		t.Fatal("Expected a config for court-pi4")
	}

	if cfg.HostName != "10.0.0.44" {
		t.Errorf("HostName = %s", cfg.HostName)
	}
	if cfg.User != "ops" {
		t.Errorf("User = %s", cfg.User)
	}
	if !strings.HasSuffix(cfg.IdentityFile, filepath.Join(".ssh", "court_key")) || strings.HasPrefix(cfg.IdentityFile, "~") {
		t.Errorf("IdentityFile should be tilde-expanded, got %s", cfg.IdentityFile)
	}
	if strings.HasPrefix(cfg.IdentityAgent, `"`) || !strings.HasSuffix(cfg.IdentityAgent, "agent.sock") {
		t.Errorf("IdentityAgent should be unquoted and expanded, got %s", cfg.IdentityAgent)
	}
	if cfg.Port != "2222" {
		t.Errorf("Port = %s", cfg.Port)
	}
}

func TestParseSSHConfigFrom_NoMatch(t *testing.T) {
	configPath := writeSSHConfig(t, `Host other-host
    HostName 10.0.0.99
`)

	cfg, err := ParseSSHConfigFrom("court-pi4", configPath)
	if err != nil {
		t.Fatalf("ParseSSHConfigFrom() error: %v", err)
	}
	if cfg != nil {
		t.Errorf("Expected nil for unmatched host, got %+v", cfg)
	}
}

func TestParseSSHConfigFrom_MissingFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := ParseSSHConfig("court-pi4")
	if err != nil {
		t.Fatalf("Missing config file should not error: %v", err)
	}
	if cfg != nil {
		t.Errorf("Expected nil for missing file, got %+v", cfg)
	}
}

func TestParseSSHConfigFrom_FirstValueWins(t *testing.T) {
	configPath := writeSSHConfig(t, `Host court-*
    User ops
    Port 2222

Host court-pi4
    HostName 10.0.0.44
    User root
`)

	cfg, err := ParseSSHConfigFrom("court-pi4", configPath)
	if err != nil {
		t.Fatalf("ParseSSHConfigFrom() error: %v", err)
	}
	if cfg == nil {
		t.Fatal("Expected a config")
	}

	// The wildcard block comes first, so its User sticks; the exact
	// block still fills HostName because no earlier block set it.
	if cfg.User != "ops" {
		t.Errorf("User = %s, want ops from the first matching block", cfg.User)
	}
	if cfg.HostName != "10.0.0.44" {
		t.Errorf("HostName = %s, want fill-in from the later block", cfg.HostName)
	}
	if cfg.Port != "2222" {
		t.Errorf("Port = %s", cfg.Port)
	}
}

func TestParseSSHConfigFrom_MultiplePatternsOneLine(t *testing.T) {
	configPath := writeSSHConfig(t, `Host staging court-pi4 court-pi5
    User ops
`)

	cfg, err := ParseSSHConfigFrom("court-pi5", configPath)
	if err != nil {
		t.Fatalf("ParseSSHConfigFrom() error: %v", err)
	}
	if cfg == nil || cfg.User != "ops" {
		t.Errorf("Host line with multiple patterns should match, got %+v", cfg)
	}
}

func TestMatchHost(t *testing.T) {
	tests := []struct {
		target  string
		pattern string
		want    bool
	}{
		{"court-pi4", "court-pi4", true},
		{"court-pi4", "court-pi5", false},
		{"court-pi4", "court-*", true},
		{"court-pi4", "*", true},
		{"court-pi4", "court-pi?", true},
		{"court-pi41", "court-pi?", false},
		{"pi.venue.local", "*.venue.local", true},
		{"pi.venue.local", "*.other.local", false},
		{"court-pi4", "court-[", false},
	}

	for _, tc := range tests {
		t.Run(tc.target+"/"+tc.pattern, func(t *testing.T) {
			if got := MatchHost(tc.target, tc.pattern); got != tc.want {
				t.Errorf("MatchHost(%s, %s) = %v, want %v", tc.target, tc.pattern, got, tc.want)
			}
		})
	}
}

func TestResolveTarget_NoConfig(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	rt, err := ResolveTarget("192.168.1.100", "ops", "/keys/id")
	if err != nil {
		t.Fatalf("ResolveTarget() error: %v", err)
	}
	if rt.Host != "192.168.1.100" || rt.User != "ops" || rt.KeyPath != "/keys/id" {
		t.Errorf("ResolveTarget = %+v", rt)
	}
}

func TestResolveTarget_UserAtHost(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	rt, err := ResolveTarget("ops@court-pi4.local", "other", "")
	if err != nil {
		t.Fatalf("ResolveTarget() error: %v", err)
	}
	if rt.Host != "court-pi4.local" {
		t.Errorf("Host = %s", rt.Host)
	}
	if rt.User != "ops" {
		t.Errorf("User = %s, want user from target to win", rt.User)
	}
}

func TestResolveTarget_FromConfig(t *testing.T) {
	writeSSHConfig(t, `Host court-pi4
    HostName 10.0.0.44
    User ops
    IdentityFile ~/.ssh/court_key
    Port 2222
`)

	rt, err := ResolveTarget("court-pi4", "", "")
	if err != nil {
		t.Fatalf("ResolveTarget() error: %v", err)
	}
	if rt.Host != "10.0.0.44" {
		t.Errorf("Host = %s, want HostName from config", rt.Host)
	}
	if rt.User != "ops" {
		t.Errorf("User = %s", rt.User)
	}
	if !strings.HasSuffix(rt.KeyPath, "court_key") {
		t.Errorf("KeyPath = %s", rt.KeyPath)
	}
	if rt.Port != "2222" {
		t.Errorf("Port = %s", rt.Port)
	}
}

func TestResolveTarget_FlagsWinOverConfig(t *testing.T) {
	writeSSHConfig(t, `Host court-pi4
    HostName 10.0.0.44
    User ops
    IdentityFile ~/.ssh/court_key
`)

	rt, err := ResolveTarget("court-pi4", "root", "/keys/override")
	if err != nil {
		t.Fatalf("ResolveTarget() error: %v", err)
	}
	if rt.User != "root" {
		t.Errorf("User = %s, want flag override", rt.User)
	}
	if rt.KeyPath != "/keys/override" {
		t.Errorf("KeyPath = %s, want flag override", rt.KeyPath)
	}
	if rt.Host != "10.0.0.44" {
		t.Errorf("Host = %s, HostName still applies", rt.Host)
	}
}
