package deploy

import (
	"errors"
	"strings"
	"testing"
)

func TestRealCommandBuilder_ShellCommand(t *testing.T) {
	builder := NewRealCommandBuilder()

	cmd := builder.BuildShellCommand("echo hello")
	output, err := cmd.Run()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if strings.TrimSpace(string(output)) != "hello" {
		t.Errorf("Expected 'hello', got: %s", output)
	}
}

func TestRealCommandBuilder_ShellCommandError(t *testing.T) {
	builder := NewRealCommandBuilder()

	if _, err := builder.BuildShellCommand("exit 1").Run(); err == nil {
		t.Error("Expected error for failing command")
	}
}

func TestRealCommandBuilder_BuildCommand(t *testing.T) {
	builder := NewRealCommandBuilder()

	cmd := builder.BuildCommand("echo", "arg1", "arg2")
	output, err := cmd.Run()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if strings.TrimSpace(string(output)) != "arg1 arg2" {
		t.Errorf("Expected 'arg1 arg2', got: %s", output)
	}
}

func TestRealCommandBuilder_Stdin(t *testing.T) {
	builder := NewRealCommandBuilder()

	cmd := builder.BuildShellCommand("cat")
	cmd.SetStdin([]byte("piped input"))
	output, err := cmd.Run()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if string(output) != "piped input" {
		t.Errorf("Expected 'piped input', got: %s", output)
	}
}

func TestMockCommandBuilder_RecordsCommands(t *testing.T) {
	builder := NewMockCommandBuilder()

	builder.BuildCommand("ssh", "-i", "/path/to/key", "user@host", "echo hello")
	builder.BuildShellCommand("systemctl status replay-vision")

	if len(builder.Commands) != 2 {
		t.Fatalf("Expected 2 commands, got %d", len(builder.Commands))
	}

	first := builder.Commands[0]
	if first.Name != "ssh" || first.Shell {
		t.Errorf("First command = %q (shell=%v), want ssh argv", first.Name, first.Shell)
	}
	if got := first.String(); got != "ssh -i /path/to/key user@host echo hello" {
		t.Errorf("String() = %q", got)
	}

	second := builder.Commands[1]
	if second.Name != "sh" || !second.Shell {
		t.Errorf("Second command = %q (shell=%v), want sh -c", second.Name, second.Shell)
	}
	if second.Args[1] != "systemctl status replay-vision" {
		t.Errorf("Shell command = %q", second.Args[1])
	}
}

func TestMockCommandBuilder_ReplyQueue(t *testing.T) {
	builder := NewMockCommandBuilder()
	builder.Reply("first\n", nil).Reply("", errors.New("boom"))

	out, err := builder.BuildShellCommand("one").Run()
	if err != nil || string(out) != "first\n" {
		t.Errorf("First reply = %q, %v", out, err)
	}

	_, err = builder.BuildShellCommand("two").Run()
	if err == nil || err.Error() != "boom" {
		t.Errorf("Second reply error = %v, want boom", err)
	}

	// Exhausted queue falls back to empty success.
	out, err = builder.BuildShellCommand("three").Run()
	if err != nil || len(out) != 0 {
		t.Errorf("Exhausted queue = %q, %v, want empty success", out, err)
	}
}

func TestMockCommandBuilder_Respond(t *testing.T) {
	builder := NewMockCommandBuilder()
	builder.Respond = func(name string, args []string) MockResponse {
		if strings.Contains(strings.Join(args, " "), "is-active") {
			return MockResponse{Output: []byte("active\n")}
		}
		return MockResponse{Output: []byte("not found\n")}
	}

	out, _ := builder.BuildShellCommand("sudo systemctl is-active replay-vision").Run()
	if strings.TrimSpace(string(out)) != "active" {
		t.Errorf("is-active reply = %q", out)
	}

	out, _ = builder.BuildShellCommand("id replay").Run()
	if strings.TrimSpace(string(out)) != "not found" {
		t.Errorf("default reply = %q", out)
	}
}

func TestMockCommandBuilder_StdinCapture(t *testing.T) {
	builder := NewMockCommandBuilder()

	cmd := builder.BuildCommand("ssh", "host", "cat > /tmp/unit.service")
	cmd.SetStdin([]byte("[Unit]\n"))

	if got := string(builder.Commands[0].Stdin); got != "[Unit]\n" {
		t.Errorf("Recorded stdin = %q", got)
	}
}

func TestMockCommandBuilder_FindCommand(t *testing.T) {
	builder := NewMockCommandBuilder()
	builder.BuildShellCommand("sudo systemctl daemon-reload")
	builder.BuildShellCommand("sudo systemctl enable replay-vision")

	if builder.FindCommand("daemon-reload") == nil {
		t.Error("FindCommand(daemon-reload) = nil")
	}
	if cmd := builder.FindCommand("enable replay-vision"); cmd == nil || !cmd.Shell {
		t.Errorf("FindCommand(enable) = %+v", cmd)
	}
	if builder.FindCommand("systemctl stop") != nil {
		t.Error("FindCommand should return nil for commands never built")
	}
}

func TestMockCommandBuilder_LastCommandAndReset(t *testing.T) {
	builder := NewMockCommandBuilder()

	if builder.LastCommand() != nil {
		t.Error("LastCommand on empty builder should be nil")
	}

	builder.BuildCommand("scp", "a", "b")
	builder.BuildCommand("ssh", "host", "mv a b")
	if last := builder.LastCommand(); last == nil || last.Name != "ssh" {
		t.Errorf("LastCommand = %+v", last)
	}

	builder.Reset()
	if len(builder.Commands) != 0 || builder.LastCommand() != nil {
		t.Error("Reset should clear recorded commands")
	}
}

func TestMockCommandExecutor_Standalone(t *testing.T) {
	mock := &MockCommandExecutor{Output: []byte("canned"), Err: nil}

	output, err := mock.Run()
	if err != nil || string(output) != "canned" {
		t.Errorf("Run() = %q, %v", output, err)
	}
	if !mock.RunCalled {
		t.Error("RunCalled should be true after Run")
	}

	mock.SetStdin([]byte("input"))
	if string(mock.Stdin) != "input" {
		t.Errorf("Stdin = %q", mock.Stdin)
	}
}
